package comparer

import "github.com/sboesebeck/morphium-sub001/adapter/collation"

// WithCollator sets the collator used to compare strings. A nil collator
// compares strings byte-wise.
func WithCollator(c *collation.Collator) Option {
	return func(co *Comparer) {
		co.collator = c
	}
}

// Option configures comparer behavior through the functional options
// pattern.
type Option func(*Comparer)
