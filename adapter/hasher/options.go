package hasher

import "github.com/sboesebeck/morphium-sub001/adapter/collation"

// WithCollator hashes strings through the collation key of c, matching a
// comparer built with the same collator.
func WithCollator(c *collation.Collator) Option {
	return func(h *Hasher) {
		h.collator = c
	}
}

// Option configures hasher behavior through the functional options pattern.
type Option func(*Hasher)
