// Package collation wraps golang.org/x/text/collate to provide locale-aware
// string comparison for [domain.Collation].
package collation

import (
	"strings"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/sboesebeck/morphium-sub001/domain"
)

// Collator compares strings under a [domain.Collation]. It is safe for
// concurrent use.
type Collator struct {
	mu  sync.Mutex
	c   *collate.Collator
	buf collate.Buffer
}

// New returns a collator for c. A nil collation or the "simple" locale
// returns nil, which callers treat as binary comparison.
func New(c *domain.Collation) (*Collator, error) {
	if c == nil || strings.EqualFold(c.Locale, "simple") {
		return nil, nil
	}
	tag, err := language.Parse(c.Locale)
	if err != nil {
		return nil, domain.ErrMalformedExpression{Kind: "collation", Field: "locale", Reason: err.Error()}
	}
	var opts []collate.Option
	switch {
	case c.Strength == 1:
		opts = append(opts, collate.IgnoreCase, collate.IgnoreDiacritics)
	case c.Strength == 2:
		opts = append(opts, collate.IgnoreCase)
	}
	return &Collator{c: collate.New(tag, opts...)}, nil
}

// Compare compares two strings. A nil collator compares bytes.
func (c *Collator) Compare(a, b string) int {
	if c == nil {
		return strings.Compare(a, b)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.c.CompareString(a, b)
}

// Key returns a sort key for s: two strings compare equal under the
// collation if and only if their keys are equal.
func (c *Collator) Key(s string) []byte {
	if c == nil {
		return []byte(s)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf.Reset()
	return append([]byte(nil), c.c.KeyFromString(&c.buf, s)...)
}
