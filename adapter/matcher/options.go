package matcher

import (
	"regexp"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sboesebeck/morphium-sub001/adapter/expression"
	"github.com/sboesebeck/morphium-sub001/domain"
)

// WithComparer sets the comparer implementation for value comparisons during
// matching.
func WithComparer(c domain.Comparer) Option {
	return func(mo *Matcher) {
		mo.comparer = c
	}
}

// WithFieldNavigator sets the field getter for accessing document fields during
// matching.
func WithFieldNavigator(f domain.FieldNavigator) Option {
	return func(mo *Matcher) {
		mo.fieldNavigator = f
	}
}

// WithEvaluator sets the evaluator of $expr conditions.
func WithEvaluator(e *expression.Evaluator) Option {
	return func(mo *Matcher) {
		mo.evaluator = e
	}
}

// WithRegexCacheSize sets how many compiled regular expressions are kept.
func WithRegexCacheSize(n int) Option {
	return func(mo *Matcher) {
		mo.regexCacheSize = n
	}
}

// WithRegexCache shares a regex cache between matchers.
func WithRegexCache(c *lru.Cache[string, *regexp.Regexp]) Option {
	return func(mo *Matcher) {
		mo.regexes = c
	}
}

// Option configures matcher behavior through the functional options pattern.
type Option func(*Matcher)
