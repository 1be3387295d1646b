package projector

import (
	"github.com/sboesebeck/morphium-sub001/adapter/expression"
	"github.com/sboesebeck/morphium-sub001/domain"
)

// WithFieldNavigator sets the [domain.FieldNavigator] that will be used by
// [Projector].
func WithFieldNavigator(fn domain.FieldNavigator) Option {
	return func(p *Projector) {
		p.fn = fn
	}
}

// WithEvaluator sets the evaluator of computed fields.
func WithEvaluator(ev *expression.Evaluator) Option {
	return func(p *Projector) {
		p.evaluator = ev
	}
}

// WithIDField sets the identity field kept by default.
func WithIDField(field string) Option {
	return func(p *Projector) {
		p.idField = field
	}
}

// Option configures projector behavior through the functional options pattern.
type Option func(*Projector)
