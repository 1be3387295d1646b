package ttl

import (
	"time"

	"go.uber.org/zap"

	"github.com/sboesebeck/morphium-sub001/domain"
	"github.com/sboesebeck/morphium-sub001/internal/metrics"
)

// WithInterval sets the time between two sweeps.
func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		s.interval = d
	}
}

// WithTimeGetter sets the clock deciding what has expired.
func WithTimeGetter(t domain.TimeGetter) Option {
	return func(s *Sweeper) {
		s.timeGetter = t
	}
}

// WithLogger sets the logger of sweep outcomes.
func WithLogger(l *zap.Logger) Option {
	return func(s *Sweeper) {
		s.logger = l
	}
}

// WithMetrics sets the collector counting expired documents.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

// Option configures sweeper behavior through the functional options
// pattern.
type Option func(*Sweeper)
