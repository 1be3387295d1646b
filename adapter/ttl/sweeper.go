// Package ttl removes the documents of TTL indexes once their date field
// plus the index expiry lies in the past.
package ttl

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sboesebeck/morphium-sub001/adapter/timegetter"
	"github.com/sboesebeck/morphium-sub001/domain"
	"github.com/sboesebeck/morphium-sub001/internal/metrics"
)

// DefaultInterval is the time between two sweeps when none is configured.
const DefaultInterval = 60 * time.Second

// Index is a TTL index as seen by the sweeper.
type Index struct {
	Collection  string
	Name        string
	Field       string
	ExpireAfter time.Duration
}

// Target is the store swept by a [Sweeper].
type Target interface {
	// TTLIndexes lists the TTL indexes of every collection.
	TTLIndexes(ctx context.Context) ([]Index, error)
	// Expire deletes the documents of idx.Collection whose idx.Field holds
	// a date not after cutoff, returning how many were deleted. An array
	// field expires with its earliest date.
	Expire(ctx context.Context, idx Index, cutoff time.Time) (int, error)
}

// Sweeper periodically expires documents of a [Target]. Start and Stop
// bound its background loop; Sweep runs a single pass.
type Sweeper struct {
	target     Target
	interval   time.Duration
	timeGetter domain.TimeGetter
	logger     *zap.Logger
	metrics    *metrics.Collector

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewSweeper returns a stopped sweeper over target.
func NewSweeper(target Target, opts ...Option) *Sweeper {
	s := Sweeper{target: target, interval: DefaultInterval}
	for _, opt := range opts {
		opt(&s)
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if s.timeGetter == nil {
		s.timeGetter = timegetter.NewTimeGetter()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return &s
}

// Start launches the background loop. The loop ends when ctx is done or
// Stop is called. Starting a running sweeper does nothing.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(ctx, s.stop, s.done)
	s.logger.Debug("ttl sweeper started", zap.Duration("interval", s.interval))
}

// Stop ends the background loop, interrupting a sweep in progress between
// two indexes, and waits for the loop to exit or for ctx to be done.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	close(stop)
	select {
	case <-done:
		s.logger.Debug("ttl sweeper stopped")
		return nil
	case <-ctx.Done():
		return domain.NewErrCancelled(ctx)
	}
}

// Running reports whether the background loop is active.
func (s *Sweeper) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done != nil
}

func (s *Sweeper) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// a stop request cancels a sweep in progress between collections
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-ticker.C:
			// failures are logged by Sweep and retried on the next tick
			_, _ = s.Sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Sweep runs one pass over every TTL index and returns the number of
// deleted documents. A failing index does not stop the pass; cancellation
// does, between two indexes.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	indexes, err := s.target.TTLIndexes(ctx)
	if err != nil {
		s.logger.Warn("ttl sweep failed", zap.Error(err))
		return 0, err
	}

	now := s.timeGetter.GetTime()
	var total int
	var errs []error
	for _, idx := range indexes {
		select {
		case <-ctx.Done():
			return total, domain.NewErrCancelled(ctx)
		default:
		}

		n, err := s.target.Expire(ctx, idx, now.Add(-idx.ExpireAfter))
		total += n
		s.metrics.TTLExpired(idx.Collection, n)
		if err != nil {
			s.logger.Warn("ttl sweep failed",
				zap.String("collection", idx.Collection),
				zap.String("index", idx.Name),
				zap.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		if n > 0 {
			s.logger.Info("expired documents",
				zap.String("collection", idx.Collection),
				zap.String("index", idx.Name),
				zap.Int("count", n),
			)
		}
	}
	return total, errors.Join(errs...)
}
