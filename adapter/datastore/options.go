package datastore

import (
	"time"

	"go.uber.org/zap"

	"github.com/sboesebeck/morphium-sub001/adapter/persistence"
	"github.com/sboesebeck/morphium-sub001/domain"
	"github.com/sboesebeck/morphium-sub001/internal/metrics"
)

// WithIDField sets the identity field of every collection.
func WithIDField(f string) Option {
	return func(dso *Datastore) {
		dso.idField = f
	}
}

// WithDefaultBatchSize sets the cursor batch size used when a query does
// not set one.
func WithDefaultBatchSize(n int) Option {
	return func(dso *Datastore) {
		dso.batchSize = n
	}
}

// WithComparer sets the comparer for value comparison operations.
func WithComparer(c domain.Comparer) Option {
	return func(dso *Datastore) {
		dso.comparer = c
	}
}

// WithHasher sets the hasher used by indexes, groups and distinct values.
func WithHasher(h domain.Hasher) Option {
	return func(dso *Datastore) {
		dso.hasher = h
	}
}

// WithFieldNavigator sets the [domain.FieldNavigator] resolving dotted
// paths.
func WithFieldNavigator(fn domain.FieldNavigator) Option {
	return func(dso *Datastore) {
		dso.fieldNavigator = fn
	}
}

// WithTimeGetter sets the clock used by $currentDate, date expressions and
// TTL expiry.
func WithTimeGetter(t domain.TimeGetter) Option {
	return func(dso *Datastore) {
		dso.timeGetter = t
	}
}

// WithIDGenerator sets the generator of identity values for documents
// inserted without one.
func WithIDGenerator(g domain.IDGenerator) Option {
	return func(dso *Datastore) {
		dso.idGenerator = g
	}
}

// WithDecoder sets the decoder used by cursors and FindOne.
func WithDecoder(d domain.Decoder) Option {
	return func(dso *Datastore) {
		dso.decoder = d
	}
}

// WithPersistence sets the codec of Export and Import.
func WithPersistence(p *persistence.Persistence) Option {
	return func(dso *Datastore) {
		dso.persistence = p
	}
}

// WithRegexCacheSize sets the number of compiled filter patterns kept.
func WithRegexCacheSize(n int) Option {
	return func(dso *Datastore) {
		dso.regexCacheSize = n
	}
}

// WithTTL enables or disables the background TTL sweeper.
func WithTTL(enabled bool) Option {
	return func(dso *Datastore) {
		dso.ttlEnabled = enabled
	}
}

// WithSweepInterval sets the time between two TTL sweeps.
func WithSweepInterval(d time.Duration) Option {
	return func(dso *Datastore) {
		dso.sweepInterval = d
	}
}

// WithLogger sets the logger used when the context carries none.
func WithLogger(l *zap.Logger) Option {
	return func(dso *Datastore) {
		dso.logger = l
	}
}

// WithMetrics sets the collector of operation metrics.
func WithMetrics(m *metrics.Collector) Option {
	return func(dso *Datastore) {
		dso.metrics = m
	}
}

// Option configures datastore behavior through the functional options
// pattern.
type Option func(*Datastore)
