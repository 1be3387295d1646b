// Package morphium provides an in-process, MongoDB-compatible document
// store.
//
// A [Store] holds named collections of documents. It answers MongoDB query
// filters, update documents and aggregation pipelines, keeps single and
// compound indexes with unique, sparse and TTL options, and hands results
// out through batched cursors.
//
// The basic usage starts with creating a new [Store], which can be done by
// calling [New] or, from a YAML configuration file, [Open].
package morphium

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sboesebeck/morphium-sub001/adapter/datastore"
	"github.com/sboesebeck/morphium-sub001/domain"
	"github.com/sboesebeck/morphium-sub001/internal/config"
	"github.com/sboesebeck/morphium-sub001/internal/logger"
	"github.com/sboesebeck/morphium-sub001/internal/metrics"
)

var (
	// ErrMalformed is matched by every [ErrMalformedExpression].
	ErrMalformed = domain.ErrMalformed
	// ErrConstraintViolated is matched by every [ErrConstraintViolation].
	ErrConstraintViolated = domain.ErrConstraintViolated
	// ErrCancelled is returned when an operation is interrupted by its
	// context.
	ErrCancelled = domain.ErrCancelled
	// ErrCursorClosed is returned when trying to perform operations on a
	// closed [Cursor].
	ErrCursorClosed = domain.ErrCursorClosed
	// ErrRewindOutOfBuffer is returned by [Cursor.Back] when rewinding
	// past the current batch.
	ErrRewindOutOfBuffer = domain.ErrRewindOutOfBuffer
	// ErrScanBeforeNext is returned when calling [Cursor.Scan] before
	// calling [Cursor.Next].
	ErrScanBeforeNext = domain.ErrScanBeforeNext
	// ErrNotFound is returned when [Store.FindOne] cannot find any matching
	// result for the given query.
	ErrNotFound = domain.ErrNotFound
	// ErrTargetNil is returned when user provides a nil value as a target
	// to decode data, for example, calling [Store.FindOne].
	ErrTargetNil = domain.ErrTargetNil
	// ErrCannotModifyID is returned when an update would change the _id of
	// a document.
	ErrCannotModifyID = domain.ErrCannotModifyID
	// ErrIndexNotFound is returned when dropping an unknown index.
	ErrIndexNotFound = domain.ErrIndexNotFound
	// ErrStoreClosed is returned by every operation of a closed [Store].
	ErrStoreClosed = domain.ErrStoreClosed
)

// ErrMalformedExpression is returned for invalid filters, updates,
// pipelines, index specifications and documents.
type ErrMalformedExpression = domain.ErrMalformedExpression

// ErrConstraintViolation is returned when a write would duplicate a unique
// index key.
type ErrConstraintViolation = domain.ErrConstraintViolation

// ErrIndexConflict is returned when an index name or key set is already
// used by a different index.
type ErrIndexConflict = domain.ErrIndexConflict

// ErrDocumentType is returned when an user passes a value that cannot be
// converted into a document.
type ErrDocumentType = domain.ErrDocumentType

// ErrDecode is returned by [Cursor.Scan] and [Cursor.All] to wrap third
// party decoding errors.
type ErrDecode = domain.ErrDecode

// Store is an in-process document store. It is safe for concurrent use.
type Store = domain.Store

// Cursor iterates over the results of a find or an aggregation.
type Cursor = domain.Cursor

// Document is an ordered set of fields.
type Document = domain.Document

// Value is a single document value.
type Value = domain.Value

// Command is a resolved request for [Store.Execute].
type Command = domain.Command

// Result is the outcome of a [Command].
type Result = domain.Result

// WriteResult counts the documents affected by an update or delete.
type WriteResult = domain.WriteResult

// IndexDescriptor describes an index.
type IndexDescriptor = domain.IndexDescriptor

// Collation overrides string comparison of an operation.
type Collation = domain.Collation

// Sort is an ordered list of sort keys.
type Sort = domain.Sort

// Config is the YAML configuration read by [Open].
type Config = config.Config

// Option configures a [Store] through the functional options pattern.
type Option = datastore.Option

// New creates a new in-memory [Store] with the provided options:
//
// - [WithIDField]: sets the identity field name.
//
// - [WithDefaultBatchSize]: sets the cursor batch size used when none is
// given.
//
// - [WithRegexCacheSize]: sets the number of compiled regular expressions
// kept by the filter matcher.
//
// - [WithTTL]: enables or disables the background TTL sweeper.
//
// - [WithSweepInterval]: sets the time between two TTL sweeps.
//
// - [WithTimeGetter]: sets the clock used by TTL and date operators.
//
// - [WithLogger]: sets the zap logger.
//
// The TTL sweeper runs until [Store.Close] is called.
func New(options ...Option) Store {
	return datastore.NewDatastore(options...)
}

// Open creates a [Store] configured by the YAML file at path. Metrics, if
// enabled, are registered on the default prometheus registerer. options
// are applied after the configuration.
func Open(path string, options ...Option) (Store, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return FromConfig(cfg, prometheus.DefaultRegisterer, options...)
}

// FromConfig creates a [Store] configured by cfg. Metrics, if enabled, are
// registered on reg. options are applied after the configuration.
func FromConfig(cfg Config, reg prometheus.Registerer, options ...Option) (Store, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log, err := logger.NewLogger(cfg.Logging.Env, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}

	opts := []Option{
		datastore.WithIDField(cfg.Store.IDField),
		datastore.WithDefaultBatchSize(cfg.Store.DefaultBatchSize),
		datastore.WithRegexCacheSize(cfg.Matcher.RegexCacheSize),
		datastore.WithTTL(cfg.TTLEnabled()),
		datastore.WithSweepInterval(cfg.TTL.SweepInterval),
		datastore.WithLogger(log),
	}
	if cfg.Metrics.Enabled {
		m := metrics.NewCollector(cfg.Metrics.Namespace)
		if reg != nil {
			if err := m.Register(reg); err != nil {
				return nil, fmt.Errorf("register metrics: %w", err)
			}
		}
		opts = append(opts, datastore.WithMetrics(m))
	}

	log.Debug("store configured",
		zap.String("id_field", cfg.Store.IDField),
		zap.Bool("ttl", cfg.TTLEnabled()),
		zap.Duration("sweep_interval", cfg.TTL.SweepInterval),
		zap.Bool("metrics", cfg.Metrics.Enabled),
	)
	return New(append(opts, options...)...), nil
}

// ParseConfig reads a YAML configuration, expanding ${VAR} references to
// environment variables.
func ParseConfig(data []byte) (Config, error) {
	return config.Parse(data)
}

// DefaultConfig returns the configuration used when a file leaves every
// setting empty.
func DefaultConfig() Config {
	return config.Default()
}

// NewIndexDescriptor builds an index over keys, a key document such as
// {"a": 1, "b": -1}.
func NewIndexDescriptor(keys any, opts ...domain.IndexOption) (IndexDescriptor, error) {
	return domain.NewIndexDescriptor(keys, opts...)
}

// WithIDField sets the identity field name. It defaults to "_id".
func WithIDField(f string) Option {
	return datastore.WithIDField(f)
}

// WithDefaultBatchSize sets the cursor batch size used when an operation
// gives none.
func WithDefaultBatchSize(n int) Option {
	return datastore.WithDefaultBatchSize(n)
}

// WithRegexCacheSize sets the number of compiled regular expressions kept
// by the filter matcher.
func WithRegexCacheSize(n int) Option {
	return datastore.WithRegexCacheSize(n)
}

// WithTTL enables or disables the background TTL sweeper.
func WithTTL(enabled bool) Option {
	return datastore.WithTTL(enabled)
}

// WithSweepInterval sets the time between two TTL sweeps.
func WithSweepInterval(d time.Duration) Option {
	return datastore.WithSweepInterval(d)
}

// WithTimeGetter sets the clock used by TTL expiry, $currentDate and
// $$NOW.
func WithTimeGetter(t domain.TimeGetter) Option {
	return datastore.WithTimeGetter(t)
}

// WithComparer sets the comparer used when an operation has no collation.
func WithComparer(c domain.Comparer) Option {
	return datastore.WithComparer(c)
}

// WithIDGenerator sets the generator of missing identity values.
func WithIDGenerator(g domain.IDGenerator) Option {
	return datastore.WithIDGenerator(g)
}

// WithDecoder sets the decoder used by cursors and FindOne.
func WithDecoder(d domain.Decoder) Option {
	return datastore.WithDecoder(d)
}

// WithLogger sets the zap logger of the store.
func WithLogger(l *zap.Logger) Option {
	return datastore.WithLogger(l)
}
