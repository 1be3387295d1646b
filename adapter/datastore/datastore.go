// Package datastore contains the default [domain.Store] implementation: an
// in-process, MongoDB-like document store made of named collections.
package datastore

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sboesebeck/morphium-sub001/adapter/aggregation"
	"github.com/sboesebeck/morphium-sub001/adapter/collation"
	"github.com/sboesebeck/morphium-sub001/adapter/comparer"
	"github.com/sboesebeck/morphium-sub001/adapter/cursor"
	"github.com/sboesebeck/morphium-sub001/adapter/decoder"
	"github.com/sboesebeck/morphium-sub001/adapter/expression"
	"github.com/sboesebeck/morphium-sub001/adapter/fieldnavigator"
	"github.com/sboesebeck/morphium-sub001/adapter/hasher"
	"github.com/sboesebeck/morphium-sub001/adapter/idgenerator"
	"github.com/sboesebeck/morphium-sub001/adapter/matcher"
	"github.com/sboesebeck/morphium-sub001/adapter/modifier"
	"github.com/sboesebeck/morphium-sub001/adapter/persistence"
	"github.com/sboesebeck/morphium-sub001/adapter/planner"
	"github.com/sboesebeck/morphium-sub001/adapter/projector"
	"github.com/sboesebeck/morphium-sub001/adapter/querier"
	"github.com/sboesebeck/morphium-sub001/adapter/timegetter"
	"github.com/sboesebeck/morphium-sub001/adapter/ttl"
	"github.com/sboesebeck/morphium-sub001/domain"
	"github.com/sboesebeck/morphium-sub001/internal/logger"
	"github.com/sboesebeck/morphium-sub001/internal/metrics"
	"github.com/sboesebeck/morphium-sub001/pkg/ctxsync"
)

// Datastore implements domain.Store. Collections are locked one by one:
// reads share a collection, writes and structural changes hold it
// exclusively. Stored documents are never modified in place, so a document
// handed to a reader stays consistent after the lock is released.
type Datastore struct {
	idField        string
	batchSize      int
	regexCacheSize int
	ttlEnabled     bool
	sweepInterval  time.Duration

	comparer       domain.Comparer
	hasher         domain.Hasher
	fieldNavigator domain.FieldNavigator
	timeGetter     domain.TimeGetter
	idGenerator    domain.IDGenerator
	decoder        domain.Decoder
	matcher        *matcher.Matcher
	projector      *projector.Projector
	querier        *querier.Querier
	modifier       *modifier.Modifier
	planner        *planner.Planner
	engine         *aggregation.Engine
	persistence    *persistence.Persistence
	sweeper        *ttl.Sweeper
	logger         *zap.Logger
	metrics        *metrics.Collector

	// mu guards collections. It is never acquired while holding the lock
	// of a collection.
	mu          *ctxsync.RWMutex
	collections map[string]*collection
	closed      atomic.Bool
}

// NewDatastore returns a new implementation of domain.Store. Unless
// disabled with [WithTTL], the TTL sweeper starts right away and runs until
// [Datastore.Close].
func NewDatastore(options ...Option) *Datastore {
	d := Datastore{
		idField:    domain.DefaultIDField,
		batchSize:  cursor.DefaultBatchSize,
		ttlEnabled: true,
	}
	for _, option := range options {
		option(&d)
	}

	if d.idField == "" {
		d.idField = domain.DefaultIDField
	}
	if d.comparer == nil {
		d.comparer = comparer.NewComparer()
	}
	if d.hasher == nil {
		d.hasher = hasher.NewHasher()
	}
	if d.fieldNavigator == nil {
		d.fieldNavigator = fieldnavigator.NewFieldNavigator()
	}
	if d.timeGetter == nil {
		d.timeGetter = timegetter.NewTimeGetter()
	}
	if d.idGenerator == nil {
		d.idGenerator = idgenerator.NewIDGenerator()
	}
	if d.decoder == nil {
		d.decoder = decoder.NewDecoder()
	}
	if d.persistence == nil {
		d.persistence = persistence.NewPersistence()
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}

	ev := expression.NewEvaluator(
		expression.WithComparer(d.comparer),
		expression.WithHasher(d.hasher),
		expression.WithTimeGetter(d.timeGetter),
	)
	matcherOptions := []matcher.Option{
		matcher.WithComparer(d.comparer),
		matcher.WithFieldNavigator(d.fieldNavigator),
		matcher.WithEvaluator(ev),
	}
	if d.regexCacheSize > 0 {
		matcherOptions = append(matcherOptions, matcher.WithRegexCacheSize(d.regexCacheSize))
	}
	d.matcher = matcher.NewMatcher(matcherOptions...)
	d.projector = projector.NewProjector(
		projector.WithFieldNavigator(d.fieldNavigator),
		projector.WithEvaluator(ev),
		projector.WithIDField(d.idField),
	)
	d.querier = querier.NewQuerier(
		querier.WithMatcher(d.matcher),
		querier.WithComparer(d.comparer),
		querier.WithFieldNavigator(d.fieldNavigator),
		querier.WithProjector(d.projector),
	)
	d.modifier = modifier.NewModifier(
		modifier.WithComparer(d.comparer),
		modifier.WithFieldNavigator(d.fieldNavigator),
		modifier.WithMatcher(d.matcher),
		modifier.WithTimeGetter(d.timeGetter),
		modifier.WithIDField(d.idField),
	)
	d.planner = planner.NewPlanner()
	d.engine = aggregation.NewEngine(
		aggregation.WithComparer(d.comparer),
		aggregation.WithHasher(d.hasher),
		aggregation.WithFieldNavigator(d.fieldNavigator),
		aggregation.WithTimeGetter(d.timeGetter),
		aggregation.WithCollectionSource(&d),
	)
	d.sweeper = ttl.NewSweeper(&d,
		ttl.WithInterval(d.sweepInterval),
		ttl.WithTimeGetter(d.timeGetter),
		ttl.WithLogger(d.logger),
		ttl.WithMetrics(d.metrics),
	)

	d.mu = ctxsync.NewRWMutex()
	d.collections = make(map[string]*collection)

	if d.ttlEnabled {
		d.sweeper.Start(context.Background())
	}
	return &d
}

func (d *Datastore) log(ctx context.Context) *zap.Logger {
	return logger.FromContext(ctx, d.logger)
}

// observe records the outcome of an operation. It is meant to be deferred
// with a pointer to the named error result.
func (d *Datastore) observe(collection, op string, start time.Time, err *error) {
	status := metrics.StatusOK
	switch {
	case *err == nil:
	case errors.Is(*err, domain.ErrCancelled):
		status = metrics.StatusCancelled
	default:
		status = metrics.StatusError
	}
	d.metrics.ObserveOperation(collection, op, status, start)
}

// annotate names the collection in malformed expression errors.
func annotate(err error, collection string) error {
	if e, ok := err.(domain.ErrMalformedExpression); ok && e.Collection == "" {
		e.Collection = collection
		return e
	}
	return err
}

func checkCollectionName(name string) error {
	if name == "" || strings.ContainsAny(name, "$\x00") {
		return domain.ErrMalformedExpression{Kind: "collection", Collection: name, Reason: "invalid collection name"}
	}
	return nil
}

// lookup returns the named collection, creating it if create is set. A
// missing collection is nil when create is not set.
func (d *Datastore) lookup(ctx context.Context, name string, create bool) (*collection, error) {
	if d.closed.Load() {
		return nil, domain.ErrStoreClosed
	}
	if err := checkCollectionName(name); err != nil {
		return nil, err
	}

	if err := d.mu.RLockWithContext(ctx); err != nil {
		return nil, domain.NewErrCancelled(ctx)
	}
	c := d.collections[name]
	d.mu.RUnlock()
	if c != nil || !create {
		return c, nil
	}

	if err := d.mu.LockWithContext(ctx); err != nil {
		return nil, domain.NewErrCancelled(ctx)
	}
	defer d.mu.Unlock()
	if c = d.collections[name]; c != nil {
		return c, nil
	}
	c, err := d.newCollection(name)
	if err != nil {
		return nil, err
	}
	d.collections[name] = c
	d.log(ctx).Debug("collection created", zap.String("collection", name))
	return c, nil
}

// acquire returns the named collection locked for writing or reading. A
// missing collection is created if create is set; otherwise nil is
// returned and no lock is held.
func (d *Datastore) acquire(ctx context.Context, name string, write, create bool) (*collection, error) {
	for {
		c, err := d.lookup(ctx, name, create)
		if err != nil || c == nil {
			return nil, err
		}
		if err := c.lock(ctx, write); err != nil {
			return nil, err
		}
		if !c.dropped {
			return c, nil
		}
		// dropped while waiting for the lock
		c.unlock(write)
	}
}

// querierFor returns the querier comparing strings under c.
func (d *Datastore) querierFor(c *domain.Collation) (*querier.Querier, error) {
	col, err := collation.New(c)
	if err != nil {
		return nil, err
	}
	if col == nil {
		return d.querier, nil
	}
	return d.querier.Using(comparer.NewComparer(comparer.WithCollator(col))), nil
}

// Snapshot returns the documents of a collection in natural order. It
// feeds $lookup.
func (d *Datastore) Snapshot(ctx context.Context, name string) ([]*domain.Document, error) {
	c, err := d.acquire(ctx, name, false, false)
	if err != nil || c == nil {
		return nil, err
	}
	defer c.unlock(false)
	return slices.Clone(c.docs), nil
}

// CreateCollection implements domain.Store.
func (d *Datastore) CreateCollection(ctx context.Context, name string) error {
	_, err := d.lookup(ctx, name, true)
	return err
}

// DropCollection implements domain.Store.
func (d *Datastore) DropCollection(ctx context.Context, name string) error {
	if d.closed.Load() {
		return domain.ErrStoreClosed
	}
	if err := d.mu.LockWithContext(ctx); err != nil {
		return domain.NewErrCancelled(ctx)
	}
	defer d.mu.Unlock()

	c, ok := d.collections[name]
	if !ok {
		return nil
	}
	if err := c.lock(ctx, true); err != nil {
		return err
	}
	c.dropped = true
	c.docs, c.seq, c.indexes = nil, nil, nil
	c.unlock(true)
	delete(d.collections, name)
	d.log(ctx).Debug("collection dropped", zap.String("collection", name))
	return nil
}

// ListCollections implements domain.Store.
func (d *Datastore) ListCollections(ctx context.Context) ([]string, error) {
	if d.closed.Load() {
		return nil, domain.ErrStoreClosed
	}
	if err := d.mu.RLockWithContext(ctx); err != nil {
		return nil, domain.NewErrCancelled(ctx)
	}
	defer d.mu.RUnlock()
	return slices.Sorted(maps.Keys(d.collections)), nil
}

// Sweep runs one TTL pass immediately, whether or not the background
// sweeper is enabled.
func (d *Datastore) Sweep(ctx context.Context) (int, error) {
	if d.closed.Load() {
		return 0, domain.ErrStoreClosed
	}
	return d.sweeper.Sweep(ctx)
}

// Close implements domain.Store. It stops the TTL sweeper; every later
// call returns [domain.ErrStoreClosed].
func (d *Datastore) Close(ctx context.Context) error {
	if !d.closed.CompareAndSwap(false, true) {
		return domain.ErrStoreClosed
	}
	return d.sweeper.Stop(ctx)
}
