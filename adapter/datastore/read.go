package datastore

import (
	"context"
	"slices"
	"time"

	"github.com/sboesebeck/morphium-sub001/adapter/aggregation"
	"github.com/sboesebeck/morphium-sub001/adapter/cursor"
	"github.com/sboesebeck/morphium-sub001/adapter/matcher"
	"github.com/sboesebeck/morphium-sub001/adapter/projector"
	"github.com/sboesebeck/morphium-sub001/adapter/querier"
	"github.com/sboesebeck/morphium-sub001/domain"
	"github.com/sboesebeck/morphium-sub001/internal/metrics"
	"github.com/sboesebeck/morphium-sub001/pkg/uncomparable"
)

// queryProducer filters a snapshot of candidates lazily, one batch at a
// time.
type queryProducer struct {
	querier    *querier.Querier
	projector  *projector.Projector
	filter     matcher.Filter
	projection projector.Projection
	docs       []*domain.Document
	skip       int64
	limit      int64
	returned   int64
}

// Fetch implements domain.BatchProducer.
func (p *queryProducer) Fetch(ctx context.Context, n int) ([]*domain.Document, error) {
	batch := make([]*domain.Document, 0, n)
	for len(p.docs) > 0 && len(batch) < n {
		if p.limit > 0 && p.returned >= p.limit {
			p.docs = nil
			break
		}
		select {
		case <-ctx.Done():
			return nil, domain.NewErrCancelled(ctx)
		default:
		}

		doc := p.docs[0]
		p.docs = p.docs[1:]
		ok, err := p.querier.Match(doc, p.filter)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if p.skip > 0 {
			p.skip--
			continue
		}
		projected, err := p.projector.Project(doc, p.projection)
		if err != nil {
			return nil, err
		}
		batch = append(batch, projected)
		p.returned++
	}
	return batch, nil
}

// meteredProducer counts the non-empty batches of a producer.
type meteredProducer struct {
	domain.BatchProducer
	metrics *metrics.Collector
}

func (p meteredProducer) Fetch(ctx context.Context, n int) ([]*domain.Document, error) {
	batch, err := p.BatchProducer.Fetch(ctx, n)
	if len(batch) > 0 {
		p.metrics.CursorBatch()
	}
	return batch, err
}

func (d *Datastore) newCursor(ctx context.Context, producer domain.BatchProducer, batchSize int) (domain.Cursor, error) {
	if batchSize <= 0 {
		batchSize = d.batchSize
	}
	cur, err := cursor.NewCursor(ctx,
		meteredProducer{BatchProducer: producer, metrics: d.metrics},
		cursor.WithBatchSize(batchSize),
		cursor.WithDecoder(d.decoder),
	)
	if err != nil {
		return nil, err
	}
	return cur, nil
}

// Find implements domain.Store. Candidates are chosen under the
// collection's read lock; filtering happens as the cursor is read. A
// sorted query is evaluated at once.
func (d *Datastore) Find(ctx context.Context, name string, filter any, options ...domain.FindOption) (cur domain.Cursor, err error) {
	defer d.observe(name, "find", time.Now(), &err)

	var opts domain.FindOptions
	for _, option := range options {
		option(&opts)
	}

	f, err := d.matcher.Parse(filter)
	if err != nil {
		return nil, annotate(err, name)
	}
	proj, err := d.projector.Parse(opts.Projection)
	if err != nil {
		return nil, annotate(err, name)
	}
	q, err := d.querierFor(opts.Collation)
	if err != nil {
		return nil, err
	}

	docs, err := d.snapshot(ctx, name, f, opts.Collation)
	if err != nil {
		return nil, err
	}

	if len(opts.Sort) > 0 {
		res, err := q.Query(ctx, slices.Values(docs), querier.Query{
			Filter:     f,
			Sort:       opts.Sort,
			Skip:       opts.Skip,
			Limit:      opts.Limit,
			Projection: proj,
		})
		if err != nil {
			return nil, annotate(err, name)
		}
		return d.newCursor(ctx, cursor.NewSliceProducer(res), opts.BatchSize)
	}

	return d.newCursor(ctx, &queryProducer{
		querier:    q,
		projector:  d.projector,
		filter:     f,
		projection: proj,
		docs:       docs,
		skip:       max(opts.Skip, 0),
		limit:      opts.Limit,
	}, opts.BatchSize)
}

// snapshot returns the candidates of f in natural order. A missing
// collection has none.
func (d *Datastore) snapshot(ctx context.Context, name string, f matcher.Filter, col *domain.Collation) ([]*domain.Document, error) {
	c, err := d.acquire(ctx, name, false, false)
	if err != nil || c == nil {
		return nil, err
	}
	defer c.unlock(false)
	return d.candidates(ctx, c, f, col)
}

// FindOne implements domain.Store. It returns [domain.ErrNotFound] when
// nothing matches.
func (d *Datastore) FindOne(ctx context.Context, name string, filter any, target any, options ...domain.FindOption) error {
	options = append(options, domain.WithFindLimit(1), domain.WithFindBatchSize(1))
	cur, err := d.Find(ctx, name, filter, options...)
	if err != nil {
		return err
	}
	defer cur.Close()
	if _, ok := cur.Next(); !ok {
		if err := cur.Err(); err != nil {
			return err
		}
		return domain.ErrNotFound
	}
	return cur.Scan(target)
}

// Count implements domain.Store. Skip and limit apply to the count.
func (d *Datastore) Count(ctx context.Context, name string, filter any, options ...domain.FindOption) (n int64, err error) {
	defer d.observe(name, "count", time.Now(), &err)

	var opts domain.FindOptions
	for _, option := range options {
		option(&opts)
	}

	f, err := d.matcher.Parse(filter)
	if err != nil {
		return 0, annotate(err, name)
	}
	q, err := d.querierFor(opts.Collation)
	if err != nil {
		return 0, err
	}

	docs, err := d.snapshot(ctx, name, f, opts.Collation)
	if err != nil {
		return 0, err
	}
	for _, doc := range docs {
		select {
		case <-ctx.Done():
			return 0, domain.NewErrCancelled(ctx)
		default:
		}
		ok, err := q.Match(doc, f)
		if err != nil {
			return 0, annotate(err, name)
		}
		if ok {
			n++
		}
	}

	n = max(n-max(opts.Skip, 0), 0)
	if opts.Limit > 0 {
		n = min(n, opts.Limit)
	}
	return n, nil
}

// Distinct implements domain.Store. Array values contribute their
// elements. Values are returned in the order they are first met.
func (d *Datastore) Distinct(ctx context.Context, name string, field string, filter any) (values []domain.Value, err error) {
	defer d.observe(name, "distinct", time.Now(), &err)

	f, err := d.matcher.Parse(filter)
	if err != nil {
		return nil, annotate(err, name)
	}
	addr, err := d.fieldNavigator.GetAddress(field)
	if err != nil {
		return nil, err
	}

	docs, err := d.snapshot(ctx, name, f, nil)
	if err != nil {
		return nil, err
	}
	seen := uncomparable.New[struct{}](d.hasher, d.comparer)
	for _, doc := range docs {
		select {
		case <-ctx.Done():
			return nil, domain.NewErrCancelled(ctx)
		default:
		}
		ok, err := d.querier.Match(doc, f)
		if err != nil {
			return nil, annotate(err, name)
		}
		if !ok {
			continue
		}
		found, _ := d.fieldNavigator.GetField(doc, addr...)
		for _, v := range found {
			items := []domain.Value{v}
			if v.IsArray() {
				items = v.Array()
			}
			for _, item := range items {
				if !item.IsMissing() && !seen.Has(item) {
					seen.Set(item, struct{}{})
					values = append(values, item.Clone())
				}
			}
		}
	}
	return values, nil
}

// Aggregate implements domain.Store. The pipeline runs over a snapshot of
// the collection taken under its read lock.
func (d *Datastore) Aggregate(ctx context.Context, name string, pipeline any, options ...domain.AggregateOption) (cur domain.Cursor, err error) {
	defer d.observe(name, "aggregate", time.Now(), &err)

	var opts domain.AggregateOptions
	for _, option := range options {
		option(&opts)
	}

	p, err := aggregation.ParseAny(pipeline)
	if err != nil {
		return nil, annotate(err, name)
	}
	if opts.Collation != nil {
		p.Collation = opts.Collation
	}
	if opts.Comment != "" {
		p.Comment = opts.Comment
	}

	input, err := d.Snapshot(ctx, name)
	if err != nil {
		return nil, err
	}
	res, err := d.engine.Aggregate(ctx, input, p)
	if err != nil {
		return nil, err
	}
	return d.newCursor(ctx, cursor.NewSliceProducer(res), opts.BatchSize)
}
