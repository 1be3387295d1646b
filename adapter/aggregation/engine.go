package aggregation

import (
	"context"
	"errors"
	"fmt"

	"github.com/sboesebeck/morphium-sub001/adapter/collation"
	"github.com/sboesebeck/morphium-sub001/adapter/comparer"
	"github.com/sboesebeck/morphium-sub001/adapter/expression"
	"github.com/sboesebeck/morphium-sub001/adapter/fieldnavigator"
	"github.com/sboesebeck/morphium-sub001/adapter/hasher"
	"github.com/sboesebeck/morphium-sub001/adapter/matcher"
	"github.com/sboesebeck/morphium-sub001/adapter/projector"
	"github.com/sboesebeck/morphium-sub001/adapter/querier"
	"github.com/sboesebeck/morphium-sub001/adapter/timegetter"
	"github.com/sboesebeck/morphium-sub001/domain"
	"github.com/sboesebeck/morphium-sub001/pkg/uncomparable"
)

// ErrNoCollectionSource is returned by $lookup when the engine cannot read
// other collections.
var ErrNoCollectionSource = errors.New("no collection source configured")

// CollectionSource gives $lookup access to the documents of a collection.
type CollectionSource interface {
	// Snapshot returns the documents of collection in natural order. An
	// absent collection has no documents.
	Snapshot(ctx context.Context, collection string) ([]*domain.Document, error)
}

// Engine executes pipelines. It is safe for concurrent use.
type Engine struct {
	comparer   domain.Comparer
	hasher     domain.Hasher
	fn         domain.FieldNavigator
	timeGetter domain.TimeGetter
	source     CollectionSource
	base       *env
}

// env holds the collation-dependent collaborators of a run.
type env struct {
	comparer  domain.Comparer
	hasher    domain.Hasher
	evaluator *expression.Evaluator
	querier   *querier.Querier
	projector *projector.Projector
}

// NewEngine returns a new [Engine].
func NewEngine(opts ...Option) *Engine {
	e := Engine{}
	for _, opt := range opts {
		opt(&e)
	}
	if e.comparer == nil {
		e.comparer = comparer.NewComparer()
	}
	if e.hasher == nil {
		e.hasher = hasher.NewHasher()
	}
	if e.fn == nil {
		e.fn = fieldnavigator.NewFieldNavigator()
	}
	if e.timeGetter == nil {
		e.timeGetter = timegetter.NewTimeGetter()
	}
	e.base = e.newEnv(e.comparer, e.hasher)
	return &e
}

func (e *Engine) newEnv(c domain.Comparer, h domain.Hasher) *env {
	ev := expression.NewEvaluator(
		expression.WithComparer(c),
		expression.WithHasher(h),
		expression.WithTimeGetter(e.timeGetter),
	)
	proj := projector.NewProjector(
		projector.WithFieldNavigator(e.fn),
		projector.WithEvaluator(ev),
	)
	m := matcher.NewMatcher(
		matcher.WithComparer(c),
		matcher.WithFieldNavigator(e.fn),
		matcher.WithEvaluator(ev),
	)
	q := querier.NewQuerier(
		querier.WithMatcher(m),
		querier.WithComparer(c),
		querier.WithFieldNavigator(e.fn),
		querier.WithProjector(proj),
	)
	return &env{comparer: c, hasher: h, evaluator: ev, querier: q, projector: proj}
}

func (e *Engine) environment(c *domain.Collation) (*env, error) {
	col, err := collation.New(c)
	if err != nil {
		return nil, err
	}
	if col == nil {
		return e.base, nil
	}
	return e.newEnv(
		comparer.NewComparer(comparer.WithCollator(col)),
		hasher.NewHasher(hasher.WithCollator(col)),
	), nil
}

// Aggregate runs p over input and returns the resulting documents. input is
// never modified and the result shares no memory with it.
func (e *Engine) Aggregate(ctx context.Context, input []*domain.Document, p Pipeline) ([]*domain.Document, error) {
	en, err := e.environment(p.Collation)
	if err != nil {
		return nil, err
	}
	docs := input
	for _, s := range p.stages {
		if err := checkCancelled(ctx); err != nil {
			return nil, err
		}
		docs, err = e.run(ctx, en, s, docs)
		if err != nil {
			return nil, fmt.Errorf("stage %s failed: %w", s.kind, err)
		}
		if s.kind == StageCount {
			break
		}
	}
	res := make([]*domain.Document, len(docs))
	for n, d := range docs {
		res[n] = d.Clone()
	}
	return res, nil
}

func checkCancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return domain.NewErrCancelled(ctx)
	default:
		return nil
	}
}

func (e *Engine) run(ctx context.Context, en *env, s Stage, docs []*domain.Document) ([]*domain.Document, error) {
	switch s.kind {
	case StageMatch:
		return e.match(ctx, en, s, docs)
	case StageProject:
		return e.each(ctx, docs, func(d *domain.Document) ([]*domain.Document, error) {
			res, err := en.projector.Project(d, s.projection)
			if err != nil {
				return nil, err
			}
			return []*domain.Document{res}, nil
		})
	case StageGroup:
		return e.group(ctx, en, s.id, s.fields, docs)
	case StageSort:
		return en.querier.Sort(docs, s.sort), nil
	case StageLimit:
		return docs[:min(int64(len(docs)), s.n)], nil
	case StageSkip:
		return docs[min(int64(len(docs)), s.n):], nil
	case StageCount:
		return []*domain.Document{domain.NewDocument(domain.Field{Key: s.field, Value: countValue(len(docs))})}, nil
	case StageUnwind:
		return e.each(ctx, docs, func(d *domain.Document) ([]*domain.Document, error) {
			return e.unwind(d, s.unwind)
		})
	case StageAddFields:
		return e.each(ctx, docs, func(d *domain.Document) ([]*domain.Document, error) {
			return e.addFields(en, d, s.set)
		})
	case StageUnset:
		p, err := en.projector.Exclude(s.unset...)
		if err != nil {
			return nil, err
		}
		return e.each(ctx, docs, func(d *domain.Document) ([]*domain.Document, error) {
			res, err := en.projector.Project(d, p)
			return []*domain.Document{res}, err
		})
	case StageReplaceRoot:
		return e.each(ctx, docs, func(d *domain.Document) ([]*domain.Document, error) {
			v, err := en.evaluator.Evaluate(s.expr, d)
			if err != nil {
				return nil, err
			}
			if !v.IsDocument() {
				return nil, malformed(StageReplaceRoot.String(), "newRoot", "expression must evaluate to an object, got %s", v.Kind())
			}
			return []*domain.Document{v.Doc()}, nil
		})
	case StageLookup:
		return e.lookup(ctx, en, s.lookup, docs)
	case StageSortByCount:
		grouped, err := e.group(ctx, en, s.expr, []GroupField{{
			Field:       "count",
			Accumulator: expression.AccumulatorSpec{Op: "$sum", Arg: expression.Literal(1)},
		}}, docs)
		if err != nil {
			return nil, err
		}
		return en.querier.Sort(grouped, domain.Sort{{Key: "count", Order: -1}}), nil
	}
	return nil, malformed(s.kind.String(), "", "unsupported stage")
}

// each maps every document through f, checking ctx in between.
func (e *Engine) each(ctx context.Context, docs []*domain.Document, f func(*domain.Document) ([]*domain.Document, error)) ([]*domain.Document, error) {
	res := make([]*domain.Document, 0, len(docs))
	for _, d := range docs {
		if err := checkCancelled(ctx); err != nil {
			return nil, err
		}
		out, err := f(d)
		if err != nil {
			return nil, err
		}
		res = append(res, out...)
	}
	return res, nil
}

func (e *Engine) match(ctx context.Context, en *env, s Stage, docs []*domain.Document) ([]*domain.Document, error) {
	res := make([]*domain.Document, 0, len(docs))
	for _, d := range docs {
		if err := checkCancelled(ctx); err != nil {
			return nil, err
		}
		ok, err := en.querier.Match(d, s.filter)
		if err != nil {
			return nil, err
		}
		if ok {
			res = append(res, d)
		}
	}
	return res, nil
}

type bucket struct {
	id   domain.Value
	accs []expression.Accumulator
}

func (e *Engine) group(ctx context.Context, en *env, id expression.Expr, fields []GroupField, docs []*domain.Document) ([]*domain.Document, error) {
	buckets := uncomparable.New[*bucket](en.hasher, en.comparer)
	for _, d := range docs {
		if err := checkCancelled(ctx); err != nil {
			return nil, err
		}
		key, err := en.evaluator.Evaluate(id, d)
		if err != nil {
			return nil, err
		}
		if key.IsMissing() {
			key = domain.Null()
		}
		b, ok := buckets.Get(key)
		if !ok {
			b = &bucket{id: key, accs: make([]expression.Accumulator, len(fields))}
			for n, f := range fields {
				b.accs[n] = en.evaluator.NewAccumulator(f.Accumulator)
			}
			buckets.Set(key, b)
		}
		for n, f := range fields {
			v, err := en.evaluator.Evaluate(f.Accumulator.Arg, d)
			if err != nil {
				return nil, err
			}
			b.accs[n].Add(v)
		}
	}

	res := make([]*domain.Document, 0, buckets.Len())
	for b := range buckets.Values() {
		out := domain.NewDocument(domain.Field{Key: "_id", Value: b.id})
		for n, f := range fields {
			out.Set(f.Field, b.accs[n].Result())
		}
		res = append(res, out)
	}
	return res, nil
}

func (e *Engine) unwind(d *domain.Document, o UnwindOptions) ([]*domain.Document, error) {
	addr, err := e.fn.GetAddress(o.Path)
	if err != nil {
		return nil, err
	}
	v := e.fn.GetValue(d, addr...)
	if !v.IsArray() {
		// scalars pass through as a single element
		if v.IsNullish() && !o.PreserveNullAndEmptyArrays {
			return nil, nil
		}
		out := d
		if o.IncludeArrayIndex != "" {
			out = d.Clone()
			out.Set(o.IncludeArrayIndex, domain.Null())
		}
		return []*domain.Document{out}, nil
	}
	items := v.Array()
	if len(items) == 0 {
		if !o.PreserveNullAndEmptyArrays {
			return nil, nil
		}
		out := d.Clone()
		e.fn.UnsetField(out, addr...)
		if o.IncludeArrayIndex != "" {
			out.Set(o.IncludeArrayIndex, domain.Null())
		}
		return []*domain.Document{out}, nil
	}
	res := make([]*domain.Document, 0, len(items))
	for n, item := range items {
		out := d.Clone()
		if err := e.fn.SetField(out, item.Clone(), addr...); err != nil {
			return nil, err
		}
		if o.IncludeArrayIndex != "" {
			out.Set(o.IncludeArrayIndex, domain.Int64(int64(n)))
		}
		res = append(res, out)
	}
	return res, nil
}

func (e *Engine) addFields(en *env, d *domain.Document, fields []expression.ObjectField) ([]*domain.Document, error) {
	out := d.Clone()
	for _, f := range fields {
		v, err := en.evaluator.Evaluate(f.Expr, d)
		if err != nil {
			return nil, err
		}
		addr, err := e.fn.GetAddress(f.Key)
		if err != nil {
			return nil, err
		}
		if v.IsMissing() {
			e.fn.UnsetField(out, addr...)
			continue
		}
		if err := e.fn.SetField(out, v, addr...); err != nil {
			return nil, err
		}
	}
	return []*domain.Document{out}, nil
}

func (e *Engine) lookup(ctx context.Context, en *env, o LookupOptions, docs []*domain.Document) ([]*domain.Document, error) {
	if e.source == nil {
		return nil, ErrNoCollectionSource
	}
	foreign, err := e.source.Snapshot(ctx, o.From)
	if err != nil {
		return nil, err
	}
	localAddr, err := e.fn.GetAddress(o.LocalField)
	if err != nil {
		return nil, err
	}
	foreignAddr, err := e.fn.GetAddress(o.ForeignField)
	if err != nil {
		return nil, err
	}
	asAddr, err := e.fn.GetAddress(o.As)
	if err != nil {
		return nil, err
	}

	return e.each(ctx, docs, func(d *domain.Document) ([]*domain.Document, error) {
		locals := e.joinValues(d, localAddr)
		matches := make([]domain.Value, 0)
		for _, f := range foreign {
			if e.joins(en, locals, e.joinValues(f, foreignAddr)) {
				matches = append(matches, domain.Doc(f.Clone()))
			}
		}
		out := d.Clone()
		if err := e.fn.SetField(out, domain.Array(matches...), asAddr...); err != nil {
			return nil, err
		}
		return []*domain.Document{out}, nil
	})
}

// joinValues returns the values of addr in d with arrays expanded into
// their elements. A missing field joins as null.
func (e *Engine) joinValues(d *domain.Document, addr []string) []domain.Value {
	values, _ := e.fn.GetField(d, addr...)
	res := make([]domain.Value, 0, len(values))
	for _, v := range values {
		if v.IsArray() && len(v.Array()) > 0 {
			res = append(res, v.Array()...)
			continue
		}
		res = append(res, v)
	}
	return res
}

func (e *Engine) joins(en *env, locals, foreigns []domain.Value) bool {
	for _, l := range locals {
		for _, f := range foreigns {
			if l.IsNullish() && f.IsNullish() || en.comparer.Equal(l, f) {
				return true
			}
		}
	}
	return false
}

func countValue(n int) domain.Value {
	if n <= 1<<31-1 {
		return domain.Int32(int32(n))
	}
	return domain.Int64(int64(n))
}
