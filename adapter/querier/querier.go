// Package querier runs find queries over a sequence of documents: filter,
// sort, skip, limit and projection, in that order.
package querier

import (
	"context"
	"fmt"
	"iter"
	"slices"

	"github.com/sboesebeck/morphium-sub001/adapter/comparer"
	"github.com/sboesebeck/morphium-sub001/adapter/fieldnavigator"
	"github.com/sboesebeck/morphium-sub001/adapter/matcher"
	"github.com/sboesebeck/morphium-sub001/adapter/projector"
	"github.com/sboesebeck/morphium-sub001/domain"
)

// Query describes a find over a collection.
type Query struct {
	Filter     matcher.Filter
	Sort       domain.Sort
	Skip       int64
	Limit      int64
	Projection projector.Projection
}

// Querier executes a [Query].
type Querier struct {
	mtchr *matcher.Matcher
	cmpr  domain.Comparer
	fn    domain.FieldNavigator
	proj  *projector.Projector
}

// NewQuerier returns a new [Querier].
func NewQuerier(opts ...Option) *Querier {
	q := Querier{}
	for _, opt := range opts {
		opt(&q)
	}
	if q.cmpr == nil {
		q.cmpr = comparer.NewComparer()
	}
	if q.fn == nil {
		q.fn = fieldnavigator.NewFieldNavigator()
	}
	if q.proj == nil {
		q.proj = projector.NewProjector(projector.WithFieldNavigator(q.fn))
	}
	if q.mtchr == nil {
		q.mtchr = matcher.NewMatcher(
			matcher.WithComparer(q.cmpr),
			matcher.WithFieldNavigator(q.fn),
		)
	}
	return &q
}

// Using returns a copy of q that compares values with c, for filters and
// sorts alike.
func (q *Querier) Using(c domain.Comparer) *Querier {
	cp := *q
	cp.cmpr = c
	cp.mtchr = q.mtchr.Using(c)
	return &cp
}

// Matcher returns the matcher used to filter documents.
func (q *Querier) Matcher() *matcher.Matcher { return q.mtchr }

// Query runs qry over data, which is read in natural order. Results are
// copies and can be handed out freely.
func (q *Querier) Query(ctx context.Context, data iter.Seq[*domain.Document], qry Query) ([]*domain.Document, error) {
	if data == nil {
		return make([]*domain.Document, 0), nil
	}

	res, err := q.filter(ctx, data, qry)
	if err != nil {
		return nil, err
	}

	if qry.Sort != nil {
		res = q.skipAndLimit(q.Sort(res, qry.Sort), qry.Skip, qry.Limit)
	}

	res, err = q.proj.ProjectAll(res, qry.Projection)
	if err != nil {
		return nil, fmt.Errorf("projecting: %w", err)
	}
	return res, nil
}

// Match reports whether doc matches f.
func (q *Querier) Match(doc *domain.Document, f matcher.Filter) (bool, error) {
	return q.mtchr.Match(doc, f)
}

func (q *Querier) filter(ctx context.Context, data iter.Seq[*domain.Document], qry Query) ([]*domain.Document, error) {
	var skipped int64
	res := make([]*domain.Document, 0, 16)

	for doc := range data {
		select {
		case <-ctx.Done():
			return nil, domain.NewErrCancelled(ctx)
		default:
		}
		matches, err := q.mtchr.Match(doc, qry.Filter)
		if err != nil {
			return nil, fmt.Errorf("matching document: %w", err)
		}
		if !matches {
			continue
		}
		if qry.Sort == nil {
			if skipped < qry.Skip {
				skipped++
				continue
			}
			if qry.Limit > 0 && int64(len(res)) == qry.Limit {
				break
			}
		}
		res = append(res, doc)
	}
	return res, nil
}

// Sort returns docs stably sorted by s. An array field sorts by its
// smallest element in ascending order and by its largest in descending
// order; missing fields sort as null.
func (q *Querier) Sort(docs []*domain.Document, s domain.Sort) []*domain.Document {
	res := slices.Clone(docs)
	if len(s) == 0 {
		return res
	}
	addrs := make([][]string, len(s))
	for n, crit := range s {
		addrs[n], _ = q.fn.GetAddress(crit.Key)
	}
	slices.SortStableFunc(res, func(a, b *domain.Document) int {
		for n, crit := range s {
			ka := q.sortKey(a, addrs[n], crit.Order)
			kb := q.sortKey(b, addrs[n], crit.Order)
			if comp := q.cmpr.Compare(ka, kb); comp != 0 {
				return comp * crit.Order
			}
		}
		return 0
	})
	return res
}

func (q *Querier) sortKey(doc *domain.Document, addr []string, order int) domain.Value {
	values, expanded := q.fn.GetField(doc, addr...)
	var items []domain.Value
	for _, v := range values {
		if v.IsArray() && len(v.Array()) > 0 {
			items = append(items, v.Array()...)
		} else {
			items = append(items, v)
		}
	}
	if !expanded && len(items) == 1 {
		return items[0]
	}
	best := items[0]
	for _, v := range items[1:] {
		if c := q.cmpr.Compare(v, best); c*order < 0 {
			best = v
		}
	}
	return best
}

func (q *Querier) skipAndLimit(data []*domain.Document, skip, limit int64) []*domain.Document {

	length := int64(len(data))

	skip = max(skip, 0)      // skip cannot be negative
	skip = min(skip, length) // cannot skip more than length

	end := length
	if limit > 0 {
		end = min(skip+limit, length)
	}

	return data[skip:end]
}
