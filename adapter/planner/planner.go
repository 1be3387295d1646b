// Package planner picks the index that narrows a query down before the
// matcher runs over the remaining candidates.
package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/sboesebeck/morphium-sub001/adapter/index"
	"github.com/sboesebeck/morphium-sub001/adapter/matcher"
	"github.com/sboesebeck/morphium-sub001/domain"
)

// Strategy is how a [Plan] reads its candidates.
type Strategy uint8

// Plan strategies, from the least to the most selective.
const (
	FullScan Strategy = iota
	Range
	Keys
	Point
)

var strategyNames = [...]string{
	FullScan: "COLLSCAN",
	Range:    "IXSCAN range",
	Keys:     "IXSCAN keys",
	Point:    "IXSCAN point",
}

// Plan is the outcome of planning a filter. Candidates are a superset of
// the matching documents; they must still go through the matcher.
type Plan struct {
	Strategy Strategy
	Index    *index.Index
	Field    string
	Values   []domain.Value
	Lower    *index.Bound
	Upper    *index.Bound
}

// IsFullScan reports whether no index applies.
func (p Plan) IsFullScan() bool { return p.Strategy == FullScan }

// String describes the plan, such as "IXSCAN point a_1".
func (p Plan) String() string {
	if p.Index == nil {
		return strategyNames[FullScan]
	}
	return strategyNames[p.Strategy] + " " + p.Index.Name()
}

// Candidates reads the candidate documents from the index, each one once.
// A full scan plan has no candidates of its own and returns nil.
func (p Plan) Candidates(ctx context.Context) ([]*domain.Document, error) {
	switch p.Strategy {
	case Point, Keys:
		return p.Index.GetMatching(p.Values...)
	case Range:
		seq, err := p.Index.GetBetweenBounds(ctx, p.Lower, p.Upper)
		if err != nil {
			return nil, err
		}
		seen := make(map[*domain.Document]struct{})
		var res []*domain.Document
		for d, err := range seq {
			if err != nil {
				return nil, err
			}
			if _, ok := seen[d]; ok {
				continue
			}
			seen[d] = struct{}{}
			res = append(res, d)
		}
		return res, nil
	}
	return nil, nil
}

// Planner chooses among the indexes of a collection.
type Planner struct{}

// NewPlanner returns a new [Planner].
func NewPlanner() *Planner { return &Planner{} }

// Plan picks the most selective usable index for f: a point lookup
// beats a set of keys, which beats a range. Ties go to the index listed
// first. Only the conjunctive leaves of f are considered. Queries under a
// collation always scan, since indexes order strings by code point.
func (pl *Planner) Plan(f matcher.Filter, indexes []*index.Index, collation *domain.Collation) Plan {
	if collation != nil || f.IsEmpty() {
		return Plan{}
	}

	byField := make(map[string][]matcher.Condition)
	for _, c := range f.Conditions() {
		byField[c.Field] = append(byField[c.Field], c)
	}

	best := Plan{}
	for _, idx := range indexes {
		p, ok := pl.planIndex(idx, byField)
		if ok && p.Strategy > best.Strategy {
			best = p
		}
	}
	return best
}

func (pl *Planner) planIndex(idx *index.Index, byField map[string][]matcher.Condition) (Plan, bool) {
	desc := idx.Descriptor()
	for _, k := range desc.Keys {
		if k.Kind != "" {
			return Plan{}, false
		}
	}
	if idx.IsMultiField() {
		return pl.planCompound(idx, byField)
	}

	field := desc.Keys[0].Field
	p := Plan{Index: idx, Field: field}
	for _, c := range byField[field] {
		switch c.Op {
		case matcher.Eq:
			if usable(c.Operand, desc.Sparse) {
				return Plan{Strategy: Point, Index: idx, Field: field, Values: []domain.Value{c.Operand}}, true
			}
		case matcher.In:
			if p.Strategy < Keys && usableAll(c.Operand.Array(), desc.Sparse) {
				p.Strategy = Keys
				p.Values = c.Operand.Array()
				p.Lower, p.Upper = nil, nil
			}
		case matcher.Gt, matcher.Gte:
			if p.Strategy <= Range && rangeOperand(c.Operand) && (p.Upper == nil || !idx.IsMultikey()) {
				p.Strategy = Range
				p.Lower = &index.Bound{Value: c.Operand, Inclusive: c.Op == matcher.Gte}
			}
		case matcher.Lt, matcher.Lte:
			if p.Strategy <= Range && rangeOperand(c.Operand) && (p.Lower == nil || !idx.IsMultikey()) {
				p.Strategy = Range
				p.Upper = &index.Bound{Value: c.Operand, Inclusive: c.Op == matcher.Lte}
			}
		}
	}
	return p, p.Strategy != FullScan
}

// planCompound uses a compound index only when every key field is fixed
// by an equality.
func (pl *Planner) planCompound(idx *index.Index, byField map[string][]matcher.Condition) (Plan, bool) {
	desc := idx.Descriptor()
	parts := make([]domain.Value, 0, len(desc.Keys))
	for _, k := range desc.Keys {
		found := false
		for _, c := range byField[k.Field] {
			if c.Op == matcher.Eq && usable(c.Operand, desc.Sparse) {
				parts = append(parts, c.Operand)
				found = true
				break
			}
		}
		if !found {
			return Plan{}, false
		}
	}
	return Plan{
		Strategy: Point,
		Index:    idx,
		Field:    strings.Join(desc.Fields(), ","),
		Values:   []domain.Value{domain.Array(parts...)},
	}, true
}

// usable reports whether an equality operand can be looked up directly.
// Arrays match by element as well as whole, regular expressions by
// pattern, and a sparse index does not hold the documents null matches.
func usable(v domain.Value, sparse bool) bool {
	switch v.Kind() {
	case domain.KindArray, domain.KindRegex, domain.KindMissing:
		return false
	case domain.KindNull:
		return !sparse
	}
	return true
}

func usableAll(vs []domain.Value, sparse bool) bool {
	for _, v := range vs {
		if !usable(v, sparse) {
			return false
		}
	}
	return true
}

func rangeOperand(v domain.Value) bool {
	switch v.Kind() {
	case domain.KindArray, domain.KindRegex, domain.KindNull, domain.KindMissing:
		return false
	}
	return true
}

// Explain returns a one-line description of the plan chosen for f.
func (pl *Planner) Explain(f matcher.Filter, indexes []*index.Index, collation *domain.Collation) string {
	p := pl.Plan(f, indexes, collation)
	if p.IsFullScan() {
		return p.String()
	}
	return fmt.Sprintf("%s on %s", p, p.Field)
}
