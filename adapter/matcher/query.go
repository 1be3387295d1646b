package matcher

import (
	"regexp"

	"github.com/sboesebeck/morphium-sub001/adapter/expression"
	"github.com/sboesebeck/morphium-sub001/domain"
)

// Operator is the predicate of a field leaf.
type Operator uint8

// Numeric representations of supported operators.
const (
	Eq Operator = iota
	Ne
	Gt
	Gte
	Lt
	Lte
	In
	Nin
	Exists
	Mod
	Size
	All
	Regex
	Type
	ElemMatch
	Not
	GeoWithin
	Near
	NearSphere
)

var operatorNames = [...]string{
	Eq:         "$eq",
	Ne:         "$ne",
	Gt:         "$gt",
	Gte:        "$gte",
	Lt:         "$lt",
	Lte:        "$lte",
	In:         "$in",
	Nin:        "$nin",
	Exists:     "$exists",
	Mod:        "$mod",
	Size:       "$size",
	All:        "$all",
	Regex:      "$regex",
	Type:       "$type",
	ElemMatch:  "$elemMatch",
	Not:        "$not",
	GeoWithin:  "$geoWithin",
	Near:       "$near",
	NearSphere: "$nearSphere",
}

// String returns the wire name of the operator.
func (o Operator) String() string {
	if int(o) < len(operatorNames) {
		return operatorNames[o]
	}
	return "$unknown"
}

type nodeKind uint8

const (
	kindLeaf nodeKind = iota
	kindAnd
	kindOr
	kindNor
	kindExpr
)

// Filter is a parsed filter document. Its top-level nodes are combined with
// an implicit AND. A Filter is immutable and safe for concurrent use; the
// zero value matches every document.
type Filter struct {
	nodes   []node
	comment domain.Value
}

// node is either a field leaf or a combinator.
type node struct {
	kind  nodeKind
	field string
	addr  []string
	op    Operator

	// operand of the leaf, in wire form.
	operand domain.Value

	// regex is the compiled $regex pattern.
	regex *regexp.Regexp

	// sub is the child filter of $elemMatch; scalar reports that it
	// applies to the elements themselves instead of to their fields.
	sub    *Filter
	scalar bool

	// not holds the negated leaves of $not and all one leaf per $all
	// element. Both address this node's field.
	not []node
	all []node

	// children of $and, $or and $nor.
	children []Filter

	expr  expression.Expr
	shape geoShape
}

// Condition is a top-level conjunctive leaf of a filter, as seen by index
// planning and upsert seeding.
type Condition struct {
	Field   string
	Op      Operator
	Operand domain.Value
}

// IsEmpty reports whether the filter has no conditions.
func (f Filter) IsEmpty() bool { return len(f.nodes) == 0 }

// Comment returns the $comment attached to the filter, if any.
func (f Filter) Comment() domain.Value { return f.comment }

// Conditions returns the field leaves that every matching document must
// satisfy: the top-level ones and those of nested $and combinators.
// $not, $or and $nor subtrees are left out.
func (f Filter) Conditions() []Condition {
	var res []Condition
	for _, n := range f.nodes {
		switch n.kind {
		case kindLeaf:
			res = append(res, Condition{Field: n.field, Op: n.op, Operand: n.operand})
		case kindAnd:
			for _, c := range n.children {
				res = append(res, c.Conditions()...)
			}
		}
	}
	return res
}

// Equalities returns the fields fixed by top-level equality conditions, in
// filter order. Documents inserted by an upsert start from these values.
func (f Filter) Equalities() []domain.Field {
	var res []domain.Field
	for _, c := range f.Conditions() {
		if c.Op == Eq {
			res = append(res, domain.Field{Key: c.Field, Value: c.Operand})
		}
	}
	return res
}

// And returns a filter matching documents that satisfy both f and o.
func (f Filter) And(o Filter) Filter {
	nodes := make([]node, 0, len(f.nodes)+len(o.nodes))
	nodes = append(nodes, f.nodes...)
	nodes = append(nodes, o.nodes...)
	return Filter{nodes: nodes, comment: f.comment}
}
