package matcher

import (
	"strings"

	"github.com/sboesebeck/morphium-sub001/domain"
)

var logicNames = map[nodeKind]string{
	kindAnd: "$and",
	kindOr:  "$or",
	kindNor: "$nor",
}

// Document returns the wire form of the filter. Leaves on the same field
// share one operator document; when two of them use the same operator, or
// a combinator repeats, the filter is written as a top-level $and.
func (f Filter) Document() *domain.Document {
	d := domain.NewDocument()
	for _, n := range f.nodes {
		key, value := n.wire()
		prev := d.Get(key)
		if prev.IsMissing() {
			d.Set(key, value)
			continue
		}
		if strings.HasPrefix(key, "$") {
			return f.conjunction()
		}
		merged, ok := mergeOperators(prev, value)
		if !ok {
			return f.conjunction()
		}
		d.Set(key, merged)
	}
	if !f.comment.IsMissing() {
		d.Set("$comment", f.comment)
	}
	return d
}

func (f Filter) conjunction() *domain.Document {
	items := make([]domain.Value, len(f.nodes))
	for i, n := range f.nodes {
		key, value := n.wire()
		items[i] = domain.Doc(domain.NewDocument(domain.Field{Key: key, Value: value}))
	}
	d := domain.NewDocument(domain.Field{Key: "$and", Value: domain.Array(items...)})
	if !f.comment.IsMissing() {
		d.Set("$comment", f.comment)
	}
	return d
}

// String returns the filter in shell notation.
func (f Filter) String() string { return f.Document().String() }

func (n node) wire() (string, domain.Value) {
	switch n.kind {
	case kindAnd, kindOr, kindNor:
		items := make([]domain.Value, len(n.children))
		for i, c := range n.children {
			items[i] = domain.Doc(c.Document())
		}
		return logicNames[n.kind], domain.Array(items...)
	case kindExpr:
		return "$expr", n.expr.Serialize()
	}
	return n.field, n.operators()
}

// operators returns the value written under the leaf's field: a bare
// operand for plain equality and regex leaves, an operator document
// otherwise.
func (n node) operators() domain.Value {
	switch n.op {
	case Eq:
		if k := n.operand.Kind(); k == domain.KindDocument || k == domain.KindRegex {
			return opDoc("$eq", n.operand)
		}
		return n.operand
	case Regex:
		return n.operand
	case Not:
		return opDoc("$not", mergeLeaves(n.not))
	case ElemMatch:
		if n.scalar {
			return opDoc("$elemMatch", mergeLeaves(n.sub.nodes))
		}
		return opDoc("$elemMatch", domain.Doc(n.sub.Document()))
	case Near, NearSphere:
		d := domain.NewDocument(domain.Field{Key: n.op.String(), Value: n.operand})
		if !n.shape.meters {
			if n.shape.maxDistance != nil {
				d.Set("$maxDistance", domain.Double(*n.shape.maxDistance))
			}
			if n.shape.minDistance != nil {
				d.Set("$minDistance", domain.Double(*n.shape.minDistance))
			}
		}
		return domain.Doc(d)
	}
	return opDoc(n.op.String(), n.operand)
}

// mergeLeaves writes leaves of one field as a single operator document.
func mergeLeaves(nodes []node) domain.Value {
	res := domain.Doc(domain.NewDocument())
	for _, n := range nodes {
		if merged, ok := mergeOperators(res, n.operators()); ok {
			res = merged
		}
	}
	return res
}

// mergeOperators combines two leaf values of the same field. It fails when
// both use the same operator.
func mergeOperators(a, b domain.Value) (domain.Value, bool) {
	res := asOperators(a).Doc().Clone()
	for k, v := range asOperators(b).Doc().Iter() {
		if res.Has(k) {
			return domain.Value{}, false
		}
		res.Set(k, v)
	}
	return domain.Doc(res), true
}

func asOperators(v domain.Value) domain.Value {
	switch {
	case v.IsDocument() && (v.Doc().Len() == 0 || strings.HasPrefix(v.Doc().Keys()[0], "$")):
		return v
	case v.Kind() == domain.KindRegex:
		return opDoc("$regex", v)
	}
	return opDoc("$eq", v)
}

func opDoc(op string, v domain.Value) domain.Value {
	return domain.Doc(domain.NewDocument(domain.Field{Key: op, Value: v}))
}
