package matcher

import (
	"regexp"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/sboesebeck/morphium-sub001/adapter/expression"
	"github.com/sboesebeck/morphium-sub001/domain"
)

// Query builds a [Filter] one condition at a time. Every method returns a
// new Query and leaves the receiver untouched, so a partial query can be
// shared and extended in different directions. The first error met is
// kept and returned by [Query.Filter].
//
//	q := matcher.Where("age").Gte(18).And("name").Regex("^A", "i")
type Query struct {
	filter Filter
	err    error
}

// FieldQuery is a [Query] waiting for the condition on a field.
type FieldQuery struct {
	q      Query
	field  string
	negate bool
}

// Where starts a query with a condition on field.
func Where(field string) FieldQuery { return Query{}.And(field) }

// Or starts a query with an $or of qs.
func Or(qs ...Query) Query { return Query{}.Or(qs...) }

// Nor starts a query with a $nor of qs.
func Nor(qs ...Query) Query { return Query{}.Nor(qs...) }

// Expr starts a query with an $expr condition.
func Expr(e expression.Expr) Query { return Query{}.Expr(e) }

// And adds a condition on field to the conditions already in q.
func (q Query) And(field string) FieldQuery { return FieldQuery{q: q, field: field} }

// Or adds an $or of qs. When q already has conditions the result is
// {$and: [conditions..., {$or: qs}]}, otherwise just {$or: qs}.
func (q Query) Or(qs ...Query) Query { return q.branch(kindOr, qs) }

// Nor is like [Query.Or] for $nor.
func (q Query) Nor(qs ...Query) Query { return q.branch(kindNor, qs) }

// Expr adds an $expr condition.
func (q Query) Expr(e expression.Expr) Query {
	if q.err != nil {
		return q
	}
	return Query{filter: q.filter.And(Filter{nodes: []node{{kind: kindExpr, expr: e}}})}
}

// Comment attaches a $comment to the query.
func (q Query) Comment(c string) Query {
	q.filter.comment = domain.String(c)
	return q
}

func (q Query) branch(kind nodeKind, qs []Query) Query {
	if q.err != nil {
		return q
	}
	if len(qs) == 0 {
		return Query{err: malformed(logicNames[kind], "", "expected at least one query")}
	}
	children := make([]Filter, len(qs))
	for i, o := range qs {
		if o.err != nil {
			return Query{err: o.err}
		}
		children[i] = o.filter
	}
	branch := node{kind: kind, children: children}
	if q.filter.IsEmpty() {
		return Query{filter: Filter{nodes: []node{branch}, comment: q.filter.comment}}
	}

	leaves := make([]Filter, 0, len(q.filter.nodes)+1)
	for _, n := range q.filter.nodes {
		leaves = append(leaves, Filter{nodes: []node{n}})
	}
	leaves = append(leaves, Filter{nodes: []node{branch}})
	and := node{kind: kindAnd, children: leaves}
	return Query{filter: Filter{nodes: []node{and}, comment: q.filter.comment}}
}

// Filter returns the built filter.
func (q Query) Filter() (Filter, error) { return q.filter, q.err }

// Document returns the wire form of the built filter.
func (q Query) Document() (*domain.Document, error) {
	if q.err != nil {
		return nil, q.err
	}
	return q.filter.Document(), nil
}

// Not negates the next condition: Where("a").Not().Gt(5) is
// {a: {$not: {$gt: 5}}}.
func (fq FieldQuery) Not() FieldQuery {
	fq.negate = !fq.negate
	return fq
}

func (fq FieldQuery) cond(op string, operand any, extra ...bson.E) Query {
	q := fq.q
	if q.err != nil {
		return q
	}
	ops := bson.D{{Key: op, Value: operand}}
	ops = append(ops, extra...)
	var cond any = ops
	if fq.negate {
		cond = bson.D{{Key: "$not", Value: ops}}
	}
	doc, err := domain.DocumentOf(bson.D{{Key: fq.field, Value: cond}})
	if err != nil {
		return Query{err: err}
	}
	f, err := defaultMatcher().ParseDocument(doc)
	if err != nil {
		return Query{err: err}
	}
	return Query{filter: q.filter.And(f)}
}

// Eq adds {field: {$eq: v}}.
func (fq FieldQuery) Eq(v any) Query { return fq.cond("$eq", v) }

// Ne adds {field: {$ne: v}}.
func (fq FieldQuery) Ne(v any) Query { return fq.cond("$ne", v) }

// Gt adds {field: {$gt: v}}.
func (fq FieldQuery) Gt(v any) Query { return fq.cond("$gt", v) }

// Gte adds {field: {$gte: v}}.
func (fq FieldQuery) Gte(v any) Query { return fq.cond("$gte", v) }

// Lt adds {field: {$lt: v}}.
func (fq FieldQuery) Lt(v any) Query { return fq.cond("$lt", v) }

// Lte adds {field: {$lte: v}}.
func (fq FieldQuery) Lte(v any) Query { return fq.cond("$lte", v) }

// In adds {field: {$in: values}}.
func (fq FieldQuery) In(values ...any) Query { return fq.cond("$in", bson.A(values)) }

// Nin adds {field: {$nin: values}}.
func (fq FieldQuery) Nin(values ...any) Query { return fq.cond("$nin", bson.A(values)) }

// All adds {field: {$all: values}}.
func (fq FieldQuery) All(values ...any) Query { return fq.cond("$all", bson.A(values)) }

// Exists adds {field: {$exists: exists}}.
func (fq FieldQuery) Exists(exists bool) Query { return fq.cond("$exists", exists) }

// Mod adds {field: {$mod: [divisor, remainder]}}.
func (fq FieldQuery) Mod(divisor, remainder int64) Query {
	return fq.cond("$mod", bson.A{divisor, remainder})
}

// Size adds {field: {$size: n}}.
func (fq FieldQuery) Size(n int) Query { return fq.cond("$size", n) }

// Type adds {field: {$type: alias}}.
func (fq FieldQuery) Type(alias string) Query { return fq.cond("$type", alias) }

// Regex adds {field: {$regex: pattern, $options: options}}.
func (fq FieldQuery) Regex(pattern, options string) Query {
	return fq.cond("$regex", bson.Regex{Pattern: pattern, Options: options})
}

// Matches adds a regex condition from a compiled expression.
func (fq FieldQuery) Matches(re *regexp.Regexp) Query { return fq.cond("$regex", re) }

// ElemMatch adds {field: {$elemMatch: sub}}.
func (fq FieldQuery) ElemMatch(sub Query) Query {
	doc, err := sub.Document()
	if err != nil {
		return Query{err: err}
	}
	return fq.cond("$elemMatch", doc)
}

// Near adds a planar $near condition around (x, y).
func (fq FieldQuery) Near(x, y, maxDistance float64) Query {
	return fq.cond("$near", bson.A{x, y}, bson.E{Key: "$maxDistance", Value: maxDistance})
}

// NearSphere adds a $nearSphere condition around (lng, lat), with the
// distance in radians.
func (fq FieldQuery) NearSphere(lng, lat, maxRadians float64) Query {
	return fq.cond("$nearSphere", bson.A{lng, lat}, bson.E{Key: "$maxDistance", Value: maxRadians})
}

// Box adds a $geoWithin $box condition between two corners.
func (fq FieldQuery) Box(x1, y1, x2, y2 float64) Query {
	return fq.cond("$geoWithin", bson.D{{Key: "$box", Value: bson.A{bson.A{x1, y1}, bson.A{x2, y2}}}})
}

// Center adds a $geoWithin $center condition.
func (fq FieldQuery) Center(x, y, radius float64) Query {
	return fq.cond("$geoWithin", bson.D{{Key: "$center", Value: bson.A{bson.A{x, y}, radius}}})
}

// CenterSphere adds a $geoWithin $centerSphere condition, with the radius in
// radians.
func (fq FieldQuery) CenterSphere(lng, lat, radians float64) Query {
	return fq.cond("$geoWithin", bson.D{{Key: "$centerSphere", Value: bson.A{bson.A{lng, lat}, radians}}})
}

// Polygon adds a $geoWithin $polygon condition.
func (fq FieldQuery) Polygon(points ...[2]float64) Query {
	pts := make(bson.A, len(points))
	for i, p := range points {
		pts[i] = bson.A{p[0], p[1]}
	}
	return fq.cond("$geoWithin", bson.D{{Key: "$polygon", Value: pts}})
}
