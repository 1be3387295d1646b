// Package expression contains the aggregation expression language: a tree
// of literals, field references, variables and operators that parses from
// and serializes to its wire document form, and evaluates against a
// document.
package expression

import (
	"strings"

	"github.com/sboesebeck/morphium-sub001/domain"
)

// Kind is the tag of an [Expr] node.
type Kind uint8

// Expression node kinds.
const (
	KindLiteral Kind = iota
	KindField
	KindVariable
	KindOperator
	KindObject
	KindArray
)

// Expr is an immutable expression tree node.
type Expr struct {
	kind   Kind
	value  domain.Value
	path   []string
	name   string
	args   []Expr
	fields []namedExpr
	// as names the element variable of $filter and $map.
	as string
}

type namedExpr struct {
	key  string
	expr Expr
}

// Kind returns the node tag.
func (e Expr) Kind() Kind { return e.kind }

// Name returns the operator name of operator nodes, or the variable name
// of variable nodes.
func (e Expr) Name() string { return e.name }

// Args returns the operands of operator nodes.
func (e Expr) Args() []Expr { return e.args }

// Path returns the dotted path of field nodes.
func (e Expr) Path() string { return strings.Join(e.path, ".") }

// Value returns the literal payload of literal nodes.
func (e Expr) Value() domain.Value { return e.value }

// Literal returns a literal expression. It panics if a cannot be converted
// into a [domain.Value].
func Literal(a any) Expr {
	return Expr{kind: KindLiteral, value: domain.MustValue(a)}
}

// Field returns a field reference. A leading "$" is optional.
func Field(path string) Expr {
	e, err := Parse(domain.String("$" + strings.TrimPrefix(path, "$")))
	if err != nil {
		panic(err)
	}
	return e
}

// Op returns an operator expression, validated by the same parser used for
// wire documents.
func Op(name string, args ...Expr) (Expr, error) {
	return Parse(operatorValue(name, args))
}

// MustOp is like [Op] but panics on error.
func MustOp(name string, args ...Expr) Expr {
	e, err := Op(name, args...)
	if err != nil {
		panic(err)
	}
	return e
}

// Add returns {$add: args}.
func Add(args ...Expr) Expr { return MustOp("$add", args...) }

// Subtract returns {$subtract: [a, b]}.
func Subtract(a, b Expr) Expr { return MustOp("$subtract", a, b) }

// Multiply returns {$multiply: args}.
func Multiply(args ...Expr) Expr { return MustOp("$multiply", args...) }

// Divide returns {$divide: [a, b]}.
func Divide(a, b Expr) Expr { return MustOp("$divide", a, b) }

// Mod returns {$mod: [a, b]}.
func Mod(a, b Expr) Expr { return MustOp("$mod", a, b) }

// Eq returns {$eq: [a, b]}.
func Eq(a, b Expr) Expr { return MustOp("$eq", a, b) }

// Gt returns {$gt: [a, b]}.
func Gt(a, b Expr) Expr { return MustOp("$gt", a, b) }

// Lt returns {$lt: [a, b]}.
func Lt(a, b Expr) Expr { return MustOp("$lt", a, b) }

// Cond returns {$cond: [cond, then, else]}.
func Cond(cond, then, els Expr) Expr { return MustOp("$cond", cond, then, els) }

// IfNull returns {$ifNull: [a, fallback]}.
func IfNull(a, fallback Expr) Expr { return MustOp("$ifNull", a, fallback) }

// Concat returns {$concat: args}.
func Concat(args ...Expr) Expr { return MustOp("$concat", args...) }

// Size returns {$size: a}.
func Size(a Expr) Expr { return MustOp("$size", a) }

// Sum returns {$sum: a}.
func Sum(a Expr) Expr { return MustOp("$sum", a) }

// Object returns an expression building a document from named
// expressions, in the given order.
func Object(fields ...ObjectField) Expr {
	e := Expr{kind: KindObject}
	for _, f := range fields {
		e.fields = append(e.fields, namedExpr{key: f.Key, expr: f.Expr})
	}
	return e
}

// ObjectField is one field of an [Object] expression.
type ObjectField struct {
	Key  string
	Expr Expr
}
