package expression

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sboesebeck/morphium-sub001/domain"
)

// Parse converts the wire form of an expression into a tree. Strings
// starting with "$" are field references, "$$" variables, single-key
// documents with a "$" key operators, other documents objects and arrays
// arrays of expressions. Everything else is a literal.
func Parse(v domain.Value) (Expr, error) {
	switch v.Kind() {
	case domain.KindString:
		return parseString(v)
	case domain.KindArray:
		e := Expr{kind: KindArray, args: make([]Expr, len(v.Array()))}
		for n, item := range v.Array() {
			arg, err := Parse(item)
			if err != nil {
				return Expr{}, err
			}
			e.args[n] = arg
		}
		return e, nil
	case domain.KindDocument:
		return parseDocument(v.Doc())
	}
	return Expr{kind: KindLiteral, value: v}, nil
}

// ParseAny converts anything [domain.ValueOf] accepts and parses it.
func ParseAny(a any) (Expr, error) {
	v, err := domain.ValueOf(a)
	if err != nil {
		return Expr{}, err
	}
	return Parse(v)
}

func parseString(v domain.Value) (Expr, error) {
	s := v.Str()
	if !strings.HasPrefix(s, "$") {
		return Expr{kind: KindLiteral, value: v}, nil
	}
	if strings.HasPrefix(s, "$$") {
		parts := strings.Split(s[2:], ".")
		if slices.Contains(parts, "") {
			return Expr{}, malformed("", "invalid variable reference %q", s)
		}
		return Expr{kind: KindVariable, name: parts[0], path: parts[1:]}, nil
	}
	parts := strings.Split(s[1:], ".")
	if slices.Contains(parts, "") {
		return Expr{}, malformed("", "invalid field path %q", s)
	}
	return Expr{kind: KindField, path: parts}, nil
}

func parseDocument(d *domain.Document) (Expr, error) {
	keys := d.Keys()
	operatorKeys := 0
	for _, k := range keys {
		if strings.HasPrefix(k, "$") {
			operatorKeys++
		}
	}
	switch {
	case operatorKeys == 0:
		e := Expr{kind: KindObject}
		for k, item := range d.Iter() {
			sub, err := Parse(item)
			if err != nil {
				return Expr{}, err
			}
			e.fields = append(e.fields, namedExpr{key: k, expr: sub})
		}
		return e, nil
	case len(keys) > 1:
		return Expr{}, malformed("", "an expression object must have exactly one operator, got %v", keys)
	}
	return parseOperator(keys[0], d.Get(keys[0]))
}

func parseOperator(name string, arg domain.Value) (Expr, error) {
	if name == "$literal" {
		return Expr{kind: KindLiteral, value: arg}, nil
	}
	if _, ok := accumulatorOnly[name]; ok {
		return Expr{}, malformed(name, "accumulator is only valid in $group")
	}
	spec, ok := operators[name]
	if !ok {
		return Expr{}, malformed(name, "unknown operator")
	}

	e := Expr{kind: KindOperator, name: name}
	var err error
	switch spec.form {
	case formCond:
		e.args, err = parseCond(arg)
	case formFilter, formMap:
		e.args, e.as, err = parseIteration(name, spec.form, arg)
	case formDate:
		if arg.IsDocument() && arg.Doc().Has("date") {
			arg = arg.Doc().Get("date")
		}
		e.args, err = parseArgs(arg)
	default:
		e.args, err = parseArgs(arg)
	}
	if err != nil {
		return Expr{}, err
	}
	if len(e.args) < spec.min || (spec.max >= 0 && len(e.args) > spec.max) {
		return Expr{}, malformed(name, "expected %s, got %d", spec.arity(), len(e.args))
	}
	return e, nil
}

func parseArgs(arg domain.Value) ([]Expr, error) {
	if !arg.IsArray() {
		e, err := Parse(arg)
		if err != nil {
			return nil, err
		}
		return []Expr{e}, nil
	}
	res := make([]Expr, len(arg.Array()))
	for n, item := range arg.Array() {
		e, err := Parse(item)
		if err != nil {
			return nil, err
		}
		res[n] = e
	}
	return res, nil
}

func parseCond(arg domain.Value) ([]Expr, error) {
	if !arg.IsDocument() {
		return parseArgs(arg)
	}
	d := arg.Doc()
	res := make([]Expr, 3)
	for n, key := range []string{"if", "then", "else"} {
		if !d.Has(key) {
			return nil, malformed("$cond", "missing %q", key)
		}
		e, err := Parse(d.Get(key))
		if err != nil {
			return nil, err
		}
		res[n] = e
	}
	if d.Len() != 3 {
		return nil, malformed("$cond", "unexpected fields in %s", d)
	}
	return res, nil
}

func parseIteration(name string, form argForm, arg domain.Value) ([]Expr, string, error) {
	if !arg.IsDocument() {
		return nil, "", malformed(name, "expected an object")
	}
	d := arg.Doc()
	body := "cond"
	if form == formMap {
		body = "in"
	}
	as := "this"
	if v := d.Get("as"); !v.IsMissing() {
		if v.Kind() != domain.KindString || v.Str() == "" {
			return nil, "", malformed(name, "'as' must be a non-empty string")
		}
		as = v.Str()
	}
	res := make([]Expr, 2)
	for n, key := range []string{"input", body} {
		if !d.Has(key) {
			return nil, "", malformed(name, "missing %q", key)
		}
		e, err := Parse(d.Get(key))
		if err != nil {
			return nil, "", err
		}
		res[n] = e
	}
	return res, as, nil
}

func malformed(op string, format string, args ...any) error {
	return domain.ErrMalformedExpression{Kind: "expression", Operator: op, Reason: fmt.Sprintf(format, args...)}
}
