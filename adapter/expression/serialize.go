package expression

import (
	"strings"

	"github.com/sboesebeck/morphium-sub001/domain"
)

// Serialize returns the wire form of the expression. Parsing the result
// yields an equivalent tree.
func (e Expr) Serialize() domain.Value {
	switch e.kind {
	case KindLiteral:
		if needsLiteral(e.value) {
			return domain.Doc(domain.NewDocument(domain.Field{Key: "$literal", Value: e.value}))
		}
		return e.value
	case KindField:
		return domain.String("$" + strings.Join(e.path, "."))
	case KindVariable:
		return domain.String("$$" + strings.Join(append([]string{e.name}, e.path...), "."))
	case KindObject:
		d := domain.NewDocument()
		for _, f := range e.fields {
			d.Set(f.key, f.expr.Serialize())
		}
		return domain.Doc(d)
	case KindArray:
		arr := make([]domain.Value, len(e.args))
		for n, a := range e.args {
			arr[n] = a.Serialize()
		}
		return domain.Array(arr...)
	}

	spec := operators[e.name]
	var arg domain.Value
	switch spec.form {
	case formFilter, formMap:
		body := "cond"
		if spec.form == formMap {
			body = "in"
		}
		arg = domain.Doc(domain.NewDocument(
			domain.Field{Key: "input", Value: e.args[0].Serialize()},
			domain.Field{Key: "as", Value: domain.String(e.as)},
			domain.Field{Key: body, Value: e.args[1].Serialize()},
		))
	default:
		return operatorValue(e.name, e.args)
	}
	return domain.Doc(domain.NewDocument(domain.Field{Key: e.name, Value: arg}))
}

// Document returns the wire form as a document when the expression is an
// operator or object, and nil otherwise.
func (e Expr) Document() *domain.Document {
	return e.Serialize().Doc()
}

func operatorValue(name string, args []Expr) domain.Value {
	var arg domain.Value
	if len(args) == 1 && args[0].kind != KindArray && !(args[0].kind == KindLiteral && args[0].value.IsArray()) {
		arg = args[0].Serialize()
	} else {
		arr := make([]domain.Value, len(args))
		for n, a := range args {
			arr[n] = a.Serialize()
		}
		arg = domain.Array(arr...)
	}
	if spec, ok := operators[name]; ok && (spec.form == formFilter || spec.form == formMap) && len(args) == 2 {
		body := "cond"
		if spec.form == formMap {
			body = "in"
		}
		arg = domain.Doc(domain.NewDocument(
			domain.Field{Key: "input", Value: args[0].Serialize()},
			domain.Field{Key: body, Value: args[1].Serialize()},
		))
	}
	return domain.Doc(domain.NewDocument(domain.Field{Key: name, Value: arg}))
}

func needsLiteral(v domain.Value) bool {
	switch v.Kind() {
	case domain.KindString:
		return strings.HasPrefix(v.Str(), "$")
	case domain.KindDocument, domain.KindArray:
		return true
	}
	return false
}
