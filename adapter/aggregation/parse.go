package aggregation

import (
	"fmt"
	"strings"

	"github.com/sboesebeck/morphium-sub001/adapter/expression"
	"github.com/sboesebeck/morphium-sub001/adapter/matcher"
	"github.com/sboesebeck/morphium-sub001/adapter/projector"
	"github.com/sboesebeck/morphium-sub001/domain"
)

// Parse converts the wire form of a pipeline.
func Parse(docs []*domain.Document) (Pipeline, error) {
	p := Pipeline{stages: make([]Stage, 0, len(docs))}
	for n, d := range docs {
		s, err := ParseStage(d)
		if err != nil {
			return Pipeline{}, fmt.Errorf("stage %d: %w", n, err)
		}
		p.stages = append(p.stages, s)
	}
	return p, nil
}

// ParseAny accepts a [Pipeline], a list of [Stage] or anything
// [domain.DocumentsOf] accepts.
func ParseAny(a any) (Pipeline, error) {
	switch p := a.(type) {
	case Pipeline:
		return p, nil
	case *Pipeline:
		if p == nil {
			return Pipeline{}, nil
		}
		return *p, nil
	case []Stage:
		return NewPipeline(p...), nil
	}
	docs, err := domain.DocumentsOf(a)
	if err != nil {
		return Pipeline{}, malformed("", "", "%v", err)
	}
	return Parse(docs)
}

// ParseStage converts the wire form of a single stage.
func ParseStage(d *domain.Document) (Stage, error) {
	if d.Len() != 1 {
		return Stage{}, malformed("", "", "a stage must have exactly one field, got %d", d.Len())
	}
	name := d.Keys()[0]
	spec := d.Get(name)

	switch name {
	case "$match":
		if !spec.IsDocument() {
			return Stage{}, malformed(name, "", "expected an object, got %s", spec.Kind())
		}
		f, err := matcher.Parse(spec.Doc())
		if err != nil {
			return Stage{}, err
		}
		return Match(f), nil
	case "$project":
		if !spec.IsDocument() || spec.Doc().Len() == 0 {
			return Stage{}, malformed(name, "", "expected a non-empty object")
		}
		p, err := projector.Parse(spec.Doc())
		if err != nil {
			return Stage{}, err
		}
		return Project(p), nil
	case "$group":
		return parseGroup(spec)
	case "$sort":
		if !spec.IsDocument() || spec.Doc().Len() == 0 {
			return Stage{}, malformed(name, "", "expected a non-empty object")
		}
		s, err := domain.SortOf(spec.Doc())
		if err != nil {
			return Stage{}, err
		}
		return Sort(s), nil
	case "$limit", "$skip":
		if !spec.IsNumber() || spec.Float64() != float64(spec.Int64()) {
			return Stage{}, malformed(name, "", "expected an integer, got %s", spec)
		}
		n := spec.Int64()
		if name == "$limit" {
			if n <= 0 {
				return Stage{}, malformed(name, "", "the limit must be positive")
			}
			return Limit(n), nil
		}
		if n < 0 {
			return Stage{}, malformed(name, "", "the skip must not be negative")
		}
		return Skip(n), nil
	case "$count":
		if spec.Kind() != domain.KindString {
			return Stage{}, malformed(name, "", "expected a string, got %s", spec.Kind())
		}
		if err := checkOutputField(name, spec.Str()); err != nil {
			return Stage{}, err
		}
		return Count(spec.Str()), nil
	case "$unwind":
		return parseUnwind(spec)
	case "$addFields", "$set":
		return parseAddFields(name, spec)
	case "$unset":
		return parseUnset(spec)
	case "$replaceRoot", "$replaceWith":
		if name == "$replaceRoot" {
			if !spec.IsDocument() || spec.Doc().Len() != 1 || !spec.Doc().Has("newRoot") {
				return Stage{}, malformed(name, "", "expected {newRoot: <expression>}")
			}
			spec = spec.Doc().Get("newRoot")
		}
		e, err := expression.Parse(spec)
		if err != nil {
			return Stage{}, err
		}
		return ReplaceRoot(e), nil
	case "$lookup":
		return parseLookup(spec)
	case "$sortByCount":
		e, err := expression.Parse(spec)
		if err != nil {
			return Stage{}, err
		}
		if e.Kind() != expression.KindField && e.Kind() != expression.KindOperator {
			return Stage{}, malformed(name, "", "expected a field path or an operator expression")
		}
		return SortByCount(e), nil
	}
	return Stage{}, malformed(name, "", "unrecognized pipeline stage")
}

func parseGroup(spec domain.Value) (Stage, error) {
	const name = "$group"
	if !spec.IsDocument() {
		return Stage{}, malformed(name, "", "expected an object, got %s", spec.Kind())
	}
	d := spec.Doc()
	if !d.Has("_id") {
		return Stage{}, malformed(name, "_id", "a group specification must include an _id")
	}
	id, err := expression.Parse(d.Get("_id"))
	if err != nil {
		return Stage{}, err
	}
	var fields []GroupField
	for k, v := range d.Iter() {
		if k == "_id" {
			continue
		}
		if strings.Contains(k, ".") {
			return Stage{}, malformed(name, k, "field names cannot contain dots")
		}
		acc, err := expression.ParseAccumulator(v)
		if err != nil {
			return Stage{}, fmt.Errorf("field %q: %w", k, err)
		}
		fields = append(fields, GroupField{Field: k, Accumulator: acc})
	}
	return Group(id, fields...), nil
}

func parseUnwind(spec domain.Value) (Stage, error) {
	const name = "$unwind"
	if spec.Kind() == domain.KindString {
		path, err := fieldPath(name, spec.Str())
		if err != nil {
			return Stage{}, err
		}
		return Unwind(path), nil
	}
	if !spec.IsDocument() {
		return Stage{}, malformed(name, "", "expected a string or an object, got %s", spec.Kind())
	}
	var o UnwindOptions
	for k, v := range spec.Doc().Iter() {
		switch k {
		case "path":
			if v.Kind() != domain.KindString {
				return Stage{}, malformed(name, k, "expected a string, got %s", v.Kind())
			}
			path, err := fieldPath(name, v.Str())
			if err != nil {
				return Stage{}, err
			}
			o.Path = path
		case "preserveNullAndEmptyArrays":
			if v.Kind() != domain.KindBool {
				return Stage{}, malformed(name, k, "expected a boolean, got %s", v.Kind())
			}
			o.PreserveNullAndEmptyArrays = v.Bool()
		case "includeArrayIndex":
			if v.Kind() != domain.KindString {
				return Stage{}, malformed(name, k, "expected a string, got %s", v.Kind())
			}
			if err := checkOutputField(name, v.Str()); err != nil {
				return Stage{}, err
			}
			o.IncludeArrayIndex = v.Str()
		default:
			return Stage{}, malformed(name, k, "unrecognized option")
		}
	}
	if o.Path == "" {
		return Stage{}, malformed(name, "path", "no path specified")
	}
	return UnwindWith(o), nil
}

func parseAddFields(name string, spec domain.Value) (Stage, error) {
	if !spec.IsDocument() || spec.Doc().Len() == 0 {
		return Stage{}, malformed(name, "", "expected a non-empty object")
	}
	fields := make([]expression.ObjectField, 0, spec.Doc().Len())
	for k, v := range spec.Doc().Iter() {
		if k == "" || strings.HasPrefix(k, "$") {
			return Stage{}, malformed(name, k, "invalid field name")
		}
		e, err := expression.Parse(v)
		if err != nil {
			return Stage{}, err
		}
		fields = append(fields, expression.ObjectField{Key: k, Expr: e})
	}
	return AddFields(fields...), nil
}

func parseUnset(spec domain.Value) (Stage, error) {
	const name = "$unset"
	var fields []string
	switch spec.Kind() {
	case domain.KindString:
		fields = []string{spec.Str()}
	case domain.KindArray:
		for _, item := range spec.Array() {
			if item.Kind() != domain.KindString {
				return Stage{}, malformed(name, "", "expected strings, got %s", item.Kind())
			}
			fields = append(fields, item.Str())
		}
	default:
		return Stage{}, malformed(name, "", "expected a string or an array of strings, got %s", spec.Kind())
	}
	if _, err := projector.NewProjector().Exclude(fields...); err != nil {
		return Stage{}, err
	}
	return Unset(fields...), nil
}

func parseLookup(spec domain.Value) (Stage, error) {
	const name = "$lookup"
	if !spec.IsDocument() {
		return Stage{}, malformed(name, "", "expected an object, got %s", spec.Kind())
	}
	var o LookupOptions
	targets := map[string]*string{
		"from":         &o.From,
		"localField":   &o.LocalField,
		"foreignField": &o.ForeignField,
		"as":           &o.As,
	}
	for k, v := range spec.Doc().Iter() {
		target, ok := targets[k]
		if !ok {
			return Stage{}, malformed(name, k, "unsupported option")
		}
		if v.Kind() != domain.KindString || v.Str() == "" {
			return Stage{}, malformed(name, k, "expected a non-empty string")
		}
		*target = v.Str()
	}
	for _, k := range []string{"from", "localField", "foreignField", "as"} {
		if *targets[k] == "" {
			return Stage{}, malformed(name, k, "missing required option")
		}
	}
	return Lookup(o), nil
}

func fieldPath(stage, s string) (string, error) {
	if !strings.HasPrefix(s, "$") || len(s) < 2 || strings.HasPrefix(s, "$$") {
		return "", malformed(stage, "", "path %q must be prefixed with $", s)
	}
	return s[1:], nil
}

func checkOutputField(stage, f string) error {
	if f == "" || strings.HasPrefix(f, "$") || strings.Contains(f, ".") {
		return malformed(stage, f, "invalid output field name")
	}
	return nil
}

func malformed(stage, field string, format string, args ...any) error {
	return domain.ErrMalformedExpression{Kind: "pipeline", Operator: stage, Field: field, Reason: fmt.Sprintf(format, args...)}
}
