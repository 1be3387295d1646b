// Package fieldnavigator contains the default [domain.FieldNavigator]
// implementation for dotted paths such as "a.b.0.c".
package fieldnavigator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sboesebeck/morphium-sub001/domain"
)

// FieldNavigator implements [domain.FieldNavigator].
type FieldNavigator struct{}

// NewFieldNavigator returns a new instance of [domain.FieldNavigator].
func NewFieldNavigator() domain.FieldNavigator {
	return &FieldNavigator{}
}

// GetAddress implements [domain.FieldNavigator].
func (fn *FieldNavigator) GetAddress(field string) ([]string, error) {
	if field == "" {
		return nil, domain.ErrMalformedExpression{Kind: "document", Reason: "empty field path"}
	}
	addr := strings.Split(field, ".")
	for _, part := range addr {
		if part == "" {
			return nil, domain.ErrMalformedExpression{Kind: "document", Field: field, Reason: "empty path segment"}
		}
	}
	return addr, nil
}

// GetField implements [domain.FieldNavigator]. When a non-numeric segment
// meets an array, the rest of the path is resolved against every document
// in it, so {a: [{b: 1}, {b: 2}]} yields [1, 2] for "a.b". A path that
// cannot be followed yields a single missing value.
func (fn *FieldNavigator) GetField(doc *domain.Document, addr ...string) ([]domain.Value, bool) {
	var expanded bool
	res := fn.resolve(domain.Doc(doc), addr, nil, &expanded)
	if len(res) == 0 {
		res = []domain.Value{domain.Missing()}
	}
	return res, expanded
}

func (fn *FieldNavigator) resolve(cur domain.Value, addr []string, acc []domain.Value, expanded *bool) []domain.Value {
	if len(addr) == 0 {
		return append(acc, cur)
	}
	switch cur.Kind() {
	case domain.KindDocument:
		return fn.resolve(cur.Doc().Get(addr[0]), addr[1:], acc, expanded)
	case domain.KindArray:
		arr := cur.Array()
		if i, ok := arrayIndex(addr[0]); ok {
			if i < len(arr) {
				return fn.resolve(arr[i], addr[1:], acc, expanded)
			}
			return append(acc, domain.Missing())
		}
		*expanded = true
		found := false
		for _, item := range arr {
			if item.IsDocument() {
				found = true
				acc = fn.resolve(item, addr, acc, expanded)
			}
		}
		if !found {
			acc = append(acc, domain.Missing())
		}
		return acc
	default:
		return append(acc, domain.Missing())
	}
}

// GetValue implements [domain.FieldNavigator].
func (fn *FieldNavigator) GetValue(doc *domain.Document, addr ...string) domain.Value {
	cur := domain.Doc(doc)
	for _, part := range addr {
		switch cur.Kind() {
		case domain.KindDocument:
			cur = cur.Doc().Get(part)
		case domain.KindArray:
			i, ok := arrayIndex(part)
			if !ok || i >= len(cur.Array()) {
				return domain.Missing()
			}
			cur = cur.Array()[i]
		default:
			return domain.Missing()
		}
	}
	return cur
}

// SetField implements [domain.FieldNavigator]. Numeric segments index
// arrays, which are padded with nulls when the index is past the end.
func (fn *FieldNavigator) SetField(doc *domain.Document, value domain.Value, addr ...string) error {
	if len(addr) == 0 {
		return domain.ErrMalformedExpression{Kind: "document", Reason: "empty field path"}
	}
	_, err := fn.set(domain.Doc(doc), addr, 0, value)
	return err
}

func (fn *FieldNavigator) set(cur domain.Value, addr []string, depth int, value domain.Value) (domain.Value, error) {
	if depth == len(addr) {
		return value, nil
	}
	part := addr[depth]
	last := depth == len(addr)-1

	switch cur.Kind() {
	case domain.KindMissing:
		cur = domain.Doc(domain.NewDocument())
		fallthrough
	case domain.KindDocument:
		d := cur.Doc()
		child := d.Get(part)
		if child.IsMissing() && !last {
			child = domain.Doc(domain.NewDocument())
		}
		nv, err := fn.set(child, addr, depth+1, value)
		if err != nil {
			return domain.Value{}, err
		}
		d.Set(part, nv)
		return cur, nil
	case domain.KindArray:
		i, ok := arrayIndex(part)
		if !ok {
			return domain.Value{}, fn.cannotCreate(addr, depth, cur)
		}
		arr := cur.Array()
		for len(arr) <= i {
			arr = append(arr, domain.Null())
		}
		child := arr[i]
		if child.IsNull() && !last {
			child = domain.Doc(domain.NewDocument())
		}
		nv, err := fn.set(child, addr, depth+1, value)
		if err != nil {
			return domain.Value{}, err
		}
		arr[i] = nv
		return domain.Array(arr...), nil
	default:
		return domain.Value{}, fn.cannotCreate(addr, depth, cur)
	}
}

func (fn *FieldNavigator) cannotCreate(addr []string, depth int, cur domain.Value) error {
	return domain.ErrMalformedExpression{
		Kind:   "update",
		Field:  strings.Join(addr, "."),
		Reason: fmt.Sprintf("cannot create field %q in element %s", addr[depth], cur),
	}
}

// UnsetField implements [domain.FieldNavigator]. Unsetting an array element
// sets it to null, keeping the other positions.
func (fn *FieldNavigator) UnsetField(doc *domain.Document, addr ...string) bool {
	if len(addr) == 0 {
		return false
	}
	parent := fn.GetValue(doc, addr[:len(addr)-1]...)
	part := addr[len(addr)-1]
	switch parent.Kind() {
	case domain.KindDocument:
		return parent.Doc().Unset(part)
	case domain.KindArray:
		i, ok := arrayIndex(part)
		if !ok || i >= len(parent.Array()) {
			return false
		}
		parent.Array()[i] = domain.Null()
		return true
	}
	return false
}

func arrayIndex(part string) (int, bool) {
	i, err := strconv.Atoi(part)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}
