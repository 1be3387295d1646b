package domain

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"time"

	"github.com/goccy/go-reflect"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Documenter is implemented by values that have a wire document form, such
// as filter builders.
type Documenter interface {
	Document() *Document
}

// DocumentLister is implemented by values that have a wire form made of a
// list of documents, such as pipelines.
type DocumentLister interface {
	Documents() []*Document
}

// ValueOf converts a Go value into a [Value]. It accepts Go natives, maps,
// slices, bson types, *regexp.Regexp, [Value], [*Document] and
// [Documenter]. Structs are converted through their bson encoding.
func ValueOf(a any) (Value, error) {
	switch t := a.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case *Value:
		if t == nil {
			return Null(), nil
		}
		return *t, nil
	case *Document:
		if t == nil {
			return Null(), nil
		}
		return Doc(t), nil
	case Documenter:
		return Doc(t.Document()), nil
	case bool:
		return Bool(t), nil
	case int:
		return intValue(int64(t)), nil
	case int8:
		return Int32(int32(t)), nil
	case int16:
		return Int32(int32(t)), nil
	case int32:
		return Int32(t), nil
	case int64:
		return Int64(t), nil
	case uint:
		return uintValue(uint64(t)), nil
	case uint8:
		return Int32(int32(t)), nil
	case uint16:
		return Int32(int32(t)), nil
	case uint32:
		return Int64(int64(t)), nil
	case uint64:
		return uintValue(t), nil
	case float32:
		return Double(float64(t)), nil
	case float64:
		return Double(t), nil
	case string:
		return String(t), nil
	case []byte:
		return Binary(0, t), nil
	case time.Time:
		return DateTime(t), nil
	case *regexp.Regexp:
		if t == nil {
			return Null(), nil
		}
		return Regex(t.String(), ""), nil
	case bson.ObjectID:
		return ObjectID(t), nil
	case bson.DateTime:
		return DateTimeMillis(int64(t)), nil
	case bson.Timestamp:
		return Timestamp(t.T, t.I), nil
	case bson.Regex:
		return Regex(t.Pattern, t.Options), nil
	case bson.Binary:
		return Binary(t.Subtype, t.Data), nil
	case bson.Null:
		return Null(), nil
	case bson.Undefined:
		return Null(), nil
	case bson.D:
		d := NewDocument()
		for _, e := range t {
			v, err := ValueOf(e.Value)
			if err != nil {
				return Value{}, err
			}
			d.Set(e.Key, v)
		}
		return Doc(d), nil
	case bson.M:
		return mapValue(t)
	case map[string]any:
		return mapValue(t)
	case bson.A:
		return sliceValue(t)
	case []any:
		return sliceValue(t)
	case []Value:
		return Array(slices.Clone(t)...), nil
	case []*Document:
		arr := make([]Value, len(t))
		for n, d := range t {
			arr[n] = Doc(d)
		}
		return Array(arr...), nil
	case bson.Raw:
		var d bson.D
		if err := bson.Unmarshal(t, &d); err != nil {
			return Value{}, ErrDocumentType{Reason: err.Error()}
		}
		return ValueOf(d)
	}
	return reflectValue(a)
}

func intValue(i int64) Value {
	if i >= math.MinInt32 && i <= math.MaxInt32 {
		return Int32(int32(i))
	}
	return Int64(i)
}

func uintValue(u uint64) Value {
	if u > math.MaxInt64 {
		return Double(float64(u))
	}
	return intValue(int64(u))
}

func mapValue(m map[string]any) (Value, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// maps carry no order, so keys are sorted to keep results stable
	slices.Sort(keys)
	d := NewDocument()
	for _, k := range keys {
		v, err := ValueOf(m[k])
		if err != nil {
			return Value{}, err
		}
		d.Set(k, v)
	}
	return Doc(d), nil
}

func sliceValue(s []any) (Value, error) {
	arr := make([]Value, len(s))
	for n, item := range s {
		v, err := ValueOf(item)
		if err != nil {
			return Value{}, err
		}
		arr[n] = v
	}
	return Array(arr...), nil
}

func reflectValue(a any) (Value, error) {
	rv := reflect.ValueNoEscapeOf(a)
	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return Null(), nil
		}
		return ValueOf(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		arr := make([]Value, rv.Len())
		for n := range arr {
			v, err := ValueOf(rv.Index(n).Interface())
			if err != nil {
				return Value{}, err
			}
			arr[n] = v
		}
		return Array(arr...), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Value{}, ErrDocumentType{Reason: fmt.Sprintf("map key must be string, got %s", rv.Type().Key())}
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return mapValue(m)
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return intValue(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return uintValue(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return Double(rv.Float()), nil
	case reflect.Struct:
		raw, err := bson.Marshal(a)
		if err != nil {
			return Value{}, ErrDocumentType{Reason: err.Error()}
		}
		return ValueOf(bson.Raw(raw))
	}
	return Value{}, ErrDocumentType{Reason: fmt.Sprintf("unsupported type %T", a)}
}

// MustValue is like [ValueOf] but panics on error. Meant for literals.
func MustValue(a any) Value {
	v, err := ValueOf(a)
	if err != nil {
		panic(err)
	}
	return v
}

// DocumentOf converts a Go value into a [*Document]. nil yields an empty
// document.
func DocumentOf(a any) (*Document, error) {
	if a == nil {
		return NewDocument(), nil
	}
	if d, ok := a.(*Document); ok {
		if d == nil {
			return NewDocument(), nil
		}
		return d, nil
	}
	v, err := ValueOf(a)
	if err != nil {
		return nil, err
	}
	switch v.Kind() {
	case KindDocument:
		return v.Doc(), nil
	case KindNull:
		return NewDocument(), nil
	}
	return nil, ErrDocumentType{Reason: fmt.Sprintf("expected document, got %s", v.Kind())}
}

// MustDocument is like [DocumentOf] but panics on error.
func MustDocument(a any) *Document {
	d, err := DocumentOf(a)
	if err != nil {
		panic(err)
	}
	return d
}

// DocumentsOf converts a list of documents, such as a pipeline.
func DocumentsOf(a any) ([]*Document, error) {
	switch t := a.(type) {
	case nil:
		return nil, nil
	case []*Document:
		return t, nil
	case DocumentLister:
		return t.Documents(), nil
	}
	v, err := ValueOf(a)
	if err != nil {
		return nil, err
	}
	if !v.IsArray() {
		return nil, ErrDocumentType{Reason: fmt.Sprintf("expected list of documents, got %s", v.Kind())}
	}
	res := make([]*Document, len(v.Array()))
	for n, item := range v.Array() {
		if !item.IsDocument() {
			return nil, ErrDocumentType{Reason: fmt.Sprintf("item %d: expected document, got %s", n, item.Kind())}
		}
		res[n] = item.Doc()
	}
	return res, nil
}
