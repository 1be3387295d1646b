// Package decoder contains the default [domain.Decoder] implementation.
package decoder

import (
	"fmt"

	"github.com/goccy/go-reflect"
	"github.com/mitchellh/mapstructure"

	"github.com/sboesebeck/morphium-sub001/domain"
)

// DefaultTagName is the struct tag naming document fields.
const DefaultTagName = "bson"

var (
	docPtrType  = reflect.TypeOf((**domain.Document)(nil)).Elem()
	docListType = reflect.TypeOf((*[]*domain.Document)(nil)).Elem()
)

// Decoder implements domain.Decoder.
type Decoder struct {
	tagName string
}

// NewDecoder returns a new implementation of domain.Decoder.
func NewDecoder(opts ...Option) domain.Decoder {
	d := Decoder{tagName: DefaultTagName}
	for _, opt := range opts {
		opt(&d)
	}
	return &d
}

// Decode implements domain.Decoder. Documents and values decode into
// structs, maps and slices. A target of type **domain.Document or
// *[]*domain.Document receives copies.
func (d *Decoder) Decode(source any, target any) error {
	if target == nil {
		return domain.ErrTargetNil
	}

	value := reflect.ValueNoEscapeOf(target)
	if value.Kind() != reflect.Ptr {
		return domain.ErrNonPointer
	}
	if value.IsNil() {
		return domain.ErrTargetNil
	}

	switch value.Type().Elem() {
	case docPtrType:
		if doc, ok := source.(*domain.Document); ok {
			*target.(**domain.Document) = doc.Clone()
			return nil
		}
	case docListType:
		if docs, ok := d.documents(source); ok {
			*target.(*[]*domain.Document) = docs
			return nil
		}
	}

	source = d.adjust(source)

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: d.tagName,
		Result:  target,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(source); err != nil {
		errDec := domain.ErrDecode{Source: source, Target: target}
		return fmt.Errorf("%w: %w", errDec, err)
	}
	return nil
}

func (d *Decoder) documents(source any) ([]*domain.Document, bool) {
	var items []any
	switch t := source.(type) {
	case []*domain.Document:
		res := make([]*domain.Document, len(t))
		for n, doc := range t {
			res[n] = doc.Clone()
		}
		return res, true
	case []any:
		items = t
	default:
		return nil, false
	}
	res := make([]*domain.Document, len(items))
	for n, item := range items {
		doc, ok := item.(*domain.Document)
		if !ok {
			return nil, false
		}
		res[n] = doc.Clone()
	}
	return res, true
}

// adjust turns documents and values into the maps, slices and scalars
// mapstructure understands.
func (d *Decoder) adjust(value any) any {
	switch t := value.(type) {
	case *domain.Document:
		return t.Map()
	case domain.Value:
		return t.Interface()
	case []*domain.Document:
		lst := make([]any, len(t))
		for n, v := range t {
			lst[n] = v.Map()
		}
		return lst
	case []any:
		lst := make([]any, len(t))
		for n, v := range t {
			lst[n] = d.adjust(v)
		}
		return lst
	default:
		return value
	}
}
