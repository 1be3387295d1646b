package domain

import (
	"iter"
	"slices"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// DefaultIDField is the identity field name used unless configured
// otherwise.
const DefaultIDField = "_id"

// Field is a single key+value pair of a [Document].
type Field struct {
	Key   string
	Value Value
}

// Document is an ordered mapping from field name to [Value]. Field order is
// kept through every operation. A nil *Document behaves as an empty one for
// reads.
type Document struct {
	fields []Field
}

// NewDocument returns an empty document.
func NewDocument(fields ...Field) *Document {
	d := &Document{fields: make([]Field, 0, max(len(fields), 4))}
	for _, f := range fields {
		d.Set(f.Key, f.Value)
	}
	return d
}

// Len returns the number of fields.
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.fields)
}

func (d *Document) index(key string) int {
	if d == nil {
		return -1
	}
	for n, f := range d.fields {
		if f.Key == key {
			return n
		}
	}
	return -1
}

// Get returns the value of key, or a missing value.
func (d *Document) Get(key string) Value {
	if n := d.index(key); n >= 0 {
		return d.fields[n].Value
	}
	return Missing()
}

// Has reports whether the document contains key.
func (d *Document) Has(key string) bool {
	return d.index(key) >= 0
}

// Set adds or replaces key. Replacing keeps the field position. Setting a
// missing value removes the key.
func (d *Document) Set(key string, value Value) {
	if value.IsMissing() {
		d.Unset(key)
		return
	}
	if n := d.index(key); n >= 0 {
		d.fields[n].Value = value
		return
	}
	d.fields = append(d.fields, Field{Key: key, Value: value})
}

// Unset removes key, reporting whether it existed.
func (d *Document) Unset(key string) bool {
	n := d.index(key)
	if n < 0 {
		return false
	}
	d.fields = slices.Delete(d.fields, n, n+1)
	return true
}

// Keys returns the field names in order.
func (d *Document) Keys() []string {
	keys := make([]string, d.Len())
	for n := range keys {
		keys[n] = d.fields[n].Key
	}
	return keys
}

// Fields returns a copy of the fields in order.
func (d *Document) Fields() []Field {
	if d == nil {
		return nil
	}
	return slices.Clone(d.fields)
}

// Iter iterates over the fields in order.
func (d *Document) Iter() iter.Seq2[string, Value] {
	return func(yield func(string, Value) bool) {
		if d == nil {
			return
		}
		for _, f := range d.fields {
			if !yield(f.Key, f.Value) {
				return
			}
		}
	}
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	if d == nil {
		return NewDocument()
	}
	c := &Document{fields: make([]Field, len(d.fields))}
	for n, f := range d.fields {
		c.fields[n] = Field{Key: f.Key, Value: f.Value.Clone()}
	}
	return c
}

// ID returns the value of the default identity field.
func (d *Document) ID() Value {
	return d.Get(DefaultIDField)
}

// Map converts the document into a map of plain Go values.
func (d *Document) Map() map[string]any {
	m := make(map[string]any, d.Len())
	for k, v := range d.Iter() {
		m[k] = v.Interface()
	}
	return m
}

// BSON converts the document into an ordered bson.D.
func (d *Document) BSON() bson.D {
	res := make(bson.D, 0, d.Len())
	for k, v := range d.Iter() {
		res = append(res, bson.E{Key: k, Value: v.BSON()})
	}
	return res
}

// String implements [fmt.Stringer].
func (d *Document) String() string {
	var b strings.Builder
	d.write(&b)
	return b.String()
}

func (d *Document) write(b *strings.Builder) {
	b.WriteByte('{')
	for n, f := range d.Fields() {
		if n > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.Quote(f.Key))
		b.WriteString(": ")
		f.Value.write(b)
	}
	b.WriteByte('}')
}
