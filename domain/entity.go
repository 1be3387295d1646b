package domain

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// SortKey is a single sort criterion. Order is 1 for ascending and -1 for
// descending.
type SortKey struct {
	Key   string
	Order int
}

// Sort is an ordered list of sort criteria. The first key is primary.
type Sort []SortKey

// SortOf converts a wire sort document such as {a: 1, b: -1}.
func SortOf(a any) (Sort, error) {
	if s, ok := a.(Sort); ok {
		return s, nil
	}
	d, err := DocumentOf(a)
	if err != nil {
		return nil, err
	}
	s := make(Sort, 0, d.Len())
	for k, v := range d.Iter() {
		if !v.IsNumber() || (v.Float64() != 1 && v.Float64() != -1) {
			return nil, ErrMalformedExpression{Kind: "sort", Field: k, Reason: "sort direction must be 1 or -1"}
		}
		s = append(s, SortKey{Key: k, Order: int(v.Float64())})
	}
	return s, nil
}

// Document returns the wire form of the sort.
func (s Sort) Document() *Document {
	d := NewDocument()
	for _, k := range s {
		d.Set(k.Key, Int32(int32(k.Order)))
	}
	return d
}

// Collation describes locale-aware string comparison. Strength follows ICU:
// 1 compares base letters only, 2 adds accents, 3 (default) adds case.
type Collation struct {
	Locale   string
	Strength int
}

// CollationOf converts a wire collation document {locale, strength}.
func CollationOf(a any) (*Collation, error) {
	if a == nil {
		return nil, nil
	}
	if c, ok := a.(*Collation); ok {
		return c, nil
	}
	d, err := DocumentOf(a)
	if err != nil {
		return nil, err
	}
	c := Collation{Locale: d.Get("locale").Str(), Strength: 3}
	if s := d.Get("strength"); s.IsNumber() {
		c.Strength = int(s.Int64())
	}
	if c.Locale == "" {
		return nil, ErrMalformedExpression{Kind: "collation", Field: "locale", Reason: "locale is required"}
	}
	if c.Strength < 1 || c.Strength > 5 {
		return nil, ErrMalformedExpression{Kind: "collation", Field: "strength", Reason: "strength must be between 1 and 5"}
	}
	return &c, nil
}

// Document returns the wire form of the collation.
func (c *Collation) Document() *Document {
	return NewDocument(
		Field{Key: "locale", Value: String(c.Locale)},
		Field{Key: "strength", Value: Int32(int32(c.Strength))},
	)
}

// Special index kinds.
const (
	IndexKindText     = "text"
	IndexKind2D       = "2d"
	IndexKind2DSphere = "2dsphere"
	IndexKindHashed   = "hashed"
)

// IndexKey is one field of an index key specification. Kind is empty for
// ordered keys, which use Direction 1 or -1.
type IndexKey struct {
	Field     string
	Direction int
	Kind      string
}

// IndexDescriptor describes an index of a collection.
type IndexDescriptor struct {
	Name   string
	Keys   []IndexKey
	Unique bool
	// Sparse indexes skip documents that lack every indexed field.
	Sparse bool
	// ExpireAfterSeconds turns a single-field index into a TTL index.
	ExpireAfterSeconds *int64
}

// NewIndexDescriptor builds a descriptor from a wire key specification
// such as {a: 1, b: -1}, {body: "text"} or {loc: "2d"}.
func NewIndexDescriptor(keys any, opts ...IndexOption) (IndexDescriptor, error) {
	var io IndexOptions
	for _, opt := range opts {
		opt(&io)
	}
	d, err := DocumentOf(keys)
	if err != nil {
		return IndexDescriptor{}, err
	}
	desc := IndexDescriptor{
		Name:               io.Name,
		Unique:             io.Unique,
		Sparse:             io.Sparse,
		ExpireAfterSeconds: io.ExpireAfterSeconds,
	}
	for k, v := range d.Iter() {
		key := IndexKey{Field: k}
		switch {
		case v.IsNumber() && (v.Float64() == 1 || v.Float64() == -1):
			key.Direction = int(v.Float64())
		case v.Kind() == KindString && slices.Contains([]string{IndexKindText, IndexKind2D, IndexKind2DSphere, IndexKindHashed}, v.Str()):
			key.Kind = v.Str()
		default:
			return IndexDescriptor{}, ErrMalformedExpression{Kind: "index", Field: k, Reason: fmt.Sprintf("invalid key type %s", v)}
		}
		desc.Keys = append(desc.Keys, key)
	}
	if err := desc.Validate(); err != nil {
		return IndexDescriptor{}, err
	}
	if desc.Name == "" {
		desc.Name = desc.DefaultName()
	}
	return desc, nil
}

// Validate checks the descriptor invariants.
func (d IndexDescriptor) Validate() error {
	if len(d.Keys) == 0 {
		return ErrMalformedExpression{Kind: "index", Reason: "index needs at least one key"}
	}
	seen := make(map[string]bool, len(d.Keys))
	for _, k := range d.Keys {
		if k.Field == "" {
			return ErrMalformedExpression{Kind: "index", Reason: "empty field name"}
		}
		if seen[k.Field] {
			return ErrMalformedExpression{Kind: "index", Field: k.Field, Reason: "field repeated in key"}
		}
		seen[k.Field] = true
	}
	if d.ExpireAfterSeconds != nil {
		if len(d.Keys) != 1 {
			return ErrMalformedExpression{Kind: "index", Reason: "TTL indexes must have exactly one key"}
		}
		if *d.ExpireAfterSeconds < 0 {
			return ErrMalformedExpression{Kind: "index", Field: d.Keys[0].Field, Reason: "expireAfterSeconds must not be negative"}
		}
	}
	return nil
}

// DefaultName returns the conventional name: field_direction pairs joined
// with underscores, such as "a_1_b_-1" or "loc_2d".
func (d IndexDescriptor) DefaultName() string {
	parts := make([]string, 0, len(d.Keys)*2)
	for _, k := range d.Keys {
		parts = append(parts, k.Field)
		if k.Kind != "" {
			parts = append(parts, k.Kind)
		} else {
			parts = append(parts, strconv.Itoa(k.Direction))
		}
	}
	return strings.Join(parts, "_")
}

// Fields returns the indexed field names in key order.
func (d IndexDescriptor) Fields() []string {
	res := make([]string, len(d.Keys))
	for n, k := range d.Keys {
		res[n] = k.Field
	}
	return res
}

// SameKeys reports whether both descriptors index the same key
// specification.
func (d IndexDescriptor) SameKeys(o IndexDescriptor) bool {
	return slices.Equal(d.Keys, o.Keys)
}

// Equal reports whether both descriptors are identical.
func (d IndexDescriptor) Equal(o IndexDescriptor) bool {
	if d.Name != o.Name || d.Unique != o.Unique || d.Sparse != o.Sparse || !d.SameKeys(o) {
		return false
	}
	if (d.ExpireAfterSeconds == nil) != (o.ExpireAfterSeconds == nil) {
		return false
	}
	return d.ExpireAfterSeconds == nil || *d.ExpireAfterSeconds == *o.ExpireAfterSeconds
}

// IsTTL reports whether the index expires documents.
func (d IndexDescriptor) IsTTL() bool { return d.ExpireAfterSeconds != nil }

// Document returns the listIndexes form of the descriptor.
func (d IndexDescriptor) Document() *Document {
	key := NewDocument()
	for _, k := range d.Keys {
		if k.Kind != "" {
			key.Set(k.Field, String(k.Kind))
		} else {
			key.Set(k.Field, Int32(int32(k.Direction)))
		}
	}
	doc := NewDocument(
		Field{Key: "v", Value: Int32(2)},
		Field{Key: "key", Value: Doc(key)},
		Field{Key: "name", Value: String(d.Name)},
	)
	if d.Unique {
		doc.Set("unique", Bool(true))
	}
	if d.Sparse {
		doc.Set("sparse", Bool(true))
	}
	if d.ExpireAfterSeconds != nil {
		doc.Set("expireAfterSeconds", Int64(*d.ExpireAfterSeconds))
	}
	return doc
}

// WriteResult summarizes an update or delete. A target that does not exist
// yields zero counts, not an error.
type WriteResult struct {
	MatchedCount  int64
	ModifiedCount int64
	DeletedCount  int64
	// UpsertedID is missing unless an upsert inserted a document.
	UpsertedID Value
}

// Op is the operation of a [Command].
type Op uint8

// Command operations.
const (
	OpFind Op = iota + 1
	OpInsert
	OpUpdate
	OpDelete
	OpAggregate
	OpCount
)

var opNames = map[Op]string{
	OpFind:      "find",
	OpInsert:    "insert",
	OpUpdate:    "update",
	OpDelete:    "delete",
	OpAggregate: "aggregate",
	OpCount:     "count",
}

func (o Op) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return "op(" + strconv.Itoa(int(o)) + ")"
}

// Command is a fully resolved request handed over by a mapping or driver
// layer. Filter, Update, Projection and the items of Documents accept
// anything [DocumentOf] accepts; Pipeline anything [DocumentsOf] accepts.
type Command struct {
	Collection string
	Op         Op
	Filter     any
	Update     any
	Documents  []any
	Pipeline   any
	Sort       Sort
	Projection any
	Limit      int64
	Skip       int64
	// BatchSize greater than zero returns a lazily fetched cursor.
	// Otherwise results are fully materialized.
	BatchSize int
	Collation *Collation
	Upsert    bool
	Multi     bool
	Comment   string
}

// Result is the outcome of a [Command]. Only the fields relevant to the
// command's operation are set.
type Result struct {
	Cursor      Cursor
	InsertedIDs []Value
	Write       WriteResult
	Count       int64
}
