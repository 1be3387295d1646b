// Package domain contains the value model, interfaces, options and errors
// shared by every adapter of the document store.
package domain

import (
	"context"
	"io"
	"time"
)

// Comparer orders values following the canonical BSON type order with
// numeric coercion.
type Comparer interface {
	// Compare returns a negative number if a < b, zero if a == b and a
	// positive number if a > b.
	Compare(a, b Value) int
	// Equal reports whether a and b are equal.
	Equal(a, b Value) bool
}

// Hasher hashes values so that values considered equal by the matching
// [Comparer] have the same hash.
type Hasher interface {
	// Hash returns the hash of v.
	Hash(v Value) uint64
}

// Decoder decodes a value into a Go target.
type Decoder interface {
	// Decode fills target, which must be a pointer, with source.
	Decode(source any, target any) error
}

// IDGenerator creates identity values for inserted documents.
type IDGenerator interface {
	// GenerateID returns a new unique identity value.
	GenerateID() (Value, error)
}

// TimeGetter provides the current time.
type TimeGetter interface {
	// GetTime returns the current time.
	GetTime() time.Time
}

// FieldNavigator resolves dotted paths inside documents.
type FieldNavigator interface {
	// GetAddress splits a dotted path into its segments.
	GetAddress(field string) ([]string, error)
	// GetField returns every value reached by addr. Arrays met along the
	// way are expanded, in which case expanded is true.
	GetField(doc *Document, addr ...string) (values []Value, expanded bool)
	// GetValue returns the single value at addr without expanding arrays.
	// Numeric segments index arrays.
	GetValue(doc *Document, addr ...string) Value
	// SetField writes value at addr, creating intermediate documents.
	SetField(doc *Document, value Value, addr ...string) error
	// UnsetField removes the value at addr, reporting whether it existed.
	UnsetField(doc *Document, addr ...string) bool
}

// BatchProducer feeds a [Cursor] one batch at a time.
type BatchProducer interface {
	// Fetch returns up to n documents. An empty result means the
	// producer is exhausted.
	Fetch(ctx context.Context, n int) ([]*Document, error)
}

// Cursor is a batched iterator over a result sequence.
type Cursor interface {
	// Next advances the cursor and returns the document at the new
	// position. Once it returns false it always will.
	Next() (*Document, bool)
	// Ahead skips n documents, fetching batches as needed.
	Ahead(n int)
	// Back rewinds n documents within the current batch.
	Back(n int) error
	// Available returns the number of buffered documents not read yet.
	Available() int
	// GetCursor returns the logical position: the number of documents
	// consumed or skipped so far.
	GetCursor() int
	// Current returns the last document returned by Next.
	Current() *Document
	// Scan decodes the current document into target.
	Scan(target any) error
	// All decodes every remaining document into target, a pointer to
	// a slice.
	All(target any) error
	// Err returns any error that occurred during iteration.
	Err() error
	// Close releases the cursor.
	Close() error
}

// Store is an in-process document store.
type Store interface {
	// Insert adds documents to a collection, returning their identity
	// values.
	Insert(ctx context.Context, collection string, docs []any, opts ...InsertOption) ([]Value, error)
	// Find runs a query and returns a cursor over the result.
	Find(ctx context.Context, collection string, filter any, opts ...FindOption) (Cursor, error)
	// FindOne decodes the first matching document into target.
	FindOne(ctx context.Context, collection string, filter any, target any, opts ...FindOption) error
	// Count returns the number of matching documents.
	Count(ctx context.Context, collection string, filter any, opts ...FindOption) (int64, error)
	// Distinct returns the distinct values of field among matching
	// documents.
	Distinct(ctx context.Context, collection string, field string, filter any) ([]Value, error)
	// Update applies an update expression to matching documents.
	Update(ctx context.Context, collection string, filter any, update any, opts ...UpdateOption) (WriteResult, error)
	// Delete removes matching documents.
	Delete(ctx context.Context, collection string, filter any, opts ...DeleteOption) (WriteResult, error)
	// Aggregate runs a pipeline over a collection.
	Aggregate(ctx context.Context, collection string, pipeline any, opts ...AggregateOption) (Cursor, error)
	// Execute runs a resolved command.
	Execute(ctx context.Context, cmd Command) (Result, error)
	// CreateIndex creates an index, returning its name.
	CreateIndex(ctx context.Context, collection string, desc IndexDescriptor) (string, error)
	// ListIndexes returns the indexes of a collection.
	ListIndexes(ctx context.Context, collection string) ([]IndexDescriptor, error)
	// DropIndex removes an index by name.
	DropIndex(ctx context.Context, collection string, name string) error
	// CreateCollection creates an empty collection if it does not exist.
	CreateCollection(ctx context.Context, collection string) error
	// DropCollection removes a collection with its documents and indexes.
	DropCollection(ctx context.Context, collection string) error
	// ListCollections returns the collection names in lexical order.
	ListCollections(ctx context.Context) ([]string, error)
	// Export writes a collection as newline-delimited extended JSON.
	Export(ctx context.Context, collection string, w io.Writer) error
	// Import reads newline-delimited extended JSON into a collection.
	Import(ctx context.Context, collection string, r io.Reader) (int, error)
	// Close stops background work and releases the store.
	Close(ctx context.Context) error
}
