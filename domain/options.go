package domain

// WithFindSort specifies the sort order for query results.
func WithFindSort(s Sort) FindOption {
	return func(fo *FindOptions) {
		fo.Sort = s
	}
}

// WithFindSkip sets the number of documents to skip in query results.
func WithFindSkip(s int64) FindOption {
	return func(fo *FindOptions) {
		fo.Skip = s
	}
}

// WithFindLimit sets the maximum number of documents to return.
func WithFindLimit(l int64) FindOption {
	return func(fo *FindOptions) {
		fo.Limit = l
	}
}

// WithFindProjection specifies which fields to include or exclude.
func WithFindProjection(p any) FindOption {
	return func(fo *FindOptions) {
		fo.Projection = p
	}
}

// WithFindBatchSize sets how many documents the cursor fetches at once.
func WithFindBatchSize(n int) FindOption {
	return func(fo *FindOptions) {
		fo.BatchSize = n
	}
}

// WithFindCollation sets the collation used by equality and sort.
func WithFindCollation(c *Collation) FindOption {
	return func(fo *FindOptions) {
		fo.Collation = c
	}
}

// FindOption configures query behavior through the functional options pattern.
type FindOption func(*FindOptions)

// FindOptions contains parameters for customizing query execution.
type FindOptions struct {
	// Sort specifies the sort order for results.
	Sort Sort
	// Skip specifies the number of documents to skip.
	Skip int64
	// Limit specifies the maximum number of documents to return. Zero
	// means no limit.
	Limit int64
	// Projection specifies which fields to include or exclude from results.
	Projection any
	// BatchSize is the cursor batch size. Zero uses the store default.
	BatchSize int
	// Collation overrides string comparison.
	Collation *Collation
}

// WithUpdateMulti enables updating every matching document.
func WithUpdateMulti(m bool) UpdateOption {
	return func(uo *UpdateOptions) {
		uo.Multi = m
	}
}

// WithUpsert enables inserting a document if no matches are found.
func WithUpsert(u bool) UpdateOption {
	return func(uo *UpdateOptions) {
		uo.Upsert = u
	}
}

// WithUpdateCollation sets the collation used to select documents.
func WithUpdateCollation(c *Collation) UpdateOption {
	return func(uo *UpdateOptions) {
		uo.Collation = c
	}
}

// UpdateOption configures update behavior through the functional options
// pattern.
type UpdateOption func(*UpdateOptions)

// UpdateOptions contains parameters for update operations.
type UpdateOptions struct {
	Multi     bool
	Upsert    bool
	Collation *Collation
}

// WithDeleteMulti enables deleting every matching document.
func WithDeleteMulti(m bool) DeleteOption {
	return func(do *DeleteOptions) {
		do.Multi = m
	}
}

// WithDeleteCollation sets the collation used to select documents.
func WithDeleteCollation(c *Collation) DeleteOption {
	return func(do *DeleteOptions) {
		do.Collation = c
	}
}

// DeleteOption configures delete behavior through the functional options
// pattern.
type DeleteOption func(*DeleteOptions)

// DeleteOptions contains parameters for delete operations.
type DeleteOptions struct {
	Multi     bool
	Collation *Collation
}

// WithOrdered controls whether an insert stops at the first failing
// document (the default) or keeps inserting the remaining ones.
func WithOrdered(o bool) InsertOption {
	return func(io *InsertOptions) {
		io.Unordered = !o
	}
}

// WithAllOrNothing makes an insert roll back every document of the batch
// when one of them fails.
func WithAllOrNothing() InsertOption {
	return func(io *InsertOptions) {
		io.AllOrNothing = true
	}
}

// InsertOption configures insert behavior through the functional options
// pattern.
type InsertOption func(*InsertOptions)

// InsertOptions contains parameters for insert operations.
type InsertOptions struct {
	Unordered    bool
	AllOrNothing bool
}

// WithAggregateBatchSize sets the batch size of the returned cursor.
func WithAggregateBatchSize(n int) AggregateOption {
	return func(ao *AggregateOptions) {
		ao.BatchSize = n
	}
}

// WithAggregateCollation attaches a collation to the whole pipeline.
func WithAggregateCollation(c *Collation) AggregateOption {
	return func(ao *AggregateOptions) {
		ao.Collation = c
	}
}

// WithAggregateComment attaches a comment to the pipeline.
func WithAggregateComment(c string) AggregateOption {
	return func(ao *AggregateOptions) {
		ao.Comment = c
	}
}

// AggregateOption configures aggregation through the functional options
// pattern.
type AggregateOption func(*AggregateOptions)

// AggregateOptions contains parameters for aggregation.
type AggregateOptions struct {
	BatchSize int
	Collation *Collation
	Comment   string
}

// WithIndexName sets the index name instead of the generated one.
func WithIndexName(n string) IndexOption {
	return func(io *IndexOptions) {
		io.Name = n
	}
}

// WithUnique sets whether the index enforces unique keys.
func WithUnique(u bool) IndexOption {
	return func(io *IndexOptions) {
		io.Unique = u
	}
}

// WithSparse sets whether documents lacking the indexed fields are skipped.
func WithSparse(s bool) IndexOption {
	return func(io *IndexOptions) {
		io.Sparse = s
	}
}

// WithTTL turns the index into a TTL index.
func WithTTL(seconds int64) IndexOption {
	return func(io *IndexOptions) {
		io.ExpireAfterSeconds = &seconds
	}
}

// IndexOption configures index creation through the functional options
// pattern.
type IndexOption func(*IndexOptions)

// IndexOptions contains the optional parts of an index descriptor.
type IndexOptions struct {
	Name               string
	Unique             bool
	Sparse             bool
	ExpireAfterSeconds *int64
}
