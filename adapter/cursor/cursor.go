// Package cursor contains the default [domain.Cursor] implementation.
package cursor

import (
	"context"
	"errors"

	"github.com/goccy/go-reflect"

	"github.com/sboesebeck/morphium-sub001/adapter/decoder"
	"github.com/sboesebeck/morphium-sub001/domain"
)

// DefaultBatchSize is used when no positive batch size is given.
const DefaultBatchSize = 101

// Cursor implements domain.Cursor. It buffers one batch of the producer at
// a time. Back can only rewind inside that batch.
type Cursor struct {
	ctx       context.Context
	cancel    context.CancelCauseFunc
	producer  domain.BatchProducer
	dec       domain.Decoder
	batchSize int

	buf []*domain.Document
	// pos is the index in buf of the next document to read.
	pos int
	// base is the logical position of buf[0].
	base      int
	current   *domain.Document
	exhausted bool
	err       error
}

// NewCursor returns a cursor reading from producer.
func NewCursor(ctx context.Context, producer domain.BatchProducer, options ...Option) (*Cursor, error) {
	select {
	case <-ctx.Done():
		return nil, domain.NewErrCancelled(ctx)
	default:
	}

	ctx, cancel := context.WithCancelCause(ctx)
	cur := &Cursor{
		ctx:       ctx,
		cancel:    cancel,
		producer:  producer,
		batchSize: DefaultBatchSize,
	}
	for _, option := range options {
		option(cur)
	}
	if cur.batchSize <= 0 {
		cur.batchSize = DefaultBatchSize
	}
	if cur.dec == nil {
		cur.dec = decoder.NewDecoder()
	}
	return cur, nil
}

// FromSlice returns a cursor over materialized results.
func FromSlice(ctx context.Context, docs []*domain.Document, options ...Option) (*Cursor, error) {
	return NewCursor(ctx, NewSliceProducer(docs), options...)
}

// fetch replaces the buffer with the next batch. It reports whether any
// document was read.
func (c *Cursor) fetch() bool {
	if c.exhausted {
		return false
	}
	select {
	case <-c.ctx.Done():
		c.fail(domain.NewErrCancelled(c.ctx))
		return false
	default:
	}
	batch, err := c.producer.Fetch(c.ctx, c.batchSize)
	if err != nil {
		c.fail(err)
		return false
	}
	if len(batch) == 0 {
		c.exhausted = true
		return false
	}
	c.base += len(c.buf)
	c.buf = batch
	c.pos = 0
	return true
}

func (c *Cursor) fail(err error) {
	if c.err == nil && !errors.Is(err, domain.ErrCursorClosed) {
		c.err = err
	}
	c.exhausted = true
}

// Next implements domain.Cursor.
func (c *Cursor) Next() (*domain.Document, bool) {
	if c.pos >= len(c.buf) && !c.fetch() {
		c.current = nil
		return nil, false
	}
	c.current = c.buf[c.pos]
	c.pos++
	return c.current, true
}

// Ahead implements domain.Cursor.
func (c *Cursor) Ahead(n int) {
	for n > 0 {
		if c.pos >= len(c.buf) && !c.fetch() {
			return
		}
		step := min(n, len(c.buf)-c.pos)
		c.pos += step
		n -= step
	}
}

// Back implements domain.Cursor. Rewinding before the first document of
// the current batch returns [domain.ErrRewindOutOfBuffer] and leaves the
// position unchanged.
func (c *Cursor) Back(n int) error {
	if n < 0 || n > c.pos || c.exhausted {
		return domain.ErrRewindOutOfBuffer
	}
	c.pos -= n
	return nil
}

// Available implements domain.Cursor.
func (c *Cursor) Available() int { return len(c.buf) - c.pos }

// GetCursor implements domain.Cursor.
func (c *Cursor) GetCursor() int { return c.base + c.pos }

// Current implements domain.Cursor.
func (c *Cursor) Current() *domain.Document { return c.current }

// Err implements domain.Cursor.
func (c *Cursor) Err() error { return c.err }

// Scan implements domain.Cursor.
func (c *Cursor) Scan(target any) error {
	select {
	case <-c.ctx.Done():
		return context.Cause(c.ctx)
	default:
	}
	if c.current == nil {
		return domain.ErrScanBeforeNext
	}
	return c.dec.Decode(c.current, target)
}

// All implements domain.Cursor. It decodes the remaining documents and
// closes the cursor.
func (c *Cursor) All(target any) error {
	if target == nil {
		return domain.ErrTargetNil
	}
	value := reflect.ValueNoEscapeOf(target)
	if value.Kind() != reflect.Ptr || value.Elem().Kind() != reflect.Slice {
		return domain.ErrNonPointer
	}
	defer c.Close()

	docs := make([]any, 0, c.Available())
	for {
		doc, ok := c.Next()
		if !ok {
			break
		}
		docs = append(docs, doc)
	}
	if c.err != nil {
		return c.err
	}
	return c.dec.Decode(docs, target)
}

// Close implements domain.Cursor.
func (c *Cursor) Close() error {
	select {
	case <-c.ctx.Done():
		return context.Cause(c.ctx)
	default:
	}
	c.cancel(domain.ErrCursorClosed)
	c.base += c.pos
	c.buf, c.pos, c.current, c.exhausted = nil, 0, nil, true
	return nil
}
