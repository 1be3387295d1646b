// Package persistence moves collections in and out of the store as
// newline-delimited extended JSON.
package persistence

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/dolmen-go/contextio"

	"github.com/sboesebeck/morphium-sub001/adapter/decoder"
	"github.com/sboesebeck/morphium-sub001/adapter/deserializer"
	"github.com/sboesebeck/morphium-sub001/adapter/serializer"
	"github.com/sboesebeck/morphium-sub001/domain"
)

// MaxLineSize is the longest line ReadDocuments accepts.
const MaxLineSize = 16 << 20

// ErrCorruptData is returned when the share of unreadable lines exceeds
// the configured threshold.
type ErrCorruptData struct {
	CorruptItems          int
	DataLength            int
	CorruptAlertThreshold float64
	// FirstLine is the number of the first unreadable line, starting at 1.
	FirstLine int
	Err       error
}

func (e ErrCorruptData) Error() string {
	return fmt.Sprintf("%d of %d lines are corrupt, more than the %.0f%% threshold (first at line %d: %v)",
		e.CorruptItems, e.DataLength, e.CorruptAlertThreshold*100, e.FirstLine, e.Err)
}

func (e ErrCorruptData) Unwrap() error { return e.Err }

// Persistence writes and reads document streams. It is safe for
// concurrent use.
type Persistence struct {
	serializer            *serializer.Serializer
	deserializer          *deserializer.Deserializer
	corruptAlertThreshold float64
}

// NewPersistence returns a new [Persistence]. By default a single corrupt
// line fails a read.
func NewPersistence(options ...Option) *Persistence {
	p := Persistence{}
	for _, option := range options {
		option(&p)
	}
	if p.serializer == nil {
		p.serializer = serializer.NewSerializer()
	}
	if p.deserializer == nil {
		p.deserializer = deserializer.NewDeserializer(decoder.NewDecoder())
	}
	return &p
}

// WriteDocuments writes one line per document to w and returns the number
// of lines written.
func (p *Persistence) WriteDocuments(ctx context.Context, w io.Writer, docs ...*domain.Document) (int, error) {
	select {
	case <-ctx.Done():
		return 0, domain.NewErrCancelled(ctx)
	default:
	}

	wr := bufio.NewWriter(contextio.NewWriter(ctx, w))
	for n, doc := range docs {
		b, err := p.serializer.Serialize(ctx, doc)
		if err != nil {
			return n, err
		}
		if _, err = wr.Write(append(b, '\n')); err != nil {
			return n, p.ioError(ctx, err)
		}
	}
	if err := wr.Flush(); err != nil {
		return 0, p.ioError(ctx, err)
	}
	return len(docs), nil
}

// ReadDocuments reads documents from r, one per line. Blank lines are
// skipped. Unreadable lines are dropped as long as their share stays
// within the corruption threshold.
func (p *Persistence) ReadDocuments(ctx context.Context, r io.Reader) ([]*domain.Document, error) {
	select {
	case <-ctx.Done():
		return nil, domain.NewErrCancelled(ctx)
	default:
	}

	var (
		docs       []*domain.Document
		corrupt    ErrCorruptData
		dataLength int
		lineNumber int
	)

	lineStream := bufio.NewScanner(contextio.NewReader(ctx, r))
	lineStream.Buffer(make([]byte, 0, 64<<10), MaxLineSize)
	for lineStream.Scan() {
		lineNumber++
		line := lineStream.Bytes()
		if len(line) == 0 {
			continue
		}
		dataLength++
		doc, err := p.deserializer.Deserialize(ctx, line)
		if err != nil {
			if corrupt.CorruptItems == 0 {
				corrupt.FirstLine, corrupt.Err = lineNumber, err
			}
			corrupt.CorruptItems++
			continue
		}
		docs = append(docs, doc)
	}
	if err := lineStream.Err(); err != nil {
		return nil, p.ioError(ctx, err)
	}

	if corrupt.CorruptItems > 0 {
		rate := float64(corrupt.CorruptItems) / float64(dataLength)
		if rate > p.corruptAlertThreshold {
			corrupt.DataLength = dataLength
			corrupt.CorruptAlertThreshold = p.corruptAlertThreshold
			return nil, corrupt
		}
	}
	return docs, nil
}

func (p *Persistence) ioError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return domain.NewErrCancelled(ctx)
	}
	return err
}
