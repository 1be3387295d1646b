package cursor

import (
	"context"

	"github.com/sboesebeck/morphium-sub001/domain"
)

// SliceProducer serves materialized results, such as the output of an
// aggregation.
type SliceProducer struct {
	docs []*domain.Document
}

// NewSliceProducer returns a producer handing out docs in order.
func NewSliceProducer(docs []*domain.Document) *SliceProducer {
	return &SliceProducer{docs: docs}
}

// Fetch implements domain.BatchProducer.
func (p *SliceProducer) Fetch(ctx context.Context, n int) ([]*domain.Document, error) {
	select {
	case <-ctx.Done():
		return nil, domain.NewErrCancelled(ctx)
	default:
	}
	n = min(n, len(p.docs))
	batch := p.docs[:n:n]
	p.docs = p.docs[n:]
	return batch, nil
}

// Remaining returns the number of documents not fetched yet.
func (p *SliceProducer) Remaining() int { return len(p.docs) }
