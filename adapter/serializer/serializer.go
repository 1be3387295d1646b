// Package serializer writes documents as relaxed Extended JSON, one
// document per line.
package serializer

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/sboesebeck/morphium-sub001/domain"
)

// Serializer turns documents into Extended JSON.
type Serializer struct {
	canonical bool
}

// NewSerializer returns a new [Serializer].
func NewSerializer(opts ...Option) *Serializer {
	s := Serializer{}
	for _, opt := range opts {
		opt(&s)
	}
	return &s
}

// Serialize returns the Extended JSON form of doc, keeping field order.
func (s *Serializer) Serialize(ctx context.Context, doc *domain.Document) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, domain.NewErrCancelled(ctx)
	default:
	}
	return bson.MarshalExtJSON(doc.BSON(), s.canonical, false)
}

// WithCanonical makes the serializer write canonical Extended JSON, which
// keeps every numeric type.
func WithCanonical() Option {
	return func(s *Serializer) {
		s.canonical = true
	}
}

// Option configures serializer behavior through the functional options
// pattern.
type Option func(*Serializer)
