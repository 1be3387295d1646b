// Package deserializer reads documents written as Extended JSON, relaxed
// or canonical.
package deserializer

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/sboesebeck/morphium-sub001/domain"
)

// NewDeserializer returns a new [Deserializer].
func NewDeserializer(decoder domain.Decoder) *Deserializer {
	return &Deserializer{
		decoder: decoder,
	}
}

// Deserializer parses Extended JSON into documents.
type Deserializer struct {
	decoder domain.Decoder
}

// Deserialize parses one document, keeping field order.
func (d *Deserializer) Deserialize(ctx context.Context, b []byte) (*domain.Document, error) {
	select {
	case <-ctx.Done():
		return nil, domain.NewErrCancelled(ctx)
	default:
	}
	var raw bson.D
	if err := bson.UnmarshalExtJSON(b, false, &raw); err != nil {
		return nil, domain.ErrDocumentType{Reason: err.Error()}
	}
	return domain.DocumentOf(raw)
}

// DeserializeInto parses one document and decodes it into target.
func (d *Deserializer) DeserializeInto(ctx context.Context, b []byte, target any) error {
	if target == nil {
		return domain.ErrTargetNil
	}
	doc, err := d.Deserialize(ctx, b)
	if err != nil {
		return err
	}
	return d.decoder.Decode(doc, target)
}
