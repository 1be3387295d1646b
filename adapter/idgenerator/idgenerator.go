// Package idgenerator contains the default [domain.IDGenerator]
// implementation, creating ObjectIDs or random UUID strings.
package idgenerator

import (
	"crypto/rand"
	"io"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/sboesebeck/morphium-sub001/domain"
)

// IDGenerator implements [domain.IDGenerator].
type IDGenerator struct {
	reader  io.Reader
	useUUID bool
}

// NewIDGenerator implements [domain.IDGenerator].
func NewIDGenerator(opts ...Option) domain.IDGenerator {
	i := IDGenerator{
		reader: rand.Reader,
	}
	for _, opt := range opts {
		opt(&i)
	}
	return &i
}

// GenerateID implements [domain.IDGenerator].
func (i *IDGenerator) GenerateID() (domain.Value, error) {
	if !i.useUUID {
		return domain.ObjectID(bson.NewObjectID()), nil
	}
	id, err := uuid.NewRandomFromReader(i.reader)
	if err != nil {
		return domain.Missing(), err
	}
	return domain.String(id.String()), nil
}
