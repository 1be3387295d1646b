package persistence

import (
	"github.com/sboesebeck/morphium-sub001/adapter/deserializer"
	"github.com/sboesebeck/morphium-sub001/adapter/serializer"
)

// WithSerializer sets the serializer writing each line.
func WithSerializer(s *serializer.Serializer) Option {
	return func(po *Persistence) {
		po.serializer = s
	}
}

// WithDeserializer sets the deserializer reading each line.
func WithDeserializer(d *deserializer.Deserializer) Option {
	return func(po *Persistence) {
		po.deserializer = d
	}
}

// WithCorruptAlertThreshold sets the share of corrupt lines, between 0 and
// 1, a read tolerates.
func WithCorruptAlertThreshold(c float64) Option {
	return func(po *Persistence) {
		po.corruptAlertThreshold = c
	}
}

// Option configures behavior through the functional options pattern.
type Option func(*Persistence)
