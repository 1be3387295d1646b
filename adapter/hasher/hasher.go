// Package hasher contains an xxhash based implementation of
// [domain.Hasher]. Values are fed to the digest in a canonical form so that
// values equal under [comparer.Comparer] hash the same: every number is
// hashed as its float64 value, and strings are hashed through the collation
// key when a collator is set.
package hasher

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/sboesebeck/morphium-sub001/adapter/collation"
	"github.com/sboesebeck/morphium-sub001/domain"
)

// Hasher implements [domain.Hasher].
type Hasher struct {
	collator *collation.Collator
}

// NewHasher returns a new implementation of [domain.Hasher].
func NewHasher(opts ...Option) domain.Hasher {
	h := Hasher{}
	for _, opt := range opts {
		opt(&h)
	}
	return &h
}

// Hash implements [domain.Hasher].
func (h *Hasher) Hash(v domain.Value) uint64 {
	d := xxhash.New()
	h.write(d, v)
	return d.Sum64()
}

func (h *Hasher) write(d *xxhash.Digest, v domain.Value) {
	var buf [9]byte
	buf[0] = byte(v.Kind().Bracket())

	switch v.Kind() {
	case domain.KindMissing, domain.KindNull:
		_, _ = d.Write(buf[:1])
	case domain.KindInt32, domain.KindInt64, domain.KindDouble:
		f := v.Float64()
		switch {
		case math.IsNaN(f):
			f = math.NaN()
		case f == 0:
			f = 0 // -0 == 0
		}
		binary.LittleEndian.PutUint64(buf[1:], math.Float64bits(f))
		_, _ = d.Write(buf[:])
	case domain.KindString:
		_, _ = d.Write(buf[:1])
		if h.collator != nil {
			_, _ = d.Write(h.collator.Key(v.Str()))
		} else {
			_, _ = d.WriteString(v.Str())
		}
	case domain.KindBinary:
		sub, data := v.BinaryData()
		buf[1] = sub
		_, _ = d.Write(buf[:2])
		_, _ = d.Write(data)
	case domain.KindObjectID:
		_, _ = d.Write(buf[:1])
		id := v.ObjectID()
		_, _ = d.Write(id[:])
	case domain.KindBool:
		buf[1] = byte(v.Int64())
		_, _ = d.Write(buf[:2])
	case domain.KindDateTime:
		binary.LittleEndian.PutUint64(buf[1:], uint64(v.Millis()))
		_, _ = d.Write(buf[:])
	case domain.KindTimestamp:
		t, i := v.Timestamp()
		binary.LittleEndian.PutUint64(buf[1:], uint64(t)<<32|uint64(i))
		_, _ = d.Write(buf[:])
	case domain.KindRegex:
		p, o := v.Regex()
		_, _ = d.Write(buf[:1])
		_, _ = d.WriteString(p)
		_, _ = d.WriteString("/")
		_, _ = d.WriteString(o)
	case domain.KindDocument:
		_, _ = d.Write(buf[:1])
		for k, item := range v.Doc().Iter() {
			_, _ = d.WriteString(k)
			_, _ = d.Write([]byte{0})
			h.write(d, item)
		}
		_, _ = d.Write([]byte{0xff})
	case domain.KindArray:
		_, _ = d.Write(buf[:1])
		for _, item := range v.Array() {
			h.write(d, item)
		}
		_, _ = d.Write([]byte{0xff})
	}
}
