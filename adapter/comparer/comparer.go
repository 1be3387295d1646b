// Package comparer contains the default [domain.Comparer] implementation,
// ordering values by the canonical BSON type order:
//
//	missing/null < numbers < strings < documents < arrays < binary <
//	object ids < booleans < dates < timestamps < regular expressions
//
// Numbers compare by value regardless of their representation, so int32(1),
// int64(1) and 1.0 are equal.
package comparer

import (
	"bytes"
	"cmp"
	"math"
	"math/big"
	"strings"

	"github.com/sboesebeck/morphium-sub001/adapter/collation"
	"github.com/sboesebeck/morphium-sub001/domain"
)

// Comparer implements [domain.Comparer].
type Comparer struct {
	collator *collation.Collator
}

// NewComparer returns a new implementation of [domain.Comparer].
func NewComparer(opts ...Option) domain.Comparer {
	c := Comparer{}
	for _, opt := range opts {
		opt(&c)
	}
	return &c
}

// Equal implements [domain.Comparer].
func (c *Comparer) Equal(a, b domain.Value) bool {
	return c.Compare(a, b) == 0
}

// Compare implements [domain.Comparer].
func (c *Comparer) Compare(a, b domain.Value) int {
	ba, bb := a.Kind().Bracket(), b.Kind().Bracket()
	if ba != bb {
		return cmp.Compare(ba, bb)
	}

	switch a.Kind() {
	case domain.KindMissing, domain.KindNull:
		return 0
	case domain.KindInt32, domain.KindInt64, domain.KindDouble:
		return CompareNumbers(a, b)
	case domain.KindString:
		return c.collator.Compare(a.Str(), b.Str())
	case domain.KindDocument:
		return c.compareDocuments(a.Doc(), b.Doc())
	case domain.KindArray:
		return c.compareArrays(a.Array(), b.Array())
	case domain.KindBinary:
		sa, da := a.BinaryData()
		sb, db := b.BinaryData()
		if r := cmp.Compare(len(da), len(db)); r != 0 {
			return r
		}
		if r := cmp.Compare(sa, sb); r != 0 {
			return r
		}
		return bytes.Compare(da, db)
	case domain.KindObjectID:
		ia, ib := a.ObjectID(), b.ObjectID()
		return bytes.Compare(ia[:], ib[:])
	case domain.KindBool:
		return cmp.Compare(a.Int64(), b.Int64())
	case domain.KindDateTime:
		return cmp.Compare(a.Millis(), b.Millis())
	case domain.KindTimestamp:
		ta, ia := a.Timestamp()
		tb, ib := b.Timestamp()
		if r := cmp.Compare(ta, tb); r != 0 {
			return r
		}
		return cmp.Compare(ia, ib)
	case domain.KindRegex:
		pa, oa := a.Regex()
		pb, ob := b.Regex()
		if r := strings.Compare(pa, pb); r != 0 {
			return r
		}
		return strings.Compare(oa, ob)
	}
	return 0
}

func (c *Comparer) compareDocuments(a, b *domain.Document) int {
	fa, fb := a.Fields(), b.Fields()
	for n := range min(len(fa), len(fb)) {
		if r := c.Compare(fa[n].Value, fb[n].Value); r != 0 {
			return r
		}
		if r := strings.Compare(fa[n].Key, fb[n].Key); r != 0 {
			return r
		}
	}
	return cmp.Compare(len(fa), len(fb))
}

func (c *Comparer) compareArrays(a, b []domain.Value) int {
	for n := range min(len(a), len(b)) {
		if r := c.Compare(a[n], b[n]); r != 0 {
			return r
		}
	}
	return cmp.Compare(len(a), len(b))
}

// CompareNumbers compares two numeric values by value. NaN is smaller than
// every other number and equal to itself.
func CompareNumbers(a, b domain.Value) int {
	if a.Kind() != domain.KindDouble && b.Kind() != domain.KindDouble {
		return cmp.Compare(a.Int64(), b.Int64())
	}
	fa, fb := a.Float64(), b.Float64()
	na, nb := math.IsNaN(fa), math.IsNaN(fb)
	switch {
	case na && nb:
		return 0
	case na:
		return -1
	case nb:
		return 1
	}
	if a.Kind() == domain.KindDouble && b.Kind() == domain.KindDouble {
		return cmp.Compare(fa, fb)
	}
	// mixed int/double: big.Float keeps int64 precision
	return toBig(a).Cmp(toBig(b))
}

func toBig(v domain.Value) *big.Float {
	if v.Kind() == domain.KindDouble {
		return new(big.Float).SetFloat64(v.Float64())
	}
	return new(big.Float).SetInt64(v.Int64())
}
