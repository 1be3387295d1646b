package expression

import (
	"slices"
	"strings"

	"github.com/sboesebeck/morphium-sub001/domain"
	"github.com/sboesebeck/morphium-sub001/pkg/uncomparable"
)

// Accumulator folds the values of a group, in stream order.
type Accumulator interface {
	// Add folds one value.
	Add(v domain.Value)
	// Result returns the folded value.
	Result() domain.Value
}

var accumulatorNames = []string{"$sum", "$avg", "$first", "$last", "$min", "$max", "$push", "$addToSet", "$count"}

// AccumulatorSpec is a parsed group accumulator such as {$sum: "$qty"}.
type AccumulatorSpec struct {
	Op  string
	Arg Expr
}

// ParseAccumulator parses the wire form of a group accumulator.
func ParseAccumulator(v domain.Value) (AccumulatorSpec, error) {
	if !v.IsDocument() || v.Doc().Len() != 1 {
		return AccumulatorSpec{}, malformed("", "accumulator must be an object with one operator, got %s", v)
	}
	op := v.Doc().Keys()[0]
	if !slices.Contains(accumulatorNames, op) {
		if strings.HasPrefix(op, "$") {
			return AccumulatorSpec{}, malformed(op, "unknown group accumulator")
		}
		return AccumulatorSpec{}, malformed("", "accumulator must be an operator, got %q", op)
	}
	raw := v.Doc().Get(op)
	if op == "$count" {
		if !raw.IsDocument() || raw.Doc().Len() != 0 {
			return AccumulatorSpec{}, malformed(op, "expected an empty object")
		}
		return AccumulatorSpec{Op: op, Arg: Literal(1)}, nil
	}
	if raw.IsArray() {
		return AccumulatorSpec{}, malformed(op, "the accumulator is a unary operator")
	}
	arg, err := Parse(raw)
	if err != nil {
		return AccumulatorSpec{}, err
	}
	return AccumulatorSpec{Op: op, Arg: arg}, nil
}

// Serialize returns the wire form of the accumulator.
func (a AccumulatorSpec) Serialize() domain.Value {
	arg := a.Arg.Serialize()
	if a.Op == "$count" {
		arg = domain.Doc(domain.NewDocument())
	}
	return domain.Doc(domain.NewDocument(domain.Field{Key: a.Op, Value: arg}))
}

// NewAccumulator returns an empty accumulator for spec.
func (ev *Evaluator) NewAccumulator(spec AccumulatorSpec) Accumulator {
	return newAccumulator(spec.Op, ev)
}

func newAccumulator(op string, ev *Evaluator) Accumulator {
	switch op {
	case "$sum", "$count":
		return &sumAcc{sum: domain.Int32(0)}
	case "$avg":
		return &avgAcc{}
	case "$first":
		return &firstAcc{}
	case "$last":
		return &lastAcc{}
	case "$min":
		return &extremeAcc{comparer: ev.comparer, want: -1}
	case "$max":
		return &extremeAcc{comparer: ev.comparer, want: 1}
	case "$push":
		return &pushAcc{items: []domain.Value{}}
	case "$addToSet":
		return &setAcc{set: uncomparable.New[struct{}](ev.hasher, ev.comparer)}
	}
	return nil
}

type sumAcc struct{ sum domain.Value }

func (a *sumAcc) Add(v domain.Value) {
	if v.IsNumber() {
		a.sum = domain.NumericAdd(a.sum, v)
	}
}

func (a *sumAcc) Result() domain.Value { return a.sum }

type avgAcc struct {
	sum domain.Value
	n   int64
}

func (a *avgAcc) Add(v domain.Value) {
	if !v.IsNumber() {
		return
	}
	if a.n == 0 {
		a.sum = v
	} else {
		a.sum = domain.NumericAdd(a.sum, v)
	}
	a.n++
}

func (a *avgAcc) Result() domain.Value {
	if a.n == 0 {
		return domain.Null()
	}
	if a.sum.Kind() == domain.KindDouble {
		return domain.Double(a.sum.Float64() / float64(a.n))
	}
	// Integer sums are divided before converting so the quotient keeps
	// every bit float64 can hold.
	q, r := a.sum.Int64()/a.n, a.sum.Int64()%a.n
	return domain.Double(float64(q) + float64(r)/float64(a.n))
}

type firstAcc struct {
	v   domain.Value
	set bool
}

func (a *firstAcc) Add(v domain.Value) {
	if !a.set {
		a.v, a.set = v, true
	}
}

func (a *firstAcc) Result() domain.Value { return nullIfMissing(a.v) }

type lastAcc struct{ v domain.Value }

func (a *lastAcc) Add(v domain.Value) { a.v = v }

func (a *lastAcc) Result() domain.Value { return nullIfMissing(a.v) }

type extremeAcc struct {
	comparer domain.Comparer
	want     int
	v        domain.Value
}

func (a *extremeAcc) Add(v domain.Value) {
	if v.IsNullish() {
		return
	}
	if a.v.IsMissing() || a.comparer.Compare(v, a.v)*a.want > 0 {
		a.v = v
	}
}

func (a *extremeAcc) Result() domain.Value { return nullIfMissing(a.v) }

type pushAcc struct{ items []domain.Value }

func (a *pushAcc) Add(v domain.Value) {
	if !v.IsMissing() {
		a.items = append(a.items, v)
	}
}

func (a *pushAcc) Result() domain.Value { return domain.Array(a.items...) }

type setAcc struct {
	set *uncomparable.Map[struct{}]
}

func (a *setAcc) Add(v domain.Value) {
	if !v.IsMissing() && !a.set.Has(v) {
		a.set.Set(v, struct{}{})
	}
}

func (a *setAcc) Result() domain.Value {
	return domain.Array(slices.Collect(a.set.Keys())...)
}

func nullIfMissing(v domain.Value) domain.Value {
	if v.IsMissing() {
		return domain.Null()
	}
	return v
}
