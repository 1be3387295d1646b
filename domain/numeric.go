package domain

import "math"

// WidestKind returns the numeric kind that holds both a and b.
func WidestKind(a, b Kind) Kind {
	if a == KindDouble || b == KindDouble {
		return KindDouble
	}
	if a == KindInt64 || b == KindInt64 {
		return KindInt64
	}
	return KindInt32
}

func fitInt(k Kind, i int64) Value {
	if k == KindInt32 && i >= math.MinInt32 && i <= math.MaxInt32 {
		return Int32(int32(i))
	}
	return Int64(i)
}

// NumericAdd returns a+b with the widest kind of both operands. Integer
// overflow widens int32 into int64 and int64 into double. Both operands
// must be numeric.
func NumericAdd(a, b Value) Value {
	k := WidestKind(a.Kind(), b.Kind())
	if k == KindDouble {
		return Double(a.Float64() + b.Float64())
	}
	x, y := a.Int64(), b.Int64()
	s := x + y
	if (x > 0 && y > 0 && s < 0) || (x < 0 && y < 0 && s >= 0) {
		return Double(float64(x) + float64(y))
	}
	return fitInt(k, s)
}

// NumericSubtract returns a-b following the rules of [NumericAdd].
func NumericSubtract(a, b Value) Value {
	k := WidestKind(a.Kind(), b.Kind())
	if k == KindDouble {
		return Double(a.Float64() - b.Float64())
	}
	x, y := a.Int64(), b.Int64()
	s := x - y
	if (x >= 0 && y < 0 && s < 0) || (x < 0 && y > 0 && s >= 0) {
		return Double(float64(x) - float64(y))
	}
	return fitInt(k, s)
}

// NumericMultiply returns a*b following the rules of [NumericAdd].
func NumericMultiply(a, b Value) Value {
	k := WidestKind(a.Kind(), b.Kind())
	if k == KindDouble {
		return Double(a.Float64() * b.Float64())
	}
	x, y := a.Int64(), b.Int64()
	if x == 0 || y == 0 {
		return fitInt(k, 0)
	}
	p := x * y
	if p/y != x || (x == -1 && y == math.MinInt64) || (y == -1 && x == math.MinInt64) {
		return Double(float64(x) * float64(y))
	}
	return fitInt(k, p)
}

// ZeroOf returns zero with the kind of v, or int32 zero for non-numbers.
func ZeroOf(v Value) Value {
	switch v.Kind() {
	case KindDouble:
		return Double(0)
	case KindInt64:
		return Int64(0)
	}
	return Int32(0)
}
