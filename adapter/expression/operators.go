package expression

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sboesebeck/morphium-sub001/domain"
)

type argForm uint8

const (
	formPositional argForm = iota
	formCond
	formFilter
	formMap
	formDate
)

type valueFunc func(ev *Evaluator, args []domain.Value) (domain.Value, error)

type lazyFunc func(ev *Evaluator, sc *scope, e Expr) (domain.Value, error)

type opSpec struct {
	min, max int
	form     argForm
	fn       valueFunc
	lazy     lazyFunc
}

func (s opSpec) arity() string {
	switch {
	case s.max < 0:
		return fmt.Sprintf("at least %d argument(s)", s.min)
	case s.min == s.max:
		return fmt.Sprintf("%d argument(s)", s.min)
	}
	return fmt.Sprintf("%d to %d arguments", s.min, s.max)
}

// accumulatorOnly lists accumulators without an expression form.
var accumulatorOnly = map[string]struct{}{
	"$push":     {},
	"$addToSet": {},
}

var operators map[string]opSpec

func init() {
	operators = map[string]opSpec{
		"$add":      {min: 0, max: -1, fn: opAdd},
		"$subtract": {min: 2, max: 2, fn: opSubtract},
		"$multiply": {min: 0, max: -1, fn: opMultiply},
		"$divide":   {min: 2, max: 2, fn: opDivide},
		"$mod":      {min: 2, max: 2, fn: opMod},
		"$abs":      {min: 1, max: 1, fn: unaryMath("$abs", math.Abs)},
		"$ceil":     {min: 1, max: 1, fn: unaryMath("$ceil", math.Ceil)},
		"$floor":    {min: 1, max: 1, fn: unaryMath("$floor", math.Floor)},
		"$trunc":    {min: 1, max: 1, fn: unaryMath("$trunc", math.Trunc)},

		"$eq":  {min: 2, max: 2, fn: compareOp(func(c int) bool { return c == 0 })},
		"$ne":  {min: 2, max: 2, fn: compareOp(func(c int) bool { return c != 0 })},
		"$gt":  {min: 2, max: 2, fn: compareOp(func(c int) bool { return c > 0 })},
		"$gte": {min: 2, max: 2, fn: compareOp(func(c int) bool { return c >= 0 })},
		"$lt":  {min: 2, max: 2, fn: compareOp(func(c int) bool { return c < 0 })},
		"$lte": {min: 2, max: 2, fn: compareOp(func(c int) bool { return c <= 0 })},
		"$cmp": {min: 2, max: 2, fn: opCmp},

		"$and": {min: 0, max: -1, lazy: opAnd},
		"$or":  {min: 0, max: -1, lazy: opOr},
		"$not": {min: 1, max: 1, fn: opNot},

		"$cond":   {min: 3, max: 3, form: formCond, lazy: opCond},
		"$ifNull": {min: 2, max: -1, lazy: opIfNull},

		"$concat":      {min: 0, max: -1, fn: opConcat},
		"$toLower":     {min: 1, max: 1, fn: caseOp("$toLower", strings.ToLower)},
		"$toUpper":     {min: 1, max: 1, fn: caseOp("$toUpper", strings.ToUpper)},
		"$substr":      {min: 3, max: 3, fn: opSubstr},
		"$substrBytes": {min: 3, max: 3, fn: opSubstr},
		"$strLenCP":    {min: 1, max: 1, fn: opStrLenCP},
		"$toString":    {min: 1, max: 1, fn: opToString},

		"$size":         {min: 1, max: 1, fn: opSize},
		"$arrayElemAt":  {min: 2, max: 2, fn: opArrayElemAt},
		"$in":           {min: 2, max: 2, fn: opIn},
		"$concatArrays": {min: 0, max: -1, fn: opConcatArrays},
		"$isArray":      {min: 1, max: 1, fn: opIsArray},
		"$slice":        {min: 2, max: 3, fn: opSlice},
		"$first":        {min: 1, max: 1, fn: edgeOp("$first", true)},
		"$last":         {min: 1, max: 1, fn: edgeOp("$last", false)},
		"$filter":       {min: 2, max: 2, form: formFilter, lazy: opFilter},
		"$map":          {min: 2, max: 2, form: formMap, lazy: opMap},

		"$year":        {min: 1, max: 1, form: formDate, fn: dateOp("$year", func(t time.Time) int { return t.Year() })},
		"$month":       {min: 1, max: 1, form: formDate, fn: dateOp("$month", func(t time.Time) int { return int(t.Month()) })},
		"$dayOfMonth":  {min: 1, max: 1, form: formDate, fn: dateOp("$dayOfMonth", time.Time.Day)},
		"$hour":        {min: 1, max: 1, form: formDate, fn: dateOp("$hour", time.Time.Hour)},
		"$minute":      {min: 1, max: 1, form: formDate, fn: dateOp("$minute", time.Time.Minute)},
		"$second":      {min: 1, max: 1, form: formDate, fn: dateOp("$second", time.Time.Second)},
		"$millisecond": {min: 1, max: 1, form: formDate, fn: dateOp("$millisecond", func(t time.Time) int { return t.Nanosecond() / int(time.Millisecond) })},
		"$dayOfWeek":   {min: 1, max: 1, form: formDate, fn: dateOp("$dayOfWeek", func(t time.Time) int { return int(t.Weekday()) + 1 })},
		"$dayOfYear":   {min: 1, max: 1, form: formDate, fn: dateOp("$dayOfYear", time.Time.YearDay)},

		"$type": {min: 1, max: 1, fn: opType},

		"$sum": {min: 1, max: -1, fn: foldOp("$sum")},
		"$avg": {min: 1, max: -1, fn: foldOp("$avg")},
		"$min": {min: 1, max: -1, fn: foldOp("$min")},
		"$max": {min: 1, max: -1, fn: foldOp("$max")},
	}
}

func typeErr(op, want string, got domain.Value) error {
	return malformed(op, "expected %s, got %s", want, got.Kind())
}

func anyNullish(args []domain.Value) bool {
	for _, a := range args {
		if a.IsNullish() {
			return true
		}
	}
	return false
}

func opAdd(_ *Evaluator, args []domain.Value) (domain.Value, error) {
	if anyNullish(args) {
		return domain.Null(), nil
	}
	acc := domain.Int32(0)
	var date *int64
	for _, a := range args {
		switch {
		case a.IsNumber():
			acc = domain.NumericAdd(acc, a)
		case a.Kind() == domain.KindDateTime && date == nil:
			ms := a.Millis()
			date = &ms
		default:
			return domain.Value{}, typeErr("$add", "numbers and at most one date", a)
		}
	}
	if date != nil {
		return domain.DateTimeMillis(*date + int64(math.Round(acc.Float64()))), nil
	}
	return acc, nil
}

func opSubtract(_ *Evaluator, args []domain.Value) (domain.Value, error) {
	a, b := args[0], args[1]
	switch {
	case a.IsNullish() || b.IsNullish():
		return domain.Null(), nil
	case a.IsNumber() && b.IsNumber():
		return domain.NumericSubtract(a, b), nil
	case a.Kind() == domain.KindDateTime && b.Kind() == domain.KindDateTime:
		return domain.Int64(a.Millis() - b.Millis()), nil
	case a.Kind() == domain.KindDateTime && b.IsNumber():
		return domain.DateTimeMillis(a.Millis() - int64(math.Round(b.Float64()))), nil
	}
	return domain.Value{}, malformed("$subtract", "cannot subtract %s from %s", b.Kind(), a.Kind())
}

func opMultiply(_ *Evaluator, args []domain.Value) (domain.Value, error) {
	if anyNullish(args) {
		return domain.Null(), nil
	}
	acc := domain.Int32(1)
	for _, a := range args {
		if !a.IsNumber() {
			return domain.Value{}, typeErr("$multiply", "number", a)
		}
		acc = domain.NumericMultiply(acc, a)
	}
	return acc, nil
}

func numericPair(op string, args []domain.Value) (domain.Value, domain.Value, error) {
	a, b := args[0], args[1]
	if !a.IsNumber() {
		return a, b, typeErr(op, "number", a)
	}
	if !b.IsNumber() {
		return a, b, typeErr(op, "number", b)
	}
	return a, b, nil
}

func opDivide(_ *Evaluator, args []domain.Value) (domain.Value, error) {
	if anyNullish(args) {
		return domain.Null(), nil
	}
	a, b, err := numericPair("$divide", args)
	if err != nil {
		return domain.Value{}, err
	}
	if b.Float64() == 0 {
		return domain.Value{}, fmt.Errorf("$divide: %w", domain.ErrDivideByZero)
	}
	return domain.Double(a.Float64() / b.Float64()), nil
}

func opMod(_ *Evaluator, args []domain.Value) (domain.Value, error) {
	if anyNullish(args) {
		return domain.Null(), nil
	}
	a, b, err := numericPair("$mod", args)
	if err != nil {
		return domain.Value{}, err
	}
	if b.Float64() == 0 {
		return domain.Value{}, fmt.Errorf("$mod: %w", domain.ErrDivideByZero)
	}
	switch domain.WidestKind(a.Kind(), b.Kind()) {
	case domain.KindInt32:
		return domain.Int32(int32(a.Int64() % b.Int64())), nil
	case domain.KindInt64:
		return domain.Int64(a.Int64() % b.Int64()), nil
	}
	return domain.Double(math.Mod(a.Float64(), b.Float64())), nil
}

func unaryMath(op string, f func(float64) float64) valueFunc {
	return func(_ *Evaluator, args []domain.Value) (domain.Value, error) {
		a := args[0]
		switch a.Kind() {
		case domain.KindMissing, domain.KindNull:
			return domain.Null(), nil
		case domain.KindDouble:
			return domain.Double(f(a.Float64())), nil
		case domain.KindInt32, domain.KindInt64:
			if op != "$abs" {
				return a, nil
			}
			i := a.Int64()
			switch {
			case i == math.MinInt64:
				return domain.Double(-float64(i)), nil
			case i >= 0:
				return a, nil
			case a.Kind() == domain.KindInt32 && i == math.MinInt32:
				return domain.Int64(-i), nil
			case a.Kind() == domain.KindInt32:
				return domain.Int32(int32(-i)), nil
			}
			return domain.Int64(-i), nil
		}
		return domain.Value{}, typeErr(op, "number", a)
	}
}

// compare orders two expression results. Unlike query filters, a missing
// value sorts below null.
func (ev *Evaluator) compare(a, b domain.Value) int {
	if a.IsMissing() != b.IsMissing() && a.IsNullish() && b.IsNullish() {
		if a.IsMissing() {
			return -1
		}
		return 1
	}
	return ev.comparer.Compare(a, b)
}

func compareOp(test func(int) bool) valueFunc {
	return func(ev *Evaluator, args []domain.Value) (domain.Value, error) {
		return domain.Bool(test(ev.compare(args[0], args[1]))), nil
	}
}

func opCmp(ev *Evaluator, args []domain.Value) (domain.Value, error) {
	c := ev.compare(args[0], args[1])
	switch {
	case c < 0:
		c = -1
	case c > 0:
		c = 1
	}
	return domain.Int32(int32(c)), nil
}

func opAnd(ev *Evaluator, sc *scope, e Expr) (domain.Value, error) {
	for _, a := range e.args {
		v, err := ev.eval(a, sc)
		if err != nil {
			return domain.Value{}, err
		}
		if !v.Truthy() {
			return domain.Bool(false), nil
		}
	}
	return domain.Bool(true), nil
}

func opOr(ev *Evaluator, sc *scope, e Expr) (domain.Value, error) {
	for _, a := range e.args {
		v, err := ev.eval(a, sc)
		if err != nil {
			return domain.Value{}, err
		}
		if v.Truthy() {
			return domain.Bool(true), nil
		}
	}
	return domain.Bool(false), nil
}

func opNot(_ *Evaluator, args []domain.Value) (domain.Value, error) {
	return domain.Bool(!args[0].Truthy()), nil
}

func opCond(ev *Evaluator, sc *scope, e Expr) (domain.Value, error) {
	c, err := ev.eval(e.args[0], sc)
	if err != nil {
		return domain.Value{}, err
	}
	if c.Truthy() {
		return ev.eval(e.args[1], sc)
	}
	return ev.eval(e.args[2], sc)
}

func opIfNull(ev *Evaluator, sc *scope, e Expr) (domain.Value, error) {
	last := len(e.args) - 1
	for _, a := range e.args[:last] {
		v, err := ev.eval(a, sc)
		if err != nil {
			return domain.Value{}, err
		}
		if !v.IsNullish() {
			return v, nil
		}
	}
	return ev.eval(e.args[last], sc)
}

func opConcat(_ *Evaluator, args []domain.Value) (domain.Value, error) {
	if anyNullish(args) {
		return domain.Null(), nil
	}
	var b strings.Builder
	for _, a := range args {
		if a.Kind() != domain.KindString {
			return domain.Value{}, typeErr("$concat", "string", a)
		}
		b.WriteString(a.Str())
	}
	return domain.String(b.String()), nil
}

func stringOf(op string, a domain.Value) (string, error) {
	switch a.Kind() {
	case domain.KindMissing, domain.KindNull:
		return "", nil
	case domain.KindString:
		return a.Str(), nil
	case domain.KindInt32, domain.KindInt64:
		return strconv.FormatInt(a.Int64(), 10), nil
	case domain.KindDouble:
		return strconv.FormatFloat(a.Float64(), 'g', -1, 64), nil
	case domain.KindBool:
		return strconv.FormatBool(a.Bool()), nil
	case domain.KindDateTime:
		return a.Time().Format("2006-01-02T15:04:05.000Z"), nil
	case domain.KindObjectID:
		return a.ObjectID().Hex(), nil
	}
	return "", typeErr(op, "string convertible value", a)
}

func caseOp(op string, f func(string) string) valueFunc {
	return func(_ *Evaluator, args []domain.Value) (domain.Value, error) {
		s, err := stringOf(op, args[0])
		if err != nil {
			return domain.Value{}, err
		}
		return domain.String(f(s)), nil
	}
}

func opToString(_ *Evaluator, args []domain.Value) (domain.Value, error) {
	if args[0].IsNullish() {
		return domain.Null(), nil
	}
	s, err := stringOf("$toString", args[0])
	if err != nil {
		return domain.Value{}, err
	}
	return domain.String(s), nil
}

func opSubstr(_ *Evaluator, args []domain.Value) (domain.Value, error) {
	s, err := stringOf("$substr", args[0])
	if err != nil {
		return domain.Value{}, err
	}
	if !args[1].IsNumber() {
		return domain.Value{}, typeErr("$substr", "numeric start", args[1])
	}
	if !args[2].IsNumber() {
		return domain.Value{}, typeErr("$substr", "numeric length", args[2])
	}
	start, length := int(args[1].Int64()), int(args[2].Int64())
	if start < 0 || start >= len(s) {
		return domain.String(""), nil
	}
	end := len(s)
	if length >= 0 && start+length < end {
		end = start + length
	}
	return domain.String(s[start:end]), nil
}

func opStrLenCP(_ *Evaluator, args []domain.Value) (domain.Value, error) {
	if args[0].Kind() != domain.KindString {
		return domain.Value{}, typeErr("$strLenCP", "string", args[0])
	}
	return domain.Int32(int32(utf8.RuneCountInString(args[0].Str()))), nil
}

func opSize(_ *Evaluator, args []domain.Value) (domain.Value, error) {
	if !args[0].IsArray() {
		return domain.Value{}, typeErr("$size", "array", args[0])
	}
	return domain.Int32(int32(len(args[0].Array()))), nil
}

func opArrayElemAt(_ *Evaluator, args []domain.Value) (domain.Value, error) {
	arr, idx := args[0], args[1]
	if arr.IsNullish() || idx.IsNullish() {
		return domain.Null(), nil
	}
	if !arr.IsArray() {
		return domain.Value{}, typeErr("$arrayElemAt", "array", arr)
	}
	if !idx.IsNumber() {
		return domain.Value{}, typeErr("$arrayElemAt", "numeric index", idx)
	}
	items := arr.Array()
	i := int(idx.Int64())
	if i < 0 {
		i += len(items)
	}
	if i < 0 || i >= len(items) {
		return domain.Missing(), nil
	}
	return items[i], nil
}

func opIn(ev *Evaluator, args []domain.Value) (domain.Value, error) {
	if !args[1].IsArray() {
		return domain.Value{}, typeErr("$in", "array", args[1])
	}
	for _, item := range args[1].Array() {
		if ev.comparer.Equal(args[0], item) {
			return domain.Bool(true), nil
		}
	}
	return domain.Bool(false), nil
}

func opConcatArrays(_ *Evaluator, args []domain.Value) (domain.Value, error) {
	if anyNullish(args) {
		return domain.Null(), nil
	}
	var res []domain.Value
	for _, a := range args {
		if !a.IsArray() {
			return domain.Value{}, typeErr("$concatArrays", "array", a)
		}
		res = append(res, a.Array()...)
	}
	return domain.Array(res...), nil
}

func opIsArray(_ *Evaluator, args []domain.Value) (domain.Value, error) {
	return domain.Bool(args[0].IsArray()), nil
}

func opSlice(_ *Evaluator, args []domain.Value) (domain.Value, error) {
	if anyNullish(args) {
		return domain.Null(), nil
	}
	if !args[0].IsArray() {
		return domain.Value{}, typeErr("$slice", "array", args[0])
	}
	for _, a := range args[1:] {
		if !a.IsNumber() {
			return domain.Value{}, typeErr("$slice", "number", a)
		}
	}
	items := args[0].Array()
	start, n := 0, int(args[1].Int64())
	if len(args) == 3 {
		start, n = int(args[1].Int64()), int(args[2].Int64())
		if n <= 0 {
			return domain.Value{}, malformed("$slice", "count must be positive")
		}
		if start < 0 {
			start = max(len(items)+start, 0)
		}
	} else if n < 0 {
		start, n = max(len(items)+n, 0), -n
	}
	start = min(start, len(items))
	end := min(start+n, len(items))
	return domain.Array(append([]domain.Value(nil), items[start:end]...)...), nil
}

func edgeOp(op string, first bool) valueFunc {
	return func(_ *Evaluator, args []domain.Value) (domain.Value, error) {
		a := args[0]
		if a.IsNullish() {
			return domain.Null(), nil
		}
		if !a.IsArray() {
			return domain.Value{}, typeErr(op, "array", a)
		}
		items := a.Array()
		if len(items) == 0 {
			return domain.Missing(), nil
		}
		if first {
			return items[0], nil
		}
		return items[len(items)-1], nil
	}
}

func iterate(ev *Evaluator, sc *scope, e Expr, op string, each func(item, out domain.Value) []domain.Value) (domain.Value, error) {
	input, err := ev.eval(e.args[0], sc)
	if err != nil {
		return domain.Value{}, err
	}
	if input.IsNullish() {
		return domain.Null(), nil
	}
	if !input.IsArray() {
		return domain.Value{}, typeErr(op, "array", input)
	}
	res := make([]domain.Value, 0, len(input.Array()))
	for _, item := range input.Array() {
		out, err := ev.eval(e.args[1], sc.with(e.as, item))
		if err != nil {
			return domain.Value{}, err
		}
		res = append(res, each(item, out)...)
	}
	return domain.Array(res...), nil
}

func opFilter(ev *Evaluator, sc *scope, e Expr) (domain.Value, error) {
	return iterate(ev, sc, e, "$filter", func(item, out domain.Value) []domain.Value {
		if out.Truthy() {
			return []domain.Value{item}
		}
		return nil
	})
}

func opMap(ev *Evaluator, sc *scope, e Expr) (domain.Value, error) {
	return iterate(ev, sc, e, "$map", func(_, out domain.Value) []domain.Value {
		if out.IsMissing() {
			out = domain.Null()
		}
		return []domain.Value{out}
	})
}

func dateOp(op string, f func(time.Time) int) valueFunc {
	return func(_ *Evaluator, args []domain.Value) (domain.Value, error) {
		a := args[0]
		switch a.Kind() {
		case domain.KindMissing, domain.KindNull:
			return domain.Null(), nil
		case domain.KindDateTime:
			return domain.Int32(int32(f(a.Time()))), nil
		case domain.KindTimestamp:
			t, _ := a.Timestamp()
			return domain.Int32(int32(f(time.Unix(int64(t), 0).UTC()))), nil
		case domain.KindObjectID:
			return domain.Int32(int32(f(a.ObjectID().Timestamp().UTC()))), nil
		}
		return domain.Value{}, typeErr(op, "date", a)
	}
}

func opType(_ *Evaluator, args []domain.Value) (domain.Value, error) {
	return domain.String(args[0].Kind().String()), nil
}

func foldOp(op string) valueFunc {
	return func(ev *Evaluator, args []domain.Value) (domain.Value, error) {
		items := args
		if len(args) == 1 && args[0].IsArray() {
			items = args[0].Array()
		}
		acc := newAccumulator(op, ev)
		for _, item := range items {
			acc.Add(item)
		}
		return acc.Result(), nil
	}
}
