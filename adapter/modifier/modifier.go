// Package modifier contains the update language of the store: parsing of
// update documents into [Update] values and their application to documents
// with MongoDB semantics.
package modifier

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/sboesebeck/morphium-sub001/adapter/comparer"
	"github.com/sboesebeck/morphium-sub001/adapter/fieldnavigator"
	"github.com/sboesebeck/morphium-sub001/adapter/matcher"
	"github.com/sboesebeck/morphium-sub001/adapter/timegetter"
	"github.com/sboesebeck/morphium-sub001/domain"
)

// ErrModFieldType is returned when an operator meets a document field of a
// type it cannot work on, such as $inc on a string.
type ErrModFieldType struct {
	Mod    string
	Field  string
	Want   string
	Actual domain.Kind
}

// Error implements [error].
func (e ErrModFieldType) Error() string {
	return fmt.Sprintf("%s expects %s field at %q, got %s", e.Mod, e.Want, e.Field, e.Actual)
}

// Is makes errors.Is(err, domain.ErrMalformed) succeed.
func (e ErrModFieldType) Is(target error) bool { return target == domain.ErrMalformed }

type modFunc func(doc *domain.Document, addr []string, o operation) error

// Modifier applies updates. It is safe for concurrent use.
type Modifier struct {
	comparer       domain.Comparer
	fieldNavigator domain.FieldNavigator
	matcher        *matcher.Matcher
	timeGetter     domain.TimeGetter
	idField        string
	mods           map[string]modFunc
}

var defaultModifier = sync.OnceValue(func() *Modifier { return NewModifier() })

// exact tells apart values that differ only in representation, such as 1
// and 1.0, when detecting changes.
var exact = comparer.NewComparer()

// NewModifier returns a new [Modifier].
func NewModifier(options ...Option) *Modifier {
	m := &Modifier{idField: domain.DefaultIDField}
	for _, option := range options {
		option(m)
	}
	if m.comparer == nil {
		m.comparer = comparer.NewComparer()
	}
	if m.fieldNavigator == nil {
		m.fieldNavigator = fieldnavigator.NewFieldNavigator()
	}
	if m.matcher == nil {
		m.matcher = matcher.NewMatcher(
			matcher.WithComparer(m.comparer),
			matcher.WithFieldNavigator(m.fieldNavigator),
		)
	}
	if m.timeGetter == nil {
		m.timeGetter = timegetter.NewTimeGetter()
	}

	m.mods = map[string]modFunc{
		"$set":         m.set,
		"$setOnInsert": m.set,
		"$unset":       m.unset,
		"$inc":         m.inc,
		"$mul":         m.mul,
		"$min":         m.min,
		"$max":         m.max,
		"$push":        m.push,
		"$addToSet":    m.addToSet,
		"$pop":         m.pop,
		"$pull":        m.pull,
		"$pullAll":     m.pullAll,
		"$rename":      m.rename,
		"$currentDate": m.currentDate,
	}
	return m
}

// Parse parses an update with the default modifier.
func Parse(update any) (Update, error) {
	return defaultModifier().Parse(update)
}

// Apply applies u to a deep copy of doc and reports whether the copy
// differs from doc. filter is the filter that selected doc; it resolves
// the positional "$" segment. On error doc is left as it was and no partial
// result is returned.
func (m *Modifier) Apply(doc *domain.Document, u Update, filter matcher.Filter) (*domain.Document, bool, error) {
	return m.apply(doc, u, filter, false)
}

// Upsert builds the document inserted by an upsert that matched nothing:
// the equality conditions of filter, then u applied with $setOnInsert.
// A replacement keeps only the identity value of the filter.
func (m *Modifier) Upsert(filter matcher.Filter, u Update) (*domain.Document, error) {
	seed := domain.NewDocument()
	for _, f := range filter.Equalities() {
		addr, err := m.fieldNavigator.GetAddress(f.Key)
		if err != nil {
			return nil, err
		}
		if err := m.fieldNavigator.SetField(seed, f.Value.Clone(), addr...); err != nil {
			return nil, err
		}
	}
	if u.replacement != nil {
		base := domain.NewDocument()
		if id := seed.Get(m.idField); !id.IsMissing() {
			base.Set(m.idField, id)
		}
		return m.replace(base, u.replacement)
	}
	res, _, err := m.apply(seed, u, filter, true)
	return res, err
}

func (m *Modifier) apply(doc *domain.Document, u Update, filter matcher.Filter, insert bool) (*domain.Document, bool, error) {
	if u.replacement != nil {
		res, err := m.replace(doc, u.replacement)
		if err != nil {
			return nil, false, err
		}
		return res, !identical(domain.Doc(doc), domain.Doc(res)), nil
	}

	res := doc.Clone()
	for _, o := range u.ops {
		if o.op == "$setOnInsert" && !insert {
			continue
		}
		addr, err := m.positional(doc, filter, o.addr)
		if err != nil {
			return nil, false, err
		}
		if err := m.mods[o.op](res, addr, o); err != nil {
			return nil, false, err
		}
	}

	id := doc.Get(m.idField)
	if !(insert && id.IsMissing()) && !identical(id, res.Get(m.idField)) {
		return nil, false, domain.ErrCannotModifyID
	}
	return res, !identical(domain.Doc(doc), domain.Doc(res)), nil
}

func (m *Modifier) replace(doc, repl *domain.Document) (*domain.Document, error) {
	res := domain.NewDocument()
	id := doc.Get(m.idField)
	if !id.IsMissing() {
		if rid := repl.Get(m.idField); !rid.IsMissing() && !identical(id, rid) {
			return nil, domain.ErrCannotModifyID
		}
		res.Set(m.idField, id)
	}
	for k, v := range repl.Iter() {
		if k == m.idField && !id.IsMissing() {
			continue
		}
		res.Set(k, v.Clone())
	}
	return res, nil
}

// positional replaces the "$" segment of addr with the index of the array
// element matched by filter.
func (m *Modifier) positional(doc *domain.Document, filter matcher.Filter, addr []string) ([]string, error) {
	i := slices.Index(addr, "$")
	if i < 0 {
		return addr, nil
	}
	idx, err := m.matcher.MatchedIndex(doc, filter, strings.Join(addr[:i], "."))
	if err != nil {
		return nil, err
	}
	res := slices.Clone(addr)
	res[i] = strconv.Itoa(idx)
	return res, nil
}

func (m *Modifier) set(doc *domain.Document, addr []string, o operation) error {
	return m.fieldNavigator.SetField(doc, o.arg.Clone(), addr...)
}

func (m *Modifier) unset(doc *domain.Document, addr []string, _ operation) error {
	m.fieldNavigator.UnsetField(doc, addr...)
	return nil
}

func (m *Modifier) inc(doc *domain.Document, addr []string, o operation) error {
	return m.arithmetic(doc, addr, o, domain.NumericAdd)
}

func (m *Modifier) mul(doc *domain.Document, addr []string, o operation) error {
	return m.arithmetic(doc, addr, o, domain.NumericMultiply)
}

// arithmetic combines a numeric field with the operand. An absent field
// starts at zero with the kind of the operand.
func (m *Modifier) arithmetic(doc *domain.Document, addr []string, o operation, fn func(a, b domain.Value) domain.Value) error {
	cur := m.fieldNavigator.GetValue(doc, addr...)
	switch {
	case cur.IsMissing():
		cur = domain.ZeroOf(o.arg)
	case !cur.IsNumber():
		return ErrModFieldType{Mod: o.op, Field: o.field, Want: "numeric", Actual: cur.Kind()}
	}
	return m.fieldNavigator.SetField(doc, fn(cur, o.arg), addr...)
}

func (m *Modifier) min(doc *domain.Document, addr []string, o operation) error {
	return m.extremum(doc, addr, o, -1)
}

func (m *Modifier) max(doc *domain.Document, addr []string, o operation) error {
	return m.extremum(doc, addr, o, 1)
}

// extremum replaces the field when the operand compares to it with the
// sign want. Values of different type brackets cannot be compared.
func (m *Modifier) extremum(doc *domain.Document, addr []string, o operation, want int) error {
	cur := m.fieldNavigator.GetValue(doc, addr...)
	if cur.IsMissing() {
		return m.fieldNavigator.SetField(doc, o.arg.Clone(), addr...)
	}
	if cur.Kind().Bracket() != o.arg.Kind().Bracket() {
		return ErrModFieldType{Mod: o.op, Field: o.field, Want: o.arg.Kind().String(), Actual: cur.Kind()}
	}
	if m.comparer.Compare(o.arg, cur)*want > 0 {
		return m.fieldNavigator.SetField(doc, o.arg.Clone(), addr...)
	}
	return nil
}

// array returns the array at addr. An absent field yields ok false.
func (m *Modifier) array(doc *domain.Document, addr []string, o operation) (arr []domain.Value, ok bool, err error) {
	cur := m.fieldNavigator.GetValue(doc, addr...)
	switch {
	case cur.IsMissing():
		return nil, false, nil
	case !cur.IsArray():
		return nil, false, ErrModFieldType{Mod: o.op, Field: o.field, Want: "array", Actual: cur.Kind()}
	}
	return cur.Array(), true, nil
}

func (m *Modifier) push(doc *domain.Document, addr []string, o operation) error {
	arr, _, err := m.array(doc, addr, o)
	if err != nil {
		return err
	}
	spec := o.push

	res := make([]domain.Value, 0, len(arr)+len(spec.each))
	pos := len(arr)
	if spec.position != nil {
		pos = *spec.position
		if pos < 0 {
			pos = max(len(arr)+pos, 0)
		}
		pos = min(pos, len(arr))
	}
	res = append(res, arr[:pos]...)
	for _, v := range spec.each {
		res = append(res, v.Clone())
	}
	res = append(res, arr[pos:]...)

	if spec.sort != nil {
		m.sortElements(res, spec.sort)
	}
	if spec.slice != nil {
		if n := *spec.slice; n >= 0 {
			res = res[:min(n, len(res))]
		} else {
			res = res[max(len(res)+n, 0):]
		}
	}
	return m.fieldNavigator.SetField(doc, domain.Array(res...), addr...)
}

func (m *Modifier) sortElements(arr []domain.Value, s *pushSort) {
	slices.SortStableFunc(arr, func(a, b domain.Value) int {
		if s.keys == nil {
			return m.comparer.Compare(a, b) * s.order
		}
		for _, k := range s.keys {
			av := m.fieldNavigator.GetValue(a.Doc(), strings.Split(k.Key, ".")...)
			bv := m.fieldNavigator.GetValue(b.Doc(), strings.Split(k.Key, ".")...)
			if c := m.comparer.Compare(av, bv); c != 0 {
				return c * k.Order
			}
		}
		return 0
	})
}

func (m *Modifier) addToSet(doc *domain.Document, addr []string, o operation) error {
	arr, _, err := m.array(doc, addr, o)
	if err != nil {
		return err
	}
	res := slices.Clone(arr)
	for _, v := range o.push.each {
		if !slices.ContainsFunc(res, func(item domain.Value) bool { return m.comparer.Equal(item, v) }) {
			res = append(res, v.Clone())
		}
	}
	return m.fieldNavigator.SetField(doc, domain.Array(res...), addr...)
}

// pop removes the last element for 1 and the first for -1. Absent fields
// and empty arrays are left alone.
func (m *Modifier) pop(doc *domain.Document, addr []string, o operation) error {
	arr, ok, err := m.array(doc, addr, o)
	if err != nil || !ok || len(arr) == 0 {
		return err
	}
	if o.arg.Float64() > 0 {
		arr = arr[:len(arr)-1]
	} else {
		arr = arr[1:]
	}
	return m.fieldNavigator.SetField(doc, domain.Array(slices.Clone(arr)...), addr...)
}

func (m *Modifier) pull(doc *domain.Document, addr []string, o operation) error {
	arr, ok, err := m.array(doc, addr, o)
	if err != nil || !ok {
		return err
	}
	res := make([]domain.Value, 0, len(arr))
	for _, item := range arr {
		pulled, err := m.pulled(o, item)
		if err != nil {
			return err
		}
		if !pulled {
			res = append(res, item)
		}
	}
	return m.fieldNavigator.SetField(doc, domain.Array(res...), addr...)
}

func (m *Modifier) pulled(o operation, item domain.Value) (bool, error) {
	switch {
	case o.pull == nil:
		return m.comparer.Equal(item, o.arg), nil
	case o.pullScalar:
		wrapped := domain.NewDocument(domain.Field{Key: pullField, Value: item})
		return m.matcher.Match(wrapped, *o.pull)
	case item.IsDocument():
		return m.matcher.Match(item.Doc(), *o.pull)
	}
	return false, nil
}

func (m *Modifier) pullAll(doc *domain.Document, addr []string, o operation) error {
	arr, ok, err := m.array(doc, addr, o)
	if err != nil || !ok {
		return err
	}
	res := slices.DeleteFunc(slices.Clone(arr), func(item domain.Value) bool {
		return slices.ContainsFunc(o.arg.Array(), func(v domain.Value) bool { return m.comparer.Equal(item, v) })
	})
	return m.fieldNavigator.SetField(doc, domain.Array(res...), addr...)
}

// rename moves a value. A missing source leaves the document unchanged.
func (m *Modifier) rename(doc *domain.Document, addr []string, o operation) error {
	v := m.fieldNavigator.GetValue(doc, addr...)
	if v.IsMissing() {
		return nil
	}
	m.fieldNavigator.UnsetField(doc, addr...)
	return m.fieldNavigator.SetField(doc, v, o.target...)
}

func (m *Modifier) currentDate(doc *domain.Document, addr []string, o operation) error {
	now := m.timeGetter.GetTime()
	v := domain.DateTime(now)
	if o.arg.IsDocument() && o.arg.Doc().Get("$type").Str() == "timestamp" {
		v = domain.Timestamp(uint32(now.Unix()), 1)
	}
	return m.fieldNavigator.SetField(doc, v, addr...)
}

// identical reports whether a and b hold the same values with the same
// kinds and field order.
func identical(a, b domain.Value) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch a.Kind() {
	case domain.KindDocument:
		if a.Doc().Len() != b.Doc().Len() {
			return false
		}
		bf := b.Doc().Fields()
		for n, f := range a.Doc().Fields() {
			if f.Key != bf[n].Key || !identical(f.Value, bf[n].Value) {
				return false
			}
		}
		return true
	case domain.KindArray:
		return slices.EqualFunc(a.Array(), b.Array(), identical)
	}
	return exact.Equal(a, b)
}

func malformed(op, field, format string, args ...any) error {
	return domain.ErrMalformedExpression{
		Kind:     "update",
		Operator: op,
		Field:    field,
		Reason:   fmt.Sprintf(format, args...),
	}
}
