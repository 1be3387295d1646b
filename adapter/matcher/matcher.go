// Package matcher contains the filter language of the store: the [Filter]
// tree, its parser and serializer, the [Query] builder and the [Matcher]
// evaluating filters against documents with MongoDB semantics.
package matcher

import (
	"iter"
	"math"
	"regexp"
	"slices"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sboesebeck/morphium-sub001/adapter/comparer"
	"github.com/sboesebeck/morphium-sub001/adapter/expression"
	"github.com/sboesebeck/morphium-sub001/adapter/fieldnavigator"
	"github.com/sboesebeck/morphium-sub001/domain"
)

// DefaultRegexCacheSize is the number of compiled expressions kept when no
// size is configured.
const DefaultRegexCacheSize = 256

// Matcher evaluates filters. It is safe for concurrent use.
type Matcher struct {
	comparer       domain.Comparer
	fieldNavigator domain.FieldNavigator
	evaluator      *expression.Evaluator
	regexes        *lru.Cache[string, *regexp.Regexp]
	regexCacheSize int
}

var defaultMatcher = sync.OnceValue(func() *Matcher { return NewMatcher() })

// NewMatcher returns a new [Matcher].
func NewMatcher(options ...Option) *Matcher {
	m := &Matcher{regexCacheSize: DefaultRegexCacheSize}
	for _, option := range options {
		option(m)
	}
	if m.comparer == nil {
		m.comparer = comparer.NewComparer()
	}
	if m.fieldNavigator == nil {
		m.fieldNavigator = fieldnavigator.NewFieldNavigator()
	}
	if m.evaluator == nil {
		m.evaluator = expression.NewEvaluator(expression.WithComparer(m.comparer))
	}
	if m.regexes == nil {
		m.regexes, _ = lru.New[string, *regexp.Regexp](max(m.regexCacheSize, 1))
	}
	return m
}

// Parse parses a filter document with the default matcher.
func Parse(doc *domain.Document) (Filter, error) {
	return defaultMatcher().ParseDocument(doc)
}

// FilterOf parses anything [Matcher.Parse] accepts with the default
// matcher.
func FilterOf(filter any) (Filter, error) {
	return defaultMatcher().Parse(filter)
}

// Using returns a copy of m comparing values with c, as needed for a query
// carrying its own collation. The copy shares the regex cache.
func (m *Matcher) Using(c domain.Comparer) *Matcher {
	cp := *m
	cp.comparer = c
	cp.evaluator = expression.NewEvaluator(expression.WithComparer(c))
	return &cp
}

// Comparer returns the comparer used for equality and ordering.
func (m *Matcher) Comparer() domain.Comparer { return m.comparer }

// Match reports whether doc satisfies f. Missing fields never cause errors;
// errors only come from $expr evaluation.
func (m *Matcher) Match(doc *domain.Document, f Filter) (bool, error) {
	for _, n := range f.nodes {
		ok, err := m.matchNode(doc, n)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (m *Matcher) matchNode(doc *domain.Document, n node) (bool, error) {
	switch n.kind {
	case kindAnd:
		for _, c := range n.children {
			ok, err := m.Match(doc, c)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case kindOr, kindNor:
		for _, c := range n.children {
			ok, err := m.Match(doc, c)
			if err != nil {
				return false, err
			}
			if ok {
				return n.kind == kindOr, nil
			}
		}
		return n.kind == kindNor, nil
	case kindExpr:
		v, err := m.evaluator.Evaluate(n.expr, doc)
		if err != nil {
			return false, err
		}
		return v.Truthy(), nil
	}
	values, _ := m.fieldNavigator.GetField(doc, n.addr...)
	return m.matchLeaf(n, values)
}

// matchLeaves reports whether all nodes hold for the same values.
func (m *Matcher) matchLeaves(nodes []node, values []domain.Value) (bool, error) {
	for _, n := range nodes {
		ok, err := m.matchLeaf(n, values)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// matchLeaf evaluates a leaf against the values found at its path. Each
// value that is an array also offers its elements as candidates, except to
// $size, $all and $elemMatch which look at the array itself.
func (m *Matcher) matchLeaf(n node, values []domain.Value) (bool, error) {
	switch n.op {
	case Ne:
		eq := n
		eq.op = Eq
		ok, err := m.matchLeaf(eq, values)
		return !ok, err
	case Nin:
		in := n
		in.op = In
		ok, err := m.matchLeaf(in, values)
		return !ok, err
	case Not:
		ok, err := m.matchLeaves(n.not, values)
		return !ok, err
	case Exists:
		exists := slices.ContainsFunc(values, func(v domain.Value) bool { return !v.IsMissing() })
		return exists == n.operand.Bool(), nil
	case Size:
		return slices.ContainsFunc(values, func(v domain.Value) bool {
			return v.IsArray() && int64(len(v.Array())) == n.operand.Int64()
		}), nil
	case All:
		if len(n.all) == 0 {
			return false, nil
		}
		return m.matchLeaves(n.all, values)
	case ElemMatch:
		for _, v := range values {
			if !v.IsArray() {
				continue
			}
			for _, item := range v.Array() {
				ok, err := m.elemMatches(n, item)
				if err != nil || ok {
					return ok, err
				}
			}
		}
		return false, nil
	}

	for c := range candidates(values) {
		if m.test(n, c) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Matcher) elemMatches(n node, item domain.Value) (bool, error) {
	if n.scalar {
		return m.matchLeaves(n.sub.nodes, []domain.Value{item})
	}
	if !item.IsDocument() {
		return false, nil
	}
	return m.Match(item.Doc(), *n.sub)
}

// candidates yields every value and the elements of array values.
func candidates(values []domain.Value) iter.Seq[domain.Value] {
	return func(yield func(domain.Value) bool) {
		for _, v := range values {
			if !yield(v) {
				return
			}
			if !v.IsArray() {
				continue
			}
			for _, item := range v.Array() {
				if !yield(item) {
					return
				}
			}
		}
	}
}

// test evaluates a positive predicate against a single candidate.
func (m *Matcher) test(n node, c domain.Value) bool {
	switch n.op {
	case Eq:
		return m.comparer.Equal(c, n.operand)
	case Gt, Gte, Lt, Lte:
		// relational operators only compare within a type bracket
		if c.Kind().Bracket() != n.operand.Kind().Bracket() {
			return false
		}
		r := m.comparer.Compare(c, n.operand)
		switch n.op {
		case Gt:
			return r > 0
		case Gte:
			return r >= 0
		case Lt:
			return r < 0
		}
		return r <= 0
	case In:
		for _, item := range n.operand.Array() {
			if item.Kind() == domain.KindRegex {
				if m.matchRegex(c, item) {
					return true
				}
				continue
			}
			if m.comparer.Equal(c, item) {
				return true
			}
		}
		return false
	case Mod:
		if !c.IsNumber() || math.IsNaN(c.Float64()) || math.IsInf(c.Float64(), 0) {
			return false
		}
		arr := n.operand.Array()
		return c.Int64()%arr[0].Int64() == arr[1].Int64()
	case Regex:
		switch c.Kind() {
		case domain.KindString:
			return n.regex.MatchString(c.Str())
		case domain.KindRegex:
			return m.comparer.Equal(c, n.operand)
		}
		return false
	case Type:
		return typeMatches(c, n.operand)
	case GeoWithin, Near, NearSphere:
		p, ok := pointOf(c)
		return ok && n.shape.contains(p)
	}
	return false
}

func (m *Matcher) matchRegex(c, re domain.Value) bool {
	if c.Kind() == domain.KindRegex {
		return m.comparer.Equal(c, re)
	}
	if c.Kind() != domain.KindString {
		return false
	}
	compiled, err := m.compile(re.Regex())
	return err == nil && compiled.MatchString(c.Str())
}

func typeMatches(c, operand domain.Value) bool {
	if c.IsMissing() {
		return false
	}
	items := []domain.Value{operand}
	if operand.IsArray() {
		items = operand.Array()
	}
	for _, item := range items {
		if item.Kind() == domain.KindString {
			k, exact, err := domain.KindByName(item.Str())
			if err == nil && ((exact && c.Kind() == k) || (!exact && c.IsNumber())) {
				return true
			}
			continue
		}
		if k, err := domain.KindByCode(item.Int64()); err == nil && c.Kind() == k {
			return true
		}
	}
	return false
}

// MatchedIndex returns the position of the first element of the array at
// arrayPath that satisfies every leaf of f addressing that array or a field
// below it. It resolves the positional "$" of updates.
func (m *Matcher) MatchedIndex(doc *domain.Document, f Filter, arrayPath string) (int, error) {
	addr, err := m.fieldNavigator.GetAddress(arrayPath)
	if err != nil {
		return -1, err
	}
	arr := m.fieldNavigator.GetValue(doc, addr...)
	leaves := f.leavesUnder(arrayPath)

	if arr.IsArray() && len(leaves) > 0 {
		for i, item := range arr.Array() {
			ok, err := m.matchElement(item, len(addr), leaves)
			if err != nil {
				return -1, err
			}
			if ok {
				return i, nil
			}
		}
	}
	return -1, domain.ErrMalformedExpression{
		Kind:     "update",
		Operator: "$",
		Field:    arrayPath,
		Reason:   "the positional operator did not find the match needed from the query",
	}
}

func (m *Matcher) matchElement(item domain.Value, depth int, leaves []node) (bool, error) {
	for _, n := range leaves {
		var ok bool
		var err error
		switch {
		case len(n.addr) > depth:
			values := []domain.Value{domain.Missing()}
			if item.IsDocument() {
				values, _ = m.fieldNavigator.GetField(item.Doc(), n.addr[depth:]...)
			}
			ok, err = m.matchLeaf(n, values)
		case n.op == ElemMatch:
			ok, err = m.elemMatches(n, item)
		case n.op == Size || n.op == All:
			continue
		default:
			ok, err = m.matchLeaf(n, []domain.Value{item})
		}
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// leavesUnder returns the conjunctive leaves addressing path or a field
// below it.
func (f Filter) leavesUnder(path string) []node {
	var res []node
	for _, n := range f.nodes {
		switch {
		case n.kind == kindAnd:
			for _, c := range n.children {
				res = append(res, c.leavesUnder(path)...)
			}
		case n.kind == kindLeaf && (n.field == path || strings.HasPrefix(n.field, path+".")):
			res = append(res, n)
		}
	}
	return res
}

// Distance returns the distance between doc and the origin of the first
// top-level $near or $nearSphere condition of f. The unit is the one the
// condition limits are expressed in.
func (m *Matcher) Distance(doc *domain.Document, f Filter) (float64, bool) {
	for _, n := range f.nodes {
		if n.kind != kindLeaf || (n.op != Near && n.op != NearSphere) {
			continue
		}
		values, _ := m.fieldNavigator.GetField(doc, n.addr...)
		best, found := math.Inf(1), false
		for c := range candidates(values) {
			if p, ok := pointOf(c); ok {
				best, found = min(best, n.shape.distance(p)), true
			}
		}
		return best, found
	}
	return 0, false
}
