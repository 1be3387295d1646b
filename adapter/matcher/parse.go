package matcher

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/sboesebeck/morphium-sub001/adapter/expression"
	"github.com/sboesebeck/morphium-sub001/domain"
)

// Filterer is implemented by values that build a [Filter], such as [Query].
type Filterer interface {
	Filter() (Filter, error)
}

var comparisons = map[string]Operator{
	"$eq":  Eq,
	"$ne":  Ne,
	"$gt":  Gt,
	"$gte": Gte,
	"$lt":  Lt,
	"$lte": Lte,
}

// Parse converts a filter into a [Filter]. It accepts a [Filter], a
// [Filterer], nil (matching everything) or anything [domain.DocumentOf]
// accepts.
func (m *Matcher) Parse(filter any) (Filter, error) {
	switch f := filter.(type) {
	case Filter:
		return f, nil
	case *Filter:
		if f == nil {
			return Filter{}, nil
		}
		return *f, nil
	case Filterer:
		return f.Filter()
	}
	doc, err := domain.DocumentOf(filter)
	if err != nil {
		return Filter{}, domain.ErrMalformedExpression{Kind: "filter", Reason: err.Error()}
	}
	return m.ParseDocument(doc)
}

// ParseDocument converts a filter document into a [Filter].
func (m *Matcher) ParseDocument(doc *domain.Document) (Filter, error) {
	var f Filter
	for key, v := range doc.Iter() {
		if key == "$comment" {
			f.comment = v
			continue
		}
		if strings.HasPrefix(key, "$") {
			n, err := m.parseLogic(key, v)
			if err != nil {
				return Filter{}, err
			}
			f.nodes = append(f.nodes, n)
			continue
		}
		nodes, err := m.parseField(key, v)
		if err != nil {
			return Filter{}, err
		}
		f.nodes = append(f.nodes, nodes...)
	}
	return f, nil
}

func (m *Matcher) parseLogic(key string, v domain.Value) (node, error) {
	var n node
	switch key {
	case "$and":
		n.kind = kindAnd
	case "$or":
		n.kind = kindOr
	case "$nor":
		n.kind = kindNor
	case "$expr":
		e, err := expression.Parse(v)
		if err != nil {
			return n, err
		}
		return node{kind: kindExpr, expr: e}, nil
	case "$where":
		return n, malformed(key, "", "JavaScript predicates are not supported")
	case "$text":
		return n, malformed(key, "", "text search is not supported")
	default:
		return n, malformed(key, "", "unknown top level operator")
	}

	if !v.IsArray() || len(v.Array()) == 0 {
		return n, malformed(key, "", "expected a non-empty array")
	}
	n.children = make([]Filter, 0, len(v.Array()))
	for _, item := range v.Array() {
		if !item.IsDocument() {
			return n, malformed(key, "", "expected documents, got %s", item.Kind())
		}
		child, err := m.ParseDocument(item.Doc())
		if err != nil {
			return n, err
		}
		n.children = append(n.children, child)
	}
	return n, nil
}

func (m *Matcher) parseField(field string, v domain.Value) ([]node, error) {
	addr, err := m.fieldNavigator.GetAddress(field)
	if err != nil {
		return nil, err
	}
	base := node{kind: kindLeaf, field: field, addr: addr}

	switch {
	case v.Kind() == domain.KindRegex:
		n, err := m.regexLeaf(base, v, domain.Missing())
		return []node{n}, err
	case v.IsDocument():
		ops, err := operatorCount(field, v.Doc())
		if err != nil {
			return nil, err
		}
		if ops > 0 {
			return m.parseOperators(base, v.Doc())
		}
	}
	base.op, base.operand = Eq, v
	return []node{base}, nil
}

// operatorCount returns how many keys of d are operators. Mixing operators
// and plain fields is an error.
func operatorCount(field string, d *domain.Document) (int, error) {
	ops := 0
	for _, k := range d.Keys() {
		if strings.HasPrefix(k, "$") {
			ops++
		}
	}
	if ops > 0 && ops != d.Len() {
		return 0, malformed("", field, "cannot mix operators and plain fields in %s", d)
	}
	return ops, nil
}

func (m *Matcher) parseOperators(base node, d *domain.Document) ([]node, error) {
	res := make([]node, 0, d.Len())
	for op, arg := range d.Iter() {
		switch op {
		case "$options":
			if !d.Has("$regex") {
				return nil, malformed(op, base.field, "$options needs a $regex")
			}
			continue
		case "$maxDistance", "$minDistance":
			if !d.Has("$near") && !d.Has("$nearSphere") {
				return nil, malformed(op, base.field, "only valid with $near or $nearSphere")
			}
			continue
		}
		n, err := m.parseOperator(base, op, arg, d)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, nil
}

func (m *Matcher) parseOperator(base node, op string, arg domain.Value, siblings *domain.Document) (node, error) {
	n := base
	if c, ok := comparisons[op]; ok {
		n.op, n.operand = c, arg
		return n, nil
	}

	switch op {
	case "$in", "$nin":
		if !arg.IsArray() {
			return n, malformed(op, n.field, "expected an array, got %s", arg.Kind())
		}
		for _, item := range arg.Array() {
			if item.Kind() == domain.KindRegex {
				if _, err := m.regexLeaf(base, item, domain.Missing()); err != nil {
					return n, err
				}
			}
		}
		n.op, n.operand = In, arg
		if op == "$nin" {
			n.op = Nin
		}
	case "$all":
		if !arg.IsArray() {
			return n, malformed(op, n.field, "expected an array, got %s", arg.Kind())
		}
		for _, item := range arg.Array() {
			sub, err := m.allElement(base, item)
			if err != nil {
				return n, err
			}
			n.all = append(n.all, sub)
		}
		n.op, n.operand = All, arg
	case "$exists":
		n.op, n.operand = Exists, domain.Bool(arg.Truthy())
	case "$mod":
		arr := arg.Array()
		if !arg.IsArray() || len(arr) != 2 || !arr[0].IsNumber() || !arr[1].IsNumber() {
			return n, malformed(op, n.field, "expected [divisor, remainder]")
		}
		if arr[0].Int64() == 0 {
			return n, malformed(op, n.field, "divisor cannot be zero")
		}
		n.op, n.operand = Mod, domain.Array(domain.Int64(arr[0].Int64()), domain.Int64(arr[1].Int64()))
	case "$size":
		f := arg.Float64()
		if !arg.IsNumber() || f < 0 || f != math.Trunc(f) {
			return n, malformed(op, n.field, "expected a non-negative integer, got %s", arg)
		}
		n.op, n.operand = Size, domain.Int64(arg.Int64())
	case "$regex":
		return m.regexLeaf(base, arg, siblings.Get("$options"))
	case "$type":
		if err := validateType(n.field, arg); err != nil {
			return n, err
		}
		n.op, n.operand = Type, arg
	case "$elemMatch":
		if !arg.IsDocument() {
			return n, malformed(op, n.field, "expected an object, got %s", arg.Kind())
		}
		return m.elemMatch(base, arg.Doc())
	case "$not":
		return m.not(base, arg)
	case "$geoWithin", "$within":
		shape, err := parseWithin(n.field, arg)
		if err != nil {
			return n, err
		}
		n.op, n.operand, n.shape = GeoWithin, arg, shape
	case "$near", "$nearSphere":
		n.op = Near
		if op == "$nearSphere" {
			n.op = NearSphere
		}
		shape, err := parseNear(n.op, n.field, arg, siblings)
		if err != nil {
			return n, err
		}
		n.operand, n.shape = arg, shape
		if shape.meters {
			n.operand = geoJSONNear(arg, shape)
		}
	default:
		return n, malformed(op, n.field, "unknown operator")
	}
	return n, nil
}

// geoJSONNear rebuilds a GeoJSON $near operand with its effective
// distance limits inside it.
func geoJSONNear(arg domain.Value, shape geoShape) domain.Value {
	d := domain.NewDocument(domain.Field{Key: "$geometry", Value: arg.Doc().Get("$geometry")})
	if shape.maxDistance != nil {
		d.Set("$maxDistance", domain.Double(*shape.maxDistance))
	}
	if shape.minDistance != nil {
		d.Set("$minDistance", domain.Double(*shape.minDistance))
	}
	return domain.Doc(d)
}

func (m *Matcher) allElement(base node, item domain.Value) (node, error) {
	switch {
	case item.Kind() == domain.KindRegex:
		return m.regexLeaf(base, item, domain.Missing())
	case item.IsDocument() && item.Doc().Len() == 1 && item.Doc().Has("$elemMatch"):
		arg := item.Doc().Get("$elemMatch")
		if !arg.IsDocument() {
			return base, malformed("$elemMatch", base.field, "expected an object, got %s", arg.Kind())
		}
		return m.elemMatch(base, arg.Doc())
	}
	base.op, base.operand = Eq, item
	return base, nil
}

// elemMatch parses $elemMatch. An operand made only of field operators
// ({$gte: 1, $lt: 5}) applies to the elements themselves; anything else is
// a filter over document elements.
func (m *Matcher) elemMatch(base node, d *domain.Document) (node, error) {
	n := base
	n.op, n.operand = ElemMatch, domain.Doc(d)

	n.scalar = d.Len() > 0
	for _, k := range d.Keys() {
		switch k {
		case "$and", "$or", "$nor", "$expr":
			n.scalar = false
		default:
			n.scalar = n.scalar && strings.HasPrefix(k, "$")
		}
	}

	if n.scalar {
		nodes, err := m.parseOperators(node{kind: kindLeaf, field: base.field}, d)
		if err != nil {
			return n, err
		}
		n.sub = &Filter{nodes: nodes}
		return n, nil
	}
	sub, err := m.ParseDocument(d)
	if err != nil {
		return n, err
	}
	n.sub = &sub
	return n, nil
}

func (m *Matcher) not(base node, arg domain.Value) (node, error) {
	n := base
	n.op, n.operand = Not, arg
	switch {
	case arg.Kind() == domain.KindRegex:
		leaf, err := m.regexLeaf(base, arg, domain.Missing())
		if err != nil {
			return n, err
		}
		n.not = []node{leaf}
		return n, nil
	case arg.IsDocument() && arg.Doc().Len() > 0:
		ops, err := operatorCount(base.field, arg.Doc())
		if err != nil {
			return n, err
		}
		if ops > 0 {
			n.not, err = m.parseOperators(base, arg.Doc())
			return n, err
		}
	}
	return n, malformed("$not", base.field, "expected a regex or an operator document")
}

func (m *Matcher) regexLeaf(base node, arg, options domain.Value) (node, error) {
	n := base
	var pattern, opts string
	switch arg.Kind() {
	case domain.KindRegex:
		pattern, opts = arg.Regex()
	case domain.KindString:
		pattern = arg.Str()
	default:
		return n, malformed("$regex", n.field, "expected a string or a regular expression, got %s", arg.Kind())
	}
	if !options.IsMissing() {
		if options.Kind() != domain.KindString {
			return n, malformed("$options", n.field, "expected a string, got %s", options.Kind())
		}
		opts = options.Str()
	}
	re, err := m.compile(pattern, opts)
	if err != nil {
		return n, malformed("$regex", n.field, "%v", err)
	}
	n.op, n.operand, n.regex = Regex, domain.Regex(pattern, opts), re
	return n, nil
}

// compile translates MongoDB regex options into Go flags. Compiled
// expressions are kept in the LRU cache.
func (m *Matcher) compile(pattern, options string) (*regexp.Regexp, error) {
	key := options + "/" + pattern
	if re, ok := m.regexes.Get(key); ok {
		return re, nil
	}

	var flags strings.Builder
	expr := pattern
	for _, o := range options {
		switch o {
		case 'i', 'm', 's':
			flags.WriteRune(o)
		case 'x':
			expr = stripExtended(expr)
		case 'u':
		default:
			return nil, fmt.Errorf("unsupported regex option %q", o)
		}
	}
	if flags.Len() > 0 {
		expr = "(?" + flags.String() + ")" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	m.regexes.Add(key, re)
	return re, nil
}

// stripExtended removes unescaped whitespace and #-comments outside
// character classes, as the "x" option does.
func stripExtended(p string) string {
	var b strings.Builder
	inClass, comment := false, false
	for i := 0; i < len(p); i++ {
		c := p[i]
		switch {
		case comment:
			comment = c != '\n'
		case c == '\\' && i+1 < len(p):
			b.WriteByte(c)
			i++
			b.WriteByte(p[i])
		case inClass:
			inClass = c != ']'
			b.WriteByte(c)
		case c == '[':
			inClass = true
			b.WriteByte(c)
		case c == '#':
			comment = true
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func validateType(field string, arg domain.Value) error {
	items := []domain.Value{arg}
	if arg.IsArray() {
		items = arg.Array()
		if len(items) == 0 {
			return malformed("$type", field, "expected at least one type")
		}
	}
	for _, item := range items {
		var err error
		switch {
		case item.Kind() == domain.KindString:
			_, _, err = domain.KindByName(item.Str())
		case item.IsNumber():
			_, err = domain.KindByCode(item.Int64())
		default:
			err = fmt.Errorf("expected a type alias or number, got %s", item.Kind())
		}
		if err != nil {
			return malformed("$type", field, "%v", err)
		}
	}
	return nil
}

func malformed(op, field, format string, args ...any) error {
	return domain.ErrMalformedExpression{
		Kind:     "filter",
		Operator: op,
		Field:    field,
		Reason:   fmt.Sprintf(format, args...),
	}
}
