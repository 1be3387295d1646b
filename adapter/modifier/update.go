package modifier

import (
	"slices"
	"strings"

	"github.com/sboesebeck/morphium-sub001/adapter/matcher"
	"github.com/sboesebeck/morphium-sub001/domain"
)

// Update is a parsed update document: either a whole-document replacement
// or an ordered list of operator applications. An Update is immutable and
// can be applied to any number of documents.
type Update struct {
	doc         *domain.Document
	replacement *domain.Document
	ops         []operation
}

// operation is one target field of one update operator.
type operation struct {
	op    string
	field string
	addr  []string
	arg   domain.Value

	// target of $rename.
	target []string

	// pull is the condition of a $pull with a query operand. pullScalar
	// reports that the condition applies to the elements themselves,
	// wrapped under pullField.
	pull       *matcher.Filter
	pullScalar bool

	// push holds the parsed modifiers of $push and $addToSet.
	push *pushSpec
}

type pushSpec struct {
	each     []domain.Value
	position *int
	slice    *int
	sort     *pushSort
}

type pushSort struct {
	order int
	keys  domain.Sort
}

const pullField = "v"

// IsReplacement reports whether the update replaces whole documents.
func (u Update) IsReplacement() bool { return u.replacement != nil }

// Document returns the wire form of the update.
func (u Update) Document() *domain.Document { return u.doc.Clone() }

// String returns the update in shell notation.
func (u Update) String() string { return u.doc.String() }

// Fields returns the paths written by the update, including $rename
// targets. A replacement writes every top-level field it holds.
func (u Update) Fields() []string {
	if u.replacement != nil {
		return u.replacement.Keys()
	}
	res := make([]string, 0, len(u.ops))
	for _, o := range u.ops {
		res = append(res, o.field)
		if o.target != nil {
			res = append(res, strings.Join(o.target, "."))
		}
	}
	return res
}

// Parse converts an update document into an [Update]. It accepts an
// [Update] or anything [domain.DocumentOf] accepts.
func (m *Modifier) Parse(update any) (Update, error) {
	switch u := update.(type) {
	case Update:
		return u, nil
	case *Update:
		if u != nil {
			return *u, nil
		}
	}
	doc, err := domain.DocumentOf(update)
	if err != nil {
		return Update{}, domain.ErrMalformedExpression{Kind: "update", Reason: err.Error()}
	}
	return m.ParseDocument(doc)
}

// ParseDocument converts an update document into an [Update]. Documents
// without operator keys are replacements.
func (m *Modifier) ParseDocument(doc *domain.Document) (Update, error) {
	u := Update{doc: doc.Clone()}

	ops := 0
	for _, k := range doc.Keys() {
		if strings.HasPrefix(k, "$") {
			ops++
		}
	}
	if ops > 0 && ops != doc.Len() {
		return Update{}, malformed("", "", "cannot mix update operators and plain fields")
	}
	if ops == 0 {
		for _, k := range doc.Keys() {
			if strings.Contains(k, ".") {
				return Update{}, malformed("", k, "replacement fields cannot contain dots")
			}
		}
		u.replacement = u.doc
		return u, nil
	}

	for op, arg := range doc.Iter() {
		if _, ok := m.mods[op]; !ok {
			return Update{}, malformed(op, "", "unknown update operator")
		}
		if !arg.IsDocument() {
			return Update{}, malformed(op, "", "expected an object, got %s", arg.Kind())
		}
		if arg.Doc().Len() == 0 {
			return Update{}, malformed(op, "", "operand cannot be empty")
		}
		for field, v := range arg.Doc().Iter() {
			o, err := m.parseOperation(op, field, v)
			if err != nil {
				return Update{}, err
			}
			u.ops = append(u.ops, o)
		}
	}

	if err := checkConflicts(u.Fields()); err != nil {
		return Update{}, err
	}
	return u, nil
}

func (m *Modifier) parseOperation(op, field string, arg domain.Value) (operation, error) {
	addr, err := m.fieldNavigator.GetAddress(field)
	if err != nil {
		return operation{}, err
	}
	if err := checkPositional(op, field, addr); err != nil {
		return operation{}, err
	}
	o := operation{op: op, field: field, addr: addr, arg: arg.Clone()}

	switch op {
	case "$inc", "$mul":
		if !arg.IsNumber() {
			return o, malformed(op, field, "expected a number, got %s", arg.Kind())
		}
	case "$pop":
		if !arg.IsNumber() || (arg.Float64() != 1 && arg.Float64() != -1) {
			return o, malformed(op, field, "expected 1 or -1, got %s", arg)
		}
	case "$rename":
		if arg.Kind() != domain.KindString {
			return o, malformed(op, field, "expected a string, got %s", arg.Kind())
		}
		if o.target, err = m.fieldNavigator.GetAddress(arg.Str()); err != nil {
			return o, err
		}
		if slices.Contains(o.target, "$") || slices.Contains(addr, "$") {
			return o, malformed(op, field, "cannot rename positional fields")
		}
	case "$currentDate":
		if err := checkCurrentDate(field, arg); err != nil {
			return o, err
		}
	case "$pullAll":
		if !arg.IsArray() {
			return o, malformed(op, field, "expected an array, got %s", arg.Kind())
		}
	case "$push":
		o.push, err = parsePush(field, arg)
	case "$addToSet":
		o.push, err = parseAddToSet(field, arg)
	case "$pull":
		err = m.parsePull(&o)
	}
	return o, err
}

// checkPositional allows a single "$" segment that is not the first one.
func checkPositional(op, field string, addr []string) error {
	seen := false
	for n, part := range addr {
		if !strings.HasPrefix(part, "$") {
			continue
		}
		switch {
		case part != "$":
			return malformed(op, field, "unsupported positional segment %q", part)
		case n == 0:
			return malformed(op, field, "the positional operator needs an array path")
		case seen:
			return malformed(op, field, "only one positional operator is allowed")
		}
		seen = true
	}
	return nil
}

func checkCurrentDate(field string, arg domain.Value) error {
	switch {
	case arg.Kind() == domain.KindBool:
		return nil
	case arg.IsDocument() && arg.Doc().Len() == 1:
		t := arg.Doc().Get("$type")
		if t.Kind() == domain.KindString && (t.Str() == "date" || t.Str() == "timestamp") {
			return nil
		}
	}
	return malformed("$currentDate", field, "expected true, {$type: \"date\"} or {$type: \"timestamp\"}, got %s", arg)
}

// checkConflicts rejects two paths where one equals or contains the other.
func checkConflicts(paths []string) error {
	for i, a := range paths {
		for _, b := range paths[i+1:] {
			if a == b || strings.HasPrefix(a, b+".") || strings.HasPrefix(b, a+".") {
				return malformed("", a, "updating the path %q would create a conflict at %q", a, b)
			}
		}
	}
	return nil
}

func parsePush(field string, arg domain.Value) (*pushSpec, error) {
	if !arg.IsDocument() || !arg.Doc().Has("$each") {
		return &pushSpec{each: []domain.Value{arg}}, nil
	}
	d := arg.Doc()
	spec := &pushSpec{}
	for k, v := range d.Iter() {
		switch k {
		case "$each":
			if !v.IsArray() {
				return nil, malformed("$each", field, "expected an array, got %s", v.Kind())
			}
			spec.each = v.Array()
		case "$position", "$slice":
			if !v.IsNumber() || v.Float64() != float64(v.Int64()) {
				return nil, malformed(k, field, "expected an integer, got %s", v)
			}
			n := int(v.Int64())
			if k == "$position" {
				spec.position = &n
			} else {
				spec.slice = &n
			}
		case "$sort":
			s, err := parsePushSort(field, v)
			if err != nil {
				return nil, err
			}
			spec.sort = s
		default:
			return nil, malformed("$push", field, "unrecognized clause %s", k)
		}
	}
	return spec, nil
}

func parsePushSort(field string, v domain.Value) (*pushSort, error) {
	if v.IsNumber() && (v.Float64() == 1 || v.Float64() == -1) {
		return &pushSort{order: int(v.Float64())}, nil
	}
	if v.IsDocument() && v.Doc().Len() > 0 {
		keys, err := domain.SortOf(v.Doc())
		if err != nil {
			return nil, malformed("$sort", field, "%v", err)
		}
		return &pushSort{keys: keys}, nil
	}
	return nil, malformed("$sort", field, "expected 1, -1 or a sort document, got %s", v)
}

func parseAddToSet(field string, arg domain.Value) (*pushSpec, error) {
	if !arg.IsDocument() || !arg.Doc().Has("$each") {
		return &pushSpec{each: []domain.Value{arg}}, nil
	}
	if arg.Doc().Len() > 1 {
		return nil, malformed("$addToSet", field, "$each cannot be combined with other clauses")
	}
	each := arg.Doc().Get("$each")
	if !each.IsArray() {
		return nil, malformed("$each", field, "expected an array, got %s", each.Kind())
	}
	return &pushSpec{each: each.Array()}, nil
}

// parsePull compiles a $pull operand. Operator documents and regular
// expressions test the elements themselves, other documents are filters
// on document elements and anything else is compared for equality.
func (m *Modifier) parsePull(o *operation) error {
	var cond *domain.Document
	switch {
	case o.arg.Kind() == domain.KindRegex:
		o.pullScalar = true
	case o.arg.IsDocument() && o.arg.Doc().Len() > 0:
		first := o.arg.Doc().Keys()[0]
		o.pullScalar = strings.HasPrefix(first, "$") && !slices.Contains([]string{"$and", "$or", "$nor", "$expr"}, first)
		cond = o.arg.Doc()
	default:
		return nil
	}
	if o.pullScalar {
		cond = domain.NewDocument(domain.Field{Key: pullField, Value: o.arg})
	}
	f, err := m.matcher.ParseDocument(cond)
	if err != nil {
		return err
	}
	o.pull = &f
	return nil
}
