// Package projector shapes result documents after a projection
// specification, for find and for the $project stage.
package projector

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sboesebeck/morphium-sub001/adapter/expression"
	"github.com/sboesebeck/morphium-sub001/adapter/fieldnavigator"
	"github.com/sboesebeck/morphium-sub001/domain"
)

var defaultProjector = sync.OnceValue(func() *Projector { return NewProjector() })

// Projection is a parsed projection. In inclusion mode only the listed
// fields and computed ones are kept; in exclusion mode every field but the
// listed ones is. The identity field is kept unless excluded explicitly.
type Projection struct {
	doc       *domain.Document
	root      *node
	inclusive bool
	keepID    bool
}

type node struct {
	leaf     bool
	expr     *expression.Expr
	children map[string]*node
	order    []string
}

func newNode() *node { return &node{children: make(map[string]*node)} }

// IsEmpty reports whether the projection keeps documents unchanged.
func (p Projection) IsEmpty() bool { return p.root == nil }

// IsInclusive reports whether the projection lists the fields to keep.
func (p Projection) IsInclusive() bool { return p.inclusive }

// Document returns the wire form of the projection.
func (p Projection) Document() *domain.Document { return p.doc.Clone() }

// Projector implements projections.
type Projector struct {
	fn        domain.FieldNavigator
	evaluator *expression.Evaluator
	idField   string
}

// NewProjector returns a new [Projector].
func NewProjector(opts ...Option) *Projector {
	p := Projector{idField: domain.DefaultIDField}
	for _, opt := range opts {
		opt(&p)
	}
	if p.fn == nil {
		p.fn = fieldnavigator.NewFieldNavigator()
	}
	if p.evaluator == nil {
		p.evaluator = expression.NewEvaluator()
	}
	return &p
}

// Parse parses a projection with the default [Projector].
func Parse(spec any) (Projection, error) { return defaultProjector().Parse(spec) }

// Parse converts anything [domain.DocumentOf] accepts into a [Projection].
// A nil spec keeps documents unchanged.
func (q *Projector) Parse(spec any) (Projection, error) {
	switch s := spec.(type) {
	case nil:
		return Projection{}, nil
	case Projection:
		return s, nil
	}
	doc, err := domain.DocumentOf(spec)
	if err != nil {
		return Projection{}, malformed("", "%v", err)
	}
	return q.ParseDocument(doc)
}

// ParseDocument converts a projection document into a [Projection].
func (q *Projector) ParseDocument(doc *domain.Document) (Projection, error) {
	if doc.Len() == 0 {
		return Projection{}, nil
	}
	p := Projection{doc: doc.Clone(), root: newNode(), keepID: true}
	var includes, excludes int
	if err := q.parse(&p, p.root, "", doc, &includes, &excludes); err != nil {
		return Projection{}, err
	}
	if includes > 0 && excludes > 0 {
		return Projection{}, malformed("", "cannot mix inclusion and exclusion")
	}
	switch {
	case includes > 0:
		p.inclusive = true
	case excludes == 0 && p.keepID:
		// only {_id: 1}
		p.inclusive = true
	}
	if _, ok := p.root.children[q.idField]; !ok && p.inclusive == p.keepID {
		p.root.children[q.idField] = &node{leaf: true}
		p.root.order = append([]string{q.idField}, p.root.order...)
	}
	return p, nil
}

func (q *Projector) parse(p *Projection, parent *node, prefix string, doc *domain.Document, includes, excludes *int) error {
	for k, v := range doc.Iter() {
		field := prefix + k
		if strings.Contains(k, "$") {
			return malformed(field, "positional projection is not supported")
		}
		switch {
		case v.Kind() == domain.KindBool || v.IsNumber():
			keep := v.Truthy()
			if field == q.idField {
				p.keepID = keep
				continue
			}
			if keep {
				*includes++
			} else {
				*excludes++
			}
			if err := q.insert(parent, k, field, &node{leaf: true}); err != nil {
				return err
			}
		case v.IsDocument() && v.Doc().Len() > 0 && !strings.HasPrefix(v.Doc().Keys()[0], "$"):
			child, err := q.subtree(parent, k, field)
			if err != nil {
				return err
			}
			if err := q.parse(p, child, field+".", v.Doc(), includes, excludes); err != nil {
				return err
			}
		case v.IsDocument() && v.Doc().Len() == 1 && isFindOperator(v.Doc().Keys()[0]):
			return malformed(field, "projection operator %s is not supported", v.Doc().Keys()[0])
		default:
			e, err := expression.Parse(v)
			if err != nil {
				return err
			}
			*includes++
			if err := q.insert(parent, k, field, &node{expr: &e}); err != nil {
				return err
			}
		}
	}
	return nil
}

func isFindOperator(op string) bool {
	return op == "$slice" || op == "$elemMatch" || op == "$meta"
}

// insert adds the dotted path k under parent.
func (q *Projector) insert(parent *node, k, field string, leaf *node) error {
	parts := strings.Split(k, ".")
	cur := parent
	for _, part := range parts[:len(parts)-1] {
		next, err := q.subtree(cur, part, field)
		if err != nil {
			return err
		}
		cur = next
	}
	last := parts[len(parts)-1]
	if _, ok := cur.children[last]; ok {
		return malformed(field, "path collision")
	}
	cur.children[last] = leaf
	cur.order = append(cur.order, last)
	return nil
}

func (q *Projector) subtree(parent *node, k, field string) (*node, error) {
	cur := parent
	for _, part := range strings.Split(k, ".") {
		next, ok := cur.children[part]
		switch {
		case !ok:
			next = newNode()
			cur.children[part] = next
			cur.order = append(cur.order, part)
		case next.leaf || next.expr != nil:
			return nil, malformed(field, "path collision")
		}
		cur = next
	}
	return cur, nil
}

// Project applies p to doc. The result never shares memory with doc.
func (q *Projector) Project(doc *domain.Document, p Projection) (*domain.Document, error) {
	if p.IsEmpty() {
		return doc.Clone(), nil
	}
	if !p.inclusive {
		res := doc.Clone()
		q.exclude(res, p.root)
		return res, nil
	}
	res := q.include(doc, p.root)
	if err := q.compute(doc, res, p.root, nil); err != nil {
		return nil, err
	}
	return res, nil
}

// ProjectAll applies p to every document of docs.
func (q *Projector) ProjectAll(docs []*domain.Document, p Projection) ([]*domain.Document, error) {
	res := make([]*domain.Document, len(docs))
	for n, doc := range docs {
		projected, err := q.Project(doc, p)
		if err != nil {
			return nil, err
		}
		res[n] = projected
	}
	return res, nil
}

func (q *Projector) include(src *domain.Document, n *node) *domain.Document {
	res := domain.NewDocument()
	for k, v := range src.Iter() {
		child, ok := n.children[k]
		if !ok || child.expr != nil {
			continue
		}
		if child.leaf {
			res.Set(k, v.Clone())
			continue
		}
		switch v.Kind() {
		case domain.KindDocument:
			res.Set(k, domain.Doc(q.include(v.Doc(), child)))
		case domain.KindArray:
			res.Set(k, q.includeArray(v.Array(), child))
		}
	}
	return res
}

func (q *Projector) includeArray(items []domain.Value, n *node) domain.Value {
	res := make([]domain.Value, 0, len(items))
	for _, item := range items {
		switch item.Kind() {
		case domain.KindDocument:
			res = append(res, domain.Doc(q.include(item.Doc(), n)))
		case domain.KindArray:
			res = append(res, q.includeArray(item.Array(), n))
		}
	}
	return domain.Array(res...)
}

// compute writes the computed fields of n into res, in projection order.
// Expressions see the whole source document.
func (q *Projector) compute(root, res *domain.Document, n *node, addr []string) error {
	for _, k := range n.order {
		child := n.children[k]
		path := append(addr[:len(addr):len(addr)], k)
		if child.expr == nil {
			if !child.leaf {
				if err := q.compute(root, res, child, path); err != nil {
					return err
				}
			}
			continue
		}
		v, err := q.evaluator.Evaluate(*child.expr, root)
		if err != nil {
			return err
		}
		if v.IsMissing() {
			continue
		}
		if err := q.fn.SetField(res, v, path...); err != nil {
			return err
		}
	}
	return nil
}

func (q *Projector) exclude(doc *domain.Document, n *node) {
	for k, child := range n.children {
		if child.leaf {
			doc.Unset(k)
			continue
		}
		v := doc.Get(k)
		switch v.Kind() {
		case domain.KindDocument:
			q.exclude(v.Doc(), child)
		case domain.KindArray:
			q.excludeArray(v.Array(), child)
		}
	}
}

func (q *Projector) excludeArray(items []domain.Value, n *node) {
	for _, item := range items {
		switch item.Kind() {
		case domain.KindDocument:
			q.exclude(item.Doc(), n)
		case domain.KindArray:
			q.excludeArray(item.Array(), n)
		}
	}
}

// Exclude returns an exclusion projection of fields, as used by $unset.
func (q *Projector) Exclude(fields ...string) (Projection, error) {
	if len(fields) == 0 {
		return Projection{}, malformed("", "expected at least one field")
	}
	doc := domain.NewDocument()
	for _, f := range fields {
		if f == "" {
			return Projection{}, malformed("", "empty field name")
		}
		doc.Set(f, domain.Int32(0))
	}
	return q.ParseDocument(doc)
}

func malformed(field string, format string, args ...any) error {
	return domain.ErrMalformedExpression{Kind: "projection", Field: field, Reason: fmt.Sprintf(format, args...)}
}
