package expression

import (
	"time"

	"github.com/sboesebeck/morphium-sub001/adapter/comparer"
	"github.com/sboesebeck/morphium-sub001/adapter/hasher"
	"github.com/sboesebeck/morphium-sub001/adapter/timegetter"
	"github.com/sboesebeck/morphium-sub001/domain"
)

// Evaluator evaluates expressions against documents.
type Evaluator struct {
	comparer   domain.Comparer
	hasher     domain.Hasher
	timeGetter domain.TimeGetter
}

// NewEvaluator returns a new [Evaluator].
func NewEvaluator(opts ...Option) *Evaluator {
	ev := Evaluator{}
	for _, opt := range opts {
		opt(&ev)
	}
	if ev.comparer == nil {
		ev.comparer = comparer.NewComparer()
	}
	if ev.hasher == nil {
		ev.hasher = hasher.NewHasher()
	}
	if ev.timeGetter == nil {
		ev.timeGetter = timegetter.NewTimeGetter()
	}
	return &ev
}

// Comparer returns the comparer used by the evaluator.
func (ev *Evaluator) Comparer() domain.Comparer { return ev.comparer }

// Hasher returns the hasher used by the evaluator.
func (ev *Evaluator) Hasher() domain.Hasher { return ev.hasher }

type scope struct {
	root    domain.Value
	current domain.Value
	vars    map[string]domain.Value
	now     time.Time
}

func (s *scope) with(name string, v domain.Value) *scope {
	vars := make(map[string]domain.Value, len(s.vars)+1)
	for k, item := range s.vars {
		vars[k] = item
	}
	vars[name] = v
	return &scope{root: s.root, current: s.current, vars: vars, now: s.now}
}

// Evaluate evaluates e with doc as $$ROOT and $$CURRENT.
func (ev *Evaluator) Evaluate(e Expr, doc *domain.Document) (domain.Value, error) {
	root := domain.Doc(doc)
	return ev.eval(e, &scope{root: root, current: root, now: ev.timeGetter.GetTime()})
}

func (ev *Evaluator) eval(e Expr, sc *scope) (domain.Value, error) {
	switch e.kind {
	case KindLiteral:
		return e.value, nil
	case KindField:
		return resolvePath(sc.current, e.path), nil
	case KindVariable:
		var base domain.Value
		switch e.name {
		case "ROOT":
			base = sc.root
		case "CURRENT":
			base = sc.current
		case "NOW":
			base = domain.DateTime(sc.now)
		default:
			v, ok := sc.vars[e.name]
			if !ok {
				return domain.Value{}, malformed("", "undefined variable $$%s", e.name)
			}
			base = v
		}
		return resolvePath(base, e.path), nil
	case KindObject:
		d := domain.NewDocument()
		for _, f := range e.fields {
			v, err := ev.eval(f.expr, sc)
			if err != nil {
				return domain.Value{}, err
			}
			d.Set(f.key, v)
		}
		return domain.Doc(d), nil
	case KindArray:
		arr := make([]domain.Value, len(e.args))
		for n, a := range e.args {
			v, err := ev.eval(a, sc)
			if err != nil {
				return domain.Value{}, err
			}
			if v.IsMissing() {
				v = domain.Null()
			}
			arr[n] = v
		}
		return domain.Array(arr...), nil
	}

	spec := operators[e.name]
	if spec.lazy != nil {
		return spec.lazy(ev, sc, e)
	}
	vals := make([]domain.Value, len(e.args))
	for n, a := range e.args {
		v, err := ev.eval(a, sc)
		if err != nil {
			return domain.Value{}, err
		}
		vals[n] = v
	}
	return spec.fn(ev, vals)
}

// resolvePath follows an aggregation path. Arrays met along the way map
// the rest of the path over their elements, dropping missing results, so
// "$a.b" over {a: [{b: 1}, {}, {b: 2}]} is [1, 2].
func resolvePath(v domain.Value, path []string) domain.Value {
	for n, part := range path {
		switch v.Kind() {
		case domain.KindDocument:
			v = v.Doc().Get(part)
		case domain.KindArray:
			res := make([]domain.Value, 0, len(v.Array()))
			for _, item := range v.Array() {
				if !item.IsDocument() && !item.IsArray() {
					continue
				}
				r := resolvePath(item, path[n:])
				if !r.IsMissing() {
					res = append(res, r)
				}
			}
			return domain.Array(res...)
		default:
			return domain.Missing()
		}
	}
	return v
}
