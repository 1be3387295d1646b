// Package index keeps the secondary indexes of a collection in AVL trees
// keyed by [domain.Value].
package index

import (
	"context"
	"errors"
	"iter"
	"slices"

	"github.com/vinicius-lino-figueiredo/bst"
	"github.com/vinicius-lino-figueiredo/bst/adapter/avl"

	"github.com/sboesebeck/morphium-sub001/adapter/comparer"
	"github.com/sboesebeck/morphium-sub001/adapter/fieldnavigator"
	"github.com/sboesebeck/morphium-sub001/adapter/hasher"
	"github.com/sboesebeck/morphium-sub001/domain"
	"github.com/sboesebeck/morphium-sub001/pkg/uncomparable"
)

// Bound is one end of a range lookup.
type Bound struct {
	Value     domain.Value
	Inclusive bool
}

// Index maps the keys of a [domain.IndexDescriptor] to the documents that
// hold them. Single-field ordered indexes are multikey: every element of an
// array value is a key of its own. Compound keys are arrays with one value
// per indexed field. Documents without the indexed fields are stored under
// null, unless the index is sparse.
type Index struct {
	desc       domain.IndexDescriptor
	collection string
	addrs      [][]string
	multikey   bool

	// Exported to allow testing.
	Tree           bst.BST[domain.Value, *domain.Document]
	bstComparer    bst.Comparer[domain.Value, *domain.Document]
	comparer       domain.Comparer
	hasher         domain.Hasher
	fieldNavigator domain.FieldNavigator
}

// NewIndex returns an empty index for desc.
func NewIndex(desc domain.IndexDescriptor, options ...Option) (*Index, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if desc.Name == "" {
		desc.Name = desc.DefaultName()
	}
	i := &Index{desc: desc}
	for _, option := range options {
		option(i)
	}
	if i.comparer == nil {
		i.comparer = comparer.NewComparer()
	}
	if i.hasher == nil {
		i.hasher = hasher.NewHasher()
	}
	if i.fieldNavigator == nil {
		i.fieldNavigator = fieldnavigator.NewFieldNavigator()
	}
	for _, field := range desc.Fields() {
		addr, err := i.fieldNavigator.GetAddress(field)
		if err != nil {
			return nil, err
		}
		i.addrs = append(i.addrs, addr)
	}
	i.bstComparer = NewBSTComparer(i.comparer)
	i.Tree = avl.NewBST(desc.Unique, 8, i.bstComparer)
	return i, nil
}

// Descriptor returns the descriptor the index was built from.
func (i *Index) Descriptor() domain.IndexDescriptor { return i.desc }

// Name returns the index name.
func (i *Index) Name() string { return i.desc.Name }

// IsMultiField reports whether the index key has more than one field.
func (i *Index) IsMultiField() bool { return len(i.addrs) > 1 }

// IsMultikey reports whether some document was stored under more than one
// key since the index was created or last reset.
func (i *Index) IsMultikey() bool { return i.multikey }

// Reset empties the index and fills it with docs.
func (i *Index) Reset(ctx context.Context, docs ...*domain.Document) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	i.Tree = avl.NewBST(i.desc.Unique, 8, i.bstComparer)
	i.multikey = false
	return i.Insert(ctx, docs...)
}

// Keys returns the distinct keys doc is stored under. The second result is
// false when a sparse index skips doc.
func (i *Index) Keys(doc *domain.Document) ([]domain.Value, bool) {
	if len(i.addrs) != 1 {
		return i.compoundKey(doc)
	}

	values, _ := i.fieldNavigator.GetField(doc, i.addrs[0]...)
	present := slices.ContainsFunc(values, func(v domain.Value) bool { return !v.IsMissing() })
	if i.desc.Sparse && !present {
		return nil, false
	}

	kind := i.desc.Keys[0].Kind
	if kind == domain.IndexKindHashed {
		return []domain.Value{i.hash(values[0])}, true
	}

	keys := make([]domain.Value, 0, len(values))
	for _, v := range values {
		switch {
		case v.IsMissing():
			keys = append(keys, domain.Null())
		case v.IsArray() && kind == "" && len(v.Array()) > 0:
			keys = append(keys, v.Array()...)
		default:
			keys = append(keys, v)
		}
	}
	slices.SortStableFunc(keys, i.comparer.Compare)
	return slices.CompactFunc(keys, i.comparer.Equal), true
}

func (i *Index) compoundKey(doc *domain.Document) ([]domain.Value, bool) {
	present := false
	parts := make([]domain.Value, len(i.addrs))
	for n, addr := range i.addrs {
		v := i.fieldNavigator.GetValue(doc, addr...)
		if v.IsMissing() {
			values, _ := i.fieldNavigator.GetField(doc, addr...)
			v = values[0]
		}
		if v.IsMissing() {
			v = domain.Null()
		} else {
			present = true
		}
		if i.desc.Keys[n].Kind == domain.IndexKindHashed {
			v = i.hash(v)
		}
		parts[n] = v
	}
	if i.desc.Sparse && !present {
		return nil, false
	}
	return []domain.Value{domain.Array(parts...)}, true
}

func (i *Index) hash(v domain.Value) domain.Value {
	return domain.Int64(int64(i.hasher.Hash(v)))
}

// Insert adds docs to the index. Either every document is added or, on
// error, none is.
func (i *Index) Insert(ctx context.Context, docs ...*domain.Document) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	type kv struct {
		key domain.Value
		doc *domain.Document
	}

	inserted := make([]kv, 0, len(docs))

	var err error
DocInsertion:
	for _, d := range docs {
		keys, ok := i.Keys(d)
		if !ok {
			continue
		}
		for _, k := range keys {
			if err = i.Tree.Insert(k, d); err != nil {
				if e := new(bst.ErrUniqueViolated); errors.As(err, e) {
					err = domain.ErrConstraintViolation{
						Collection: i.collection,
						Index:      i.desc.Name,
						Key:        k,
					}
				}
				break DocInsertion
			}
			inserted = append(inserted, kv{key: k, doc: d})
		}
		i.multikey = i.multikey || len(keys) > 1
	}
	if err != nil {
		errs := []error{err}
		for _, v := range slices.Backward(inserted) {
			if err := i.Tree.Delete(v.key, &v.doc); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
	return nil
}

// Remove deletes docs from the index.
func (i *Index) Remove(ctx context.Context, docs ...*domain.Document) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	var errs []error
	for _, d := range docs {
		keys, ok := i.Keys(d)
		if !ok {
			continue
		}
		for _, k := range keys {
			if err := i.Tree.Delete(k, &d); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Update replaces oldDoc with newDoc. When newDoc cannot be inserted the
// index is left holding oldDoc.
func (i *Index) Update(ctx context.Context, oldDoc, newDoc *domain.Document) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := i.Remove(ctx, oldDoc); err != nil {
		return err
	}
	if err := i.Insert(ctx, newDoc); err != nil {
		_ = i.Insert(context.WithoutCancel(ctx), oldDoc)
		return err
	}
	return nil
}

// RevertUpdate undoes [Index.Update].
func (i *Index) RevertUpdate(ctx context.Context, oldDoc, newDoc *domain.Document) error {
	return i.Update(ctx, newDoc, oldDoc)
}

// GetMatching returns the documents stored under any of values, ordered
// by key. A document found under several keys is returned once.
func (i *Index) GetMatching(values ...domain.Value) ([]*domain.Document, error) {
	found := uncomparable.New[[]*domain.Document](i.hasher, i.comparer)
	for _, v := range values {
		node, err := i.Tree.Search(v)
		if err != nil {
			return nil, err
		}
		if node == nil {
			continue
		}
		found.Set(node.Key(), slices.Clone(node.Values()))
	}

	keys := slices.SortedFunc(found.Keys(), i.comparer.Compare)
	seen := make(map[*domain.Document]struct{})
	var res []*domain.Document
	for _, k := range keys {
		docs, _ := found.Get(k)
		for _, d := range docs {
			if _, ok := seen[d]; ok {
				continue
			}
			seen[d] = struct{}{}
			res = append(res, d)
		}
	}
	return res, nil
}

// GetBetweenBounds returns the documents whose keys lie between lower and
// upper, in key order. A nil bound leaves that side open. Multikey
// documents may be yielded more than once.
func (i *Index) GetBetweenBounds(ctx context.Context, lower, upper *Bound) (iter.Seq2[*domain.Document, error], error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var qry bst.Query[domain.Value]
	if lower != nil {
		qry.GreaterThan = &bst.Bound[domain.Value]{Value: lower.Value, IncludeEqual: lower.Inclusive}
	}
	if upper != nil {
		qry.LowerThan = &bst.Bound[domain.Value]{Value: upper.Value, IncludeEqual: upper.Inclusive}
	}
	return i.Tree.Query(qry), nil
}

// GetAll returns every indexed document in key order.
func (i *Index) GetAll() iter.Seq[*domain.Document] {
	return i.Tree.GetAll()
}

// GetNumberOfKeys returns the number of distinct keys.
func (i *Index) GetNumberOfKeys() int {
	return i.Tree.GetNumberOfKeys()
}
