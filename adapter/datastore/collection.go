package datastore

import (
	"cmp"
	"context"
	"errors"
	"slices"

	"go.uber.org/zap"

	"github.com/sboesebeck/morphium-sub001/adapter/index"
	"github.com/sboesebeck/morphium-sub001/adapter/matcher"
	"github.com/sboesebeck/morphium-sub001/domain"
	"github.com/sboesebeck/morphium-sub001/pkg/ctxsync"
)

// IDIndexName is the name of the implicit unique index on the identity
// field.
const IDIndexName = "_id_"

// collection holds the documents of a collection in natural order and the
// indexes over them. Every field is guarded by mu.
type collection struct {
	name string
	mu   *ctxsync.RWMutex

	docs []*domain.Document
	// seq orders documents naturally: an updated document keeps the
	// sequence number of the one it replaces.
	seq     map[*domain.Document]uint64
	nextSeq uint64

	// indexes[0] is the identity index.
	indexes []*index.Index
	dropped bool
}

func (d *Datastore) newCollection(name string) (*collection, error) {
	idIdx, err := d.newIndex(name, domain.IndexDescriptor{
		Name:   IDIndexName,
		Keys:   []domain.IndexKey{{Field: d.idField, Direction: 1}},
		Unique: true,
	})
	if err != nil {
		return nil, err
	}
	return &collection{
		name:    name,
		mu:      ctxsync.NewRWMutex(),
		seq:     make(map[*domain.Document]uint64),
		indexes: []*index.Index{idIdx},
	}, nil
}

func (d *Datastore) newIndex(collection string, desc domain.IndexDescriptor) (*index.Index, error) {
	return index.NewIndex(desc,
		index.WithCollection(collection),
		index.WithComparer(d.comparer),
		index.WithHasher(d.hasher),
		index.WithFieldNavigator(d.fieldNavigator),
	)
}

func (c *collection) lock(ctx context.Context, write bool) error {
	var err error
	if write {
		err = c.mu.LockWithContext(ctx)
	} else {
		err = c.mu.RLockWithContext(ctx)
	}
	if err != nil {
		return domain.NewErrCancelled(ctx)
	}
	return nil
}

func (c *collection) unlock(write bool) {
	if write {
		c.mu.Unlock()
	} else {
		c.mu.RUnlock()
	}
}

func (c *collection) index(name string) *index.Index {
	for _, idx := range c.indexes {
		if idx.Name() == name {
			return idx
		}
	}
	return nil
}

// candidates returns the documents that may match f, in natural order.
func (d *Datastore) candidates(ctx context.Context, c *collection, f matcher.Filter, col *domain.Collation) ([]*domain.Document, error) {
	plan := d.planner.Plan(f, c.indexes, col)
	if plan.IsFullScan() {
		return slices.Clone(c.docs), nil
	}
	d.log(ctx).Debug("query planned", zap.String("collection", c.name), zap.Stringer("plan", plan))
	docs, err := plan.Candidates(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(docs, func(a, b *domain.Document) int {
		return cmp.Compare(c.seq[a], c.seq[b])
	})
	return docs, nil
}

// insert adds doc to every index and then to the collection. On error
// nothing is added.
func (c *collection) insert(ctx context.Context, doc *domain.Document) error {
	ctx = context.WithoutCancel(ctx)
	for n, idx := range c.indexes {
		if err := idx.Insert(ctx, doc); err != nil {
			errs := []error{err}
			for _, prev := range c.indexes[:n] {
				if rmErr := prev.Remove(ctx, doc); rmErr != nil {
					errs = append(errs, rmErr)
				}
			}
			return errors.Join(errs...)
		}
	}
	c.docs = append(c.docs, doc)
	c.seq[doc] = c.nextSeq
	c.nextSeq++
	return nil
}

// replace swaps oldDoc for newDoc in place. On error the collection still
// holds oldDoc.
func (c *collection) replace(ctx context.Context, oldDoc, newDoc *domain.Document) error {
	ctx = context.WithoutCancel(ctx)
	for n, idx := range c.indexes {
		if err := idx.Update(ctx, oldDoc, newDoc); err != nil {
			errs := []error{err}
			for _, prev := range c.indexes[:n] {
				if revErr := prev.RevertUpdate(ctx, oldDoc, newDoc); revErr != nil {
					errs = append(errs, revErr)
				}
			}
			return errors.Join(errs...)
		}
	}
	// docs is always sorted by sequence number.
	seq := c.seq[oldDoc]
	if i, ok := slices.BinarySearchFunc(c.docs, seq, func(doc *domain.Document, s uint64) int {
		return cmp.Compare(c.seq[doc], s)
	}); ok {
		c.docs[i] = newDoc
	}
	c.seq[newDoc] = seq
	delete(c.seq, oldDoc)
	return nil
}

// remove deletes docs from the indexes and the collection.
func (c *collection) remove(ctx context.Context, docs ...*domain.Document) error {
	if len(docs) == 0 {
		return nil
	}
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for _, idx := range c.indexes {
		if err := idx.Remove(ctx, docs...); err != nil {
			errs = append(errs, err)
		}
	}
	gone := make(map[*domain.Document]struct{}, len(docs))
	for _, doc := range docs {
		gone[doc] = struct{}{}
		delete(c.seq, doc)
	}
	c.docs = slices.DeleteFunc(c.docs, func(doc *domain.Document) bool {
		_, ok := gone[doc]
		return ok
	})
	return errors.Join(errs...)
}
