package datastore

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/sboesebeck/morphium-sub001/adapter/index"
	"github.com/sboesebeck/morphium-sub001/adapter/ttl"
	"github.com/sboesebeck/morphium-sub001/domain"
)

// CreateIndex implements domain.Store. Creating an index identical to an
// existing one does nothing. A different index under the same name, or the
// same keys under another name, is an [domain.ErrIndexConflict].
func (d *Datastore) CreateIndex(ctx context.Context, name string, desc domain.IndexDescriptor) (_ string, err error) {
	defer d.observe(name, "createIndex", time.Now(), &err)

	if err := desc.Validate(); err != nil {
		return "", annotate(err, name)
	}
	if desc.Name == "" {
		desc.Name = desc.DefaultName()
	}

	c, err := d.acquire(ctx, name, true, true)
	if err != nil {
		return "", err
	}
	defer c.unlock(true)

	for _, idx := range c.indexes {
		existing := idx.Descriptor()
		switch {
		case existing.Name == desc.Name && existing.Equal(desc):
			return desc.Name, nil
		case existing.Name == desc.Name:
			return "", domain.ErrIndexConflict{Collection: name, Name: desc.Name, Reason: "an index with this name has different options"}
		case existing.SameKeys(desc):
			return "", domain.ErrIndexConflict{Collection: name, Name: desc.Name, Reason: fmt.Sprintf("index %q has the same keys", existing.Name)}
		}
	}

	idx, err := d.newIndex(name, desc)
	if err != nil {
		return "", annotate(err, name)
	}
	if err := idx.Insert(context.WithoutCancel(ctx), c.docs...); err != nil {
		return "", err
	}
	c.indexes = append(c.indexes, idx)
	d.log(ctx).Info("index created",
		zap.String("collection", name),
		zap.String("index", desc.Name),
		zap.Bool("unique", desc.Unique),
		zap.Bool("ttl", desc.IsTTL()),
	)
	return desc.Name, nil
}

// ListIndexes implements domain.Store. The identity index comes first.
func (d *Datastore) ListIndexes(ctx context.Context, name string) ([]domain.IndexDescriptor, error) {
	c, err := d.acquire(ctx, name, false, false)
	if err != nil || c == nil {
		return nil, err
	}
	defer c.unlock(false)

	res := make([]domain.IndexDescriptor, len(c.indexes))
	for n, idx := range c.indexes {
		res[n] = idx.Descriptor()
	}
	return res, nil
}

// DropIndex implements domain.Store. The identity index cannot be
// dropped.
func (d *Datastore) DropIndex(ctx context.Context, name string, indexName string) (err error) {
	defer d.observe(name, "dropIndex", time.Now(), &err)

	if indexName == IDIndexName {
		return domain.ErrMalformedExpression{Kind: "index", Collection: name, Reason: "cannot drop the identity index"}
	}
	c, err := d.acquire(ctx, name, true, false)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("%w: %q", domain.ErrIndexNotFound, indexName)
	}
	defer c.unlock(true)

	for n, idx := range c.indexes {
		if idx.Name() == indexName {
			c.indexes = append(c.indexes[:n:n], c.indexes[n+1:]...)
			d.log(ctx).Info("index dropped", zap.String("collection", name), zap.String("index", indexName))
			return nil
		}
	}
	return fmt.Errorf("%w: %q", domain.ErrIndexNotFound, indexName)
}

// TTLIndexes implements ttl.Target.
func (d *Datastore) TTLIndexes(ctx context.Context) ([]ttl.Index, error) {
	if d.closed.Load() {
		return nil, domain.ErrStoreClosed
	}
	if err := d.mu.RLockWithContext(ctx); err != nil {
		return nil, domain.NewErrCancelled(ctx)
	}
	colls := make([]*collection, 0, len(d.collections))
	for _, c := range d.collections {
		colls = append(colls, c)
	}
	d.mu.RUnlock()

	var res []ttl.Index
	for _, c := range colls {
		if err := c.lock(ctx, false); err != nil {
			return nil, err
		}
		for _, idx := range c.indexes {
			desc := idx.Descriptor()
			if !desc.IsTTL() || c.dropped {
				continue
			}
			res = append(res, ttl.Index{
				Collection:  c.name,
				Name:        desc.Name,
				Field:       desc.Keys[0].Field,
				ExpireAfter: time.Duration(*desc.ExpireAfterSeconds) * time.Second,
			})
		}
		c.unlock(false)
	}
	return res, nil
}

// Expire implements ttl.Target. Only dates fall between the two bounds, so
// other values never expire.
func (d *Datastore) Expire(ctx context.Context, ti ttl.Index, cutoff time.Time) (int, error) {
	c, err := d.acquire(ctx, ti.Collection, true, false)
	if err != nil || c == nil {
		return 0, err
	}
	defer c.unlock(true)

	idx := c.index(ti.Name)
	if idx == nil {
		return 0, nil
	}
	seq, err := idx.GetBetweenBounds(ctx,
		&index.Bound{Value: domain.DateTimeMillis(math.MinInt64), Inclusive: true},
		&index.Bound{Value: domain.DateTime(cutoff), Inclusive: true},
	)
	if err != nil {
		return 0, err
	}

	seen := make(map[*domain.Document]struct{})
	var expired []*domain.Document
	for doc, err := range seq {
		if err != nil {
			return 0, err
		}
		if _, ok := seen[doc]; ok {
			continue
		}
		seen[doc] = struct{}{}
		expired = append(expired, doc)
	}
	if err := c.remove(ctx, expired...); err != nil {
		return 0, err
	}
	return len(expired), nil
}
