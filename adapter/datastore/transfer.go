package datastore

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"
)

// Export implements domain.Store. Documents are written in natural order,
// one relaxed extended JSON document per line.
func (d *Datastore) Export(ctx context.Context, name string, w io.Writer) (err error) {
	defer d.observe(name, "export", time.Now(), &err)

	docs, err := d.Snapshot(ctx, name)
	if err != nil {
		return err
	}
	n, err := d.persistence.WriteDocuments(ctx, w, docs...)
	if err != nil {
		return err
	}
	d.log(ctx).Debug("collection exported", zap.String("collection", name), zap.Int("count", n))
	return nil
}

// Import implements domain.Store. The documents are inserted in order and
// the number of inserted documents is returned. An unreadable stream
// inserts nothing.
func (d *Datastore) Import(ctx context.Context, name string, r io.Reader) (int, error) {
	docs, err := d.persistence.ReadDocuments(ctx, r)
	if err != nil {
		return 0, err
	}
	items := make([]any, len(docs))
	for n, doc := range docs {
		items[n] = doc
	}
	ids, err := d.Insert(ctx, name, items)
	return len(ids), err
}
