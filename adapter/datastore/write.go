package datastore

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sboesebeck/morphium-sub001/adapter/matcher"
	"github.com/sboesebeck/morphium-sub001/adapter/modifier"
	"github.com/sboesebeck/morphium-sub001/domain"
)

// Insert implements domain.Store. Documents without an identity value get
// a generated one. By default the insert stops at the first failing
// document, keeping those inserted before it; the returned
// [domain.ErrConstraintViolation] counts them. With [domain.WithOrdered]
// false every document is tried and the failures are joined. With
// [domain.WithAllOrNothing] a failure removes the whole batch again.
func (d *Datastore) Insert(ctx context.Context, name string, docs []any, options ...domain.InsertOption) (ids []domain.Value, err error) {
	defer d.observe(name, "insert", time.Now(), &err)

	var opts domain.InsertOptions
	for _, option := range options {
		option(&opts)
	}

	c, err := d.acquire(ctx, name, true, true)
	if err != nil {
		return nil, err
	}
	defer c.unlock(true)

	ids = make([]domain.Value, 0, len(docs))
	inserted := make([]*domain.Document, 0, len(docs))
	var errs []error
	for _, v := range docs {
		select {
		case <-ctx.Done():
			err = domain.NewErrCancelled(ctx)
		default:
			err = d.insertOne(ctx, c, v, len(inserted))
		}
		if err == nil {
			doc := c.docs[len(c.docs)-1]
			inserted = append(inserted, doc)
			ids = append(ids, doc.Get(d.idField).Clone())
			continue
		}
		if opts.AllOrNothing {
			if rmErr := c.remove(ctx, inserted...); rmErr != nil {
				err = errors.Join(err, rmErr)
			}
			return nil, withSucceeded(err, 0)
		}
		if !opts.Unordered || errors.Is(err, domain.ErrCancelled) {
			return ids, err
		}
		errs = append(errs, err)
	}

	d.log(ctx).Debug("documents inserted",
		zap.String("collection", name),
		zap.Int("count", len(inserted)),
	)
	return ids, errors.Join(errs...)
}

// insertOne prepares v and adds it to c. succeeded is reported by
// constraint violations.
func (d *Datastore) insertOne(ctx context.Context, c *collection, v any, succeeded int) error {
	doc, err := d.prepare(c.name, v)
	if err != nil {
		return err
	}
	if err := c.insert(ctx, doc); err != nil {
		return withSucceeded(err, succeeded)
	}
	return nil
}

// prepare converts v into a document owned by the store, with the identity
// field first.
func (d *Datastore) prepare(collection string, v any) (*domain.Document, error) {
	src, err := domain.DocumentOf(v)
	if err != nil {
		return nil, domain.ErrMalformedExpression{Kind: "document", Collection: collection, Reason: err.Error()}
	}
	if err := checkFields(collection, "", src); err != nil {
		return nil, err
	}

	id := src.Get(d.idField)
	switch {
	case id.IsMissing():
		if id, err = d.idGenerator.GenerateID(); err != nil {
			return nil, err
		}
	case id.IsDocument() || id.IsArray():
		return nil, domain.ErrMalformedExpression{
			Kind:       "document",
			Field:      d.idField,
			Collection: collection,
			Reason:     "identity value cannot be " + id.Kind().String(),
		}
	}

	doc := domain.NewDocument(domain.Field{Key: d.idField, Value: id.Clone()})
	for k, v := range src.Iter() {
		if k != d.idField {
			doc.Set(k, v.Clone())
		}
	}
	return doc, nil
}

// checkFields rejects field names that would be read as operators or
// paths.
func checkFields(collection, prefix string, doc *domain.Document) error {
	for k, v := range doc.Iter() {
		field := prefix + k
		switch {
		case strings.HasPrefix(k, "$"):
			return domain.ErrMalformedExpression{Kind: "document", Field: field, Collection: collection, Reason: "field names cannot begin with '$'"}
		case strings.ContainsRune(k, '.'):
			return domain.ErrMalformedExpression{Kind: "document", Field: field, Collection: collection, Reason: "field names cannot contain '.'"}
		}
		if err := checkValue(collection, field+".", v); err != nil {
			return err
		}
	}
	return nil
}

func checkValue(collection, prefix string, v domain.Value) error {
	switch {
	case v.IsDocument():
		return checkFields(collection, prefix, v.Doc())
	case v.IsArray():
		for _, item := range v.Array() {
			if err := checkValue(collection, prefix, item); err != nil {
				return err
			}
		}
	}
	return nil
}

// Update implements domain.Store. Each matching document is replaced by
// an updated copy, atomically with respect to readers. Documents updated
// before a failure stay updated; the result counts them.
func (d *Datastore) Update(ctx context.Context, name string, filter any, update any, options ...domain.UpdateOption) (res domain.WriteResult, err error) {
	defer d.observe(name, "update", time.Now(), &err)

	var opts domain.UpdateOptions
	for _, option := range options {
		option(&opts)
	}

	f, err := d.matcher.Parse(filter)
	if err != nil {
		return res, annotate(err, name)
	}
	u, err := d.modifier.Parse(update)
	if err != nil {
		return res, annotate(err, name)
	}
	if u.IsReplacement() && opts.Multi {
		return res, domain.ErrMalformedExpression{Kind: "update", Collection: name, Reason: "multi update requires update operators"}
	}
	q, err := d.querierFor(opts.Collation)
	if err != nil {
		return res, err
	}

	c, err := d.acquire(ctx, name, true, opts.Upsert)
	if err != nil || c == nil {
		return res, err
	}
	defer c.unlock(true)

	docs, err := d.candidates(ctx, c, f, opts.Collation)
	if err != nil {
		return res, err
	}
	for _, doc := range docs {
		select {
		case <-ctx.Done():
			return res, domain.NewErrCancelled(ctx)
		default:
		}
		ok, err := q.Match(doc, f)
		if err != nil {
			return res, annotate(err, name)
		}
		if !ok {
			continue
		}
		res.MatchedCount++
		newDoc, changed, err := d.modifier.Apply(doc, u, f)
		if err != nil {
			return res, annotate(err, name)
		}
		if changed {
			if err := c.replace(ctx, doc, newDoc); err != nil {
				return res, withSucceeded(err, int(res.ModifiedCount))
			}
			res.ModifiedCount++
		}
		if !opts.Multi {
			break
		}
	}

	if res.MatchedCount == 0 && opts.Upsert {
		res.UpsertedID, err = d.upsert(ctx, c, f, u)
	}
	return res, err
}

func (d *Datastore) upsert(ctx context.Context, c *collection, f matcher.Filter, u modifier.Update) (domain.Value, error) {
	seed, err := d.modifier.Upsert(f, u)
	if err != nil {
		return domain.Missing(), annotate(err, c.name)
	}
	if err := d.insertOne(ctx, c, seed, 0); err != nil {
		return domain.Missing(), err
	}
	return c.docs[len(c.docs)-1].Get(d.idField).Clone(), nil
}

// withSucceeded sets the number of documents written before a constraint
// violation.
func withSucceeded(err error, n int) error {
	var cv domain.ErrConstraintViolation
	if errors.As(err, &cv) {
		cv.Succeeded = n
		return cv
	}
	return err
}

// Delete implements domain.Store.
func (d *Datastore) Delete(ctx context.Context, name string, filter any, options ...domain.DeleteOption) (res domain.WriteResult, err error) {
	defer d.observe(name, "delete", time.Now(), &err)

	var opts domain.DeleteOptions
	for _, option := range options {
		option(&opts)
	}

	f, err := d.matcher.Parse(filter)
	if err != nil {
		return res, annotate(err, name)
	}
	q, err := d.querierFor(opts.Collation)
	if err != nil {
		return res, err
	}

	c, err := d.acquire(ctx, name, true, false)
	if err != nil || c == nil {
		return res, err
	}
	defer c.unlock(true)

	docs, err := d.candidates(ctx, c, f, opts.Collation)
	if err != nil {
		return res, err
	}
	var removed []*domain.Document
	for _, doc := range docs {
		select {
		case <-ctx.Done():
			return res, domain.NewErrCancelled(ctx)
		default:
		}
		ok, err := q.Match(doc, f)
		if err != nil {
			return res, annotate(err, name)
		}
		if !ok {
			continue
		}
		removed = append(removed, doc)
		if !opts.Multi {
			break
		}
	}
	if err := c.remove(ctx, removed...); err != nil {
		return res, err
	}
	res.DeletedCount = int64(len(removed))
	return res, nil
}
