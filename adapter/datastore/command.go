package datastore

import (
	"context"

	"github.com/sboesebeck/morphium-sub001/adapter/cursor"
	"github.com/sboesebeck/morphium-sub001/domain"
)

// Execute implements domain.Store. Find and aggregate results are read
// lazily when cmd.BatchSize is set and fully materialized otherwise.
func (d *Datastore) Execute(ctx context.Context, cmd domain.Command) (domain.Result, error) {
	var res domain.Result
	var err error
	switch cmd.Op {
	case domain.OpFind:
		res.Cursor, err = d.Find(ctx, cmd.Collection, cmd.Filter,
			domain.WithFindSort(cmd.Sort),
			domain.WithFindSkip(cmd.Skip),
			domain.WithFindLimit(cmd.Limit),
			domain.WithFindProjection(cmd.Projection),
			domain.WithFindBatchSize(cmd.BatchSize),
			domain.WithFindCollation(cmd.Collation),
		)
	case domain.OpInsert:
		res.InsertedIDs, err = d.Insert(ctx, cmd.Collection, cmd.Documents)
	case domain.OpUpdate:
		res.Write, err = d.Update(ctx, cmd.Collection, cmd.Filter, cmd.Update,
			domain.WithUpdateMulti(cmd.Multi),
			domain.WithUpsert(cmd.Upsert),
			domain.WithUpdateCollation(cmd.Collation),
		)
	case domain.OpDelete:
		res.Write, err = d.Delete(ctx, cmd.Collection, cmd.Filter,
			domain.WithDeleteMulti(cmd.Multi),
			domain.WithDeleteCollation(cmd.Collation),
		)
	case domain.OpAggregate:
		res.Cursor, err = d.Aggregate(ctx, cmd.Collection, cmd.Pipeline,
			domain.WithAggregateBatchSize(cmd.BatchSize),
			domain.WithAggregateCollation(cmd.Collation),
			domain.WithAggregateComment(cmd.Comment),
		)
	case domain.OpCount:
		res.Count, err = d.Count(ctx, cmd.Collection, cmd.Filter,
			domain.WithFindSkip(cmd.Skip),
			domain.WithFindLimit(cmd.Limit),
			domain.WithFindCollation(cmd.Collation),
		)
	default:
		return res, domain.ErrMalformedExpression{Kind: "command", Operator: cmd.Op.String(), Collection: cmd.Collection, Reason: "unknown operation"}
	}
	if err != nil {
		return domain.Result{Write: res.Write, InsertedIDs: res.InsertedIDs}, err
	}

	if res.Cursor != nil && cmd.BatchSize <= 0 {
		res.Cursor, err = materialize(ctx, res.Cursor)
	}
	return res, err
}

// materialize reads every document of cur into a cursor holding them in a
// single batch.
func materialize(ctx context.Context, cur domain.Cursor) (domain.Cursor, error) {
	defer cur.Close()
	var docs []*domain.Document
	for doc, ok := cur.Next(); ok; doc, ok = cur.Next() {
		docs = append(docs, doc)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	res, err := cursor.FromSlice(ctx, docs, cursor.WithBatchSize(max(len(docs), 1)))
	if err != nil {
		return nil, err
	}
	return res, nil
}
