package morphium_test

import (
	"bytes"
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/sboesebeck/morphium-sub001"
	"github.com/sboesebeck/morphium-sub001/domain"
)

func ExampleNew() {
	ctx := context.Background()

	// New starts an empty in-memory store. WithTTL(false) keeps the
	// background sweeper from running, expired documents then only go
	// away when the store is swept explicitly.
	store := morphium.New(morphium.WithTTL(false))
	defer store.Close(ctx)

	// Collections are created on first write.
	_, _ = store.Insert(ctx, "fruits", []any{
		bson.D{{Key: "_id", Value: 1}, {Key: "name", Value: "apple"}, {Key: "qty", Value: 5}},
		bson.D{{Key: "_id", Value: 2}, {Key: "name", Value: "pear"}, {Key: "qty", Value: 0}},
		bson.D{{Key: "_id", Value: 3}, {Key: "name", Value: "plum"}, {Key: "qty", Value: 12}},
	})

	// Filters, sorts and projections use MongoDB syntax.
	sort, _ := domain.SortOf(bson.D{{Key: "qty", Value: -1}})
	cur, _ := store.Find(ctx, "fruits",
		bson.D{{Key: "qty", Value: bson.D{{Key: "$gt", Value: 0}}}},
		domain.WithFindSort(sort),
	)
	var fruits []struct {
		Name string `bson:"name"`
		Qty  int    `bson:"qty"`
	}
	_ = cur.All(&fruits)
	fmt.Println(fruits)

	// Output:
	// [{plum 12} {apple 5}]
}

func ExampleStore_Update() {
	ctx := context.Background()
	store := morphium.New(morphium.WithTTL(false))
	defer store.Close(ctx)

	// An upsert inserts a document built from the filter equalities when
	// nothing matches.
	for range 3 {
		_, _ = store.Update(ctx, "counters",
			bson.D{{Key: "_id", Value: "visits"}},
			bson.D{{Key: "$inc", Value: bson.D{{Key: "n", Value: 1}}}},
			domain.WithUpsert(true),
		)
	}

	var counter struct {
		N int `bson:"n"`
	}
	_ = store.FindOne(ctx, "counters", bson.D{{Key: "_id", Value: "visits"}}, &counter)
	fmt.Println(counter.N)

	// Output:
	// 3
}

func ExampleStore_Aggregate() {
	ctx := context.Background()
	store := morphium.New(morphium.WithTTL(false))
	defer store.Close(ctx)

	_, _ = store.Insert(ctx, "sales", []any{
		bson.D{{Key: "item", Value: "a"}, {Key: "price", Value: 10}},
		bson.D{{Key: "item", Value: "b"}, {Key: "price", Value: 5}},
		bson.D{{Key: "item", Value: "a"}, {Key: "price", Value: 7}},
	})

	cur, _ := store.Aggregate(ctx, "sales", bson.A{
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$item"},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: "$price"}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	})
	for doc, ok := cur.Next(); ok; doc, ok = cur.Next() {
		fmt.Println(doc.Get("_id").Str(), doc.Get("total").Int64())
	}

	// Output:
	// a 17
	// b 5
}

func ExampleStore_Export() {
	ctx := context.Background()
	store := morphium.New(morphium.WithTTL(false))
	defer store.Close(ctx)

	_, _ = store.Insert(ctx, "notes", []any{
		bson.D{{Key: "_id", Value: 1}, {Key: "text", Value: "hello"}},
	})

	// Export writes one extended JSON document per line.
	var buf bytes.Buffer
	_ = store.Export(ctx, "notes", &buf)
	fmt.Print(buf.String())

	n, _ := store.Import(ctx, "copy", &buf)
	fmt.Println(n)

	// Output:
	// {"_id":1,"text":"hello"}
	// 1
}
