package index

import (
	"github.com/vinicius-lino-figueiredo/bst"

	"github.com/sboesebeck/morphium-sub001/domain"
)

type bstComparer struct {
	comparer domain.Comparer
}

// NewBSTComparer adapts a [domain.Comparer] to the tree. Keys are ordered
// by value; documents stored under the same key are told apart by
// identity, since stored documents are never mutated in place.
func NewBSTComparer(comparer domain.Comparer) bst.Comparer[domain.Value, *domain.Document] {
	return &bstComparer{
		comparer: comparer,
	}
}

// CompareKeys implements bst.Comparer.
func (bc *bstComparer) CompareKeys(a domain.Value, b domain.Value) (int, error) {
	return bc.comparer.Compare(a, b), nil
}

// CompareValues implements bst.Comparer.
func (bc *bstComparer) CompareValues(a *domain.Document, b *domain.Document) (bool, error) {
	return a == b, nil
}
