package rag

import (
	"errors"
	"sync"

	"github.com/fyrsmithlabs/ragserve/internal/itemstore"
	"github.com/fyrsmithlabs/ragserve/internal/vectorstore"
)

// Corpus is the index and store pair shared by the pipelines.
type Corpus struct {
	mu    sync.RWMutex
	index vectorstore.VectorIndex
	store itemstore.Store
}

// NewCorpus pairs an index with a store. Both must start empty.
func NewCorpus(index vectorstore.VectorIndex, store itemstore.Store) (*Corpus, error) {
	if index == nil {
		return nil, errors.New("index is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	return &Corpus{index: index, store: store}, nil
}

// Stats reports index contents and the number of stored items.
func (c *Corpus) Stats() (vectorstore.Stats, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index.Stats(), c.store.Len()
}
