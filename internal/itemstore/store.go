// Package itemstore maps item ids to the latest ingested item payload.
package itemstore

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/fyrsmithlabs/ragserve/internal/ragerr"
)

// Item is a stored document.
type Item struct {
	ID      string   `json:"item_id"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

// Clone returns a copy that shares no memory with i.
func (i Item) Clone() Item {
	i.Tags = slices.Clone(i.Tags)
	return i
}

// Store holds items by id. Implementations copy items on the way in and on
// the way out.
type Store interface {
	// Put stores items. The last write for an id wins.
	Put(ctx context.Context, items ...Item) error
	// Get returns ragerr.ErrNotFound on a miss.
	Get(ctx context.Context, id string) (Item, error)
	// Delete removes id. Deleting a missing id returns ragerr.ErrNotFound.
	Delete(ctx context.Context, id string) error
	Len() int
}

// MemoryStore is a Store backed by a map.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Item
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Item)}
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, items ...Item) error {
	for _, it := range items {
		if it.ID == "" {
			return fmt.Errorf("%w: item id is required", ragerr.ErrInvalidInput)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		s.items[it.ID] = it.Clone()
	}
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[id]
	if !ok {
		return Item{}, fmt.Errorf("%w: item %q", ragerr.ErrNotFound, id)
	}
	return it.Clone(), nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return fmt.Errorf("%w: item %q", ragerr.ErrNotFound, id)
	}
	delete(s.items, id)
	return nil
}

// Len implements Store.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

var _ Store = (*MemoryStore)(nil)
