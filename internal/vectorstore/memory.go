package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fyrsmithlabs/ragserve/internal/logging"
	"go.uber.org/zap"
)

const backendMemory = "memory"

// partition is the arena for one tag. Vectors live in one flat slice with
// a stride of dim; slot s occupies data[s*dim:(s+1)*dim].
type partition struct {
	dim    int
	data   []float32
	owners []string // owners[slot] is "" for a free slot
	free   []int    // LIFO, so remove-then-add reuses the slot
	slots  map[string]int
}

func newPartition(dim int) *partition {
	return &partition{dim: dim, slots: make(map[string]int)}
}

func (p *partition) len() int { return len(p.slots) }

func (p *partition) vector(slot int) []float32 {
	return p.data[slot*p.dim : (slot+1)*p.dim]
}

// add stores a prepared vector for an id that is not present.
func (p *partition) add(id string, v []float32) int {
	var slot int
	if n := len(p.free); n > 0 {
		slot = p.free[n-1]
		p.free = p.free[:n-1]
		copy(p.vector(slot), v)
		p.owners[slot] = id
	} else {
		slot = len(p.owners)
		p.data = append(p.data, v...)
		p.owners = append(p.owners, id)
	}
	p.slots[id] = slot
	return slot
}

// remove frees id's slot. It reports whether id was present.
func (p *partition) remove(id string) bool {
	slot, ok := p.slots[id]
	if !ok {
		return false
	}
	delete(p.slots, id)
	p.owners[slot] = ""
	clear(p.vector(slot))
	p.free = append(p.free, slot)
	return true
}

func (p *partition) upsert(id string, v []float32) int {
	p.remove(id)
	return p.add(id, v)
}

// search scores every live slot against a prepared query.
func (p *partition) search(q []float32, k int, m Metric) []candidate {
	cs := make([]candidate, 0, p.len())
	for slot, id := range p.owners {
		if id == "" {
			continue
		}
		cs = append(cs, candidate{itemID: id, score: m.score(q, p.vector(slot))})
	}
	return rankCandidates(cs, k)
}

// MemoryIndex is an in-process VectorIndex with exact search.
type MemoryIndex struct {
	mu         sync.RWMutex
	dim        int
	metric     Metric
	partitions map[string]*partition
	closed     bool

	logger  *logging.Logger
	metrics *Metrics
}

// NewMemoryIndex creates an empty index for vectors of width dim.
func NewMemoryIndex(dim int, metric Metric, logger *logging.Logger, metrics *Metrics) (*MemoryIndex, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	if _, err := ParseMetric(string(metric)); err != nil {
		return nil, err
	}
	if metric == "" {
		metric = MetricIP
	}
	return &MemoryIndex{
		dim:        dim,
		metric:     metric,
		partitions: make(map[string]*partition),
		logger:     logger.Named("index.memory"),
		metrics:    metrics,
	}, nil
}

// Upsert implements VectorIndex.
func (x *MemoryIndex) Upsert(ctx context.Context, entries []Entry) (err error) {
	defer func() { x.metrics.observeOperation(backendMemory, "upsert", err) }()

	if err := validateEntries(entries, x.dim); err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return ErrClosed
	}

	for _, e := range entries {
		v := x.metric.prepare(e.Vector)
		for _, tag := range uniqueTags(e.Tags) {
			p, ok := x.partitions[tag]
			if !ok {
				p = newPartition(x.dim)
				x.partitions[tag] = p
				x.logger.Debug(ctx, "created tag partition", zap.String("tag", tag))
			}
			p.upsert(e.ItemID, v)
		}
	}
	x.metrics.setSize(backendMemory, x.statsLocked())
	return nil
}

// Remove implements VectorIndex.
func (x *MemoryIndex) Remove(ctx context.Context, itemID string, tags []string) (err error) {
	defer func() { x.metrics.observeOperation(backendMemory, "remove", err) }()

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return ErrClosed
	}

	for _, tag := range tags {
		if p, ok := x.partitions[tag]; ok && p.remove(itemID) {
			x.logger.Trace(ctx, "removed item from partition", zap.String("item_id", itemID), zap.String("tag", tag))
		}
	}
	x.metrics.setSize(backendMemory, x.statsLocked())
	return nil
}

// Query implements VectorIndex.
func (x *MemoryIndex) Query(ctx context.Context, vectors [][]float32, tags []string, numItems int, removeDuplicates bool) (hits []Hit, err error) {
	start := time.Now()
	defer func() { x.metrics.observeQuery(backendMemory, start, len(hits), err) }()

	if numItems <= 0 {
		return []Hit{}, nil
	}
	if err := validateQueryVectors(vectors, x.dim); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	queries := make([][]float32, len(vectors))
	for i, v := range vectors {
		queries[i] = x.metric.prepare(v)
	}

	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return nil, ErrClosed
	}

	var pool []Hit
	for _, tag := range uniqueTags(tags) {
		p, ok := x.partitions[tag]
		if !ok || p.len() == 0 {
			continue
		}
		k := min(numItems, p.len())
		for _, q := range queries {
			pool = appendHits(pool, tag, p.search(q, k, x.metric))
		}
	}
	return mergeHits(pool, numItems, removeDuplicates), nil
}

// Stats implements VectorIndex.
func (x *MemoryIndex) Stats() Stats {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.statsLocked()
}

func (x *MemoryIndex) statsLocked() Stats {
	s := Stats{Backend: backendMemory, Metric: string(x.metric), Dimension: x.dim, Partitions: len(x.partitions)}
	for _, p := range x.partitions {
		s.Vectors += p.len()
	}
	return s
}

// Close releases all partitions.
func (x *MemoryIndex) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.closed = true
	x.partitions = nil
	return nil
}

var _ VectorIndex = (*MemoryIndex)(nil)
