package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fyrsmithlabs/ragserve/internal/logging"
	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

const backendChromem = "chromem"

// errNoEmbeddingFunc is returned if chromem ever asks to embed text. Every
// document and query handed to it carries a vector already.
var errNoEmbeddingFunc = errors.New("chromem index stores precomputed vectors only")

func rejectEmbed(context.Context, string) ([]float32, error) {
	return nil, errNoEmbeddingFunc
}

// ChromemIndex is a VectorIndex backed by an in-memory chromem-go database
// with one collection per tag. chromem only supports cosine similarity.
type ChromemIndex struct {
	mu          sync.RWMutex
	dim         int
	db          *chromem.DB
	collections map[string]*chromem.Collection
	closed      bool

	logger  *logging.Logger
	metrics *Metrics
}

// NewChromemIndex creates an empty chromem-backed index.
func NewChromemIndex(dim int, logger *logging.Logger, metrics *Metrics) (*ChromemIndex, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	return &ChromemIndex{
		dim:         dim,
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
		logger:      logger.Named("index.chromem"),
		metrics:     metrics,
	}, nil
}

// Upsert implements VectorIndex. chromem keys documents by id, so adding an
// existing id replaces it.
func (x *ChromemIndex) Upsert(ctx context.Context, entries []Entry) (err error) {
	defer func() { x.metrics.observeOperation(backendChromem, "upsert", err) }()

	if err := validateEntries(entries, x.dim); err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return ErrClosed
	}

	for _, e := range entries {
		v := MetricCosine.prepare(e.Vector)
		for _, tag := range uniqueTags(e.Tags) {
			col, err := x.collectionLocked(tag)
			if err != nil {
				return err
			}
			doc := chromem.Document{ID: e.ItemID, Embedding: v}
			if err := col.AddDocument(ctx, doc); err != nil {
				return fmt.Errorf("adding %q to partition %q: %w", e.ItemID, tag, err)
			}
		}
	}
	x.metrics.setSize(backendChromem, x.statsLocked())
	return nil
}

func (x *ChromemIndex) collectionLocked(tag string) (*chromem.Collection, error) {
	if col, ok := x.collections[tag]; ok {
		return col, nil
	}
	col, err := x.db.GetOrCreateCollection(tag, nil, rejectEmbed)
	if err != nil {
		return nil, fmt.Errorf("creating partition %q: %w", tag, err)
	}
	x.collections[tag] = col
	x.logger.Debug(context.Background(), "created tag partition", zap.String("tag", tag))
	return col, nil
}

// Remove implements VectorIndex.
func (x *ChromemIndex) Remove(ctx context.Context, itemID string, tags []string) (err error) {
	defer func() { x.metrics.observeOperation(backendChromem, "remove", err) }()

	if itemID == "" {
		return nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return ErrClosed
	}

	for _, tag := range tags {
		col, ok := x.collections[tag]
		if !ok || col.Count() == 0 {
			continue
		}
		if err := col.Delete(ctx, nil, nil, itemID); err != nil {
			return fmt.Errorf("removing %q from partition %q: %w", itemID, tag, err)
		}
	}
	x.metrics.setSize(backendChromem, x.statsLocked())
	return nil
}

// Query implements VectorIndex.
func (x *ChromemIndex) Query(ctx context.Context, vectors [][]float32, tags []string, numItems int, removeDuplicates bool) (hits []Hit, err error) {
	start := time.Now()
	defer func() { x.metrics.observeQuery(backendChromem, start, len(hits), err) }()

	if numItems <= 0 {
		return []Hit{}, nil
	}
	if err := validateQueryVectors(vectors, x.dim); err != nil {
		return nil, err
	}

	queries := make([][]float32, len(vectors))
	for i, v := range vectors {
		queries[i] = MetricCosine.prepare(v)
	}

	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return nil, ErrClosed
	}

	var pool []Hit
	for _, tag := range uniqueTags(tags) {
		col, ok := x.collections[tag]
		if !ok {
			continue
		}
		n := col.Count()
		if n == 0 {
			continue
		}
		// Ask for every document so ties at the cut are broken by id, not
		// by chromem's internal order. chromem rejects counts above n.
		k := min(numItems, n)
		for _, q := range queries {
			res, err := col.QueryEmbedding(ctx, q, n, nil, nil)
			if err != nil {
				return nil, fmt.Errorf("searching partition %q: %w", tag, err)
			}
			cs := make([]candidate, len(res))
			for i, r := range res {
				cs[i] = candidate{itemID: r.ID, score: r.Similarity}
			}
			pool = appendHits(pool, tag, rankCandidates(cs, k))
		}
	}
	return mergeHits(pool, numItems, removeDuplicates), nil
}

// Stats implements VectorIndex.
func (x *ChromemIndex) Stats() Stats {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.statsLocked()
}

func (x *ChromemIndex) statsLocked() Stats {
	s := Stats{Backend: backendChromem, Metric: string(MetricCosine), Dimension: x.dim, Partitions: len(x.collections)}
	for _, col := range x.collections {
		s.Vectors += col.Count()
	}
	return s
}

// Close drops every collection.
func (x *ChromemIndex) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return nil
	}
	x.closed = true
	var errs []error
	for tag := range x.collections {
		if err := x.db.DeleteCollection(tag); err != nil {
			errs = append(errs, fmt.Errorf("dropping partition %q: %w", tag, err))
		}
	}
	x.collections = nil
	return errors.Join(errs...)
}

var _ VectorIndex = (*ChromemIndex)(nil)
