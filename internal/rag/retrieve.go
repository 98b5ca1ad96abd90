package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/ragserve/internal/embeddings"
	"github.com/fyrsmithlabs/ragserve/internal/logging"
	"github.com/fyrsmithlabs/ragserve/internal/ragerr"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// RetrievalPipeline answers queries against a Corpus.
type RetrievalPipeline struct {
	corpus   *Corpus
	embedder embeddings.Embedder
	logger   *logging.Logger
}

// NewRetrievalPipeline creates a retrieval pipeline.
func NewRetrievalPipeline(corpus *Corpus, embedder embeddings.Embedder, logger *logging.Logger) (*RetrievalPipeline, error) {
	if corpus == nil {
		return nil, errors.New("corpus is required")
	}
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &RetrievalPipeline{corpus: corpus, embedder: embedder, logger: logger.Named("rag.retrieve")}, nil
}

// Retrieve returns up to q.NumItems stored items nearest to q.Text within
// q.Tags, with descending scores.
func (p *RetrievalPipeline) Retrieve(ctx context.Context, q Query) (items []ScoredItem, err error) {
	ctx, span := tracer.Start(ctx, "RetrievalPipeline.Retrieve", trace.WithAttributes(
		attribute.Int("num_items", q.NumItems),
		attribute.StringSlice("tags", q.Tags),
	))
	defer func() { endSpan(span, err) }()

	tags, err := normalizeTags(q.Tags)
	if err != nil {
		return nil, err
	}
	if q.NumItems <= 0 || len(tags) == 0 {
		return []ScoredItem{}, nil
	}

	vectors, err := p.embedder.EmbedQueries(ctx, []string{q.Text})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for one query", ragerr.ErrConsistency, len(vectors))
	}

	c := p.corpus
	c.mu.RLock()
	defer c.mu.RUnlock()

	hits, err := c.index.Query(ctx, vectors, tags, q.NumItems, q.RemoveDuplicates)
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}

	items = make([]ScoredItem, 0, len(hits))
	for _, h := range hits {
		it, err := c.store.Get(ctx, h.ItemID)
		if errors.Is(err, ragerr.ErrNotFound) {
			p.logger.Error(ctx, "index hit has no stored item",
				zap.String("item_id", h.ItemID), zap.String("tag", h.Tag))
			return nil, fmt.Errorf("%w: index returned %q from %q but the store has no such item",
				ragerr.ErrConsistency, h.ItemID, h.Tag)
		}
		if err != nil {
			return nil, fmt.Errorf("hydrating %q: %w", h.ItemID, err)
		}
		items = append(items, ScoredItem{Item: it, Score: h.Score})
	}
	span.SetAttributes(attribute.Int("results", len(items)))
	return items, nil
}
