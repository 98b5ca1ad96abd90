package rag

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/fyrsmithlabs/ragserve/internal/embeddings"
	"github.com/fyrsmithlabs/ragserve/internal/logging"
	"github.com/fyrsmithlabs/ragserve/internal/ragerr"
	"github.com/fyrsmithlabs/ragserve/internal/vectorstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("ragserve.rag")

// IngestionPipeline embeds items and commits them to a Corpus.
type IngestionPipeline struct {
	corpus   *Corpus
	embedder embeddings.Embedder
	logger   *logging.Logger
}

// NewIngestionPipeline creates an ingestion pipeline.
func NewIngestionPipeline(corpus *Corpus, embedder embeddings.Embedder, logger *logging.Logger) (*IngestionPipeline, error) {
	if corpus == nil {
		return nil, errors.New("corpus is required")
	}
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &IngestionPipeline{corpus: corpus, embedder: embedder, logger: logger.Named("rag.ingest")}, nil
}

// Ingest embeds and stores items. Re-ingesting an id replaces its content,
// vector and tag membership.
//
// Nothing is written if validation or embedding fails or ctx is done before
// the commit starts. Once the commit starts it runs to completion.
func (p *IngestionPipeline) Ingest(ctx context.Context, items []Item) (err error) {
	ctx, span := tracer.Start(ctx, "IngestionPipeline.Ingest", trace.WithAttributes(attribute.Int("items", len(items))))
	defer func() { endSpan(span, err) }()

	items, err = normalizeItems(items)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.Content
	}
	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding %d documents: %w", len(items), err)
	}
	if len(vectors) != len(items) {
		return fmt.Errorf("%w: embedder returned %d vectors for %d documents", ragerr.ErrConsistency, len(vectors), len(items))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	entries := make([]vectorstore.Entry, len(items))
	for i, it := range items {
		entries[i] = vectorstore.Entry{ItemID: it.ID, Tags: it.Tags, Vector: vectors[i]}
	}

	if err := p.commit(context.WithoutCancel(ctx), items, entries); err != nil {
		return err
	}
	p.logger.Debug(ctx, "ingested items", zap.Int("count", len(items)))
	return nil
}

func (p *IngestionPipeline) commit(ctx context.Context, items []Item, entries []vectorstore.Entry) error {
	c := p.corpus
	c.mu.Lock()
	defer c.mu.Unlock()

	stale := make(map[string][]string)
	for _, it := range items {
		prev, err := c.store.Get(ctx, it.ID)
		if errors.Is(err, ragerr.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("looking up %q: %w", it.ID, err)
		}
		for _, tag := range prev.Tags {
			if !slices.Contains(it.Tags, tag) {
				stale[it.ID] = append(stale[it.ID], tag)
			}
		}
	}

	if err := c.index.Upsert(ctx, entries); err != nil {
		return fmt.Errorf("indexing %d items: %w", len(entries), err)
	}
	for id, tags := range stale {
		if err := c.index.Remove(ctx, id, tags); err != nil {
			p.logger.Error(ctx, "failed to drop stale tags after upsert",
				zap.String("item_id", id), zap.Strings("tags", tags), zap.Error(err))
			return fmt.Errorf("%w: dropping stale tags of %q: %w", ragerr.ErrConsistency, id, err)
		}
	}
	if err := c.store.Put(ctx, items...); err != nil {
		p.logger.Error(ctx, "failed to store items after upsert", zap.Int("count", len(items)), zap.Error(err))
		return fmt.Errorf("%w: storing %d items: %w", ragerr.ErrConsistency, len(items), err)
	}
	return nil
}

// Remove deletes id from every partition of its tags and from the store.
func (p *IngestionPipeline) Remove(ctx context.Context, id string) (err error) {
	ctx, span := tracer.Start(ctx, "IngestionPipeline.Remove", trace.WithAttributes(attribute.String("item_id", id)))
	defer func() { endSpan(span, err) }()

	if id == "" {
		return fmt.Errorf("%w: item id is required", ragerr.ErrInvalidInput)
	}
	ctx = context.WithoutCancel(ctx)

	c := p.corpus
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, err := c.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := c.index.Remove(ctx, id, prev.Tags); err != nil {
		return fmt.Errorf("removing %q from index: %w", id, err)
	}
	if err := c.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("%w: deleting %q from store: %w", ragerr.ErrConsistency, id, err)
	}
	p.logger.Debug(ctx, "removed item", zap.String("item_id", id), zap.Strings("tags", prev.Tags))
	return nil
}

// normalizeItems trims and deduplicates tags and rejects invalid items.
// The returned items never alias the input.
func normalizeItems(items []Item) ([]Item, error) {
	out := make([]Item, len(items))
	seen := make(map[string]struct{}, len(items))
	for i, it := range items {
		if it.ID == "" {
			return nil, fmt.Errorf("%w: item %d has an empty id", ragerr.ErrInvalidInput, i)
		}
		if _, dup := seen[it.ID]; dup {
			return nil, fmt.Errorf("%w: item id %q appears more than once", ragerr.ErrInvalidInput, it.ID)
		}
		seen[it.ID] = struct{}{}

		tags, err := normalizeTags(it.Tags)
		if err != nil {
			return nil, fmt.Errorf("item %q: %w", it.ID, err)
		}
		if len(tags) == 0 {
			return nil, fmt.Errorf("%w: item %q has no tags", ragerr.ErrInvalidInput, it.ID)
		}
		out[i] = Item{ID: it.ID, Content: it.Content, Tags: tags}
	}
	return out, nil
}

// normalizeTags trims each tag and drops repeats, keeping first-seen order.
func normalizeTags(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			return nil, fmt.Errorf("%w: empty tag", ragerr.ErrInvalidInput)
		}
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
