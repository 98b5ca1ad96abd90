package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fyrsmithlabs/ragserve/internal/logging"
	"github.com/fyrsmithlabs/ragserve/internal/qdrant"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const backendQdrant = "qdrant"

// Payload keys written on every point.
const (
	payloadItemID = "item_id"
	payloadTag    = "tag"
)

var qdrantTracer = otel.Tracer("ragserve.vectorstore.qdrant")

// pointNamespace seeds the deterministic point ids.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("ragserve.vectorstore"))

// pointID is the qdrant id of itemID's vector in the tag partition.
func pointID(itemID, tag string) string {
	return uuid.NewSHA1(pointNamespace, []byte(itemID+"\x00"+tag)).String()
}

// QdrantIndexConfig configures a QdrantIndex.
type QdrantIndexConfig struct {
	Collection string
	Dimension  int
	Metric     Metric
	// Recreate drops an existing collection on startup. The index keeps
	// partition membership in memory, so it must start from an empty
	// collection to stay consistent with it.
	Recreate bool
}

// QdrantIndex is a VectorIndex that stores every partition in one qdrant
// collection. Each (item, tag) pair is a point whose payload carries the
// item id and the tag; searches filter on the tag.
type QdrantIndex struct {
	mu      sync.RWMutex
	client  qdrant.Client
	cfg     QdrantIndexConfig
	members map[string]map[string]struct{} // tag -> item ids
	closed  bool

	logger  *logging.Logger
	metrics *Metrics
}

// NewQdrantIndex prepares the collection and returns an empty index. The
// index takes ownership of client.
func NewQdrantIndex(ctx context.Context, client qdrant.Client, cfg QdrantIndexConfig, logger *logging.Logger, metrics *Metrics) (*QdrantIndex, error) {
	if client == nil {
		return nil, fmt.Errorf("qdrant client is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("%w: collection name is required", ErrInvalidConfig)
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	metric, err := ParseMetric(string(cfg.Metric))
	if err != nil {
		return nil, err
	}
	cfg.Metric = metric

	if err := client.EnsureCollection(ctx, cfg.Collection, uint64(cfg.Dimension), qdrantDistance(metric), cfg.Recreate); err != nil {
		return nil, fmt.Errorf("preparing qdrant collection: %w", err)
	}

	x := &QdrantIndex{
		client:  client,
		cfg:     cfg,
		members: make(map[string]map[string]struct{}),
		logger:  logger.Named("index.qdrant"),
		metrics: metrics,
	}
	x.logger.Info(ctx, "qdrant index ready",
		zap.String("collection", cfg.Collection),
		zap.Int("dimension", cfg.Dimension),
		zap.String("metric", string(metric)),
	)
	return x, nil
}

func qdrantDistance(m Metric) qdrant.Distance {
	switch m {
	case MetricCosine:
		return qdrant.DistanceCosine
	case MetricL2:
		return qdrant.DistanceEuclid
	default:
		return qdrant.DistanceDot
	}
}

// Upsert implements VectorIndex. The whole batch is one qdrant upsert.
func (x *QdrantIndex) Upsert(ctx context.Context, entries []Entry) (err error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.Upsert")
	defer span.End()
	defer func() {
		x.metrics.observeOperation(backendQdrant, "upsert", err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if err := validateEntries(entries, x.cfg.Dimension); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	var points []*qdrant.Point
	for _, e := range entries {
		for _, tag := range uniqueTags(e.Tags) {
			points = append(points, &qdrant.Point{
				ID:      pointID(e.ItemID, tag),
				Vector:  e.Vector,
				Payload: map[string]string{payloadItemID: e.ItemID, payloadTag: tag},
			})
		}
	}
	span.SetAttributes(attribute.Int("entries", len(entries)), attribute.Int("points", len(points)))

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return ErrClosed
	}

	if err := x.client.Upsert(ctx, x.cfg.Collection, points); err != nil {
		return fmt.Errorf("upserting %d points: %w", len(points), err)
	}
	for _, e := range entries {
		for _, tag := range e.Tags {
			ids, ok := x.members[tag]
			if !ok {
				ids = make(map[string]struct{})
				x.members[tag] = ids
			}
			ids[e.ItemID] = struct{}{}
		}
	}
	x.metrics.setSize(backendQdrant, x.statsLocked())
	return nil
}

// Remove implements VectorIndex.
func (x *QdrantIndex) Remove(ctx context.Context, itemID string, tags []string) (err error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.Remove")
	defer span.End()
	defer func() {
		x.metrics.observeOperation(backendQdrant, "remove", err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return ErrClosed
	}

	var present []string
	var ids []string
	for _, tag := range uniqueTags(tags) {
		if _, ok := x.members[tag][itemID]; ok {
			present = append(present, tag)
			ids = append(ids, pointID(itemID, tag))
		}
	}
	if len(ids) == 0 {
		return nil
	}

	if err := x.client.Delete(ctx, x.cfg.Collection, ids); err != nil {
		return fmt.Errorf("deleting %d points: %w", len(ids), err)
	}
	for _, tag := range present {
		delete(x.members[tag], itemID)
	}
	x.metrics.setSize(backendQdrant, x.statsLocked())
	return nil
}

// Query implements VectorIndex.
func (x *QdrantIndex) Query(ctx context.Context, vectors [][]float32, tags []string, numItems int, removeDuplicates bool) (hits []Hit, err error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.Query")
	defer span.End()
	start := time.Now()
	defer func() {
		x.metrics.observeQuery(backendQdrant, start, len(hits), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if numItems <= 0 {
		return []Hit{}, nil
	}
	if err := validateQueryVectors(vectors, x.cfg.Dimension); err != nil {
		return nil, err
	}

	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return nil, ErrClosed
	}

	var pool []Hit
	tags = uniqueTags(tags)
	span.SetAttributes(attribute.Int("tags", len(tags)), attribute.Int("vectors", len(vectors)))
	for _, tag := range tags {
		n := len(x.members[tag])
		if n == 0 {
			continue
		}
		k := min(numItems, n)
		filter := &qdrant.Filter{Must: []qdrant.Match{{Field: payloadTag, Keyword: tag}}}
		for _, q := range vectors {
			res, err := x.client.Search(ctx, x.cfg.Collection, q, uint64(k), filter)
			if err != nil {
				return nil, fmt.Errorf("searching partition %q: %w", tag, err)
			}
			cs := make([]candidate, 0, len(res))
			for _, r := range res {
				cs = append(cs, candidate{itemID: r.Payload[payloadItemID], score: x.score(r.Score)})
			}
			pool = appendHits(pool, tag, rankCandidates(cs, k))
		}
	}
	return mergeHits(pool, numItems, removeDuplicates), nil
}

// score converts a qdrant score to higher-is-better. Euclid is a distance.
func (x *QdrantIndex) score(s float32) float32 {
	if x.cfg.Metric == MetricL2 {
		return -s
	}
	return s
}

// Stats implements VectorIndex.
func (x *QdrantIndex) Stats() Stats {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.statsLocked()
}

func (x *QdrantIndex) statsLocked() Stats {
	s := Stats{Backend: backendQdrant, Metric: string(x.cfg.Metric), Dimension: x.cfg.Dimension, Partitions: len(x.members)}
	for _, ids := range x.members {
		s.Vectors += len(ids)
	}
	return s
}

// Close closes the qdrant client.
func (x *QdrantIndex) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return nil
	}
	x.closed = true
	return x.client.Close()
}

var _ VectorIndex = (*QdrantIndex)(nil)
