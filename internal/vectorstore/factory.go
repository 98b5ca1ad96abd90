package vectorstore

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/ragserve/internal/logging"
	"github.com/fyrsmithlabs/ragserve/internal/qdrant"
)

// Config selects and configures an index backend.
type Config struct {
	// Backend is "memory" (default), "chromem" or "qdrant".
	Backend   string
	Metric    Metric
	Dimension int

	// Qdrant configures the client for the qdrant backend.
	Qdrant           *qdrant.ClientConfig
	QdrantCollection string
}

// NewIndex creates the configured backend.
//
// The qdrant backend connects at construction time and recreates its
// collection, since partition membership is not recovered on restart.
func NewIndex(ctx context.Context, cfg Config, logger *logging.Logger, metrics *Metrics) (VectorIndex, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	metric, err := ParseMetric(string(cfg.Metric))
	if err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case backendMemory, "":
		return NewMemoryIndex(cfg.Dimension, metric, logger, metrics)

	case backendChromem:
		if metric != MetricCosine {
			return nil, fmt.Errorf("%w: chromem backend supports only the cosine metric, got %q", ErrInvalidConfig, metric)
		}
		return NewChromemIndex(cfg.Dimension, logger, metrics)

	case backendQdrant:
		client, err := qdrant.NewGRPCClient(cfg.Qdrant, logger.Named("qdrant"))
		if err != nil {
			return nil, fmt.Errorf("connecting to qdrant: %w", err)
		}
		idx, err := NewQdrantIndex(ctx, client, QdrantIndexConfig{
			Collection: cfg.QdrantCollection,
			Dimension:  cfg.Dimension,
			Metric:     metric,
			Recreate:   true,
		}, logger, metrics)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return idx, nil

	default:
		return nil, fmt.Errorf("%w: unsupported backend %q (supported: memory, chromem, qdrant)", ErrInvalidConfig, cfg.Backend)
	}
}
