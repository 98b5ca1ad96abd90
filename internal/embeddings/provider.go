// Package embeddings turns text into fixed-length vectors.
//
// The default provider streams batches to a text-embeddings-inference (TEI)
// server over gRPC and retries transient failures. A local ONNX provider
// backed by fastembed is available in cgo builds.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/fyrsmithlabs/ragserve/internal/logging"
	"github.com/fyrsmithlabs/ragserve/internal/ragerr"
	"github.com/fyrsmithlabs/ragserve/internal/retry"
)

var (
	// ErrInvalidConfig indicates the provider configuration is unusable.
	ErrInvalidConfig = errors.New("invalid embeddings configuration")

	// ErrEmbeddingFailed indicates a non-retryable failure from the provider.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrDimensionMismatch indicates the model returned vectors of the wrong width.
	ErrDimensionMismatch = ragerr.ErrDimensionMismatch
)

// Embedder maps texts to vectors. Output order and length always match input.
// An empty input returns an empty output without contacting the backend.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQueries(ctx context.Context, texts []string) ([][]float32, error)
}

// Provider is an Embedder with a fixed output width that owns resources.
type Provider interface {
	Embedder
	// Dimension returns the vector width.
	Dimension() int
	Close() error
}

// Config holds configuration for creating a provider.
type Config struct {
	// Provider is "tei" or "fastembed".
	Provider string
	Model    string
	// Dimension is the expected vector width.
	Dimension int

	// TEI only.
	Host           string
	Port           int
	Normalize      bool
	MaxInputChars  int
	RequestTimeout time.Duration
	Retry          retry.Policy

	// FastEmbed only.
	CacheDir string
}

// NewProvider creates the provider named in cfg.
func NewProvider(cfg Config, logger *logging.Logger) (Provider, error) {
	switch cfg.Provider {
	case "tei", "":
		return NewTEIClient(TEIConfig{
			Host:           cfg.Host,
			Port:           cfg.Port,
			Model:          cfg.Model,
			Dimension:      cfg.Dimension,
			Normalize:      cfg.Normalize,
			MaxInputChars:  cfg.MaxInputChars,
			RequestTimeout: cfg.RequestTimeout,
			Retry:          cfg.Retry,
		}, logger)
	case "fastembed":
		p, err := NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
		if err != nil {
			return nil, err
		}
		if cfg.Dimension != 0 && p.Dimension() != cfg.Dimension {
			_ = p.Close()
			return nil, fmt.Errorf("%w: model %s produces %d dimensions, configured %d",
				ErrInvalidConfig, cfg.Model, p.Dimension(), cfg.Dimension)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// checkInputSize rejects batches whose aggregate length exceeds max.
func checkInputSize(texts []string, max int) error {
	if max <= 0 {
		return nil
	}
	total := 0
	for _, t := range texts {
		total += utf8.RuneCountInString(t)
	}
	if total > max {
		return fmt.Errorf("%w: batch of %d texts totals %d chars (limit %d)", ragerr.ErrInvalidInput, len(texts), total, max)
	}
	return nil
}

// checkDimensions verifies every vector has width dim.
func checkDimensions(vectors [][]float32, dim int) error {
	if dim <= 0 {
		return nil
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: vector %d has %d dimensions, want %d", ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return nil
}
