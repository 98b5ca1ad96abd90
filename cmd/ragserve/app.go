package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/ragserve/internal/config"
	"github.com/fyrsmithlabs/ragserve/internal/embeddings"
	rhttp "github.com/fyrsmithlabs/ragserve/internal/http"
	"github.com/fyrsmithlabs/ragserve/internal/itemstore"
	"github.com/fyrsmithlabs/ragserve/internal/logging"
	"github.com/fyrsmithlabs/ragserve/internal/qdrant"
	"github.com/fyrsmithlabs/ragserve/internal/rag"
	"github.com/fyrsmithlabs/ragserve/internal/retry"
	"github.com/fyrsmithlabs/ragserve/internal/telemetry"
	"github.com/fyrsmithlabs/ragserve/internal/vectorstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// app holds everything run starts and must release.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	embedder  embeddings.Provider
	index     vectorstore.VectorIndex
	server    *rhttp.Server
}

// run builds the app, serves until ctx is done and shuts down within the
// configured timeout.
func run(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	errCh := make(chan error, 1)
	go func() { errCh <- a.server.Start(ctx) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info(ctx, "shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return <-errCh
}

// newApp wires config, telemetry, logger, embedder, index, store,
// pipelines and the HTTP server, in that order.
func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	a.telemetry, err = telemetry.New(ctx, telemetry.FromObservability(cfg.Observability, version))
	if err != nil {
		return nil, err
	}

	logCfg, err := logging.FromConfig(cfg.Logging)
	if err != nil {
		return nil, err
	}
	a.logger, err = logging.NewLogger(logCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	for _, reason := range a.telemetry.DegradedReasons() {
		a.logger.Warn(ctx, "telemetry degraded", zap.String("reason", reason))
	}

	a.logger.Info(ctx, "starting ragserve",
		zap.String("version", version),
		zap.String("index_backend", cfg.Index.Backend),
		zap.String("embeddings_provider", cfg.Embeddings.Provider),
		zap.Int("port", cfg.Server.Port),
	)

	a.embedder, err = embeddings.NewProvider(embeddingsConfig(cfg.Embeddings), a.logger.Named("embeddings"))
	if err != nil {
		return nil, fmt.Errorf("creating embeddings provider: %w", err)
	}

	var registry *prometheus.Registry
	var metrics *vectorstore.Metrics
	if cfg.Observability.EnableMetrics {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = vectorstore.NewMetrics(registry)
	}

	metric, err := vectorstore.ParseMetric(cfg.Index.Metric)
	if err != nil {
		return nil, err
	}
	a.index, err = vectorstore.NewIndex(ctx, vectorstore.Config{
		Backend:          cfg.Index.Backend,
		Metric:           metric,
		Dimension:        a.embedder.Dimension(),
		Qdrant:           qdrantConfig(cfg.Qdrant),
		QdrantCollection: cfg.Qdrant.Collection,
	}, a.logger.Named("vectorstore"), metrics)
	if err != nil {
		return nil, fmt.Errorf("creating vector index: %w", err)
	}

	corpus, err := rag.NewCorpus(a.index, itemstore.NewMemoryStore())
	if err != nil {
		return nil, err
	}
	ingest, err := rag.NewIngestionPipeline(corpus, a.embedder, a.logger.Named("ingest"))
	if err != nil {
		return nil, err
	}
	retrieve, err := rag.NewRetrievalPipeline(corpus, a.embedder, a.logger.Named("retrieve"))
	if err != nil {
		return nil, err
	}

	deps := rhttp.Deps{
		Ingester:           ingest,
		Retriever:          retrieve,
		Stats:              corpus,
		EmbeddingDimension: a.embedder.Dimension(),
		MeterProvider:      a.telemetry.MeterProvider(),
	}
	if registry != nil {
		deps.Gatherer = registry
	}
	a.server, err = rhttp.NewServer(deps, a.logger, serverConfig(cfg))
	if err != nil {
		return nil, err
	}
	return a, nil
}

// close releases resources in reverse construction order.
func (a *app) close() {
	ctx := context.Background()
	var errs []error
	if a.index != nil {
		errs = append(errs, a.index.Close())
	}
	if a.embedder != nil {
		errs = append(errs, a.embedder.Close())
	}
	errs = append(errs, a.telemetry.Shutdown(ctx))
	if err := errors.Join(errs...); err != nil && a.logger != nil {
		a.logger.Warn(ctx, "errors during shutdown", zap.Error(err))
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func embeddingsConfig(c config.EmbeddingsConfig) embeddings.Config {
	return embeddings.Config{
		Provider:       c.Provider,
		Model:          c.Model,
		Dimension:      c.Size,
		Host:           c.Host,
		Port:           c.Port,
		Normalize:      c.Normalize,
		MaxInputChars:  c.MaxInputChars,
		RequestTimeout: c.RequestTimeout.Duration(),
		Retry: retry.Policy{
			MaxAttempts:    c.Retry.MaxAttempts,
			InitialBackoff: c.Retry.InitialBackoff.Duration(),
			MaxBackoff:     c.Retry.MaxBackoff.Duration(),
			MaxJitter:      c.Retry.MaxJitter.Duration(),
		},
		CacheDir: c.CacheDir,
	}
}

func qdrantConfig(c config.QdrantConfig) *qdrant.ClientConfig {
	qc := qdrant.DefaultClientConfig()
	qc.Host = c.Host
	qc.Port = c.Port
	qc.UseTLS = c.UseTLS
	qc.APIKey = c.APIKey.Value()
	return qc
}

func serverConfig(c *config.Config) *rhttp.Config {
	return &rhttp.Config{
		Host:    c.Server.Host,
		Port:    c.Server.Port,
		Version: version,
		RateLimit: rhttp.RateLimitConfig{
			Enabled: c.Server.RateLimit.Enabled,
			RPS:     c.Server.RateLimit.RPS,
			Burst:   c.Server.RateLimit.Burst,
		},
		Limits: rhttp.Limits{
			MaxQueryChars:    c.Limits.MaxQueryChars,
			MaxDocumentChars: c.Limits.MaxDocumentChars,
			MaxNumItems:      c.Limits.MaxNumItems,
			MaxBatch:         c.Limits.MaxBatch,
		},
	}
}
