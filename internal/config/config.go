// Package config provides configuration loading for ragserve.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config is the root configuration for the ragserve daemon.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	Index         IndexConfig         `koanf:"index"`
	Qdrant        QdrantConfig        `koanf:"qdrant"`
	Limits        LimitsConfig        `koanf:"limits"`
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string          `koanf:"host"`
	Port            int             `koanf:"http_port"`
	ShutdownTimeout Duration        `koanf:"shutdown_timeout"`
	RateLimit       RateLimitConfig `koanf:"rate_limit"`
}

// RateLimitConfig configures the token bucket shared by all API routes.
type RateLimitConfig struct {
	Enabled bool    `koanf:"enabled"`
	RPS     float64 `koanf:"rps"`
	Burst   int     `koanf:"burst"`
}

// EmbeddingsConfig configures the embedding provider.
//
// Host, Port, Model and Size map directly from EMBEDDINGS_HOST,
// EMBEDDINGS_PORT, EMBEDDINGS_MODEL and EMBEDDINGS_SIZE.
type EmbeddingsConfig struct {
	Provider       string      `koanf:"provider"`
	Host           string      `koanf:"host"`
	Port           int         `koanf:"port"`
	Model          string      `koanf:"model"`
	Size           int         `koanf:"size"`
	Normalize      bool        `koanf:"normalize"`
	MaxInputChars  int         `koanf:"max_input_chars"`
	RequestTimeout Duration    `koanf:"request_timeout"`
	CacheDir       string      `koanf:"cache_dir"`
	Retry          RetryConfig `koanf:"retry"`
}

// RetryConfig configures retries of transient embedding failures.
type RetryConfig struct {
	MaxAttempts    int      `koanf:"max_attempts"`
	InitialBackoff Duration `koanf:"initial_backoff"`
	MaxBackoff     Duration `koanf:"max_backoff"`
	MaxJitter      Duration `koanf:"max_jitter"`
}

// IndexConfig selects the vector index backend.
type IndexConfig struct {
	Backend string `koanf:"backend"`
	Metric  string `koanf:"metric"`
}

// QdrantConfig configures the qdrant index backend.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	Collection string `koanf:"collection"`
	APIKey     Secret `koanf:"api_key"`
	UseTLS     bool   `koanf:"use_tls"`
}

// LimitsConfig bounds request sizes at the HTTP boundary.
type LimitsConfig struct {
	MaxQueryChars    int `koanf:"max_query_chars"`
	MaxDocumentChars int `koanf:"max_document_chars"`
	MaxNumItems      int `koanf:"max_num_items"`
	MaxBatch         int `koanf:"max_batch"`
}

// LoggingConfig is the subset of logging settings exposed in the config file.
type LoggingConfig struct {
	Level    string `koanf:"level"`
	Format   string `koanf:"format"`
	Sampling bool   `koanf:"sampling"`
	Caller   bool   `koanf:"caller"`
}

// ObservabilityConfig configures metrics and tracing export.
type ObservabilityConfig struct {
	// EnableMetrics serves Prometheus metrics on /metrics.
	EnableMetrics bool `koanf:"enable_metrics"`
	// EnableTracing exports spans over OTLP.
	EnableTracing bool `koanf:"enable_tracing"`
	// OTLPMetrics additionally pushes OpenTelemetry metrics over OTLP.
	OTLPMetrics     bool    `koanf:"otlp_metrics"`
	OTLPEndpoint    string  `koanf:"otlp_endpoint"`
	OTLPProtocol    string  `koanf:"otlp_protocol"`
	OTLPInsecure    bool    `koanf:"otlp_insecure"`
	TraceSampleRate float64 `koanf:"trace_sample_rate"`
	ServiceName     string  `koanf:"service_name"`
}

// Index backends.
const (
	BackendMemory  = "memory"
	BackendChromem = "chromem"
	BackendQdrant  = "qdrant"
)

// Default returns the configuration used when neither file nor environment
// override a value.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: Duration(10 * time.Second),
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     50,
				Burst:   100,
			},
		},
		Embeddings: EmbeddingsConfig{
			Provider:       "tei",
			Host:           "localhost",
			Port:           8081,
			Model:          "BAAI/bge-small-en-v1.5",
			Size:           384,
			Normalize:      true,
			MaxInputChars:  100000,
			RequestTimeout: Duration(30 * time.Second),
			Retry: RetryConfig{
				MaxAttempts:    5,
				InitialBackoff: Duration(100 * time.Millisecond),
				MaxBackoff:     Duration(time.Second),
				MaxJitter:      Duration(time.Second),
			},
		},
		Index: IndexConfig{
			Backend: BackendMemory,
			Metric:  "ip",
		},
		Qdrant: QdrantConfig{
			Host:       "localhost",
			Port:       6334,
			Collection: "ragserve",
		},
		Limits: LimitsConfig{
			MaxQueryChars:    2000,
			MaxDocumentChars: 20000,
			MaxNumItems:      100,
			MaxBatch:         256,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Sampling: true,
			Caller:   true,
		},
		Observability: ObservabilityConfig{
			EnableMetrics:   true,
			OTLPEndpoint:    "localhost:4317",
			OTLPProtocol:    "grpc",
			OTLPInsecure:    true,
			TraceSampleRate: 1.0,
			ServiceName:     "ragserve",
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validPort("server.http_port", c.Server.Port); err != nil {
		return err
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Server.RateLimit.Enabled && (c.Server.RateLimit.RPS <= 0 || c.Server.RateLimit.Burst <= 0) {
		return errors.New("rate limit rps and burst must be positive when enabled")
	}

	if err := c.Embeddings.validate(); err != nil {
		return err
	}

	switch c.Index.Backend {
	case BackendMemory, BackendChromem:
	case BackendQdrant:
		if err := validPort("qdrant.port", c.Qdrant.Port); err != nil {
			return err
		}
		if c.Qdrant.Host == "" || c.Qdrant.Collection == "" {
			return errors.New("qdrant host and collection are required")
		}
	default:
		return fmt.Errorf("unknown index backend %q (want memory, chromem or qdrant)", c.Index.Backend)
	}
	switch c.Index.Metric {
	case "ip", "cosine", "l2":
	default:
		return fmt.Errorf("unknown index metric %q (want ip, cosine or l2)", c.Index.Metric)
	}
	if c.Index.Backend == BackendChromem && c.Index.Metric != "cosine" {
		return errors.New("chromem backend only supports the cosine metric")
	}

	l := c.Limits
	if l.MaxQueryChars <= 0 || l.MaxDocumentChars <= 0 || l.MaxNumItems <= 0 || l.MaxBatch <= 0 {
		return errors.New("limits must be positive")
	}

	o := c.Observability
	if (o.EnableTracing || o.OTLPMetrics) && o.OTLPEndpoint == "" {
		return errors.New("otlp endpoint required when otlp export is enabled")
	}
	switch o.OTLPProtocol {
	case "", "grpc", "http/protobuf":
	default:
		return fmt.Errorf("unknown otlp protocol %q (want grpc or http/protobuf)", o.OTLPProtocol)
	}
	if o.TraceSampleRate < 0 || o.TraceSampleRate > 1 {
		return fmt.Errorf("trace sample rate must be between 0 and 1, got %g", o.TraceSampleRate)
	}
	return nil
}

func (e EmbeddingsConfig) validate() error {
	switch e.Provider {
	case "tei":
		if e.Host == "" {
			return errors.New("embeddings host is required")
		}
		if err := validPort("embeddings.port", e.Port); err != nil {
			return err
		}
	case "fastembed":
	default:
		return fmt.Errorf("unknown embeddings provider %q (want tei or fastembed)", e.Provider)
	}
	if e.Size <= 0 {
		return fmt.Errorf("embeddings size must be positive, got %d", e.Size)
	}
	if e.MaxInputChars <= 0 {
		return errors.New("embeddings max_input_chars must be positive")
	}
	if e.RequestTimeout.Duration() <= 0 {
		return errors.New("embeddings request_timeout must be positive")
	}
	if e.Retry.MaxAttempts < 1 {
		return fmt.Errorf("embeddings retry max_attempts must be >= 1, got %d", e.Retry.MaxAttempts)
	}
	if e.Retry.InitialBackoff.Duration() <= 0 || e.Retry.MaxBackoff < e.Retry.InitialBackoff {
		return errors.New("embeddings retry backoff must be positive and max_backoff >= initial_backoff")
	}
	return nil
}

func validPort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid %s: %d (must be 1-65535)", name, port)
	}
	return nil
}
