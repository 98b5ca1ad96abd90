package telemetry

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/fyrsmithlabs/ragserve/internal/config"
)

// Protocols accepted for OTLP export.
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http/protobuf"
)

// Config holds telemetry configuration.
type Config struct {
	ServiceName    string
	ServiceVersion string

	Endpoint string
	Protocol string
	// Insecure disables TLS. Only local endpoints may use it.
	Insecure bool

	Tracing TracingConfig
	Metrics MetricsConfig

	ShutdownTimeout time.Duration
}

// TracingConfig controls span export.
type TracingConfig struct {
	Enabled bool
	// SampleRate is the fraction of root spans kept, 0 to 1.
	SampleRate float64
}

// MetricsConfig controls OTLP metric export.
type MetricsConfig struct {
	Enabled        bool
	ExportInterval time.Duration
}

// NewDefaultConfig returns a config with export disabled.
func NewDefaultConfig() *Config {
	return &Config{
		ServiceName:     "ragserve",
		ServiceVersion:  "dev",
		Endpoint:        "localhost:4317",
		Protocol:        ProtocolGRPC,
		Insecure:        true,
		Tracing:         TracingConfig{SampleRate: 1.0},
		Metrics:         MetricsConfig{ExportInterval: 15 * time.Second},
		ShutdownTimeout: 5 * time.Second,
	}
}

// FromObservability derives a telemetry config from the daemon configuration.
func FromObservability(o config.ObservabilityConfig, version string) *Config {
	cfg := NewDefaultConfig()
	if o.ServiceName != "" {
		cfg.ServiceName = o.ServiceName
	}
	if version != "" {
		cfg.ServiceVersion = version
	}
	if o.OTLPEndpoint != "" {
		cfg.Endpoint = o.OTLPEndpoint
	}
	if o.OTLPProtocol != "" {
		cfg.Protocol = o.OTLPProtocol
	}
	cfg.Insecure = o.OTLPInsecure
	cfg.Tracing.Enabled = o.EnableTracing
	cfg.Tracing.SampleRate = o.TraceSampleRate
	cfg.Metrics.Enabled = o.OTLPMetrics
	return cfg
}

// Enabled reports whether anything is exported.
func (c *Config) Enabled() bool {
	return c.Tracing.Enabled || c.Metrics.Enabled
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required when telemetry is enabled")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required when telemetry is enabled")
	}
	switch c.Protocol {
	case ProtocolGRPC, ProtocolHTTP:
	default:
		return fmt.Errorf("unknown protocol %q", c.Protocol)
	}
	if c.Insecure && !isLocalEndpoint(c.Endpoint) {
		return fmt.Errorf("insecure export to remote endpoint %s is not allowed", c.Endpoint)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("sample rate must be between 0 and 1, got %g", c.Tracing.SampleRate)
	}
	if c.Metrics.Enabled && c.Metrics.ExportInterval <= 0 {
		return fmt.Errorf("metrics export interval must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	return nil
}

// isLocalEndpoint reports whether endpoint names a loopback host. A scheme
// and a port are both optional.
func isLocalEndpoint(endpoint string) bool {
	host := stripScheme(endpoint)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// stripScheme removes http:// or https://. The OTLP HTTP exporters want
// host:port only.
func stripScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return strings.TrimPrefix(endpoint, "http://")
}
