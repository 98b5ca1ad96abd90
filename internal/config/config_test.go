package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "tei", cfg.Embeddings.Provider)
	assert.Equal(t, 384, cfg.Embeddings.Size)
	assert.True(t, cfg.Embeddings.Normalize)
	assert.Equal(t, 5, cfg.Embeddings.Retry.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Embeddings.Retry.InitialBackoff.Duration())
	assert.Equal(t, time.Second, cfg.Embeddings.Retry.MaxBackoff.Duration())
	assert.Equal(t, BackendMemory, cfg.Index.Backend)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeConfig(t, `
server:
  http_port: 9191
  shutdown_timeout: 3s
embeddings:
  host: tei.internal
  size: 768
  normalize: false
  retry:
    max_attempts: 3
    initial_backoff: 50ms
    max_backoff: 400ms
index:
  backend: qdrant
  metric: cosine
qdrant:
  api_key: s3cret
`, 0o600)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, "tei.internal", cfg.Embeddings.Host)
	assert.Equal(t, 768, cfg.Embeddings.Size)
	assert.False(t, cfg.Embeddings.Normalize)
	assert.Equal(t, 3, cfg.Embeddings.Retry.MaxAttempts)
	assert.Equal(t, 400*time.Millisecond, cfg.Embeddings.Retry.MaxBackoff.Duration())
	// Untouched keys keep their defaults.
	assert.Equal(t, time.Second, cfg.Embeddings.Retry.MaxJitter.Duration())
	assert.Equal(t, BackendQdrant, cfg.Index.Backend)
	assert.Equal(t, "s3cret", cfg.Qdrant.APIKey.Value())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "embeddings:\n  host: from-file\n  port: 9000\n", 0o600)

	t.Setenv("EMBEDDINGS_HOST", "from-env")
	t.Setenv("EMBEDDINGS_PORT", "7001")
	t.Setenv("EMBEDDINGS_MODEL", "intfloat/e5-small")
	t.Setenv("EMBEDDINGS_SIZE", "512")
	t.Setenv("SERVER_SHUTDOWN_TIMEOUT", "2s")
	t.Setenv("LIMITS_MAX_QUERY_CHARS", "64")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Embeddings.Host)
	assert.Equal(t, 7001, cfg.Embeddings.Port)
	assert.Equal(t, "intfloat/e5-small", cfg.Embeddings.Model)
	assert.Equal(t, 512, cfg.Embeddings.Size)
	assert.Equal(t, 2*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, 64, cfg.Limits.MaxQueryChars)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})

	t.Run("world writable", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("permission model differs on windows")
		}
		path := writeConfig(t, "server:\n  http_port: 9000\n", 0o666)
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "insecure config file permissions")
	})

	t.Run("invalid value", func(t *testing.T) {
		t.Setenv("EMBEDDINGS_SIZE", "0")
		_, err := Load("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "embeddings size")
	})
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"EMBEDDINGS_HOST", "embeddings.host"},
		{"SERVER_HTTP_PORT", "server.http_port"},
		{"LIMITS_MAX_NUM_ITEMS", "limits.max_num_items"},
		{"PATH", ""},
		{"HOME_DIR", ""},
		{"SERVER_", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, envKey(tt.in))
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.http_port"},
		{"bad backend", func(c *Config) { c.Index.Backend = "faiss" }, "unknown index backend"},
		{"bad metric", func(c *Config) { c.Index.Metric = "hamming" }, "unknown index metric"},
		{"chromem needs cosine", func(c *Config) { c.Index.Backend = BackendChromem }, "cosine"},
		{"bad provider", func(c *Config) { c.Embeddings.Provider = "openai" }, "unknown embeddings provider"},
		{"zero attempts", func(c *Config) { c.Embeddings.Retry.MaxAttempts = 0 }, "max_attempts"},
		{"inverted backoff", func(c *Config) { c.Embeddings.Retry.MaxBackoff = Duration(time.Millisecond) }, "max_backoff"},
		{"zero limit", func(c *Config) { c.Limits.MaxBatch = 0 }, "limits"},
		{"rate limit", func(c *Config) { c.Server.RateLimit.RPS = 0 }, "rate limit"},
		{"tracing without endpoint", func(c *Config) {
			c.Observability.EnableTracing = true
			c.Observability.OTLPEndpoint = ""
		}, "otlp endpoint"},
		{"bad otlp protocol", func(c *Config) { c.Observability.OTLPProtocol = "thrift" }, "otlp protocol"},
		{"sample rate", func(c *Config) { c.Observability.TraceSampleRate = 1.5 }, "sample rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSecret_Redaction(t *testing.T) {
	s := Secret("hunter2")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.NotContains(t, fmt.Sprintf("%#v", s), "hunter2")
	assert.Equal(t, "hunter2", s.Value())

	b, err := json.Marshal(struct {
		Key Secret `json:"key"`
	}{s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"[REDACTED]"}`, string(b))

	assert.Equal(t, "", Secret("").String())
	assert.False(t, Secret("").IsSet())
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("250ms")))
	assert.Equal(t, 250*time.Millisecond, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-1s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
