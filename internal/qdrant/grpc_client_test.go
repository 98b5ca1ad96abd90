package qdrant

import (
	"errors"
	"testing"
	"time"

	"github.com/fyrsmithlabs/ragserve/internal/logging"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestClientConfig_ApplyDefaults(t *testing.T) {
	cfg := &ClientConfig{Host: "qdrant.internal"}
	cfg.ApplyDefaults()

	assert.Equal(t, "qdrant.internal", cfg.Host)
	assert.Equal(t, 6334, cfg.Port)
	assert.Equal(t, 50*1024*1024, cfg.MaxMessageSize)
	assert.Equal(t, 5*time.Second, cfg.DialTimeout)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	require.NotNil(t, cfg.Retry.Retryable)
	assert.True(t, cfg.Retry.Retryable(status.Error(codes.Aborted, "conflict")))
}

func TestClientConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ClientConfig
		wantErr string
	}{
		{name: "valid", cfg: ClientConfig{Host: "localhost", Port: 6334, MaxMessageSize: 1}},
		{name: "missing host", cfg: ClientConfig{Port: 6334, MaxMessageSize: 1}, wantErr: "host is required"},
		{name: "port zero", cfg: ClientConfig{Host: "localhost", MaxMessageSize: 1}, wantErr: "invalid port"},
		{name: "port too large", cfg: ClientConfig{Host: "localhost", Port: 70000, MaxMessageSize: 1}, wantErr: "invalid port"},
		{name: "message size", cfg: ClientConfig{Host: "localhost", Port: 6334}, wantErr: "invalid max message size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewGRPCClient_RequiresLogger(t *testing.T) {
	_, err := NewGRPCClient(DefaultClientConfig(), nil)
	assert.EqualError(t, err, "logger is required")
}

func TestNewGRPCClient_InvalidConfig(t *testing.T) {
	_, err := NewGRPCClient(&ClientConfig{Host: "localhost", Port: -1}, logging.NewTestLogger().Logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{status.Error(codes.Unavailable, "x"), true},
		{status.Error(codes.DeadlineExceeded, "x"), true},
		{status.Error(codes.ResourceExhausted, "x"), true},
		{status.Error(codes.Aborted, "x"), true},
		{status.Error(codes.InvalidArgument, "x"), false},
		{status.Error(codes.NotFound, "x"), false},
		{errors.New("plain"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isTransientError(tt.err), "%v", tt.err)
	}
}

func TestToQdrantDistance(t *testing.T) {
	assert.Equal(t, qdrant.Distance_Dot, toQdrantDistance(DistanceDot))
	assert.Equal(t, qdrant.Distance_Cosine, toQdrantDistance(DistanceCosine))
	assert.Equal(t, qdrant.Distance_Euclid, toQdrantDistance(DistanceEuclid))
}

func TestConvertToQdrantPoint(t *testing.T) {
	p := convertToQdrantPoint(&Point{
		ID:      "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		Vector:  []float32{1, 2},
		Payload: map[string]string{"tag": "films"},
	})

	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", p.Id.GetUuid())
	assert.Equal(t, "films", p.Payload["tag"].GetStringValue())
	assert.Equal(t, map[string]string{"tag": "films"}, extractPayload(p.Payload))
}

func TestConvertToQdrantFilter(t *testing.T) {
	assert.Nil(t, convertToQdrantFilter(nil))
	assert.Nil(t, convertToQdrantFilter(&Filter{}))

	f := convertToQdrantFilter(&Filter{Must: []Match{{Field: "tag", Keyword: "books"}}})
	require.Len(t, f.Must, 1)
	field := f.Must[0].GetField()
	require.NotNil(t, field)
	assert.Equal(t, "tag", field.Key)
	assert.Equal(t, "books", field.Match.GetKeyword())
}

func TestExtractPointID(t *testing.T) {
	assert.Equal(t, "", extractPointID(nil))
	assert.Equal(t, "abc", extractPointID(qdrant.NewIDUUID("abc")))
	assert.Equal(t, "42", extractPointID(qdrant.NewIDNum(42)))
}
