package vectorstore

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/ragserve/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIndex(t *testing.T) {
	logger := logging.NewTestLogger().Logger
	ctx := context.Background()

	tests := []struct {
		name    string
		cfg     Config
		backend string
		wantErr error
	}{
		{name: "default is memory", cfg: Config{Dimension: 4}, backend: "memory"},
		{name: "memory l2", cfg: Config{Backend: "memory", Metric: MetricL2, Dimension: 4}, backend: "memory"},
		{name: "chromem", cfg: Config{Backend: "chromem", Metric: MetricCosine, Dimension: 4}, backend: "chromem"},
		{name: "chromem requires cosine", cfg: Config{Backend: "chromem", Metric: MetricIP, Dimension: 4}, wantErr: ErrInvalidConfig},
		{name: "unknown backend", cfg: Config{Backend: "faiss", Dimension: 4}, wantErr: ErrInvalidConfig},
		{name: "unknown metric", cfg: Config{Metric: "jaccard", Dimension: 4}, wantErr: ErrInvalidConfig},
		{name: "zero dimension", cfg: Config{Dimension: 0}, wantErr: ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, err := NewIndex(ctx, tt.cfg, logger, nil)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			defer idx.Close()
			assert.Equal(t, tt.backend, idx.Stats().Backend)
			assert.Equal(t, 4, idx.Stats().Dimension)
		})
	}
}

func TestNewIndex_RequiresLogger(t *testing.T) {
	_, err := NewIndex(context.Background(), Config{Dimension: 4}, nil, nil)
	assert.EqualError(t, err, "logger is required")
}
