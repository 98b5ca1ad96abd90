package vectorstore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRankCandidates(t *testing.T) {
	cs := []candidate{{"c", 0.5}, {"b", 0.9}, {"a", 0.5}, {"d", 0.1}}
	got := rankCandidates(cs, 3)
	assert.Equal(t, []candidate{{"b", 0.9}, {"a", 0.5}, {"c", 0.5}}, got)
}

func TestMergeHits(t *testing.T) {
	pool := []Hit{
		{ItemID: "1", Tag: "x", Score: 0.2},
		{ItemID: "2", Tag: "x", Score: 0.9},
		{ItemID: "1", Tag: "y", Score: 0.9},
		{ItemID: "3", Tag: "y", Score: 0.5},
	}

	tests := []struct {
		name   string
		n      int
		dedupe bool
		want   []Hit
	}{
		{
			name: "ties keep pool order",
			n:    10,
			want: []Hit{
				{ItemID: "2", Tag: "x", Score: 0.9},
				{ItemID: "1", Tag: "y", Score: 0.9},
				{ItemID: "3", Tag: "y", Score: 0.5},
				{ItemID: "1", Tag: "x", Score: 0.2},
			},
		},
		{
			name:   "dedupe keeps best",
			n:      10,
			dedupe: true,
			want: []Hit{
				{ItemID: "2", Tag: "x", Score: 0.9},
				{ItemID: "1", Tag: "y", Score: 0.9},
				{ItemID: "3", Tag: "y", Score: 0.5},
			},
		},
		{
			name: "truncated",
			n:    1,
			want: []Hit{{ItemID: "2", Tag: "x", Score: 0.9}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := append([]Hit(nil), pool...)
			assert.Equal(t, tt.want, mergeHits(in, tt.n, tt.dedupe))
		})
	}
}

func TestMergeHits_EmptyPool(t *testing.T) {
	for _, dedupe := range []bool{true, false} {
		got := mergeHits(nil, 5, dedupe)
		assert.NotNil(t, got)
		assert.Empty(t, got)

		b, err := json.Marshal(got)
		assert.NoError(t, err)
		assert.JSONEq(t, `[]`, string(b))
	}
}

func TestUniqueTags(t *testing.T) {
	assert.Equal(t, []string{"b", "a", "c"}, uniqueTags([]string{"b", "a", "b", "c", "a"}))
	assert.Empty(t, uniqueTags(nil))
}

func TestParseMetric(t *testing.T) {
	for in, want := range map[string]Metric{"": MetricIP, "ip": MetricIP, "cosine": MetricCosine, "l2": MetricL2} {
		got, err := ParseMetric(in)
		assert.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseMetric("manhattan")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	normalize(v)
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, v, 1e-6)

	zero := []float32{0, 0}
	normalize(zero)
	assert.Equal(t, []float32{0, 0}, zero)
}
