package vectorstore

import (
	"fmt"
	"math"
)

// Metric selects how vectors are compared.
type Metric string

const (
	MetricIP     Metric = "ip"
	MetricCosine Metric = "cosine"
	MetricL2     Metric = "l2"
)

// ParseMetric parses a configured metric name. Empty means MetricIP.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case "", MetricIP:
		return MetricIP, nil
	case MetricCosine, MetricL2:
		return Metric(s), nil
	}
	return "", fmt.Errorf("%w: unknown metric %q", ErrInvalidConfig, s)
}

// prepare returns the stored form of v. The result never aliases v.
func (m Metric) prepare(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	if m == MetricCosine {
		normalize(out)
	}
	return out
}

// score compares a prepared query with a prepared stored vector.
func (m Metric) score(q, v []float32) float32 {
	if m == MetricL2 {
		var sum float32
		for i := range q {
			d := q[i] - v[i]
			sum += d * d
		}
		return -sum
	}
	return dot(q, v)
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// normalize scales v to unit length in place. A zero vector stays zero.
func normalize(v []float32) {
	n := math.Sqrt(float64(dot(v, v)))
	if n == 0 {
		return
	}
	inv := float32(1 / n)
	for i := range v {
		v[i] *= inv
	}
}
