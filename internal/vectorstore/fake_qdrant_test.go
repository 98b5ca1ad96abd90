package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/fyrsmithlabs/ragserve/internal/qdrant"
)

// fakeQdrant is an in-memory qdrant.Client.
type fakeQdrant struct {
	mu       sync.Mutex
	distance qdrant.Distance
	points   map[string]*qdrant.Point

	ensured     int
	recreated   bool
	upsertCalls int
	deleted     []string
	searchErr   error
	closed      bool
}

func newFakeQdrant() *fakeQdrant {
	return &fakeQdrant{points: make(map[string]*qdrant.Point)}
}

func (f *fakeQdrant) EnsureCollection(_ context.Context, _ string, _ uint64, distance qdrant.Distance, recreate bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured++
	f.distance = distance
	f.recreated = recreate
	if recreate {
		f.points = make(map[string]*qdrant.Point)
	}
	return nil
}

func (f *fakeQdrant) Upsert(_ context.Context, _ string, points []*qdrant.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++
	for _, p := range points {
		cp := *p
		cp.Vector = append([]float32(nil), p.Vector...)
		f.points[p.ID] = &cp
	}
	return nil
}

func (f *fakeQdrant) Search(_ context.Context, _ string, vector []float32, limit uint64, filter *qdrant.Filter) ([]*qdrant.ScoredPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}

	var out []*qdrant.ScoredPoint
	for _, p := range f.points {
		if !matches(p, filter) {
			continue
		}
		out = append(out, &qdrant.ScoredPoint{
			Point: qdrant.Point{ID: p.ID, Payload: p.Payload},
			Score: f.score(vector, p.Vector),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if f.distance == qdrant.DistanceEuclid {
			return out[i].Score < out[j].Score
		}
		return out[i].Score > out[j].Score
	})
	if uint64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeQdrant) score(a, b []float32) float32 {
	switch f.distance {
	case qdrant.DistanceEuclid:
		var sum float64
		for i := range a {
			d := float64(a[i] - b[i])
			sum += d * d
		}
		return float32(math.Sqrt(sum))
	case qdrant.DistanceCosine:
		na, nb := MetricCosine.prepare(a), MetricCosine.prepare(b)
		return dot(na, nb)
	default:
		return dot(a, b)
	}
}

func matches(p *qdrant.Point, filter *qdrant.Filter) bool {
	if filter == nil {
		return true
	}
	for _, m := range filter.Must {
		if p.Payload[m.Field] != m.Keyword {
			return false
		}
	}
	return true
}

func (f *fakeQdrant) Delete(_ context.Context, _ string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.points, id)
		f.deleted = append(f.deleted, id)
	}
	return nil
}

func (f *fakeQdrant) Health(context.Context) error { return nil }

func (f *fakeQdrant) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeQdrant) pointCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.points)
}

var _ qdrant.Client = (*fakeQdrant)(nil)
