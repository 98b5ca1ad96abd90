// Package qdrant is a small client for the qdrant vector database used by
// the qdrant index backend.
package qdrant

import "context"

// Client is the subset of qdrant operations the index backend needs.
type Client interface {
	// EnsureCollection creates the collection if missing. With recreate set,
	// an existing collection is dropped first.
	EnsureCollection(ctx context.Context, name string, vectorSize uint64, distance Distance, recreate bool) error

	Upsert(ctx context.Context, collection string, points []*Point) error
	Search(ctx context.Context, collection string, vector []float32, limit uint64, filter *Filter) ([]*ScoredPoint, error)
	Delete(ctx context.Context, collection string, ids []string) error

	Health(ctx context.Context) error
	Close() error
}

// Distance is the similarity function of a collection.
type Distance int

const (
	DistanceDot Distance = iota
	DistanceCosine
	DistanceEuclid
)

// Point is a vector with a UUID id and string payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]string
}

// ScoredPoint is a search hit.
type ScoredPoint struct {
	Point
	Score float32
}

// Filter keeps points whose payload matches every Must condition.
type Filter struct {
	Must []Match
}

// Match is an exact keyword match on a payload field.
type Match struct {
	Field   string
	Keyword string
}
