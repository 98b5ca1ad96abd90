package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/ragserve/internal/ragerr"
)

// Sentinel errors for index operations.
var (
	// ErrInvalidConfig indicates the index configuration is unusable.
	ErrInvalidConfig = errors.New("invalid index configuration")

	// ErrClosed is returned by operations on a closed index.
	ErrClosed = errors.New("index is closed")

	// ErrDimensionMismatch is returned for vectors whose width differs from
	// the index dimension.
	ErrDimensionMismatch = ragerr.ErrDimensionMismatch
)

// Entry is one item vector and the tags it is filed under.
type Entry struct {
	ItemID string
	Tags   []string
	Vector []float32
}

// Hit is one search result. Tag is the partition it was found in.
type Hit struct {
	ItemID string
	Tag    string
	Score  float32
}

// Stats summarizes index contents.
type Stats struct {
	Backend   string `json:"backend"`
	Metric    string `json:"metric"`
	Dimension int    `json:"dimension"`
	// Partitions counts tags that have a partition, including empty ones.
	Partitions int `json:"partitions"`
	// Vectors counts stored vectors across partitions. An item with three
	// tags contributes three.
	Vectors int `json:"vectors"`
}

// VectorIndex is a tag-partitioned similarity index.
type VectorIndex interface {
	// Upsert stores each entry's vector under every one of its tags,
	// replacing any vector the item already had in those partitions. All
	// entries are validated before anything changes. Tags the item held
	// before but are not listed are left alone.
	Upsert(ctx context.Context, entries []Entry) error

	// Remove deletes itemID from the listed partitions. Partitions that do
	// not hold the item are ignored.
	Remove(ctx context.Context, itemID string, tags []string) error

	// Query searches every vector in the listed tags and returns at most
	// numItems hits with descending scores.
	Query(ctx context.Context, vectors [][]float32, tags []string, numItems int, removeDuplicates bool) ([]Hit, error)

	// Stats reports index contents.
	Stats() Stats

	Close() error
}

// validateEntries checks a whole batch before any mutation.
func validateEntries(entries []Entry, dim int) error {
	for i, e := range entries {
		if e.ItemID == "" {
			return fmt.Errorf("%w: entry %d has an empty item id", ragerr.ErrInvalidInput, i)
		}
		if len(e.Vector) != dim {
			return fmt.Errorf("%w: item %q has a %d-dimensional vector, index expects %d",
				ErrDimensionMismatch, e.ItemID, len(e.Vector), dim)
		}
		if len(e.Tags) == 0 {
			return fmt.Errorf("%w: item %q has no tags", ragerr.ErrInvalidInput, e.ItemID)
		}
		for _, tag := range e.Tags {
			if tag == "" {
				return fmt.Errorf("%w: item %q has an empty tag", ragerr.ErrInvalidInput, e.ItemID)
			}
		}
	}
	return nil
}

func validateQueryVectors(vectors [][]float32, dim int) error {
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: query vector %d has %d dimensions, index expects %d",
				ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return nil
}
