package rag

import "github.com/fyrsmithlabs/ragserve/internal/itemstore"

// Item is an ingestible document.
type Item = itemstore.Item

// ScoredItem is a retrieved item and its similarity to the query.
type ScoredItem struct {
	Item
	Score float32 `json:"score"`
}

// Query is a retrieval request.
type Query struct {
	Text string
	Tags []string
	// NumItems caps the result length. Zero or less returns nothing.
	NumItems         int
	RemoveDuplicates bool
}
