package http

import "github.com/fyrsmithlabs/ragserve/internal/vectorstore"

// Document is an item on the wire.
type Document struct {
	ItemID  string   `json:"item_id"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

// ScoredDocument is a retrieved item on the wire.
type ScoredDocument struct {
	Document
	Score float32 `json:"score"`
}

// QueryRequest is the request body for POST /v1/query.
type QueryRequest struct {
	Query    string   `json:"query"`
	Tags     []string `json:"tags"`
	NumItems int      `json:"num_items"`
	// RemoveDuplicates defaults to true when omitted.
	RemoveDuplicates *bool `json:"remove_duplicates,omitempty"`
}

// QueryResponse is the response body for POST /v1/query.
type QueryResponse struct {
	Items []ScoredDocument `json:"items"`
}

// AddDocumentsRequest is the request body for PUT /v1/ and PUT /v1/add.
type AddDocumentsRequest struct {
	Documents []Document `json:"documents"`
}

// PingResponse is the response body for GET /ping.
type PingResponse struct {
	Status string `json:"status"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status             string            `json:"status"`
	Version            string            `json:"version,omitempty"`
	Index              vectorstore.Stats `json:"index"`
	StoredItems        int               `json:"stored_items"`
	EmbeddingDimension int               `json:"embedding_dimension"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}
