// Package rag wires the embedding client, the tag-partitioned index and the
// item store into ingestion and retrieval pipelines.
//
// A Corpus pairs one VectorIndex with one Store behind a single RWMutex so
// that every item id live in the index is also in the store. Pipelines
// never hold that lock while waiting on the embedding service.
package rag
