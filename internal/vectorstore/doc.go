// Package vectorstore keeps item vectors partitioned by tag and answers
// multi-tag nearest-neighbor queries.
//
// Every tag owns an independent search structure. An item carrying several
// tags is stored once per tag, and a query fans out to the requested tags
// before merging the per-tag results into one ranked list.
//
// # Backends
//
// Three implementations of VectorIndex are provided:
//
//   - MemoryIndex (default): an arena per tag with exact search. Nothing
//     is persisted; the index is rebuilt on restart.
//   - ChromemIndex: one embedded chromem-go collection per tag. Cosine only.
//   - QdrantIndex: a single qdrant collection with the tag stored in the
//     point payload and used as a search filter.
//
// # Scores
//
// Higher is better for every metric. MetricIP scores by inner product,
// MetricCosine normalizes both sides and then takes the inner product, and
// MetricL2 scores by negated squared euclidean distance (negated euclidean
// distance on qdrant).
//
// # Merging
//
// Hits from all searches are pooled in tag order, then query-vector order,
// then rank. The pool is stable-sorted by descending score, optionally
// deduplicated by item id keeping the first occurrence, and truncated.
// Within one search, equal scores are ordered by item id so that results
// are reproducible across backends.
//
// # Concurrency
//
// Each backend guards its partitions with one sync.RWMutex. Upsert and
// Remove hold the write lock for the whole multi-tag batch, and Query holds
// the read lock for the whole fan-out, so a batch is atomic to readers.
package vectorstore
