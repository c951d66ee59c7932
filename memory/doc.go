// Package memory implements the session-aware semantic memory store: an
// append-only interaction log persisted via gorm, a bounded process-local
// embedding cache, and retrieval operations ranging from exact-match queries
// to cosine-similarity search discounted by age.
//
// Retrieval is a ranked scan over the stored embeddings for the filtered
// candidate set; there is deliberately no vector index. At the interaction
// volumes this store targets a scan is adequate and keeps the persisted
// layout a plain table.
package memory
