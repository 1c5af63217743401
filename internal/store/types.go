// Package store provides persistent vector storage and retrieval using
// SQLite and sqlite-vec.
package store

import "time"

// CollectionRecord represents a named partition of the knowledge base.
type CollectionRecord struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SourceSummary aggregates the chunks ingested from one source within a
// collection.
type SourceSummary struct {
	Source     string    `json:"source"`
	ChunkCount int       `json:"chunk_count"`
	FirstAdded time.Time `json:"first_added"`
	LastAdded  time.Time `json:"last_added"`
}

// ChunkInput represents a chunk to be stored alongside its embedding.
type ChunkInput struct {
	Key      string `json:"key"` // Stable identifier (xxh64 of source, position, content)
	Seq      int    `json:"seq"` // Position within the source document
	Content  string `json:"content"`
	Metadata string `json:"metadata"` // JSON-encoded metadata object
}

// Hit represents a search result with similarity score.
type Hit struct {
	ChunkKey   string  `json:"chunk_key"`
	Collection string  `json:"collection"`
	Source     string  `json:"source"`
	Seq        int     `json:"seq"`
	Content    string  `json:"content"`
	Metadata   string  `json:"metadata"` // JSON-encoded metadata object
	Distance   float64 `json:"distance"` // Cosine distance from sqlite-vec
	Score      float64 `json:"score"`    // 1 - distance (similarity)
}

// InsertResult reports the outcome of an insert batch.
type InsertResult struct {
	Inserted          int  `json:"inserted"`
	CollectionCreated bool `json:"collection_created"`
}

// CollectionStats contains per-collection counts.
type CollectionStats struct {
	Name        string `json:"name"`
	SourceCount int    `json:"source_count"`
	ChunkCount  int    `json:"chunk_count"`
}

// Stats contains statistics across the whole knowledge base.
type Stats struct {
	Collections   []CollectionStats `json:"collections"`
	TotalSources  int               `json:"total_sources"`
	TotalChunks   int               `json:"total_chunks"`
	Dimensions    int               `json:"dimensions"` // 0 until the first insert
	DatabasePath  string            `json:"database_path"`
	DatabaseBytes int64             `json:"database_bytes"`
}

// QueryOptions controls a similarity search.
type QueryOptions struct {
	TopK     int
	MinScore float64 // Results scoring below this are dropped
}
