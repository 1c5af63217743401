package store

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	_ "github.com/mattn/go-sqlite3"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// Register sqlite-vec extension
	sqlite_vec.Auto()
}

// SQLiteStore implements the Store interface using SQLite and sqlite-vec.
type SQLiteStore struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// NewSQLiteStore creates a new SQLite store at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Debug("Opened SQLite store", "path", dbPath)

	return &SQLiteStore{db: db, path: dbPath}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping() error {
	return s.db.Ping()
}

// Dimensions returns the recorded embedding dimensions, or 0 if nothing
// has been inserted yet.
func (s *SQLiteStore) Dimensions() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return storedDimensions(s.db)
}

// GetCollection retrieves a collection by name. Returns nil if the
// collection does not exist.
func (s *SQLiteStore) GetCollection(name string) (*CollectionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var record CollectionRecord
	var createdAt, updatedAt string

	err := s.db.QueryRow(`
		SELECT id, name, created_at, updated_at
		FROM collections WHERE name = ?
	`, name).Scan(&record.ID, &record.Name, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}

	record.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	record.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &record, nil
}

// ListCollections returns all collections ordered by name.
func (s *SQLiteStore) ListCollections() ([]CollectionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, name, created_at, updated_at
		FROM collections ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	var collections []CollectionRecord
	for rows.Next() {
		var record CollectionRecord
		var createdAt, updatedAt string

		if err := rows.Scan(&record.ID, &record.Name, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan collection: %w", err)
		}

		record.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		record.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

		collections = append(collections, record)
	}

	return collections, rows.Err()
}

// Insert appends chunks with their embeddings to a collection,
// creating the collection and source records on first use. The whole
// batch is written in one transaction: either every chunk lands or
// none do.
func (s *SQLiteStore) Insert(collection, source string, chunks []ChunkInput, embeddings [][]float32) (*InsertResult, error) {
	if len(chunks) != len(embeddings) {
		return nil, fmt.Errorf("chunks and embeddings count mismatch: %d != %d", len(chunks), len(embeddings))
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks to insert")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Ensure vector table exists with matching dimensions
	if err := ensureVectorTable(s.db, len(embeddings[0])); err != nil {
		return nil, fmt.Errorf("failed to ensure vector table: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)

	// Get or create the collection
	var collectionID int64
	created := false
	err = tx.QueryRow("SELECT id FROM collections WHERE name = ?", collection).Scan(&collectionID)
	if err == sql.ErrNoRows {
		result, err := tx.Exec(`
			INSERT INTO collections (name, created_at, updated_at)
			VALUES (?, ?, ?)
		`, collection, now, now)
		if err != nil {
			return nil, fmt.Errorf("failed to create collection: %w", err)
		}
		collectionID, _ = result.LastInsertId()
		created = true
	} else if err != nil {
		return nil, fmt.Errorf("failed to get collection: %w", err)
	} else {
		if _, err := tx.Exec("UPDATE collections SET updated_at = ? WHERE id = ?", now, collectionID); err != nil {
			return nil, fmt.Errorf("failed to update collection: %w", err)
		}
	}

	// Get or create the source
	var sourceID int64
	err = tx.QueryRow("SELECT id FROM sources WHERE collection_id = ? AND name = ?", collectionID, source).Scan(&sourceID)
	if err == sql.ErrNoRows {
		result, err := tx.Exec(`
			INSERT INTO sources (collection_id, name, first_added, last_added)
			VALUES (?, ?, ?, ?)
		`, collectionID, source, now, now)
		if err != nil {
			return nil, fmt.Errorf("failed to create source: %w", err)
		}
		sourceID, _ = result.LastInsertId()
	} else if err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	} else {
		if _, err := tx.Exec("UPDATE sources SET last_added = ? WHERE id = ?", now, sourceID); err != nil {
			return nil, fmt.Errorf("failed to update source: %w", err)
		}
	}

	// Insert chunks and vectors
	for i, chunk := range chunks {
		result, err := tx.Exec(`
			INSERT INTO chunks (source_id, chunk_key, seq, content, metadata, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, sourceID, chunk.Key, chunk.Seq, chunk.Content, chunk.Metadata, now)
		if err != nil {
			return nil, fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}

		chunkID, _ := result.LastInsertId()

		embeddingBlob := serializeEmbedding(embeddings[i])
		_, err = tx.Exec(`
			INSERT INTO chunk_vectors (chunk_id, collection_id, embedding)
			VALUES (?, ?, ?)
		`, chunkID, collectionID, embeddingBlob)
		if err != nil {
			return nil, fmt.Errorf("failed to insert vector for chunk %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit insert: %w", err)
	}

	return &InsertResult{Inserted: len(chunks), CollectionCreated: created}, nil
}

// Query performs a vector similarity search within a collection. An
// unknown collection yields no hits.
func (s *SQLiteStore) Query(collection string, queryEmbedding []float32, opts QueryOptions) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// An empty knowledge base has no vector table yet.
	dims, err := storedDimensions(s.db)
	if err != nil {
		return nil, err
	}
	if dims == 0 {
		return nil, nil
	}
	if len(queryEmbedding) != dims {
		return nil, fmt.Errorf("dimension mismatch: store has %d, query has %d", dims, len(queryEmbedding))
	}

	// Resolve the collection to its partition id; an unknown name has
	// no vectors to rank.
	var collectionID int64
	err = s.db.QueryRow("SELECT id FROM collections WHERE name = ?", collection).Scan(&collectionID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}

	queryBlob := serializeEmbedding(queryEmbedding)

	// collection_id is a vec0 partition key, so the KNN ranks only this
	// collection's vectors and k can be the requested limit directly.
	rows, err := s.db.Query(`
		SELECT
			ch.chunk_key, col.name, src.name, ch.seq, ch.content, ch.metadata,
			cv.distance
		FROM chunk_vectors cv
		JOIN chunks ch ON ch.id = cv.chunk_id
		JOIN sources src ON src.id = ch.source_id
		JOIN collections col ON col.id = src.collection_id
		WHERE cv.collection_id = ?
			AND cv.embedding MATCH ?
			AND k = ?
		ORDER BY cv.distance ASC, ch.seq ASC
		LIMIT ?
	`, collectionID, queryBlob, opts.TopK, opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var hit Hit
		if err := rows.Scan(
			&hit.ChunkKey, &hit.Collection, &hit.Source, &hit.Seq,
			&hit.Content, &hit.Metadata, &hit.Distance,
		); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}

		hit.Score = 1 - hit.Distance // Convert distance to similarity
		if hit.Score < opts.MinScore {
			continue
		}

		hits = append(hits, hit)
	}

	return hits, rows.Err()
}

// ListSources aggregates chunk counts per source within a collection,
// ordered by source name. An unknown collection yields an empty list.
func (s *SQLiteStore) ListSources(collection string) ([]SourceSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT src.name, COUNT(ch.id), src.first_added, src.last_added
		FROM sources src
		JOIN collections col ON col.id = src.collection_id
		LEFT JOIN chunks ch ON ch.source_id = src.id
		WHERE col.name = ?
		GROUP BY src.id
		ORDER BY src.name
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []SourceSummary
	for rows.Next() {
		var summary SourceSummary
		var firstAdded, lastAdded string

		if err := rows.Scan(&summary.Source, &summary.ChunkCount, &firstAdded, &lastAdded); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}

		summary.FirstAdded, _ = time.Parse(time.RFC3339, firstAdded)
		summary.LastAdded, _ = time.Parse(time.RFC3339, lastAdded)

		sources = append(sources, summary)
	}

	return sources, rows.Err()
}

// GetStats returns statistics across the whole knowledge base.
func (s *SQLiteStore) GetStats() (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{DatabasePath: s.path}

	rows, err := s.db.Query(`
		SELECT col.name,
			COUNT(DISTINCT src.id),
			COUNT(ch.id)
		FROM collections col
		LEFT JOIN sources src ON src.collection_id = col.id
		LEFT JOIN chunks ch ON ch.source_id = src.id
		GROUP BY col.id
		ORDER BY col.name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get collection stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cs CollectionStats
		if err := rows.Scan(&cs.Name, &cs.SourceCount, &cs.ChunkCount); err != nil {
			return nil, fmt.Errorf("failed to scan collection stats: %w", err)
		}
		stats.Collections = append(stats.Collections, cs)
		stats.TotalSources += cs.SourceCount
		stats.TotalChunks += cs.ChunkCount
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	dims, err := storedDimensions(s.db)
	if err != nil {
		return nil, err
	}
	stats.Dimensions = dims

	if info, err := os.Stat(s.path); err == nil {
		stats.DatabaseBytes = info.Size()
	}

	return stats, nil
}

// DropSource removes one source and its chunks and vectors from a
// collection. Dropping an unknown source is a no-op.
func (s *SQLiteStore) DropSource(collection, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sourceID int64
	err := s.db.QueryRow(`
		SELECT src.id FROM sources src
		JOIN collections col ON col.id = src.collection_id
		WHERE col.name = ? AND src.name = ?
	`, collection, source).Scan(&sourceID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get source ID: %w", err)
	}

	_, err = s.db.Exec(`
		DELETE FROM chunk_vectors WHERE chunk_id IN (
			SELECT id FROM chunks WHERE source_id = ?
		)
	`, sourceID)
	if err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}

	// Cascades to chunks
	_, err = s.db.Exec("DELETE FROM sources WHERE id = ?", sourceID)
	if err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}

	return nil
}

// DeleteCollection removes a collection and all its sources, chunks,
// and vectors. Deleting an unknown collection is a no-op.
func (s *SQLiteStore) DeleteCollection(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var collectionID int64
	err := s.db.QueryRow("SELECT id FROM collections WHERE name = ?", name).Scan(&collectionID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get collection ID: %w", err)
	}

	// Delete vectors for this collection's chunks
	_, err = s.db.Exec(`
		DELETE FROM chunk_vectors WHERE chunk_id IN (
			SELECT ch.id FROM chunks ch
			JOIN sources src ON src.id = ch.source_id
			WHERE src.collection_id = ?
		)
	`, collectionID)
	if err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}

	// Delete collection (cascades to sources and chunks)
	_, err = s.db.Exec("DELETE FROM collections WHERE id = ?", collectionID)
	if err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}

	return nil
}

// serializeEmbedding converts a float32 slice to bytes for sqlite-vec.
func serializeEmbedding(embedding []float32) []byte {
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
