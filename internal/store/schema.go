package store

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/charmbracelet/log"
)

const currentSchemaVersion = 1

// Schema definitions
const schemaVersionTable = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);
`

const metaTable = `
CREATE TABLE IF NOT EXISTS kb_meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const collectionsTable = `
CREATE TABLE IF NOT EXISTS collections (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT UNIQUE NOT NULL,
	created_at TEXT DEFAULT (datetime('now')),
	updated_at TEXT DEFAULT (datetime('now'))
);
`

const sourcesTable = `
CREATE TABLE IF NOT EXISTS sources (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	collection_id INTEGER NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	first_added TEXT DEFAULT (datetime('now')),
	last_added TEXT DEFAULT (datetime('now')),
	UNIQUE(collection_id, name)
);

CREATE INDEX IF NOT EXISTS idx_sources_collection_id ON sources(collection_id);
`

const chunksTable = `
CREATE TABLE IF NOT EXISTS chunks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_id INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
	chunk_key TEXT NOT NULL,
	seq INTEGER NOT NULL,
	content TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_chunks_source_id ON chunks(source_id);
CREATE INDEX IF NOT EXISTS idx_chunks_key ON chunks(chunk_key);
`

const dimensionsKey = "embedding_dimensions"

// createVectorTable creates the sqlite-vec virtual table for the given
// dimensions and records the dimensions so later opens can verify them.
// The collection id is a partition key, so KNN queries rank vectors
// within one collection only and never get shadowed by nearer vectors
// in other collections.
func createVectorTable(db *sql.DB, dimensions int) error {
	query := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS chunk_vectors USING vec0(
			chunk_id INTEGER PRIMARY KEY,
			collection_id INTEGER PARTITION KEY,
			embedding float[%d] distance_metric=cosine
		);
	`, dimensions)

	if _, err := db.Exec(query); err != nil {
		return err
	}

	_, err := db.Exec("INSERT OR REPLACE INTO kb_meta (key, value) VALUES (?, ?)",
		dimensionsKey, strconv.Itoa(dimensions))
	return err
}

// initSchema initializes the database schema.
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schemaVersionTable); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var version int
	err := db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		version = 0
	} else if err != nil {
		return fmt.Errorf("failed to check schema version: %w", err)
	}

	if version >= currentSchemaVersion {
		log.Debug("Schema is up to date", "version", version)
		return nil
	}

	log.Debug("Migrating schema", "from", version, "to", currentSchemaVersion)

	if version < 1 {
		if err := migrateV1(db); err != nil {
			return fmt.Errorf("failed to migrate to v1: %w", err)
		}
	}

	return nil
}

// migrateV1 creates the initial schema.
func migrateV1(db *sql.DB) error {
	log.Debug("Applying migration v1")

	tables := []string{metaTable, collectionsTable, sourcesTable, chunksTable}
	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	// The vector table is created on first insert, when the embedding
	// dimensions are known.

	if _, err := db.Exec("INSERT OR REPLACE INTO schema_version (version) VALUES (?)", 1); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}

	return nil
}

// ensureVectorTable ensures the vector table exists and that its
// recorded dimensions match the embeddings being inserted.
func ensureVectorTable(db *sql.DB, dimensions int) error {
	var tableName string
	err := db.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='chunk_vectors'
	`).Scan(&tableName)

	if err == sql.ErrNoRows {
		log.Debug("Creating vector table", "dimensions", dimensions)
		return createVectorTable(db, dimensions)
	} else if err != nil {
		return fmt.Errorf("failed to check vector table: %w", err)
	}

	stored, err := storedDimensions(db)
	if err != nil {
		return err
	}
	if stored != 0 && stored != dimensions {
		return fmt.Errorf("dimension mismatch: store has %d, got %d", stored, dimensions)
	}
	return nil
}

// storedDimensions reads the recorded vector dimensions, or 0 if no
// vector table has been created yet.
func storedDimensions(db *sql.DB) (int, error) {
	var value string
	err := db.QueryRow("SELECT value FROM kb_meta WHERE key = ?", dimensionsKey).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read dimensions: %w", err)
	}
	dims, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid dimensions value %q: %w", value, err)
	}
	return dims, nil
}
