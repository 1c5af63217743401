package store

// Store defines the interface for vector storage operations.
type Store interface {
	// Collection management
	GetCollection(name string) (*CollectionRecord, error)
	ListCollections() ([]CollectionRecord, error)

	// Ingestion. Insert creates the collection and source on first use
	// and appends the chunks atomically.
	Insert(collection, source string, chunks []ChunkInput, embeddings [][]float32) (*InsertResult, error)

	// Search. An unknown collection yields no hits, not an error.
	Query(collection string, queryEmbedding []float32, opts QueryOptions) ([]Hit, error)

	// Introspection
	ListSources(collection string) ([]SourceSummary, error)
	GetStats() (*Stats, error)
	Ping() error
	Dimensions() (int, error)

	// Maintenance
	DropSource(collection, source string) error
	DeleteCollection(name string) error
	Close() error
}
