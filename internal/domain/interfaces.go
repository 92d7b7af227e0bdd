package domain

import "context"

// Embedder converts free text into a fixed-length vector representation.
// Implementations must produce the same dimension for every call.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per input in the same order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Synthesizer turns a question plus retrieved context into an answer.
// An empty context means no relevant records were found; implementations
// must still answer rather than fail.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, question, contextText string) (string, error)
}

// Fetcher resolves a source identifier (URL or filesystem path) into
// one or more documents.
type Fetcher interface {
	Fetch(ctx context.Context, source string) ([]Document, error)
}

// Chunker splits a document into smaller units prior to embedding.
type Chunker interface {
	Chunk(doc Document) []string
}

// VectorStore persists records and supports k-nearest-neighbor search.
// Implementations must allow concurrent Insert and Search without torn
// reads or lost writes; a record becomes visible to Search only after
// its insert returns.
type VectorStore interface {
	// CreateCollection is idempotent when name, dimension and metric all
	// match an existing collection, and fails with ErrAlreadyExists when
	// the name is taken with a different shape.
	CreateCollection(ctx context.Context, c Collection) error

	// Insert persists one record atomically, assigning an ID when none
	// is supplied, and returns the committed ID.
	Insert(ctx context.Context, collection string, rec Record) (string, error)

	// InsertBatch persists all records in a single transaction; either
	// every record becomes visible or none do.
	InsertBatch(ctx context.Context, collection string, recs []Record) ([]string, error)

	// Search returns up to k records ranked by descending similarity
	// under the collection metric. The filter is an exact-match metadata
	// predicate applied before ranking. An empty collection or an
	// all-excluding filter yields an empty result, not an error.
	Search(ctx context.Context, collection string, embedding []float32, k int, filter map[string]string) ([]Match, error)

	// Count reports how many records satisfy the filter.
	Count(ctx context.Context, collection string, filter map[string]string) (int, error)

	// List returns up to limit records, newest first. Read-only
	// inspection; never used on the query or ingest hot path.
	List(ctx context.Context, collection string, limit int) ([]Record, error)

	Close() error
}
