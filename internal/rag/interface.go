// Package rag defines the retrieval components of docrag: vector stores,
// their collection handles, embedders and the retriever that combines them.
// Concrete backends (local SQLite directories, Qdrant) satisfy these
// interfaces so the orchestration layer never depends on a specific backend.
package rag

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidStoreID is returned for store identifiers that cannot be mapped
// safely onto a path or collection name.
var ErrInvalidStoreID = errors.New("invalid store id")

// storeIDPattern restricts ids to a single filesystem-safe path element.
var storeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ValidateStoreID reports whether id is usable as a store identifier.
func ValidateStoreID(id string) error {
	if id == "." || id == ".." || !storeIDPattern.MatchString(id) {
		return fmt.Errorf("rag: %q: %w", id, ErrInvalidStoreID)
	}
	return nil
}

// Metadata is stored alongside every entry.
type Metadata struct {
	// TypeTag is the source document's type tag (e.g. ".pdf").
	TypeTag string
	// SequenceIndex is the chunk's position within its document.
	SequenceIndex int
	// DocumentID identifies the source document.
	DocumentID string
}

// Entry is a chunk ready to be written: its text, its embedding and metadata.
type Entry struct {
	// ID is the deterministic chunk identifier. Re-using an ID overwrites.
	ID string
	// Content is the chunk text.
	Content string
	// Embedding is the chunk's vector.
	Embedding []float32
	// Metadata describes where the chunk came from.
	Metadata Metadata
}

// Match is a single query result.
type Match struct {
	ID       string
	Content  string
	Metadata Metadata
	// Score is the cosine similarity to the query vector; higher is nearer.
	Score float32
}

// Collection is an open handle on one store. Handles must be released when
// the caller is done with them; a store with live handles cannot be deleted.
type Collection interface {
	// ID returns the store identifier the handle was opened for.
	ID() string

	// Upsert writes entries, overwriting any with the same ID.
	Upsert(ctx context.Context, entries []Entry) error

	// Query returns at most topK entries ranked nearest first.
	Query(ctx context.Context, vector []float32, topK int) ([]Match, error)

	// Count returns the number of entries in the store.
	Count(ctx context.Context) (int, error)

	// Release gives the handle back. Calling it more than once is a no-op.
	Release() error
}

// VectorStore manages a set of named stores.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// GetOrCreate opens the store, creating its backing representation if
	// absent. It never fails because the store already exists.
	GetOrCreate(ctx context.Context, id string) (Collection, error)

	// Query searches the store without creating it. A store that does not
	// exist yields an empty result and no error.
	Query(ctx context.Context, id string, vector []float32, topK int) ([]Match, error)

	// Exists reports whether the store's backing representation is present.
	Exists(ctx context.Context, id string) (bool, error)

	// Delete drops the store's collection and removes its backing
	// representation. It returns false, not an error, when removal cannot
	// complete (for example while handles are open); the caller decides
	// whether to retry. Deleting a store that does not exist succeeds.
	Delete(ctx context.Context, id string) bool

	// Close releases resources held by the store manager.
	Close() error
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever fetches the most relevant chunks of a store for a question.
// Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	// Retrieve returns the top-k most relevant matches for query in storeID.
	Retrieve(ctx context.Context, storeID, query string, topK int) ([]Match, error)
}
