package rag

import (
	"context"
	"fmt"
)

// DefaultTopK is the number of matches returned when the caller passes 0.
const DefaultTopK = 5

// DefaultRetriever implements Retriever by embedding the query and delegating
// the similarity search to a VectorStore.
type DefaultRetriever struct {
	embedder    Embedder
	store       VectorStore
	defaultTopK int
}

// NewRetriever constructs a DefaultRetriever. defaultTopK is used when
// Retrieve is called with topK <= 0.
func NewRetriever(embedder Embedder, store VectorStore, defaultTopK int) (*DefaultRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	return &DefaultRetriever{
		embedder:    embedder,
		store:       store,
		defaultTopK: defaultTopK,
	}, nil
}

// Retrieve embeds query and returns the nearest matches in storeID. A store
// that does not exist yields no matches.
func (r *DefaultRetriever) Retrieve(ctx context.Context, storeID, query string, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = r.defaultTopK
	}

	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("rag: embedder returned empty result for query")
	}

	matches, err := r.store.Query(ctx, storeID, embeddings[0], topK)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search in %s failed: %w", storeID, err)
	}
	return matches, nil
}
