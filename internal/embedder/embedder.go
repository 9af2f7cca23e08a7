// Package embedder provides implementations of the rag.Embedder interface for
// converting text into dense vector embeddings.
//
// Local runs fully in-process and is the default. Ollama and OpenAI (including
// Azure OpenAI) talk to remote backends via plain HTTP. Every implementation is
// constructed once at startup and injected into its consumers; wrap a
// non-reentrant implementation in Serialized before sharing it.
package embedder

import (
	"context"
	"fmt"
	"sync"

	"github.com/54b3r/docrag-go/internal/rag"
)

// dimensioned is implemented by embedders that know their output size
// without making a call.
type dimensioned interface {
	Dimensions() int
}

// Dimensions reports the vector length produced by e. Embedders that do not
// declare a size are measured with a single embedding call.
func Dimensions(ctx context.Context, e rag.Embedder) (int, error) {
	if d, ok := e.(dimensioned); ok && d.Dimensions() > 0 {
		return d.Dimensions(), nil
	}
	vecs, err := e.Embed(ctx, []string{"dimension check"})
	if err != nil {
		return 0, fmt.Errorf("embedder: measure dimensions: %w", err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return 0, fmt.Errorf("embedder: dimension check returned no vector")
	}
	return len(vecs[0]), nil
}

// Serialized wraps a rag.Embedder whose underlying model is not reentrant.
// Calls are executed one at a time; the lock is held only for the duration of
// the inner Embed call.
type Serialized struct {
	mu    sync.Mutex
	inner rag.Embedder
}

// NewSerialized wraps inner. It panics if inner is nil.
func NewSerialized(inner rag.Embedder) *Serialized {
	if inner == nil {
		panic("embedder: NewSerialized called with nil embedder")
	}
	return &Serialized{inner: inner}
}

// Embed forwards to the wrapped embedder under the lock.
func (s *Serialized) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Embed(ctx, texts)
}

// Dimensions forwards the wrapped embedder's declared size, or 0 if unknown.
func (s *Serialized) Dimensions() int {
	if d, ok := s.inner.(dimensioned); ok {
		return d.Dimensions()
	}
	return 0
}
