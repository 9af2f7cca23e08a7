package rag

import (
	"context"
	"errors"
	"testing"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

func TestRank_OrderAndTies(t *testing.T) {
	t.Parallel()

	es := []Entry{
		{ID: "b", Embedding: []float32{1, 0}},
		{ID: "a", Embedding: []float32{1, 0}},
		{ID: "c", Embedding: []float32{0, 1}},
		{ID: "d", Embedding: []float32{0.7, 0.7}},
	}
	got, err := Rank(es, []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	want := []string{"a", "b", "d"}
	if len(got) != len(want) {
		t.Fatalf("want %d matches, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d: want %s, got %s", i, id, got[i].ID)
		}
	}
	if got[0].Score < got[2].Score {
		t.Errorf("scores not descending: %v", got)
	}
}

func TestRank_DimensionMismatch(t *testing.T) {
	t.Parallel()

	if _, err := Rank([]Entry{{ID: "x", Embedding: []float32{1, 2, 3}}}, []float32{1}, 1); err == nil {
		t.Error("want error for mismatched dimensions")
	}
}

func TestCosine_ZeroVector(t *testing.T) {
	t.Parallel()

	if got := Cosine([]float32{0, 0}, []float32{1, 0}); got != 0 {
		t.Errorf("want 0, got %f", got)
	}
}

func TestNewRetriever_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewRetriever(nil, newTestLocalStore(t), 0); err == nil {
		t.Error("nil embedder: want error")
	}
	if _, err := NewRetriever(&fakeEmbedder{}, nil, 0); err == nil {
		t.Error("nil store: want error")
	}
	r, err := NewRetriever(&fakeEmbedder{}, newTestLocalStore(t), 0)
	if err != nil {
		t.Fatalf("new retriever: %v", err)
	}
	if r.defaultTopK != DefaultTopK {
		t.Errorf("want default topK %d, got %d", DefaultTopK, r.defaultTopK)
	}
}

func TestRetriever_Retrieve(t *testing.T) {
	t.Parallel()
	s := newTestLocalStore(t)
	ctx := context.Background()

	c, err := s.GetOrCreate(ctx, "policy")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	vecs := make([][]float32, 8)
	for i := range vecs {
		vecs[i] = []float32{float32(i), 1}
	}
	if err := c.Upsert(ctx, entries("policy.txt", vecs...)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	_ = c.Release()

	r, err := NewRetriever(&fakeEmbedder{vec: []float32{1, 0}}, s, 3)
	if err != nil {
		t.Fatalf("new retriever: %v", err)
	}
	matches, err := r.Retrieve(ctx, "policy", "hotel limit", 0)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(matches) != 3 {
		t.Errorf("want default 3 matches, got %d", len(matches))
	}

	matches, err = r.Retrieve(ctx, "missing", "hotel limit", 2)
	if err != nil || len(matches) != 0 {
		t.Errorf("missing store: want no matches and no error, got %d, %v", len(matches), err)
	}
}

func TestRetriever_EmbedError(t *testing.T) {
	t.Parallel()

	boom := errors.New("model offline")
	r, err := NewRetriever(&fakeEmbedder{err: boom}, newTestLocalStore(t), 0)
	if err != nil {
		t.Fatalf("new retriever: %v", err)
	}
	if _, err := r.Retrieve(context.Background(), "default", "q", 1); !errors.Is(err, boom) {
		t.Errorf("want wrapped embed error, got %v", err)
	}
}
