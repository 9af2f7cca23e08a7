// Package retrieval answers questions against document stores. A request
// either queries an existing store (query mode) or fetches a document, indexes
// it into a fresh ephemeral store and then queries that store (index mode).
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/54b3r/docrag-go/internal/answer"
	"github.com/54b3r/docrag-go/internal/budget"
	"github.com/54b3r/docrag-go/internal/docsource"
	"github.com/54b3r/docrag-go/internal/ingestion"
	"github.com/54b3r/docrag-go/internal/lifecycle"
	"github.com/54b3r/docrag-go/internal/logging"
	"github.com/54b3r/docrag-go/internal/rag"
)

var (
	// ErrInvalidRequest is returned when a request selects neither or both
	// modes, or is missing its question.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrDocumentFetchFailed is returned when the document storage service
	// could not supply the document.
	ErrDocumentFetchFailed = errors.New("document fetch failed")

	// ErrEmptyDocument is returned when a document yields no indexable text.
	ErrEmptyDocument = ingestion.ErrEmptyDocument
)

// DefaultMaxConcurrentIndexing bounds simultaneous index-mode requests.
const DefaultMaxConcurrentIndexing = 4

// NoContextFormat is the answer returned when a store has nothing relevant.
const NoContextFormat = "No relevant information found in store %q."

// Mode identifies how a request was served.
type Mode string

const (
	// ModeQuery answers from an existing store.
	ModeQuery Mode = "query"
	// ModeIndex indexes a document into a new store, then answers from it.
	ModeIndex Mode = "index"
)

// Request is a single question.
type Request struct {
	// StoreID selects query mode.
	StoreID string
	// Bucket and DocumentID together select index mode.
	Bucket     string
	DocumentID string
	Question   string
	// TopK bounds the number of chunks retrieved; 0 uses the default.
	TopK int
}

// Mode reports the mode the request asks for. It does not validate.
func (r Request) Mode() Mode {
	if r.StoreID != "" {
		return ModeQuery
	}
	return ModeIndex
}

// Validate checks that exactly one mode is selected and a question is present.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Question) == "" {
		return fmt.Errorf("retrieval: question is required: %w", ErrInvalidRequest)
	}
	hasStore := r.StoreID != ""
	hasDoc := r.Bucket != "" || r.DocumentID != ""
	switch {
	case hasStore && hasDoc:
		return fmt.Errorf("retrieval: supply either a store id or a document reference, not both: %w", ErrInvalidRequest)
	case !hasStore && !hasDoc:
		return fmt.Errorf("retrieval: a store id or a document reference is required: %w", ErrInvalidRequest)
	case hasDoc && (r.Bucket == "" || r.DocumentID == ""):
		return fmt.Errorf("retrieval: a document reference needs both bucket and document id: %w", ErrInvalidRequest)
	case hasStore:
		if err := rag.ValidateStoreID(r.StoreID); err != nil {
			return fmt.Errorf("retrieval: %w: %w", ErrInvalidRequest, err)
		}
	}
	return nil
}

// Result is the outcome of a request.
type Result struct {
	// StoreID is the store that was queried. In index mode it is the new
	// ephemeral store, which can be reused by a follow-up query.
	StoreID string
	Mode    Mode
	// Created is true when this request created StoreID.
	Created bool
	// Chunks are the retrieved chunks used as context, most relevant first.
	Chunks []rag.Match
	// Answer is the model's reply, the no-context message, or empty when no
	// answerer is configured.
	Answer string
	// NoContext is true when the store returned nothing.
	NoContext bool
}

// Config wires an Orchestrator.
type Config struct {
	Store     rag.VectorStore
	Retriever rag.Retriever
	Pipeline  *ingestion.Pipeline
	Lifecycle *lifecycle.Manager
	Fetcher   docsource.Fetcher
	// Answerer is optional; without one results carry chunks only.
	Answerer answer.Answerer

	// MaxConcurrentIndexing bounds simultaneous index-mode requests.
	MaxConcurrentIndexing int
	// MaxContextTokens caps the context handed to the answerer. 0 uses
	// budget.DefaultMaxContextTokens; a negative value disables trimming.
	MaxContextTokens int
}

// Orchestrator serves requests. It is safe for concurrent use.
type Orchestrator struct {
	store     rag.VectorStore
	retriever rag.Retriever
	pipeline  *ingestion.Pipeline
	lifecycle *lifecycle.Manager
	fetcher   docsource.Fetcher
	answerer  answer.Answerer

	indexing  *semaphore.Weighted
	maxTokens int
}

// New constructs an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Store == nil:
		return nil, fmt.Errorf("retrieval: store must not be nil")
	case cfg.Retriever == nil:
		return nil, fmt.Errorf("retrieval: retriever must not be nil")
	case cfg.Pipeline == nil:
		return nil, fmt.Errorf("retrieval: pipeline must not be nil")
	case cfg.Lifecycle == nil:
		return nil, fmt.Errorf("retrieval: lifecycle must not be nil")
	}
	if cfg.MaxConcurrentIndexing <= 0 {
		cfg.MaxConcurrentIndexing = DefaultMaxConcurrentIndexing
	}
	switch {
	case cfg.MaxContextTokens == 0:
		cfg.MaxContextTokens = budget.DefaultMaxContextTokens
	case cfg.MaxContextTokens < 0:
		cfg.MaxContextTokens = 0
	}
	return &Orchestrator{
		store:     cfg.Store,
		retriever: cfg.Retriever,
		pipeline:  cfg.Pipeline,
		lifecycle: cfg.Lifecycle,
		fetcher:   cfg.Fetcher,
		answerer:  cfg.Answerer,
		indexing:  semaphore.NewWeighted(int64(cfg.MaxConcurrentIndexing)),
		maxTokens: cfg.MaxContextTokens,
	}, nil
}

// Ask serves req in whichever mode it selects.
func (o *Orchestrator) Ask(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	res := &Result{Mode: req.Mode(), StoreID: req.StoreID}
	if res.Mode == ModeIndex {
		id, err := o.indexDocument(ctx, req.Bucket, req.DocumentID)
		if err != nil {
			return nil, err
		}
		res.StoreID, res.Created = id, true
	}

	log := logging.FromContext(ctx).With(slog.String("store_id", res.StoreID), slog.String("mode", string(res.Mode)))

	matches, err := o.retriever.Retrieve(ctx, res.StoreID, req.Question, req.TopK)
	if err != nil {
		return nil, fmt.Errorf("retrieval: %w", err)
	}
	if len(matches) == 0 {
		log.Info("retrieval: no matching chunks")
		res.NoContext = true
		res.Answer = fmt.Sprintf(NoContextFormat, res.StoreID)
		return res, nil
	}

	texts := make([]string, len(matches))
	for i, m := range matches {
		texts[i] = m.Content
	}
	texts = budget.TrimTexts(texts, o.maxTokens)
	res.Chunks = matches[:len(texts)]
	if len(texts) < len(matches) {
		log.Debug("retrieval: context trimmed to budget", "kept", len(texts), "retrieved", len(matches))
	}

	if o.answerer == nil {
		return res, nil
	}
	ans, err := o.answerer.Answer(ctx, strings.Join(texts, "\n\n"), req.Question)
	if err != nil {
		return nil, fmt.Errorf("retrieval: %w", err)
	}
	res.Answer = ans
	log.Info("retrieval: answered", "chunks", len(res.Chunks))
	return res, nil
}

// indexDocument fetches, prepares and indexes a document into a new
// ephemeral store and returns the store id. Nothing is created until the
// document has been fetched and produced chunks.
func (o *Orchestrator) indexDocument(ctx context.Context, bucket, docID string) (string, error) {
	if o.fetcher == nil {
		return "", fmt.Errorf("retrieval: no document source configured for %s/%s: %w", bucket, docID, ErrInvalidRequest)
	}
	if err := o.indexing.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("retrieval: wait for indexing slot: %w", err)
	}
	defer o.indexing.Release(1)

	storeID := o.lifecycle.NewEphemeralName(docID)
	log := logging.FromContext(ctx).With(slog.String("store_id", storeID), slog.String("document_id", docID))

	data, err := o.fetcher.Fetch(ctx, bucket, docID)
	if err != nil {
		return "", fmt.Errorf("retrieval: %s/%s: %w: %w", bucket, docID, ErrDocumentFetchFailed, err)
	}

	prep, err := o.pipeline.Prepare(ingestion.Document{ID: docID, Data: data})
	if err != nil {
		return "", fmt.Errorf("retrieval: %w", err)
	}

	coll, err := o.store.GetOrCreate(ctx, storeID)
	if err != nil {
		return "", fmt.Errorf("retrieval: create store %s: %w", storeID, err)
	}
	n, err := o.pipeline.Index(ctx, coll, prep)
	if relErr := coll.Release(); relErr != nil {
		log.Warn("retrieval: release store handle", "error", relErr)
	}
	if err == nil && n == 0 {
		err = fmt.Errorf("retrieval: %s: %w", docID, ErrEmptyDocument)
	}
	if err != nil {
		out := o.lifecycle.Delete(ctx, storeID)
		log.Warn("retrieval: indexing failed, store removed", "error", err, "immediate_success", out.ImmediateSuccess)
		return "", fmt.Errorf("retrieval: index %s: %w", docID, err)
	}

	log.Info("retrieval: document indexed", "chunks", n)
	return storeID, nil
}

// Delete requests removal of a store through the lifecycle manager.
func (o *Orchestrator) Delete(ctx context.Context, storeID string) (lifecycle.Outcome, error) {
	if err := rag.ValidateStoreID(storeID); err != nil {
		return lifecycle.Outcome{}, fmt.Errorf("retrieval: %w: %w", ErrInvalidRequest, err)
	}
	return o.lifecycle.Delete(ctx, storeID), nil
}
