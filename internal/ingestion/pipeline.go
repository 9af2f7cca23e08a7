// Package ingestion implements the document indexing pipeline: extract plain
// text from raw bytes, split it into overlapping chunks, embed every chunk
// and upsert the results into a store collection.
//
// Preparation (extract + chunk) is separate from indexing (embed + upsert) so
// callers can reject unusable documents before any store is created.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/54b3r/docrag-go/internal/chunker"
	"github.com/54b3r/docrag-go/internal/extract"
	"github.com/54b3r/docrag-go/internal/logging"
	"github.com/54b3r/docrag-go/internal/rag"
)

// ErrEmptyDocument is returned when extraction succeeds but yields no text.
var ErrEmptyDocument = errors.New("empty document")

// defaultBatchSize bounds the number of chunks sent to the embedder at once.
const defaultBatchSize = 64

// Document is a raw document awaiting ingestion.
type Document struct {
	// ID is a filename-like identifier; its extension is the type tag.
	ID string
	// Data is the raw document content.
	Data []byte
}

// Prepared is a document that has been extracted and chunked.
type Prepared struct {
	DocumentID string
	TypeTag    string
	Chunks     []chunker.Chunk
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the number of runes per chunk. When both ChunkSize and
	// ChunkOverlap are zero the chunker defaults (500/100) are used.
	ChunkSize int

	// ChunkOverlap is the number of runes shared by consecutive chunks.
	ChunkOverlap int

	// BatchSize caps the number of chunks per Embed call. Defaults to 64.
	BatchSize int
}

// Pipeline runs extract → chunk → embed → upsert.
type Pipeline struct {
	embedder rag.Embedder
	cfg      Config
}

// NewPipeline constructs a Pipeline. An invalid size/overlap pair fails with
// chunker.ErrInvalidChunkingConfig.
func NewPipeline(embedder rag.Embedder, cfg Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if cfg.ChunkSize == 0 && cfg.ChunkOverlap == 0 {
		cfg.ChunkSize = chunker.DefaultSize
		cfg.ChunkOverlap = chunker.DefaultOverlap
	}
	if err := chunker.Validate(cfg.ChunkSize, cfg.ChunkOverlap); err != nil {
		return nil, fmt.Errorf("ingestion: %w", err)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	return &Pipeline{embedder: embedder, cfg: cfg}, nil
}

// Config returns the resolved configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Prepare extracts and chunks doc. Unsupported or corrupt documents fail with
// the extract package's errors; documents without any non-whitespace text
// fail with ErrEmptyDocument.
func (p *Pipeline) Prepare(doc Document) (*Prepared, error) {
	tag := extract.TagFromName(doc.ID)
	text, err := extract.Extract(doc.Data, tag)
	if err != nil {
		return nil, fmt.Errorf("ingestion: %s: %w", doc.ID, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("ingestion: %s: %w", doc.ID, ErrEmptyDocument)
	}

	chunks, err := chunker.Build(doc.ID, text, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("ingestion: chunk %s: %w", doc.ID, err)
	}
	return &Prepared{DocumentID: doc.ID, TypeTag: tag, Chunks: chunks}, nil
}

// Index embeds the prepared chunks and upserts them into coll. It returns the
// number of chunks written.
func (p *Pipeline) Index(ctx context.Context, coll rag.Collection, prep *Prepared) (int, error) {
	log := logging.FromContext(ctx).With(
		slog.String("store_id", coll.ID()),
		slog.String("document_id", prep.DocumentID),
	)

	written := 0
	for start := 0; start < len(prep.Chunks); start += p.cfg.BatchSize {
		batch := prep.Chunks[start:min(start+p.cfg.BatchSize, len(prep.Chunks))]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return written, fmt.Errorf("ingestion: embedding failed for %s: %w", prep.DocumentID, err)
		}
		if len(vectors) != len(batch) {
			return written, fmt.Errorf("ingestion: embedder returned %d vectors for %d chunks", len(vectors), len(batch))
		}

		entries := make([]rag.Entry, len(batch))
		for i, c := range batch {
			entries[i] = rag.Entry{
				ID:        c.ID,
				Content:   c.Text,
				Embedding: vectors[i],
				Metadata: rag.Metadata{
					TypeTag:       prep.TypeTag,
					SequenceIndex: c.SequenceIndex,
					DocumentID:    c.SourceDocumentID,
				},
			}
		}
		if err := coll.Upsert(ctx, entries); err != nil {
			return written, fmt.Errorf("ingestion: upsert failed for %s: %w", prep.DocumentID, err)
		}
		written += len(batch)
	}

	log.Info("ingestion: document indexed", slog.Int("chunks", written))
	return written, nil
}

// Ingest prepares and indexes each document in turn, stopping at the first
// error. Progress is reported via the optional callback.
func (p *Pipeline) Ingest(ctx context.Context, coll rag.Collection, docs []Document, progress func(msg string)) (int, error) {
	if progress == nil {
		progress = func(string) {}
	}

	total := 0
	for _, doc := range docs {
		prep, err := p.Prepare(doc)
		if err != nil {
			return total, err
		}
		progress(fmt.Sprintf("chunked %s into %d chunks", doc.ID, len(prep.Chunks)))

		n, err := p.Index(ctx, coll, prep)
		total += n
		if err != nil {
			return total, err
		}
		progress(fmt.Sprintf("indexed %d chunks from %s into %s", n, doc.ID, coll.ID()))
	}
	return total, nil
}
