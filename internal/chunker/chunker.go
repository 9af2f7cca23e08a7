// Package chunker splits plain text into overlapping fixed-size segments.
// Boundaries are measured in runes and ignore sentence and word structure,
// so every document is chunked the same way regardless of language.
package chunker

import (
	"errors"
	"fmt"
)

const (
	// DefaultSize is the number of runes per chunk when no size is configured.
	DefaultSize = 500
	// DefaultOverlap is the number of runes shared by consecutive chunks.
	DefaultOverlap = 100
)

// ErrInvalidChunkingConfig is returned when the size/overlap pair would stop
// the cursor from advancing.
var ErrInvalidChunkingConfig = errors.New("invalid chunking config")

// Chunk is one contiguous segment of a source document.
type Chunk struct {
	// ID is "{SourceDocumentID}_{SequenceIndex}". Re-chunking the same document
	// with the same parameters yields the same IDs.
	ID string
	// Text is the segment content.
	Text string
	// SequenceIndex is the zero-based position of the chunk in its document.
	SequenceIndex int
	// SourceDocumentID identifies the document the chunk was cut from.
	SourceDocumentID string
}

// Validate reports whether size and overlap describe a terminating split.
func Validate(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("chunker: size must be positive, got %d: %w", size, ErrInvalidChunkingConfig)
	}
	if overlap < 0 {
		return fmt.Errorf("chunker: overlap must not be negative, got %d: %w", overlap, ErrInvalidChunkingConfig)
	}
	if overlap >= size {
		return fmt.Errorf("chunker: overlap %d must be smaller than size %d: %w", overlap, size, ErrInvalidChunkingConfig)
	}
	return nil
}

// Split cuts text into segments of at most size runes. Each segment starts
// size-overlap runes after the previous one, and the loop stops once the
// start offset reaches the end of the text. Empty text yields no segments.
func Split(text string, size, overlap int) ([]string, error) {
	if err := Validate(size, overlap); err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}

	runes := []rune(text)
	step := size - overlap
	segments := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		segments = append(segments, string(runes[start:end]))
	}
	return segments, nil
}

// Build splits text and attaches deterministic identifiers derived from docID.
func Build(docID, text string, size, overlap int) ([]Chunk, error) {
	segments, err := Split(text, size, overlap)
	if err != nil {
		return nil, err
	}
	chunks := make([]Chunk, len(segments))
	for i, seg := range segments {
		chunks[i] = Chunk{
			ID:               ID(docID, i),
			Text:             seg,
			SequenceIndex:    i,
			SourceDocumentID: docID,
		}
	}
	return chunks, nil
}

// ID returns the chunk identifier for the i-th chunk of docID.
func ID(docID string, i int) string {
	return fmt.Sprintf("%s_%d", docID, i)
}
