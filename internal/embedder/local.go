package embedder

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultLocalDimensions is the vector size of the in-process model.
const DefaultLocalDimensions = 384

// bigramWeight scales adjacent-token features relative to single tokens.
const bigramWeight = 0.5

// Local is a deterministic feature-hashing embedder. Lowercased word tokens
// and adjacent token pairs are hashed into a fixed number of signed buckets
// and the result is L2-normalised, so cosine similarity reflects lexical
// overlap. It needs no network access and is safe for concurrent use.
type Local struct {
	dims int
}

// NewLocal returns a Local embedder producing vectors of length dims.
// dims <= 0 selects DefaultLocalDimensions.
func NewLocal(dims int) *Local {
	if dims <= 0 {
		dims = DefaultLocalDimensions
	}
	return &Local{dims: dims}
}

// Dimensions returns the configured vector length.
func (l *Local) Dimensions() int { return l.dims }

// Embed converts each text into its hashed feature vector. Texts without any
// word tokens map to the zero vector.
func (l *Local) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = l.vector(text)
	}
	return out, nil
}

func (l *Local) vector(text string) []float32 {
	vec := make([]float64, l.dims)
	tokens := tokenize(text)
	for i, tok := range tokens {
		l.add(vec, tok, 1)
		if i > 0 {
			l.add(vec, tokens[i-1]+" "+tok, bigramWeight)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, l.dims)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

// add hashes feature into a bucket; the top bit of the hash picks the sign so
// collisions tend to cancel rather than accumulate.
func (l *Local) add(vec []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(l.dims))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
