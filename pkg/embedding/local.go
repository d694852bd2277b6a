package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// LocalEmbedder is a deterministic feature-hash embedder: tokens are
// hashed into D buckets and the result is L2-normalised. It needs no
// provider, making it the offline and test default. Not a semantic
// model, but cosine similarity still clusters records sharing tokens,
// which is what the neighbor lookup needs.
type LocalEmbedder struct {
	dimension int
}

// NewLocalEmbedder creates a local embedder with the given dimension.
func NewLocalEmbedder(dimension int) *LocalEmbedder {
	if dimension < 1 {
		dimension = 384
	}
	return &LocalEmbedder{dimension: dimension}
}

// Dimension returns the output dimension.
func (e *LocalEmbedder) Dimension() int { return e.dimension }

// Embed hashes tokens into buckets. Always succeeds.
func (e *LocalEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimension)

	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != ':'
	})
	for _, tok := range tokens {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		bucket := int(sum % uint64(e.dimension))
		// Second hash bit decides sign, so common tokens don't all
		// push in one direction.
		if sum&(1<<63) == 0 {
			vec[bucket]++
		} else {
			vec[bucket]--
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}
