package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/edrvcesms/Unified-Complaints-and-Response-System/pkg/ucrserrors"
)

// LocalEmbedder is a deterministic, dependency-free embedder: each token in
// the input is hashed into a small set of dimensions it contributes to, and
// the resulting vector is L2-normalized. It produces stable, comparable
// vectors without calling out to any model service, useful for local
// development and as the fallback when no external embedding endpoint is
// configured.
type LocalEmbedder struct {
	dimension int
	logger    *logrus.Logger
}

// NewLocalEmbedder builds a LocalEmbedder with the given dimension, falling
// back to DefaultDimension for any non-positive value. A nil logger is
// tolerated.
func NewLocalEmbedder(dimension int, logger *logrus.Logger) *LocalEmbedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &LocalEmbedder{dimension: dimension, logger: logger}
}

// Dimension returns the embedder's configured vector length.
func (e *LocalEmbedder) Dimension() int {
	return e.dimension
}

// tokensPerWord is the number of dimensions each token's hash fans out into,
// giving nearby tokens a chance to collide constructively rather than each
// token touching only a single dimension.
const tokensPerWord = 3

// Embed deterministically hashes the tokens of text into e.dimension
// buckets and L2-normalizes the result. Text that is empty or all
// whitespace has no tokens to hash and cannot produce a unit-norm vector,
// so it is rejected rather than silently returning a zero vector.
func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ucrserrors.NewInvalidInput("text", "must not be empty after trimming")
	}

	vec := make([]float64, e.dimension)

	tokens := strings.Fields(strings.ToLower(text))
	for _, token := range tokens {
		h := fnv.New64a()
		_, _ = h.Write([]byte(token))
		seed := h.Sum64()

		for i := 0; i < tokensPerWord; i++ {
			seed = seed*6364136223846793005 + 1442695040888963407
			idx := int(seed % uint64(e.dimension))
			weight := 1.0 / float64(i+1)
			vec[idx] += weight
		}
	}

	normalize(vec)

	out := make([]float32, e.dimension)
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out, nil
}

func normalize(vec []float64) {
	var sumSquares float64
	for _, v := range vec {
		sumSquares += v * v
	}
	if sumSquares == 0 {
		return
	}
	norm := math.Sqrt(sumSquares)
	for i := range vec {
		vec[i] /= norm
	}
}
