package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	"ragstack/internal/domain"
)

// DefaultLocalDimension is small enough for fast brute-force search
// while keeping hash collisions rare for ordinary documents.
const DefaultLocalDimension = 256

var wordRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

// Local is a deterministic feature-hashing embedder: tokens are
// hashed into a fixed number of buckets, weighted by sublinear term
// frequency and L2-normalized. It needs no network and no corpus
// preparation, which makes it the offline and test provider.
type Local struct {
	dimension int
}

var _ domain.Embedder = (*Local)(nil)

// NewLocal creates a local embedder with the given dimension.
func NewLocal(dimension int) *Local {
	if dimension <= 0 {
		dimension = DefaultLocalDimension
	}
	return &Local{dimension: dimension}
}

func (l *Local) Name() string { return "local" }

func (l *Local) Dimension() int { return l.dimension }

// Embed hashes the text's tokens into the vector. Identical texts
// always produce identical vectors.
func (l *Local) Embed(_ context.Context, text string) ([]float32, error) {
	counts := make(map[uint32]float64)
	for _, tok := range wordRe.FindAllString(strings.ToLower(text), -1) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		counts[h.Sum32()%uint32(l.dimension)]++
	}
	vec := make([]float32, l.dimension)
	var norm float64
	for bucket, tf := range counts {
		w := 1 + math.Log(tf)
		vec[bucket] = float32(w)
		norm += w * w
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

func (l *Local) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := l.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs[i] = v
	}
	return vecs, nil
}
