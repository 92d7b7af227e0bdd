// Package vectorstore holds the pieces shared by every store backend:
// similarity math, ranking, and dimension/filter checks. The backends
// themselves live in the memory, sqlite and pgvector subpackages.
package vectorstore

import (
	"fmt"
	"math"
	"sort"

	"ragstack/internal/domain"
)

// Score maps a stored vector against the query vector onto a
// similarity in which higher is always better: cosine similarity for
// the cosine metric, 1/(1+distance) for Euclidean.
func Score(metric domain.Metric, stored, query []float32) float64 {
	switch metric {
	case domain.MetricL2:
		return 1 / (1 + l2Distance(stored, query))
	default:
		return cosineSimilarity(stored, query)
	}
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// CheckDimension validates a record's embedding against the
// collection dimension.
func CheckDimension(rec domain.Record, dim int) error {
	if len(rec.Embedding) != dim {
		return fmt.Errorf("%w: got %d, collection expects %d",
			domain.ErrDimensionMismatch, len(rec.Embedding), dim)
	}
	return nil
}

// MatchesFilter reports whether every filter entry matches the record
// metadata exactly. A nil or empty filter matches everything.
type metadata = map[string]string

func MatchesFilter(meta metadata, filter metadata) bool {
	for k, v := range filter {
		if meta[k] != v {
			return false
		}
	}
	return true
}

// Candidate is a record plus its insertion sequence, used by backends
// that rank in process.
type Candidate struct {
	Record domain.Record
	Seq    int64
}

// Rank scores candidates against the query embedding and returns the
// top k as matches ordered by descending score; ties go to the
// earlier-inserted record.
func Rank(metric domain.Metric, query []float32, cands []Candidate, k int) []domain.Match {
	if k <= 0 || len(cands) == 0 {
		return []domain.Match{}
	}
	type scored struct {
		c     Candidate
		score float64
	}
	all := make([]scored, len(cands))
	for i, c := range cands {
		all[i] = scored{c, Score(metric, c.Record.Embedding, query)}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].c.Seq < all[j].c.Seq
	})
	if k > len(all) {
		k = len(all)
	}
	out := make([]domain.Match, k)
	for i := 0; i < k; i++ {
		out[i] = domain.Match{Record: all[i].c.Record, Score: all[i].score}
	}
	return out
}
