package vectorstore

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragstack/internal/domain"
)

func TestScoreCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Score(domain.MetricCosine, []float32{1, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, 0.0, Score(domain.MetricCosine, []float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Score(domain.MetricCosine, []float32{1, 0}, []float32{-1, 0}), 1e-9)
	// magnitude must not matter
	assert.InDelta(t, 1.0, Score(domain.MetricCosine, []float32{5, 0}, []float32{0.1, 0}), 1e-9)
}

func TestScoreCosineZeroVector(t *testing.T) {
	assert.Zero(t, Score(domain.MetricCosine, []float32{0, 0}, []float32{1, 0}))
}

func TestScoreL2(t *testing.T) {
	assert.InDelta(t, 1.0, Score(domain.MetricL2, []float32{1, 2}, []float32{1, 2}), 1e-9)
	got := Score(domain.MetricL2, []float32{0, 0}, []float32{3, 4})
	assert.InDelta(t, 1.0/(1.0+5.0), got, 1e-9)
	assert.Greater(t,
		Score(domain.MetricL2, []float32{1, 0}, []float32{1, 0.1}),
		Score(domain.MetricL2, []float32{1, 0}, []float32{1, 2}))
}

func TestCheckDimension(t *testing.T) {
	rec := domain.Record{Embedding: []float32{1, 2, 3}}
	assert.NoError(t, CheckDimension(rec, 3))
	assert.ErrorIs(t, CheckDimension(rec, 4), domain.ErrDimensionMismatch)
}

func TestMatchesFilter(t *testing.T) {
	meta := map[string]string{"source": "a.txt", "lang": "en"}
	assert.True(t, MatchesFilter(meta, nil))
	assert.True(t, MatchesFilter(meta, map[string]string{"source": "a.txt"}))
	assert.True(t, MatchesFilter(meta, map[string]string{"source": "a.txt", "lang": "en"}))
	assert.False(t, MatchesFilter(meta, map[string]string{"source": "b.txt"}))
	assert.False(t, MatchesFilter(meta, map[string]string{"missing": "x"}))
	assert.False(t, MatchesFilter(nil, map[string]string{"source": "a.txt"}))
}

func cand(id string, seq int64, vec ...float32) Candidate {
	return Candidate{Record: domain.Record{ID: id, Embedding: vec}, Seq: seq}
}

func TestRankOrdersByScoreThenSeq(t *testing.T) {
	cands := []Candidate{
		cand("far", 1, 0, 1),
		cand("tie-late", 3, 2, 0),
		cand("tie-early", 2, 1, 0),
	}
	got := Rank(domain.MetricCosine, []float32{1, 0}, cands, 10)
	require.Len(t, got, 3)
	assert.Equal(t, "tie-early", got[0].Record.ID)
	assert.Equal(t, "tie-late", got[1].Record.ID)
	assert.Equal(t, "far", got[2].Record.ID)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}
}

func TestRankCapsAtK(t *testing.T) {
	cands := []Candidate{cand("a", 1, 1, 0), cand("b", 2, 0, 1), cand("c", 3, 1, 1)}
	assert.Len(t, Rank(domain.MetricCosine, []float32{1, 0}, cands, 2), 2)
	assert.Len(t, Rank(domain.MetricCosine, []float32{1, 0}, cands, 5), 3)
	assert.Empty(t, Rank(domain.MetricCosine, []float32{1, 0}, cands, 0))
	assert.Empty(t, Rank(domain.MetricCosine, []float32{1, 0}, nil, 3))
}

func TestRankL2PrefersCloser(t *testing.T) {
	cands := []Candidate{
		cand("near", 1, 1, 1),
		cand("exact", 2, 1, 2),
		cand("far", 3, 10, 10),
	}
	got := Rank(domain.MetricL2, []float32{1, 2}, cands, 3)
	require.Len(t, got, 3)
	assert.Equal(t, "exact", got[0].Record.ID)
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)
	assert.Equal(t, "near", got[1].Record.ID)
	assert.Equal(t, "far", got[2].Record.ID)
	assert.False(t, math.IsNaN(got[2].Score))
}
