package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragstack/internal/domain"
)

func newCollection(t *testing.T, s *Store, dim int, metric domain.Metric) domain.Collection {
	t.Helper()
	c := domain.Collection{Name: "docs", Dimension: dim, Metric: metric}
	require.NoError(t, s.CreateCollection(context.Background(), c))
	return c
}

func TestCreateCollectionIdempotent(t *testing.T) {
	s := New()
	c := newCollection(t, s, 3, domain.MetricCosine)
	assert.NoError(t, s.CreateCollection(context.Background(), c))
}

func TestCreateCollectionConflict(t *testing.T) {
	s := New()
	newCollection(t, s, 3, domain.MetricCosine)
	err := s.CreateCollection(context.Background(), domain.Collection{Name: "docs", Dimension: 4, Metric: domain.MetricCosine})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	err = s.CreateCollection(context.Background(), domain.Collection{Name: "docs", Dimension: 3, Metric: domain.MetricL2})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestInsertAssignsID(t *testing.T) {
	s := New()
	newCollection(t, s, 2, domain.MetricCosine)
	id, err := s.Insert(context.Background(), "docs", domain.Record{Text: "a", Embedding: []float32{1, 0}})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestInsertDimensionMismatchNeverPersisted(t *testing.T) {
	s := New()
	newCollection(t, s, 2, domain.MetricCosine)
	_, err := s.Insert(context.Background(), "docs", domain.Record{Text: "bad", Embedding: []float32{1, 2, 3}})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	n, err := s.Count(context.Background(), "docs", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInsertBatchAtomic(t *testing.T) {
	s := New()
	newCollection(t, s, 2, domain.MetricCosine)
	_, err := s.InsertBatch(context.Background(), "docs", []domain.Record{
		{Text: "ok", Embedding: []float32{1, 0}},
		{Text: "bad", Embedding: []float32{1}},
	})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	n, _ := s.Count(context.Background(), "docs", nil)
	assert.Zero(t, n)
}

func TestSearchEmptyCollection(t *testing.T) {
	s := New()
	newCollection(t, s, 2, domain.MetricCosine)
	matches, err := s.Search(context.Background(), "docs", []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSearchRankingDescending(t *testing.T) {
	s := New()
	newCollection(t, s, 2, domain.MetricCosine)
	ctx := context.Background()
	for _, r := range []domain.Record{
		{Text: "east", Embedding: []float32{1, 0}},
		{Text: "north", Embedding: []float32{0, 1}},
		{Text: "northeast", Embedding: []float32{1, 1}},
	} {
		_, err := s.Insert(ctx, "docs", r)
		require.NoError(t, err)
	}
	matches, err := s.Search(ctx, "docs", []float32{1, 0}, 3, nil)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "east", matches[0].Record.Text)
	for i := 1; i < len(matches); i++ {
		assert.LessOrEqual(t, matches[i].Score, matches[i-1].Score)
	}
}

func TestSearchTieBrokenByInsertionOrder(t *testing.T) {
	s := New()
	newCollection(t, s, 2, domain.MetricCosine)
	ctx := context.Background()
	_, err := s.Insert(ctx, "docs", domain.Record{ID: "first", Text: "a", Embedding: []float32{2, 0}})
	require.NoError(t, err)
	_, err = s.Insert(ctx, "docs", domain.Record{ID: "second", Text: "b", Embedding: []float32{4, 0}})
	require.NoError(t, err)
	// cosine is magnitude-invariant so both score 1.0
	matches, err := s.Search(ctx, "docs", []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "first", matches[0].Record.ID)
}

func TestSearchFilterAppliedBeforeRanking(t *testing.T) {
	s := New()
	newCollection(t, s, 2, domain.MetricCosine)
	ctx := context.Background()
	_, err := s.Insert(ctx, "docs", domain.Record{Text: "match", Embedding: []float32{0, 1},
		Metadata: map[string]string{"source": "a.txt"}})
	require.NoError(t, err)
	_, err = s.Insert(ctx, "docs", domain.Record{Text: "better but filtered", Embedding: []float32{1, 0},
		Metadata: map[string]string{"source": "b.txt"}})
	require.NoError(t, err)

	matches, err := s.Search(ctx, "docs", []float32{1, 0}, 5, map[string]string{"source": "a.txt"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "match", matches[0].Record.Text)
}

func TestSearchL2Metric(t *testing.T) {
	s := New()
	require.NoError(t, s.CreateCollection(context.Background(), domain.Collection{
		Name: "l2", Dimension: 1, Metric: domain.MetricL2}))
	ctx := context.Background()
	s.Insert(ctx, "l2", domain.Record{Text: "near", Embedding: []float32{1}})
	s.Insert(ctx, "l2", domain.Record{Text: "far", Embedding: []float32{10}})
	matches, err := s.Search(ctx, "l2", []float32{0}, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, "near", matches[0].Record.Text)
	assert.Greater(t, matches[0].Score, matches[1].Score)
}

func TestSearchQueryDimensionMismatch(t *testing.T) {
	s := New()
	newCollection(t, s, 2, domain.MetricCosine)
	_, err := s.Search(context.Background(), "docs", []float32{1}, 3, nil)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestListNewestFirst(t *testing.T) {
	s := New()
	newCollection(t, s, 1, domain.MetricCosine)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := s.Insert(ctx, "docs", domain.Record{Text: fmt.Sprintf("r%d", i), Embedding: []float32{1}})
		require.NoError(t, err)
	}
	recs, err := s.List(ctx, "docs", 3)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "r4", recs[0].Text)
	assert.Equal(t, "r2", recs[2].Text)
}

func TestConcurrentInsertsNoLostWrites(t *testing.T) {
	s := New()
	newCollection(t, s, 1, domain.MetricCosine)
	ctx := context.Background()
	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Insert(ctx, "docs", domain.Record{Text: fmt.Sprintf("doc%d", i), Embedding: []float32{float32(i)}})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	count, err := s.Count(ctx, "docs", nil)
	require.NoError(t, err)
	assert.Equal(t, n, count)
}

func TestUnknownCollection(t *testing.T) {
	s := New()
	_, err := s.Search(context.Background(), "ghost", []float32{1}, 1, nil)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}
