package web

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragstack/internal/domain"
	"ragstack/internal/vectorstore/memory"
)

func newStore(t *testing.T, n int) *memory.Store {
	t.Helper()
	store := memory.New()
	col := domain.Collection{Name: "docs", Dimension: 2, Metric: domain.MetricCosine}
	require.NoError(t, store.CreateCollection(context.Background(), col))
	for i := 0; i < n; i++ {
		_, err := store.Insert(context.Background(), "docs", domain.Record{
			Text:      fmt.Sprintf("record number %d", i),
			Embedding: []float32{1, 0},
			Metadata:  map[string]string{domain.MetaSource: fmt.Sprintf("doc%d.txt", i)},
		})
		require.NoError(t, err)
	}
	return store
}

func TestIndexListsRecords(t *testing.T) {
	srv := NewServer(newStore(t, 3), "docs", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "record number 0")
	assert.Contains(t, body, "record number 2")
	assert.Contains(t, body, "doc1.txt")
	assert.Contains(t, body, "3 record(s)")
}

func TestIndexEmptyCollection(t *testing.T) {
	srv := NewServer(newStore(t, 0), "docs", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "No records indexed yet.")
}

func TestIndexCapsAtLimit(t *testing.T) {
	srv := NewServer(newStore(t, maxRecords+5), "docs", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	body := rec.Body.String()
	// newest first: the oldest five fall off the page
	assert.Contains(t, body, fmt.Sprintf("record number %d", maxRecords+4))
	assert.NotContains(t, body, "record number 0<")
	assert.NotContains(t, body, "record number 4<")
}

func TestIndexUnknownCollection(t *testing.T) {
	srv := NewServer(memory.New(), "missing", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, 500, rec.Code)
}

func TestIndexEscapesRecordText(t *testing.T) {
	store := newStore(t, 0)
	_, err := store.Insert(context.Background(), "docs", domain.Record{
		Text:      "<script>alert(1)</script>",
		Embedding: []float32{1, 0},
	})
	require.NoError(t, err)

	srv := NewServer(store, "docs", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.NotContains(t, rec.Body.String(), "<script>alert(1)</script>")
	assert.Contains(t, rec.Body.String(), "&lt;script&gt;")
}
