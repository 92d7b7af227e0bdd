// Package memory provides a brute-force in-memory vector store. It
// backs tests and small corpora; durability comes from the sqlite and
// pgvector backends.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/google/uuid"

	"ragstack/internal/domain"
	"ragstack/internal/vectorstore"
)

type collection struct {
	info    domain.Collection
	records []vectorstore.Candidate
	nextSeq int64
}

// Store keeps all records in process. A single RWMutex serializes
// writes while letting searches proceed concurrently.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

var _ domain.VectorStore = (*Store)(nil)

func New() *Store {
	return &Store{collections: make(map[string]*collection)}
}

func (s *Store) CreateCollection(_ context.Context, c domain.Collection) error {
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension %d", domain.ErrDimensionMismatch, c.Dimension)
	}
	if !c.Metric.Valid() {
		return fmt.Errorf("invalid metric %q", c.Metric)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.collections[c.Name]; ok {
		if existing.info.Dimension != c.Dimension || existing.info.Metric != c.Metric {
			return fmt.Errorf("%w: %q has dimension %d metric %s",
				domain.ErrAlreadyExists, c.Name, existing.info.Dimension, existing.info.Metric)
		}
		return nil
	}
	s.collections[c.Name] = &collection{info: c}
	return nil
}

func (s *Store) Insert(ctx context.Context, name string, rec domain.Record) (string, error) {
	ids, err := s.InsertBatch(ctx, name, []domain.Record{rec})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

func (s *Store) InsertBatch(_ context.Context, name string, recs []domain.Record) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown collection %q", domain.ErrStoreUnavailable, name)
	}
	// Validate every record before appending any so a bad batch leaves
	// the collection untouched.
	for _, rec := range recs {
		if err := vectorstore.CheckDimension(rec, col.info.Dimension); err != nil {
			return nil, err
		}
	}
	ids := make([]string, len(recs))
	for i, rec := range recs {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		rec.Metadata = maps.Clone(rec.Metadata)
		ids[i] = rec.ID
		col.records = append(col.records, vectorstore.Candidate{Record: rec, Seq: col.nextSeq})
		col.nextSeq++
	}
	return ids, nil
}

func (s *Store) Search(_ context.Context, name string, embedding []float32, k int, filter map[string]string) ([]domain.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown collection %q", domain.ErrStoreUnavailable, name)
	}
	if len(embedding) != col.info.Dimension {
		return nil, fmt.Errorf("%w: query has %d, collection expects %d",
			domain.ErrDimensionMismatch, len(embedding), col.info.Dimension)
	}
	var cands []vectorstore.Candidate
	for _, c := range col.records {
		if vectorstore.MatchesFilter(c.Record.Metadata, filter) {
			cands = append(cands, c)
		}
	}
	return vectorstore.Rank(col.info.Metric, embedding, cands, k), nil
}

func (s *Store) Count(_ context.Context, name string, filter map[string]string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collections[name]
	if !ok {
		return 0, fmt.Errorf("%w: unknown collection %q", domain.ErrStoreUnavailable, name)
	}
	n := 0
	for _, c := range col.records {
		if vectorstore.MatchesFilter(c.Record.Metadata, filter) {
			n++
		}
	}
	return n, nil
}

func (s *Store) List(_ context.Context, name string, limit int) ([]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown collection %q", domain.ErrStoreUnavailable, name)
	}
	if limit <= 0 || limit > len(col.records) {
		limit = len(col.records)
	}
	out := make([]domain.Record, 0, limit)
	for i := len(col.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, col.records[i].Record)
	}
	return out, nil
}

func (s *Store) Close() error { return nil }
