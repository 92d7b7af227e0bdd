// Package pgvector provides a Postgres-backed vector store using the
// pgvector extension. Each collection maps to its own table with a
// typed vector(D) column so distance ranking runs inside the database.
package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
	"github.com/jmoiron/sqlx"

	"ragstack/internal/domain"
	"ragstack/internal/vectorstore"
)

// catalogTable records the shape of every collection so a second
// CreateCollection with a different dimension can be rejected.
const catalogTable = "ragstack_collections"

var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)

// Store is a pgvector-backed vector store.
type Store struct {
	db *sqlx.DB
}

var _ domain.VectorStore = (*Store)(nil)

// Open connects with the pgx stdlib driver and prepares the catalog
// and the vector extension.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	s := &Store{db: db}
	if err := s.bootstrap(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing connection, mainly for tests.
func NewWithDB(ctx context.Context, db *sqlx.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.bootstrap(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) bootstrap(ctx context.Context) error {
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
			name      TEXT PRIMARY KEY,
			dimension INTEGER NOT NULL,
			metric    TEXT NOT NULL
		)`, catalogTable),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) CreateCollection(ctx context.Context, c domain.Collection) error {
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension %d", domain.ErrDimensionMismatch, c.Dimension)
	}
	if !c.Metric.Valid() {
		return fmt.Errorf("invalid metric %q", c.Metric)
	}
	if !identRe.MatchString(c.Name) {
		return fmt.Errorf("invalid collection name %q", c.Name)
	}
	existing, err := s.collection(ctx, c.Name)
	switch {
	case err == nil:
		if existing.Dimension != c.Dimension || existing.Metric != c.Metric {
			return fmt.Errorf("%w: %q has dimension %d metric %s",
				domain.ErrAlreadyExists, c.Name, existing.Dimension, existing.Metric)
		}
		return nil
	case errors.Is(err, sql.ErrNoRows):
	default:
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
		seq        BIGSERIAL,
		id         UUID PRIMARY KEY,
		content    TEXT NOT NULL,
		embedding  vector(%d) NOT NULL,
		metadata   JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, c.Name, c.Dimension)
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("%w: creating collection table: %v", domain.ErrStoreUnavailable, err)
	}
	insert := fmt.Sprintf(
		`INSERT INTO %q (name, dimension, metric) VALUES ($1, $2, $3) ON CONFLICT (name) DO NOTHING`,
		catalogTable)
	if _, err := tx.ExecContext(ctx, insert, c.Name, c.Dimension, string(c.Metric)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// collection loads the catalog entry; sql.ErrNoRows passes through so
// CreateCollection can distinguish "absent" from "broken".
func (s *Store) collection(ctx context.Context, name string) (domain.Collection, error) {
	var c domain.Collection
	var metric string
	q := fmt.Sprintf("SELECT name, dimension, metric FROM %q WHERE name = $1", catalogTable)
	err := s.db.QueryRowContext(ctx, q, name).Scan(&c.Name, &c.Dimension, &metric)
	if errors.Is(err, sql.ErrNoRows) {
		return c, err
	}
	if err != nil {
		return c, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	c.Metric = domain.Metric(metric)
	return c, nil
}

func (s *Store) lookup(ctx context.Context, name string) (domain.Collection, error) {
	c, err := s.collection(ctx, name)
	if errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("%w: unknown collection %q", domain.ErrStoreUnavailable, name)
	}
	return c, err
}

func (s *Store) Insert(ctx context.Context, name string, rec domain.Record) (string, error) {
	ids, err := s.InsertBatch(ctx, name, []domain.Record{rec})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// InsertBatch writes all records inside one transaction; Postgres MVCC
// keeps concurrent batches from different sources independent.
func (s *Store) InsertBatch(ctx context.Context, name string, recs []domain.Record) ([]string, error) {
	col, err := s.lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if err := vectorstore.CheckDimension(rec, col.Dimension); err != nil {
			return nil, err
		}
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	q := fmt.Sprintf(
		"INSERT INTO %q (id, content, embedding, metadata) VALUES ($1, $2, $3::vector, $4)", name)
	ids := make([]string, len(recs))
	for i, rec := range recs {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		meta, err := json.Marshal(rec.Metadata)
		if err != nil {
			return nil, fmt.Errorf("%w: encoding metadata: %v", domain.ErrStoreUnavailable, err)
		}
		if _, err := tx.ExecContext(ctx, q, rec.ID, rec.Text, vectorToString(rec.Embedding), string(meta)); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
		ids[i] = rec.ID
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return ids, nil
}

// Search ranks inside Postgres with the metric's pgvector operator and
// breaks distance ties by insertion order.
func (s *Store) Search(ctx context.Context, name string, embedding []float32, k int, filter map[string]string) ([]domain.Match, error) {
	col, err := s.lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(embedding) != col.Dimension {
		return nil, fmt.Errorf("%w: query has %d, collection expects %d",
			domain.ErrDimensionMismatch, len(embedding), col.Dimension)
	}
	if k <= 0 {
		return []domain.Match{}, nil
	}

	op, scoreExpr := "<=>", "1 - (embedding <=> $1::vector)"
	if col.Metric == domain.MetricL2 {
		op, scoreExpr = "<->", "1 / (1 + (embedding <-> $1::vector))"
	}
	q := fmt.Sprintf(
		`SELECT id, content, embedding::text, metadata, %s AS score
		 FROM %q`, scoreExpr, name)
	args := []any{vectorToString(embedding)}
	if len(filter) > 0 {
		f, err := json.Marshal(filter)
		if err != nil {
			return nil, fmt.Errorf("%w: encoding filter: %v", domain.ErrStoreUnavailable, err)
		}
		q += " WHERE metadata @> $2::jsonb"
		args = append(args, string(f))
	}
	q += fmt.Sprintf(" ORDER BY embedding %s $1::vector ASC, seq ASC LIMIT %d", op, k)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	matches := []domain.Match{}
	for rows.Next() {
		var (
			rec     domain.Record
			vecText string
			meta    []byte
			score   float64
		)
		if err := rows.Scan(&rec.ID, &rec.Text, &vecText, &meta, &score); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
		if rec.Embedding, err = parseVector(vecText); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
		if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("%w: decoding metadata: %v", domain.ErrStoreUnavailable, err)
		}
		matches = append(matches, domain.Match{Record: rec, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return matches, nil
}

func (s *Store) Count(ctx context.Context, name string, filter map[string]string) (int, error) {
	if _, err := s.lookup(ctx, name); err != nil {
		return 0, err
	}
	q := fmt.Sprintf("SELECT COUNT(*) FROM %q", name)
	args := []any{}
	if len(filter) > 0 {
		f, err := json.Marshal(filter)
		if err != nil {
			return 0, fmt.Errorf("%w: encoding filter: %v", domain.ErrStoreUnavailable, err)
		}
		q += " WHERE metadata @> $1::jsonb"
		args = append(args, string(f))
	}
	var n int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return n, nil
}

func (s *Store) List(ctx context.Context, name string, limit int) ([]domain.Record, error) {
	if _, err := s.lookup(ctx, name); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	q := fmt.Sprintf(
		"SELECT id, content, embedding::text, metadata FROM %q ORDER BY seq DESC LIMIT %d", name, limit)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()
	var recs []domain.Record
	for rows.Next() {
		var (
			rec     domain.Record
			vecText string
			meta    []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Text, &vecText, &meta); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
		if rec.Embedding, err = parseVector(vecText); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
		if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("%w: decoding metadata: %v", domain.ErrStoreUnavailable, err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return recs, nil
}

// vectorToString renders the pgvector text format: [0.1,0.2,...].
func vectorToString(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func parseVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("malformed vector %q", s)
	}
	inner := s[1 : len(s)-1]
	if inner == "" {
		return []float32{}, nil
	}
	parts := strings.Split(inner, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("malformed vector element %q: %w", p, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}
