// Package sqlite provides an embedded vector store backed by
// modernc.org/sqlite. Embeddings are stored as little-endian float32
// blobs and ranked in process; WAL mode plus a busy timeout keeps
// concurrent ingestion and search safe.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"ragstack/internal/domain"
	"ragstack/internal/vectorstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS collections (
	name      TEXT PRIMARY KEY,
	dimension INTEGER NOT NULL,
	metric    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS records (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	collection TEXT NOT NULL REFERENCES collections(name),
	content    TEXT NOT NULL,
	embedding  BLOB NOT NULL,
	metadata   TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);
CREATE INDEX IF NOT EXISTS idx_records_collection ON records(collection);
`

// Store is a SQLite-backed vector store.
type Store struct {
	db   *sql.DB
	path string
}

var _ domain.VectorStore = (*Store)(nil)

// New opens (or creates) the database at path and bootstraps the schema.
func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("%w: creating data directory: %v", domain.ErrStoreUnavailable, err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: enabling foreign keys: %v", domain.ErrStoreUnavailable, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: bootstrapping schema: %v", domain.ErrStoreUnavailable, err)
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) CreateCollection(ctx context.Context, c domain.Collection) error {
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension %d", domain.ErrDimensionMismatch, c.Dimension)
	}
	if !c.Metric.Valid() {
		return fmt.Errorf("invalid metric %q", c.Metric)
	}
	var dim int
	var metric string
	err := s.db.QueryRowContext(ctx,
		"SELECT dimension, metric FROM collections WHERE name = ?", c.Name).Scan(&dim, &metric)
	switch {
	case err == nil:
		if dim != c.Dimension || domain.Metric(metric) != c.Metric {
			return fmt.Errorf("%w: %q has dimension %d metric %s",
				domain.ErrAlreadyExists, c.Name, dim, metric)
		}
		return nil
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.ExecContext(ctx,
			"INSERT INTO collections (name, dimension, metric) VALUES (?, ?, ?)",
			c.Name, c.Dimension, string(c.Metric))
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
}

func (s *Store) collection(ctx context.Context, name string) (domain.Collection, error) {
	var c domain.Collection
	var metric string
	err := s.db.QueryRowContext(ctx,
		"SELECT name, dimension, metric FROM collections WHERE name = ?", name).
		Scan(&c.Name, &c.Dimension, &metric)
	if errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("%w: unknown collection %q", domain.ErrStoreUnavailable, name)
	}
	if err != nil {
		return c, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	c.Metric = domain.Metric(metric)
	return c, nil
}

func (s *Store) Insert(ctx context.Context, name string, rec domain.Record) (string, error) {
	ids, err := s.InsertBatch(ctx, name, []domain.Record{rec})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// InsertBatch writes all records in one transaction; a failure rolls
// every record back.
func (s *Store) InsertBatch(ctx context.Context, name string, recs []domain.Record) ([]string, error) {
	col, err := s.collection(ctx, name)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if err := vectorstore.CheckDimension(rec, col.Dimension); err != nil {
			return nil, err
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO records (id, collection, content, embedding, metadata) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	defer stmt.Close()

	ids := make([]string, len(recs))
	for i, rec := range recs {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		meta, err := json.Marshal(rec.Metadata)
		if err != nil {
			return nil, fmt.Errorf("%w: encoding metadata: %v", domain.ErrStoreUnavailable, err)
		}
		if _, err := stmt.ExecContext(ctx, rec.ID, name, rec.Text, encodeVector(rec.Embedding), string(meta)); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
		ids[i] = rec.ID
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return ids, nil
}

func (s *Store) Search(ctx context.Context, name string, embedding []float32, k int, filter map[string]string) ([]domain.Match, error) {
	col, err := s.collection(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(embedding) != col.Dimension {
		return nil, fmt.Errorf("%w: query has %d, collection expects %d",
			domain.ErrDimensionMismatch, len(embedding), col.Dimension)
	}
	cands, err := s.scan(ctx, name, filter, 0)
	if err != nil {
		return nil, err
	}
	return vectorstore.Rank(col.Metric, embedding, cands, k), nil
}

func (s *Store) Count(ctx context.Context, name string, filter map[string]string) (int, error) {
	if _, err := s.collection(ctx, name); err != nil {
		return 0, err
	}
	if len(filter) == 0 {
		var n int
		err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM records WHERE collection = ?", name).Scan(&n)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
		return n, nil
	}
	cands, err := s.scan(ctx, name, filter, 0)
	if err != nil {
		return 0, err
	}
	return len(cands), nil
}

func (s *Store) List(ctx context.Context, name string, limit int) ([]domain.Record, error) {
	if _, err := s.collection(ctx, name); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = math.MaxInt32
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, content, embedding, metadata FROM records WHERE collection = ? ORDER BY seq DESC LIMIT ?",
		name, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()
	var recs []domain.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return recs, nil
}

// scan loads candidate records for a collection. The exact-match
// metadata filter is pushed into SQL via json_extract; rows are
// re-checked in Go as a guard against type coercion.
func (s *Store) scan(ctx context.Context, name string, filter map[string]string, limit int) ([]vectorstore.Candidate, error) {
	q := "SELECT id, content, embedding, metadata, seq FROM records WHERE collection = ?"
	args := []any{name}
	for k, v := range filter {
		q += " AND json_extract(metadata, ?) = ?"
		args = append(args, "$."+k, v)
	}
	q += " ORDER BY seq ASC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()
	var cands []vectorstore.Candidate
	for rows.Next() {
		var (
			rec  domain.Record
			blob []byte
			meta string
			seq  int64
		)
		if err := rows.Scan(&rec.ID, &rec.Text, &blob, &meta, &seq); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
		rec.Embedding = decodeVector(blob)
		if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("%w: decoding metadata: %v", domain.ErrStoreUnavailable, err)
		}
		if !vectorstore.MatchesFilter(rec.Metadata, filter) {
			continue
		}
		cands = append(cands, vectorstore.Candidate{Record: rec, Seq: seq})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return cands, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(r rowScanner) (domain.Record, error) {
	var (
		rec  domain.Record
		blob []byte
		meta string
	)
	if err := r.Scan(&rec.ID, &rec.Text, &blob, &meta); err != nil {
		return rec, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	rec.Embedding = decodeVector(blob)
	if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
		return rec, fmt.Errorf("%w: decoding metadata: %v", domain.ErrStoreUnavailable, err)
	}
	return rec, nil
}

// encodeVector packs float32s into a little-endian blob.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
