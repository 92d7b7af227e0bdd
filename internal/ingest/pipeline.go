// Package ingest turns one content source into zero or more persisted
// vector records: fetch, chunk, embed, insert. Each source is
// independently atomic; failures leave nothing behind.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"

	"ragstack/internal/domain"
)

// Options tunes the pipeline.
type Options struct {
	// Workers bounds concurrent embedding requests per source.
	Workers int
	// Dedup skips sources whose content hash is already stored.
	Dedup bool
}

// Pipeline wires the fetch, chunk, embed and store capabilities.
type Pipeline struct {
	fetcher    domain.Fetcher
	chunker    domain.Chunker
	embedder   domain.Embedder
	store      domain.VectorStore
	collection domain.Collection
	opts       Options
	log        *slog.Logger
}

// New builds a pipeline targeting the given collection.
func New(fetcher domain.Fetcher, chunker domain.Chunker, embedder domain.Embedder,
	store domain.VectorStore, collection domain.Collection, opts Options, log *slog.Logger) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		fetcher:    fetcher,
		chunker:    chunker,
		embedder:   embedder,
		store:      store,
		collection: collection,
		opts:       opts,
		log:        log,
	}
}

// Ingest processes one source end to end and returns the number of
// records written. Any step failure aborts the whole source; partially
// embedded chunks are never inserted.
func (p *Pipeline) Ingest(ctx context.Context, source string) (int, error) {
	if err := p.store.CreateCollection(ctx, p.collection); err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrIngestionFailed, err)
	}

	docs, err := p.fetcher.Fetch(ctx, source)
	if err != nil {
		return 0, err
	}
	p.log.Info("fetched source", "source", source, "documents", len(docs))

	var records []domain.Record
	for _, doc := range docs {
		recs, err := p.prepare(ctx, doc)
		if err != nil {
			return 0, err
		}
		records = append(records, recs...)
	}
	if len(records) == 0 {
		p.log.Info("nothing to ingest", "source", source)
		return 0, nil
	}

	// One transaction for the whole source keeps partial indexing out
	// of the store.
	if _, err := p.store.InsertBatch(ctx, p.collection.Name, records); err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrIngestionFailed, err)
	}
	p.log.Info("ingested source", "source", source, "records", len(records))
	return len(records), nil
}

// prepare chunks and embeds one document into pre-insert records.
func (p *Pipeline) prepare(ctx context.Context, doc domain.Document) ([]domain.Record, error) {
	hash := contentHash(doc.Text)
	if p.opts.Dedup {
		n, err := p.store.Count(ctx, p.collection.Name, map[string]string{domain.MetaContentHash: hash})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrIngestionFailed, err)
		}
		if n > 0 {
			p.log.Info("skipping duplicate content", "source", doc.Source, "hash", hash)
			return nil, nil
		}
	}

	chunks := p.chunker.Chunk(doc)
	if len(chunks) == 0 {
		return nil, nil
	}

	vecs, err := p.embedAll(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("%w: source %s: %w", domain.ErrIngestionFailed, doc.Source, err)
	}

	records := make([]domain.Record, len(chunks))
	for i, text := range chunks {
		if len(vecs[i]) != p.collection.Dimension {
			return nil, fmt.Errorf("%w: chunk %d of %s has dimension %d, collection expects %d",
				domain.ErrDimensionMismatch, i, doc.Source, len(vecs[i]), p.collection.Dimension)
		}
		meta := make(map[string]string, len(doc.Metadata)+2)
		for k, v := range doc.Metadata {
			meta[k] = v
		}
		meta[domain.MetaChunk] = strconv.Itoa(i)
		meta[domain.MetaContentHash] = hash
		records[i] = domain.Record{Text: text, Embedding: vecs[i], Metadata: meta}
	}
	return records, nil
}

// embedAll embeds chunks with bounded concurrency while keeping
// output order aligned with input order.
func (p *Pipeline) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i, text := range texts {
		g.Go(func() error {
			v, err := p.embedder.Embed(gctx, text)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			vecs[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vecs, nil
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// IsSourceError reports whether err came from fetching rather than
// from embedding or storage.
func IsSourceError(err error) bool {
	return errors.Is(err, domain.ErrSourceNotFound) || errors.Is(err, domain.ErrSourceUnreachable)
}
