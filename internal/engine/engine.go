// Package engine implements the retrieval-augmented query path:
// embed the question, search the collection, assemble a ranked
// context, delegate to the answer synthesizer.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"ragstack/internal/domain"
)

// Engine states.
const (
	StateIdle       = "idle"
	StateProcessing = "processing"
)

// Options tunes retrieval and context assembly.
type Options struct {
	// TopK is the number of records retrieved per query.
	TopK int
	// MaxContextChars caps the assembled context; lowest-ranked
	// entries are dropped first.
	MaxContextChars int
	// MinScore drops matches below the threshold. Zero keeps everything.
	MinScore float64
	// Filter restricts retrieval to records whose metadata matches
	// every entry exactly. Nil searches the whole collection.
	Filter map[string]string
}

// Result carries the synthesized answer plus the matches used as
// context, so callers can show provenance.
type Result struct {
	Answer  string
	Matches []domain.Match
}

// Engine answers questions over one collection. Independent queries
// may run concurrently; the engine holds no locks across provider or
// store calls.
type Engine struct {
	embedder   domain.Embedder
	store      domain.VectorStore
	synth      domain.Synthesizer
	collection string
	opts       Options
	log        *slog.Logger
	processing atomic.Int64
}

// New builds a query engine over the named collection.
func New(embedder domain.Embedder, store domain.VectorStore, synth domain.Synthesizer,
	collection string, opts Options, log *slog.Logger) *Engine {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.MaxContextChars <= 0 {
		opts.MaxContextChars = 8000
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		embedder:   embedder,
		store:      store,
		synth:      synth,
		collection: collection,
		opts:       opts,
		log:        log,
	}
}

// State reports idle or processing, for observability only.
func (e *Engine) State() string {
	if e.processing.Load() > 0 {
		return StateProcessing
	}
	return StateIdle
}

// Answer runs one query end to end. Retrieval failures surface as
// ErrRetrievalFailed and synthesis failures as ErrSynthesisFailed; an
// empty retrieval is not an error — the synthesizer still runs with an
// explicit no-context signal. The store is never written.
func (e *Engine) Answer(ctx context.Context, question string) (Result, error) {
	e.processing.Add(1)
	defer e.processing.Add(-1)

	vec, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return Result{}, fmt.Errorf("%w: embedding query: %w", domain.ErrRetrievalFailed, err)
	}
	matches, err := e.store.Search(ctx, e.collection, vec, e.opts.TopK, e.opts.Filter)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", domain.ErrRetrievalFailed, err)
	}
	matches = e.applyThreshold(matches)
	e.log.Debug("retrieved context", "question", question, "matches", len(matches))

	contextText := e.buildContext(matches)
	answer, err := e.synth.Synthesize(ctx, question, contextText)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", domain.ErrSynthesisFailed, err)
	}
	return Result{Answer: answer, Matches: matches}, nil
}

func (e *Engine) applyThreshold(matches []domain.Match) []domain.Match {
	if e.opts.MinScore <= 0 {
		return matches
	}
	kept := matches[:0]
	for _, m := range matches {
		if m.Score >= e.opts.MinScore {
			kept = append(kept, m)
		}
	}
	return kept
}

// buildContext concatenates retrieved texts in rank order up to the
// character budget. Truncation removes lowest-ranked entries first;
// only the top match may itself be cut to fit.
func (e *Engine) buildContext(matches []domain.Match) string {
	var b strings.Builder
	for i, m := range matches {
		text := strings.TrimSpace(m.Record.Text)
		if text == "" {
			continue
		}
		sep := 0
		if b.Len() > 0 {
			sep = 2
		}
		if b.Len()+sep+len(text) > e.opts.MaxContextChars {
			if i == 0 {
				return truncate(text, e.opts.MaxContextChars)
			}
			break
		}
		if sep > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}
	return b.String()
}

// truncate cuts s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
