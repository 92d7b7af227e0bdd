package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragstack/internal/chunker"
	"ragstack/internal/domain"
	"ragstack/internal/embedding"
	"ragstack/internal/fetch"
	"ragstack/internal/ingest"
	"ragstack/internal/synth"
	"ragstack/internal/vectorstore/memory"
)

type stubEmbedder struct {
	vec []float32
	err error
}

func (s stubEmbedder) Name() string   { return "stub" }
func (s stubEmbedder) Dimension() int { return len(s.vec) }
func (s stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	return s.vec, s.err
}
func (s stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = s.vec
	}
	return out, nil
}

// captureSynth records the context it was handed and echoes a fixed answer.
type captureSynth struct {
	gotQuestion string
	gotContext  string
	answer      string
	err         error
}

func (c *captureSynth) Name() string { return "capture" }
func (c *captureSynth) Synthesize(_ context.Context, question, contextText string) (string, error) {
	c.gotQuestion = question
	c.gotContext = contextText
	if c.err != nil {
		return "", c.err
	}
	return c.answer, nil
}

func seedStore(t *testing.T, texts []string, vecs [][]float32) *memory.Store {
	t.Helper()
	store := memory.New()
	col := domain.Collection{Name: "docs", Dimension: len(vecs[0]), Metric: domain.MetricCosine}
	require.NoError(t, store.CreateCollection(context.Background(), col))
	for i, text := range texts {
		_, err := store.Insert(context.Background(), "docs", domain.Record{Text: text, Embedding: vecs[i]})
		require.NoError(t, err)
	}
	return store
}

func TestAnswerUsesRetrievedContext(t *testing.T) {
	store := seedStore(t,
		[]string{"close match", "far match"},
		[][]float32{{1, 0, 0}, {0, 1, 0}},
	)
	capture := &captureSynth{answer: "done"}
	e := New(stubEmbedder{vec: []float32{1, 0, 0}}, store, capture, "docs", Options{TopK: 2}, nil)

	res, err := e.Answer(context.Background(), "which one?")
	require.NoError(t, err)
	assert.Equal(t, "done", res.Answer)
	require.Len(t, res.Matches, 2)
	assert.Equal(t, "close match", res.Matches[0].Record.Text)
	assert.GreaterOrEqual(t, res.Matches[0].Score, res.Matches[1].Score)
	assert.Equal(t, "which one?", capture.gotQuestion)
	assert.Equal(t, "close match\n\nfar match", capture.gotContext)
}

func TestAnswerEmptyStoreStillSynthesizes(t *testing.T) {
	store := memory.New()
	col := domain.Collection{Name: "docs", Dimension: 3, Metric: domain.MetricCosine}
	require.NoError(t, store.CreateCollection(context.Background(), col))

	e := New(stubEmbedder{vec: []float32{1, 0, 0}}, store, synth.NewExtractive(3), "docs", Options{}, nil)
	res, err := e.Answer(context.Background(), "anything?")
	require.NoError(t, err, "empty retrieval is not a retrieval failure")
	assert.Equal(t, synth.NoContextAnswer, res.Answer)
	assert.Empty(t, res.Matches)
}

func TestAnswerEmbedFailure(t *testing.T) {
	store := seedStore(t, []string{"x"}, [][]float32{{1, 0, 0}})
	e := New(stubEmbedder{vec: []float32{1, 0, 0}, err: domain.ErrProviderUnavailable},
		store, &captureSynth{}, "docs", Options{}, nil)

	_, err := e.Answer(context.Background(), "q")
	assert.ErrorIs(t, err, domain.ErrRetrievalFailed)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestAnswerUnknownCollection(t *testing.T) {
	e := New(stubEmbedder{vec: []float32{1, 0, 0}}, memory.New(), &captureSynth{}, "missing", Options{}, nil)
	_, err := e.Answer(context.Background(), "q")
	assert.ErrorIs(t, err, domain.ErrRetrievalFailed)
}

func TestAnswerSynthesisFailure(t *testing.T) {
	store := seedStore(t, []string{"x"}, [][]float32{{1, 0, 0}})
	boom := errors.New("model exploded")
	e := New(stubEmbedder{vec: []float32{1, 0, 0}}, store, &captureSynth{err: boom}, "docs", Options{}, nil)

	_, err := e.Answer(context.Background(), "q")
	assert.ErrorIs(t, err, domain.ErrSynthesisFailed)
	assert.ErrorIs(t, err, boom)
}

func TestAnswerMinScoreThreshold(t *testing.T) {
	store := seedStore(t,
		[]string{"aligned", "orthogonal"},
		[][]float32{{1, 0, 0}, {0, 1, 0}},
	)
	capture := &captureSynth{answer: "ok"}
	e := New(stubEmbedder{vec: []float32{1, 0, 0}}, store, capture, "docs",
		Options{TopK: 5, MinScore: 0.5}, nil)

	res, err := e.Answer(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "aligned", res.Matches[0].Record.Text)
}

func TestBuildContextDropsLowestRankedFirst(t *testing.T) {
	long := strings.Repeat("b", 50)
	store := seedStore(t,
		[]string{"top text.", long},
		[][]float32{{1, 0, 0}, {0.9, 0.1, 0}},
	)
	capture := &captureSynth{answer: "ok"}
	e := New(stubEmbedder{vec: []float32{1, 0, 0}}, store, capture, "docs",
		Options{TopK: 2, MaxContextChars: 20}, nil)

	_, err := e.Answer(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "top text.", capture.gotContext, "second match must be dropped, not truncated into")
}

func TestBuildContextTruncatesLoneTopMatch(t *testing.T) {
	store := seedStore(t, []string{strings.Repeat("a", 100)}, [][]float32{{1, 0, 0}})
	capture := &captureSynth{answer: "ok"}
	e := New(stubEmbedder{vec: []float32{1, 0, 0}}, store, capture, "docs",
		Options{TopK: 1, MaxContextChars: 10}, nil)

	_, err := e.Answer(context.Background(), "q")
	require.NoError(t, err)
	assert.Len(t, capture.gotContext, 10)
}

func TestBuildContextTruncationKeepsRunesWhole(t *testing.T) {
	store := seedStore(t, []string{strings.Repeat("héllo wörld ", 20)}, [][]float32{{1, 0, 0}})
	capture := &captureSynth{answer: "ok"}
	e := New(stubEmbedder{vec: []float32{1, 0, 0}}, store, capture, "docs",
		Options{TopK: 1, MaxContextChars: 15}, nil)

	_, err := e.Answer(context.Background(), "q")
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(capture.gotContext))
	assert.LessOrEqual(t, len(capture.gotContext), 15)
	assert.NotEmpty(t, capture.gotContext)
}

func TestAnswerAppliesMetadataFilter(t *testing.T) {
	store := memory.New()
	col := domain.Collection{Name: "docs", Dimension: 3, Metric: domain.MetricCosine}
	require.NoError(t, store.CreateCollection(context.Background(), col))
	for _, r := range []domain.Record{
		{Text: "from intro", Embedding: []float32{1, 0, 0}, Metadata: map[string]string{domain.MetaSource: "intro.txt"}},
		{Text: "from appendix", Embedding: []float32{1, 0, 0}, Metadata: map[string]string{domain.MetaSource: "appendix.txt"}},
	} {
		_, err := store.Insert(context.Background(), "docs", r)
		require.NoError(t, err)
	}

	capture := &captureSynth{answer: "ok"}
	e := New(stubEmbedder{vec: []float32{1, 0, 0}}, store, capture, "docs",
		Options{TopK: 5, Filter: map[string]string{domain.MetaSource: "intro.txt"}}, nil)

	res, err := e.Answer(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "from intro", res.Matches[0].Record.Text)
	assert.Equal(t, "from intro", capture.gotContext)
}

func TestStateTransitions(t *testing.T) {
	e := New(stubEmbedder{vec: []float32{1}}, memory.New(), &captureSynth{}, "docs", Options{}, nil)
	assert.Equal(t, StateIdle, e.State())
	e.processing.Add(1)
	assert.Equal(t, StateProcessing, e.State())
	e.processing.Add(-1)
	assert.Equal(t, StateIdle, e.State())
}

// Full loop: index a file offline and ask about its content.
func TestIngestThenAnswerRoundTrip(t *testing.T) {
	const dim = 128
	store := memory.New()
	emb := embedding.NewLocal(dim)
	col := domain.Collection{Name: "docs", Dimension: dim, Metric: domain.MetricCosine}

	dir := t.TempDir()
	facts := map[string]string{
		"sky.txt":   "The sky is blue.",
		"grass.txt": "The grass is green.",
		"sun.txt":   "The sun is a star at the center of the solar system.",
	}
	for name, text := range facts {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(text), 0o644))
	}

	p := ingest.New(fetch.New(time.Second), chunker.None{}, emb, store, col, ingest.Options{}, nil)
	n, err := p.Ingest(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	e := New(emb, store, synth.NewExtractive(1), "docs", Options{TopK: 2}, nil)
	res, err := e.Answer(context.Background(), "What color is the sky?")
	require.NoError(t, err)
	assert.Contains(t, strings.ToLower(res.Answer), "blue")
	require.NotEmpty(t, res.Matches)
	assert.Equal(t, "The sky is blue.", res.Matches[0].Record.Text)
	assert.NotEmpty(t, res.Matches[0].Record.Metadata[domain.MetaSource])
}
