// Package cli wires configuration, backends and pipelines into the
// ragstack command tree.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"ragstack/internal/chunker"
	"ragstack/internal/config"
	"ragstack/internal/domain"
	"ragstack/internal/embedding"
	"ragstack/internal/engine"
	"ragstack/internal/fetch"
	"ragstack/internal/synth"
	"ragstack/internal/vectorstore/memory"
	"ragstack/internal/vectorstore/pgvector"
	"ragstack/internal/vectorstore/sqlite"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "ragstack",
	Short: "Index documents and answer questions over them",
	Long: `ragstack embeds documents into a vector store and answers
questions with retrieval-augmented generation.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"path to YAML config (default ./config.yaml, then ~/.config/ragstack/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(ingestCmd, queryCmd, tuiCmd, webCmd)
}

// Execute runs the command tree.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app bundles the configured backends shared by every subcommand.
type app struct {
	cfg   *config.AppConfig
	log   *slog.Logger
	store domain.VectorStore
}

// newApp loads and validates configuration, then opens the store.
func newApp(ctx context.Context) (*app, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if cfgFile != "" {
		cfg, err = config.Load(cfgFile)
	} else {
		cfg, _, err = config.LoadDefault()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: slog.Default()}
	switch cfg.Store.Type {
	case "memory":
		a.store = memory.New()
	case "sqlite":
		a.store, err = sqlite.New(cfg.Store.SQLite.Path)
	case "pgvector":
		a.store, err = pgvector.Open(ctx, cfg.Store.Pgvector.DSN())
	}
	if err != nil {
		return nil, err
	}
	a.log.Debug("store opened", "type", cfg.Store.Type, "collection", cfg.Collection.Name)
	return a, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("closing store", "error", err)
	}
}

func (a *app) collection() domain.Collection {
	return domain.Collection{
		Name:      a.cfg.Collection.Name,
		Dimension: a.cfg.Collection.Dimension,
		Metric:    domain.Metric(a.cfg.Collection.Metric),
	}
}

func (a *app) embedder() (domain.Embedder, error) {
	switch a.cfg.Embedder.Type {
	case "ollama":
		oc := a.cfg.Embedder.Ollama
		if oc == nil {
			oc = &config.OllamaConfig{}
		}
		return embedding.NewOllama(embedding.OllamaConfig{
			BaseURL:   oc.BaseURL,
			Model:     oc.Model,
			Timeout:   time.Duration(oc.TimeoutSecs) * time.Second,
			Dimension: a.cfg.Collection.Dimension,
		}), nil
	case "openai":
		oc := a.cfg.Embedder.OpenAI
		if oc == nil {
			oc = &config.OpenAIConfig{}
		}
		return embedding.NewOpenAI(embedding.OpenAIConfig{
			BaseURL:   oc.BaseURL,
			APIKeyEnv: oc.APIKeyEnv,
			Model:     oc.Model,
			Timeout:   time.Duration(oc.TimeoutSecs) * time.Second,
			Dimension: a.cfg.Collection.Dimension,
		})
	case "local":
		return embedding.NewLocal(a.cfg.Collection.Dimension), nil
	default:
		return nil, fmt.Errorf("%w: unknown embedder type %q", domain.ErrMissingConfig, a.cfg.Embedder.Type)
	}
}

func (a *app) synthesizer() (domain.Synthesizer, error) {
	switch a.cfg.Synthesizer.Type {
	case "ollama":
		oc := a.cfg.Synthesizer.Ollama
		if oc == nil {
			oc = &config.OllamaConfig{}
		}
		return synth.NewOllama(synth.OllamaConfig{
			BaseURL: oc.BaseURL,
			Model:   oc.Model,
			Timeout: time.Duration(oc.TimeoutSecs) * time.Second,
		}), nil
	case "extractive":
		return synth.NewExtractive(0), nil
	default:
		return nil, fmt.Errorf("%w: unknown synthesizer type %q", domain.ErrMissingConfig, a.cfg.Synthesizer.Type)
	}
}

func (a *app) chunker() (domain.Chunker, error) {
	c := a.cfg.Chunker
	switch c.Type {
	case "none":
		return chunker.None{}, nil
	case "fixed":
		return chunker.NewFixed(c.Size, c.Overlap), nil
	case "sentence":
		return chunker.NewSentence(c.SentencesPerChunk, c.OverlapSentences), nil
	default:
		return nil, fmt.Errorf("%w: unknown chunker type %q", domain.ErrMissingConfig, c.Type)
	}
}

func (a *app) fetcher() domain.Fetcher {
	return fetch.New(time.Duration(a.cfg.Ingest.FetchTimeoutSecs) * time.Second)
}

func (a *app) engine() (*engine.Engine, error) {
	emb, err := a.embedder()
	if err != nil {
		return nil, err
	}
	syn, err := a.synthesizer()
	if err != nil {
		return nil, err
	}
	return engine.New(emb, a.store, syn, a.cfg.Collection.Name, engine.Options{
		TopK:            a.cfg.Query.TopK,
		MaxContextChars: a.cfg.Query.MaxContextChars,
		MinScore:        a.cfg.Query.MinScore,
		Filter:          a.cfg.Query.Filter,
	}, a.log), nil
}
