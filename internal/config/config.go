package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"ragstack/internal/domain"
)

// StoreConfig selects and configures the vector store backend.
type StoreConfig struct {
	Type     string          `yaml:"type"`
	Pgvector *PgvectorConfig `yaml:"pgvector,omitempty"`
	SQLite   *SQLiteConfig   `yaml:"sqlite,omitempty"`
}

// PgvectorConfig contains connection details for Postgres with pgvector.
// Every field may be overridden by the DB_* environment variables.
type PgvectorConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN renders a connection string for the pgx stdlib driver.
func (c PgvectorConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// SQLiteConfig locates the embedded database file.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// CollectionConfig names the target collection and pins its shape.
type CollectionConfig struct {
	Name      string `yaml:"name"`
	Dimension int    `yaml:"dimension"`
	Metric    string `yaml:"metric"`
}

// OllamaConfig configures an Ollama endpoint for embeddings or generation.
type OllamaConfig struct {
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// OpenAIConfig configures an OpenAI-compatible embeddings endpoint.
type OpenAIConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// EmbedderConfig selects and configures the embedding provider.
type EmbedderConfig struct {
	Type   string        `yaml:"type"`
	Ollama *OllamaConfig `yaml:"ollama,omitempty"`
	OpenAI *OpenAIConfig `yaml:"openai,omitempty"`
}

// SynthesizerConfig selects and configures the answer synthesizer.
type SynthesizerConfig struct {
	Type   string        `yaml:"type"`
	Ollama *OllamaConfig `yaml:"ollama,omitempty"`
}

// ChunkerConfig configures how documents are split before embedding.
type ChunkerConfig struct {
	Type              string `yaml:"type"`
	Size              int    `yaml:"size"`
	Overlap           int    `yaml:"overlap"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk"`
	OverlapSentences  int    `yaml:"overlap_sentences"`
}

// IngestConfig tunes the ingestion pipeline.
type IngestConfig struct {
	// WorkerCount bounds concurrent embedding requests per source.
	WorkerCount int `yaml:"workers"`
	// Dedup skips sources whose content hash is already stored.
	Dedup bool `yaml:"dedup"`
	// FetchTimeoutSecs bounds a single source fetch.
	FetchTimeoutSecs int `yaml:"fetch_timeout_secs"`
}

// QueryConfig tunes the retrieval-augmented query engine.
type QueryConfig struct {
	TopK            int     `yaml:"top_k"`
	MaxContextChars int     `yaml:"max_context_chars"`
	MinScore        float64 `yaml:"min_score"`
	// Filter restricts retrieval to records whose metadata matches
	// every entry exactly, e.g. {source: docs/intro.txt}.
	Filter map[string]string `yaml:"filter,omitempty"`
}

// WebConfig configures the read-only record viewer.
type WebConfig struct {
	Addr string `yaml:"addr"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Store       StoreConfig       `yaml:"store"`
	Collection  CollectionConfig  `yaml:"collection"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Synthesizer SynthesizerConfig `yaml:"synthesizer"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Query       QueryConfig       `yaml:"query"`
	Web         WebConfig         `yaml:"web"`
}

// Load reads a config from a specified path. If the file does not
// exist, returns defaults. Environment overrides are applied last.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/ragstack/config.yaml.
// If neither exists, it writes defaults to the user path and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	applyEnvOverrides(cfg)
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate reports every missing required field for the selected
// backends. It runs before any pipeline step touches the network.
func (cfg *AppConfig) Validate() error {
	var missing []string
	if cfg.Collection.Name == "" {
		missing = append(missing, "collection.name")
	}
	if cfg.Collection.Dimension <= 0 {
		missing = append(missing, "collection.dimension")
	}
	if !domain.Metric(cfg.Collection.Metric).Valid() {
		missing = append(missing, "collection.metric")
	}
	switch cfg.Store.Type {
	case "pgvector":
		pg := cfg.Store.Pgvector
		if pg == nil {
			missing = append(missing, "store.pgvector")
			break
		}
		for _, f := range []struct{ name, val string }{
			{"store.pgvector.host (DB_HOST)", pg.Host},
			{"store.pgvector.port (DB_PORT)", pg.Port},
			{"store.pgvector.user (DB_USER)", pg.User},
			{"store.pgvector.password (DB_PASSWORD)", pg.Password},
			{"store.pgvector.database (DB_NAME)", pg.Database},
		} {
			if f.val == "" {
				missing = append(missing, f.name)
			}
		}
	case "sqlite":
		if cfg.Store.SQLite == nil || cfg.Store.SQLite.Path == "" {
			missing = append(missing, "store.sqlite.path")
		}
	case "memory":
	default:
		return fmt.Errorf("%w: unknown store type %q", domain.ErrMissingConfig, cfg.Store.Type)
	}
	switch cfg.Embedder.Type {
	case "ollama", "local":
	case "openai":
		oa := cfg.Embedder.OpenAI
		keyEnv := "OPENAI_API_KEY"
		if oa != nil && oa.APIKeyEnv != "" {
			keyEnv = oa.APIKeyEnv
		}
		if os.Getenv(keyEnv) == "" {
			missing = append(missing, "env "+keyEnv)
		}
	default:
		return fmt.Errorf("%w: unknown embedder type %q", domain.ErrMissingConfig, cfg.Embedder.Type)
	}
	switch cfg.Synthesizer.Type {
	case "ollama", "extractive":
	default:
		return fmt.Errorf("%w: unknown synthesizer type %q", domain.ErrMissingConfig, cfg.Synthesizer.Type)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrMissingConfig, strings.Join(missing, ", "))
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ragstack", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Store: StoreConfig{
			Type:     "pgvector",
			Pgvector: &PgvectorConfig{SSLMode: "disable"},
		},
		Collection: CollectionConfig{
			Name:      "document_vectors",
			Dimension: 768,
			Metric:    string(domain.MetricCosine),
		},
		Embedder: EmbedderConfig{
			Type:   "ollama",
			Ollama: &OllamaConfig{},
		},
		Synthesizer: SynthesizerConfig{
			Type:   "ollama",
			Ollama: &OllamaConfig{Model: "llama3.1:8b"},
		},
		Chunker: ChunkerConfig{Type: "none"},
		Ingest:  IngestConfig{WorkerCount: 4, FetchTimeoutSecs: 30},
		Query:   QueryConfig{TopK: 5, MaxContextChars: 8000},
		Web:     WebConfig{Addr: "127.0.0.1:5000"},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Store.Type == "" {
		cfg.Store.Type = "pgvector"
	}
	if cfg.Store.Type == "pgvector" && cfg.Store.Pgvector == nil {
		cfg.Store.Pgvector = &PgvectorConfig{}
	}
	if cfg.Store.Pgvector != nil && cfg.Store.Pgvector.SSLMode == "" {
		cfg.Store.Pgvector.SSLMode = "disable"
	}
	if cfg.Collection.Name == "" {
		cfg.Collection.Name = "document_vectors"
	}
	if cfg.Collection.Dimension == 0 {
		cfg.Collection.Dimension = 768
	}
	if cfg.Collection.Metric == "" {
		cfg.Collection.Metric = string(domain.MetricCosine)
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "ollama"
	}
	if cfg.Synthesizer.Type == "" {
		cfg.Synthesizer.Type = "ollama"
	}
	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "none"
	}
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 5
	}
	if cfg.Chunker.Size == 0 {
		cfg.Chunker.Size = 1200
	}
	if cfg.Ingest.WorkerCount == 0 {
		cfg.Ingest.WorkerCount = 4
	}
	if cfg.Ingest.FetchTimeoutSecs == 0 {
		cfg.Ingest.FetchTimeoutSecs = 30
	}
	if cfg.Query.TopK == 0 {
		cfg.Query.TopK = 5
	}
	if cfg.Query.MaxContextChars == 0 {
		cfg.Query.MaxContextChars = 8000
	}
	if cfg.Web.Addr == "" {
		cfg.Web.Addr = "127.0.0.1:5000"
	}
}

// applyEnvOverrides folds the DB_* environment variables into the
// pgvector section. godotenv loads .env into the environment earlier.
func applyEnvOverrides(cfg *AppConfig) {
	if cfg.Store.Pgvector == nil {
		cfg.Store.Pgvector = &PgvectorConfig{SSLMode: "disable"}
	}
	pg := cfg.Store.Pgvector
	for _, ov := range []struct {
		env string
		dst *string
	}{
		{"DB_HOST", &pg.Host},
		{"DB_PORT", &pg.Port},
		{"DB_USER", &pg.User},
		{"DB_PASSWORD", &pg.Password},
		{"DB_NAME", &pg.Database},
	} {
		if v := os.Getenv(ov.env); v != "" {
			*ov.dst = v
		}
	}
}
