package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"course-rag/internal/models"
)

type Config struct {
	LLM      LLMConfig       `yaml:"llm" toml:"llm"`
	EmbedLLM EmbeddingConfig `yaml:"embed_llm" toml:"embed_llm"`
	RAG      RAGConfig       `yaml:"rag" toml:"rag"`
	Index    IndexConfig     `yaml:"index" toml:"index"`
	Database DatabaseConfig  `yaml:"database" toml:"database"`
	Server   ServerConfig    `yaml:"server" toml:"server"`
	Log      LogConfig       `yaml:"log" toml:"log"`
}

// LLMConfig selects the chat model used by the orchestrator.
type LLMConfig struct {
	Provider          string  `yaml:"provider" toml:"provider"` // deepseek, openai, ollama
	BaseURL           string  `yaml:"base_url" toml:"base_url"`
	Model             string  `yaml:"model" toml:"model"`
	Key               string  `yaml:"key" toml:"key"`
	MaxTokens         int     `yaml:"max_tokens" toml:"max_tokens"`
	MaxToolRounds     int     `yaml:"max_tool_rounds" toml:"max_tool_rounds"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
	TimeoutSecs       int     `yaml:"timeout_secs" toml:"timeout_secs"`
}

// EmbeddingConfig selects the embedding function shared by both collections.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider" toml:"provider"` // ollama, openai, siliconflow, hash
	BaseURL    string `yaml:"base_url" toml:"base_url"`
	Model      string `yaml:"model" toml:"model"`
	Key        string `yaml:"key" toml:"key"`
	Dimensions int    `yaml:"dimensions" toml:"dimensions"`
}

type RAGConfig struct {
	ChunkSize            int     `yaml:"chunk_size" toml:"chunk_size"`
	ChunkOverlap         int     `yaml:"chunk_overlap" toml:"chunk_overlap"`
	MaxResults           int     `yaml:"max_results" toml:"max_results"`
	MaxHistory           int     `yaml:"max_history" toml:"max_history"` // user/assistant pairs
	CourseMatchThreshold float32 `yaml:"course_match_threshold" toml:"course_match_threshold"`
	DocsPath             string  `yaml:"docs_path" toml:"docs_path"`
	IngestWorkers        int     `yaml:"ingest_workers" toml:"ingest_workers"`
}

type IndexConfig struct {
	Backend  string `yaml:"backend" toml:"backend"` // chromem, postgres
	Path     string `yaml:"path" toml:"path"`
	InMemory bool   `yaml:"in_memory" toml:"in_memory"`
	Compress bool   `yaml:"compress" toml:"compress"`
}

type DatabaseConfig struct {
	DSN      string `yaml:"dsn" toml:"dsn"`
	Password string `yaml:"password" toml:"password"`
	Debug    bool   `yaml:"debug" toml:"debug"`
}

type ServerConfig struct {
	Addr                string `yaml:"addr" toml:"addr"`
	ShutdownTimeoutSecs int    `yaml:"shutdown_timeout_secs" toml:"shutdown_timeout_secs"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // console, json
}

const (
	defaultLLMProvider   = "deepseek"
	defaultLLMModel      = "deepseek-chat"
	defaultDeepSeekURL   = "https://api.deepseek.com"
	defaultOllamaURL     = "http://localhost:11434"
	defaultMaxTokens     = 800
	defaultToolRounds    = 1
	defaultTimeoutSecs   = 60
	defaultEmbedProvider = "ollama"
	defaultEmbedModel    = "all-minilm"
	defaultChunkSize     = 800
	defaultChunkOverlap  = 100
	defaultMaxResults    = 5
	defaultMaxHistory    = 5
	defaultThreshold     = 0.5
	defaultDocsPath      = "../docs"
	defaultIngestWorkers = 4
	defaultIndexBackend  = "chromem"
	defaultIndexPath     = "./chroma_db"
	defaultAddr          = ":8000"
	defaultShutdownSecs  = 10
	defaultLogLevel      = "info"
	defaultLogFormat     = "console"
)

// Default returns a configuration with every option at its default.
func Default() *Config {
	cfg := defaults()
	cfg.RAG.ChunkOverlap = defaultOverlap(cfg.RAG.ChunkSize)
	applyDerived(cfg)
	return cfg
}

// LoadConfig reads a YAML or TOML file (chosen by extension) over the
// defaults and fills empty secrets from the environment. Keys absent from the
// file keep their defaults; a key set to 0 stays 0. A missing file yields the
// defaults.
func LoadConfig(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := defaults()
	overlapSet := false
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		var keys overlapKey
		if err := decode(path, data, &keys); err == nil {
			overlapSet = keys.RAG.ChunkOverlap != nil
		}
	case errors.Is(err, os.ErrNotExist) || path == "":
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if !overlapSet {
		cfg.RAG.ChunkOverlap = defaultOverlap(cfg.RAG.ChunkSize)
	}
	applyDerived(cfg)
	applyEnv(cfg)
	return cfg, nil
}

// overlapKey detects an explicit rag.chunk_overlap, which may legitimately be 0.
type overlapKey struct {
	RAG struct {
		ChunkOverlap *int `yaml:"chunk_overlap" toml:"chunk_overlap"`
	} `yaml:"rag" toml:"rag"`
}

func decode(path string, data []byte, v any) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.Unmarshal(data, v)
	default:
		return yaml.Unmarshal(data, v)
	}
}

func defaults() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:      defaultLLMProvider,
			Model:         defaultLLMModel,
			MaxTokens:     defaultMaxTokens,
			MaxToolRounds: defaultToolRounds,
			TimeoutSecs:   defaultTimeoutSecs,
		},
		EmbedLLM: EmbeddingConfig{
			Provider: defaultEmbedProvider,
			Model:    defaultEmbedModel,
		},
		RAG: RAGConfig{
			ChunkSize:            defaultChunkSize,
			MaxResults:           defaultMaxResults,
			MaxHistory:           defaultMaxHistory,
			CourseMatchThreshold: defaultThreshold,
			DocsPath:             defaultDocsPath,
			IngestWorkers:        defaultIngestWorkers,
		},
		Index: IndexConfig{
			Backend: defaultIndexBackend,
			Path:    defaultIndexPath,
		},
		Server: ServerConfig{
			Addr:                defaultAddr,
			ShutdownTimeoutSecs: defaultShutdownSecs,
		},
		Log: LogConfig{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}

// defaultOverlap keeps the default overlap below small chunk sizes.
func defaultOverlap(size int) int {
	if size <= 0 {
		return defaultChunkOverlap
	}
	return min(defaultChunkOverlap, size/8)
}

// applyDerived fills options whose default depends on the provider.
func applyDerived(cfg *Config) {
	if cfg.LLM.BaseURL == "" {
		switch cfg.LLM.Provider {
		case "deepseek":
			cfg.LLM.BaseURL = defaultDeepSeekURL
		case "ollama":
			cfg.LLM.BaseURL = defaultOllamaURL
		}
	}
	if cfg.EmbedLLM.BaseURL == "" && cfg.EmbedLLM.Provider == "ollama" {
		cfg.EmbedLLM.BaseURL = defaultOllamaURL
	}
}

// applyEnv fills secrets that were left empty in the file.
func applyEnv(cfg *Config) {
	if cfg.LLM.Key == "" {
		switch cfg.LLM.Provider {
		case "deepseek":
			cfg.LLM.Key = os.Getenv("DEEPSEEK_API_KEY")
		case "openai":
			cfg.LLM.Key = os.Getenv("OPENAI_API_KEY")
		}
	}
	if cfg.EmbedLLM.Key == "" {
		cfg.EmbedLLM.Key = os.Getenv("COURSE_RAG_EMBEDDING_API_KEY")
		if cfg.EmbedLLM.Key == "" && cfg.EmbedLLM.Provider == "openai" {
			cfg.EmbedLLM.Key = os.Getenv("OPENAI_API_KEY")
		}
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = os.Getenv("COURSE_RAG_PG_DSN")
	}
}

// Validate reports static configuration errors that must abort startup.
func (c *Config) Validate() error {
	var errs []error
	if c.RAG.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk_size must be positive, got %d", c.RAG.ChunkSize))
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		errs = append(errs, fmt.Errorf("chunk_overlap must be in [0, chunk_size), got %d", c.RAG.ChunkOverlap))
	}
	if c.RAG.MaxResults <= 0 {
		errs = append(errs, fmt.Errorf("max_results must be positive, got %d", c.RAG.MaxResults))
	}
	if c.RAG.MaxHistory < 0 {
		errs = append(errs, fmt.Errorf("max_history must not be negative, got %d", c.RAG.MaxHistory))
	}
	if c.RAG.CourseMatchThreshold < -1 || c.RAG.CourseMatchThreshold > 1 {
		errs = append(errs, fmt.Errorf("course_match_threshold must be in [-1, 1], got %v", c.RAG.CourseMatchThreshold))
	}
	if c.LLM.MaxToolRounds < 0 {
		errs = append(errs, fmt.Errorf("max_tool_rounds must not be negative, got %d", c.LLM.MaxToolRounds))
	}
	if c.LLM.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("max_tokens must be positive, got %d", c.LLM.MaxTokens))
	}
	switch c.LLM.Provider {
	case "deepseek", "openai", "ollama":
	default:
		errs = append(errs, fmt.Errorf("unsupported llm provider: %s", c.LLM.Provider))
	}
	switch c.EmbedLLM.Provider {
	case "ollama", "openai", "siliconflow", "hash":
	default:
		errs = append(errs, fmt.Errorf("unsupported embedding provider: %s", c.EmbedLLM.Provider))
	}
	switch c.Index.Backend {
	case "chromem":
	case "postgres":
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("postgres backend requires database.dsn"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported index backend: %s", c.Index.Backend))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", models.ErrConfiguration, errors.Join(errs...))
	}
	return nil
}

// IndexFingerprint identifies the settings an index was built with. Changing
// any of them invalidates stored chunks and embeddings.
func (c *Config) IndexFingerprint() string {
	return fmt.Sprintf("chunk_size=%d;chunk_overlap=%d;embedding=%s/%s;dims=%d",
		c.RAG.ChunkSize, c.RAG.ChunkOverlap, c.EmbedLLM.Provider, c.EmbedLLM.Model, c.EmbedLLM.Dimensions)
}
