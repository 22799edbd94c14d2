package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// ErrMissingCredential is returned when a component needs an API key that is
// neither configured nor present in the environment.
var ErrMissingCredential = errors.New("missing credential")

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"

	BackendChromem  = "chromem"
	BackendPostgres = "postgres"
)

type Config struct {
	Paths    PathsConfig  `yaml:"paths"`
	Store    StoreConfig  `yaml:"store"`
	Embedder LLMConfig    `yaml:"embedder"`
	LLM      LLMConfig    `yaml:"llm"`
	RAG      RAGConfig    `yaml:"rag"`
	Parser   ParserConfig `yaml:"parser"`
}

type PathsConfig struct {
	DataDir      string `yaml:"data_dir"`
	StoreDir     string `yaml:"store_dir"`
	ExtractedDir string `yaml:"extracted_dir"`
	FiguresDir   string `yaml:"figures_dir"`
}

type StoreConfig struct {
	Backend     string `yaml:"backend"`
	Collection  string `yaml:"collection"`
	PostgresDSN string `yaml:"postgres_dsn"`
	Debug       bool   `yaml:"debug"`
}

// LLMConfig configures either an embedding model or a chat model.
// Dimensions is only meaningful for embedders, Temperature for chat models.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Key         string  `yaml:"key"`
	Temperature float64 `yaml:"temperature"`
	Dimensions  int     `yaml:"dimensions"`
}

type RAGConfig struct {
	ChunkSize         int     `yaml:"chunk_size"`
	ChunkOverlap      int     `yaml:"chunk_overlap"`
	TopK              int     `yaml:"top_k"`
	TopN              int     `yaml:"top_n"`
	SimilarityCutoff  float64 `yaml:"similarity_cutoff"`
	MemoryTokenBudget int     `yaml:"memory_token_budget"`
}

// ParserConfig points at an optional remote parse service. When ServiceURL is
// empty the local parsers are used directly.
type ParserConfig struct {
	ServiceURL    string `yaml:"service_url"`
	Key           string `yaml:"key"`
	MinImageBytes int64  `yaml:"min_image_bytes"`
}

// LoadConfig reads the YAML config, layers .env and environment overrides on
// top and fills in defaults. API keys are expected from the environment, not
// the file.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file loaded")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GROQ_API_KEY"); v != "" {
		c.LLM.Key = v
	}
	if v := os.Getenv("EMBEDDER_API_KEY"); v != "" {
		c.Embedder.Key = v
	}
	if v := os.Getenv("PARSE_SERVICE_API_KEY"); v != "" {
		c.Parser.Key = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Store.PostgresDSN = v
	}
}

// ApplyDefaults fills every unset tunable with its default value.
func (c *Config) ApplyDefaults() {
	if c.Paths.DataDir == "" {
		c.Paths.DataDir = "./data/papers"
	}
	if c.Paths.StoreDir == "" {
		c.Paths.StoreDir = "./chromemdb"
	}
	if c.Paths.ExtractedDir == "" {
		c.Paths.ExtractedDir = "./data/extracted"
	}
	if c.Paths.FiguresDir == "" {
		c.Paths.FiguresDir = "./data/extracted/figures"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = BackendChromem
	}
	if c.Store.Collection == "" {
		c.Store.Collection = "scientific_papers"
	}
	if c.Embedder.Provider == "" {
		c.Embedder.Provider = ProviderOllama
	}
	if c.Embedder.BaseURL == "" {
		c.Embedder.BaseURL = "http://localhost:11434"
	}
	if c.Embedder.Model == "" {
		c.Embedder.Model = "all-minilm"
	}
	if c.Embedder.Dimensions == 0 {
		c.Embedder.Dimensions = 384
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = ProviderOpenAI
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://api.groq.com/openai/v1"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "llama-3.1-8b-instant"
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.1
	}
	if c.RAG.ChunkSize == 0 {
		c.RAG.ChunkSize = 512
	}
	if c.RAG.ChunkOverlap == 0 {
		c.RAG.ChunkOverlap = 50
	}
	if c.RAG.TopK == 0 {
		c.RAG.TopK = 5
	}
	if c.RAG.TopN == 0 {
		c.RAG.TopN = 3
	}
	if c.RAG.SimilarityCutoff == 0 {
		c.RAG.SimilarityCutoff = 0.5
	}
	if c.RAG.MemoryTokenBudget == 0 {
		c.RAG.MemoryTokenBudget = 4000
	}
	if c.Parser.MinImageBytes == 0 {
		c.Parser.MinImageBytes = 1024
	}
}

// Validate rejects configs that would misbehave at runtime.
func (c *Config) Validate() error {
	if c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("chunk_overlap %d must be smaller than chunk_size %d", c.RAG.ChunkOverlap, c.RAG.ChunkSize)
	}
	if c.RAG.SimilarityCutoff < 0 || c.RAG.SimilarityCutoff > 1 {
		return fmt.Errorf("similarity_cutoff %.2f must be within [0, 1]", c.RAG.SimilarityCutoff)
	}
	if c.RAG.TopN > c.RAG.TopK {
		return fmt.Errorf("top_n %d cannot exceed top_k %d", c.RAG.TopN, c.RAG.TopK)
	}
	if c.Embedder.Dimensions <= 0 {
		return fmt.Errorf("embedder dimensions must be positive, got %d", c.Embedder.Dimensions)
	}
	switch c.Store.Backend {
	case BackendChromem:
	case BackendPostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("postgres backend selected but no DSN configured")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	switch c.Embedder.Provider {
	case ProviderOllama, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown embedder provider %q", c.Embedder.Provider)
	}
	switch c.LLM.Provider {
	case ProviderOllama, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	return nil
}

// RequireKey fails fast when the provider needs an API key that is absent.
func (c *LLMConfig) RequireKey() error {
	if c.Provider == ProviderOpenAI && c.Key == "" {
		return fmt.Errorf("%w: no API key configured for %s model %s", ErrMissingCredential, c.Provider, c.Model)
	}
	return nil
}
