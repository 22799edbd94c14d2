package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "{}"))
	require.NoError(t, err)

	assert.Equal(t, "./data/papers", cfg.Paths.DataDir)
	assert.Equal(t, "./chromemdb", cfg.Paths.StoreDir)
	assert.Equal(t, "./data/extracted", cfg.Paths.ExtractedDir)
	assert.Equal(t, "./data/extracted/figures", cfg.Paths.FiguresDir)

	assert.Equal(t, BackendChromem, cfg.Store.Backend)
	assert.Equal(t, "scientific_papers", cfg.Store.Collection)

	assert.Equal(t, ProviderOllama, cfg.Embedder.Provider)
	assert.Equal(t, "http://localhost:11434", cfg.Embedder.BaseURL)
	assert.Equal(t, "all-minilm", cfg.Embedder.Model)
	assert.Equal(t, 384, cfg.Embedder.Dimensions)

	assert.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, "https://api.groq.com/openai/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "llama-3.1-8b-instant", cfg.LLM.Model)
	assert.InDelta(t, 0.1, cfg.LLM.Temperature, 1e-9)

	assert.Equal(t, 512, cfg.RAG.ChunkSize)
	assert.Equal(t, 50, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 5, cfg.RAG.TopK)
	assert.Equal(t, 3, cfg.RAG.TopN)
	assert.InDelta(t, 0.5, cfg.RAG.SimilarityCutoff, 1e-9)
	assert.Equal(t, 4000, cfg.RAG.MemoryTokenBudget)

	assert.Equal(t, int64(1024), cfg.Parser.MinImageBytes)
}

func TestLoadConfigOverrides(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
rag:
  chunk_size: 256
  chunk_overlap: 32
  top_k: 8
  top_n: 4
  similarity_cutoff: 0.65
embedder:
  model: nomic-embed-text
  dimensions: 768
`))
	require.NoError(t, err)

	assert.Equal(t, 256, cfg.RAG.ChunkSize)
	assert.Equal(t, 32, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 8, cfg.RAG.TopK)
	assert.Equal(t, 4, cfg.RAG.TopN)
	assert.InDelta(t, 0.65, cfg.RAG.SimilarityCutoff, 1e-9)
	assert.Equal(t, "nomic-embed-text", cfg.Embedder.Model)
	assert.Equal(t, 768, cfg.Embedder.Dimensions)
}

func TestLoadConfigEnvKey(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "from-env")
	cfg, err := LoadConfig(writeConfig(t, "{}"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.LLM.Key)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	cases := map[string]string{
		"overlap not below size": `
rag:
  chunk_size: 100
  chunk_overlap: 100
`,
		"cutoff out of range": `
rag:
  similarity_cutoff: 1.5
`,
		"top_n above top_k": `
rag:
  top_k: 3
  top_n: 5
`,
		"unknown backend": `
store:
  backend: redis
`,
		"postgres without dsn": `
store:
  backend: postgres
`,
		"unknown provider": `
llm:
  provider: bedrock
`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestRequireKey(t *testing.T) {
	t.Run("openai without key fails fast", func(t *testing.T) {
		c := LLMConfig{Provider: ProviderOpenAI, Model: "llama-3.1-8b-instant"}
		assert.ErrorIs(t, c.RequireKey(), ErrMissingCredential)
	})
	t.Run("openai with key passes", func(t *testing.T) {
		c := LLMConfig{Provider: ProviderOpenAI, Key: "k"}
		assert.NoError(t, c.RequireKey())
	})
	t.Run("ollama needs no key", func(t *testing.T) {
		c := LLMConfig{Provider: ProviderOllama}
		assert.NoError(t, c.RequireKey())
	})
}
