package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"scientific-rag/internal/config"
	"scientific-rag/internal/models"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// NewEmbedder creates the embedder for the configured provider.
func NewEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		return NewOllamaEmbedder(cfg)
	case config.ProviderOpenAI:
		return NewOpenAIEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unknown embedder provider %q", cfg.Provider)
	}
}

// new ollama embedder
func NewOllamaEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	log.Debug().Interface("config", map[string]string{
		"base_url":        cfg.BaseURL,
		"embedding_model": cfg.Model,
	}).Msg("Loaded embedder config")

	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding model: %v", err)
	}
	return embeddings.NewEmbedder(llm)
}

// NewOpenAIEmbedder embeds through an OpenAI-compatible endpoint. The API key
// is required here, before any batch work starts.
func NewOpenAIEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	if err := cfg.RequireKey(); err != nil {
		return nil, err
	}
	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		openai.WithModel(cfg.Model),
		openai.WithEmbeddingModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding model: %v", err)
	}
	return embeddings.NewEmbedder(llm)
}

// ChunkEmbedder attaches embedding vectors to chunks in batch.
type ChunkEmbedder struct {
	embedder   embeddings.Embedder
	dimensions int
}

func NewChunkEmbedder(embedder embeddings.Embedder, dimensions int) *ChunkEmbedder {
	return &ChunkEmbedder{embedder: embedder, dimensions: dimensions}
}

// EmbedChunks embeds every chunk text, validating that the provider returned
// exactly one vector of the configured dimensionality per chunk.
func (e *ChunkEmbedder) EmbedChunks(ctx context.Context, chunks []models.Chunk) ([]models.EmbeddedChunk, error) {
	if len(chunks) == 0 {
		log.Info().Msg("No chunks to embed")
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}
	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %v", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	embedded := make([]models.EmbeddedChunk, len(chunks))
	for i := range chunks {
		if e.dimensions > 0 && len(vectors[i]) != e.dimensions {
			return nil, fmt.Errorf("embedding dimension mismatch on chunk %d: got %d, want %d", i, len(vectors[i]), e.dimensions)
		}
		embedded[i] = models.EmbeddedChunk{Chunk: chunks[i], Embedding: vectors[i]}
	}
	log.Debug().Int("chunks", len(embedded)).Int("dimensions", e.dimensions).Msg("Embedded chunks")
	return embedded, nil
}
