package llmservice

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"scientific-rag/internal/config"
)

// Service wraps the configured chat model for streaming generation.
type Service struct {
	llm         llms.Model
	temperature float64
}

// New builds the chat model client. A missing API key fails here, before any
// session starts.
func New(cfg *config.LLMConfig) (*Service, error) {
	if err := cfg.RequireKey(); err != nil {
		return nil, err
	}

	var llm llms.Model
	var err error
	switch cfg.Provider {
	case config.ProviderOpenAI:
		llm, err = openai.New(
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
		)
	case config.ProviderOllama:
		llm, err = ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat model: %v", err)
	}
	return &Service{llm: llm, temperature: cfg.Temperature}, nil
}

// Stream generates a completion, forwarding each token to fn as it arrives,
// and returns the full response text once the stream is drained. An error
// returned by fn aborts the stream.
func (s *Service) Stream(ctx context.Context, messages []llms.MessageContent, fn func(ctx context.Context, chunk []byte) error) (string, error) {
	var response strings.Builder
	streamFn := func(ctx context.Context, chunk []byte) error {
		response.Write(chunk)
		if fn != nil {
			return fn(ctx, chunk)
		}
		return nil
	}

	log.Debug().Int("messages", len(messages)).Msg("Generating content")
	resp, err := s.llm.GenerateContent(ctx, messages,
		llms.WithTemperature(s.temperature),
		llms.WithStreamingFunc(streamFn),
	)
	if err != nil {
		return "", err
	}
	if response.Len() > 0 {
		return response.String(), nil
	}

	// Providers that ignore the streaming option still return the final
	// choice, forward it as a single chunk so the consumer sees it.
	if len(resp.Choices) > 0 {
		text := resp.Choices[0].Content
		if fn != nil && text != "" {
			if err := fn(ctx, []byte(text)); err != nil {
				return "", err
			}
		}
		return text, nil
	}
	return "", nil
}
