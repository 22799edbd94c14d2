package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"scientific-rag/internal/figures"
	"scientific-rag/internal/helper"
	"scientific-rag/internal/models"
	"scientific-rag/internal/rag"
)

// ErrEmptyKnowledgeBase means the vector collection holds no chunks yet.
var ErrEmptyKnowledgeBase = errors.New("knowledge base is empty, run the ingest command first")

// Retriever is the retrieval dependency of a session.
type Retriever interface {
	Retrieve(ctx context.Context, query string, contentTypes ...models.ContentType) ([]rag.Result, error)
}

// Generator is the language-model dependency of a session.
type Generator interface {
	Stream(ctx context.Context, messages []llms.MessageContent, fn func(ctx context.Context, chunk []byte) error) (string, error)
}

// TokenFunc receives each answer fragment as it is produced. Returning an
// error aborts the stream.
type TokenFunc func(token string) error

// Answer is the complete result of one exchange, available once the stream
// has been drained.
type Answer struct {
	Text      string
	Citations []rag.Citation
	Images    []string
}

// Stats describes the knowledge base a session answers from.
type Stats struct {
	Collection string
	Chunks     int
	Turns      int
}

// SessionConfig carries the collaborators of a session.
type SessionConfig struct {
	Index             rag.Index
	Retriever         Retriever
	Generator         Generator
	Collection        string
	MemoryTokenBudget int
}

// Session answers questions about the ingested papers. Trivial greetings get
// a canned reply without touching retrieval or generation; everything else is
// answered from retrieved context with the response streamed token by token.
type Session struct {
	id         string
	index      rag.Index
	retriever  Retriever
	generator  Generator
	associator *figures.Associator
	memory     *Memory
	collection string
}

// NewSession builds a session over a non-empty knowledge base. An empty
// collection returns ErrEmptyKnowledgeBase so callers can tell the user to
// ingest documents first.
func NewSession(ctx context.Context, cfg SessionConfig) (*Session, error) {
	if cfg.Index == nil || cfg.Retriever == nil || cfg.Generator == nil {
		return nil, fmt.Errorf("session requires an index, a retriever and a generator")
	}
	count, err := cfg.Index.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect knowledge base: %v", err)
	}
	if count == 0 {
		return nil, ErrEmptyKnowledgeBase
	}
	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, fmt.Errorf("failed to create session id: %v", err)
	}
	log.Info().Str("session", id).Int("chunks", count).Msg("Chat session ready")
	return &Session{
		id:         id,
		index:      cfg.Index,
		retriever:  cfg.Retriever,
		generator:  cfg.Generator,
		associator: figures.NewAssociator(),
		memory:     NewMemory(cfg.MemoryTokenBudget),
		collection: cfg.Collection,
	}, nil
}

// ID returns the session id used in logs.
func (s *Session) ID() string { return s.id }

// Ask answers one user message. The response is streamed through onToken as
// it is produced; the returned Answer carries the full text plus citations
// and any figures associated with the surfaced chunks. A retrieval that comes
// back empty is not an error, the model just answers without paper context.
func (s *Session) Ask(ctx context.Context, message string, onToken TokenFunc) (*Answer, error) {
	if reply, ok := cannedReply(message); ok {
		if err := streamWords(reply, onToken); err != nil {
			return nil, err
		}
		return &Answer{Text: reply}, nil
	}

	results, err := s.retriever.Retrieve(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve context: %v", err)
	}
	contextText := rag.FormatContext(results)
	if contextText == "" {
		log.Debug().Str("session", s.id).Msg("No chunks passed the retrieval filters")
	}

	var fn func(ctx context.Context, chunk []byte) error
	if onToken != nil {
		fn = func(_ context.Context, chunk []byte) error {
			return onToken(string(chunk))
		}
	}
	text, err := s.generator.Stream(ctx, s.buildMessages(contextText, message), fn)
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %v", err)
	}

	s.memory.Append(llms.ChatMessageTypeHuman, message)
	s.memory.Append(llms.ChatMessageTypeAI, text)

	return &Answer{
		Text:      text,
		Citations: rag.BuildCitations(results),
		Images:    s.associateImages(message, results),
	}, nil
}

// Reset clears the conversation memory.
func (s *Session) Reset() {
	s.memory.Reset()
	log.Debug().Str("session", s.id).Msg("Conversation memory cleared")
}

// History returns the retained conversation turns, oldest first.
func (s *Session) History() []Turn {
	return s.memory.Turns()
}

// Stats reports the size of the knowledge base and the retained history.
func (s *Session) Stats(ctx context.Context) (*Stats, error) {
	count, err := s.index.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %v", err)
	}
	return &Stats{
		Collection: s.collection,
		Chunks:     count,
		Turns:      s.memory.Len(),
	}, nil
}

// buildMessages assembles the prompt: system message, remembered turns, then
// the current question wrapped with the retrieved context.
func (s *Session) buildMessages(contextText, query string) []llms.MessageContent {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, models.SystemPrompt),
	}
	for _, turn := range s.memory.Turns() {
		messages = append(messages, llms.TextParts(turn.Role, turn.Content))
	}
	prompt := fmt.Sprintf(models.ContextPromptTemplate, contextText, query)
	return append(messages, llms.TextParts(llms.ChatMessageTypeHuman, prompt))
}

// associateImages collects figure files from the page neighborhoods of the
// surfaced chunks. Only questions that ask to see something visual get
// images at all.
func (s *Session) associateImages(query string, results []rag.Result) []string {
	if !figures.QueryWantsImages(query) {
		return nil
	}
	var candidates []string
	for _, res := range results {
		imageMap := models.ImageMapOf(res.Chunk.Metadata)
		if len(imageMap) == 0 {
			continue
		}
		page := models.PageOf(res.Chunk.Metadata)
		candidates = append(candidates, figures.PagesAround(imageMap, page)...)
	}
	return s.associator.Filter(candidates)
}

// cannedReply matches trivial inputs after lowercasing and trimming
// surrounding punctuation. Greetings and thanks each map to a fixed reply.
func cannedReply(message string) (string, bool) {
	normalized := strings.Trim(strings.ToLower(strings.TrimSpace(message)), " ?!.")
	for _, input := range models.GratitudeInputs {
		if normalized == input {
			return models.GratitudeReply, true
		}
	}
	for _, input := range models.GreetingInputs {
		if normalized == input {
			return models.GreetingReply, true
		}
	}
	return "", false
}

// streamWords delivers a fixed reply word by word so canned answers look the
// same to the consumer as generated ones.
func streamWords(reply string, onToken TokenFunc) error {
	if onToken == nil {
		return nil
	}
	words := strings.Fields(reply)
	for i, word := range words {
		token := word
		if i < len(words)-1 {
			token += " "
		}
		if err := onToken(token); err != nil {
			return err
		}
	}
	return nil
}
