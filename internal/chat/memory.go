package chat

import (
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// Turn is one remembered conversation message.
type Turn struct {
	Role    llms.ChatMessageType
	Content string
}

// Memory holds the conversation history inside a token budget. Token counts
// are estimated at four characters per token. When the budget is exceeded the
// oldest turns are dropped first; the newest turn is always retained even if
// it alone is over budget. Safe for concurrent use.
type Memory struct {
	mu     sync.Mutex
	turns  []Turn
	budget int
}

// NewMemory returns an empty history with the given token budget.
func NewMemory(tokenBudget int) *Memory {
	return &Memory{budget: tokenBudget}
}

// Append records a turn and evicts from the front until the history fits the
// budget again.
func (m *Memory) Append(role llms.ChatMessageType, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, Turn{Role: role, Content: content})
	for len(m.turns) > 1 && m.estimateLocked() > m.budget {
		m.turns = m.turns[1:]
	}
}

// Turns returns a copy of the retained history, oldest first.
func (m *Memory) Turns() []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Turn, len(m.turns))
	copy(out, m.turns)
	return out
}

// Len reports how many turns are currently retained.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.turns)
}

// EstimatedTokens reports the estimated token size of the retained history.
func (m *Memory) EstimatedTokens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.estimateLocked()
}

// Reset discards the whole history.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = nil
}

func (m *Memory) estimateLocked() int {
	total := 0
	for _, t := range m.turns {
		total += len(t.Content) / 4
	}
	return total
}
