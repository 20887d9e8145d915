// Package chat runs the question-answer loop: relevance search,
// context assembly, answer generation, and conversation memory.
package chat

import (
	"sync"
	"time"

	"codeask/internal/llm"
)

// DefaultMaxMessages bounds conversation memory.
const DefaultMaxMessages = 40

// Entry is one remembered conversation message.
type Entry struct {
	Role      string
	Content   string
	Timestamp time.Time
}

// Memory is the bounded conversation history. Append-only during a
// session; when the bound is exceeded the oldest entries are dropped
// so prompts cannot grow without limit.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
	max     int
}

// NewMemory creates a memory bounded to max entries. max <= 0 selects
// DefaultMaxMessages.
func NewMemory(max int) *Memory {
	if max <= 0 {
		max = DefaultMaxMessages
	}
	return &Memory{max: max}
}

// Append adds one entry, truncating from the front past the bound.
func (m *Memory) Append(role, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, Entry{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
	if len(m.entries) > m.max {
		m.entries = m.entries[len(m.entries)-m.max:]
	}
}

// Messages returns the history as model messages, oldest first.
func (m *Memory) Messages() []llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	messages := make([]llm.Message, 0, len(m.entries))
	for _, e := range m.entries {
		messages = append(messages, llm.Message{Role: e.Role, Content: e.Content})
	}
	return messages
}

// Entries returns a copy of the raw history.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Len returns the number of remembered entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
