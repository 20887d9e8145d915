package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"codeask/internal/errors"
	"codeask/internal/llm"
	"codeask/internal/logging"
	"codeask/internal/prompts"
	"codeask/internal/query"
	"codeask/internal/store"
)

// ErrBusy is returned when a question arrives while another turn is
// still in flight. At most one turn runs at a time.
var ErrBusy = errors.New(errors.Internal, "another question is still being answered")

// Turn is one completed question-answer exchange.
type Turn struct {
	ID       string
	Question string
	Answer   string
	Matches  []query.Match
	Elapsed  time.Duration
}

// Engine runs chat turns: search, assemble, generate, remember.
type Engine struct {
	searcher  *query.Searcher
	assembler *query.Assembler
	generator llm.Generator
	prompts   *prompts.Set
	memory    *Memory
	logger    *logging.Logger

	// transcripts is optional; a nil recorder disables persistence.
	transcripts *store.Transcripts
	sessionID   string

	mu   sync.Mutex
	busy bool
}

// NewEngine creates a chat engine.
func NewEngine(searcher *query.Searcher, assembler *query.Assembler, generator llm.Generator, set *prompts.Set, memory *Memory, logger *logging.Logger) *Engine {
	if memory == nil {
		memory = NewMemory(0)
	}
	return &Engine{
		searcher:  searcher,
		assembler: assembler,
		generator: generator,
		prompts:   set,
		memory:    memory,
		logger:    logger,
	}
}

// WithTranscripts enables turn persistence under the given session.
func (e *Engine) WithTranscripts(t *store.Transcripts, sessionID string) *Engine {
	e.transcripts = t
	e.sessionID = sessionID
	return e
}

// Memory returns the conversation memory.
func (e *Engine) Memory() *Memory {
	return e.memory
}

// Ask runs one full turn for the question. It rejects concurrent
// calls with ErrBusy. Memory gains the user and assistant entries
// only after the turn settles: a successful turn remembers the
// answer, a failed turn remembers an error entry in the assistant's
// place, and a cancelled turn commits nothing.
func (e *Engine) Ask(ctx context.Context, question string) (*Turn, error) {
	if !e.claim() {
		return nil, ErrBusy
	}
	defer e.release()

	start := time.Now()
	turn := &Turn{
		ID:       uuid.NewString(),
		Question: question,
	}

	matches, err := e.searcher.Search(ctx, question)
	if err != nil {
		e.fail(ctx, question, err)
		return nil, err
	}
	turn.Matches = matches

	if len(matches) == 0 {
		// Nothing indexed yet, or nothing scored. Answer locally
		// instead of sending an empty context upstream.
		turn.Answer = "No indexed files are relevant to this question. Run a reindex and try again."
		e.commit(turn, start)
		return turn, nil
	}

	assembled, err := e.assembler.Assemble(matches)
	if err != nil {
		e.fail(ctx, question, err)
		return nil, err
	}

	messages := e.memory.Messages()
	messages = append(messages, llm.Message{
		Role:    llm.RoleUser,
		Content: e.prompts.Answer(assembled, question),
	})

	answer, err := e.generator.Generate(ctx, messages, e.prompts.System())
	if err != nil {
		e.fail(ctx, question, err)
		return nil, err
	}

	turn.Answer = answer
	e.commit(turn, start)
	return turn, nil
}

// commit appends the finished turn to memory and, when enabled, to
// the transcript store.
func (e *Engine) commit(turn *Turn, start time.Time) {
	turn.Elapsed = time.Since(start)

	e.memory.Append(llm.RoleUser, turn.Question)
	e.memory.Append(llm.RoleAssistant, turn.Answer)

	if e.transcripts != nil {
		if err := e.transcripts.RecordTurn(e.sessionID, turn.ID, turn.Question, turn.Answer); err != nil {
			e.logger.Warn("Failed to persist turn", map[string]interface{}{
				"turn":  turn.ID,
				"error": err.Error(),
			})
		}
	}

	e.logger.Info("Turn complete", map[string]interface{}{
		"turn":    turn.ID,
		"matches": len(turn.Matches),
		"elapsed": turn.Elapsed.Round(time.Millisecond).String(),
	})
}

// fail remembers a failed turn: the question plus an error entry in
// the assistant's place, so the failure stays visible in the
// conversation. A cancelled turn leaves memory untouched.
func (e *Engine) fail(ctx context.Context, question string, err error) {
	if ctx.Err() != nil {
		return
	}
	e.memory.Append(llm.RoleUser, question)
	e.memory.Append(llm.RoleAssistant, "Error: "+err.Error())
}

func (e *Engine) claim() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy {
		return false
	}
	e.busy = true
	return true
}

func (e *Engine) release() {
	e.mu.Lock()
	e.busy = false
	e.mu.Unlock()
}
