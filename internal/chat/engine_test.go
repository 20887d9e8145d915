package chat

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"codeask/internal/index"
	"codeask/internal/llm"
	"codeask/internal/logging"
	"codeask/internal/prompts"
	"codeask/internal/query"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{
		Format: logging.JSONFormat,
		Level:  logging.ErrorLevel,
		Output: io.Discard,
	})
}

// fakeModel stubs all three model capabilities with call counters.
type fakeModel struct {
	summarizeCalls int64
	scoreCalls     int64
	generateCalls  int64

	scoreResponse string
	answer        string
	generateErr   error
	block         chan struct{}

	lastMessages []llm.Message
}

func (f *fakeModel) Summarize(ctx context.Context, content, language string) (string, error) {
	atomic.AddInt64(&f.summarizeCalls, 1)
	return "Summary.", nil
}

func (f *fakeModel) Score(ctx context.Context, q string, entries []string) (string, error) {
	atomic.AddInt64(&f.scoreCalls, 1)
	return f.scoreResponse, nil
}

func (f *fakeModel) Generate(ctx context.Context, messages []llm.Message, system string) (string, error) {
	atomic.AddInt64(&f.generateCalls, 1)
	if f.block != nil {
		<-f.block
	}
	f.lastMessages = messages
	if f.generateErr != nil {
		return "", f.generateErr
	}
	return f.answer, nil
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", rel, err)
	}
}

func newTestEngine(t *testing.T, repoRoot string, cache *index.Cache, model *fakeModel) *Engine {
	t.Helper()
	set := prompts.Default()
	logger := testLogger()
	searcher := query.NewSearcher(cache, model, set, logger, 5)
	assembler := query.NewAssembler(repoRoot, 0, logger)
	return NewEngine(searcher, assembler, model, set, NewMemory(10), logger)
}

func TestAskCommitsMemoryInCompletionOrder(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, tmpDir, "main.rs", "fn main() {}")

	cache := index.NewCache(tmpDir, testLogger())
	cache.Put(index.Entry{Path: "main.rs", Summary: "Entry point.", Language: "rust", LastIndexedAt: time.Now()})

	model := &fakeModel{scoreResponse: "main.rs,0.9", answer: "It prints hello."}
	engine := newTestEngine(t, tmpDir, cache, model)

	turn, err := engine.Ask(context.Background(), "what does main do")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if turn.Answer != "It prints hello." {
		t.Errorf("Unexpected answer: %q", turn.Answer)
	}
	if turn.ID == "" {
		t.Errorf("Turn must carry an ID")
	}

	entries := engine.Memory().Entries()
	if len(entries) != 2 {
		t.Fatalf("Expected exactly 2 memory entries, got %d", len(entries))
	}
	if entries[0].Role != llm.RoleUser || entries[0].Content != "what does main do" {
		t.Errorf("First entry should be the user question: %+v", entries[0])
	}
	if entries[1].Role != llm.RoleAssistant || entries[1].Content != "It prints hello." {
		t.Errorf("Second entry should be the answer: %+v", entries[1])
	}

	// The generation prompt carries the file content and the query.
	last := model.lastMessages[len(model.lastMessages)-1]
	if !strings.Contains(last.Content, "fn main() {}") {
		t.Errorf("Prompt should embed raw file content")
	}
	if !strings.Contains(last.Content, "what does main do") {
		t.Errorf("Prompt should embed the query")
	}
}

func TestAskFailureRemembersErrorEntry(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, tmpDir, "main.rs", "fn main() {}")

	cache := index.NewCache(tmpDir, testLogger())
	cache.Put(index.Entry{Path: "main.rs", Summary: "s", Language: "rust", LastIndexedAt: time.Now()})

	model := &fakeModel{scoreResponse: "main.rs,0.9", generateErr: fmt.Errorf("upstream down")}
	engine := newTestEngine(t, tmpDir, cache, model)

	if _, err := engine.Ask(context.Background(), "q"); err == nil {
		t.Fatal("Expected generation failure to surface")
	}

	// The failure stays in the conversation as an assistant entry.
	entries := engine.Memory().Entries()
	if len(entries) != 2 {
		t.Fatalf("Expected question plus error entry, got %d entries", len(entries))
	}
	if entries[0].Role != llm.RoleUser || entries[0].Content != "q" {
		t.Errorf("First entry should be the user question: %+v", entries[0])
	}
	if entries[1].Role != llm.RoleAssistant || !strings.Contains(entries[1].Content, "Error: ") {
		t.Errorf("Second entry should carry the error: %+v", entries[1])
	}
	if !strings.Contains(entries[1].Content, "upstream down") {
		t.Errorf("Error entry should name the cause: %q", entries[1].Content)
	}
}

func TestAskCancelledTurnCommitsNothing(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, tmpDir, "main.rs", "fn main() {}")

	cache := index.NewCache(tmpDir, testLogger())
	cache.Put(index.Entry{Path: "main.rs", Summary: "s", Language: "rust", LastIndexedAt: time.Now()})

	ctx, cancel := context.WithCancel(context.Background())
	model := &fakeModel{scoreResponse: "main.rs,0.9", generateErr: context.Canceled}
	engine := newTestEngine(t, tmpDir, cache, model)

	cancel()
	if _, err := engine.Ask(ctx, "q"); err == nil {
		t.Fatal("Expected cancelled turn to surface an error")
	}
	if engine.Memory().Len() != 0 {
		t.Errorf("Cancelled turn must not commit memory, got %d entries", engine.Memory().Len())
	}
}

func TestAskRejectsConcurrentTurns(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, tmpDir, "main.rs", "fn main() {}")

	cache := index.NewCache(tmpDir, testLogger())
	cache.Put(index.Entry{Path: "main.rs", Summary: "s", Language: "rust", LastIndexedAt: time.Now()})

	model := &fakeModel{scoreResponse: "main.rs,0.9", answer: "ok", block: make(chan struct{})}
	engine := newTestEngine(t, tmpDir, cache, model)

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		_, err := engine.Ask(context.Background(), "slow question")
		done <- err
	}()

	<-started
	// Wait for the first turn to reach the blocked generator.
	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt64(&model.generateCalls) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if _, err := engine.Ask(context.Background(), "impatient question"); err != ErrBusy {
		t.Errorf("Expected ErrBusy for concurrent turn, got %v", err)
	}

	close(model.block)
	if err := <-done; err != nil {
		t.Fatalf("First turn failed: %v", err)
	}

	// The engine is free again after the turn completes.
	model.block = nil
	if _, err := engine.Ask(context.Background(), "later question"); err != nil {
		t.Errorf("Engine should accept turns after the previous one finishes: %v", err)
	}
}

func TestAskWithEmptyIndexAnswersLocally(t *testing.T) {
	tmpDir := t.TempDir()
	cache := index.NewCache(tmpDir, testLogger())

	model := &fakeModel{answer: "never"}
	engine := newTestEngine(t, tmpDir, cache, model)

	turn, err := engine.Ask(context.Background(), "anything indexed?")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if atomic.LoadInt64(&model.generateCalls) != 0 {
		t.Errorf("No matches must mean no generate call")
	}
	if !strings.Contains(turn.Answer, "reindex") {
		t.Errorf("Expected a hint to reindex, got %q", turn.Answer)
	}
}

// End to end: empty cache plus one file on disk. Reindexing summarizes
// once; asking scores once, generates once, and memory gains exactly
// two entries.
func TestIndexThenAskEndToEnd(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, tmpDir, "main.rs", "fn main() { println!(\"hi\"); }")

	logger := testLogger()
	cache := index.NewCache(tmpDir, logger)
	model := &fakeModel{scoreResponse: "main.rs,0.9", answer: "It greets."}

	indexer := index.NewIndexer(tmpDir, cache, model, &index.Config{
		Extensions:  []string{".rs"},
		Excludes:    []string{".codeask"},
		Concurrency: 1,
	}, logger)

	if _, err := indexer.Reindex(context.Background()); err != nil {
		t.Fatalf("Reindex failed: %v", err)
	}
	if atomic.LoadInt64(&model.summarizeCalls) != 1 {
		t.Fatalf("Expected exactly one summarize call, got %d", model.summarizeCalls)
	}
	if cache.Len() != 1 {
		t.Fatalf("Expected one cache entry, got %d", cache.Len())
	}

	engine := newTestEngine(t, tmpDir, cache, model)
	turn, err := engine.Ask(context.Background(), "what does main do")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	if atomic.LoadInt64(&model.scoreCalls) != 1 {
		t.Errorf("Expected one score call, got %d", model.scoreCalls)
	}
	if atomic.LoadInt64(&model.generateCalls) != 1 {
		t.Errorf("Expected one generate call, got %d", model.generateCalls)
	}
	if turn.Answer != "It greets." {
		t.Errorf("Unexpected answer: %q", turn.Answer)
	}
	if engine.Memory().Len() != 2 {
		t.Errorf("Expected memory to gain exactly two entries, got %d", engine.Memory().Len())
	}
}
