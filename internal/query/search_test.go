package query

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"codeask/internal/index"
	"codeask/internal/logging"
	"codeask/internal/prompts"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{
		Format: logging.JSONFormat,
		Level:  logging.ErrorLevel,
		Output: io.Discard,
	})
}

// stubScorer returns a fixed response and records the prompt entries
// it was given.
type stubScorer struct {
	response string
	err      error
	calls    int
	entries  []string
}

func (s *stubScorer) Score(ctx context.Context, query string, entries []string) (string, error) {
	s.calls++
	s.entries = entries
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func cacheWith(t *testing.T, paths ...string) *index.Cache {
	t.Helper()
	cache := index.NewCache(t.TempDir(), testLogger())
	for _, p := range paths {
		cache.Put(index.Entry{Path: p, Summary: "summary of " + p, Language: "rust", LastIndexedAt: time.Now()})
	}
	return cache
}

func TestSearchParsesDefensively(t *testing.T) {
	cache := cacheWith(t, "a.rs", "b.rs", "c.rs")
	scorer := &stubScorer{response: "a.rs,0.9\nb.rs,0.4\nbad_line\nc.rs,xyz"}
	searcher := NewSearcher(cache, scorer, prompts.Default(), testLogger(), 5)

	matches, err := searcher.Search(context.Background(), "what does main do")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	want := []Match{
		{Path: "a.rs", Score: 0.9},
		{Path: "b.rs", Score: 0.4},
		{Path: "c.rs", Score: 0.0},
	}
	if len(matches) != len(want) {
		t.Fatalf("Expected %d matches, got %v", len(want), matches)
	}
	for i := range want {
		if matches[i] != want[i] {
			t.Errorf("Match %d: expected %+v, got %+v", i, want[i], matches[i])
		}
	}
}

func TestSearchDropsUnknownPaths(t *testing.T) {
	cache := cacheWith(t, "a.rs")
	scorer := &stubScorer{response: "a.rs,0.5\nghost.rs,0.9"}
	searcher := NewSearcher(cache, scorer, prompts.Default(), testLogger(), 5)

	matches, err := searcher.Search(context.Background(), "q")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(matches) != 1 || matches[0].Path != "a.rs" {
		t.Errorf("Paths missing from the index must be dropped, got %v", matches)
	}
}

func TestSearchTruncatesToTopK(t *testing.T) {
	cache := cacheWith(t, "a.rs", "b.rs", "c.rs", "d.rs")
	scorer := &stubScorer{response: "a.rs,0.9\nb.rs,0.8\nc.rs,0.7\nd.rs,0.6"}
	searcher := NewSearcher(cache, scorer, prompts.Default(), testLogger(), 2)

	matches, err := searcher.Search(context.Background(), "q")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("Expected top 2, got %d", len(matches))
	}
	if matches[0].Path != "a.rs" || matches[1].Path != "b.rs" {
		t.Errorf("Expected highest scores first, got %v", matches)
	}
}

func TestSearchBreaksTiesLexicographically(t *testing.T) {
	cache := cacheWith(t, "z.rs", "a.rs", "m.rs")
	scorer := &stubScorer{response: "z.rs,0.5\na.rs,0.5\nm.rs,0.5"}
	searcher := NewSearcher(cache, scorer, prompts.Default(), testLogger(), 5)

	matches, err := searcher.Search(context.Background(), "q")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	got := []string{matches[0].Path, matches[1].Path, matches[2].Path}
	want := []string{"a.rs", "m.rs", "z.rs"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected deterministic tie order %v, got %v", want, got)
			break
		}
	}
}

func TestSearchEmptyIndexSkipsScoring(t *testing.T) {
	cache := index.NewCache(t.TempDir(), testLogger())
	scorer := &stubScorer{response: "anything"}
	searcher := NewSearcher(cache, scorer, prompts.Default(), testLogger(), 5)

	matches, err := searcher.Search(context.Background(), "q")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if matches != nil {
		t.Errorf("Empty index should yield no matches, got %v", matches)
	}
	if scorer.calls != 0 {
		t.Errorf("Empty index must not call the scorer")
	}
}

func TestSearchScorerFailureIsHardError(t *testing.T) {
	cache := cacheWith(t, "a.rs")
	scorer := &stubScorer{err: fmt.Errorf("upstream down")}
	searcher := NewSearcher(cache, scorer, prompts.Default(), testLogger(), 5)

	if _, err := searcher.Search(context.Background(), "q"); err == nil {
		t.Fatal("Scorer failure must fail the whole search")
	}
}

func TestSearchPromptOrderIsStable(t *testing.T) {
	cache := cacheWith(t, "b.rs", "a.rs", "c.rs")
	scorer := &stubScorer{response: ""}
	searcher := NewSearcher(cache, scorer, prompts.Default(), testLogger(), 5)

	if _, err := searcher.Search(context.Background(), "q"); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(scorer.entries) != 3 {
		t.Fatalf("Expected 3 labeled entries, got %d", len(scorer.entries))
	}
	// Entries are labeled in lexicographic path order so the prompt is
	// identical across runs.
	for i, path := range []string{"a.rs", "b.rs", "c.rs"} {
		if !strings.Contains(scorer.entries[i], path) {
			t.Errorf("Entry %d should mention %s, got %q", i, path, scorer.entries[i])
		}
	}
}
