// Package session holds the single lock-guarded state record shared
// by the render loop, the indexer, and in-flight chat turns.
package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"codeask/internal/index"
)

// maxLogLines caps the UI log ring buffer.
const maxLogLines = 200

// FileProgress is the UI-visible state of one file being indexed.
type FileProgress struct {
	Path  string
	State index.ProgressState
}

// Snapshot is a read-only copy of the session state for rendering.
// The render loop takes a snapshot each tick and draws from it
// without holding the lock.
type Snapshot struct {
	Indexing     bool
	IndexDone    int
	IndexTotal   int
	InFlight     []FileProgress
	Logs         []string
	LastAnswer   string
	Answering    bool
	LogScroll    int
	AnswerScroll int
}

// State is the shared mutable session record. Every access goes
// through the single mutex; the lock is held only to copy inputs or
// commit outputs, never across network or file I/O.
type State struct {
	mu sync.Mutex

	indexing   bool
	indexDone  int
	indexTotal int
	inFlight   map[string]index.ProgressState

	logs         []string
	lastAnswer   string
	answering    bool
	logScroll    int
	answerScroll int

	queries chan string
	reindex chan struct{}
}

// NewState creates the session state. queryBuffer bounds how many
// submitted queries may wait unprocessed.
func NewState(queryBuffer int) *State {
	if queryBuffer <= 0 {
		queryBuffer = 16
	}
	return &State{
		inFlight: make(map[string]index.ProgressState),
		queries:  make(chan string, queryBuffer),
		reindex:  make(chan struct{}, 1),
	}
}

// SubmitQuery enqueues a user question. Returns false when the queue
// is full.
func (s *State) SubmitQuery(text string) bool {
	select {
	case s.queries <- text:
		return true
	default:
		return false
	}
}

// RequestReindex signals that a reindex should run. Requests coalesce:
// asking while one is already pending is a no-op.
func (s *State) RequestReindex() {
	select {
	case s.reindex <- struct{}{}:
	default:
	}
}

// Queries exposes the submitted-query channel to the processing loop.
func (s *State) Queries() <-chan string {
	return s.queries
}

// ReindexRequests exposes the reindex signal channel.
func (s *State) ReindexRequests() <-chan struct{} {
	return s.reindex
}

// ApplyProgress commits one indexing progress event.
func (s *State) ApplyProgress(ev index.ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch ev.State {
	case index.ProgressIndexing:
		s.inFlight[ev.Path] = ev.State
	default:
		delete(s.inFlight, ev.Path)
		s.indexDone = ev.Done
	}
	if ev.Total > 0 {
		s.indexTotal = ev.Total
	}
}

// BeginIndexing marks an indexing run as active.
func (s *State) BeginIndexing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexing = true
	s.indexDone = 0
	s.indexTotal = 0
	s.inFlight = make(map[string]index.ProgressState)
}

// EndIndexing marks the indexing run finished and logs its outcome.
func (s *State) EndIndexing(stats *index.Stats, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexing = false
	s.inFlight = make(map[string]index.ProgressState)
	if err != nil {
		s.appendLogLocked("indexing failed: " + err.Error())
		return
	}
	s.appendLogLocked(fmt.Sprintf("indexed %d files (%d degraded, %d deleted) in %s",
		stats.Reindexed, stats.Degraded, stats.Deleted, stats.Duration.Round(time.Millisecond)))
}

// BeginAnswer marks a chat turn as in flight.
func (s *State) BeginAnswer(question string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answering = true
	s.appendLogLocked("query: " + question)
}

// CommitAnswer stores the finished answer for rendering.
func (s *State) CommitAnswer(answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answering = false
	s.lastAnswer = answer
	s.answerScroll = 0
}

// FailAnswer records a failed turn; the error is surfaced in the log
// and as the visible answer text.
func (s *State) FailAnswer(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answering = false
	s.lastAnswer = "Error: " + err.Error()
	s.appendLogLocked("query failed: " + err.Error())
}

// AppendLog adds one line to the log ring buffer.
func (s *State) AppendLog(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLogLocked(line)
}

func (s *State) appendLogLocked(line string) {
	s.logs = append(s.logs, line)
	if len(s.logs) > maxLogLines {
		s.logs = s.logs[len(s.logs)-maxLogLines:]
	}
}

// ScrollLogs moves the log viewport by delta, clamped to the buffer.
func (s *State) ScrollLogs(delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logScroll = clamp(s.logScroll+delta, 0, len(s.logs))
}

// ScrollAnswer moves the answer viewport by delta lines.
func (s *State) ScrollAnswer(delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answerScroll = clamp(s.answerScroll+delta, 0, 1<<20)
}

// Snapshot copies the current state for rendering.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Indexing:     s.indexing,
		IndexDone:    s.indexDone,
		IndexTotal:   s.indexTotal,
		LastAnswer:   s.lastAnswer,
		Answering:    s.answering,
		LogScroll:    s.logScroll,
		AnswerScroll: s.answerScroll,
		Logs:         make([]string, len(s.logs)),
	}
	copy(snap.Logs, s.logs)

	for path, state := range s.inFlight {
		snap.InFlight = append(snap.InFlight, FileProgress{Path: path, State: state})
	}
	// Map order changes between snapshots; keep the listing stable.
	sort.Slice(snap.InFlight, func(i, j int) bool {
		return snap.InFlight[i].Path < snap.InFlight[j].Path
	})
	return snap
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
