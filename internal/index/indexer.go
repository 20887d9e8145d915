package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeask/internal/llm"
	"codeask/internal/logging"
)

// degradedPreviewLen bounds the raw-content preview used when
// summarization fails.
const degradedPreviewLen = 100

// ProgressState describes what is happening to one file.
type ProgressState string

const (
	ProgressIndexing ProgressState = "indexing"
	ProgressDone     ProgressState = "done"
	ProgressDegraded ProgressState = "degraded"
)

// ProgressEvent reports per-file indexing progress to the UI layer.
type ProgressEvent struct {
	Path  string
	State ProgressState
	Done  int
	Total int
}

// ProgressFunc receives progress events. It is called from worker
// goroutines and must be cheap; the session layer just updates fields
// under its own lock.
type ProgressFunc func(ProgressEvent)

// Indexer reconciles the cache against the filesystem, summarizing
// changed files with bounded parallelism.
type Indexer struct {
	repoRoot   string
	cache      *Cache
	detector   *Detector
	summarizer llm.Summarizer
	config     *Config
	logger     *logging.Logger
	progress   ProgressFunc

	// inFlight guards against two reindex operations touching the
	// same path at once.
	mu       sync.Mutex
	inFlight map[string]bool
}

// NewIndexer creates an indexer.
func NewIndexer(repoRoot string, cache *Cache, summarizer llm.Summarizer, config *Config, logger *logging.Logger) *Indexer {
	if config == nil {
		config = DefaultConfig()
	}
	return &Indexer{
		repoRoot:   repoRoot,
		cache:      cache,
		detector:   NewDetector(repoRoot, cache, config, logger),
		summarizer: summarizer,
		config:     config,
		logger:     logger,
		inFlight:   make(map[string]bool),
	}
}

// SetProgress registers the progress callback.
func (ix *Indexer) SetProgress(fn ProgressFunc) {
	ix.progress = fn
}

// Detector returns the underlying change detector.
func (ix *Indexer) Detector() *Detector {
	return ix.detector
}

// Reindex scans the tree, re-summarizes changed files, removes deleted
// entries, advances the watermark, and persists the snapshot. Per-file
// summarization failures degrade to preview entries and never abort
// the run.
func (ix *Indexer) Reindex(ctx context.Context) (*Stats, error) {
	start := time.Now()

	scan, err := ix.detector.ScanTree()
	if err != nil {
		return nil, fmt.Errorf("change detection failed: %w", err)
	}

	stats := &Stats{Scanned: len(scan.Unchanged) + len(scan.Changed)}

	ix.logger.Info("Reindex starting", map[string]interface{}{
		"changed":   len(scan.Changed),
		"unchanged": len(scan.Unchanged),
		"deleted":   len(scan.Deleted),
	})

	if len(scan.Changed) > 0 {
		reindexed, degraded := ix.reindexFiles(ctx, scan.Changed)
		stats.Reindexed = reindexed
		stats.Degraded = degraded
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if len(scan.Deleted) > 0 {
		ix.cache.Remove(scan.Deleted)
		stats.Deleted = len(scan.Deleted)
	}

	ix.cache.SetWatermark(scan.Watermark)

	if err := ix.cache.Save(); err != nil {
		// The in-memory index stays authoritative; a failed save is
		// logged, not rolled back.
		ix.logger.Error("Failed to persist cache snapshot", map[string]interface{}{
			"error": err.Error(),
		})
	}

	stats.Duration = time.Since(start)

	ix.logger.Info("Reindex complete", map[string]interface{}{
		"reindexed": stats.Reindexed,
		"degraded":  stats.Degraded,
		"deleted":   stats.Deleted,
		"entries":   ix.cache.Len(),
		"duration":  stats.Duration.Round(time.Millisecond).String(),
	})

	return stats, nil
}

// reindexFiles summarizes the changed set with a bounded worker pool.
func (ix *Indexer) reindexFiles(ctx context.Context, changed []string) (reindexed, degraded int) {
	concurrency := ix.config.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var done int

	total := len(changed)

	for _, path := range changed {
		if ctx.Err() != nil {
			break
		}
		if !ix.claim(path) {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(path string) {
			defer wg.Done()
			defer func() { <-sem }()
			defer ix.release(path)

			ok := ix.reindexOne(ctx, path, total, &done, &mu)

			mu.Lock()
			if ok {
				reindexed++
			} else {
				degraded++
			}
			mu.Unlock()
		}(path)
	}

	wg.Wait()
	return reindexed, degraded
}

// reindexOne summarizes a single file and writes its cache entry.
// Returns false if the entry was degraded.
func (ix *Indexer) reindexOne(ctx context.Context, path string, total int, done *int, mu *sync.Mutex) bool {
	ix.report(ProgressEvent{Path: path, State: ProgressIndexing, Total: total})

	full := filepath.Join(ix.repoRoot, filepath.FromSlash(path))
	content, err := os.ReadFile(full)
	if err != nil {
		// The file raced away between scan and read; the next scan
		// will report it deleted.
		ix.logger.Warn("Skipping unreadable file", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
		ix.finish(path, ProgressDegraded, total, done, mu)
		return false
	}

	language := DetectLanguage(path)
	state := ProgressDone
	healthy := true

	summary, err := ix.summarizer.Summarize(ctx, string(content), language)
	if err != nil {
		// Degraded entry: the path stays in the index with a raw
		// preview instead of dropping out.
		ix.logger.Warn("Summarization failed, writing degraded entry", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
		summary = degradedSummary(string(content))
		state = ProgressDegraded
		healthy = false
	}

	ix.cache.Put(Entry{
		Path:          path,
		Summary:       summary,
		Language:      language,
		LastIndexedAt: time.Now(),
	})

	ix.finish(path, state, total, done, mu)
	return healthy
}

func (ix *Indexer) finish(path string, state ProgressState, total int, done *int, mu *sync.Mutex) {
	mu.Lock()
	*done++
	d := *done
	mu.Unlock()
	ix.report(ProgressEvent{Path: path, State: state, Done: d, Total: total})
}

func (ix *Indexer) report(ev ProgressEvent) {
	if ix.progress != nil {
		ix.progress(ev)
	}
}

func (ix *Indexer) claim(path string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.inFlight[path] {
		return false
	}
	ix.inFlight[path] = true
	return true
}

func (ix *Indexer) release(path string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.inFlight, path)
}

// degradedSummary builds the fallback summary from a raw content
// prefix.
func degradedSummary(content string) string {
	preview := content
	if len(preview) > degradedPreviewLen {
		preview = preview[:degradedPreviewLen]
	}
	return "Failed to summarize. File content preview: " + preview
}
