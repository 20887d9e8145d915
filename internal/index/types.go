// Package index maintains the persisted file-summary cache and its
// incremental reconciliation against the filesystem.
package index

import (
	"path/filepath"
	"strings"
	"time"
)

// Entry is one indexed file: its summary, language tag, and the time it
// was last summarized. For every cached path, LastIndexedAt is at least
// the file's modification time at the moment it was summarized; the
// reverse inequality defines staleness.
type Entry struct {
	Path          string    `json:"path"`
	Summary       string    `json:"summary"`
	Language      string    `json:"language"`
	LastIndexedAt time.Time `json:"lastIndexedAt"`
}

// Snapshot is the persisted form of the cache.
type Snapshot struct {
	Timestamp int64            `json:"timestamp"`
	Watermark int64            `json:"lastModification"`
	Entries   map[string]Entry `json:"entries"`
}

// Scan partitions the live file set against the cache.
// Unchanged+Changed together equal the allow-listed live files;
// Deleted is exactly the cached paths that no longer exist.
type Scan struct {
	Unchanged []string
	Changed   []string
	Deleted   []string
	// Watermark is the max modification time (unix seconds) observed
	// across live files.
	Watermark int64
}

// Stats summarizes one reindex run.
type Stats struct {
	Scanned   int
	Reindexed int
	Degraded  int
	Deleted   int
	Duration  time.Duration
}

// Config controls scanning and reindexing.
type Config struct {
	Extensions       []string
	Excludes         []string
	MaxFileSizeBytes int64
	Concurrency      int
}

// DefaultConfig returns the default indexing configuration.
func DefaultConfig() *Config {
	return &Config{
		Extensions:       []string{".rs", ".toml", ".md", ".py", ".go"},
		Excludes:         []string{".git", ".codeask", "vendor", "node_modules", "target", "dist"},
		MaxFileSizeBytes: 100 * 1024,
		Concurrency:      4,
	}
}

// Matches reports whether rel (a slash-separated path relative to the
// repo root) is an allow-listed, non-excluded source path.
func (c *Config) Matches(rel string) bool {
	ext := strings.ToLower(filepath.Ext(rel))
	allowed := false
	for _, a := range c.Extensions {
		if ext == a {
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}
	base := rel
	if i := strings.LastIndex(rel, "/"); i >= 0 {
		base = rel[i+1:]
	}
	for _, pattern := range c.Excludes {
		p := filepath.ToSlash(pattern)
		if base == p || rel == p {
			return false
		}
		if matched, _ := filepath.Match(p, rel); matched {
			return false
		}
		if strings.HasPrefix(rel, strings.TrimSuffix(p, "/")+"/") {
			return false
		}
		// A pattern naming a directory excludes everything under it
		// at any depth.
		if strings.Contains(rel, "/"+strings.TrimSuffix(p, "/")+"/") {
			return false
		}
	}
	return true
}

var languageByExtension = map[string]string{
	".rs":   "rust",
	".py":   "python",
	".go":   "go",
	".ts":   "typescript",
	".js":   "javascript",
	".java": "java",
	".c":    "c",
	".cpp":  "cpp",
	".toml": "toml",
	".md":   "markdown",
}

// DetectLanguage classifies a file by extension; unknown extensions
// map to "unknown".
func DetectLanguage(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := languageByExtension[ext]; ok {
		return lang
	}
	return "unknown"
}
