package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeask/internal/logging"
)

// SnapshotFile is the cache file name under the .codeask directory.
const SnapshotFile = "index_cache.json"

// Cache is the in-memory summary index backed by a single snapshot
// file. Only the Indexer writes entries; readers get copies.
type Cache struct {
	path   string
	logger *logging.Logger

	mu        sync.RWMutex
	entries   map[string]Entry
	watermark int64
}

// NewCache creates a cache persisted under repoRoot/.codeask.
func NewCache(repoRoot string, logger *logging.Logger) *Cache {
	return &Cache{
		path:    filepath.Join(repoRoot, ".codeask", SnapshotFile),
		logger:  logger,
		entries: make(map[string]Entry),
	}
}

// Load reads the snapshot from disk. A missing file is an empty cache.
// A corrupt file is logged and treated as an empty cache rather than
// failing startup.
func (c *Cache) Load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read cache snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		c.logger.Warn("Cache snapshot is corrupt, starting empty", map[string]interface{}{
			"path":  c.path,
			"error": err.Error(),
		})
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = snap.Entries
	if c.entries == nil {
		c.entries = make(map[string]Entry)
	}
	c.watermark = snap.Watermark

	c.logger.Debug("Cache snapshot loaded", map[string]interface{}{
		"entries": len(c.entries),
	})
	return nil
}

// Save writes the snapshot atomically: to a temp file in the same
// directory, then rename over the target. A crash mid-write can never
// truncate the previous snapshot.
func (c *Cache) Save() error {
	c.mu.RLock()
	snap := Snapshot{
		Timestamp: time.Now().Unix(),
		Watermark: c.watermark,
		Entries:   make(map[string]Entry, len(c.entries)),
	}
	for k, v := range c.entries {
		snap.Entries[k] = v
	}
	c.mu.RUnlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cache snapshot: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, SnapshotFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()          //nolint:errcheck // Best effort cleanup
		os.Remove(tmpPath)   //nolint:errcheck // Best effort cleanup
		return fmt.Errorf("failed to write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath) //nolint:errcheck // Best effort cleanup
		return fmt.Errorf("failed to close temp snapshot: %w", err)
	}

	if err := os.Rename(tmpPath, c.path); err != nil {
		os.Remove(tmpPath) //nolint:errcheck // Best effort cleanup
		return fmt.Errorf("failed to replace cache snapshot: %w", err)
	}

	return nil
}

// Get returns the entry for a path.
func (c *Cache) Get(path string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[path]
	return e, ok
}

// Put inserts or overwrites an entry.
func (c *Cache) Put(entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.Path] = entry
}

// Remove deletes entries for the given paths.
func (c *Cache) Remove(paths []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range paths {
		delete(c.entries, p)
	}
}

// Entries returns a copy of all entries.
func (c *Cache) Entries() map[string]Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Entry, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Watermark returns the max modification time seen in the last run.
func (c *Cache) Watermark() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.watermark
}

// SetWatermark records the max modification time for the current run.
// The watermark is a coarse hint only; per-file mtimes stay
// authoritative for staleness.
func (c *Cache) SetWatermark(w int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w > c.watermark {
		c.watermark = w
	}
}

// Path returns the snapshot file location.
func (c *Cache) Path() string {
	return c.path
}
