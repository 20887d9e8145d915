package index

import (
	"io/fs"
	"path/filepath"
	"strings"

	"codeask/internal/logging"
)

// Detector partitions the file tree into unchanged, changed, and
// deleted sets by comparing modification times against the cache.
type Detector struct {
	repoRoot string
	cache    *Cache
	config   *Config
	logger   *logging.Logger
}

// NewDetector creates a change detector rooted at repoRoot.
func NewDetector(repoRoot string, cache *Cache, config *Config, logger *logging.Logger) *Detector {
	if config == nil {
		config = DefaultConfig()
	}
	return &Detector{
		repoRoot: repoRoot,
		cache:    cache,
		config:   config,
		logger:   logger,
	}
}

// ScanTree walks the tree and classifies every allow-listed file.
// A file absent from the cache, newer than its cached entry, or with
// unreadable metadata counts as changed; failing open toward
// re-indexing is always preferred over silent staleness. Deleted is
// exactly the set of cached paths the walk did not see.
func (d *Detector) ScanTree() (*Scan, error) {
	cached := d.cache.Entries()
	seen := make(map[string]bool, len(cached))

	result := &Scan{}

	err := filepath.WalkDir(d.repoRoot, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // Skip inaccessible entries, continue walking
		}

		rel, relErr := filepath.Rel(d.repoRoot, path)
		if relErr != nil {
			return nil //nolint:nilerr // Outside the root, skip
		}
		rel = filepath.ToSlash(rel)

		if entry.IsDir() {
			if rel != "." && d.isExcluded(rel, entry.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.isAllowed(rel) || d.isExcluded(rel, entry.Name()) {
			return nil
		}

		info, infoErr := entry.Info()
		if infoErr != nil {
			// Metadata unreadable: treat as changed
			seen[rel] = true
			result.Changed = append(result.Changed, rel)
			return nil
		}

		if d.config.MaxFileSizeBytes > 0 && info.Size() > d.config.MaxFileSizeBytes {
			return nil
		}

		mtime := info.ModTime()
		if mtime.Unix() > result.Watermark {
			result.Watermark = mtime.Unix()
		}

		seen[rel] = true

		prev, ok := cached[rel]
		if !ok || mtime.After(prev.LastIndexedAt) {
			result.Changed = append(result.Changed, rel)
		} else {
			result.Unchanged = append(result.Unchanged, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for path := range cached {
		if !seen[path] {
			result.Deleted = append(result.Deleted, path)
		}
	}

	return result, nil
}

// isAllowed checks the extension allow-list.
func (d *Detector) isAllowed(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range d.config.Extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// isExcluded checks exclude patterns against the relative path and the
// base name. Patterns act as globs and as directory prefixes.
func (d *Detector) isExcluded(rel, base string) bool {
	for _, pattern := range d.config.Excludes {
		p := filepath.ToSlash(pattern)
		if base == p || rel == p {
			return true
		}
		if matched, _ := filepath.Match(p, rel); matched {
			return true
		}
		if strings.HasPrefix(rel, strings.TrimSuffix(p, "/")+"/") {
			return true
		}
	}
	return false
}
