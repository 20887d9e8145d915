package query

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"codeask/internal/errors"
	"codeask/internal/logging"
)

// DefaultMaxContextBytes caps the assembled context size.
const DefaultMaxContextBytes = 60_000

// Assembler re-reads the selected files from disk and formats them
// into the context block for answer generation. Summaries are for
// ranking only; answers always see current file contents.
type Assembler struct {
	repoRoot string
	maxBytes int
	logger   *logging.Logger
}

// NewAssembler creates an assembler. maxBytes <= 0 selects
// DefaultMaxContextBytes.
func NewAssembler(repoRoot string, maxBytes int, logger *logging.Logger) *Assembler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxContextBytes
	}
	return &Assembler{repoRoot: repoRoot, maxBytes: maxBytes, logger: logger}
}

// Assemble builds the context block from the matched files in rank
// order. Files that have become unreadable since indexing are skipped
// with a log line; the call fails with a file-access error only when
// every selected file is unreadable.
func (a *Assembler) Assemble(matches []Match) (string, error) {
	if len(matches) == 0 {
		return "", nil
	}

	var sb strings.Builder
	var included int
	var lastErr error

	for _, m := range matches {
		full := filepath.Join(a.repoRoot, filepath.FromSlash(m.Path))
		content, err := os.ReadFile(full)
		if err != nil {
			a.logger.Warn("Skipping unreadable file during context assembly", map[string]interface{}{
				"path":  m.Path,
				"error": err.Error(),
			})
			lastErr = err
			continue
		}

		block := fmt.Sprintf("File: %s\nContent:\n%s\n\n", m.Path, content)
		if sb.Len()+len(block) > a.maxBytes {
			remaining := a.maxBytes - sb.Len()
			if remaining <= 0 {
				break
			}
			// Higher-ranked files got their full text; the one that
			// crosses the budget is truncated rather than dropped.
			sb.WriteString(block[:remaining])
			included++
			break
		}
		sb.WriteString(block)
		included++
	}

	if included == 0 {
		return "", errors.Wrap(errors.FileAccess, "no selected file could be read", lastErr)
	}
	return sb.String(), nil
}
