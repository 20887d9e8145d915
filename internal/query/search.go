// Package query turns a user question into an answer-ready context:
// relevance search over the index followed by context assembly from
// the selected files.
package query

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"codeask/internal/index"
	"codeask/internal/llm"
	"codeask/internal/logging"
	"codeask/internal/prompts"
)

// DefaultTopK bounds how many files feed the answer context.
const DefaultTopK = 5

// Match is one scored index entry.
type Match struct {
	Path  string
	Score float64
}

// Searcher ranks index entries against a query with a single scoring
// call over all summaries.
type Searcher struct {
	cache   *index.Cache
	scorer  llm.Scorer
	prompts *prompts.Set
	logger  *logging.Logger
	topK    int
}

// NewSearcher creates a searcher. topK <= 0 selects DefaultTopK.
func NewSearcher(cache *index.Cache, scorer llm.Scorer, set *prompts.Set, logger *logging.Logger, topK int) *Searcher {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Searcher{
		cache:   cache,
		scorer:  scorer,
		prompts: set,
		logger:  logger,
		topK:    topK,
	}
}

// Search scores every indexed file against the query and returns the
// top matches, highest score first. Ties break lexicographically by
// path so identical inputs always rank identically. An empty index
// returns no matches without calling the model.
func (s *Searcher) Search(ctx context.Context, query string) ([]Match, error) {
	entries := s.cache.Entries()
	if len(entries) == 0 {
		return nil, nil
	}

	// Stable summary order keeps the scoring prompt deterministic.
	paths := make([]string, 0, len(entries))
	for path := range entries {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	labeled := make([]string, 0, len(paths))
	for _, path := range paths {
		labeled = append(labeled, s.prompts.ScoreEntry(path, entries[path].Summary))
	}

	raw, err := s.scorer.Score(ctx, query, labeled)
	if err != nil {
		return nil, err
	}

	matches := parseScores(raw, entries, s.logger)

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Path < matches[j].Path
	})

	if len(matches) > s.topK {
		matches = matches[:s.topK]
	}
	return matches, nil
}

// parseScores reads "path,score" lines out of the model response.
// Malformed lines degrade rather than fail: the wrong field count
// skips the line, an unparseable score becomes 0.0, and paths the
// index does not know are dropped.
func parseScores(raw string, entries map[string]index.Entry, logger *logging.Logger) []Match {
	var matches []Match
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != 2 {
			logger.Debug("Skipping malformed score line", map[string]interface{}{
				"line": line,
			})
			continue
		}
		path := strings.TrimSpace(fields[0])
		if _, ok := entries[path]; !ok {
			logger.Debug("Skipping score for unknown path", map[string]interface{}{
				"path": path,
			})
			continue
		}
		score, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		if err != nil {
			score = 0.0
		}
		matches = append(matches, Match{Path: path, Score: score})
	}
	return matches
}
