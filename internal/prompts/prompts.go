// Package prompts holds the prompt templates sent to the LLM.
//
// Defaults are embedded; a repo can override individual templates by
// placing a prompts.yaml under .codeask/.
package prompts

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// Set holds the parsed prompt templates.
type Set struct {
	summarize   *template.Template
	scoreHeader *template.Template
	scoreEntry  *template.Template
	scoreFooter string
	answer      *template.Template
	system      string
}

type rawSet struct {
	Summarize   string `yaml:"summarize"`
	ScoreHeader string `yaml:"scoreHeader"`
	ScoreEntry  string `yaml:"scoreEntry"`
	ScoreFooter string `yaml:"scoreFooter"`
	Answer      string `yaml:"answer"`
	System      string `yaml:"system"`
}

// Load returns the prompt set for a repo, applying overrides from
// .codeask/prompts.yaml when present.
func Load(repoRoot string) (*Set, error) {
	var raw rawSet
	if err := yaml.Unmarshal(defaultPrompts, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse embedded prompts: %w", err)
	}

	overridePath := filepath.Join(repoRoot, ".codeask", "prompts.yaml")
	if data, err := os.ReadFile(overridePath); err == nil {
		var override rawSet
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", overridePath, err)
		}
		raw.merge(override)
	}

	return raw.compile()
}

// Default returns the embedded prompt set.
func Default() *Set {
	var raw rawSet
	if err := yaml.Unmarshal(defaultPrompts, &raw); err != nil {
		panic(fmt.Sprintf("embedded prompts are invalid: %v", err))
	}
	set, err := raw.compile()
	if err != nil {
		panic(fmt.Sprintf("embedded prompts are invalid: %v", err))
	}
	return set
}

func (r *rawSet) merge(o rawSet) {
	if o.Summarize != "" {
		r.Summarize = o.Summarize
	}
	if o.ScoreHeader != "" {
		r.ScoreHeader = o.ScoreHeader
	}
	if o.ScoreEntry != "" {
		r.ScoreEntry = o.ScoreEntry
	}
	if o.ScoreFooter != "" {
		r.ScoreFooter = o.ScoreFooter
	}
	if o.Answer != "" {
		r.Answer = o.Answer
	}
	if o.System != "" {
		r.System = o.System
	}
}

func (r *rawSet) compile() (*Set, error) {
	s := &Set{
		scoreFooter: r.ScoreFooter,
		system:      r.System,
	}

	var err error
	if s.summarize, err = template.New("summarize").Parse(r.Summarize); err != nil {
		return nil, fmt.Errorf("invalid summarize template: %w", err)
	}
	if s.scoreHeader, err = template.New("scoreHeader").Parse(r.ScoreHeader); err != nil {
		return nil, fmt.Errorf("invalid scoreHeader template: %w", err)
	}
	if s.scoreEntry, err = template.New("scoreEntry").Parse(r.ScoreEntry); err != nil {
		return nil, fmt.Errorf("invalid scoreEntry template: %w", err)
	}
	if s.answer, err = template.New("answer").Parse(r.Answer); err != nil {
		return nil, fmt.Errorf("invalid answer template: %w", err)
	}
	return s, nil
}

func render(t *template.Template, data interface{}) string {
	var sb strings.Builder
	// Templates are validated at load time; render errors only occur
	// for missing fields, which would be a programming error.
	_ = t.Execute(&sb, data)
	return sb.String()
}

// Summarize renders the per-file summarization prompt.
func (s *Set) Summarize(content, language string) string {
	return render(s.summarize, struct{ Content, Language string }{content, language})
}

// ScoreEntry renders one labeled summary line for the relevance prompt.
func (s *Set) ScoreEntry(path, summary string) string {
	return render(s.scoreEntry, struct{ Path, Summary string }{path, summary})
}

// Score renders the full relevance-scoring prompt over labeled summaries.
func (s *Set) Score(query string, entries []string) string {
	var sb strings.Builder
	sb.WriteString(render(s.scoreHeader, struct{ Query string }{query}))
	sb.WriteString("\n\n")
	for _, e := range entries {
		sb.WriteString(e)
		sb.WriteString("\n\n")
	}
	sb.WriteString(s.scoreFooter)
	return sb.String()
}

// Answer renders the final user message combining context and query.
func (s *Set) Answer(context, query string) string {
	return render(s.answer, struct{ Context, Query string }{context, query})
}

// System returns the system prompt for answer generation.
func (s *Set) System() string {
	return s.system
}
