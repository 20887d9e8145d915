package query

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"codeask/internal/errors"
)

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

func TestAssembleConcatenatesInRankOrder(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, tmpDir, "first.rs", "fn first() {}")
	writeFile(t, tmpDir, "second.rs", "fn second() {}")

	a := NewAssembler(tmpDir, 0, testLogger())
	context, err := a.Assemble([]Match{
		{Path: "first.rs", Score: 0.9},
		{Path: "second.rs", Score: 0.5},
	})
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	if !strings.Contains(context, "File: first.rs") || !strings.Contains(context, "fn first() {}") {
		t.Errorf("Context missing first file block")
	}
	if strings.Index(context, "first.rs") > strings.Index(context, "second.rs") {
		t.Errorf("Files must appear in rank order")
	}
}

func TestAssembleSkipsUnreadableFiles(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, tmpDir, "live.rs", "fn live() {}")

	a := NewAssembler(tmpDir, 0, testLogger())
	context, err := a.Assemble([]Match{
		{Path: "vanished.rs", Score: 0.9},
		{Path: "live.rs", Score: 0.5},
	})
	if err != nil {
		t.Fatalf("A vanished file must not abort the query: %v", err)
	}
	if !strings.Contains(context, "live.rs") {
		t.Errorf("Readable file should survive, got %q", context)
	}
	if strings.Contains(context, "vanished.rs") {
		t.Errorf("Vanished file must be skipped")
	}
}

func TestAssembleFailsWhenNothingReadable(t *testing.T) {
	a := NewAssembler(t.TempDir(), 0, testLogger())
	_, err := a.Assemble([]Match{{Path: "gone.rs", Score: 0.9}})
	if err == nil {
		t.Fatal("Expected error when every selected file is unreadable")
	}
	if !errors.IsCode(err, errors.FileAccess) {
		t.Errorf("Expected FILE_ACCESS error, got %v", err)
	}
}

func TestAssembleEmptyMatchesYieldsEmptyContext(t *testing.T) {
	a := NewAssembler(t.TempDir(), 0, testLogger())
	context, err := a.Assemble(nil)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if context != "" {
		t.Errorf("Expected empty context, got %q", context)
	}
}

func TestAssembleHonorsByteBudget(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, tmpDir, "a.rs", strings.Repeat("a", 100))
	writeFile(t, tmpDir, "b.rs", strings.Repeat("b", 100))

	a := NewAssembler(tmpDir, 80, testLogger())
	context, err := a.Assemble([]Match{
		{Path: "a.rs", Score: 0.9},
		{Path: "b.rs", Score: 0.5},
	})
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if len(context) > 80 {
		t.Errorf("Context exceeds budget: %d bytes", len(context))
	}
	if !strings.Contains(context, "a.rs") {
		t.Errorf("Highest-ranked file should be included first")
	}
	if strings.Contains(context, "bbbb") {
		t.Errorf("Budget should exclude the lower-ranked file's content")
	}
}
