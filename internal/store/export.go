package store

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"
)

// ExportedSession bundles a session with its full message history.
type ExportedSession struct {
	Session  Session         `json:"session"`
	Messages []StoredMessage `json:"messages"`
}

// Export holds everything written to an export archive.
type Export struct {
	ExportedAt time.Time         `json:"exportedAt"`
	Sessions   []ExportedSession `json:"sessions"`
}

// ExportTo writes all recorded sessions and messages as
// zstd-compressed JSON to the given path.
func (t *Transcripts) ExportTo(path string) (int, error) {
	sessions, err := t.Sessions()
	if err != nil {
		return 0, err
	}

	export := Export{ExportedAt: time.Now()}
	for _, s := range sessions {
		messages, err := t.Messages(s.ID)
		if err != nil {
			return 0, err
		}
		export.Sessions = append(export.Sessions, ExportedSession{
			Session:  s,
			Messages: messages,
		})
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return 0, fmt.Errorf("failed to create compressor: %w", err)
	}

	enc := json.NewEncoder(zw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(export); err != nil {
		zw.Close()
		return 0, fmt.Errorf("failed to encode export: %w", err)
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("failed to finish compression: %w", err)
	}
	return len(export.Sessions), nil
}

// ReadExport reads a zstd-compressed export archive back.
func ReadExport(path string) (*Export, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open export file: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to create decompressor: %w", err)
	}
	defer zr.Close()

	var export Export
	if err := json.NewDecoder(zr).Decode(&export); err != nil {
		return nil, fmt.Errorf("failed to decode export: %w", err)
	}
	return &export, nil
}
