package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Format: JSONFormat, Level: DebugLevel, Output: &buf})

	logger.Info("something happened", map[string]interface{}{"count": 3})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected valid JSON, got %q: %v", buf.String(), err)
	}
	if entry["level"] != "info" || entry["message"] != "something happened" {
		t.Errorf("Unexpected entry: %v", entry)
	}
	fields, ok := entry["fields"].(map[string]interface{})
	if !ok || fields["count"] != float64(3) {
		t.Errorf("Expected fields to carry count=3, got %v", entry["fields"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Format: JSONFormat, Level: WarnLevel, Output: &buf})

	logger.Debug("hidden", nil)
	logger.Info("hidden", nil)
	if buf.Len() != 0 {
		t.Errorf("Below-threshold levels must be suppressed, got %q", buf.String())
	}

	logger.Warn("visible", nil)
	if buf.Len() == 0 {
		t.Errorf("Warn must pass a warn threshold")
	}
}

func TestComponentTag(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Format: HumanFormat, Level: InfoLevel, Output: &buf}).WithComponent("index")

	logger.Info("scan complete", nil)
	if !strings.Contains(buf.String(), "(index)") {
		t.Errorf("Expected component tag in output, got %q", buf.String())
	}
}
