package logx

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger(Options{Level: "warn", Format: "json", Out: &buf})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	log.Info().Msg("dropped")
	log.Warn().Str("component", "pool").Msg("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry["message"] != "kept" || entry["component"] != "pool" {
		t.Errorf("entry = %v", entry)
	}
	if caller, _ := entry["caller"].(string); !strings.HasPrefix(caller, "logx_test.go:") {
		t.Errorf("caller = %q", caller)
	}
}

func TestNewLoggerRejectsBadOptions(t *testing.T) {
	if _, err := NewLogger(Options{Level: "loud"}); err == nil {
		t.Error("expected error for bad level")
	}
	if _, err := NewLogger(Options{Format: "xml"}); err == nil {
		t.Error("expected error for bad format")
	}
}
