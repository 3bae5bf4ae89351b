package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.log")
	log, err := New(Options{Level: "debug", Format: "json", File: path})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	log.Debug("sweep finished")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := strings.TrimSpace(strings.Split(string(data), "\n")[0])
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("expected json line, got %q: %v", line, err)
	}
	if entry["msg"] != "sweep finished" || entry["level"] != "DEBUG" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNewRejectsBadOptions(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatalf("expected level error")
	}
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatalf("expected format error")
	}
}
