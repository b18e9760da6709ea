package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger_WritesJSONToFile(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "logs", "agentherd.log")

	logger, err := NewLogger(logPath, LevelInfo)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.Info("session started", "session", "build", "pid", 42)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}

	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatalf("log record is not JSON: %v", err)
	}
	if record["msg"] != "session started" {
		t.Errorf("expected msg 'session started', got %v", record["msg"])
	}
	if record["session"] != "build" {
		t.Errorf("expected session attr 'build', got %v", record["session"])
	}
}

func TestWithSession_PropagatesAttr(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "agentherd.log")

	logger, err := NewLogger(logPath, LevelInfo)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	child := logger.WithSession("build").With("run", 2)
	child.Info("restarting")
	logger.Close()

	data, _ := os.ReadFile(logPath)
	line := strings.TrimSpace(string(data))

	var record map[string]any
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		t.Fatalf("log record is not JSON: %v", err)
	}
	if record["session"] != "build" {
		t.Errorf("child logger should carry session attr, got %v", record["session"])
	}
	if record["run"] != float64(2) {
		t.Errorf("child logger should carry run attr, got %v", record["run"])
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "agentherd.log")

	logger, err := NewLogger(logPath, LevelWarn)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.Debug("dropped")
	logger.Info("dropped too")
	logger.Warn("kept")
	logger.Close()

	data, _ := os.ReadFile(logPath)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected exactly 1 record at WARN level, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "kept") {
		t.Errorf("unexpected record: %s", lines[0])
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger
	logger.Info("no-op")
	if err := logger.Close(); err != nil {
		t.Errorf("nil Close should be nil, got %v", err)
	}
}
