package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSlogHandlerForwarding(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "slog.log")

	base, err := New(LevelDebug, logPath, "rpc")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer base.Close()

	sl := slog.New(NewSlogHandler(base))
	sl.Info("request dispatched", "command", "ping", "elapsed_ms", 12)
	sl.WithGroup("socket").Warn("send retry", "attempt", 2)
	sl.Debug("verbose detail")

	base.Close()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	contentStr := string(content)

	if !strings.Contains(contentStr, "request dispatched command=ping elapsed_ms=12") {
		t.Errorf("missing formatted attrs, got: %s", contentStr)
	}
	if !strings.Contains(contentStr, "send retry socket.attempt=2") {
		t.Errorf("missing group-prefixed attr, got: %s", contentStr)
	}
	if !strings.Contains(contentStr, "[WARN]") {
		t.Errorf("slog warn should map to WARN level")
	}
	if !strings.Contains(contentStr, "verbose detail") {
		t.Errorf("debug record should pass at LevelDebug")
	}
}

func TestSlogHandlerLevelFilter(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "slog.log")

	base, err := New(LevelWarn, logPath, "")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer base.Close()

	sl := slog.New(NewSlogHandler(base))
	sl.Info("suppressed")
	sl.Error("kept")

	base.Close()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if strings.Contains(string(content), "suppressed") {
		t.Errorf("info record should be filtered at LevelWarn")
	}
	if !strings.Contains(string(content), "kept") {
		t.Errorf("error record should pass at LevelWarn")
	}
}

func TestSlogHandlerNil(t *testing.T) {
	if NewSlogHandler(nil) != nil {
		t.Errorf("nil logger should yield nil handler")
	}
}
