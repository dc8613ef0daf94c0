package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGetBeforeInitializeIsNoop(t *testing.T) {
	// Must not panic even when Initialize was never called.
	Get(CategoryBoot).Info("ignored")
}

func TestInitializeWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.log")
	if err := Initialize(Options{Level: "debug", File: path}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	Get(CategoryLedger).Infow("recorded reply", "author", "alice")
	Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "recorded reply") {
		t.Errorf("log file missing entry, got: %s", data)
	}
	if !strings.Contains(string(data), "\"logger\":\"ledger\"") {
		t.Errorf("expected named logger in output, got: %s", data)
	}
}

func TestGetCachesPerCategory(t *testing.T) {
	if err := Initialize(Options{Level: "info"}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if Get(CategoryBrain) != Get(CategoryBrain) {
		t.Error("expected the same logger instance for a category")
	}
}
