package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func resetState() {
	CloseAll()
	configMu.Lock()
	config = Config{}
	configMu.Unlock()
}

func TestInitialize_RequiresDir(t *testing.T) {
	resetState()
	if err := Initialize("", Config{}); err == nil {
		t.Fatal("expected error for empty data directory")
	}
}

func TestProductionModeWritesNothing(t *testing.T) {
	resetState()
	defer resetState()

	dir := t.TempDir()
	if err := Initialize(dir, Config{DebugMode: false}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	Store("should not be written")
	if IsDebugMode() {
		t.Error("expected debug mode to be disabled")
	}
	if _, err := os.Stat(filepath.Join(dir, "logs")); !os.IsNotExist(err) {
		t.Errorf("logs directory should not exist in production mode")
	}
}

func TestCategoryFilesCreated(t *testing.T) {
	resetState()
	defer resetState()

	dir := t.TempDir()
	cfg := Config{
		DebugMode:  true,
		Level:      "debug",
		Categories: map[string]bool{"audio": false},
	}
	if err := Initialize(dir, cfg); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	Store("store message %d", 1)
	StoryDebug("story debug")
	Audio("disabled category")
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(dir, "logs"))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	joined := strings.Join(names, ",")
	for _, want := range []string{"_boot.log", "_store.log", "_story.log"} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected a %s file, got %v", want, names)
		}
	}
	if strings.Contains(joined, "_audio.log") {
		t.Errorf("disabled category should not create a file, got %v", names)
	}

	date := time.Now().Format("2006-01-02")
	data, err := os.ReadFile(filepath.Join(dir, "logs", date+"_store.log"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(data), "store message 1") {
		t.Errorf("store log missing message: %q", data)
	}
}

func TestNoopLoggerIsSafe(t *testing.T) {
	resetState()
	l := Get(CategoryBackend)
	l.Debug("x")
	l.Info("x")
	l.Warn("x")
	l.Error("x")
	if l.With("k", "v") != l {
		t.Error("With on a no-op logger should return the same logger")
	}
}

func TestTimer(t *testing.T) {
	resetState()
	timer := StartTimer(CategoryStore, "TestOperation")
	time.Sleep(time.Millisecond)
	if elapsed := timer.Stop(); elapsed <= 0 {
		t.Error("Timer should have recorded non-zero duration")
	}
	if elapsed := StartTimer(CategoryStore, "op").StopWithThreshold(time.Hour); elapsed < 0 {
		t.Error("negative duration")
	}
}
