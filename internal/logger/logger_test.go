package logger

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestInit(t *testing.T) {
	configDir := t.TempDir()

	if err := Init(Config{ConfigDir: configDir}); err != nil {
		t.Fatalf("Failed to initialize logger: %v", err)
	}
	if Logger == nil {
		t.Fatal("Logger is nil after initialization")
	}

	Warn("Test warning message")

	logDir := LogPath(configDir)
	if _, err := os.Stat(logDir); os.IsNotExist(err) {
		t.Errorf("Log file was not created: %s", logDir)
	}
}

func TestInitWithOutput(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(Config{Output: &buf}); err != nil {
		t.Fatalf("Failed to initialize logger: %v", err)
	}

	Info("hidden at warn level")
	Warn("visible warning", "habit", "read")

	out := buf.String()
	if strings.Contains(out, "hidden at warn level") {
		t.Errorf("info message written at warn level: %q", out)
	}
	if !strings.Contains(out, "visible warning") || !strings.Contains(out, "habit=read") {
		t.Errorf("warning missing from output: %q", out)
	}
}

func TestPrintfAdapter(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(Config{Output: &buf}); err != nil {
		t.Fatalf("Failed to initialize logger: %v", err)
	}

	p := Printf{Component: "badger"}
	p.Debugf("compaction %d\n", 1)
	p.Warningf("value log %s\n", "rewrite")

	out := buf.String()
	if strings.Contains(out, "compaction") {
		t.Errorf("debug message written at warn level: %q", out)
	}
	if !strings.Contains(out, "value log rewrite") || !strings.Contains(out, "component=badger") {
		t.Errorf("adapter output missing: %q", out)
	}
}

func TestLogFunctionsWithoutInit(t *testing.T) {
	Logger = nil

	// These should not panic when Logger is nil
	Debug("Test debug message")
	Info("Test info message")
	Warn("Test warning message")
	Error("Test error message")
	Printf{Component: "test"}.Errorf("nothing %s", "here")

	if With("k", "v") != nil {
		t.Error("With should return nil without an initialized logger")
	}
}
