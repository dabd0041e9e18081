package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LogLevel(999), "UNKNOWN"},
	}

	for _, test := range tests {
		result := test.level.String()
		if result != test.expected {
			t.Errorf("LogLevel(%d).String() = %s, expected %s", test.level, result, test.expected)
		}
	}
}

func TestLogLevel_SlogLevel(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{LogLevel(999), slog.LevelInfo}, // Default for unknown
	}

	for _, test := range tests {
		result := test.level.SlogLevel()
		if result != test.expected {
			t.Errorf("LogLevel(%d).SlogLevel() = %v, expected %v", test.level, result, test.expected)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"ERROR", LevelError},
		{"  error ", LevelError},
		{"bogus", LevelInfo},
		{"", LevelInfo},
	}

	for _, test := range tests {
		if got := ParseLevel(test.input); got != test.expected {
			t.Errorf("ParseLevel(%q) = %v, expected %v", test.input, got, test.expected)
		}
	}
}

func TestInit_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelWarn, &buf)

	Debug("Test", "debug message")
	Info("Test", "info message")
	Warn("Test", "warn message")
	Error("Test", errors.New("boom"), "error message")

	out := buf.String()
	if strings.Contains(out, "debug message") {
		t.Error("debug message should be filtered at warn level")
	}
	if strings.Contains(out, "info message") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(out, "warn message") {
		t.Error("warn message should be logged")
	}
	if !strings.Contains(out, "error message") {
		t.Error("error message should be logged")
	}
	if !strings.Contains(out, "boom") {
		t.Error("error attribute should be logged")
	}
	if !strings.Contains(out, "subsystem=Test") {
		t.Error("subsystem attribute should be logged")
	}
}

func TestInit_FormatArgs(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelInfo, &buf)

	Info("Test", "loaded %d tools for persona %s", 3, "default")

	if !strings.Contains(buf.String(), "loaded 3 tools for persona default") {
		t.Errorf("formatted message missing from output: %s", buf.String())
	}
}

func TestInitWithFile_CreatesAndPrunes(t *testing.T) {
	dir := t.TempDir()

	// Pre-seed more than maxLogFiles stale log files.
	for i := 0; i < maxLogFiles+3; i++ {
		name := filepath.Join(dir, strings.ReplaceAll("chimera_20200101_0000NN_000000.log", "NN", string(rune('0'+i/10))+string(rune('0'+i%10))))
		if err := os.WriteFile(name, []byte("old"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	path, err := InitWithFile(LevelInfo, dir)
	if err != nil {
		t.Fatalf("InitWithFile returned error: %v", err)
	}
	defer Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("log file was not created: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "chimera_") && strings.HasSuffix(e.Name(), ".log") {
			count++
		}
	}
	if count > maxLogFiles {
		t.Errorf("expected at most %d log files after pruning, found %d", maxLogFiles, count)
	}

	Info("Test", "written to file")
	Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Error("log entry missing from file sink")
	}
}
