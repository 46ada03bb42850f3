package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	t.Run("InvalidLevel", func(t *testing.T) {
		if _, err := New(Config{Level: "loud"}); err == nil {
			t.Fatal("expected error for invalid level")
		}
	})

	t.Run("ConsoleWriter", func(t *testing.T) {
		var buf bytes.Buffer
		log, err := New(Config{Level: "info", Format: "json", Console: &buf})
		if err != nil {
			t.Fatalf("Failed to create logger: %v", err)
		}

		log.WithComponent("cli").Info("hello")
		_ = log.Sync()

		out := buf.String()
		if !strings.Contains(out, `"msg":"hello"`) {
			t.Errorf("expected message in output, got %q", out)
		}
		if !strings.Contains(out, `"component":"cli"`) {
			t.Errorf("expected component field, got %q", out)
		}
	})

	t.Run("LevelFilters", func(t *testing.T) {
		var buf bytes.Buffer
		log, err := New(Config{Level: "warn", Console: &buf})
		if err != nil {
			t.Fatalf("Failed to create logger: %v", err)
		}

		log.Info("hidden")
		_ = log.Sync()
		if buf.Len() != 0 {
			t.Errorf("info should be filtered at warn level, got %q", buf.String())
		}
	})

	t.Run("FileOutput", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "redact.log")
		var console bytes.Buffer

		log, err := New(Config{
			Level:   "info",
			Format:  "console",
			Console: &console,
			File:    &FileConfig{Enabled: true, Path: path},
		})
		if err != nil {
			t.Fatalf("Failed to create logger: %v", err)
		}

		log.LogRuleSet([]string{"phone", "name"}, "abc123")
		_ = log.Sync()

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("Failed to read log file: %v", err)
		}
		if !strings.Contains(string(data), "Redaction rules loaded") {
			t.Errorf("log file missing rule message: %q", data)
		}
		if !strings.Contains(console.String(), "Redaction rules loaded") {
			t.Errorf("console missing rule message: %q", console.String())
		}
	})

	t.Run("FileOpenError", func(t *testing.T) {
		_, err := New(Config{File: &FileConfig{Enabled: true, Path: filepath.Join(t.TempDir(), "missing", "x.log")}})
		if err == nil {
			t.Fatal("expected error for unwritable log path")
		}
	})
}

func TestLogCounts(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Level: "info", Console: &buf})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	log.LogCounts(map[string]int{"phone": 2, "name": 1})
	_ = log.Sync()

	out := buf.String()
	for _, want := range []string{`"redacted_phone":2`, `"redacted_name":1`, `"redacted_total":3`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in %q", want, out)
		}
	}
}
