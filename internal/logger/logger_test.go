package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap/zapcore"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(Config{Level: "debug", Format: "json"}, zapcore.AddSync(&buf))
	if err != nil {
		t.Fatalf("newLogger failed: %v", err)
	}

	log.WithComponent("scrubber").WithEventID("abc").LogScrubResult(2, 0, time.Millisecond)
	_ = log.Sync()

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not json: %v (%s)", err, buf.String())
	}
	if entry["component"] != "scrubber" || entry["event_id"] != "abc" {
		t.Errorf("missing context fields: %v", entry)
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Errorf("missing timestamp key: %v", entry)
	}
	if entry["remarks"] != float64(2) {
		t.Errorf("unexpected remarks field: %v", entry["remarks"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(Config{Level: "warn", Format: "console"}, zapcore.AddSync(&buf))
	if err != nil {
		t.Fatalf("newLogger failed: %v", err)
	}

	log.Info("hidden")
	log.Warn("shown")
	_ = log.Sync()

	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scrubber.log")
	log, err := newLogger(Config{
		Level:  "info",
		Format: "json",
		File:   &FileConfig{Enabled: true, Path: path},
	}, zapcore.AddSync(&bytes.Buffer{}))
	if err != nil {
		t.Fatalf("newLogger failed: %v", err)
	}

	log.WithProject("42").Info("written")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), `"project_id":"42"`) {
		t.Errorf("unexpected file content %s", data)
	}
}

func TestInvalidLevel(t *testing.T) {
	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
}
