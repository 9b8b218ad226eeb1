package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(Config{Level: "warn"}, &buf)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn should be written: %s", out)
	}
}

func TestNewLoggerFileSink(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "cruisewatch.log")
	logger := newLogger(Config{Level: "info", File: path, MaxSizeMB: 1}, &buf)

	logger.Info().Str("component", "test").Msg("to both")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "to both") {
		t.Fatalf("file sink missing entry: %s", data)
	}
	if !strings.Contains(buf.String(), "to both") {
		t.Fatalf("stdout sink missing entry: %s", buf.String())
	}
}
