package logger

import (
	"bytes"
	"io"
	"log"
	"os"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"error", LevelError, false},
		{"DEBUG", LevelDebug, false},
		{"bogus", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{
		level:  LevelWarn,
		logger: log.New(&buf, "", 0),
	}

	l.Debug("debug line")
	l.Info("info line")
	l.Warn("warn line")
	l.Error("error line")

	out := buf.String()
	if strings.Contains(out, "debug line") || strings.Contains(out, "info line") {
		t.Errorf("lines below level were logged: %q", out)
	}
	if !strings.Contains(out, "warn line") || !strings.Contains(out, "error line") {
		t.Errorf("lines at or above level missing: %q", out)
	}
}

func TestMirrorReceivesInfoAndAbove(t *testing.T) {
	var mirror bytes.Buffer
	l := &Logger{
		level:  LevelDebug,
		logger: log.New(io.Discard, "", 0),
	}
	l.SetMirror(&mirror)

	l.Debug("file only")
	l.Info("remaining: 7")

	out := mirror.String()
	if strings.Contains(out, "file only") {
		t.Errorf("debug line leaked to mirror: %q", out)
	}
	if !strings.Contains(out, "remaining: 7") {
		t.Errorf("info line missing from mirror: %q", out)
	}
}

func TestSetFileAppends(t *testing.T) {
	path := t.TempDir() + "/taskloop.log"

	l := &Logger{level: LevelInfo, logger: log.New(io.Discard, "", log.LstdFlags)}
	if err := l.SetFile(path); err != nil {
		t.Fatalf("SetFile() error = %v", err)
	}
	l.Info("first run")
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	l2 := &Logger{level: LevelInfo, logger: log.New(io.Discard, "", log.LstdFlags)}
	if err := l2.SetFile(path); err != nil {
		t.Fatalf("SetFile() error = %v", err)
	}
	l2.Info("second run")
	if err := l2.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "first run") || !strings.Contains(string(data), "second run") {
		t.Errorf("log file is not append-only, got: %q", string(data))
	}
}
