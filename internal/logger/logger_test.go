package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"info":    slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q)=%v,%v want %v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestWriter_Defaults(t *testing.T) {
	if w := (Config{}).Writer(); w != nil {
		t.Fatalf("expected nil writer without file")
	}
	w := Config{File: "x"}.Writer()
	l, ok := w.(*lj.Logger)
	if !ok {
		t.Fatalf("writer is not lumberjack.Logger")
	}
	if l.MaxSize != 10 || l.MaxBackups != 3 || l.MaxAge != 7 {
		t.Fatalf("unexpected defaults: size=%d backups=%d age=%d", l.MaxSize, l.MaxBackups, l.MaxAge)
	}
}

func TestWriter_Overrides(t *testing.T) {
	cfg := Config{File: "x2", MaxSizeMB: 1, MaxBackups: 9, MaxAgeDays: 11, Compress: true}
	l := cfg.Writer().(*lj.Logger)
	if l.MaxSize != 1 || l.MaxBackups != 9 || l.MaxAge != 11 || !l.Compress {
		t.Fatalf("unexpected overrides: size=%d backups=%d age=%d compress=%t", l.MaxSize, l.MaxBackups, l.MaxAge, l.Compress)
	}
}

func TestNew_FileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usagelog.log")
	log, closer, err := New(Config{Level: "debug", Format: "json", File: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Debug("flushed", "records", 3)
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not created: %v", err)
	}
	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &line); err != nil {
		t.Fatalf("not JSON: %q", data)
	}
	if line["msg"] != "flushed" || line["records"] != float64(3) {
		t.Fatalf("unexpected line: %v", line)
	}
}

func TestNew_BadLevel(t *testing.T) {
	if _, _, err := New(Config{Level: "chatty"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestColorTextHandler(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "text", &slog.HandlerOptions{Level: slog.LevelDebug}, true)
	log.With("session", "000042").Warn("flush failed")

	out := buf.String()
	if !strings.Contains(out, "\033[33mWARN\033[0m") {
		t.Fatalf("missing color prefix: %q", out)
	}
	if !strings.Contains(out, "session=000042") {
		t.Fatalf("attrs lost on derived logger: %q", out)
	}
}

func TestColorTextHandler_HideTime(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewColorTextHandler(&buf, nil, false)).Info("hi")
	if strings.Contains(buf.String(), "time=") {
		t.Fatalf("time should be hidden: %q", buf.String())
	}
}
