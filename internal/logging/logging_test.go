package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewDisabled(t *testing.T) {
	log := New(false)
	if log.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("disabled logger should drop everything")
	}
}

func TestNewDebug(t *testing.T) {
	if !New(true).Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug logger should emit debug records")
	}
}

func TestNewWriter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, slog.LevelInfo)
	log.Debug("hidden")
	log.Info("shown", "key_id", "k1")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatal("debug record written at info level")
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "key_id=k1") || !strings.Contains(out, "component=keyless") {
		t.Fatalf("unexpected output %q", out)
	}
}
