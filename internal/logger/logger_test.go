package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var m map[string]any
		if err := dec.Decode(&m); err != nil {
			t.Fatalf("decode log line: %v", err)
		}
		out = append(out, m)
	}
	return out
}

func TestNewSlog_ContextFieldsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "debug", Component: "test"}, &buf)
	log := NewSlog(&zl)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithTileset(ctx, "foo.mbtiles")
	log.With("store", "mbtiles").WithGroup("tile").InfoContext(ctx, "served",
		"z", 3, "took", 2*time.Millisecond, "error", errors.New("boom"))

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("lines=%d want 1", len(lines))
	}
	m := lines[0]
	for k, want := range map[string]any{
		"msg":        "served",
		"level":      "info",
		"component":  "test",
		"request_id": "req-1",
		"tileset":    "foo.mbtiles",
		"store":      "mbtiles",
		"tile.z":     float64(3),
		"tile.error": "boom",
	} {
		if m[k] != want {
			t.Fatalf("%s=%v want %v (line %v)", k, m[k], want, m)
		}
	}
	if _, ok := m["timestamp"]; !ok {
		t.Fatalf("timestamp missing: %v", m)
	}
}

func TestNewSlog_RespectsGlobalLevel(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "warn"}, &buf)
	log := NewSlog(&zl)
	t.Cleanup(func() { Build(Config{Level: "info"}, nil) })

	log.Info("dropped")
	log.Warn("kept")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 || lines[0]["msg"] != "kept" {
		t.Fatalf("lines=%v", lines)
	}
}

func TestNewID_IsUUID(t *testing.T) {
	id := NewID()
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("NewID()=%q: %v", id, err)
	}
	if id == NewID() {
		t.Fatalf("ids repeat")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"info":    zerolog.InfoLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q)=%v want %v", in, got, want)
		}
	}
}

func TestRequestID_RoundTrip(t *testing.T) {
	if got := RequestID(context.Background()); got != "" {
		t.Fatalf("empty ctx gave %q", got)
	}
	if got := RequestID(WithRequestID(context.Background(), "abc")); got != "abc" {
		t.Fatalf("got %q want abc", got)
	}
	if got := RequestID(WithRequestID(context.Background(), "")); got == "" {
		t.Fatalf("expected a generated id")
	}
}
