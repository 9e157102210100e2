package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestNewJSONLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New("warn", "json", &buf)

	l.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %s", buf.String())
	}
	l.Warn().Str("k", "v").Msg("shown")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v: %s", err, buf.String())
	}
	if entry["message"] != "shown" || entry["level"] != "warn" || entry["k"] != "v" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestNewUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := New("loud", "json", &buf)
	l.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug logged with fallback level: %s", buf.String())
	}
	l.Info().Msg("shown")
	if buf.Len() == 0 {
		t.Error("info not logged with fallback level")
	}
}

func TestFromAddsContextIDs(t *testing.T) {
	var buf bytes.Buffer
	base := New("info", "json", &buf)

	ctx := WithSessionID(WithRequestID(context.Background(), "req-1"), "sess-1")
	l := From(ctx, base)
	l.Info().Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatal(err)
	}
	if entry["request_id"] != "req-1" {
		t.Errorf("request_id = %v", entry["request_id"])
	}
	if entry["session_id"] != "sess-1" {
		t.Errorf("session_id = %v", entry["session_id"])
	}
}

func TestPreview(t *testing.T) {
	if got := Preview("short", 10); got != "short" {
		t.Errorf("Preview = %q", got)
	}
	if got := Preview("héllo world", 5); got != "héllo..." {
		t.Errorf("Preview = %q", got)
	}
}
