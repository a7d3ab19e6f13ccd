package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"staffroster.org/internal/auth"
	"staffroster.org/internal/obs"
)

func TestLogEvent(t *testing.T) {
	original := *obs.Logger()
	defer obs.SetLogger(original)
	var buf bytes.Buffer
	obs.Setup(&buf, "info", "json")

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = auth.ContextWithPrincipal(ctx, &auth.Principal{ID: "user-42", Role: auth.RoleManager})

	if err := LogEvent(ctx, "user.registered", map[string]any{"target_id": "user-43"}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	line := buf.Bytes()
	if len(line) == 0 {
		t.Fatal("expected log output")
	}

	var entry map[string]any
	if err := json.Unmarshal(line, &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["type"] != "audit" {
		t.Fatalf("unexpected type: %v", entry["type"])
	}
	if entry["event"] != "user.registered" {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["user_id"] != "user-42" || entry["role"] != "MANAGER" {
		t.Fatalf("unexpected principal: %v %v", entry["user_id"], entry["role"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["target_id"] != "user-43" {
		t.Fatalf("fields missing or incorrect: %v", entry["fields"])
	}
}

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error for empty event")
	}
}
