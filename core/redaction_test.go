package core

import (
	"context"
	"testing"
)

func TestRedactFields_MasksCredentialKeys(t *testing.T) {
	fields := map[string]any{
		"webhook_secret":      "s3cret",
		"X-Hub-Signature-256": "sha256=abc",
		"delivery_id":         "d-1",
		"session_handle":      "sess-1",
		"headers": map[string]string{
			"authorization":  "Bearer key",
			"x-github-event": "release",
		},
		"nested": map[string]any{"api_key": "k", "repository": "sdk-js"},
	}

	redacted := RedactFields(fields)

	if redacted["webhook_secret"] != RedactedValue || redacted["X-Hub-Signature-256"] != RedactedValue {
		t.Fatalf("expected credentials masked, got %#v", redacted)
	}
	if redacted["delivery_id"] != "d-1" || redacted["session_handle"] != "sess-1" {
		t.Fatalf("expected traceability fields kept, got %#v", redacted)
	}
	headers := redacted["headers"].(map[string]string)
	if headers["authorization"] != RedactedValue || headers["x-github-event"] != "release" {
		t.Fatalf("unexpected headers %#v", headers)
	}
	nested := redacted["nested"].(map[string]any)
	if nested["api_key"] != RedactedValue || nested["repository"] != "sdk-js" {
		t.Fatalf("unexpected nested fields %#v", nested)
	}
	if fields["webhook_secret"] != "s3cret" {
		t.Fatalf("expected source fields untouched")
	}
}

func TestObserverLog_RedactsFields(t *testing.T) {
	logger := newCaptureLogger()
	NewObserver(logger, nil).Log(context.Background(), LogLevelInfo, "verified", map[string]any{
		"signature": "sha256=abc",
		"event_key": "k",
	})

	entries := logger.entries()
	if len(entries) != 1 || entries[0].fields["signature"] != RedactedValue {
		t.Fatalf("expected signature masked, got %#v", entries)
	}
	if entries[0].fields["event_key"] != "k" {
		t.Fatalf("expected event key kept, got %#v", entries[0].fields)
	}
}
