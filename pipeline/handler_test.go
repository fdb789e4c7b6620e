package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goliatone/go-changelog-hooks/core"
	"github.com/goliatone/go-changelog-hooks/webhooks"
)

type recordingProcessor struct {
	events  []core.InboundEvent
	outcome Outcome
}

func (r *recordingProcessor) Process(_ context.Context, event core.InboundEvent) Outcome {
	r.events = append(r.events, event)
	return r.outcome
}

func TestHandler_ProcessesPostAndWritesResponse(t *testing.T) {
	h := newHarness(t)
	handler := NewHandler(h.orchestrator)
	body := releasePayload("sdk-js", "v1.4.0", "published")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(body))
	req.Header.Set(webhooks.HeaderGitHubSignature, sign(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var response map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response["status"] != "success" || response["devinSessionId"] != "sess-123" || response["eventType"] != "release" {
		t.Fatalf("unexpected response %v", response)
	}
	if _, ok := response["message"]; ok {
		t.Fatalf("expected no message on success, got %v", response)
	}
}

func TestHandler_PassesRawBodyAndHeaders(t *testing.T) {
	processor := &recordingProcessor{outcome: Outcome{States: []State{StateReceived, StateVerified, StateClassified, StateIgnored}, Reason: "nope"}}
	handler := NewHandler(processor)

	body := []byte("{ \"action\" : \"published\" }")
	req := httptest.NewRequest(http.MethodPost, "/hook", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", "sha256=abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if len(processor.events) != 1 {
		t.Fatalf("expected one processed event")
	}
	event := processor.events[0]
	if !bytes.Equal(event.Body, body) {
		t.Fatalf("expected raw body bytes, got %q", event.Body)
	}
	if event.Header("x-hub-signature-256") != "sha256=abc" {
		t.Fatalf("expected signature header, got %v", event.Headers)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ignored"`) || !strings.Contains(rec.Body.String(), `"reason":"nope"`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_RejectsNonPost(t *testing.T) {
	processor := &recordingProcessor{}
	rec := httptest.NewRecorder()
	NewHandler(processor).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/hook", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if rec.Header().Get("Allow") != http.MethodPost {
		t.Fatalf("expected Allow header")
	}
	if len(processor.events) != 0 {
		t.Fatalf("expected processor to stay uncalled")
	}
}

func TestHandler_RejectsOversizedBody(t *testing.T) {
	processor := &recordingProcessor{}
	handler := NewHandler(processor)
	handler.MaxBodyBytes = 8

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader(`{"too":"large"}`)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"error"`) {
		t.Fatalf("expected error body, got %s", rec.Body.String())
	}
}

func TestHandler_ErrorStatusFollowsEnvelope(t *testing.T) {
	processor := &recordingProcessor{outcome: Outcome{
		States: []State{StateReceived, StateFailed},
		Err:    core.NewVerificationError(core.VerificationMissingSignature, nil),
	}}
	rec := httptest.NewRecorder()
	NewHandler(processor).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader("{}")))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	var response Response
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if response.Status != StatusError || response.Message == "" {
		t.Fatalf("expected error message, got %+v", response)
	}
}

func TestOutcome_NeverReportsQueued(t *testing.T) {
	states := []State{
		StateReceived, StateVerified, StateClassified, StateIgnored,
		StateDuplicateSkipped, StateDispatching, StateCompleted, StateFailed,
	}
	for _, state := range states {
		outcome := Outcome{States: []State{StateReceived, state}}
		if outcome.Status() == StatusQueued || outcome.Response().Status == StatusQueued {
			t.Fatalf("state %s must not map to queued", state)
		}
	}
	if QueuedResponse().Status != StatusQueued {
		t.Fatalf("expected queued response body")
	}
}
