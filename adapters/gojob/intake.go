package gojob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goliatone/go-job/queue"

	"github.com/goliatone/go-changelog-hooks/core"
	"github.com/goliatone/go-changelog-hooks/pipeline"
)

func Enqueue(ctx context.Context, enqueuer queue.Enqueuer, event core.InboundEvent) error {
	if enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if len(event.Body) == 0 {
		return core.BadInputError("webhook body is required", nil)
	}
	return enqueuer.Enqueue(ctx, ToExecutionMessage(event))
}

// IntakeHandler verifies webhook deliveries and queues them for a Worker.
// Unsigned or forged deliveries are rejected before they take queue space.
type IntakeHandler struct {
	enqueuer     queue.Enqueuer
	verifier     pipeline.Verifier
	observer     core.Observer
	MaxBodyBytes int64
	Now          func() time.Time
}

func NewIntakeHandler(enqueuer queue.Enqueuer, verifier pipeline.Verifier, observer core.Observer) *IntakeHandler {
	return &IntakeHandler{
		enqueuer:     enqueuer,
		verifier:     verifier,
		observer:     observer,
		MaxBodyBytes: pipeline.MaxBodyBytes,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (h *IntakeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.enqueuer == nil || h.verifier == nil {
		writeJSON(w, http.StatusInternalServerError, pipeline.Response{Status: pipeline.StatusError, Message: "webhook intake is not configured"})
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, pipeline.Response{Status: pipeline.StatusError, Message: "method not allowed"})
		return
	}
	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = pipeline.MaxBodyBytes
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, pipeline.Response{Status: pipeline.StatusError, Message: "payload too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, pipeline.Response{Status: pipeline.StatusError, Message: "unable to read request body"})
		return
	}

	event := core.InboundEvent{
		Body:       body,
		Headers:    pipeline.FlattenHeaders(r.Header),
		ReceivedAt: h.now(),
	}
	if err := h.verifier.Verify(r.Context(), event); err != nil {
		status, message := envelopeStatus(err, http.StatusUnauthorized)
		h.observer.Log(r.Context(), core.LogLevelWarn, "changelog intake rejected delivery", map[string]any{
			"delivery_id": event.Header("X-GitHub-Delivery"),
			"error":       err.Error(),
		})
		writeJSON(w, status, pipeline.Response{Status: pipeline.StatusError, Message: message})
		return
	}
	if err := Enqueue(r.Context(), h.enqueuer, event); err != nil {
		h.observer.Log(r.Context(), core.LogLevelError, "changelog intake enqueue failed", map[string]any{
			"error": err.Error(),
		})
		status := http.StatusServiceUnavailable
		if envelope := core.ToServiceError(err); envelope != nil && envelope.Code == http.StatusBadRequest {
			status = http.StatusBadRequest
		}
		message := "unable to queue webhook"
		if errors.Is(err, ErrQueueFull) {
			message = "webhook queue is full"
		}
		writeJSON(w, status, pipeline.Response{Status: pipeline.StatusError, Message: message})
		return
	}
	writeJSON(w, http.StatusAccepted, pipeline.QueuedResponse())
}

func envelopeStatus(err error, fallback int) (int, string) {
	envelope := core.ToServiceError(err)
	if envelope == nil || envelope.Code == 0 {
		return fallback, err.Error()
	}
	return envelope.Code, envelope.Message
}

func (h *IntakeHandler) now() time.Time {
	if h.Now == nil {
		return time.Now().UTC()
	}
	return h.Now().UTC()
}

func writeJSON(w http.ResponseWriter, status int, payload pipeline.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
