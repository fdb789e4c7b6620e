package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-changelog-hooks/core"
)

// MaxBodyBytes caps an inbound delivery, matching GitHub's payload limit.
const MaxBodyBytes int64 = 25 << 20

type Processor interface {
	Process(ctx context.Context, event core.InboundEvent) Outcome
}

// Handler exposes a Processor as a webhook endpoint. Every response body is a
// JSON Response.
type Handler struct {
	processor    Processor
	MaxBodyBytes int64
	Now          func() time.Time
}

func NewHandler(processor Processor) *Handler {
	return &Handler{
		processor:    processor,
		MaxBodyBytes: MaxBodyBytes,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.processor == nil {
		writeResponse(w, http.StatusInternalServerError, Response{Status: StatusError, Message: "webhook handler is not configured"})
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeResponse(w, http.StatusMethodNotAllowed, Response{Status: StatusError, Message: "method not allowed"})
		return
	}

	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = MaxBodyBytes
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeResponse(w, http.StatusRequestEntityTooLarge, Response{Status: StatusError, Message: "payload too large"})
			return
		}
		writeResponse(w, http.StatusBadRequest, Response{Status: StatusError, Message: "unable to read request body"})
		return
	}

	outcome := h.processor.Process(r.Context(), core.InboundEvent{
		Body:       body,
		Headers:    FlattenHeaders(r.Header),
		ReceivedAt: h.now(),
		Metadata: map[string]any{
			"remote_addr": r.RemoteAddr,
			"path":        r.URL.Path,
		},
	})
	writeResponse(w, outcome.HTTPStatus(), outcome.Response())
}

// FlattenHeaders keeps the first value of each header.
func FlattenHeaders(header http.Header) map[string]string {
	out := make(map[string]string, len(header))
	for name, values := range header {
		if len(values) == 0 {
			continue
		}
		out[strings.ToLower(name)] = values[0]
	}
	return out
}

func (h *Handler) now() time.Time {
	if h.Now == nil {
		return time.Now().UTC()
	}
	return h.Now().UTC()
}

func writeResponse(w http.ResponseWriter, status int, response Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}
