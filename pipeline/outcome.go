package pipeline

import (
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-changelog-hooks/core"
)

type State string

const (
	StateReceived         State = "received"
	StateVerified         State = "verified"
	StateClassified       State = "classified"
	StateIgnored          State = "ignored"
	StateDuplicateSkipped State = "duplicate_skipped"
	StateDispatching      State = "dispatching"
	StateCompleted        State = "completed"
	StateFailed           State = "failed"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	switch s {
	case StateIgnored, StateDuplicateSkipped, StateCompleted, StateFailed:
		return true
	default:
		return false
	}
}

type Status string

const (
	StatusSuccess          Status = "success"
	StatusIgnored          Status = "ignored"
	StatusAlreadyProcessed Status = "already_processed"
	StatusError            Status = "error"
	// StatusQueued is only written by queued intake, with 202, after the
	// signature has been verified. An Outcome never reports it.
	StatusQueued Status = "queued"
)

// QueuedResponse is the body for a delivery accepted for background
// processing.
func QueuedResponse() Response {
	return Response{Status: StatusQueued}
}

// Response is the JSON body returned to the webhook caller.
type Response struct {
	Status     Status         `json:"status"`
	Repository string         `json:"repository,omitempty"`
	EventType  core.EventKind `json:"eventType,omitempty"`
	Version    string         `json:"version,omitempty"`
	SessionID  string         `json:"devinSessionId,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Message    string         `json:"message,omitempty"`
}

// Outcome is the full record of one pipeline run. Only Response crosses the
// external boundary.
type Outcome struct {
	States    []State
	Event     core.ClassifiedEvent
	Key       core.EventKey
	Result    core.DispatchResult
	Reason    string
	Err       error
	RecordErr error
	Duration  time.Duration
}

func (o Outcome) State() State {
	if len(o.States) == 0 {
		return StateReceived
	}
	return o.States[len(o.States)-1]
}

func (o Outcome) Status() Status {
	switch o.State() {
	case StateCompleted:
		return StatusSuccess
	case StateIgnored:
		return StatusIgnored
	case StateDuplicateSkipped:
		return StatusAlreadyProcessed
	default:
		return StatusError
	}
}

// Visited reports whether the run passed through state.
func (o Outcome) Visited(state State) bool {
	for _, visited := range o.States {
		if visited == state {
			return true
		}
	}
	return false
}

func (o Outcome) Response() Response {
	status := o.Status()
	switch status {
	case StatusSuccess:
		return Response{
			Status:     status,
			Repository: o.Event.RepositoryName,
			EventType:  o.Event.EventKind,
			Version:    o.Event.Version,
			SessionID:  o.Result.SessionHandle,
		}
	case StatusAlreadyProcessed:
		return Response{
			Status:     status,
			Repository: o.Event.RepositoryName,
			EventType:  o.Event.EventKind,
			Version:    o.Event.Version,
			Reason:     o.Reason,
		}
	case StatusIgnored:
		return Response{Status: status, Reason: o.Reason}
	default:
		return Response{Status: StatusError, Message: o.errorMessage()}
	}
}

// HTTPStatus is 200 for every non-error outcome and the go-errors envelope
// code otherwise.
func (o Outcome) HTTPStatus() int {
	if o.Status() != StatusError {
		return http.StatusOK
	}
	envelope := core.ToServiceError(o.Err)
	if envelope == nil || envelope.Code == 0 {
		return http.StatusInternalServerError
	}
	return envelope.Code
}

func (o Outcome) errorMessage() string {
	if o.Err == nil {
		return "pipeline did not reach a terminal state"
	}
	envelope := core.ToServiceError(o.Err)
	if envelope != nil && strings.TrimSpace(envelope.Message) != "" {
		return envelope.Message
	}
	return o.Err.Error()
}
