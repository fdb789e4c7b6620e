package core

import (
	"strings"
	"time"
)

type EventKind string

const (
	EventKindRelease EventKind = "release"
	EventKindTag     EventKind = "tag"
	EventKindOther   EventKind = "other"
)

// EventKinds lists the closed set accepted from the classifier.
var EventKinds = []EventKind{EventKindRelease, EventKindTag, EventKindOther}

func ParseEventKind(value string) (EventKind, bool) {
	switch EventKind(strings.TrimSpace(strings.ToLower(value))) {
	case EventKindRelease:
		return EventKindRelease, true
	case EventKindTag:
		return EventKindTag, true
	case EventKindOther:
		return EventKindOther, true
	default:
		return "", false
	}
}

// InboundEvent is one raw webhook delivery. Body holds the exact bytes received.
type InboundEvent struct {
	Body       []byte
	Headers    map[string]string
	ReceivedAt time.Time
	Metadata   map[string]any
}

func (e InboundEvent) Header(name string) string {
	return HeaderValue(e.Headers, name)
}

func HeaderValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

type ClassifiedEvent struct {
	IsActionable          bool      `json:"isActionable"`
	EventKind             EventKind `json:"eventKind"`
	RepositoryName        string    `json:"repositoryName"`
	Version               string    `json:"version"`
	Rationale             string    `json:"rationale"`
	IsSupportedRepository bool      `json:"isSupportedRepository"`
}

// Dispatchable reports whether the event should continue past the classifier gate.
func (e ClassifiedEvent) Dispatchable() bool {
	return e.IsActionable && e.IsSupportedRepository
}

func (e ClassifiedEvent) Key() EventKey {
	return NewEventKey(e.RepositoryName, e.Version, e.EventKind)
}

const (
	ProcessedStatusDispatched = "dispatched"
	ProcessedStatusPending    = "pending"
)

type ProcessedEventRecord struct {
	Key           EventKey  `json:"key"`
	Repository    string    `json:"repository"`
	Version       string    `json:"version"`
	EventKind     EventKind `json:"eventKind"`
	ProcessedAt   time.Time `json:"processedAt"`
	SessionHandle string    `json:"sessionHandle"`
	Status        string    `json:"status"`
}

func NewProcessedEventRecord(event ClassifiedEvent, result DispatchResult, now time.Time) ProcessedEventRecord {
	return ProcessedEventRecord{
		Key:           event.Key(),
		Repository:    strings.TrimSpace(event.RepositoryName),
		Version:       strings.TrimSpace(event.Version),
		EventKind:     event.EventKind,
		ProcessedAt:   now.UTC(),
		SessionHandle: result.SessionHandle,
		Status:        ProcessedStatusDispatched,
	}
}

type TaskSpecification struct {
	Prompt    string
	Event     ClassifiedEvent
	CreatedAt time.Time
}

// UnknownSessionHandle is used when the task service accepted a request but
// returned no session identifier.
const UnknownSessionHandle = "unknown"

// DispatchResult is the handle for a task that was started, not finished.
type DispatchResult struct {
	SessionHandle string
	StatusCode    int
	URL           string
}
