package gojob

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	job "github.com/goliatone/go-job"

	"github.com/goliatone/go-changelog-hooks/core"
	"github.com/goliatone/go-changelog-hooks/webhooks"
)

const (
	JobIDProcessEvent      = "changelog.event.process"
	ScriptPathProcessEvent = "changelog/process-event"

	ParamBody       = "body"
	ParamHeaders    = "headers"
	ParamReceivedAt = "received_at"
)

// DeliveryKey identifies a webhook delivery for queue deduplication: the
// provider delivery id when present, else a digest of the body.
func DeliveryKey(event core.InboundEvent) string {
	if id := event.Header(webhooks.HeaderGitHubDelivery); id != "" {
		return "delivery:" + id
	}
	sum := sha256.Sum256(event.Body)
	return "body:" + hex.EncodeToString(sum[:])
}

// ToExecutionMessage packs a raw delivery into a go-job message. The body is
// base64 encoded so the exact bytes survive any queue codec.
func ToExecutionMessage(event core.InboundEvent) *job.ExecutionMessage {
	headers := make(map[string]any, len(event.Headers))
	for name, value := range event.Headers {
		headers[strings.ToLower(strings.TrimSpace(name))] = value
	}
	receivedAt := event.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	return &job.ExecutionMessage{
		JobID:      JobIDProcessEvent,
		ScriptPath: ScriptPathProcessEvent,
		Parameters: map[string]any{
			ParamBody:       base64.StdEncoding.EncodeToString(event.Body),
			ParamHeaders:    headers,
			ParamReceivedAt: receivedAt.UTC().Format(time.RFC3339Nano),
		},
		IdempotencyKey: DeliveryKey(event),
	}
}

func FromExecutionMessage(msg *job.ExecutionMessage) (core.InboundEvent, error) {
	if msg == nil {
		return core.InboundEvent{}, fmt.Errorf("gojob: execution message is required")
	}
	if strings.TrimSpace(msg.JobID) != JobIDProcessEvent {
		return core.InboundEvent{}, fmt.Errorf("gojob: unexpected job id %q", msg.JobID)
	}
	encoded, ok := msg.Parameters[ParamBody].(string)
	if !ok {
		return core.InboundEvent{}, fmt.Errorf("gojob: message body parameter is missing")
	}
	body, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return core.InboundEvent{}, fmt.Errorf("gojob: decode message body: %w", err)
	}
	event := core.InboundEvent{
		Body:     body,
		Headers:  map[string]string{},
		Metadata: map[string]any{"queue_key": msg.IdempotencyKey},
	}
	switch headers := msg.Parameters[ParamHeaders].(type) {
	case map[string]any:
		for name, value := range headers {
			if text, ok := value.(string); ok {
				event.Headers[name] = text
			}
		}
	case map[string]string:
		for name, value := range headers {
			event.Headers[name] = value
		}
	}
	if raw, ok := msg.Parameters[ParamReceivedAt].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			event.ReceivedAt = parsed.UTC()
		}
	}
	return event, nil
}
