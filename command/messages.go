package command

import (
	"github.com/goliatone/go-changelog-hooks/core"
)

const TypeProcessEvent = "changelog.command.event.process"

// ProcessEventMessage carries one raw webhook delivery through the pipeline.
type ProcessEventMessage struct {
	Event core.InboundEvent
}

func (ProcessEventMessage) Type() string { return TypeProcessEvent }

func (m ProcessEventMessage) Validate() error {
	if len(m.Event.Body) == 0 {
		return commandValidationError("event.body", "payload body is required")
	}
	return nil
}
