package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-changelog-hooks/pipeline"
)

type ProcessEventCommand struct {
	processor pipeline.Processor
}

func NewProcessEventCommand(processor pipeline.Processor) *ProcessEventCommand {
	return &ProcessEventCommand{processor: processor}
}

// Execute stores the pipeline Outcome on the context result collector and
// returns the Outcome error, so ignored and duplicate deliveries succeed.
func (c *ProcessEventCommand) Execute(ctx context.Context, msg ProcessEventMessage) error {
	if c == nil || c.processor == nil {
		return commandDependencyError("command: pipeline processor is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	outcome := c.processor.Process(ctx, msg.Event)
	storeResult(ctx, outcome)
	return outcome.Err
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}

var _ gocmd.Commander[ProcessEventMessage] = (*ProcessEventCommand)(nil)
