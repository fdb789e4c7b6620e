package gocommand

import (
	"context"
	"fmt"
	"strings"

	gocmd "github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"

	"github.com/goliatone/go-changelog-hooks/command"
	"github.com/goliatone/go-changelog-hooks/core"
	"github.com/goliatone/go-changelog-hooks/pipeline"
	"github.com/goliatone/go-changelog-hooks/query"
)

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := gocmd.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(gocmd.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *gocmd.Registry
}

func NewRegistryAdapter(registry *gocmd.Registry) *RegistryAdapter {
	if registry == nil {
		registry = gocmd.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *gocmd.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) register(handler any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(handler)
}

// AddQueueResolver mirrors registered handlers into a go-job queue registry
// so they can also be scheduled as jobs.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd gocmd.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.register(cmd); err != nil {
		subscription.Unsubscribe()
		return nil, err
	}
	return subscription, nil
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry gocmd.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	if err := adapter.register(qry); err != nil {
		subscription.Unsubscribe()
		return nil, err
	}
	return subscription, nil
}

// Subscriptions groups dispatcher subscriptions so they can be released
// together.
type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, subscription := range s {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
}

// RegisterPipeline subscribes the process-event command and the ledger lookup
// query on the global dispatcher and initializes the registry.
func RegisterPipeline(
	adapter *RegistryAdapter,
	processor pipeline.Processor,
	ledger query.LedgerReader,
	runnerOpts ...runner.Option,
) (Subscriptions, error) {
	if processor == nil {
		return nil, fmt.Errorf("gocommand: pipeline processor is required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("gocommand: ledger reader is required")
	}
	var subs Subscriptions
	commandSub, err := RegisterAndSubscribe[command.ProcessEventMessage](adapter, command.NewProcessEventCommand(processor), runnerOpts...)
	if err != nil {
		return nil, err
	}
	subs = append(subs, commandSub)
	querySub, err := RegisterAndSubscribeQuery[query.LookupProcessedEventMessage, core.ProcessedEventRecord](
		adapter,
		query.NewLookupProcessedEventQuery(ledger),
		runnerOpts...,
	)
	if err != nil {
		subs.Unsubscribe()
		return nil, err
	}
	subs = append(subs, querySub)
	if err := adapter.Initialize(); err != nil {
		subs.Unsubscribe()
		return nil, err
	}
	return subs, nil
}

// ProcessEvent dispatches a delivery through the command bus and returns the
// Outcome the handler stored.
func ProcessEvent(ctx context.Context, event core.InboundEvent) (pipeline.Outcome, error) {
	collector := gocmd.NewResult[pipeline.Outcome]()
	ctx = gocmd.ContextWithResult(ctx, collector)
	err := commanddispatcher.Dispatch(ctx, command.ProcessEventMessage{Event: event})
	outcome, ok := collector.Load()
	if !ok && err == nil {
		return pipeline.Outcome{}, fmt.Errorf("gocommand: process event produced no outcome")
	}
	return outcome, err
}

func LookupProcessedEvent(ctx context.Context, msg query.LookupProcessedEventMessage) (core.ProcessedEventRecord, error) {
	return commanddispatcher.Query[query.LookupProcessedEventMessage, core.ProcessedEventRecord](ctx, msg)
}
