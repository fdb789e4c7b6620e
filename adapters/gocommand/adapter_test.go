package gocommand

import (
	"context"
	"errors"
	"testing"
	"time"

	gocmd "github.com/goliatone/go-command"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"

	"github.com/goliatone/go-changelog-hooks/command"
	"github.com/goliatone/go-changelog-hooks/core"
	"github.com/goliatone/go-changelog-hooks/ledger"
	"github.com/goliatone/go-changelog-hooks/pipeline"
	"github.com/goliatone/go-changelog-hooks/query"
)

type invalidMessage struct{}

func (invalidMessage) Type() string { return "" }

type failingMessage struct{}

func (failingMessage) Type() string { return "changelog.command.fail" }

func (failingMessage) Validate() error { return errors.New("invalid payload") }

type stubProcessor struct {
	outcome pipeline.Outcome
	calls   int
}

func (s *stubProcessor) Process(context.Context, core.InboundEvent) pipeline.Outcome {
	s.calls++
	return s.outcome
}

func seededLedger(t *testing.T) *ledger.Store {
	t.Helper()
	store := ledger.New(ledger.NewMemoryKV())
	event := core.ClassifiedEvent{
		IsActionable:          true,
		EventKind:             core.EventKindRelease,
		RepositoryName:        "sdk-js",
		Version:               "v1.4.0",
		IsSupportedRepository: true,
	}
	record := core.NewProcessedEventRecord(event, core.DispatchResult{SessionHandle: "sess-7"}, time.Now().UTC())
	if err := store.Record(context.Background(), event.Key(), record); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}
	return store
}

func TestValidateMessageContract(t *testing.T) {
	if err := ValidateMessageContract(command.ProcessEventMessage{Event: core.InboundEvent{Body: []byte("{}")}}); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := ValidateMessageContract(invalidMessage{}); err == nil {
		t.Fatalf("expected empty type to fail contract validation")
	}
	if err := ValidateMessageContract(failingMessage{}); err == nil {
		t.Fatalf("expected Validate() failure to bubble")
	}
	if err := ValidateMessageContract(command.ProcessEventMessage{}); err == nil {
		t.Fatalf("expected empty body to fail validation")
	}
}

func TestRegisterPipeline_DispatchAndQuery(t *testing.T) {
	processor := &stubProcessor{outcome: pipeline.Outcome{
		States: []pipeline.State{pipeline.StateReceived, pipeline.StateCompleted},
		Result: core.DispatchResult{SessionHandle: "sess-1"},
	}}
	subs, err := RegisterPipeline(NewRegistryAdapter(nil), processor, seededLedger(t))
	if err != nil {
		t.Fatalf("register pipeline: %v", err)
	}
	defer subs.Unsubscribe()

	outcome, err := ProcessEvent(context.Background(), core.InboundEvent{Body: []byte(`{"action":"published"}`)})
	if err != nil {
		t.Fatalf("process event: %v", err)
	}
	if processor.calls != 1 || outcome.Status() != pipeline.StatusSuccess {
		t.Fatalf("expected one successful process, got calls=%d status=%q", processor.calls, outcome.Status())
	}

	record, err := LookupProcessedEvent(context.Background(), query.LookupProcessedEventMessage{
		Repository: "sdk-js",
		Version:    "v1.4.0",
		EventKind:  core.EventKindRelease,
	})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if record.SessionHandle != "sess-7" {
		t.Fatalf("expected seeded record, got %+v", record)
	}
}

func TestProcessEvent_ReturnsOutcomeWithError(t *testing.T) {
	failure := core.NewVerificationError(core.VerificationMissingSignature, nil)
	processor := &stubProcessor{outcome: pipeline.Outcome{
		States: []pipeline.State{pipeline.StateReceived, pipeline.StateFailed},
		Err:    failure,
	}}
	subs, err := RegisterPipeline(NewRegistryAdapter(nil), processor, seededLedger(t))
	if err != nil {
		t.Fatalf("register pipeline: %v", err)
	}
	defer subs.Unsubscribe()

	outcome, err := ProcessEvent(context.Background(), core.InboundEvent{Body: []byte("{}")})
	if err == nil {
		t.Fatalf("expected verification failure to surface")
	}
	if outcome.HTTPStatus() != 401 {
		t.Fatalf("expected stored outcome to carry 401, got %d", outcome.HTTPStatus())
	}
}

func TestRegisterPipeline_RequiresDependencies(t *testing.T) {
	if _, err := RegisterPipeline(NewRegistryAdapter(nil), nil, seededLedger(t)); err == nil {
		t.Fatalf("expected processor error")
	}
	if _, err := RegisterPipeline(NewRegistryAdapter(nil), &stubProcessor{}, nil); err == nil {
		t.Fatalf("expected ledger error")
	}
}

func TestQueueResolverMirrorsPipelineCommands(t *testing.T) {
	adapter := NewRegistryAdapter(gocmd.NewRegistry())
	queueRegistry := jobqueuecommand.NewRegistry()
	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	subs, err := RegisterPipeline(adapter, &stubProcessor{}, seededLedger(t))
	if err != nil {
		t.Fatalf("register pipeline: %v", err)
	}
	defer subs.Unsubscribe()

	if _, ok := queueRegistry.Get(command.TypeProcessEvent); !ok {
		t.Fatalf("expected process command to be mirrored into queue registry")
	}
	if err := adapter.AddQueueResolver("other", nil); err == nil {
		t.Fatalf("expected nil queue registry error")
	}
}
