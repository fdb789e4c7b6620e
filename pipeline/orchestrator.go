// Package pipeline sequences one webhook delivery through verification,
// classification, the idempotency gate, synthesis and dispatch, and turns
// every exit into a structured Outcome.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-changelog-hooks/core"
)

type Verifier interface {
	Verify(ctx context.Context, event core.InboundEvent) error
}

type Classifier interface {
	Classify(ctx context.Context, payload []byte) (core.ClassifiedEvent, error)
}

type IdempotencyStore interface {
	Exists(ctx context.Context, key core.EventKey) (bool, error)
	Record(ctx context.Context, key core.EventKey, record core.ProcessedEventRecord) error
}

// Reserver is optionally implemented by an IdempotencyStore that can claim a
// key before dispatch.
type Reserver interface {
	Reserve(ctx context.Context, event core.ClassifiedEvent) (bool, error)
	Release(ctx context.Context, key core.EventKey) error
}

type Synthesizer interface {
	Synthesize(ctx context.Context, event core.ClassifiedEvent, payload []byte) (core.TaskSpecification, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, spec core.TaskSpecification) (core.DispatchResult, error)
}

type Dependencies struct {
	Verifier    Verifier
	Classifier  Classifier
	Store       IdempotencyStore
	Synthesizer Synthesizer
	Dispatcher  Dispatcher
}

func (d Dependencies) validate() error {
	switch {
	case d.Verifier == nil:
		return fmt.Errorf("pipeline: verifier is required")
	case d.Classifier == nil:
		return fmt.Errorf("pipeline: classifier is required")
	case d.Store == nil:
		return fmt.Errorf("pipeline: idempotency store is required")
	case d.Synthesizer == nil:
		return fmt.Errorf("pipeline: synthesizer is required")
	case d.Dispatcher == nil:
		return fmt.Errorf("pipeline: dispatcher is required")
	}
	return nil
}

const duplicateReason = "event already dispatched"

type Orchestrator struct {
	deps     Dependencies
	observer core.Observer
	Now      func() time.Time
}

type Option func(*Orchestrator)

func WithObserver(observer core.Observer) Option {
	return func(o *Orchestrator) {
		o.observer = observer
	}
}

func New(deps Dependencies, opts ...Option) (*Orchestrator, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	orchestrator := &Orchestrator{
		deps: deps,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(orchestrator)
		}
	}
	return orchestrator, nil
}

// Process runs one delivery to a terminal state. It never returns an error
// and recovers panics from any stage into a failed Outcome.
func (o *Orchestrator) Process(ctx context.Context, event core.InboundEvent) (outcome Outcome) {
	if ctx == nil {
		ctx = context.Background()
	}
	started := o.now()
	outcome.States = []State{StateReceived}

	defer func() {
		if recovered := recover(); recovered != nil {
			outcome.Err = core.InternalError("pipeline: stage panicked", map[string]any{
				"panic": fmt.Sprint(recovered),
			})
			outcome.States = append(outcome.States, StateFailed)
		}
		outcome.Duration = o.now().Sub(started)
		o.report(ctx, outcome)
	}()

	if o == nil {
		outcome.Err = core.InternalError("pipeline: orchestrator is not configured", nil)
		outcome.States = append(outcome.States, StateFailed)
		return outcome
	}

	return o.run(ctx, event, outcome)
}

func (o *Orchestrator) run(ctx context.Context, event core.InboundEvent, outcome Outcome) Outcome {
	fail := func(err error) Outcome {
		outcome.Err = err
		outcome.States = append(outcome.States, StateFailed)
		return outcome
	}

	if err := o.deps.Verifier.Verify(ctx, event); err != nil {
		return fail(err)
	}
	outcome.States = append(outcome.States, StateVerified)

	classified, err := o.deps.Classifier.Classify(ctx, event.Body)
	if err != nil {
		var classificationErr *core.ClassificationError
		if !errors.As(err, &classificationErr) {
			err = core.NewClassificationError("classifier failed", err)
		}
		return fail(err)
	}
	outcome.Event = classified
	outcome.States = append(outcome.States, StateClassified)

	if !classified.Dispatchable() {
		outcome.Reason = ignoreReason(classified)
		outcome.States = append(outcome.States, StateIgnored)
		return outcome
	}

	key := classified.Key()
	outcome.Key = key

	exists, err := o.deps.Store.Exists(ctx, key)
	if err != nil {
		return fail(asStoreError(core.StoreOpRead, key, err))
	}
	if exists {
		outcome.Reason = duplicateReason
		outcome.States = append(outcome.States, StateDuplicateSkipped)
		return outcome
	}

	reserver, _ := o.deps.Store.(Reserver)
	if reserver != nil {
		reserved, err := reserver.Reserve(ctx, classified)
		if err != nil {
			return fail(asStoreError(core.StoreOpWrite, key, err))
		}
		if !reserved {
			outcome.Reason = duplicateReason
			outcome.States = append(outcome.States, StateDuplicateSkipped)
			return outcome
		}
	}

	outcome.States = append(outcome.States, StateDispatching)

	spec, err := o.deps.Synthesizer.Synthesize(ctx, classified, event.Body)
	if err != nil {
		o.release(ctx, reserver, key)
		var synthesisErr *core.SynthesisError
		if !errors.As(err, &synthesisErr) {
			err = core.NewSynthesisError("synthesizer failed", err)
		}
		return fail(err)
	}

	result, err := o.deps.Dispatcher.Dispatch(ctx, spec)
	if err != nil {
		o.release(ctx, reserver, key)
		var dispatchErr *core.DispatchError
		if !errors.As(err, &dispatchErr) {
			err = &core.DispatchError{Cause: err}
		}
		return fail(err)
	}
	outcome.Result = result

	record := core.NewProcessedEventRecord(classified, result, o.now())
	if err := o.deps.Store.Record(ctx, key, record); err != nil {
		// The task is already running; a lost record only widens the
		// duplicate window.
		outcome.RecordErr = asStoreError(core.StoreOpWrite, key, err)
		o.observer.Log(ctx, core.LogLevelWarn, "ledger write after dispatch failed", map[string]any{
			"event_key":      key.String(),
			"session_handle": result.SessionHandle,
			"error":          outcome.RecordErr.Error(),
		})
	}

	outcome.States = append(outcome.States, StateCompleted)
	return outcome
}

func (o *Orchestrator) release(ctx context.Context, reserver Reserver, key core.EventKey) {
	if reserver == nil {
		return
	}
	if err := reserver.Release(ctx, key); err != nil {
		o.observer.Log(ctx, core.LogLevelWarn, "ledger reservation release failed", map[string]any{
			"event_key": key.String(),
			"error":     err.Error(),
		})
	}
}

func (o *Orchestrator) report(ctx context.Context, outcome Outcome) {
	if o == nil {
		return
	}
	status := string(outcome.Status())
	durationMS := float64(outcome.Duration) / float64(time.Millisecond)
	tags := map[string]string{"status": status}
	o.observer.Count(ctx, core.MetricPipelineTotal, 1, tags)
	o.observer.Observe(ctx, core.MetricPipelineDurationMS, durationMS, tags)

	fields := map[string]any{
		"status":      status,
		"state":       string(outcome.State()),
		"event_key":   outcome.Key.String(),
		"repository":  outcome.Event.RepositoryName,
		"duration_ms": durationMS,
	}
	switch outcome.Status() {
	case StatusSuccess:
		fields["session_handle"] = outcome.Result.SessionHandle
		o.observer.Log(ctx, core.LogLevelInfo, "changelog task dispatched", fields)
	case StatusError:
		fields["error"] = errorText(outcome.Err)
		if envelope := core.ToServiceError(outcome.Err); envelope != nil {
			fields["error_code"] = envelope.TextCode
		}
		o.observer.Log(ctx, core.LogLevelError, "changelog pipeline failed", fields)
	default:
		fields["reason"] = outcome.Reason
		o.observer.Log(ctx, core.LogLevelInfo, "changelog event skipped", fields)
	}
}

func (o *Orchestrator) now() time.Time {
	if o == nil || o.Now == nil {
		return time.Now().UTC()
	}
	return o.Now().UTC()
}

func ignoreReason(event core.ClassifiedEvent) string {
	if event.Rationale != "" {
		return event.Rationale
	}
	if !event.IsSupportedRepository {
		return "repository is not in the catalog"
	}
	return "event is not actionable"
}

func asStoreError(op core.StoreOp, key core.EventKey, err error) error {
	var storeErr *core.StoreError
	if errors.As(err, &storeErr) {
		return err
	}
	return core.NewStoreError(op, key, err)
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
