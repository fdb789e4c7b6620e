package gojob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"

	"github.com/goliatone/go-changelog-hooks/core"
	"github.com/goliatone/go-changelog-hooks/pipeline"
	"github.com/goliatone/go-changelog-hooks/ratelimit"
)

const (
	DefaultMaxAttempts = 5
	DefaultMaxDelay    = 30 * time.Second

	errorPause = 100 * time.Millisecond
)

// Worker drains queued deliveries through a pipeline processor. Outcomes that
// a redelivery could change are requeued with exponential backoff; the rest
// are acked or dead-lettered.
type Worker struct {
	dequeuer  queue.Dequeuer
	processor pipeline.Processor
	Policy    RetryPolicy
	Backoff   ExponentialBackoff
	hook      worker.Hook
	observer  core.Observer

	mu       sync.Mutex
	attempts map[string]int
}

type WorkerOption func(*Worker)

func WithRetryPolicy(policy RetryPolicy) WorkerOption {
	return func(w *Worker) {
		w.Policy = policy
	}
}

func WithBackoff(backoff ExponentialBackoff) WorkerOption {
	return func(w *Worker) {
		w.Backoff = backoff
	}
}

func WithHook(hook worker.Hook) WorkerOption {
	return func(w *Worker) {
		w.hook = hook
	}
}

func WithObserver(observer core.Observer) WorkerOption {
	return func(w *Worker) {
		w.observer = observer
	}
}

func NewWorker(dequeuer queue.Dequeuer, processor pipeline.Processor, opts ...WorkerOption) (*Worker, error) {
	if dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is required")
	}
	if processor == nil {
		return nil, fmt.Errorf("gojob: processor is required")
	}
	w := &Worker{
		dequeuer:  dequeuer,
		processor: processor,
		Policy: RetryPolicy{
			MaxAttempts:     DefaultMaxAttempts,
			MaxDelay:        DefaultMaxDelay,
			DeadLetterOnMax: true,
		},
		attempts: map[string]int{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// Run processes deliveries until ctx is done or the queue is closed and
// drained.
func (w *Worker) Run(ctx context.Context) error {
	for {
		err := w.ProcessNext(ctx)
		switch {
		case err == nil:
			continue
		case errors.Is(err, ErrQueueClosed):
			return nil
		case ctx.Err() != nil:
			return nil
		default:
			w.observer.Log(ctx, core.LogLevelError, "changelog intake worker error", map[string]any{
				"error": err.Error(),
			})
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(errorPause):
			}
		}
	}
}

// ProcessNext dequeues and settles a single delivery.
func (w *Worker) ProcessNext(ctx context.Context) error {
	if w == nil || w.dequeuer == nil || w.processor == nil {
		return fmt.Errorf("gojob: worker is not configured")
	}
	delivery, err := w.dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if delivery == nil {
		return nil
	}
	return w.handle(ctx, delivery)
}

func (w *Worker) handle(ctx context.Context, delivery queue.Delivery) error {
	msg := delivery.Message()
	key := ""
	if msg != nil {
		key = strings.TrimSpace(msg.IdempotencyKey)
	}
	attempt := w.nextAttempt(key)
	started := time.Now()
	evt := worker.Event{Message: msg, Delivery: delivery, Attempt: attempt, StartedAt: started}
	w.onStart(ctx, evt)

	inbound, err := FromExecutionMessage(msg)
	if err != nil {
		w.forget(key)
		evt.Err = err
		evt.Duration = time.Since(started)
		w.onFailure(ctx, evt)
		return delivery.Nack(ctx, queue.NackOptions{DeadLetter: true, Reason: err.Error()})
	}

	outcome := w.processor.Process(ctx, inbound)
	evt.Duration = time.Since(started)
	if outcome.Err == nil {
		w.forget(key)
		w.onSuccess(ctx, evt)
		return delivery.Ack(ctx)
	}

	evt.Err = outcome.Err
	if !Retryable(outcome.Err) {
		w.forget(key)
		w.onFailure(ctx, evt)
		return delivery.Nack(ctx, queue.NackOptions{DeadLetter: true, Reason: outcome.Err.Error()})
	}

	delay := w.Backoff.NextDelay(attempt)
	if hint, ok := ratelimit.RetryAfterHint(outcome.Err); ok && hint > delay {
		delay = hint
	}
	opts := w.Policy.NormalizeAttempt(queue.NackOptions{
		Requeue: true,
		Delay:   delay,
		Reason:  outcome.Err.Error(),
	}, attempt)
	if opts.Requeue {
		evt.Delay = opts.Delay
		w.onRetry(ctx, evt)
	} else {
		w.forget(key)
		w.onFailure(ctx, evt)
	}
	return delivery.Nack(ctx, opts)
}

func (w *Worker) nextAttempt(key string) int {
	if key == "" {
		return 1
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts[key]++
	return w.attempts[key]
}

func (w *Worker) forget(key string) {
	if key == "" {
		return
	}
	w.mu.Lock()
	delete(w.attempts, key)
	w.mu.Unlock()
}

func (w *Worker) onStart(ctx context.Context, evt worker.Event) {
	if w.hook != nil {
		w.hook.OnStart(ctx, evt)
	}
}

func (w *Worker) onSuccess(ctx context.Context, evt worker.Event) {
	if w.hook != nil {
		w.hook.OnSuccess(ctx, evt)
	}
}

func (w *Worker) onFailure(ctx context.Context, evt worker.Event) {
	if w.hook != nil {
		w.hook.OnFailure(ctx, evt)
	}
}

func (w *Worker) onRetry(ctx context.Context, evt worker.Event) {
	if w.hook != nil {
		w.hook.OnRetry(ctx, evt)
	}
}

// ObserverHook reports worker lifecycle events through a core.Observer.
type ObserverHook struct {
	Observer core.Observer
}

func (h ObserverHook) OnStart(ctx context.Context, evt worker.Event) {
	h.Observer.Log(ctx, core.LogLevelDebug, "changelog intake attempt started", hookFields(evt))
}

func (h ObserverHook) OnSuccess(ctx context.Context, evt worker.Event) {
	h.Observer.Count(ctx, MetricIntakeTotal, 1, map[string]string{"result": "success"})
}

func (h ObserverHook) OnFailure(ctx context.Context, evt worker.Event) {
	h.Observer.Count(ctx, MetricIntakeTotal, 1, map[string]string{"result": "failed"})
	h.Observer.Log(ctx, core.LogLevelError, "changelog intake delivery abandoned", hookFields(evt))
}

func (h ObserverHook) OnRetry(ctx context.Context, evt worker.Event) {
	h.Observer.Count(ctx, MetricIntakeTotal, 1, map[string]string{"result": "retry"})
	h.Observer.Log(ctx, core.LogLevelWarn, "changelog intake delivery requeued", hookFields(evt))
}

const MetricIntakeTotal = "changelog.intake.total"

func hookFields(evt worker.Event) map[string]any {
	fields := map[string]any{
		"attempt":     evt.Attempt,
		"duration_ms": evt.Duration.Milliseconds(),
	}
	if evt.Message != nil {
		fields["queue_key"] = evt.Message.IdempotencyKey
	}
	if evt.Delay > 0 {
		fields["delay_ms"] = evt.Delay.Milliseconds()
	}
	if evt.Err != nil {
		fields["error"] = evt.Err.Error()
	}
	return fields
}

var _ worker.Hook = ObserverHook{}
