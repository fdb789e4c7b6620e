package gojob

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-job/queue"

	"github.com/goliatone/go-changelog-hooks/core"
)

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.Exhausted(attempt) {
		// Neither flag set means the delivery is dropped.
		out.Requeue = false
		out.DeadLetter = p.DeadLetterOnMax || out.DeadLetter
		return out
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

func (p RetryPolicy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}

type ExponentialBackoff struct {
	Initial time.Duration
	Max     time.Duration
}

func (b ExponentialBackoff) NextDelay(attempt int) time.Duration {
	initial := b.Initial
	if initial <= 0 {
		initial = time.Second
	}
	maximum := b.Max
	if maximum <= 0 {
		maximum = 30 * time.Second
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	if delay > maximum {
		return maximum
	}
	return delay
}

// Retryable reports whether a redelivery could change a failed outcome.
// Verification failures and recovered panics are final.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, core.ErrVerification) {
		return false
	}
	var dispatchErr *core.DispatchError
	if errors.As(err, &dispatchErr) {
		code := dispatchErr.StatusCode
		return code == 0 || code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}
	return errors.Is(err, core.ErrStore) ||
		errors.Is(err, core.ErrClassification) ||
		errors.Is(err, core.ErrSynthesis)
}
