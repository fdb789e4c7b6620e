// Package dispatch starts changelog tasks on the external task service.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-changelog-hooks/core"
	"github.com/goliatone/go-changelog-hooks/ratelimit"
	"github.com/goliatone/go-changelog-hooks/transport"
)

const SessionsPath = "/v1/sessions"

// RateLimitBucket names the task service in the rate limit policy.
const RateLimitBucket = "task-service"

// maxErrorBodyBytes bounds how much of a failed response is kept on the error.
const maxErrorBodyBytes = 4 << 10

type sessionRequest struct {
	Prompt string `json:"prompt"`
}

// Dispatcher submits one task per call. A call is an external side effect;
// it is never retried here.
type Dispatcher struct {
	adapter  core.TransportAdapter
	baseURL  string
	apiKey   string
	limiter  *ratelimit.AdaptivePolicy
	observer core.Observer
}

type Option func(*Dispatcher)

func WithTransport(adapter core.TransportAdapter) Option {
	return func(d *Dispatcher) {
		if adapter != nil {
			d.adapter = adapter
		}
	}
}

// WithRateLimit skips calls while the task service has asked for a cooldown.
// A skipped call fails with a 429 DispatchError wrapping the throttle.
func WithRateLimit(policy *ratelimit.AdaptivePolicy) Option {
	return func(d *Dispatcher) {
		d.limiter = policy
	}
}

func WithObserver(observer core.Observer) Option {
	return func(d *Dispatcher) {
		d.observer = observer
	}
}

func New(cfg core.TaskConfig, opts ...Option) *Dispatcher {
	dispatcher := &Dispatcher{
		adapter: transport.NewRESTAdapter(nil),
		baseURL: strings.TrimSpace(cfg.BaseURL),
		apiKey:  strings.TrimSpace(cfg.APIKey),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(dispatcher)
		}
	}
	return dispatcher
}

func (d *Dispatcher) Dispatch(ctx context.Context, spec core.TaskSpecification) (core.DispatchResult, error) {
	if d == nil || d.adapter == nil {
		return core.DispatchResult{}, &core.DispatchError{Cause: fmt.Errorf("dispatch: dispatcher is not configured")}
	}
	if strings.TrimSpace(spec.Prompt) == "" {
		return core.DispatchResult{}, &core.DispatchError{Cause: fmt.Errorf("dispatch: task prompt is empty")}
	}

	if err := d.limiter.BeforeCall(ctx, RateLimitBucket); err != nil {
		return core.DispatchResult{}, &core.DispatchError{StatusCode: http.StatusTooManyRequests, Cause: err}
	}

	endpoint := transport.JoinURL(d.baseURL, SessionsPath)
	req, err := transport.JSONRequest(endpoint, d.apiKey, sessionRequest{Prompt: spec.Prompt})
	if err != nil {
		return core.DispatchResult{}, &core.DispatchError{Cause: err}
	}

	res, err := d.adapter.Do(ctx, req)
	if err != nil {
		return core.DispatchResult{}, &core.DispatchError{Cause: err}
	}
	if err := d.limiter.AfterCall(ctx, RateLimitBucket, res); err != nil {
		d.observer.Log(ctx, core.LogLevelWarn, "rate limit state not updated", map[string]any{
			"error": err.Error(),
		})
	}
	if !transport.IsSuccess(res.StatusCode) {
		return core.DispatchResult{}, &core.DispatchError{
			StatusCode: res.StatusCode,
			Body:       truncate(string(res.Body), maxErrorBodyBytes),
		}
	}

	handle := SessionHandle(res.Body)
	if handle == core.UnknownSessionHandle {
		d.observer.Log(ctx, core.LogLevelWarn, "task service accepted request without a session handle", map[string]any{
			"repository":  spec.Event.RepositoryName,
			"status_code": res.StatusCode,
		})
	}
	return core.DispatchResult{
		SessionHandle: handle,
		StatusCode:    res.StatusCode,
		URL:           endpoint,
	}, nil
}

// SessionHandle reads session_id, sessionId or id from a response body.
// Anything else yields core.UnknownSessionHandle.
func SessionHandle(body []byte) string {
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return core.UnknownSessionHandle
	}
	for _, field := range []string{"session_id", "sessionId", "id"} {
		switch value := decoded[field].(type) {
		case string:
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		case float64:
			return fmt.Sprintf("%.0f", value)
		}
	}
	return core.UnknownSessionHandle
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "...(truncated)"
}
