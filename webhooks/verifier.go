package webhooks

import (
	"context"

	"github.com/goliatone/go-changelog-hooks/core"
)

// SignatureVerifier is the pipeline's authentication gate. It never reads the
// payload beyond hashing it and never touches a store.
type SignatureVerifier struct {
	verifier Verifier
	bypass   bool
	observer core.Observer
}

type VerifierOption func(*SignatureVerifier)

func WithObserver(observer core.Observer) VerifierOption {
	return func(v *SignatureVerifier) {
		v.observer = observer
	}
}

// WithBypass disables verification. Pass cfg.SignatureBypassEnabled() so it
// can only turn on for an explicit development setup.
func WithBypass(enabled bool) VerifierOption {
	return func(v *SignatureVerifier) {
		v.bypass = enabled
	}
}

func NewSignatureVerifier(secret string, opts ...VerifierOption) *SignatureVerifier {
	verifier := &SignatureVerifier{
		verifier: NewGitHubReleaseTemplate(secret).Verifier,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(verifier)
		}
	}
	return verifier
}

// NewTemplateVerifier gates on any source template's verifier.
func NewTemplateVerifier(template SourceTemplate, opts ...VerifierOption) *SignatureVerifier {
	verifier := &SignatureVerifier{verifier: template.Verifier}
	for _, opt := range opts {
		if opt != nil {
			opt(verifier)
		}
	}
	return verifier
}

func (v *SignatureVerifier) Verify(ctx context.Context, event core.InboundEvent) error {
	if v == nil || v.verifier == nil {
		return core.NewVerificationError(core.VerificationMissingSecret, nil)
	}
	if v.bypass {
		v.observer.Log(ctx, core.LogLevelWarn, "webhook signature verification bypassed", map[string]any{
			"delivery_id": event.Header(HeaderGitHubDelivery),
		})
		return nil
	}
	err := v.verifier.Verify(ctx, event)
	if err != nil {
		v.observer.Log(ctx, core.LogLevelWarn, "webhook signature rejected", map[string]any{
			"delivery_id": event.Header(HeaderGitHubDelivery),
			"error":       err.Error(),
		})
	}
	return err
}

var _ Verifier = (*SignatureVerifier)(nil)
var _ Verifier = HeaderHMACVerifier{}
