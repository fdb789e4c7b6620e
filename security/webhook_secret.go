package security

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-changelog-hooks/core"
)

// ResolveWebhookSecret returns the shared secret used to verify deliveries.
// A sealed secret_envelope takes precedence over the plain secret. An empty
// result is valid here; verification reports the missing secret per request.
func ResolveWebhookSecret(ctx context.Context, cfg core.WebhookConfig) (string, error) {
	sealed := strings.TrimSpace(cfg.SecretEnvelope)
	if sealed == "" {
		return strings.TrimSpace(cfg.Secret), nil
	}
	provider, err := NewAppKeySecretProviderFromString(cfg.AppKey)
	if err != nil {
		return "", fmt.Errorf("security: open webhook secret: %w", err)
	}
	plaintext, err := provider.Decrypt(ctx, []byte(sealed))
	if err != nil {
		return "", fmt.Errorf("security: open webhook secret: %w", err)
	}
	return strings.TrimSpace(string(plaintext)), nil
}

// SealWebhookSecret produces a value suitable for webhook.secret_envelope.
func SealWebhookSecret(ctx context.Context, appKey string, secret string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", fmt.Errorf("security: webhook secret is required")
	}
	provider, err := NewAppKeySecretProviderFromString(appKey)
	if err != nil {
		return "", err
	}
	sealed, err := provider.Encrypt(ctx, []byte(secret))
	if err != nil {
		return "", err
	}
	return string(sealed), nil
}
