package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/goliatone/go-changelog-hooks/core"
)

const (
	HeaderGitHubSignature = "X-Hub-Signature-256"
	HeaderGitHubEvent     = "X-GitHub-Event"
	HeaderGitHubDelivery  = "X-GitHub-Delivery"

	GitHubSignaturePrefix = "sha256="
)

type Verifier interface {
	Verify(ctx context.Context, event core.InboundEvent) error
}

type DeliveryIDExtractor func(event core.InboundEvent) (string, error)

// SourceTemplate bundles how one webhook source signs and identifies deliveries.
type SourceTemplate struct {
	Source    string
	Verifier  Verifier
	Extractor DeliveryIDExtractor
}

// HeaderHMACVerifier checks an HMAC-SHA256 signature carried in a header.
type HeaderHMACVerifier struct {
	Header   string
	Prefix   string
	Secret   string
	Encoding string // hex | base64
}

func (v HeaderHMACVerifier) Verify(_ context.Context, event core.InboundEvent) error {
	header := event.Header(v.Header)
	if header == "" {
		return core.NewVerificationError(core.VerificationMissingSignature,
			fmt.Errorf("webhooks: %s signature header is required", strings.TrimSpace(v.Header)))
	}
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return core.NewVerificationError(core.VerificationMissingSecret, nil)
	}
	signature := strings.TrimSpace(strings.TrimPrefix(header, strings.TrimSpace(v.Prefix)))
	if signature == "" {
		return core.NewVerificationError(core.VerificationSignatureMismatch,
			fmt.Errorf("webhooks: signature value is empty"))
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(event.Body)
	expected := mac.Sum(nil)

	var (
		decoded []byte
		err     error
	)
	switch strings.ToLower(strings.TrimSpace(v.Encoding)) {
	case "base64":
		decoded, err = base64.StdEncoding.DecodeString(signature)
	default:
		decoded, err = hex.DecodeString(signature)
	}
	if err != nil {
		// An undecodable digest can never match.
		return core.NewVerificationError(core.VerificationSignatureMismatch,
			fmt.Errorf("webhooks: decode signature: %w", err))
	}
	if subtle.ConstantTimeCompare(decoded, expected) != 1 {
		return core.NewVerificationError(core.VerificationSignatureMismatch, nil)
	}
	return nil
}

func HeaderDeliveryIDExtractor(headers ...string) DeliveryIDExtractor {
	keys := append([]string(nil), headers...)
	return func(event core.InboundEvent) (string, error) {
		for _, key := range keys {
			if value := event.Header(key); value != "" {
				return value, nil
			}
		}
		return "", fmt.Errorf("webhooks: delivery id header is missing")
	}
}

// NewGitHubReleaseTemplate describes GitHub repository webhooks signed with
// X-Hub-Signature-256.
func NewGitHubReleaseTemplate(secret string) SourceTemplate {
	return SourceTemplate{
		Source: "github",
		Verifier: HeaderHMACVerifier{
			Header:   HeaderGitHubSignature,
			Prefix:   GitHubSignaturePrefix,
			Secret:   strings.TrimSpace(secret),
			Encoding: "hex",
		},
		Extractor: HeaderDeliveryIDExtractor(HeaderGitHubDelivery),
	}
}
