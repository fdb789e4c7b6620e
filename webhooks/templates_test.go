package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/goliatone/go-changelog-hooks/core"
)

func TestGitHubReleaseTemplate_VerifyAndExtract(t *testing.T) {
	body := []byte(`{"action":"published","release":{"tag_name":"v1.4.0"}}`)
	template := NewGitHubReleaseTemplate("gh_secret")
	event := core.InboundEvent{
		Body: body,
		Headers: map[string]string{
			"x-hub-signature-256": "sha256=" + signHexHMAC("gh_secret", body),
			"X-GitHub-Delivery":   "delivery-1",
		},
	}
	if err := template.Verifier.Verify(context.Background(), event); err != nil {
		t.Fatalf("verify: %v", err)
	}
	deliveryID, err := template.Extractor(event)
	if err != nil {
		t.Fatalf("extract delivery id: %v", err)
	}
	if deliveryID != "delivery-1" {
		t.Fatalf("expected delivery-1, got %q", deliveryID)
	}
}

func TestHeaderHMACVerifier_Base64Encoding(t *testing.T) {
	body := []byte(`{}`)
	verifier := HeaderHMACVerifier{Header: "X-Signature", Secret: "s", Encoding: "base64"}
	err := verifier.Verify(context.Background(), core.InboundEvent{
		Body:    body,
		Headers: map[string]string{"X-Signature": signBase64HMAC("s", body)},
	})
	if err != nil {
		t.Fatalf("expected base64 signature to verify: %v", err)
	}
}

func TestHeaderHMACVerifier_FailureReasons(t *testing.T) {
	body := []byte(`{"action":"published"}`)
	template := NewGitHubReleaseTemplate("secret")

	err := template.Verifier.Verify(context.Background(), core.InboundEvent{Body: body})
	if !errors.Is(err, core.ErrMissingSignature) {
		t.Fatalf("expected missing signature, got %v", err)
	}

	unconfigured := NewGitHubReleaseTemplate("  ")
	err = unconfigured.Verifier.Verify(context.Background(), core.InboundEvent{
		Body:    body,
		Headers: map[string]string{HeaderGitHubSignature: "sha256=" + signHexHMAC("secret", body)},
	})
	if !errors.Is(err, core.ErrMissingSecret) {
		t.Fatalf("expected missing secret, got %v", err)
	}

	err = template.Verifier.Verify(context.Background(), core.InboundEvent{
		Body:    body,
		Headers: map[string]string{HeaderGitHubSignature: "sha256=not-hex"},
	})
	if !errors.Is(err, core.ErrSignatureMismatch) {
		t.Fatalf("expected malformed hex to be a mismatch, got %v", err)
	}

	tampered := append([]byte(nil), body...)
	tampered[len(tampered)-2] = 'X'
	err = template.Verifier.Verify(context.Background(), core.InboundEvent{
		Body:    tampered,
		Headers: map[string]string{HeaderGitHubSignature: "sha256=" + signHexHMAC("secret", body)},
	})
	var verificationErr *core.VerificationError
	if !errors.As(err, &verificationErr) || verificationErr.Reason != core.VerificationSignatureMismatch {
		t.Fatalf("expected signature mismatch for tampered body, got %v", err)
	}
}

func TestHeaderHMACVerifier_UsesExactRawBytes(t *testing.T) {
	compact := []byte(`{"a":1}`)
	spaced := []byte(`{ "a": 1 }`)
	template := NewGitHubReleaseTemplate("secret")
	err := template.Verifier.Verify(context.Background(), core.InboundEvent{
		Body:    spaced,
		Headers: map[string]string{HeaderGitHubSignature: "sha256=" + signHexHMAC("secret", compact)},
	})
	if !errors.Is(err, core.ErrSignatureMismatch) {
		t.Fatalf("expected semantically equal but re-serialized body to mismatch, got %v", err)
	}
}

func signHexHMAC(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func signBase64HMAC(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
