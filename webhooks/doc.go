// Package webhooks authenticates inbound release deliveries.
//
// Verification runs over the exact raw body bytes before anything parses
// them. Failures are reported as *core.VerificationError.
package webhooks
