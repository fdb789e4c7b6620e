package core

import "strings"

const RedactedValue = "[REDACTED]"

var sensitiveFieldTokens = []string{
	"secret",
	"signature",
	"token",
	"authorization",
	"api_key",
	"apikey",
	"app_key",
	"password",
	"cookie",
}

// RedactFields copies log fields and masks values whose key looks like a
// credential. Nested maps and header maps are walked.
func RedactFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(fields))
	for key, value := range fields {
		if IsSensitiveField(key) {
			out[key] = RedactedValue
			continue
		}
		out[key] = redactValue(value)
	}
	return out
}

// RedactHeaders masks signature and auth headers. Keys keep their case.
func RedactHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for key, value := range headers {
		if IsSensitiveField(key) {
			out[key] = RedactedValue
			continue
		}
		out[key] = value
	}
	return out
}

func IsSensitiveField(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || isTraceabilityField(key) {
		return false
	}
	key = strings.ReplaceAll(key, "-", "_")
	for _, token := range sensitiveFieldTokens {
		if strings.Contains(key, token) {
			return true
		}
	}
	return false
}

func redactValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return RedactFields(typed)
	case map[string]string:
		return RedactHeaders(typed)
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = redactValue(typed[i])
		}
		return out
	default:
		return value
	}
}

func isTraceabilityField(key string) bool {
	switch key {
	case "event_key",
		"delivery_id",
		"queue_key",
		"idempotency_key",
		"session_handle",
		"token_count",
		"trace_id",
		"request_id":
		return true
	default:
		return false
	}
}
