package core

import "strings"

const EventKeyPrefix = "changelog-event"

// EventKey is the dedup identity of a classified event:
// changelog-event:<repository>:<version>:<kind>.
type EventKey string

// keyFieldEscaper keeps ':' inside a field from reading as a separator.
var keyFieldEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// NewEventKey is a pure function of its three inputs; rationale, payload and
// flags never take part in the key. Fields are trimmed, then '%' and ':' are
// percent-escaped so distinct triples never share a key. Fields without those
// characters appear verbatim.
func NewEventKey(repository string, version string, kind EventKind) EventKey {
	return EventKey(strings.Join([]string{
		EventKeyPrefix,
		keyField(repository),
		keyField(version),
		keyField(string(kind)),
	}, ":"))
}

func keyField(value string) string {
	return keyFieldEscaper.Replace(strings.TrimSpace(value))
}

func (k EventKey) String() string {
	return string(k)
}

func (k EventKey) Valid() bool {
	parts := strings.SplitN(string(k), ":", 2)
	if len(parts) != 2 || parts[0] != EventKeyPrefix {
		return false
	}
	return !strings.HasPrefix(parts[1], ":")
}
