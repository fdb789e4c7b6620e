package query

import (
	"strings"

	"github.com/goliatone/go-changelog-hooks/core"
)

const TypeLookupProcessedEvent = "changelog.query.event.lookup"

type LookupProcessedEventMessage struct {
	Repository string
	Version    string
	EventKind  core.EventKind
}

func (LookupProcessedEventMessage) Type() string { return TypeLookupProcessedEvent }

func (m LookupProcessedEventMessage) Validate() error {
	if strings.TrimSpace(m.Repository) == "" {
		return queryValidationError("repository", "repository is required")
	}
	if strings.TrimSpace(m.Version) == "" {
		return queryValidationError("version", "version is required")
	}
	if _, ok := core.ParseEventKind(string(m.EventKind)); !ok {
		return queryValidationError("event_kind", "event kind must be release, tag or other")
	}
	return nil
}

func (m LookupProcessedEventMessage) Key() core.EventKey {
	kind, _ := core.ParseEventKind(string(m.EventKind))
	return core.NewEventKey(m.Repository, m.Version, kind)
}
