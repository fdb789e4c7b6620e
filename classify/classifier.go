package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goliatone/go-changelog-hooks/core"
)

type Classifier struct {
	extractor core.StructuredExtractor
	catalog   core.RepositoryCatalog
	observer  core.Observer
}

type Option func(*Classifier)

func WithObserver(observer core.Observer) Option {
	return func(c *Classifier) {
		c.observer = observer
	}
}

func New(extractor core.StructuredExtractor, catalog core.RepositoryCatalog, opts ...Option) *Classifier {
	classifier := &Classifier{extractor: extractor, catalog: catalog}
	for _, opt := range opts {
		if opt != nil {
			opt(classifier)
		}
	}
	return classifier
}

// Classify asks the extractor for a decision and decodes it strictly. Output
// that does not fit the schema is a *core.ClassificationError, never a default.
func (c *Classifier) Classify(ctx context.Context, payload []byte) (core.ClassifiedEvent, error) {
	if c == nil || c.extractor == nil {
		return core.ClassifiedEvent{}, core.NewClassificationError("classifier is not configured", nil)
	}
	raw, err := c.extractor.Extract(ctx, core.ExtractionRequest{
		Prompt:     BuildPrompt(payload, c.catalog),
		SchemaName: SchemaName,
		Schema:     Schema(),
		Payload:    payload,
		Catalog:    c.catalog,
	})
	if err != nil {
		return core.ClassifiedEvent{}, core.NewClassificationError("extraction failed", err)
	}
	event, err := Decode(raw)
	if err != nil {
		return core.ClassifiedEvent{}, err
	}
	if event.IsSupportedRepository {
		if entry, ok := c.catalog.Lookup(event.RepositoryName); ok {
			event.RepositoryName = entry.Name
		}
	}
	if event.Dispatchable() && event.RepositoryName == "" {
		return core.ClassifiedEvent{}, core.NewClassificationError("actionable event has no repository name", nil)
	}
	c.observer.Log(ctx, core.LogLevelDebug, "event classified", map[string]any{
		"repository":   event.RepositoryName,
		"version":      event.Version,
		"event_kind":   string(event.EventKind),
		"actionable":   event.IsActionable,
		"supported":    event.IsSupportedRepository,
		"rationale":    event.Rationale,
		"dispatchable": event.Dispatchable(),
	})
	return event, nil
}

type wireEvent struct {
	IsActionable          *bool   `json:"isActionable"`
	EventKind             *string `json:"eventKind"`
	RepositoryName        *string `json:"repositoryName"`
	Version               *string `json:"version"`
	Rationale             *string `json:"rationale"`
	IsSupportedRepository *bool   `json:"isSupportedRepository"`
}

// Decode validates an extractor document against the six-field contract.
func Decode(raw []byte) (core.ClassifiedEvent, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	var wire wireEvent
	if err := decoder.Decode(&wire); err != nil {
		return core.ClassifiedEvent{}, core.NewClassificationError("output does not match schema", err)
	}

	var missing []string
	if wire.IsActionable == nil {
		missing = append(missing, "isActionable")
	}
	if wire.EventKind == nil {
		missing = append(missing, "eventKind")
	}
	if wire.RepositoryName == nil {
		missing = append(missing, "repositoryName")
	}
	if wire.Version == nil {
		missing = append(missing, "version")
	}
	if wire.Rationale == nil {
		missing = append(missing, "rationale")
	}
	if wire.IsSupportedRepository == nil {
		missing = append(missing, "isSupportedRepository")
	}
	if len(missing) > 0 {
		return core.ClassifiedEvent{}, core.NewClassificationError(
			fmt.Sprintf("output is missing %s", strings.Join(missing, ", ")), nil)
	}

	kind, ok := core.ParseEventKind(*wire.EventKind)
	if !ok {
		return core.ClassifiedEvent{}, core.NewClassificationError(
			fmt.Sprintf("unknown eventKind %q", *wire.EventKind), nil)
	}
	return core.ClassifiedEvent{
		IsActionable:          *wire.IsActionable,
		EventKind:             kind,
		RepositoryName:        strings.TrimSpace(*wire.RepositoryName),
		Version:               strings.TrimSpace(*wire.Version),
		Rationale:             strings.TrimSpace(*wire.Rationale),
		IsSupportedRepository: *wire.IsSupportedRepository,
	}, nil
}
