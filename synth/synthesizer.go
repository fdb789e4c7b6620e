// Package synth turns a classified release event into the natural-language
// task handed to the changelog agent.
package synth

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-changelog-hooks/core"
)

const defaultMaxTokens = 2048

type Synthesizer struct {
	generator      core.TextGenerator
	catalog        core.RepositoryCatalog
	docsRepository string
	observer       core.Observer
	Now            func() time.Time
}

type Option func(*Synthesizer)

func WithObserver(observer core.Observer) Option {
	return func(s *Synthesizer) {
		s.observer = observer
	}
}

func New(generator core.TextGenerator, catalog core.RepositoryCatalog, docsRepository string, opts ...Option) *Synthesizer {
	synthesizer := &Synthesizer{
		generator:      generator,
		catalog:        catalog,
		docsRepository: strings.TrimSpace(docsRepository),
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(synthesizer)
		}
	}
	return synthesizer
}

func (s *Synthesizer) Synthesize(ctx context.Context, event core.ClassifiedEvent, payload []byte) (core.TaskSpecification, error) {
	if s == nil || s.generator == nil {
		return core.TaskSpecification{}, core.NewSynthesisError("synthesizer is not configured", nil)
	}
	descriptor, ok := s.catalog.Lookup(event.RepositoryName)
	if !ok {
		descriptor = core.RepositoryDescriptor{Name: event.RepositoryName}
	}
	instructions := renderInstructions(templateInput{
		Repository:     descriptor,
		Event:          event,
		DocsRepository: s.docsRepository,
		Payload:        payload,
	})

	output, err := s.generator.Generate(ctx, core.GenerationRequest{
		System:    systemPrompt,
		Prompt:    instructions,
		MaxTokens: defaultMaxTokens,
	})
	if err != nil {
		return core.TaskSpecification{}, core.NewSynthesisError("generation failed", err)
	}
	output = strings.TrimSpace(output)
	if output == "" {
		return core.TaskSpecification{}, core.NewSynthesisError("generation returned empty output", nil)
	}
	s.observer.Log(ctx, core.LogLevelDebug, "task prompt synthesized", map[string]any{
		"repository":    event.RepositoryName,
		"version":       event.Version,
		"prompt_length": len(output),
	})
	return core.TaskSpecification{
		Prompt:    output,
		Event:     event,
		CreatedAt: s.now(),
	}, nil
}

func (s *Synthesizer) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// TemplateGenerator returns the rendered instructions unchanged, for setups
// without a generative capability.
type TemplateGenerator struct{}

func (TemplateGenerator) Generate(_ context.Context, req core.GenerationRequest) (string, error) {
	return req.Prompt, nil
}

var _ core.TextGenerator = TemplateGenerator{}
