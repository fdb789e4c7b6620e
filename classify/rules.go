package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goliatone/go-changelog-hooks/core"
)

// PrereleaseMarkers make a version non-actionable wherever they appear.
var PrereleaseMarkers = []string{"-next", "-alpha", "-beta", "-rc", "-canary", "-dev", "-pre", "-snapshot"}

func HasPrereleaseMarker(version string) bool {
	lowered := strings.ToLower(strings.TrimSpace(version))
	for _, marker := range PrereleaseMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// RuleExtractor applies the classification policy deterministically to
// GitHub release, create, delete and push payloads. It ignores the prompt.
type RuleExtractor struct{}

type githubRelease struct {
	TagName    string `json:"tag_name"`
	Name       string `json:"name"`
	Prerelease bool   `json:"prerelease"`
	Draft      bool   `json:"draft"`
}

type githubRepository struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	HTMLURL  string `json:"html_url"`
}

type githubPayload struct {
	Action       string            `json:"action"`
	Release      *githubRelease    `json:"release"`
	Ref          string            `json:"ref"`
	RefType      string            `json:"ref_type"`
	MasterBranch *string           `json:"master_branch"`
	PusherType   string            `json:"pusher_type"`
	Created      bool              `json:"created"`
	Deleted      bool              `json:"deleted"`
	Repository   *githubRepository `json:"repository"`
}

func (RuleExtractor) Extract(_ context.Context, req core.ExtractionRequest) (json.RawMessage, error) {
	var payload githubPayload
	if err := json.Unmarshal(req.Payload, &payload); err != nil {
		return nil, fmt.Errorf("classify: payload is not json: %w", err)
	}
	event := classifyGitHub(payload)
	event.RepositoryName, event.IsSupportedRepository = resolveRepository(payload.Repository, req.Catalog)
	if !event.IsSupportedRepository {
		event.IsActionable = false
		event.Rationale = fmt.Sprintf("repository %q is not in the catalog", event.RepositoryName)
	}
	return json.Marshal(event)
}

func classifyGitHub(payload githubPayload) core.ClassifiedEvent {
	switch {
	case payload.Release != nil:
		event := core.ClassifiedEvent{EventKind: core.EventKindRelease, Version: strings.TrimSpace(payload.Release.TagName)}
		action := strings.ToLower(strings.TrimSpace(payload.Action))
		switch {
		case action != "published":
			event.Rationale = fmt.Sprintf("release action %q is not published", payload.Action)
		case payload.Release.Draft:
			event.Rationale = "release is a draft"
		case payload.Release.Prerelease:
			event.Rationale = "release is flagged as a prerelease"
		case HasPrereleaseMarker(event.Version):
			event.Rationale = fmt.Sprintf("version %q carries a pre-release marker", event.Version)
		default:
			event.IsActionable = true
			event.Rationale = "published release"
		}
		return event

	case strings.EqualFold(strings.TrimSpace(payload.RefType), "tag"):
		event := core.ClassifiedEvent{EventKind: core.EventKindTag, Version: strings.TrimSpace(payload.Ref)}
		switch {
		case payload.MasterBranch == nil:
			// delete events carry ref_type without master_branch.
			event.Rationale = "tag was deleted"
		case HasPrereleaseMarker(event.Version):
			event.Rationale = fmt.Sprintf("version %q carries a pre-release marker", event.Version)
		default:
			event.IsActionable = true
			event.Rationale = "new tag created"
		}
		return event

	case strings.HasPrefix(strings.TrimSpace(payload.Ref), "refs/tags/"):
		event := core.ClassifiedEvent{
			EventKind: core.EventKindTag,
			Version:   strings.TrimPrefix(strings.TrimSpace(payload.Ref), "refs/tags/"),
		}
		switch {
		case payload.Deleted:
			event.Rationale = "tag was deleted"
		case !payload.Created:
			event.Rationale = "existing tag was updated"
		case HasPrereleaseMarker(event.Version):
			event.Rationale = fmt.Sprintf("version %q carries a pre-release marker", event.Version)
		default:
			event.IsActionable = true
			event.Rationale = "new tag pushed"
		}
		return event
	}
	return core.ClassifiedEvent{EventKind: core.EventKindOther, Rationale: "event is neither a release nor a tag"}
}

func resolveRepository(repository *githubRepository, catalog core.RepositoryCatalog) (string, bool) {
	if repository == nil {
		return "", false
	}
	for _, candidate := range []string{repository.FullName, repository.HTMLURL, repository.Name} {
		if entry, ok := catalog.Lookup(candidate); ok {
			return entry.Name, true
		}
	}
	return strings.TrimSpace(repository.Name), false
}

var _ core.StructuredExtractor = RuleExtractor{}
