// Package classify turns a verified release webhook payload into a
// core.ClassifiedEvent.
package classify

import "github.com/goliatone/go-changelog-hooks/core"

const SchemaName = "classified_event"

// Schema is the strict output contract handed to the extraction capability.
// Every field is required and no others are allowed.
func Schema() map[string]any {
	kinds := make([]any, 0, len(core.EventKinds))
	for _, kind := range core.EventKinds {
		kinds = append(kinds, string(kind))
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"isActionable": map[string]any{
				"type":        "boolean",
				"description": "True only when the event should trigger a changelog update.",
			},
			"eventKind": map[string]any{
				"type": "string",
				"enum": kinds,
			},
			"repositoryName": map[string]any{
				"type":        "string",
				"description": "Catalog name of the repository, or the payload repository name when unsupported.",
			},
			"version": map[string]any{
				"type":        "string",
				"description": "Released version or tag, empty when it cannot be determined.",
			},
			"rationale": map[string]any{
				"type": "string",
			},
			"isSupportedRepository": map[string]any{
				"type": "boolean",
			},
		},
		"required": []any{
			"isActionable",
			"eventKind",
			"repositoryName",
			"version",
			"rationale",
			"isSupportedRepository",
		},
		"additionalProperties": false,
	}
}
