package synth

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-changelog-hooks/core"
)

// UndeterminedVersion replaces an empty version in the instructions.
const UndeterminedVersion = "undetermined - infer from context"

const systemPrompt = "You write precise task instructions for an autonomous software agent. " +
	"Return only the instructions, in plain prose and bullet points."

type templateInput struct {
	Repository     core.RepositoryDescriptor
	Event          core.ClassifiedEvent
	DocsRepository string
	Payload        []byte
}

// renderInstructions produces the fixed-format brief the generator expands
// into the final task prompt.
func renderInstructions(in templateInput) string {
	version := strings.TrimSpace(in.Event.Version)
	if version == "" {
		version = UndeterminedVersion
	}
	repoURL := in.Repository.URL
	if repoURL == "" {
		repoURL = "(not listed)"
	}
	category := in.Repository.Category
	if category == "" {
		category = "(uncategorised)"
	}

	var b strings.Builder
	b.WriteString("Write a task for an agent that updates a project changelog.\n\n")
	b.WriteString("Repository:\n")
	fmt.Fprintf(&b, "- name: %s\n", in.Event.RepositoryName)
	fmt.Fprintf(&b, "- url: %s\n", repoURL)
	fmt.Fprintf(&b, "- category: %s\n", category)
	fmt.Fprintf(&b, "- event kind: %s\n", in.Event.EventKind)
	fmt.Fprintf(&b, "- version: %s\n\n", version)

	b.WriteString("Instructions the task must contain:\n")
	b.WriteString("- Follow the Keep a Changelog convention (https://keepachangelog.com) with Added, Changed, Deprecated, Removed, Fixed and Security sections.\n")
	b.WriteString("- Update CHANGELOG.md at the repository root, or the changelog page the repository already uses.\n")
	fmt.Fprintf(&b, "- It is mandatory to also update the matching changelog entry in the companion documentation repository %s.\n", in.DocsRepository)
	b.WriteString("- Do not create new files or pages.\n")
	b.WriteString("- Do not delete or rewrite prior changelog entries.\n")
	b.WriteString("- Insert the new entry at the top, in the position consistent with the chronological ordering of existing entries.\n")
	b.WriteString("- Derive the entry content from the changes in this release and the payload below.\n\n")

	b.WriteString("Raw webhook payload (ground truth):\n")
	b.Write(in.Payload)
	b.WriteString("\n")
	return b.String()
}
