package classify

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-changelog-hooks/core"
)

var decisionPolicy = []string{
	"A release event is actionable only when its action is \"published\".",
	"A tag event is actionable only when it is a newly created tag. Deletions and updates are not actionable.",
	"Any version containing a pre-release marker (for example -next, -alpha, -beta, -rc, -canary) is not actionable.",
	"isSupportedRepository is true only when the repository matches an entry in the catalog below; use that entry's name as repositoryName.",
	"eventKind is \"release\" for release events, \"tag\" for tag events and \"other\" for everything else.",
	"Explain the decision in rationale in one sentence.",
}

// BuildPrompt embeds the decision policy, the catalog and the raw payload.
func BuildPrompt(payload []byte, catalog core.RepositoryCatalog) string {
	var b strings.Builder
	b.WriteString("You classify repository webhook events for a changelog automation.\n\n")
	b.WriteString("Decision policy:\n")
	for _, rule := range decisionPolicy {
		b.WriteString("- ")
		b.WriteString(rule)
		b.WriteString("\n")
	}
	b.WriteString("\nRepository catalog:\n")
	entries := catalog.Entries()
	if len(entries) == 0 {
		b.WriteString("(empty)\n")
	}
	for _, entry := range entries {
		fmt.Fprintf(&b, "- name: %s | url: %s | category: %s\n", entry.Name, entry.URL, entry.Category)
	}
	b.WriteString("\nWebhook payload:\n")
	b.Write(payload)
	b.WriteString("\n")
	return b.String()
}
