package core

import (
	"fmt"
	"strings"
)

type RepositoryDescriptor struct {
	Name     string `koanf:"name" mapstructure:"name" yaml:"name" json:"name"`
	URL      string `koanf:"url" mapstructure:"url" yaml:"url" json:"url"`
	Category string `koanf:"category" mapstructure:"category" yaml:"category" json:"category"`
}

// RepositoryCatalog is the static list of repositories the pipeline acts on.
// It is built once from configuration and never mutated.
type RepositoryCatalog struct {
	entries []RepositoryDescriptor
}

func NewRepositoryCatalog(entries ...RepositoryDescriptor) (RepositoryCatalog, error) {
	seen := map[string]struct{}{}
	out := make([]RepositoryDescriptor, 0, len(entries))
	for _, entry := range entries {
		entry.Name = strings.TrimSpace(entry.Name)
		entry.URL = strings.TrimRight(strings.TrimSpace(entry.URL), "/")
		entry.Category = strings.TrimSpace(entry.Category)
		if entry.Name == "" {
			return RepositoryCatalog{}, fmt.Errorf("core: catalog entry name is required")
		}
		key := strings.ToLower(entry.Name)
		if _, exists := seen[key]; exists {
			return RepositoryCatalog{}, fmt.Errorf("core: duplicate catalog entry %q", entry.Name)
		}
		seen[key] = struct{}{}
		out = append(out, entry)
	}
	return RepositoryCatalog{entries: out}, nil
}

func MustRepositoryCatalog(entries ...RepositoryDescriptor) RepositoryCatalog {
	catalog, err := NewRepositoryCatalog(entries...)
	if err != nil {
		panic(err)
	}
	return catalog
}

func (c RepositoryCatalog) Entries() []RepositoryDescriptor {
	return append([]RepositoryDescriptor(nil), c.entries...)
}

func (c RepositoryCatalog) Len() int {
	return len(c.entries)
}

// Lookup matches by name, owner/name, or canonical URL, case-insensitively.
func (c RepositoryCatalog) Lookup(nameOrURL string) (RepositoryDescriptor, bool) {
	needle := strings.ToLower(strings.TrimRight(strings.TrimSpace(nameOrURL), "/"))
	if needle == "" {
		return RepositoryDescriptor{}, false
	}
	needle = strings.TrimSuffix(needle, ".git")
	for _, entry := range c.entries {
		name := strings.ToLower(entry.Name)
		url := strings.ToLower(entry.URL)
		switch {
		case needle == name:
			return entry, true
		case url != "" && needle == url:
			return entry, true
		case url != "" && strings.HasSuffix(url, "/"+needle):
			return entry, true
		case strings.HasSuffix(needle, "/"+name):
			return entry, true
		}
	}
	return RepositoryDescriptor{}, false
}
