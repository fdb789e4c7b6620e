// Package core contains the changelog hook domain contracts, entities, error
// taxonomy and configuration. Adapters (llm, transport, store) depend on this
// package; core must not depend on any adapter.
package core
