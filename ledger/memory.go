package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-changelog-hooks/core"
)

// MemoryKV is a process-local KV store. Safe for concurrent use.
type MemoryKV struct {
	mu      sync.Mutex
	entries map[string]map[string][]byte
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{entries: map[string]map[string][]byte{}}
}

func (m *MemoryKV) Get(_ context.Context, namespace string, key string) ([]byte, bool, error) {
	if m == nil {
		return nil, false, fmt.Errorf("ledger: memory kv is not configured")
	}
	namespace, key, err := normalizeKVKey(namespace, key)
	if err != nil {
		return nil, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.entries[namespace][key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

func (m *MemoryKV) Set(_ context.Context, namespace string, key string, value []byte) error {
	if m == nil {
		return fmt.Errorf("ledger: memory kv is not configured")
	}
	namespace, key, err := normalizeKVKey(namespace, key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bucketLocked(namespace)[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryKV) SetIfAbsent(_ context.Context, namespace string, key string, value []byte) (bool, error) {
	if m == nil {
		return false, fmt.Errorf("ledger: memory kv is not configured")
	}
	namespace, key, err := normalizeKVKey(namespace, key)
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket := m.bucketLocked(namespace)
	if _, exists := bucket[key]; exists {
		return false, nil
	}
	bucket[key] = append([]byte(nil), value...)
	return true, nil
}

func (m *MemoryKV) Delete(_ context.Context, namespace string, key string) error {
	if m == nil {
		return fmt.Errorf("ledger: memory kv is not configured")
	}
	namespace, key, err := normalizeKVKey(namespace, key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries[namespace], key)
	return nil
}

func (m *MemoryKV) Len(namespace string) int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries[strings.TrimSpace(namespace)])
}

func (m *MemoryKV) bucketLocked(namespace string) map[string][]byte {
	if m.entries == nil {
		m.entries = map[string]map[string][]byte{}
	}
	bucket, ok := m.entries[namespace]
	if !ok {
		bucket = map[string][]byte{}
		m.entries[namespace] = bucket
	}
	return bucket
}

func normalizeKVKey(namespace string, key string) (string, string, error) {
	namespace = strings.TrimSpace(namespace)
	key = strings.TrimSpace(key)
	if namespace == "" || key == "" {
		return "", "", fmt.Errorf("ledger: namespace and key are required")
	}
	return namespace, key, nil
}

var (
	_ core.KVStore    = (*MemoryKV)(nil)
	_ core.KVReserver = (*MemoryKV)(nil)
)
