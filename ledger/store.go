// Package ledger records which release events already produced a task.
//
// Keys live in a namespaced key-value store. Reads gate dispatch; writes
// happen only after a successful dispatch so a failed attempt never poisons
// its key.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-changelog-hooks/core"
)

const Namespace = "changelog_events"

// DefaultPendingTTL bounds how long a pending marker blocks its key.
const DefaultPendingTTL = 10 * time.Minute

// ErrReserveUnsupported is returned by KV stores that wrap a base without
// insert-if-absent support.
var ErrReserveUnsupported = errors.New("ledger: kv store does not support reservations")

type Store struct {
	kv         core.KVStore
	reserve    bool
	pendingTTL time.Duration
	observer   core.Observer
	Now        func() time.Time
}

type Option func(*Store)

// WithReservations writes a pending marker before dispatch when the KV store
// supports insert-if-absent. Off by default.
func WithReservations(enabled bool) Option {
	return func(s *Store) {
		s.reserve = enabled
	}
}

// WithPendingTTL sets the age after which a pending marker counts as left by
// a crashed attempt: Lookup ignores it and Reserve may take it over. Zero
// keeps markers until Record or Release.
func WithPendingTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl >= 0 {
			s.pendingTTL = ttl
		}
	}
}

func WithObserver(observer core.Observer) Option {
	return func(s *Store) {
		s.observer = observer
	}
}

func New(kv core.KVStore, opts ...Option) *Store {
	store := &Store{
		kv:         kv,
		pendingTTL: DefaultPendingTTL,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

func (s *Store) Exists(ctx context.Context, key core.EventKey) (bool, error) {
	_, found, err := s.Lookup(ctx, key)
	return found, err
}

func (s *Store) Lookup(ctx context.Context, key core.EventKey) (core.ProcessedEventRecord, bool, error) {
	if s == nil || s.kv == nil {
		return core.ProcessedEventRecord{}, false, core.NewStoreError(core.StoreOpRead, key, fmt.Errorf("ledger: kv store is not configured"))
	}
	value, found, err := s.kv.Get(ctx, Namespace, key.String())
	if err != nil {
		return core.ProcessedEventRecord{}, false, core.NewStoreError(core.StoreOpRead, key, err)
	}
	if !found {
		return core.ProcessedEventRecord{}, false, nil
	}
	var record core.ProcessedEventRecord
	if err := json.Unmarshal(value, &record); err != nil {
		// A present key still means the event was handled.
		s.observer.Log(ctx, core.LogLevelWarn, "ledger record is not decodable", map[string]any{
			"event_key": key.String(),
			"error":     err.Error(),
		})
		return core.ProcessedEventRecord{Key: key}, true, nil
	}
	if s.expired(record) {
		s.observer.Log(ctx, core.LogLevelWarn, "ledger pending marker expired", map[string]any{
			"event_key":   key.String(),
			"reserved_at": record.ProcessedAt.Format(time.RFC3339),
		})
		return core.ProcessedEventRecord{}, false, nil
	}
	return record, true, nil
}

func (s *Store) Record(ctx context.Context, key core.EventKey, record core.ProcessedEventRecord) error {
	if s == nil || s.kv == nil {
		return core.NewStoreError(core.StoreOpWrite, key, fmt.Errorf("ledger: kv store is not configured"))
	}
	record.Key = key
	if record.Status == "" {
		record.Status = core.ProcessedStatusDispatched
	}
	if record.ProcessedAt.IsZero() {
		record.ProcessedAt = s.now()
	}
	value, err := json.Marshal(record)
	if err != nil {
		return core.NewStoreError(core.StoreOpWrite, key, err)
	}
	if err := s.kv.Set(ctx, Namespace, key.String(), value); err != nil {
		return core.NewStoreError(core.StoreOpWrite, key, err)
	}
	return nil
}

// Reserve claims key with a pending marker. It reports false when another
// delivery already holds or completed the key. An expired marker is replaced.
// Without reservations enabled or supported it always succeeds without
// writing.
func (s *Store) Reserve(ctx context.Context, event core.ClassifiedEvent) (bool, error) {
	key := event.Key()
	reserver, ok := s.reserver()
	if !ok {
		return true, nil
	}
	record := core.ProcessedEventRecord{
		Key:         key,
		Repository:  event.RepositoryName,
		Version:     event.Version,
		EventKind:   event.EventKind,
		ProcessedAt: s.now(),
		Status:      core.ProcessedStatusPending,
	}
	value, err := json.Marshal(record)
	if err != nil {
		return false, core.NewStoreError(core.StoreOpWrite, key, err)
	}
	reserved, err := reserver.SetIfAbsent(ctx, Namespace, key.String(), value)
	if errors.Is(err, ErrReserveUnsupported) {
		return true, nil
	}
	if err != nil {
		return false, core.NewStoreError(core.StoreOpWrite, key, err)
	}
	if reserved {
		return true, nil
	}
	return s.takeOver(ctx, reserver, key, value)
}

// takeOver replaces an expired pending marker. It is not atomic: two
// deliveries racing on the same expired marker may both claim the key.
func (s *Store) takeOver(ctx context.Context, reserver core.KVReserver, key core.EventKey, value []byte) (bool, error) {
	current, found, err := s.kv.Get(ctx, Namespace, key.String())
	if err != nil {
		return false, core.NewStoreError(core.StoreOpRead, key, err)
	}
	if !found {
		return false, nil
	}
	var record core.ProcessedEventRecord
	if err := json.Unmarshal(current, &record); err != nil || !s.expired(record) {
		return false, nil
	}
	if err := reserver.Delete(ctx, Namespace, key.String()); err != nil {
		return false, core.NewStoreError(core.StoreOpWrite, key, err)
	}
	reserved, err := reserver.SetIfAbsent(ctx, Namespace, key.String(), value)
	if err != nil {
		return false, core.NewStoreError(core.StoreOpWrite, key, err)
	}
	if reserved {
		s.observer.Log(ctx, core.LogLevelWarn, "ledger took over expired pending marker", map[string]any{
			"event_key": key.String(),
		})
	}
	return reserved, nil
}

// Release drops a pending marker after a failed dispatch.
func (s *Store) Release(ctx context.Context, key core.EventKey) error {
	reserver, ok := s.reserver()
	if !ok {
		return nil
	}
	err := reserver.Delete(ctx, Namespace, key.String())
	if err == nil || errors.Is(err, ErrReserveUnsupported) {
		return nil
	}
	return core.NewStoreError(core.StoreOpWrite, key, err)
}

func (s *Store) ReservationsEnabled() bool {
	_, ok := s.reserver()
	return ok
}

func (s *Store) reserver() (core.KVReserver, bool) {
	if s == nil || !s.reserve || s.kv == nil {
		return nil, false
	}
	reserver, ok := s.kv.(core.KVReserver)
	return reserver, ok
}

func (s *Store) expired(record core.ProcessedEventRecord) bool {
	if record.Status != core.ProcessedStatusPending || s.pendingTTL <= 0 || record.ProcessedAt.IsZero() {
		return false
	}
	return s.now().Sub(record.ProcessedAt) > s.pendingTTL
}

func (s *Store) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}
