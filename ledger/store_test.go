package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-changelog-hooks/core"
)

type failingKV struct {
	getErr error
	setErr error
}

func (f failingKV) Get(context.Context, string, string) ([]byte, bool, error) {
	return nil, false, f.getErr
}

func (f failingKV) Set(context.Context, string, string, []byte) error {
	return f.setErr
}

func sampleEvent() core.ClassifiedEvent {
	return core.ClassifiedEvent{
		IsActionable:          true,
		EventKind:             core.EventKindRelease,
		RepositoryName:        "sdk-js",
		Version:               "v1.4.0",
		IsSupportedRepository: true,
	}
}

func TestStore_RecordThenExists(t *testing.T) {
	kv := NewMemoryKV()
	store := New(kv)
	fixed := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	store.Now = func() time.Time { return fixed }
	event := sampleEvent()
	key := event.Key()

	exists, err := store.Exists(context.Background(), key)
	if err != nil || exists {
		t.Fatalf("expected unseen key, got exists=%v err=%v", exists, err)
	}

	record := core.NewProcessedEventRecord(event, core.DispatchResult{SessionHandle: "sess-1"}, fixed)
	if err := store.Record(context.Background(), key, record); err != nil {
		t.Fatalf("record: %v", err)
	}
	exists, err = store.Exists(context.Background(), key)
	if err != nil || !exists {
		t.Fatalf("expected recorded key, got exists=%v err=%v", exists, err)
	}

	loaded, found, err := store.Lookup(context.Background(), key)
	if err != nil || !found {
		t.Fatalf("lookup: found=%v err=%v", found, err)
	}
	if loaded.SessionHandle != "sess-1" || loaded.Status != core.ProcessedStatusDispatched {
		t.Fatalf("unexpected record %+v", loaded)
	}
	if kv.Len(Namespace) != 1 {
		t.Fatalf("expected one entry in %s namespace", Namespace)
	}
	if _, ok, _ := kv.Get(context.Background(), Namespace, "changelog-event:sdk-js:v1.4.0:release"); !ok {
		t.Fatalf("expected record under the event key")
	}
}

func TestStore_ErrorsAreTypedByOperation(t *testing.T) {
	key := sampleEvent().Key()
	store := New(failingKV{getErr: errors.New("read timeout"), setErr: errors.New("write timeout")})

	_, err := store.Exists(context.Background(), key)
	var storeErr *core.StoreError
	if !errors.As(err, &storeErr) || storeErr.Op != core.StoreOpRead {
		t.Fatalf("expected read store error, got %v", err)
	}

	err = store.Record(context.Background(), key, core.ProcessedEventRecord{})
	if !errors.As(err, &storeErr) || storeErr.Op != core.StoreOpWrite {
		t.Fatalf("expected write store error, got %v", err)
	}
}

func TestStore_UndecodableValueStillExists(t *testing.T) {
	kv := NewMemoryKV()
	key := sampleEvent().Key()
	if err := kv.Set(context.Background(), Namespace, key.String(), []byte("legacy")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	exists, err := New(kv).Exists(context.Background(), key)
	if err != nil || !exists {
		t.Fatalf("expected legacy value to count as processed, got exists=%v err=%v", exists, err)
	}
}

func TestStore_ReservationsDisabledByDefault(t *testing.T) {
	kv := NewMemoryKV()
	store := New(kv)
	reserved, err := store.Reserve(context.Background(), sampleEvent())
	if err != nil || !reserved {
		t.Fatalf("expected no-op reservation, got %v %v", reserved, err)
	}
	if kv.Len(Namespace) != 0 {
		t.Fatalf("expected no pending marker without reservations")
	}
}

func TestStore_ReserveIsExclusive(t *testing.T) {
	kv := NewMemoryKV()
	store := New(kv, WithReservations(true))
	event := sampleEvent()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reserved, err := store.Reserve(context.Background(), event)
			if err != nil {
				t.Errorf("reserve: %v", err)
				return
			}
			if reserved {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if winners != 1 {
		t.Fatalf("expected exactly one reservation winner, got %d", winners)
	}

	record, found, err := store.Lookup(context.Background(), event.Key())
	if err != nil || !found || record.Status != core.ProcessedStatusPending {
		t.Fatalf("expected pending marker, got %+v found=%v err=%v", record, found, err)
	}

	if err := store.Release(context.Background(), event.Key()); err != nil {
		t.Fatalf("release: %v", err)
	}
	if exists, _ := store.Exists(context.Background(), event.Key()); exists {
		t.Fatalf("expected release to clear the marker")
	}
}

func TestStore_ReservationsIgnoredWithoutReserver(t *testing.T) {
	store := New(failingKV{}, WithReservations(true))
	if store.ReservationsEnabled() {
		t.Fatalf("expected reservations to be unavailable")
	}
	reserved, err := store.Reserve(context.Background(), sampleEvent())
	if err != nil || !reserved {
		t.Fatalf("expected no-op reservation, got %v %v", reserved, err)
	}
}

func TestStore_ExpiredPendingMarkerIsTakenOver(t *testing.T) {
	kv := NewMemoryKV()
	store := New(kv, WithReservations(true), WithPendingTTL(10*time.Minute))
	reservedAt := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	now := reservedAt
	store.Now = func() time.Time { return now }
	event := sampleEvent()

	reserved, err := store.Reserve(context.Background(), event)
	if err != nil || !reserved {
		t.Fatalf("expected first reservation, got %v %v", reserved, err)
	}

	// The holder crashes before Record or Release.
	now = reservedAt.Add(5 * time.Minute)
	if exists, _ := store.Exists(context.Background(), event.Key()); !exists {
		t.Fatalf("expected fresh pending marker to block the key")
	}
	if reserved, _ := store.Reserve(context.Background(), event); reserved {
		t.Fatalf("expected fresh pending marker to refuse a second reservation")
	}

	now = reservedAt.Add(11 * time.Minute)
	if exists, _ := store.Exists(context.Background(), event.Key()); exists {
		t.Fatalf("expected expired pending marker to read as absent")
	}
	reserved, err = store.Reserve(context.Background(), event)
	if err != nil || !reserved {
		t.Fatalf("expected expired marker to be taken over, got %v %v", reserved, err)
	}
	record, found, err := store.Lookup(context.Background(), event.Key())
	if err != nil || !found || record.Status != core.ProcessedStatusPending || !record.ProcessedAt.Equal(now) {
		t.Fatalf("expected fresh pending marker, got %+v found=%v err=%v", record, found, err)
	}
	if kv.Len(Namespace) != 1 {
		t.Fatalf("expected one marker, got %d", kv.Len(Namespace))
	}
}

func TestStore_DispatchedRecordsNeverExpire(t *testing.T) {
	kv := NewMemoryKV()
	store := New(kv, WithReservations(true), WithPendingTTL(time.Minute))
	recordedAt := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	now := recordedAt
	store.Now = func() time.Time { return now }
	event := sampleEvent()

	record := core.NewProcessedEventRecord(event, core.DispatchResult{SessionHandle: "sess-1"}, recordedAt)
	if err := store.Record(context.Background(), event.Key(), record); err != nil {
		t.Fatalf("record: %v", err)
	}
	now = recordedAt.Add(24 * time.Hour)
	if exists, _ := store.Exists(context.Background(), event.Key()); !exists {
		t.Fatalf("expected dispatched record to stay")
	}
	if reserved, _ := store.Reserve(context.Background(), event); reserved {
		t.Fatalf("expected dispatched record to refuse a reservation")
	}
}

func TestStore_ZeroPendingTTLKeepsMarkers(t *testing.T) {
	store := New(NewMemoryKV(), WithReservations(true), WithPendingTTL(0))
	reservedAt := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	now := reservedAt
	store.Now = func() time.Time { return now }
	event := sampleEvent()

	if reserved, err := store.Reserve(context.Background(), event); err != nil || !reserved {
		t.Fatalf("expected reservation, got %v %v", reserved, err)
	}
	now = reservedAt.Add(30 * 24 * time.Hour)
	if exists, _ := store.Exists(context.Background(), event.Key()); !exists {
		t.Fatalf("expected marker to persist without a ttl")
	}
}
