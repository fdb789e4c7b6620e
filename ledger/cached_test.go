package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type countingKV struct {
	mu       sync.Mutex
	base     *MemoryKV
	getCalls int
}

func (c *countingKV) Get(ctx context.Context, namespace string, key string) ([]byte, bool, error) {
	c.mu.Lock()
	c.getCalls++
	c.mu.Unlock()
	return c.base.Get(ctx, namespace, key)
}

func (c *countingKV) Set(ctx context.Context, namespace string, key string, value []byte) error {
	return c.base.Set(ctx, namespace, key, value)
}

func (c *countingKV) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getCalls
}

func newTestCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}

func TestCachedKV_HitsAreCachedMissesAreNot(t *testing.T) {
	base := &countingKV{base: NewMemoryKV()}
	cached, err := NewCachedKV(base, newTestCacheService(t))
	if err != nil {
		t.Fatalf("new cached kv: %v", err)
	}
	ctx := context.Background()

	if _, found, err := cached.Get(ctx, Namespace, "k"); err != nil || found {
		t.Fatalf("expected miss, got found=%v err=%v", found, err)
	}
	if _, found, _ := cached.Get(ctx, Namespace, "k"); found {
		t.Fatalf("expected second miss")
	}
	if base.calls() != 2 {
		t.Fatalf("expected misses to reach the base store, got %d calls", base.calls())
	}

	if err := cached.Set(ctx, Namespace, "k", []byte("v1")); err != nil {
		t.Fatalf("set: %v", err)
	}
	value, found, err := cached.Get(ctx, Namespace, "k")
	if err != nil || !found || string(value) != "v1" {
		t.Fatalf("expected v1 after set, got %q found=%v err=%v", value, found, err)
	}
	if _, _, err := cached.Get(ctx, Namespace, "k"); err != nil {
		t.Fatalf("cached get: %v", err)
	}
	if base.calls() != 3 {
		t.Fatalf("expected hit to be served from cache, got %d base calls", base.calls())
	}

	if err := cached.Set(ctx, Namespace, "k", []byte("v2")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	value, _, _ = cached.Get(ctx, Namespace, "k")
	if string(value) != "v2" {
		t.Fatalf("expected invalidation on set, got %q", value)
	}
}

func TestCachedKV_ReserveRequiresReserverBase(t *testing.T) {
	cached, err := NewCachedKV(&countingKV{base: NewMemoryKV()}, newTestCacheService(t))
	if err != nil {
		t.Fatalf("new cached kv: %v", err)
	}
	if _, err := cached.SetIfAbsent(context.Background(), Namespace, "k", []byte("v")); !errors.Is(err, ErrReserveUnsupported) {
		t.Fatalf("expected unsupported reservation, got %v", err)
	}

	store := New(cached, WithReservations(true))
	reserved, err := store.Reserve(context.Background(), sampleEvent())
	if err != nil || !reserved {
		t.Fatalf("expected store to degrade to no-op reservation, got %v %v", reserved, err)
	}
}

func TestCachedKV_ReserveInvalidates(t *testing.T) {
	base := NewMemoryKV()
	cached, err := NewCachedKV(base, newTestCacheService(t))
	if err != nil {
		t.Fatalf("new cached kv: %v", err)
	}
	ctx := context.Background()

	reserved, err := cached.SetIfAbsent(ctx, Namespace, "k", []byte("pending"))
	if err != nil || !reserved {
		t.Fatalf("expected reservation, got %v %v", reserved, err)
	}
	if value, found, _ := cached.Get(ctx, Namespace, "k"); !found || string(value) != "pending" {
		t.Fatalf("expected pending value, got %q found=%v", value, found)
	}
	if err := cached.Delete(ctx, Namespace, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, _ := cached.Get(ctx, Namespace, "k"); found {
		t.Fatalf("expected delete to invalidate cached hit")
	}
}

func TestNewCachedKV_RequiresDependencies(t *testing.T) {
	if _, err := NewCachedKV(nil, newTestCacheService(t)); err == nil {
		t.Fatalf("expected missing base error")
	}
	if _, err := NewCachedKV(NewMemoryKV(), nil); err == nil {
		t.Fatalf("expected missing cache error")
	}
}
