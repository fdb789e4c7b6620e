package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-changelog-hooks/core"
)

const kvCacheKeyPrefix = "changelog-hooks::kv::v1"

// errKVMiss keeps misses out of the cache so a later Set is seen immediately.
var errKVMiss = errors.New("ledger: kv key not found")

type cachedValue struct {
	Value []byte
}

// CachedKV is a read-through cache over a KV store. Only hits are cached and
// every write invalidates the key.
type CachedKV struct {
	base  core.KVStore
	cache repositorycache.CacheService
}

func NewCachedKV(base core.KVStore, cacheService repositorycache.CacheService) (*CachedKV, error) {
	if base == nil {
		return nil, fmt.Errorf("ledger: base kv store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("ledger: kv cache service is required")
	}
	return &CachedKV{base: base, cache: cacheService}, nil
}

// KVCacheKey is changelog-hooks::kv::v1::<namespace>::<key> with each segment
// URL-path escaped.
func KVCacheKey(namespace string, key string) string {
	return strings.Join([]string{
		kvCacheKeyPrefix,
		url.PathEscape(strings.TrimSpace(namespace)),
		url.PathEscape(strings.TrimSpace(key)),
	}, "::")
}

func (c *CachedKV) Get(ctx context.Context, namespace string, key string) ([]byte, bool, error) {
	if c == nil || c.base == nil || c.cache == nil {
		return nil, false, fmt.Errorf("ledger: cached kv is not configured")
	}
	cached, err := repositorycache.GetOrFetch(ctx, c.cache, KVCacheKey(namespace, key), func(ctx context.Context) (cachedValue, error) {
		value, found, fetchErr := c.base.Get(ctx, namespace, key)
		if fetchErr != nil {
			return cachedValue{}, fetchErr
		}
		if !found {
			return cachedValue{}, errKVMiss
		}
		return cachedValue{Value: append([]byte(nil), value...)}, nil
	})
	if errors.Is(err, errKVMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return append([]byte(nil), cached.Value...), true, nil
}

func (c *CachedKV) Set(ctx context.Context, namespace string, key string, value []byte) error {
	if c == nil || c.base == nil || c.cache == nil {
		return fmt.Errorf("ledger: cached kv is not configured")
	}
	if err := c.base.Set(ctx, namespace, key, value); err != nil {
		return err
	}
	return c.cache.Delete(ctx, KVCacheKey(namespace, key))
}

func (c *CachedKV) SetIfAbsent(ctx context.Context, namespace string, key string, value []byte) (bool, error) {
	reserver, ok := c.baseReserver()
	if !ok {
		return false, ErrReserveUnsupported
	}
	reserved, err := reserver.SetIfAbsent(ctx, namespace, key, value)
	if err != nil {
		return false, err
	}
	if reserved {
		if err := c.cache.Delete(ctx, KVCacheKey(namespace, key)); err != nil {
			return true, err
		}
	}
	return reserved, nil
}

func (c *CachedKV) Delete(ctx context.Context, namespace string, key string) error {
	reserver, ok := c.baseReserver()
	if !ok {
		return ErrReserveUnsupported
	}
	if err := reserver.Delete(ctx, namespace, key); err != nil {
		return err
	}
	return c.cache.Delete(ctx, KVCacheKey(namespace, key))
}

func (c *CachedKV) baseReserver() (core.KVReserver, bool) {
	if c == nil || c.base == nil || c.cache == nil {
		return nil, false
	}
	reserver, ok := c.base.(core.KVReserver)
	return reserver, ok
}

var (
	_ core.KVStore    = (*CachedKV)(nil)
	_ core.KVReserver = (*CachedKV)(nil)
)
