package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	cache, err := NewRedisCache(context.Background(), RedisOptions{Addr: server.Addr(), KeyPrefix: "qcf:"})
	if err != nil {
		t.Fatalf("NewRedisCache() error = %v", err)
	}
	t.Cleanup(func() {
		_ = cache.Close()
	})
	return cache, server
}

func TestRedisCacheSetGetDelete(t *testing.T) {
	cache, server := setupRedisCache(t)
	ctx := context.Background()

	if err := cache.Set(ctx, "gaq:1:dp:1:run:106:mcr:false", `{"runNumber":106}`, 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got, err := server.Get("qcf:gaq:1:dp:1:run:106:mcr:false"); err != nil || got != `{"runNumber":106}` {
		t.Fatalf("stored value = %q, %v; want prefixed key", got, err)
	}

	value, found, err := cache.Get(ctx, " gaq:1:dp:1:run:106:mcr:false ")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !found || value != `{"runNumber":106}` {
		t.Fatalf("Get() = %q, found=%v", value, found)
	}

	if err := cache.Delete(ctx, "gaq:1:dp:1:run:106:mcr:false"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, found, err := cache.Get(ctx, "gaq:1:dp:1:run:106:mcr:false"); err != nil || found {
		t.Fatalf("Get(after delete) found=%v err=%v", found, err)
	}
	if err := cache.Delete(ctx, "missing"); err != nil {
		t.Fatalf("Delete(missing) error = %v", err)
	}
}

func TestRedisCacheExpiresEntries(t *testing.T) {
	cache, server := setupRedisCache(t)
	ctx := context.Background()

	if err := cache.Set(ctx, "run:106:generation", "3", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if ttl := server.TTL("qcf:run:106:generation"); ttl != time.Minute {
		t.Fatalf("ttl = %v, want 1m", ttl)
	}

	server.FastForward(2 * time.Minute)
	if _, found, err := cache.Get(ctx, "run:106:generation"); err != nil || found {
		t.Fatalf("Get(expired) found=%v err=%v", found, err)
	}
}

func TestRedisCacheRejectsEmptyKey(t *testing.T) {
	cache, _ := setupRedisCache(t)
	ctx := context.Background()

	if err := cache.Set(ctx, "  ", "x", 0); err == nil {
		t.Fatalf("Set(empty key) expected error")
	}
	if _, _, err := cache.Get(ctx, ""); err == nil {
		t.Fatalf("Get(empty key) expected error")
	}
}

func TestRedisCacheSurfacesServerErrors(t *testing.T) {
	cache, server := setupRedisCache(t)
	ctx := context.Background()

	server.SetError("ERR out of service")
	if _, _, err := cache.Get(ctx, "run:106:generation"); err == nil {
		t.Fatalf("Get() expected error from failing server")
	}
	if err := cache.Set(ctx, "run:106:generation", "1", 0); err == nil {
		t.Fatalf("Set() expected error from failing server")
	}
	server.SetError("")

	if _, err := NewRedisCache(ctx, RedisOptions{Addr: "127.0.0.1:1"}); err == nil {
		t.Fatalf("NewRedisCache(unreachable) expected error")
	}
}
