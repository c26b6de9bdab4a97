package cache_test

import (
	"context"
	"testing"

	"github.com/efroese/sparsemapcontent/cache"
	"github.com/efroese/sparsemapcontent/memory"
	"github.com/efroese/sparsemapcontent/store"
)

func TestCacheBoundedByCapacity(t *testing.T) {
	c := cache.New(2)
	c.Put("a", store.Properties{"v": "1"})
	c.Put("b", store.Properties{"v": "2"})
	c.Put("c", store.Properties{"v": "3"})

	if c.Len() != 2 {
		t.Errorf("expected 2 entries after eviction, got %d", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Error("expected the oldest entry to be evicted")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("expected the newest entry to survive")
	}
}

func TestCacheCopiesValues(t *testing.T) {
	c := cache.New(0)
	c.Put("k", store.Properties{"tags": []string{"a"}})

	got, ok := c.Get("k")
	if !ok {
		t.Fatal("expected a hit")
	}
	got["tags"].([]string)[0] = "mutated"

	again, _ := c.Get("k")
	if again["tags"].([]string)[0] != "a" {
		t.Error("expected cached value to be isolated from callers")
	}
}

func TestCachedStoreGetPopulatesOnMiss(t *testing.T) {
	ctx := context.Background()
	client, err := memory.New().GetClient(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := client.Insert(ctx, "n", "au", "u1", store.Properties{"name": "One"}, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cs := cache.CachedStore{Client: client, Cache: cache.New(0)}
	props, err := cs.Get(ctx, "n", "au", "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if props["name"] != "One" {
		t.Errorf("expected name One, got %v", props["name"])
	}
	if cs.Cache.Len() != 1 {
		t.Errorf("expected the miss to populate the cache, got %d entries", cs.Cache.Len())
	}
}

func TestCachedStoreDoesNotCacheAbsentRows(t *testing.T) {
	ctx := context.Background()
	client, err := memory.New().GetClient(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cs := cache.CachedStore{Client: client, Cache: cache.New(0)}

	props, err := cs.Get(ctx, "n", "au", "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(props) != 0 {
		t.Errorf("expected empty map, got %v", props)
	}
	if cs.Cache.Len() != 0 {
		t.Error("expected absent rows not to be cached")
	}
}

func TestCachedStorePutCachesPostWriteState(t *testing.T) {
	ctx := context.Background()
	client, err := memory.New().GetClient(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cs := cache.CachedStore{Client: client, Cache: cache.New(0)}

	if err := cs.Put(ctx, "n", "au", "u1", store.Properties{"a": "1", "b": "2"}, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := cs.Put(ctx, "n", "au", "u1", store.Properties{"a": store.RemoveProperty}, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	props, err := cs.Get(ctx, "n", "au", "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := props["a"]; ok {
		t.Error("expected the sentinel never to leak into the cached value")
	}
	if store.IsRemove(props["a"]) {
		t.Error("expected no sentinel in the cached value")
	}
	if props["b"] != "2" {
		t.Errorf("expected b=2, got %v", props["b"])
	}
}

func TestCachedStoreEvict(t *testing.T) {
	ctx := context.Background()
	client, err := memory.New().GetClient(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cs := cache.CachedStore{Client: client, Cache: cache.New(0)}

	if err := cs.Put(ctx, "n", "au", "u1", store.Properties{"a": "1"}, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cs.Evict("n", "au", "u1")
	if cs.Cache.Len() != 0 {
		t.Errorf("expected cache emptied, got %d entries", cs.Cache.Len())
	}
}

func TestSharedCacheVisibleAcrossStores(t *testing.T) {
	ctx := context.Background()
	pool := memory.New()
	c1, _ := pool.GetClient(ctx)
	c2, _ := pool.GetClient(ctx)

	shared := cache.New(0)
	writer := cache.CachedStore{Client: c1, Cache: shared}
	reader := cache.CachedStore{Client: c2, Cache: shared}

	if err := writer.Put(ctx, "n", "au", "u1", store.Properties{"name": "One"}, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	props, err := reader.Get(ctx, "n", "au", "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if props["name"] != "One" {
		t.Errorf("expected the write to be visible through the shared cache, got %v", props)
	}
}
