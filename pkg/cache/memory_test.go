package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStore_SetAndGet(t *testing.T) {
	store := NewMemoryStore(8, 0)
	ctx := context.Background()
	key := CacheKey{Endpoint: "/v1/archive"}

	if _, err := store.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Get on empty store = %v, want ErrCacheMiss", err)
	}

	if err := store.Set(ctx, key, NewEntry([]byte(`{"ok":true}`), 200, 0)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	entry, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(entry.Data) != `{"ok":true}` {
		t.Errorf("Data = %s", entry.Data)
	}
}

func TestMemoryStore_ExpiredEntryNotStored(t *testing.T) {
	store := NewMemoryStore(8, 0)
	ctx := context.Background()
	key := CacheKey{Endpoint: "/stale"}

	entry := &CacheEntry{Data: []byte("x"), Expires: time.Now().Add(-time.Minute)}
	if err := store.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d, want 0", store.Len())
	}
}

func TestMemoryStore_Eviction(t *testing.T) {
	store := NewMemoryStore(2, 0)
	ctx := context.Background()

	for _, p := range []string{"/a", "/b", "/c"} {
		if err := store.Set(ctx, CacheKey{Endpoint: p}, NewEntry([]byte(p), 200, 0)); err != nil {
			t.Fatalf("Set(%s) failed: %v", p, err)
		}
	}

	if _, err := store.Get(ctx, CacheKey{Endpoint: "/a"}); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("oldest entry should be evicted, got %v", err)
	}
	if _, err := store.Get(ctx, CacheKey{Endpoint: "/c"}); err != nil {
		t.Errorf("newest entry missing: %v", err)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore(0, 0)
	ctx := context.Background()
	key := CacheKey{Endpoint: "/gone"}

	_ = store.Set(ctx, key, NewEntry([]byte("x"), 200, 0))
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get after Delete = %v, want ErrCacheMiss", err)
	}
}

func TestMemoryStore_NilEntry(t *testing.T) {
	store := NewMemoryStore(1, 0)
	if err := store.Set(context.Background(), CacheKey{}, nil); err == nil {
		t.Error("Set with nil entry should return error")
	}
}
