package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	if _, err := c.Get(ctx, "missing"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get(missing) = %v, want ErrCacheMiss", err)
	}

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := c.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Errorf("Get(k) = %q, %v", got, err)
	}

	ok, _ := c.Exists(ctx, "k")
	if !ok {
		t.Error("Exists(k) = false")
	}

	c.Delete(ctx, "k")
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get after delete = %v, want ErrCacheMiss", err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), -time.Second)

	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expired Get = %v, want ErrCacheMiss", err)
	}
	if ok, _ := c.Exists(ctx, "k"); ok {
		t.Error("expired key still exists")
	}
}

func TestMemoryCacheClearPattern(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "series:1.2:list", []byte("a"), time.Minute)
	c.Set(ctx, "series:1.2:meta", []byte("b"), time.Minute)
	c.Set(ctx, "studies:abc", []byte("c"), time.Minute)

	if err := c.Clear(ctx, "series:1.2:*"); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	if _, err := c.Get(ctx, "series:1.2:list"); !errors.Is(err, ErrCacheMiss) {
		t.Error("prefixed key survived Clear")
	}
	if _, err := c.Get(ctx, "studies:abc"); err != nil {
		t.Error("unrelated key was cleared")
	}
}

func TestKey(t *testing.T) {
	if got := Key("series", "1.2", "list"); got != "series:1.2:list" {
		t.Errorf("Key = %q", got)
	}
	if got := Key("studies", "", "abc"); got != "studies:abc" {
		t.Errorf("Key = %q", got)
	}
}
