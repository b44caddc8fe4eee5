package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type cachedThing struct {
	ID string `json:"id"`
}

// An unreachable Redis must degrade to cache misses, never to errors.
func TestViewCacheDegradesWhenRedisIsDown(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	cache := NewViewCache[cachedThing](client, "thing:", time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	cache.Set(ctx, "1", &cachedThing{ID: "1"})
	if v, ok := cache.Get(ctx, "1"); ok || v != nil {
		t.Fatalf("expected miss, got %+v", v)
	}
	cache.Delete(ctx, "1", "2")
	cache.Delete(ctx)
}
