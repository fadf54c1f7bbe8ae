package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func TestVersionKey(t *testing.T) {
	id := uuid.MustParse("0b7d2f4e-8c1a-4f7e-9a55-3e0c2d1b6a90")
	if got := versionKey(id); got != "avail:ver:0b7d2f4e-8c1a-4f7e-9a55-3e0c2d1b6a90" {
		t.Errorf("unexpected key %q", got)
	}
}

func TestAvailabilityCache_UnreachableServerReturnsErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	cache := NewAvailabilityCache(client, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := cache.Version(ctx, uuid.New()); err == nil {
		t.Error("expected version lookup to fail")
	}
	if _, _, err := cache.Get(ctx, "avail:x"); err == nil {
		t.Error("expected get to fail")
	}
	if err := cache.Set(ctx, "avail:x", []byte("{}")); err == nil {
		t.Error("expected set to fail")
	}
	if err := cache.Bump(ctx, uuid.New()); err == nil {
		t.Error("expected bump to fail")
	}
}
