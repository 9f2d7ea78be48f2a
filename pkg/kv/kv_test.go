package kv

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Hour)
	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Errorf("Failed to close redis client: %v", err)
		}
	})
	return mr, client
}

// exerciseClient runs the behavior every Client must share.
func exerciseClient(t *testing.T, c Client) {
	ctx := context.Background()

	if _, err := c.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	err := c.SetMany(ctx, map[string][]byte{
		"collection:a": []byte("A"),
		"collection:b": []byte("B"),
		"other":        []byte("O"),
	}, nil)
	if err != nil {
		t.Fatalf("SetMany failed: %v", err)
	}

	v, err := c.Get(ctx, "collection:a")
	if err != nil || string(v) != "A" {
		t.Fatalf("Get = %q, %v", v, err)
	}

	keys, err := c.Keys(ctx, "collection:")
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if !reflect.DeepEqual(keys, []string{"collection:a", "collection:b"}) {
		t.Errorf("Unexpected keys %v", keys)
	}

	err = c.SetMany(ctx, map[string][]byte{"collection:c": []byte("C")}, []string{"collection:a"})
	if err != nil {
		t.Fatalf("SetMany with deletes failed: %v", err)
	}
	if _, err := c.Get(ctx, "collection:a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Deleted key still present: %v", err)
	}
	keys, _ = c.Keys(ctx, "collection:")
	if !reflect.DeepEqual(keys, []string{"collection:b", "collection:c"}) {
		t.Errorf("Unexpected keys after delete %v", keys)
	}

	if err := c.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestMemoryClient(t *testing.T) {
	exerciseClient(t, NewMemory(time.Hour))
}

func TestRedisClient(t *testing.T) {
	_, c := newMiniRedis(t)
	exerciseClient(t, c)
}

func TestMemoryExpiry(t *testing.T) {
	m := NewMemory(20 * time.Millisecond)
	ctx := context.Background()
	if err := m.SetMany(ctx, map[string][]byte{"k": []byte("v")}, nil); err != nil {
		t.Fatalf("SetMany failed: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected entry to expire, got %v", err)
	}
}

func TestRedisTTLApplied(t *testing.T) {
	mr, c := newMiniRedis(t)
	ctx := context.Background()
	if err := c.SetMany(ctx, map[string][]byte{"k": []byte("v")}, nil); err != nil {
		t.Fatalf("SetMany failed: %v", err)
	}
	if ttl := mr.TTL("k"); ttl != time.Hour {
		t.Errorf("Expected 1h TTL, got %v", ttl)
	}

	mr.FastForward(2 * time.Hour)
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected key to expire, got %v", err)
	}
}

func TestNewRedisBadURL(t *testing.T) {
	if _, err := NewRedis("not a url", time.Hour); err == nil {
		t.Error("Expected an error for an invalid url")
	}
}
