package api

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestDeduper(t *testing.T, ttl time.Duration) (*RedisDeduper, *miniredis.Miniredis) {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() {
		if cerr := client.Close(); cerr != nil {
			t.Logf("redis close: %v", cerr)
		}
	})
	return NewRedisDeduper(client, ttl), m
}

func TestRedisDeduperClaimLifecycle(t *testing.T) {
	deduper, _ := newTestDeduper(t, time.Minute)
	ctx := context.Background()

	claimed, existing, err := deduper.Claim(ctx, "user", "k1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !claimed || existing != "" {
		t.Fatalf("expected fresh claim, got claimed=%v existing=%q", claimed, existing)
	}

	claimed, existing, err = deduper.Claim(ctx, "user", "k1")
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if claimed || existing != "" {
		t.Fatalf("expected pending claim, got claimed=%v existing=%q", claimed, existing)
	}

	if err := deduper.Complete(ctx, "user", "k1", "board-1"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	claimed, existing, err = deduper.Claim(ctx, "user", "k1")
	if err != nil {
		t.Fatalf("third claim: %v", err)
	}
	if claimed || existing != "board-1" {
		t.Fatalf("expected recorded entity, got claimed=%v existing=%q", claimed, existing)
	}
}

func TestRedisDeduperRemoveReleasesClaim(t *testing.T) {
	deduper, _ := newTestDeduper(t, time.Minute)
	ctx := context.Background()

	if _, _, err := deduper.Claim(ctx, "user", "k1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := deduper.Remove(ctx, "user", "k1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	claimed, _, err := deduper.Claim(ctx, "user", "k1")
	if err != nil {
		t.Fatalf("claim after remove: %v", err)
	}
	if !claimed {
		t.Fatalf("expected key to be claimable after remove")
	}
}

func TestRedisDeduperKeyNamespacing(t *testing.T) {
	deduper, m := newTestDeduper(t, time.Minute)
	ctx := context.Background()

	if _, _, err := deduper.Claim(ctx, "alice", "k1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !m.Exists("idempotency:alice:k1") {
		t.Fatalf("expected namespaced redis key to exist")
	}

	claimed, _, err := deduper.Claim(ctx, "bob", "k1")
	if err != nil {
		t.Fatalf("claim for other user: %v", err)
	}
	if !claimed {
		t.Fatalf("expected keys to be scoped per user")
	}
}

func TestRedisDeduperClaimExpires(t *testing.T) {
	deduper, m := newTestDeduper(t, time.Minute)
	ctx := context.Background()

	if _, _, err := deduper.Claim(ctx, "user", "k1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := deduper.Complete(ctx, "user", "k1", "card-1"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if ttl := m.TTL("idempotency:user:k1"); ttl != time.Minute {
		t.Fatalf("expected ttl to be refreshed on complete, got %v", ttl)
	}

	m.FastForward(2 * time.Minute)
	claimed, _, err := deduper.Claim(ctx, "user", "k1")
	if err != nil {
		t.Fatalf("claim after expiry: %v", err)
	}
	if !claimed {
		t.Fatalf("expected expired key to be claimable")
	}
}
