package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyHeader = "Idempotency-Key"
	pendingClaim      = "pending"
	maxIdempotencyKey = 128
)

// RedisDeduper stores idempotency keys in Redis so every instance replays the
// same entity for a repeated create.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(userID, key string) string {
	return fmt.Sprintf("idempotency:%s:%s", userID, key)
}

// Claim reserves the key. When it is already held the recorded entity id is
// returned, or "" while the first request is still in flight.
func (r *RedisDeduper) Claim(ctx context.Context, userID, key string) (bool, string, error) {
	k := r.key(userID, key)
	for attempt := 0; attempt < 2; attempt++ {
		added, err := r.client.SetNX(ctx, k, pendingClaim, r.ttl).Result()
		if err != nil || added {
			return added, "", err
		}
		val, err := r.client.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			// expired between SETNX and GET
			continue
		}
		if err != nil {
			return false, "", err
		}
		if val == pendingClaim {
			return false, "", nil
		}
		return false, val, nil
	}
	return false, "", nil
}

// Complete records the entity produced under a claimed key.
func (r *RedisDeduper) Complete(ctx context.Context, userID, key, entityID string) error {
	return r.client.Set(ctx, r.key(userID, key), entityID, r.ttl).Err()
}

// Remove deletes a claim. It is used when the create fails so the caller may
// retry with the same key.
func (r *RedisDeduper) Remove(ctx context.Context, userID, key string) error {
	return r.client.Del(ctx, r.key(userID, key)).Err()
}
