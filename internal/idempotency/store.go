// Package idempotency guards order placement against client retries using
// Redis keys that live for a day.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix     = "idem:order:create:"
	pendingPrefix = "pending:"
	keyTTL        = 24 * time.Hour
)

var ErrInProgress = errors.New("idempotency: request with this key is in progress")

// Cmdable is the subset of the Redis client used by Store.
type Cmdable interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	SetArgs(ctx context.Context, key string, value interface{}, a redis.SetArgs) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type Store struct {
	client Cmdable
}

func NewStore(client Cmdable) *Store {
	return &Store{client: client}
}

// Claim reserves key for the caller. When the key was already used for a
// completed placement it returns that order id; when another request still
// holds it, ErrInProgress.
func (s *Store) Claim(ctx context.Context, scope, key string) (claimed bool, orderID string, err error) {
	k := redisKey(scope, key)

	ok, err := s.client.SetNX(ctx, k, pendingPrefix+uuid.NewString(), keyTTL).Result()
	if err != nil {
		return false, "", fmt.Errorf("claim idempotency key: %w", err)
	}
	if ok {
		return true, "", nil
	}

	value, err := s.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET
		return s.Claim(ctx, scope, key)
	}
	if err != nil {
		return false, "", fmt.Errorf("read idempotency key: %w", err)
	}
	if strings.HasPrefix(value, pendingPrefix) {
		return false, "", ErrInProgress
	}
	return false, value, nil
}

// Complete records the order created under key, keeping its TTL.
func (s *Store) Complete(ctx context.Context, scope, key, orderID string) error {
	if err := s.client.SetArgs(ctx, redisKey(scope, key), orderID, redis.SetArgs{KeepTTL: true}).Err(); err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

// Release frees key after a failed placement so the client may retry.
func (s *Store) Release(ctx context.Context, scope, key string) error {
	if err := s.client.Del(ctx, redisKey(scope, key)).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

func redisKey(scope, key string) string {
	return keyPrefix + scope + ":" + key
}
