// Package cache implements the TTL-keyed secret store on top of go-redis.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oksasatya/go-credential-service/internal/domain/apperror"
)

type commands interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// EphemeralStore stores short-lived strings under "{namespace}:{key}".
// Every write carries a TTL.
type EphemeralStore struct {
	rdb        commands
	namespace  string
	defaultTTL time.Duration
}

func NewEphemeralStore(rdb commands, defaultTTL time.Duration) *EphemeralStore {
	return &EphemeralStore{rdb: rdb, defaultTTL: defaultTTL}
}

// Namespace returns a view of the store whose keys live under prefix.
func (s *EphemeralStore) Namespace(prefix string) *EphemeralStore {
	ns := prefix
	if s.namespace != "" {
		ns = s.namespace + ":" + prefix
	}
	return &EphemeralStore{rdb: s.rdb, namespace: ns, defaultTTL: s.defaultTTL}
}

func (s *EphemeralStore) key(k string) string {
	if s.namespace == "" {
		return k
	}
	return s.namespace + ":" + k
}

// Set writes value with ttl. A non-positive ttl uses the store default.
func (s *EphemeralStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if err := s.rdb.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return apperror.Cache("cache.set", err)
	}
	return nil
}

// Get returns the value and whether it exists. Expired and never-set keys
// look the same.
func (s *EphemeralStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperror.Cache("cache.get", err)
	}
	return v, true, nil
}

func (s *EphemeralStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		return apperror.Cache("cache.delete", err)
	}
	return nil
}
