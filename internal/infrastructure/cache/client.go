package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

type ClientConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// NewClient connects to redis and verifies the connection with PING.
func NewClient(ctx context.Context, cfg ClientConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, oops.Code("REDIS_PING_FAILED").With("addr", cfg.Addr).Wrap(err)
	}
	return rdb, nil
}
