package queuesvc

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trezcool/bitacora/core"
)

// NewRedisClient returns nil when no address is configured.
func NewRedisClient(conf core.RedisConfig) *redis.Client {
	if conf.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})
}

// RedisDeduper remembers message keys with SETNX for `ttl`.
// When redis is unavailable every message is let through.
type RedisDeduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger core.Logger
}

var _ Deduper = (*RedisDeduper)(nil)

func NewRedisDeduper(rdb *redis.Client, ttl time.Duration, logger core.Logger) *RedisDeduper {
	return &RedisDeduper{rdb: rdb, ttl: ttl, logger: logger}
}

func (d *RedisDeduper) AcquireOnce(ctx context.Context, key string) bool {
	ok, err := d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		d.logger.Warn(fmt.Sprintf("queuesvc.AcquireOnce: %v", err), err, map[string]interface{}{"key": key})
		return true
	}
	return ok
}

func (d *RedisDeduper) Release(ctx context.Context, key string) {
	if err := d.rdb.Del(ctx, key).Err(); err != nil {
		d.logger.Warn(fmt.Sprintf("queuesvc.Release: %v", err), err, map[string]interface{}{"key": key})
	}
}
