package redislimiter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/PaulFidika/entitlekit/ratelimit"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Limiter is a Redis-backed sliding window limiter using one ZSET per bucket key.
// It is shared by every replica behind the same Redis.
type Limiter struct {
	rdb    redis.Cmdable
	limits ratelimit.Limits
	prefix string
	now    func() time.Time
}

func New(rdb redis.Cmdable, limits ratelimit.Limits) *Limiter {
	if limits == nil {
		limits = ratelimit.DefaultLimits()
	}
	return &Limiter{rdb: rdb, limits: limits, prefix: "entitlekit:rl:", now: time.Now}
}

// AllowNamed records one hit for key in bucket and reports whether it is
// within the bucket's limit. Denied hits are removed again.
func (l *Limiter) AllowNamed(ctx context.Context, bucket, key string) (bool, error) {
	if l == nil || l.rdb == nil {
		return true, nil
	}
	if bucket == "" || key == "" {
		return false, fmt.Errorf("bucket and key required")
	}
	lim := l.limits.Get(bucket)
	now := l.now().UnixMilli()
	start := now - lim.Window.Milliseconds()
	zkey := l.prefix + bucket + ":" + key
	member := strconv.FormatInt(now, 10) + "-" + uuid.NewString()

	pipe := l.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, zkey, "-inf", strconv.FormatInt(start, 10))
	pipe.ZAdd(ctx, zkey, redis.Z{Score: float64(now), Member: member})
	count := pipe.ZCard(ctx, zkey)
	pipe.PExpire(ctx, zkey, lim.Window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit %s: %w", bucket, err)
	}
	if count.Val() > int64(lim.Limit) {
		if err := l.rdb.ZRem(ctx, zkey, member).Err(); err != nil {
			return false, fmt.Errorf("rate limit %s: %w", bucket, err)
		}
		return false, nil
	}
	return true, nil
}
