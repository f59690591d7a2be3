package memorylimiter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PaulFidika/entitlekit/ratelimit"
)

// Limiter is an in-memory sliding-window rate limiter for single-node runs.
type Limiter struct {
	mu     sync.Mutex
	limits ratelimit.Limits
	// hits holds request times in Unix ms per bucket key, newest last.
	hits map[string][]int64
	now  func() time.Time
	// lastSweep is when idle keys were last dropped, in Unix ms.
	lastSweep int64
}

// sweepEvery bounds how often AllowNamed walks the whole map for idle keys.
const sweepEvery = time.Minute

func New(limits ratelimit.Limits) *Limiter {
	if limits == nil {
		limits = ratelimit.DefaultLimits()
	}
	return &Limiter{limits: limits, hits: make(map[string][]int64), now: time.Now}
}

// AllowNamed records one hit for key in bucket and reports whether it is
// within the bucket's limit. Denied hits are not recorded.
func (l *Limiter) AllowNamed(ctx context.Context, bucket, key string) (bool, error) {
	if l == nil {
		return true, nil
	}
	if bucket == "" || key == "" {
		return false, fmt.Errorf("bucket and key required")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	lim := l.limits.Get(bucket)
	nowMs := l.now().UnixMilli()
	windowStart := nowMs - lim.Window.Milliseconds()
	k := bucket + ":" + key

	l.mu.Lock()
	defer l.mu.Unlock()

	if nowMs-l.lastSweep >= sweepEvery.Milliseconds() {
		l.pruneLocked(nowMs)
		l.lastSweep = nowMs
	}

	ts := l.hits[k]
	i := 0
	for i < len(ts) && ts[i] <= windowStart {
		i++
	}
	ts = ts[i:]
	if len(ts) >= lim.Limit {
		// Deny without recording this attempt.
		if len(ts) == 0 {
			delete(l.hits, k)
		} else {
			l.hits[k] = ts
		}
		return false, nil
	}
	l.hits[k] = append(ts, nowMs)
	return true, nil
}

// Prune drops keys with no hits inside their window. AllowNamed also does
// this on its own at most once per sweepEvery.
func (l *Limiter) Prune() {
	nowMs := l.now().UnixMilli()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(nowMs)
	l.lastSweep = nowMs
}

func (l *Limiter) pruneLocked(nowMs int64) {
	for k, ts := range l.hits {
		bucket, _, _ := strings.Cut(k, ":")
		if len(ts) == 0 || ts[len(ts)-1] <= nowMs-l.limits.Get(bucket).Window.Milliseconds() {
			delete(l.hits, k)
		}
	}
}
