// Package ratelimit holds the bucket names and limits shared by the memory
// and Redis limiters.
package ratelimit

import "time"

// Buckets used by the HTTP routes.
const (
	BucketActivate       = "entitlement_activate"
	BucketTrial          = "entitlement_trial"
	BucketOrderCreate    = "order_create"
	BucketSubscribe      = "subscription_create"
	BucketEntitlementGet = "entitlement_get"
	BucketDefault        = "default"
)

// Limit defines window and max count for a bucket.
type Limit struct {
	Limit  int
	Window time.Duration
}

// Limits maps bucket names to limits; the "default" entry covers unknown buckets.
type Limits map[string]Limit

func (l Limits) Get(bucket string) Limit {
	if v, ok := l[bucket]; ok {
		return v
	}
	if v, ok := l[BucketDefault]; ok {
		return v
	}
	return Limit{Limit: 100, Window: time.Minute}
}

// DefaultLimits is tuned for public checkout pages behind a single client IP.
func DefaultLimits() Limits {
	return Limits{
		BucketActivate:       {Limit: 20, Window: time.Minute},
		BucketTrial:          {Limit: 3, Window: time.Hour},
		BucketOrderCreate:    {Limit: 10, Window: time.Minute},
		BucketSubscribe:      {Limit: 10, Window: time.Minute},
		BucketEntitlementGet: {Limit: 120, Window: time.Minute},
		BucketDefault:        {Limit: 100, Window: time.Minute},
	}
}
