// Package ginutil holds the response and rate-limit helpers shared by the gin handlers.
package ginutil

import (
	"context"
	"net/http"

	"github.com/PaulFidika/entitlekit/core"
	"github.com/PaulFidika/entitlekit/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RateLimiter is satisfied by the memory and Redis limiters.
type RateLimiter interface {
	AllowNamed(ctx context.Context, bucket, key string) (bool, error)
}

// Rate-limit buckets per route.
const (
	RLActivate       = ratelimit.BucketActivate
	RLTrial          = ratelimit.BucketTrial
	RLOrderCreate    = ratelimit.BucketOrderCreate
	RLSubscribe      = ratelimit.BucketSubscribe
	RLEntitlementGet = ratelimit.BucketEntitlementGet
)

const loggerKey = "entitlekit.logger"

// SetLogger attaches a request-scoped logger to c.
func SetLogger(c *gin.Context, l logrus.FieldLogger) { c.Set(loggerKey, l) }

// Logger returns the request-scoped logger, or the standard logger.
func Logger(c *gin.Context) logrus.FieldLogger {
	if v, ok := c.Get(loggerKey); ok {
		if l, ok := v.(logrus.FieldLogger); ok {
			return l
		}
	}
	return logrus.StandardLogger()
}

// AllowNamed charges one hit against bucket for the client IP. Limiter errors
// are logged and the request is allowed.
func AllowNamed(c *gin.Context, rl RateLimiter, bucket string) bool {
	if rl == nil {
		return true
	}
	ok, err := rl.AllowNamed(c.Request.Context(), bucket, c.ClientIP())
	if err != nil {
		Logger(c).WithError(err).WithField("bucket", bucket).Warn("rate limiter unavailable")
		return true
	}
	return ok
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message, "code": code})
}

func BadRequest(c *gin.Context, code string) {
	abort(c, http.StatusBadRequest, code, "invalid request")
}

func TooMany(c *gin.Context) {
	abort(c, http.StatusTooManyRequests, "rate_limited", "too many requests")
}

func ServerErr(c *gin.Context, code string) {
	abort(c, http.StatusInternalServerError, code, "internal error")
}

// ServerErrWithLog logs err and responds 500 without echoing it.
func ServerErrWithLog(c *gin.Context, code string, err error, msg string) {
	Logger(c).WithError(err).Error(msg)
	ServerErr(c, code)
}

// Status maps a core error kind to its HTTP status.
func Status(k core.Kind) int {
	switch k {
	case core.KindValidation, core.KindPaymentUnverified, core.KindAuthenticationFailed:
		return http.StatusBadRequest
	case core.KindAbuseBlocked:
		return http.StatusForbidden
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindProvider:
		return http.StatusBadGateway
	case core.KindUnrecognizedEvent:
		return http.StatusOK
	}
	return http.StatusInternalServerError
}

// Fail writes err as a JSON error response. Server-side kinds are logged and
// answered with a generic message.
func Fail(c *gin.Context, err error) {
	k := core.KindOf(err)
	status := Status(k)
	if status >= http.StatusInternalServerError {
		Logger(c).WithError(err).WithField("kind", k.String()).Error("request failed")
	}
	abort(c, status, k.String(), core.ReasonOf(err))
}
