// Package entitlegin mounts the entitlement HTTP API on a gin router.
package entitlegin

import (
	"net/http"
	"time"

	"github.com/PaulFidika/entitlekit/adapters/gin/handlers"
	"github.com/PaulFidika/entitlekit/adapters/ginutil"
	"github.com/PaulFidika/entitlekit/core"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Options struct {
	Service *core.Service
	// Limiter may be nil to disable rate limiting.
	Limiter        ginutil.RateLimiter
	Logger         logrus.FieldLogger
	RequestTimeout time.Duration
	// Metrics is served on GET /metrics when set.
	Metrics http.Handler
}

// Register mounts the API routes on r.
func Register(r gin.IRouter, o Options) {
	v1 := r.Group("/v1")
	v1.POST("/entitlements/activate", handlers.HandleActivatePOST(o.Service, o.Limiter))
	v1.GET("/entitlements/:key", handlers.HandleEntitlementGET(o.Service, o.Limiter))
	v1.POST("/orders", handlers.HandleOrderCreatePOST(o.Service, o.Limiter))
	v1.POST("/subscriptions", handlers.HandleSubscriptionCreatePOST(o.Service, o.Limiter))
	// Webhooks are not rate limited; the provider retries on 429.
	v1.POST("/webhooks/razorpay", handlers.HandleRazorpayWebhookPOST(o.Service))
}

// NewEngine builds a gin engine with recovery, request context, health,
// metrics and the API routes.
func NewEngine(o Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestContext(o.Logger, o.RequestTimeout))
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	if o.Metrics != nil {
		r.GET("/metrics", gin.WrapH(o.Metrics))
	}
	Register(r, o)
	return r
}
