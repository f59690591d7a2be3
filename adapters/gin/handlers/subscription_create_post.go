package handlers

import (
	"net/http"

	"github.com/PaulFidika/entitlekit/adapters/ginutil"
	"github.com/PaulFidika/entitlekit/core"
	"github.com/gin-gonic/gin"
)

func HandleSubscriptionCreatePOST(svc *core.Service, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLSubscribe) {
			ginutil.TooMany(c)
			return
		}
		var req core.CheckoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			ginutil.BadRequest(c, "invalid_request")
			return
		}
		sub, err := svc.CreateSubscription(c.Request.Context(), req)
		if err != nil {
			ginutil.Fail(c, err)
			return
		}
		resp := gin.H{"id": sub.ID, "status": sub.Status}
		if sub.ShortURL != "" {
			resp["shortUrl"] = sub.ShortURL
		}
		c.JSON(http.StatusOK, resp)
	}
}
