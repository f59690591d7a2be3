package handlers

import (
	"net/http"

	"github.com/PaulFidika/entitlekit/adapters/ginutil"
	"github.com/PaulFidika/entitlekit/core"
	"github.com/gin-gonic/gin"
)

func HandleOrderCreatePOST(svc *core.Service, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLOrderCreate) {
			ginutil.TooMany(c)
			return
		}
		var req core.CheckoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			ginutil.BadRequest(c, "invalid_request")
			return
		}
		order, err := svc.CreateOrder(c.Request.Context(), req)
		if err != nil {
			ginutil.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": order.ID, "amount": order.Amount, "currency": order.Currency})
	}
}
