package handlers

import (
	"net/http"

	"github.com/PaulFidika/entitlekit/adapters/ginutil"
	"github.com/PaulFidika/entitlekit/core"
	"github.com/PaulFidika/entitlekit/entitlements"
	"github.com/gin-gonic/gin"
)

func HandleActivatePOST(svc *core.Service, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLActivate) {
			ginutil.TooMany(c)
			return
		}
		var req core.ActivationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			ginutil.BadRequest(c, "invalid_request")
			return
		}
		// Trials get a tighter per-IP budget on top of the route limit.
		if p, ok := entitlements.ParsePlan(req.PlanID); ok && p.IsTrial() && !ginutil.AllowNamed(c, rl, ginutil.RLTrial) {
			ginutil.TooMany(c)
			return
		}

		rec, err := svc.Activate(c.Request.Context(), req)
		if err != nil {
			ginutil.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"planId":  rec.PlanID,
			"status":  rec.Status,
			"endDate": rec.EndDate,
		})
	}
}
