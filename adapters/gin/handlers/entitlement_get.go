package handlers

import (
	"net/http"
	"time"

	"github.com/PaulFidika/entitlekit/adapters/ginutil"
	"github.com/PaulFidika/entitlekit/core"
	"github.com/PaulFidika/entitlekit/entitlements"
	"github.com/gin-gonic/gin"
)

// HandleEntitlementGET reports access state without identity fields.
func HandleEntitlementGET(svc *core.Service, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLEntitlementGet) {
			ginutil.TooMany(c)
			return
		}
		rec, err := svc.Entitlement(c.Request.Context(), c.Param("key"))
		if err != nil {
			ginutil.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"planId":  rec.PlanID,
			"status":  rec.Status,
			"state":   entitlements.StateOf(&rec),
			"endDate": rec.EndDate,
			"active":  rec.Active(time.Now()),
		})
	}
}
