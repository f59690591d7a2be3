package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/PaulFidika/entitlekit/adapters/ginutil"
	"github.com/PaulFidika/entitlekit/core"
	"github.com/PaulFidika/entitlekit/metrics"
	"github.com/PaulFidika/entitlekit/webhook"
	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

// HandleRazorpayWebhookPOST acknowledges every authenticated delivery with 200,
// including ones it ignores, so the provider does not retry them. Forged
// deliveries get 400 and internal failures 500.
func HandleRazorpayWebhookPOST(svc *core.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		eventType := "unknown"
		status := http.StatusOK
		defer func() {
			metrics.WebhookRequestsTotal.WithLabelValues(eventType, strconv.Itoa(status)).Inc()
			metrics.WebhookDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		}()

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
		body, err := c.GetRawData()
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				status = http.StatusRequestEntityTooLarge
				c.AbortWithStatusJSON(status, gin.H{"error": "payload too large", "code": "payload_too_large"})
				return
			}
			status = http.StatusBadRequest
			ginutil.BadRequest(c, "invalid_body")
			return
		}

		out, err := svc.HandleWebhook(c.Request.Context(), body, c.GetHeader(webhook.SignatureHeader))
		if out.EventType != "" {
			eventType = out.EventType
		}
		if err != nil {
			status = ginutil.Status(core.KindOf(err))
			if core.KindOf(err) == core.KindAuthenticationFailed {
				ginutil.Logger(c).Warn("webhook signature rejected")
			}
			ginutil.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "applied": out.Applied})
	}
}
