package entitlegin

import (
	"context"
	"regexp"
	"time"

	"github.com/PaulFidika/entitlekit/adapters/ginutil"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const RequestIDHeader = "X-Request-ID"

var reRequestID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// RequestContext tags each request with an id, a scoped logger and an optional
// deadline. Client-supplied ids are kept when they look sane.
func RequestContext(log logrus.FieldLogger, timeout time.Duration) gin.HandlerFunc {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if !reRequestID.MatchString(id) {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		ginutil.SetLogger(c, log.WithFields(logrus.Fields{
			"request_id": id,
			"route":      c.FullPath(),
		}))

		if timeout > 0 {
			ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
			defer cancel()
			c.Request = c.Request.WithContext(ctx)
		}
		start := time.Now()
		c.Next()
		ginutil.Logger(c).WithFields(logrus.Fields{
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("request handled")
	}
}
