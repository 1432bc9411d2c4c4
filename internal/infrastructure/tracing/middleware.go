package tracing

import (
	"github.com/gin-gonic/gin"

	"github.com/kanbang/xdesktop/internal/infrastructure/logging"
	"github.com/kanbang/xdesktop/internal/shared/id"
)

// HTTPMiddleware assigns every request an ID, echoes it in the response and
// submits an access span once the handler returns. An inbound X-Request-ID
// is honored only when it is a well-formed request ID.
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if inbound := c.GetHeader(HeaderRequestID); id.IsRequestID(inbound) {
			ctx = WithRequestID(ctx, id.RequestID(inbound))
		}

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		span, ctx := tracer.StartSpan(ctx, route)
		span.SetTag("method", c.Request.Method)
		span.SetTag(logging.KeyOperation, c.Query("q"))
		span.SetTag("client_ip", c.ClientIP())

		c.Request = c.Request.WithContext(ctx)
		c.Header(HeaderRequestID, span.RequestID.String())

		c.Next()

		span.SetStatus(c.Writer.Status())
		if len(c.Errors) > 0 {
			span.SetError(c.Errors.Last())
		}
		span.Finish()
		tracer.Submit(span)
	}
}
