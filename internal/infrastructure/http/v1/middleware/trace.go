package middleware

import (
	"github.com/gin-gonic/gin"

	appctx "docflow/internal/core/context"
	"docflow/internal/core/security"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"
	HeaderActorID   = "X-Actor-ID"
)

// Trace middleware adds request tracing context and the acting user.
// Extracts or generates trace IDs for distributed tracing.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		trace := appctx.NewTraceContext(c.Request.Context(), c.GetHeader(HeaderRequestID))
		if traceID := c.GetHeader(HeaderTraceID); traceID != "" {
			trace.TraceID = traceID
		}
		requestID, traceID := trace.RequestID, trace.TraceID

		ctx := appctx.WithTrace(c.Request.Context(), trace)
		if actor := c.GetHeader(HeaderActorID); actor != "" {
			ctx = security.WithActor(ctx, actor)
		}
		c.Request = c.Request.WithContext(ctx)

		c.Set("trace_id", traceID)
		c.Set("request_id", requestID)

		c.Header(HeaderRequestID, requestID)
		c.Header(HeaderTraceID, traceID)

		c.Next()
	}
}
