package ctxmanage

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type key string

const TraceIDKey key = "trace_id"

// WithTraceID stores the trace id of the request in the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceIdOfRequest returns the trace id set by the logging middleware,
// minting a fresh one if the middleware did not run.
func GetTraceIdOfRequest(c *gin.Context) string {
	traceID, ok := c.Request.Context().Value(TraceIDKey).(string)
	if !ok || traceID == "" {
		return uuid.NewString()
	}
	return traceID
}
