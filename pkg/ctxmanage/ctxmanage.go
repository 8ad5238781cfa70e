package ctxmanage

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type key string

const TraceIdKey key = "1"

// GetTraceIdOfRequest returns the trace id stored on the request context by
// the logger middleware, generating one if the middleware did not run.
func GetTraceIdOfRequest(c *gin.Context) string {
	ctx := c.Request.Context()
	traceId, ok := ctx.Value(TraceIdKey).(string)
	if !ok {
		traceId = uuid.NewString()
	}
	return traceId
}

func WithTraceId(ctx context.Context, traceId string) context.Context {
	return context.WithValue(ctx, TraceIdKey, traceId)
}
