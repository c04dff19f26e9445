package httptransport

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"foodcal-server-go/internal/platform/logging"
	"foodcal-server-go/internal/platform/observability"
)

// RequestIDHeader 请求追踪头
const RequestIDHeader = "X-Request-Id"

// requestIDMiddleware 复用客户端传入的合法 UUID，否则生成新的请求 ID
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || uuid.Validate(id) != nil {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(observability.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func recoveryMiddleware(logger *logging.Logger, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				if metrics != nil {
					metrics.PanicRecoveries.Inc()
				}
				logger.ErrorTag("HTTP", "请求处理 panic: %v request_id=%s\n%s",
					r, observability.RequestID(c.Request.Context()), debug.Stack())
				RespondError(c, http.StatusInternalServerError, "internal server error", nil)
				c.Abort()
			}
		}()
		c.Next()
	}
}
