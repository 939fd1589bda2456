package middleware

import (
	"github.com/gin-gonic/gin"

	"fable/internal/pkg/id"
)

// RequestIDHeader 请求ID响应头
const RequestIDHeader = "X-Request-ID"

// RequestID 请求ID中间件
// 透传客户端带来的请求ID，否则生成新的；写入 gin context 供日志中间件使用
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = id.New()
		}

		c.Set("request_id", requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()
	}
}
