package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	resp "user-account-api/internal/transport/http/response"
)

// MaxBodyBytes 限制请求体大小；Content-Length 已超限的直接 413，
// 其余由 MaxBytesReader 在读取时截断（ez 绑定时映射成 413）
func MaxBodyBytes(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > n {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, resp.Error(resp.CodeTooLarge, "request body too large"))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}
