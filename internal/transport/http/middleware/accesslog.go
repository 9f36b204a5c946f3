package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func AccessLog(l *zap.Logger) gin.HandlerFunc {
	// 敏感字段 key（query/form/body 中统一按 key）
	sensitiveKeys := map[string]struct{}{
		"password": {}, "pwd": {}, "token": {}, "authorization": {},
		"secret": {}, "client_secret": {}, "access_token": {},
	}
	skip := map[string]struct{}{"/health": {}, "/metrics": {}}

	mask := func(kv map[string][]string) map[string][]string {
		out := map[string][]string{}
		for k, v := range kv {
			lk := strings.ToLower(k)
			if _, ok := sensitiveKeys[lk]; ok {
				out[k] = []string{"****"}
			} else {
				out[k] = v
			}
		}
		return out
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if _, ok := skip[c.FullPath()]; ok {
			return
		}
		q := mask(c.Request.URL.Query())
		// 打印摘要：method/path/status/latency/ip/ua/query/size
		status := c.Writer.Status()
		log := l.Info
		if status >= 500 {
			log = l.Warn
		}
		log("HTTP",
			zap.String("rid", c.GetString(KeyRequestID)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
			zap.String("ua", c.Request.UserAgent()),
			zap.Any("query", q),
			zap.Int("size", max(0, c.Writer.Size())),
		)
	}
}
