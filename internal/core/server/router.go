package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	resp "user-account-api/internal/transport/http/response"
)

// NewRouter 基础 engine：panic 恢复（带堆栈日志）+ CORS
func NewRouter(l *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(ginzap.CustomRecoveryWithZap(l, true, func(c *gin.Context, _ any) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, resp.Error(resp.CodeServerError, ""))
	}))
	r.Use(cors.New(corsConfig()))
	r.HandleMethodNotAllowed = true
	return r
}

func corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowAllOrigins = true
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	cfg.ExposeHeaders = []string{"X-Request-ID"}
	return cfg
}

func StartHTTP(srv *http.Server, l *zap.Logger) error {
	l.Info("http starting", zap.String("addr", srv.Addr))
	return srv.ListenAndServe()
}

func BuildServer(addr string, handler http.Handler, rt, wt, it time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       rt,
		ReadHeaderTimeout: rt,
		WriteTimeout:      wt,
		IdleTimeout:       it,
		MaxHeaderBytes:    1 << 20, // 1MB
	}
}

func Addr(host string, port int) string { return fmt.Sprintf("%s:%d", host, port) }
