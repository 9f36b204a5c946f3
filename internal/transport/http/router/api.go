package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"user-account-api/internal/core/server"
	mdw "user-account-api/internal/transport/http/middleware"
)

// Options 保护性中间件参数；零值字段回落到 DefaultOptions
type Options struct {
	RPS           rate.Limit
	Burst         int
	PerIPRPS      rate.Limit
	PerIPBurst    int
	MaxConcurrent int64
	MaxBodyBytes  int64
	Timeout       time.Duration
}

func DefaultOptions() Options {
	return Options{
		RPS:           200,
		Burst:         400,
		PerIPRPS:      20,
		PerIPBurst:    40,
		MaxConcurrent: 300,
		MaxBodyBytes:  1 << 20,
		Timeout:       10 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.RPS <= 0 {
		o.RPS, o.Burst = d.RPS, d.Burst
	}
	if o.PerIPRPS <= 0 {
		o.PerIPRPS, o.PerIPBurst = d.PerIPRPS, d.PerIPBurst
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = d.MaxConcurrent
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = d.MaxBodyBytes
	}
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	return o
}

func NewAPIEngine(l *zap.Logger, opt Options, mods ...APIModule) *gin.Engine {
	opt = opt.withDefaults()
	r := server.NewRouter(l)

	// 中间件
	r.Use(
		mdw.RequestID(),
		mdw.RateLimit(opt.RPS, opt.Burst),
		mdw.RateLimitPerIP(opt.PerIPRPS, opt.PerIPBurst),
		mdw.ConcurrencyLimit(opt.MaxConcurrent),
		mdw.MaxBodyBytes(opt.MaxBodyBytes),
		mdw.Timeout(opt.Timeout),
		mdw.Metrics(),
		mdw.AccessLog(l),
	)

	// 健康检查 / 指标
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": 1}) })
	r.GET("/metrics", mdw.MetricsHandler())

	MountAllAPI(r.Group(""), mods...)
	return r
}
