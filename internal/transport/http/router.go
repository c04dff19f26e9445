package httptransport

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"

	"foodcal-server-go/internal/platform/config"
	"foodcal-server-go/internal/platform/errors"
	"foodcal-server-go/internal/platform/logging"
	"foodcal-server-go/internal/platform/observability"
)

// Options configures the HTTP router builder.
type Options struct {
	Config  *config.Config
	Logger  *logging.Logger
	Metrics *observability.Metrics
}

// Router bundles together the gin engine and the route group services register on.
type Router struct {
	Engine *gin.Engine
	Root   *gin.RouterGroup
}

// Build constructs a gin engine pre-configured with the common middlewares, CORS and the metrics endpoint.
func Build(opts Options) (*Router, error) {
	if opts.Config == nil {
		return nil, errors.New(errors.KindConfig, "http.build", "http router requires config")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	if strings.EqualFold(opts.Config.Log.Level, "debug") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(requestIDMiddleware())
	engine.Use(loggingMiddleware(logger))
	engine.Use(observabilityMiddleware(opts.Metrics))
	// 放在最内层，panic 转成 500 后日志和指标仍能记录
	engine.Use(recoveryMiddleware(logger, opts.Metrics))

	if err := engine.SetTrustedProxies(nil); err != nil {
		return nil, errors.Wrap(errors.KindTransport, "http.build", "failed to set trusted proxies", err)
	}

	engine.Use(cors.New(corsConfig(opts.Config.Web.CORSOrigins)))

	if dir := opts.Config.Web.StaticDir; dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			engine.Use(static.Serve("/", static.LocalFile(dir, true)))
			logger.InfoTag("HTTP", "静态页面目录: %s", dir)
		} else {
			logger.WarnTag("HTTP", "静态页面目录不可用，已跳过: %s", dir)
		}
	}

	if opts.Metrics != nil && opts.Config.Metrics.Enabled {
		engine.GET(opts.Config.Metrics.Path, gin.WrapH(opts.Metrics.Handler()))
	}

	engine.NoRoute(func(c *gin.Context) {
		RespondError(c, http.StatusNotFound, "Not found", gin.H{"path": c.Request.URL.Path})
	})

	return &Router{
		Engine: engine,
		Root:   engine.Group("/"),
	}, nil
}

// 开放跨域策略：任意来源、方法和请求头
func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:  []string{"*"},
		ExposeHeaders: []string{"Content-Length", RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}

func loggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		status := c.Writer.Status()

		logger.Info(
			"[HTTP] %s %s -> %d (%s) request_id=%s",
			c.Request.Method,
			c.Request.URL.Path,
			status,
			duration,
			observability.RequestID(c.Request.Context()),
		)
	}
}

func observabilityMiddleware(metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		reqCtx, spanEnd := observability.StartSpan(c.Request.Context(), "http.server", path)
		c.Request = c.Request.WithContext(reqCtx)

		if metrics != nil {
			metrics.HTTPInFlight.Inc()
			defer metrics.HTTPInFlight.Dec()
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		var spanErr error
		if len(c.Errors) > 0 {
			spanErr = c.Errors.Last().Err
		} else if status := c.Writer.Status(); status >= http.StatusInternalServerError {
			spanErr = fmt.Errorf("status %d", status)
		}
		spanEnd(spanErr)

		if metrics != nil {
			metrics.ObserveHTTP(c.Request.Method, path, c.Writer.Status(), duration)
		}
	}
}
