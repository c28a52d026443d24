// Package httpapi wires the operational HTTP surface (Gin): a health
// endpoint for orchestration probes and the Prometheus scrape endpoint.
// All dependencies are injected; middleware ordering is
// tracing → correlation → logging → recovery → metrics.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-hadith-bot/internal/config"
	"github.com/tbourn/go-hadith-bot/internal/http/middleware"
)

// RegisterRoutes attaches middleware and the operational endpoints to the
// given Gin engine.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) {
	start := time.Now()

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.Metrics())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		status := http.StatusOK
		dbState := "ok"
		if sqlDB, err := db.DB(); err != nil {
			status, dbState = http.StatusServiceUnavailable, "unreachable"
		} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
			status, dbState = http.StatusServiceUnavailable, "unreachable"
		}
		c.JSON(status, gin.H{
			"status":   dbState,
			"uptime_s": int64(time.Since(start).Seconds()),
		})
	})
}

// NewServer builds the http.Server around a fresh engine with the
// configured timeouts.
func NewServer(db *gorm.DB, cfg config.Config) *http.Server {
	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	RegisterRoutes(engine, db, cfg)

	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}
