// Package ops exposes the operational HTTP surface: liveness, per-target
// stats, and a manual-run trigger. It is deliberately small and unauthenticated;
// deploy it on an internal port only.
package ops

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/haunt/browser"
	"github.com/use-agent/haunt/config"
	"github.com/use-agent/haunt/metrics"
	"github.com/use-agent/haunt/models"
	"github.com/use-agent/haunt/schedule"
	"github.com/use-agent/haunt/storage"
)

// HealthResponse is the GET /healthz body.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Pool    browser.Stats `json:"pool"`
	Version string        `json:"version"`
}

// StatsResponse is the GET /stats body.
type StatsResponse struct {
	Pool    browser.Stats                    `json:"pool"`
	Targets map[string]metrics.TargetStats   `json:"targets"`
	Health  map[string]schedule.TargetHealth `json:"health"`
}

// NewRouter creates a configured Gin engine with all routes.
//
// Health endpoint reports pool utilisation and degrades status when > 80%
// of handles are active, so probes see saturation before runs start failing.
func NewRouter(pool *browser.Pool, coord *schedule.Coordinator, registry *metrics.Registry, startTime time.Time) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/healthz", func(c *gin.Context) {
		stats := pool.Stats()

		status := "healthy"
		if stats.MaxSize > 0 && stats.Active > int(float64(stats.MaxSize)*0.8) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Pool:    stats,
			Version: "0.1.0",
		})
	})

	r.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, StatsResponse{
			Pool:    pool.Stats(),
			Targets: registry.Snapshot(),
			Health:  coord.Health().Snapshot(),
		})
	})

	r.POST("/targets/:id/run", func(c *gin.Context) {
		res, err := coord.RunManual(c.Request.Context(), c.Param("id"))
		switch {
		case errors.Is(err, storage.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown target"})
		case err != nil:
			status := http.StatusBadGateway
			if models.ErrorKind(err) == models.ErrCodeConfigInvalid {
				status = http.StatusUnprocessableEntity
			}
			c.JSON(status, gin.H{"error": err.Error(), "result": res})
		case res.Status == models.RunSkipped:
			c.JSON(http.StatusTooManyRequests, gin.H{"result": res})
		default:
			c.JSON(http.StatusOK, gin.H{"result": res})
		}
	})

	return r
}

// Server wraps the HTTP listener with graceful shutdown.
type Server struct {
	srv *http.Server
}

// NewServer binds the router to the configured address.
func NewServer(cfg config.OpsConfig, handler http.Handler) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// ListenAndServe blocks until the listener fails or is shut down.
func (s *Server) ListenAndServe() error { return s.srv.ListenAndServe() }

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error { return s.srv.Shutdown(ctx) }
