package worker

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ReadinessDeps interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves liveness, readiness and metrics for the worker
// process. deps and gatherer may be nil.
func (s *Sweeper) HealthHandler(deps ReadinessDeps, gatherer prometheus.Gatherer) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	// liveness: process is up
	r.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// readiness: the loop is running and the store answers
	r.GET("/readyz", func(c *gin.Context) {
		if !s.Ready() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
			return
		}

		if deps != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 500*time.Millisecond)
			defer cancel()

			if err := deps.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "store_unavailable"})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return r
}
