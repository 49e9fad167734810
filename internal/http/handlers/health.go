package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is any dependency readiness waits on.
type Pinger func(ctx context.Context) error

type HealthHandler struct {
	deps    map[string]Pinger
	timeout time.Duration
}

// NewHealthHandler takes named dependencies; nil entries are skipped.
func NewHealthHandler(deps map[string]Pinger) *HealthHandler {
	return &HealthHandler{deps: deps, timeout: time.Second}
}

func (h *HealthHandler) Healthz(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HealthHandler) Readyz(ctx *gin.Context) {
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	failed := gin.H{}
	for name, ping := range h.deps {
		if ping == nil {
			continue
		}
		if err := ping(cctx); err != nil {
			failed[name] = "unavailable"
		}
	}

	if len(failed) > 0 {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "deps": failed})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"status": "ready"})
}
