package handler

import (
	"net/http"
	"time"

	"nfcunha/vigil/core/service"
	"nfcunha/vigil/utils/config"

	"github.com/gin-gonic/gin"
)

// SystemHandler serves host telemetry, host info and security views.
type SystemHandler struct {
	sampler service.SnapshotSampler
	system  *service.SystemService
	cfg     *config.Config
}

// NewSystemHandler creates a new system handler.
func NewSystemHandler(sampler service.SnapshotSampler, system *service.SystemService, cfg *config.Config) *SystemHandler {
	return &SystemHandler{
		sampler: sampler,
		system:  system,
		cfg:     cfg,
	}
}

// Health handles GET /api/health
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"time":    time.Now().UTC(),
		"version": h.cfg.Server.Version,
	})
}

// Stats handles GET /api/system/stats
// Returns a fresh snapshot, or 503 when no metric source could be read.
func (h *SystemHandler) Stats(c *gin.Context) {
	snap, err := h.sampler.Sample(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Info handles GET /api/system/info
func (h *SystemHandler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, h.system.Info(c.Request.Context()))
}

// Connections handles GET /api/security/connections
func (h *SystemHandler) Connections(c *gin.Context) {
	c.JSON(http.StatusOK, h.system.Connections())
}

// ClientConfig handles GET /api/client/config
// Tells dashboards how often to poll and whether push is available.
func (h *SystemHandler) ClientConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"refresh_interval_ms":   h.cfg.Telemetry.RefreshInterval.Milliseconds(),
		"broadcast_interval_ms": h.cfg.Telemetry.BroadcastInterval.Milliseconds(),
		"push_enabled":          h.cfg.Features.Push,
		"history_length":        h.cfg.Telemetry.HistoryLength,
		"features": gin.H{
			"workloads": h.cfg.Features.Workloads,
			"logs":      h.cfg.Features.Logs,
			"metrics":   h.cfg.Features.Metrics,
		},
	})
}
