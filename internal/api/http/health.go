package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kanbang/xdesktop/internal/domain/vfs"
	"github.com/kanbang/xdesktop/internal/infrastructure/monitoring"
)

// Version is reported by the root and health endpoints.
const Version = "1.0.0"

// StatusHandlers serves the operational endpoints.
type StatusHandlers struct {
	registry *vfs.Registry
	metrics  *monitoring.Metrics
}

// NewStatusHandlers creates the operational handlers.
func NewStatusHandlers(registry *vfs.Registry, metrics *monitoring.Metrics) *StatusHandlers {
	return &StatusHandlers{registry: registry, metrics: metrics}
}

// Root handles liveness checks.
func (h *StatusHandlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "Virtual File Service",
		"version": Version,
	})
}

// Health reports registry and request statistics.
func (h *StatusHandlers) Health(c *gin.Context) {
	body := gin.H{
		"status":            "healthy",
		"version":           Version,
		"adapters":          h.registry.Keys(),
		"principals_cached": h.registry.Len(),
	}
	if h.metrics != nil {
		body["metrics"] = h.metrics.Snapshot()
	}
	c.JSON(http.StatusOK, body)
}
