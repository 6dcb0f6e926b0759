package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pawtograder/office-hours/internal/service"
	"github.com/pawtograder/office-hours/internal/tablecache"
)

// Pinger is a dependency checked by the readiness probe.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type storeStatus interface {
	Status() tablecache.ConnectionStatus
}

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics *service.MetricsService
	db      Pinger
	store   storeStatus
}

// NewMetricsHandler constructs a metrics handler. db and store may be nil.
func NewMetricsHandler(metrics *service.MetricsService, db Pinger, store storeStatus) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, db: db, store: store}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health responds with a generic OK payload for liveness usage.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready reports whether the database answers and the table cache is subscribed.
func (h *MetricsHandler) Ready(c *gin.Context) {
	checks := gin.H{}
	ready := true

	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			checks["database"] = err.Error()
			ready = false
		} else {
			checks["database"] = "ok"
		}
	}
	if h.store != nil {
		status := h.store.Status()
		checks["table_cache"] = status
		if status != tablecache.StatusConnected {
			ready = false
		}
	}

	code := http.StatusOK
	state := "ready"
	if !ready {
		code = http.StatusServiceUnavailable
		state = "not_ready"
	}
	c.JSON(code, gin.H{"status": state, "checks": checks})
}

// System returns the JSON metrics snapshot.
func (h *MetricsHandler) System(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}
