package handlers

import (
	"context"
	"net/http"
	"time"

	"ordersvc/pkg/database"

	"github.com/labstack/echo/v4"
)

// Pinger is anything whose connectivity can be probed.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandlers handles health check and readiness endpoints
type HealthHandlers struct {
	db      Pinger
	cache   Pinger
	stats   func() database.Stats
	version string
	started time.Time
}

// NewHealthHandlers creates a new health handlers instance. cache may be nil
// when Redis is not configured; stats may be nil when pool statistics are
// not available.
func NewHealthHandlers(db Pinger, cache Pinger, stats func() database.Stats, version string) *HealthHandlers {
	return &HealthHandlers{
		db:      db,
		cache:   cache,
		stats:   stats,
		version: version,
		started: time.Now(),
	}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Uptime    string            `json:"uptime"`
	Version   string            `json:"version"`
	Pool      *database.Stats   `json:"pool,omitempty"`
}

// HealthCheck reports the state of every dependency. The cache is optional,
// so losing it degrades the service instead of failing it.
func (h *HealthHandlers) HealthCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	health := &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  make(map[string]string),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Version:   h.version,
	}

	if err := h.db.Ping(ctx); err != nil {
		health.Services["database"] = "unhealthy"
		health.Status = "unhealthy"
	} else {
		health.Services["database"] = "healthy"
	}

	switch {
	case h.cache == nil:
		health.Services["cache"] = "disabled"
	case h.cache.Ping(ctx) != nil:
		health.Services["cache"] = "unhealthy"
		if health.Status == "healthy" {
			health.Status = "degraded"
		}
	default:
		health.Services["cache"] = "healthy"
	}

	if h.stats != nil {
		s := h.stats()
		health.Pool = &s
	}

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	return c.JSON(statusCode, health)
}

// ReadinessCheck determines if the application is ready to serve traffic
func (h *HealthHandlers) ReadinessCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status":  "not_ready",
			"message": "Database unavailable",
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ready",
		"message": "All systems operational",
	})
}
