package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

// HealthHandler handles health check endpoints
type HealthHandler struct {
	checks    map[string]HealthCheck
	logger    *zap.Logger
	version   string
	startTime time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(checks map[string]HealthCheck, logger *zap.Logger, version string) *HealthHandler {
	return &HealthHandler{
		checks:    checks,
		logger:    logger,
		version:   version,
		startTime: time.Now(),
	}
}

// Health runs every dependency probe and reports overall status
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status = "unhealthy"
			results[name] = err.Error()
			h.logger.Warn("Health check failed", zap.String("check", name), zap.Error(err))
		} else {
			results[name] = "ok"
		}
	}

	statusCode := http.StatusOK
	if status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":         status,
		"version":        h.version,
		"uptime_seconds": int(time.Since(h.startTime).Seconds()),
		"checks":         results,
		"timestamp":      time.Now().UTC(),
	})
}

// Ping always returns 200
// GET /ping
func (h *HealthHandler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"time":    time.Now().Unix(),
		"version": h.version,
	})
}
