package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/streamtip/settlement_service/internal/domain/entities"
	"github.com/streamtip/settlement_service/internal/domain/services/settlement"
)

// AnalyticsHandler exposes the streamer metrics read path
type AnalyticsHandler struct {
	service *settlement.Service
	logger  *zap.Logger
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(service *settlement.Service, logger *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{service: service, logger: logger}
}

// GetStreamerAnalytics returns the metrics view for one streamer
// GET /api/v1/analytics/:streamer?timeframe=7d
func (h *AnalyticsHandler) GetStreamerAnalytics(c *gin.Context) {
	streamer := c.Param("streamer")
	timeframe := entities.Timeframe(c.DefaultQuery("timeframe", string(entities.Timeframe7d)))

	result, err := h.service.GetStreamerAnalytics(c.Request.Context(), streamer, timeframe)
	if err != nil {
		RespondError(c, err)
		return
	}
	SendSuccess(c, result)
}
