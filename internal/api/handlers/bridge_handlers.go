package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/streamtip/settlement_service/internal/domain/services/settlement"
)

// BridgeHandler exposes bridge provider observability endpoints
type BridgeHandler struct {
	service *settlement.Service
	logger  *zap.Logger
}

// NewBridgeHandler creates a new bridge handler
func NewBridgeHandler(service *settlement.Service, logger *zap.Logger) *BridgeHandler {
	return &BridgeHandler{service: service, logger: logger}
}

// Status returns the cached bridge provider health
// GET /api/v1/bridge/status
func (h *BridgeHandler) Status(c *gin.Context) {
	SendSuccess(c, h.service.BridgeStatus(c.Request.Context()))
}
