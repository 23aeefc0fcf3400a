package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/streamtip/settlement_service/internal/domain/entities"
	"github.com/streamtip/settlement_service/internal/domain/services/settlement"
)

// SettlementHandler exposes tip ingestion and settlement lifecycle endpoints
type SettlementHandler struct {
	service *settlement.Service
	logger  *zap.Logger
}

// NewSettlementHandler creates a new settlement handler
func NewSettlementHandler(service *settlement.Service, logger *zap.Logger) *SettlementHandler {
	return &SettlementHandler{service: service, logger: logger}
}

// QueueTip ingests one confirmed tip transaction
// POST /api/v1/settlements/tips
func (h *SettlementHandler) QueueTip(c *gin.Context) {
	var req entities.QueueTipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendBadRequest(c, ErrCodeInvalidRequest, "Invalid request payload")
		return
	}

	settlementID, err := h.service.QueueTip(c.Request.Context(), &req)
	if err != nil {
		RespondError(c, err)
		return
	}

	SendCreated(c, entities.QueueTipResponse{SettlementID: settlementID})
}

// ManualSettle force-closes matching open batches
// POST /api/v1/settlements/settle
func (h *SettlementHandler) ManualSettle(c *gin.Context) {
	var req entities.ManualSettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendBadRequest(c, ErrCodeInvalidRequest, "Invalid request payload")
		return
	}

	triggered, err := h.service.ManualSettle(c.Request.Context(), &req)
	if err != nil {
		RespondError(c, err)
		return
	}

	SendAccepted(c, entities.ManualSettleResponse{TriggeredBatchIDs: triggered})
}

// ProcessBatch runs one closed or failed batch through the pipeline
// POST /api/v1/settlements/process
func (h *SettlementHandler) ProcessBatch(c *gin.Context) {
	var req entities.ProcessBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendBadRequest(c, ErrCodeInvalidRequest, "Invalid request payload")
		return
	}

	result, err := h.service.ProcessBatch(c.Request.Context(), req.BatchID)
	if err != nil {
		RespondError(c, err)
		return
	}

	resp := entities.ProcessBatchResponse{
		BatchID:    result.ID,
		Status:     result.Status,
		DestTxHash: result.DestTxHash,
		Error:      result.ErrorDetail,
	}
	SendSuccess(c, resp)
}

// GetSettlement returns one settlement by id
// GET /api/v1/settlements/:id
func (h *SettlementHandler) GetSettlement(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		SendBadRequest(c, ErrCodeInvalidID, "Invalid settlement id")
		return
	}

	result, err := h.service.GetSettlement(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	SendSuccess(c, result)
}

// GetStatus returns just the status of one settlement
// GET /api/v1/settlements/:id/status
func (h *SettlementHandler) GetStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		SendBadRequest(c, ErrCodeInvalidID, "Invalid settlement id")
		return
	}

	result, err := h.service.GetSettlement(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	SendSuccess(c, entities.StatusResponse{SettlementID: result.ID, Status: result.Status})
}

// ListSettlementTips returns the member tips of one settlement batch
// GET /api/v1/settlements/:id/tips
func (h *SettlementHandler) ListSettlementTips(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		SendBadRequest(c, ErrCodeInvalidID, "Invalid settlement id")
		return
	}

	tips, err := h.service.ListSettlementTips(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	SendSuccess(c, gin.H{"tips": tips, "count": len(tips)})
}

// ListSettlements returns a streamer's settlements, newest first, with the
// streamer's all-time tip count
// GET /api/v1/settlements?streamer=0x...&limit=50
func (h *SettlementHandler) ListSettlements(c *gin.Context) {
	streamer := c.Query("streamer")
	if streamer == "" {
		SendBadRequest(c, ErrCodeValidationError, "streamer query parameter is required")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	results, err := h.service.ListSettlements(c.Request.Context(), streamer, limit)
	if err != nil {
		RespondError(c, err)
		return
	}
	totalTips, err := h.service.CountStreamerTips(c.Request.Context(), streamer)
	if err != nil {
		RespondError(c, err)
		return
	}
	SendSuccess(c, gin.H{"settlements": results, "count": len(results), "total_tips": totalTips})
}

// PendingTotals returns a streamer's open amounts grouped by chain and token
// GET /api/v1/settlements/pending/totals?streamer=0x...
func (h *SettlementHandler) PendingTotals(c *gin.Context) {
	streamer := c.Query("streamer")
	if streamer == "" {
		SendBadRequest(c, ErrCodeValidationError, "streamer query parameter is required")
		return
	}

	totals, err := h.service.PendingTotals(c.Request.Context(), streamer)
	if err != nil {
		RespondError(c, err)
		return
	}
	SendSuccess(c, gin.H{"pending": totals})
}

// ListPendingBatches returns every non-empty open batch
// GET /api/v1/settlements/pending/batches
func (h *SettlementHandler) ListPendingBatches(c *gin.Context) {
	batches, err := h.service.ListPendingBatches(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	SendSuccess(c, gin.H{"batches": batches, "count": len(batches)})
}
