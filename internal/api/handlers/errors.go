package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/streamtip/settlement_service/internal/domain/entities"
	domainerrors "github.com/streamtip/settlement_service/internal/domain/errors"
)

// Error codes as constants for consistent error responses across handlers
const (
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeValidationError   = "VALIDATION_ERROR"
	ErrCodeInvalidID         = "INVALID_ID"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeDuplicateTip      = "DUPLICATE_TIP"
	ErrCodeIllegalTransition = "ILLEGAL_TRANSITION"
	ErrCodeConcurrentRun     = "CONCURRENT_RUN"
	ErrCodeExternalFailure   = "EXTERNAL_FAILURE"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

// RespondError maps a domain error onto the HTTP surface. Unrecognized
// errors become opaque 500s so internals never leak.
func RespondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := ErrCodeInternalError
	message := "Internal server error"

	switch {
	case domainerrors.IsInvalidInput(err):
		status, code = http.StatusBadRequest, ErrCodeValidationError
		message = err.Error()
	case domainerrors.IsDuplicateTip(err):
		status, code = http.StatusConflict, ErrCodeDuplicateTip
		message = err.Error()
	case domainerrors.IsNotFound(err):
		status, code = http.StatusNotFound, ErrCodeNotFound
		message = err.Error()
	case domainerrors.IsIllegalTransition(err):
		status, code = http.StatusConflict, ErrCodeIllegalTransition
		message = err.Error()
	case domainerrors.IsConcurrentRun(err):
		status, code = http.StatusConflict, ErrCodeConcurrentRun
		message = err.Error()
	case domainerrors.IsExternalFailure(err):
		status, code = http.StatusBadGateway, ErrCodeExternalFailure
		message = err.Error()
	}

	c.JSON(status, entities.ErrorResponse{
		Code:    code,
		Message: message,
		Details: domainerrors.GetErrorDetails(err),
	})
}

// SendBadRequest sends a 400 Bad Request error
func SendBadRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, entities.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// SendSuccess sends a 200 OK response with data
func SendSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// SendCreated sends a 201 Created response with data
func SendCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// SendAccepted sends a 202 Accepted response with data
func SendAccepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, data)
}
