package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/juan-silveira/clube-navi-sub003/internal/application/settlement"
	"github.com/juan-silveira/clube-navi-sub003/internal/domain"
	"github.com/juan-silveira/clube-navi-sub003/internal/server/middleware"
)

type DepositHandler struct {
	settlementSvc settlement.ISettlementService
	logger        zerolog.Logger
}

func NewDepositHandler(settlementSvc settlement.ISettlementService, logger zerolog.Logger) *DepositHandler {
	return &DepositHandler{
		settlementSvc: settlementSvc,
		logger:        logger,
	}
}

type initiateDepositRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

func (h *DepositHandler) Initiate(c *gin.Context) {
	tenant := middleware.TenantFrom(c)
	userID := c.GetString("user_id")

	var req initiateDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	result, err := h.settlementSvc.Initiate(c.Request.Context(), tenant, &settlement.InitiateRequest{
		UserID: userID,
		Amount: req.Amount,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrUserNotFound) || errors.Is(err, domain.ErrMissingLedgerAddress) {
			status = http.StatusUnprocessableEntity
		}
		h.logger.Err(err).Str("user_id", userID).Msg("Deposit initiation failed")
		c.JSON(status, gin.H{"success": false, "message": err.Error()})
		return
	}

	message := "deposit created"
	if result.Degraded {
		// The UI shows pending/retry messaging for degraded charges.
		message = "deposit created in degraded mode, confirmation may take longer"
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": message,
		"data":    result,
	})
}

func (h *DepositHandler) Get(c *gin.Context) {
	tenant := middleware.TenantFrom(c)

	record, err := h.settlementSvc.GetRecord(c.Request.Context(), tenant, c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrRecordNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"success": false, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": record})
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *DepositHandler) Cancel(c *gin.Context) {
	tenant := middleware.TenantFrom(c)

	var req cancelRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "user_requested"
	}

	record, err := h.settlementSvc.Cancel(c.Request.Context(), tenant, c.Param("id"), req.Reason)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, domain.ErrRecordNotFound):
			status = http.StatusNotFound
		case errors.Is(err, domain.ErrInvalidStateTransition):
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"success": false, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "deposit cancelled", "data": record})
}
