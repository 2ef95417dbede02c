package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/juan-silveira/clube-navi-sub003/internal/application/settlement"
	"github.com/juan-silveira/clube-navi-sub003/internal/application/withdrawal"
	"github.com/juan-silveira/clube-navi-sub003/internal/domain"
	"github.com/juan-silveira/clube-navi-sub003/internal/infrastructure/tenantcache"
	"github.com/juan-silveira/clube-navi-sub003/internal/server/middleware"
)

type AdminHandler struct {
	settlementSvc settlement.ISettlementService
	withdrawalSvc withdrawal.IWithdrawalService
	tenantPool    *tenantcache.Service
	logger        zerolog.Logger
}

func NewAdminHandler(
	settlementSvc settlement.ISettlementService,
	withdrawalSvc withdrawal.IWithdrawalService,
	tenantPool *tenantcache.Service,
	logger zerolog.Logger,
) *AdminHandler {
	return &AdminHandler{
		settlementSvc: settlementSvc,
		withdrawalSvc: withdrawalSvc,
		tenantPool:    tenantPool,
		logger:        logger,
	}
}

func (h *AdminHandler) ReprocessSettlement(c *gin.Context) {
	tenant := middleware.TenantFrom(c)

	record, err := h.settlementSvc.Reprocess(c.Request.Context(), tenant, c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrRecordNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"success": false, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "settlement reprocessed", "data": record})
}

type confirmLedgerRequest struct {
	TxHash      string `json:"tx_hash" binding:"required"`
	BlockNumber int64  `json:"block_number"`
	GasUsed     int64  `json:"gas_used"`
}

// ConfirmLedger is the manual admin confirmation path; it goes through the
// same guarded transition as every other mint trigger.
func (h *AdminHandler) ConfirmLedger(c *gin.Context) {
	tenant := middleware.TenantFrom(c)

	var req confirmLedgerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	record, err := h.settlementSvc.ConfirmLedger(c.Request.Context(), tenant, c.Param("id"), &domain.ChainReceipt{
		TxHash:      req.TxHash,
		BlockNumber: req.BlockNumber,
		GasUsed:     req.GasUsed,
	})
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

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "ledger confirmed", "data": record})
}

type reverseRequest struct {
	Reason string `json:"reason"`
}

func (h *AdminHandler) ReverseWithdrawal(c *gin.Context) {
	tenant := middleware.TenantFrom(c)

	var req reverseRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "admin_reversal"
	}

	result, err := h.withdrawalSvc.ReverseWithdrawal(c.Request.Context(), tenant, c.Param("id"), req.Reason)
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

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "withdrawal reversed", "data": result})
}

type invalidateRequest struct {
	TenantID string `json:"tenant_id"`
	All      bool   `json:"all"`
}

// InvalidateTenant busts the resolve/connection caches after admin config
// changes.
func (h *AdminHandler) InvalidateTenant(c *gin.Context) {
	var req invalidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	if req.All {
		h.tenantPool.InvalidateAll()
	} else if req.TenantID != "" {
		h.tenantPool.Invalidate(req.TenantID)
	} else {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "tenant_id or all is required"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "tenant cache invalidated"})
}
