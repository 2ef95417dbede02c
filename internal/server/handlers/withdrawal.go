package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/juan-silveira/clube-navi-sub003/internal/application/withdrawal"
	"github.com/juan-silveira/clube-navi-sub003/internal/domain"
	"github.com/juan-silveira/clube-navi-sub003/internal/server/middleware"
)

type WithdrawalHandler struct {
	withdrawalSvc withdrawal.IWithdrawalService
	logger        zerolog.Logger
}

func NewWithdrawalHandler(withdrawalSvc withdrawal.IWithdrawalService, logger zerolog.Logger) *WithdrawalHandler {
	return &WithdrawalHandler{
		withdrawalSvc: withdrawalSvc,
		logger:        logger,
	}
}

type requestWithdrawalBody struct {
	Amount         decimal.Decimal `json:"amount" binding:"required"`
	DestinationKey string          `json:"destination_key" binding:"required"`
}

type withdrawalView struct {
	*domain.Withdrawal
	Destination string `json:"destination"`
}

func view(w *domain.Withdrawal) withdrawalView {
	return withdrawalView{Withdrawal: w, Destination: w.MaskedDestination()}
}

func (h *WithdrawalHandler) Request(c *gin.Context) {
	tenant := middleware.TenantFrom(c)
	userID := c.GetString("user_id")

	var req requestWithdrawalBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	result, err := h.withdrawalSvc.Request(c.Request.Context(), tenant, &withdrawal.RequestInput{
		UserID:         userID,
		Amount:         req.Amount,
		DestinationKey: req.DestinationKey,
	})
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, domain.ErrInsufficientBalance):
			status = http.StatusUnprocessableEntity
		case errors.Is(err, domain.ErrUserNotFound), errors.Is(err, domain.ErrMissingLedgerAddress):
			status = http.StatusUnprocessableEntity
		}
		h.logger.Err(err).Str("user_id", userID).Msg("Withdrawal request failed")
		c.JSON(status, gin.H{"success": false, "message": err.Error()})
		return
	}

	message := "withdrawal completed"
	if result.Status == domain.WithdrawalStatusFailed {
		message = "withdrawal failed and was reversed"
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "message": message, "data": view(result)})
}

func (h *WithdrawalHandler) Get(c *gin.Context) {
	tenant := middleware.TenantFrom(c)

	result, err := h.withdrawalSvc.GetByID(c.Request.Context(), tenant, c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrRecordNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"success": false, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": view(result)})
}

func (h *WithdrawalHandler) Cancel(c *gin.Context) {
	tenant := middleware.TenantFrom(c)

	result, err := h.withdrawalSvc.Cancel(c.Request.Context(), tenant, c.Param("id"))
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

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "withdrawal cancelled", "data": view(result)})
}
