package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/juan-silveira/clube-navi-sub003/internal/application/settlement"
	"github.com/juan-silveira/clube-navi-sub003/internal/domain"
	"github.com/juan-silveira/clube-navi-sub003/internal/server/middleware"
)

type WebhookHandler struct {
	settlementSvc settlement.ISettlementService
	logger        zerolog.Logger
}

func NewWebhookHandler(settlementSvc settlement.ISettlementService, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		settlementSvc: settlementSvc,
		logger:        logger,
	}
}

func (h *WebhookHandler) HandleAvista(c *gin.Context) {
	h.handle(c, domain.ProviderAvista)
}

func (h *WebhookHandler) HandlePixefi(c *gin.Context) {
	h.handle(c, domain.ProviderPixefi)
}

// handle always acknowledges 200 to the provider, whatever happens
// internally; failing the response only buys a retry storm. Failures are
// persisted on the affected record for reconciliation.
func (h *WebhookHandler) handle(c *gin.Context, kind domain.ProviderKind) {
	tenant := middleware.TenantFrom(c)

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.Err(err).Str("provider", string(kind)).Msg("Failed to read webhook body")
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}

	h.settlementSvc.ProcessWebhook(c.Request.Context(), tenant, kind, body, c.Request.Header)
	c.JSON(http.StatusOK, gin.H{"success": true})
}
