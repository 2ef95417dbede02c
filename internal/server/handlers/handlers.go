package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/juan-silveira/clube-navi-sub003/internal/application/settlement"
	"github.com/juan-silveira/clube-navi-sub003/internal/application/withdrawal"
	"github.com/juan-silveira/clube-navi-sub003/internal/infrastructure/tenantcache"
	"github.com/juan-silveira/clube-navi-sub003/internal/server/middleware"
	"github.com/juan-silveira/clube-navi-sub003/internal/server/websocket"
	"github.com/juan-silveira/clube-navi-sub003/pkg/config"
)

type Handlers struct {
	SettlementSvc settlement.ISettlementService
	WithdrawalSvc withdrawal.IWithdrawalService
	TenantPool    *tenantcache.Service
	Logger        zerolog.Logger
	Config        *config.Config
	WsHub         *websocket.WsHub
}

func New(
	settlementSvc settlement.ISettlementService,
	withdrawalSvc withdrawal.IWithdrawalService,
	tenantPool *tenantcache.Service,
	logger zerolog.Logger,
	cfg *config.Config,
	wsHub *websocket.WsHub,
) *Handlers {
	return &Handlers{
		SettlementSvc: settlementSvc,
		WithdrawalSvc: withdrawalSvc,
		TenantPool:    tenantPool,
		Logger:        logger,
		Config:        cfg,
		WsHub:         wsHub,
	}
}

func (h *Handlers) SetupHandlers(router *gin.Engine) {
	tenantMw := middleware.NewTenantMiddleware(h.TenantPool, h.Config.TenantCache.HeaderName, h.Logger)
	authMw := middleware.NewAuthMiddleware(h.Config.JWT.Secret, h.Logger)

	depositHandler := NewDepositHandler(h.SettlementSvc, h.Logger)
	withdrawalHandler := NewWithdrawalHandler(h.WithdrawalSvc, h.Logger)
	webhookHandler := NewWebhookHandler(h.SettlementSvc, h.Logger)
	adminHandler := NewAdminHandler(h.SettlementSvc, h.WithdrawalSvc, h.TenantPool, h.Logger)
	wsHandler := NewWebSocketHandler(h.WsHub, h.Config.WebSocket, h.Logger)
	healthHandler := NewHealthHandler()

	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// Webhooks carry no auth; each provider has its own authenticity
	// mechanism and the response is always 200, even when the tenant
	// cannot be resolved or is no longer accessible.
	webhooks := router.Group("/webhooks", tenantMw.WebhookHandler())
	{
		webhooks.POST("/avista", webhookHandler.HandleAvista)
		webhooks.POST("/pixefi", webhookHandler.HandlePixefi)
	}

	v1 := router.Group("/v1", tenantMw.Handler())
	{
		v1.GET("/status", wsHandler.HandleConnection)

		deposits := v1.Group("/deposits", authMw.UserAuth())
		{
			deposits.POST("", depositHandler.Initiate)
			deposits.GET("/:id", depositHandler.Get)
			deposits.POST("/:id/cancel", depositHandler.Cancel)
		}

		withdrawals := v1.Group("/withdrawals", authMw.UserAuth())
		{
			withdrawals.POST("", withdrawalHandler.Request)
			withdrawals.GET("/:id", withdrawalHandler.Get)
			withdrawals.POST("/:id/cancel", withdrawalHandler.Cancel)
		}

		admin := v1.Group("/admin", authMw.AdminAuth())
		{
			admin.PUT("/settlements/:id/reprocess", adminHandler.ReprocessSettlement)
			admin.POST("/settlements/:id/confirm-ledger", adminHandler.ConfirmLedger)
			admin.POST("/withdrawals/:id/reverse", adminHandler.ReverseWithdrawal)
			admin.POST("/tenants/invalidate", adminHandler.InvalidateTenant)
		}
	}
}
