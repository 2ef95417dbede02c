package main

import (
	"context"

	"github.com/juan-silveira/clube-navi-sub003/internal/application/fees"
	"github.com/juan-silveira/clube-navi-sub003/internal/application/settlement"
	"github.com/juan-silveira/clube-navi-sub003/internal/application/withdrawal"
	"github.com/juan-silveira/clube-navi-sub003/internal/domain/interfaces"
	"github.com/juan-silveira/clube-navi-sub003/internal/infrastructure/database"
	"github.com/juan-silveira/clube-navi-sub003/internal/infrastructure/ledger"
	"github.com/juan-silveira/clube-navi-sub003/internal/infrastructure/notify"
	"github.com/juan-silveira/clube-navi-sub003/internal/infrastructure/providers"
	"github.com/juan-silveira/clube-navi-sub003/internal/infrastructure/tenantcache"
	"github.com/juan-silveira/clube-navi-sub003/internal/repositories/tenantrepo"
	"github.com/juan-silveira/clube-navi-sub003/internal/server"
	"github.com/juan-silveira/clube-navi-sub003/internal/server/websocket"
	"github.com/juan-silveira/clube-navi-sub003/internal/worker"
	"github.com/juan-silveira/clube-navi-sub003/pkg/config"
	"github.com/juan-silveira/clube-navi-sub003/pkg/logger"
)

func main() {
	logger := logger.New()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	masterDB, err := database.New(&cfg.MasterDatabase)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to master database")
	}
	defer masterDB.ShutDown()

	tenantRepo := tenantrepo.New(masterDB.Db, logger)
	tenantPool := tenantcache.New(tenantRepo, cfg.TenantCache, nil, nil, logger)
	tenantPool.StartSweeper()
	defer tenantPool.Shutdown()

	avista := providers.NewAvista(cfg.Providers.Avista, logger)
	pixefi := providers.NewPixefi(cfg.Providers.Pixefi, logger)

	byName := map[string]interfaces.PaymentProvider{
		"avista": avista,
		"pixefi": pixefi,
	}
	primary, ok := byName[cfg.Providers.Primary]
	if !ok {
		logger.Fatal().Str("provider", cfg.Providers.Primary).Msg("Unknown primary provider")
	}
	fallback, ok := byName[cfg.Providers.Fallback]
	if !ok {
		logger.Fatal().Str("provider", cfg.Providers.Fallback).Msg("Unknown fallback provider")
	}
	providerRouter := providers.NewRouter(primary, fallback, logger)

	payout, ok := avista.(interfaces.PayoutSender)
	if !ok {
		logger.Fatal().Msg("No payout-capable provider configured")
	}

	ledgerClient := ledger.New(cfg.Ledger, logger)

	var notifier interfaces.Notifier = notify.NopNotifier{}
	if cfg.Notifier.Enabled {
		notifier = notify.NewRedis(cfg.Notifier, logger)
	}

	calc := fees.NewCalculator(fees.SystemDefaults(), logger)

	wsHub := websocket.NewWsHub(logger)
	go wsHub.Run()

	settlementSvc := settlement.NewSettlementService(
		tenantPool,
		providerRouter,
		ledgerClient,
		calc,
		notifier,
		wsHub,
		cfg.Settlement,
		logger,
	)
	withdrawalSvc := withdrawal.NewWithdrawalService(
		tenantPool,
		ledgerClient,
		payout,
		calc,
		notifier,
		wsHub,
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mintWorker := worker.NewMintWorker(settlementSvc, tenantRepo, cfg.Settlement, logger)
	settlementSvc.SetDispatcher(mintWorker)
	mintWorker.Start(ctx)
	defer mintWorker.Stop()

	reconciler := worker.NewReconciler(settlementSvc, tenantRepo, cfg.Settlement, logger)
	reconciler.Start(ctx)
	defer reconciler.Stop()

	srv := server.New(cfg, settlementSvc, withdrawalSvc, tenantPool, logger, wsHub)
	srv.Start()
}
