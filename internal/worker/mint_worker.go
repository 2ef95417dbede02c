package worker

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/juan-silveira/clube-navi-sub003/internal/application/settlement"
	"github.com/juan-silveira/clube-navi-sub003/internal/repositories/tenantrepo"
	"github.com/juan-silveira/clube-navi-sub003/pkg/config"
)

// MintWorker consumes mint tasks off a bounded queue. The queue is an
// optimization, not the source of truth: any task that is dropped or lost
// to a crash is re-dispatched by the reconciliation sweep because the
// record stays in ledger_pending.
type MintWorker struct {
	settlementSvc settlement.ISettlementService
	tenantRepo    tenantrepo.ITenantRepository
	tasks         chan settlement.MintTask
	workers       int
	logger        zerolog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewMintWorker(
	settlementSvc settlement.ISettlementService,
	tenantRepo tenantrepo.ITenantRepository,
	cfg config.SettlementConfig,
	logger zerolog.Logger,
) *MintWorker {
	workers := cfg.MintWorkers
	if workers <= 0 {
		workers = 4
	}
	queueSize := cfg.MintQueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	return &MintWorker{
		settlementSvc: settlementSvc,
		tenantRepo:    tenantRepo,
		tasks:         make(chan settlement.MintTask, queueSize),
		workers:       workers,
		logger:        logger,
	}
}

// Enqueue implements settlement.MintDispatcher. It never blocks; a full
// queue reports false and the caller falls back to inline execution.
func (w *MintWorker) Enqueue(task settlement.MintTask) bool {
	select {
	case w.tasks <- task:
		return true
	default:
		w.logger.Warn().
			Str("settlement_id", task.RecordID).
			Msg("Mint queue full, task rejected")
		return false
	}
}

func (w *MintWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx)
	}
	w.logger.Info().Int("workers", w.workers).Msg("Mint workers started")
}

func (w *MintWorker) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-w.tasks:
			w.process(ctx, task)
		}
	}
}

func (w *MintWorker) process(ctx context.Context, task settlement.MintTask) {
	tenant, err := w.tenantRepo.GetByID(ctx, task.TenantID)
	if err != nil {
		w.logger.Err(err).
			Str("tenant_id", task.TenantID).
			Str("settlement_id", task.RecordID).
			Msg("Mint task dropped: tenant lookup failed")
		return
	}
	w.settlementSvc.RunLedgerMint(ctx, tenant, task.RecordID)
}

// Stop drains nothing: in-flight tasks finish, queued tasks are left to
// reconciliation.
func (w *MintWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
