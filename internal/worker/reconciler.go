package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/juan-silveira/clube-navi-sub003/internal/application/settlement"
	"github.com/juan-silveira/clube-navi-sub003/internal/repositories/tenantrepo"
	"github.com/juan-silveira/clube-navi-sub003/pkg/config"
)

// Reconciler periodically walks every active tenant and lets the
// settlement service requeue stuck mints and re-poll flagged records. It
// is the recovery path for worker crashes and degraded initiations.
type Reconciler struct {
	settlementSvc settlement.ISettlementService
	tenantRepo    tenantrepo.ITenantRepository
	interval      time.Duration
	logger        zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewReconciler(
	settlementSvc settlement.ISettlementService,
	tenantRepo tenantrepo.ITenantRepository,
	cfg config.SettlementConfig,
	logger zerolog.Logger,
) *Reconciler {
	interval := cfg.ReconcileInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Reconciler{
		settlementSvc: settlementSvc,
		tenantRepo:    tenantRepo,
		interval:      interval,
		logger:        logger,
		done:          make(chan struct{}),
	}
}

func (r *Reconciler) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	go func() {
		defer close(r.done)
		// One pass at startup recovers anything left behind by a crash.
		r.sweep(ctx)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweep(ctx)
			}
		}
	}()
}

func (r *Reconciler) sweep(ctx context.Context) {
	tenants, err := r.tenantRepo.ListActive(ctx)
	if err != nil {
		r.logger.Err(err).Msg("Reconciliation sweep could not list tenants")
		return
	}

	for i := range tenants {
		tenant := &tenants[i]
		requeued, reprocessed, err := r.settlementSvc.ReconcileTenant(ctx, tenant)
		if err != nil {
			r.logger.Err(err).Str("tenant_id", tenant.ID).Msg("Tenant reconciliation failed")
			continue
		}
		if requeued > 0 || reprocessed > 0 {
			r.logger.Info().
				Str("tenant_id", tenant.ID).
				Int("requeued", requeued).
				Int("reprocessed", reprocessed).
				Msg("Tenant reconciliation pass completed")
		}
	}
}

func (r *Reconciler) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	<-r.done
}
