package settlementrepo

import (
	"context"
	"time"

	"github.com/juan-silveira/clube-navi-sub003/internal/domain"
)

type ISettlementRepository interface {
	Create(ctx context.Context, record *domain.SettlementRecord) error
	GetByID(ctx context.Context, id string) (*domain.SettlementRecord, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.SettlementRecord, error)
	UpdateCharge(ctx context.Context, record *domain.SettlementRecord) error

	// ClaimForMint atomically sets fiat_status=confirmed and
	// ledger_status=pending in one statement, guarded on ledger_status
	// still being unset. It reports whether this caller won the claim;
	// losing means another delivery already started (or finished) the
	// mint.
	ClaimForMint(ctx context.Context, id, endToEndID string, confirmedAt time.Time) (bool, error)

	// SetLedgerConfirmed / SetLedgerFailed are guarded on
	// ledger_status=pending so a terminal status is written at most once.
	SetLedgerConfirmed(ctx context.Context, id string, receipt *domain.ChainReceipt, settledAt time.Time) (bool, error)
	SetLedgerFailed(ctx context.Context, id, reason string) (bool, error)

	Cancel(ctx context.Context, id, reason string) (bool, error)
	MarkNeedsReprocessing(ctx context.Context, id string, metadata []byte) error
	ClearNeedsReprocessing(ctx context.Context, id string) error

	ListStuckPending(ctx context.Context, olderThan time.Time, limit int) ([]domain.SettlementRecord, error)
	ListNeedsReprocessing(ctx context.Context, limit int) ([]domain.SettlementRecord, error)
}
