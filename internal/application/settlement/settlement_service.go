package settlement

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/juan-silveira/clube-navi-sub003/internal/domain"
)

// MintTask identifies one pending mint. Tasks are at-least-once: a lost
// task is recovered by the reconciliation sweep, a duplicate is absorbed by
// the guarded terminal writes.
type MintTask struct {
	TenantID string
	RecordID string
}

// MintDispatcher hands mint tasks to the worker pool. Enqueue must not
// block; it reports whether the task was accepted.
type MintDispatcher interface {
	Enqueue(task MintTask) bool
}

type InitiateRequest struct {
	UserID string          `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`
}

type InitiateResult struct {
	Record       *domain.SettlementRecord `json:"record"`
	QRPayload    string                   `json:"qr_payload"`
	QRImage      string                   `json:"qr_image"`
	ExpiresAt    time.Time                `json:"expires_at"`
	Degraded     bool                     `json:"degraded"`
	UsedFallback bool                     `json:"used_fallback"`
}

type ISettlementService interface {
	Initiate(ctx context.Context, tenant *domain.Tenant, req *InitiateRequest) (*InitiateResult, error)

	// ConfirmFiat is idempotent: a record whose fiat leg is already
	// confirmed is returned unchanged. The transition to ledger_pending
	// and the mint dispatch happen exactly once.
	ConfirmFiat(ctx context.Context, tenant *domain.Tenant, recordID string, event *domain.PaymentEvent) (*domain.SettlementRecord, error)

	// ProcessWebhook never fails outward; internal problems are persisted
	// on the affected record as needs_reprocessing.
	ProcessWebhook(ctx context.Context, tenant *domain.Tenant, kind domain.ProviderKind, body []byte, header http.Header)

	// RunLedgerMint executes the mint for a record already claimed into
	// ledger_pending and writes the terminal status.
	RunLedgerMint(ctx context.Context, tenant *domain.Tenant, recordID string)

	ConfirmLedger(ctx context.Context, tenant *domain.Tenant, recordID string, receipt *domain.ChainReceipt) (*domain.SettlementRecord, error)
	Cancel(ctx context.Context, tenant *domain.Tenant, recordID, reason string) (*domain.SettlementRecord, error)
	GetRecord(ctx context.Context, tenant *domain.Tenant, recordID string) (*domain.SettlementRecord, error)
	Reprocess(ctx context.Context, tenant *domain.Tenant, recordID string) (*domain.SettlementRecord, error)

	// ReconcileTenant re-dispatches records stuck in ledger_pending beyond
	// the configured threshold and re-polls providers for records flagged
	// needs_reprocessing.
	ReconcileTenant(ctx context.Context, tenant *domain.Tenant) (requeued, reprocessed int, err error)

	SetDispatcher(dispatcher MintDispatcher)
}
