package interfaces

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/juan-silveira/clube-navi-sub003/internal/domain"
)

// PaymentProvider is implemented once per external PIX provider. The
// implementation is selected at configuration time; nothing outside this
// layer branches on provider names.
type PaymentProvider interface {
	Kind() domain.ProviderKind
	CreateCharge(ctx context.Context, req *domain.ChargeRequest) (*domain.Charge, error)
	CheckStatus(ctx context.Context, externalID string) (domain.ChargeStatus, error)
	ParseWebhook(body []byte, header http.Header) ([]domain.PaymentEvent, error)
}

// LedgerClient executes mints and burns on the token ledger. Calls are
// blocking and carry no in-band timeout beyond the context.
type LedgerClient interface {
	Mint(ctx context.Context, destination string, amount decimal.Decimal, network, referenceID string) (*domain.ChainReceipt, error)
	Burn(ctx context.Context, source string, amount decimal.Decimal, network, referenceID string) (*domain.ChainReceipt, error)
}

// Notifier is fire-and-forget; implementations swallow their own errors.
type Notifier interface {
	Notify(ctx context.Context, userID, kind string, payload interface{})
}
