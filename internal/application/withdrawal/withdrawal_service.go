package withdrawal

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/juan-silveira/clube-navi-sub003/internal/domain"
)

type RequestInput struct {
	UserID         string          `json:"user_id"`
	Amount         decimal.Decimal `json:"amount"`
	DestinationKey string          `json:"destination_key"`
}

type IWithdrawalService interface {
	// Request validates balance, debits it, burns the tokens and sends the
	// payout. A payout failure after the burn triggers the compensating
	// reversal automatically.
	Request(ctx context.Context, tenant *domain.Tenant, input *RequestInput) (*domain.Withdrawal, error)

	GetByID(ctx context.Context, tenant *domain.Tenant, id string) (*domain.Withdrawal, error)
	Cancel(ctx context.Context, tenant *domain.Tenant, id string) (*domain.Withdrawal, error)

	// ReverseWithdrawal re-mints the burned amount back to the user and
	// marks the withdrawal failed. Exposed for operator use; Request calls
	// it on payout failure.
	ReverseWithdrawal(ctx context.Context, tenant *domain.Tenant, id, reason string) (*domain.Withdrawal, error)
}
