package interfaces

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/juan-silveira/clube-navi-sub003/internal/domain"
)

// PayoutSender moves fiat out to a PIX key after the corresponding tokens
// were burned. Implemented by providers that support transfers.
type PayoutSender interface {
	Payout(ctx context.Context, destinationKey string, amount decimal.Decimal, referenceID string) (externalID string, err error)
}

// Broadcaster pushes live status updates to connected dashboard clients.
type Broadcaster interface {
	BroadcastSettlement(record *domain.SettlementRecord)
	BroadcastWithdrawal(withdrawal *domain.Withdrawal)
}
