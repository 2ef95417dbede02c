package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type WithdrawalStatus string

// Reversing is the claim state for a compensating re-mint: a withdrawal
// moves processing -> reversing before the mint is attempted, so only one
// reversal can ever reach the ledger.
const (
	WithdrawalStatusPending    WithdrawalStatus = "pending"
	WithdrawalStatusProcessing WithdrawalStatus = "processing"
	WithdrawalStatusReversing  WithdrawalStatus = "reversing"
	WithdrawalStatusConfirmed  WithdrawalStatus = "confirmed"
	WithdrawalStatusFailed     WithdrawalStatus = "failed"
	WithdrawalStatusCancelled  WithdrawalStatus = "cancelled"
)

type Withdrawal struct {
	ID             string           `json:"id" db:"id"`
	UserID         string           `json:"user_id" db:"user_id"`
	Amount         decimal.Decimal  `json:"amount" db:"amount"`
	Fee            decimal.Decimal  `json:"fee" db:"fee"`
	NetAmount      decimal.Decimal  `json:"net_amount" db:"net_amount"`
	DestinationKey string           `json:"-" db:"destination_key"`
	Status         WithdrawalStatus `json:"status" db:"status"`
	ExternalID     string           `json:"external_id" db:"external_id"`
	BurnTxHash     string           `json:"burn_tx_hash" db:"burn_tx_hash"`
	ReversalTxHash string           `json:"reversal_tx_hash" db:"reversal_tx_hash"`
	FailureReason  string           `json:"failure_reason" db:"failure_reason"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at" db:"updated_at"`
}

// MaskedDestination hides all but the tail of the destination PIX key for
// anything that leaves the service.
func (w *Withdrawal) MaskedDestination() string {
	key := w.DestinationKey
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
