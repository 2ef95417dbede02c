package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type SettlementKind string
type FiatStatus string
type LedgerStatus string
type OverallStatus string

const (
	KindDeposit    SettlementKind = "deposit"
	KindWithdrawal SettlementKind = "withdrawal"
)

const (
	FiatPending   FiatStatus = "pending"
	FiatConfirmed FiatStatus = "confirmed"
	FiatCancelled FiatStatus = "cancelled"
	FiatFailed    FiatStatus = "failed"
)

// LedgerStatus doubles as the mint mutex: empty means not started, pending
// means one attempt is in flight, confirmed/failed are terminal. It moves
// away from empty at most once per record.
const (
	LedgerNone      LedgerStatus = ""
	LedgerPending   LedgerStatus = "pending"
	LedgerConfirmed LedgerStatus = "confirmed"
	LedgerFailed    LedgerStatus = "failed"
)

const (
	OverallPending   OverallStatus = "pending"
	OverallConfirmed OverallStatus = "confirmed"
	OverallFailed    OverallStatus = "failed"
	OverallCancelled OverallStatus = "cancelled"
)

type SettlementRecord struct {
	ID                string          `json:"id" db:"id"`
	UserID            string          `json:"user_id" db:"user_id"`
	Kind              SettlementKind  `json:"kind" db:"kind"`
	Amount            decimal.Decimal `json:"amount" db:"amount"`
	Fee               decimal.Decimal `json:"fee" db:"fee"`
	GrossAmount       decimal.Decimal `json:"gross_amount" db:"gross_amount"`
	NetAmount         decimal.Decimal `json:"net_amount" db:"net_amount"`
	FiatStatus        FiatStatus      `json:"fiat_status" db:"fiat_status"`
	LedgerStatus      LedgerStatus    `json:"ledger_status" db:"ledger_status"`
	OverallStatus     OverallStatus   `json:"overall_status" db:"overall_status"`
	Provider          ProviderKind    `json:"provider" db:"provider"`
	ExternalID        string          `json:"external_id" db:"external_id"`
	EndToEndID        string          `json:"end_to_end_id" db:"end_to_end_id"`
	QRPayload         string          `json:"qr_payload" db:"qr_payload"`
	UsedFallback      bool            `json:"used_fallback" db:"used_fallback"`
	Degraded          bool            `json:"degraded" db:"degraded"`
	NeedsReprocessing bool            `json:"needs_reprocessing" db:"needs_reprocessing"`
	CancelReason      string          `json:"cancel_reason" db:"cancel_reason"`
	FailureReason     string          `json:"failure_reason" db:"failure_reason"`
	TxHash            string          `json:"tx_hash" db:"tx_hash"`
	BlockNumber       int64           `json:"block_number" db:"block_number"`
	GasUsed           int64           `json:"gas_used" db:"gas_used"`
	Metadata          json.RawMessage `json:"metadata" db:"metadata"`
	ExpiresAt         time.Time       `json:"expires_at" db:"expires_at"`
	FiatConfirmedAt   time.Time       `json:"fiat_confirmed_at" db:"fiat_confirmed_at"`
	SettledAt         time.Time       `json:"settled_at" db:"settled_at"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// DeriveOverallStatus recomputes the derived status. Confirmed requires
// both legs confirmed; any terminal failure or cancellation wins over
// pending.
func DeriveOverallStatus(fiat FiatStatus, ledger LedgerStatus) OverallStatus {
	switch {
	case fiat == FiatConfirmed && ledger == LedgerConfirmed:
		return OverallConfirmed
	case fiat == FiatCancelled:
		return OverallCancelled
	case fiat == FiatFailed || ledger == LedgerFailed:
		return OverallFailed
	default:
		return OverallPending
	}
}

// Terminal reports whether no further transitions are permitted.
func (r *SettlementRecord) Terminal() bool {
	return r.LedgerStatus == LedgerConfirmed ||
		r.LedgerStatus == LedgerFailed ||
		r.FiatStatus == FiatCancelled
}

type ChainReceipt struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber int64  `json:"block_number"`
	GasUsed     int64  `json:"gas_used"`
}
