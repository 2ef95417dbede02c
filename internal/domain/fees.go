package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferFeeKey addresses the per-network, per-token transfer fee table.
type TransferFeeKey struct {
	Network string
	TokenID string
}

type UserFeeProfile struct {
	UserID             string                             `json:"user_id" db:"user_id"`
	DepositFixedFee    decimal.Decimal                    `json:"deposit_fixed_fee" db:"deposit_fixed_fee"`
	DepositPercentFee  decimal.Decimal                    `json:"deposit_percent_fee" db:"deposit_percent_fee"`
	WithdrawFixedFee   decimal.Decimal                    `json:"withdraw_fixed_fee" db:"withdraw_fixed_fee"`
	WithdrawPercentFee decimal.Decimal                    `json:"withdraw_percent_fee" db:"withdraw_percent_fee"`
	TransferFees       map[TransferFeeKey]decimal.Decimal `json:"-"`
	VIPTier            int                                `json:"vip_tier" db:"vip_tier"`
	ValidFrom          time.Time                          `json:"valid_from" db:"valid_from"`
	ValidUntil         time.Time                          `json:"valid_until" db:"valid_until"`
}

// Expired reports whether the profile's validity window has passed; expired
// profiles fall back to system defaults.
func (p *UserFeeProfile) Expired(now time.Time) bool {
	return !p.ValidUntil.IsZero() && now.After(p.ValidUntil)
}

// VIPBenefit is one row of the tier table. Tiers are a lookup table rather
// than a formula so each tier can be tuned independently.
type VIPBenefit struct {
	Tier            int
	FeeDiscountPct  decimal.Decimal
	GasSubsidized   bool
}

type CashbackShares struct {
	ConsumerShare         decimal.Decimal `json:"consumer_share"`
	PlatformShare         decimal.Decimal `json:"platform_share"`
	ConsumerReferrerShare decimal.Decimal `json:"consumer_referrer_share"`
	MerchantReferrerShare decimal.Decimal `json:"merchant_referrer_share"`
	MerchantNet           decimal.Decimal `json:"merchant_net"`
}
