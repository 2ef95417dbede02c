package fees

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/juan-silveira/clube-navi-sub003/internal/domain"
	"github.com/juan-silveira/clube-navi-sub003/internal/repositories/feerepo"
	"github.com/juan-silveira/clube-navi-sub003/pkg/money"
)

// Defaults are the system fee defaults applied when a user has no profile
// or the profile's validity window has expired.
type Defaults struct {
	DepositFixedFee    decimal.Decimal
	DepositPercentFee  decimal.Decimal
	WithdrawFixedFee   decimal.Decimal
	WithdrawPercentFee decimal.Decimal
	ProfileValidity    time.Duration
}

func SystemDefaults() Defaults {
	return Defaults{
		DepositFixedFee:    decimal.NewFromInt(3),
		DepositPercentFee:  decimal.Zero,
		WithdrawFixedFee:   decimal.Zero,
		WithdrawPercentFee: decimal.NewFromInt(2),
		ProfileValidity:    365 * 24 * time.Hour,
	}
}

// vipTable maps tiers 0-5 to their benefits. A table, not a formula, so
// each tier can be tuned independently.
var vipTable = []domain.VIPBenefit{
	{Tier: 0, FeeDiscountPct: decimal.Zero, GasSubsidized: false},
	{Tier: 1, FeeDiscountPct: decimal.NewFromInt(5), GasSubsidized: false},
	{Tier: 2, FeeDiscountPct: decimal.NewFromInt(10), GasSubsidized: false},
	{Tier: 3, FeeDiscountPct: decimal.NewFromInt(20), GasSubsidized: true},
	{Tier: 4, FeeDiscountPct: decimal.NewFromInt(35), GasSubsidized: true},
	{Tier: 5, FeeDiscountPct: decimal.NewFromInt(50), GasSubsidized: true},
}

type DepositQuote struct {
	Amount      decimal.Decimal `json:"amount"`
	Fee         decimal.Decimal `json:"fee"`
	GrossAmount decimal.Decimal `json:"gross_amount"`
	NetAmount   decimal.Decimal `json:"net_amount"`
}

type WithdrawalQuote struct {
	Amount    decimal.Decimal `json:"amount"`
	Fee       decimal.Decimal `json:"fee"`
	NetAmount decimal.Decimal `json:"net_amount"`
}

type Calculator struct {
	defaults Defaults
	logger   zerolog.Logger
}

func NewCalculator(defaults Defaults, logger zerolog.Logger) *Calculator {
	return &Calculator{
		defaults: defaults,
		logger:   logger,
	}
}

// ProfileFor loads the user's fee profile, lazily creating one with system
// defaults on first lookup and resetting it when its validity window has
// expired.
func (c *Calculator) ProfileFor(ctx context.Context, repo feerepo.IFeeRepository, userID string, now time.Time) (*domain.UserFeeProfile, error) {
	profile, err := repo.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile != nil && !profile.Expired(now) {
		return profile, nil
	}

	tier := 0
	if profile != nil {
		// Expired profiles reset fees to defaults but keep the tier.
		tier = profile.VIPTier
	}

	profile = &domain.UserFeeProfile{
		UserID:             userID,
		DepositFixedFee:    c.defaults.DepositFixedFee,
		DepositPercentFee:  c.defaults.DepositPercentFee,
		WithdrawFixedFee:   c.defaults.WithdrawFixedFee,
		WithdrawPercentFee: c.defaults.WithdrawPercentFee,
		VIPTier:            tier,
		ValidFrom:          now,
		ValidUntil:         now.Add(c.defaults.ProfileValidity),
	}
	if err := repo.UpsertProfile(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// DepositFee is additive: the payer is charged amount+fee and is credited
// exactly amount.
func (c *Calculator) DepositFee(profile *domain.UserFeeProfile, amount decimal.Decimal) DepositQuote {
	fee := c.discounted(profile, profile.DepositFixedFee.Add(money.Percent(amount, profile.DepositPercentFee)))
	return DepositQuote{
		Amount:      money.Round(amount),
		Fee:         fee,
		GrossAmount: money.Round(amount.Add(fee)),
		NetAmount:   money.Round(amount),
	}
}

// WithdrawalFee is subtractive: the fee comes out of the requested amount.
func (c *Calculator) WithdrawalFee(profile *domain.UserFeeProfile, amount decimal.Decimal) WithdrawalQuote {
	fee := c.discounted(profile, profile.WithdrawFixedFee.Add(money.Percent(amount, profile.WithdrawPercentFee)))
	return WithdrawalQuote{
		Amount:    money.Round(amount),
		Fee:       fee,
		NetAmount: money.Round(amount.Sub(fee)),
	}
}

// TokenTransferFee looks up the per-network, per-token table; unconfigured
// pairs cost nothing.
func (c *Calculator) TokenTransferFee(profile *domain.UserFeeProfile, network, tokenID string) decimal.Decimal {
	if profile.TransferFees == nil {
		return decimal.Zero
	}
	fee, ok := profile.TransferFees[domain.TransferFeeKey{Network: network, TokenID: tokenID}]
	if !ok {
		return decimal.Zero
	}
	return money.Round(fee)
}

func (c *Calculator) discounted(profile *domain.UserFeeProfile, fee decimal.Decimal) decimal.Decimal {
	benefit := c.VIPBenefit(profile.VIPTier)
	if benefit.FeeDiscountPct.IsZero() {
		return money.Round(fee)
	}
	discount := money.Percent(fee, benefit.FeeDiscountPct)
	return money.Round(fee.Sub(discount))
}

func (c *Calculator) VIPBenefit(tier int) domain.VIPBenefit {
	if tier < 0 {
		tier = 0
	}
	if tier >= len(vipTable) {
		tier = len(vipTable) - 1
	}
	return vipTable[tier]
}

// CashbackSplit distributes the cashback pool (totalAmount × percentage)
// across the four configured shares. The merchant keeps
// totalAmount − sum(shares).
func (c *Calculator) CashbackSplit(totalAmount, percentage decimal.Decimal, cfg domain.CashbackSplitConfig) (*domain.CashbackShares, error) {
	consumerPct, err := parsePercent(cfg.ConsumerPercent)
	if err != nil {
		return nil, fmt.Errorf("consumer percent: %w", err)
	}
	platformPct, err := parsePercent(cfg.PlatformPercent)
	if err != nil {
		return nil, fmt.Errorf("platform percent: %w", err)
	}
	consumerRefPct, err := parsePercent(cfg.ConsumerReferrerPercent)
	if err != nil {
		return nil, fmt.Errorf("consumer referrer percent: %w", err)
	}
	merchantRefPct, err := parsePercent(cfg.MerchantReferrerPercent)
	if err != nil {
		return nil, fmt.Errorf("merchant referrer percent: %w", err)
	}

	hundred := decimal.NewFromInt(100)
	if consumerPct.Add(platformPct).Add(consumerRefPct).Add(merchantRefPct).GreaterThan(hundred) {
		return nil, fmt.Errorf("cashback split percentages exceed 100")
	}

	pool := money.Percent(totalAmount, percentage)
	shares := &domain.CashbackShares{
		ConsumerShare:         money.Percent(pool, consumerPct),
		PlatformShare:         money.Percent(pool, platformPct),
		ConsumerReferrerShare: money.Percent(pool, consumerRefPct),
		MerchantReferrerShare: money.Percent(pool, merchantRefPct),
	}
	total := shares.ConsumerShare.
		Add(shares.PlatformShare).
		Add(shares.ConsumerReferrerShare).
		Add(shares.MerchantReferrerShare)
	shares.MerchantNet = money.Round(totalAmount.Sub(total))
	return shares, nil
}

func parsePercent(value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	pct, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, err
	}
	if pct.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative percentage %s", value)
	}
	return pct, nil
}
