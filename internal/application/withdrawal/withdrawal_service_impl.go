package withdrawal

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/juan-silveira/clube-navi-sub003/internal/application/fees"
	"github.com/juan-silveira/clube-navi-sub003/internal/domain"
	"github.com/juan-silveira/clube-navi-sub003/internal/domain/interfaces"
	"github.com/juan-silveira/clube-navi-sub003/internal/infrastructure/tenantcache"
	"github.com/juan-silveira/clube-navi-sub003/internal/repositories"
	"github.com/juan-silveira/clube-navi-sub003/pkg/money"
)

type withdrawalService struct {
	pool        *tenantcache.Service
	ledger      interfaces.LedgerClient
	payout      interfaces.PayoutSender
	calc        *fees.Calculator
	notifier    interfaces.Notifier
	broadcaster interfaces.Broadcaster
	logger      zerolog.Logger
}

func NewWithdrawalService(
	pool *tenantcache.Service,
	ledgerClient interfaces.LedgerClient,
	payout interfaces.PayoutSender,
	calc *fees.Calculator,
	notifier interfaces.Notifier,
	broadcaster interfaces.Broadcaster,
	logger zerolog.Logger,
) IWithdrawalService {
	return &withdrawalService{
		pool:        pool,
		ledger:      ledgerClient,
		payout:      payout,
		calc:        calc,
		notifier:    notifier,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

func (s *withdrawalService) stores(tenant *domain.Tenant) (*repositories.TenantStores, error) {
	db, err := s.pool.Connection(tenant)
	if err != nil {
		return nil, err
	}
	return repositories.NewTenantStores(db, s.logger), nil
}

func (s *withdrawalService) Request(ctx context.Context, tenant *domain.Tenant, input *RequestInput) (*domain.Withdrawal, error) {
	if !money.IsPositive(input.Amount) {
		return nil, fmt.Errorf("withdrawal amount must be positive")
	}
	if input.DestinationKey == "" {
		return nil, fmt.Errorf("destination key is required")
	}
	if err := checkLimits(tenant, input.Amount); err != nil {
		return nil, err
	}

	stores, err := s.stores(tenant)
	if err != nil {
		return nil, err
	}

	user, err := stores.Users.GetByID(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	if user.LedgerAddress == "" {
		return nil, domain.ErrMissingLedgerAddress
	}

	profile, err := s.calc.ProfileFor(ctx, stores.Fees, user.ID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	quote := s.calc.WithdrawalFee(profile, input.Amount)
	if !money.IsPositive(quote.NetAmount) {
		return nil, fmt.Errorf("withdrawal amount does not cover the fee")
	}

	// Balance check and debit happen in one statement, before anything
	// irreversible.
	debited, err := stores.Users.Debit(ctx, user.ID, quote.Amount)
	if err != nil {
		return nil, err
	}
	if !debited {
		return nil, domain.ErrInsufficientBalance
	}

	withdrawal := &domain.Withdrawal{
		ID:             ulid.Make().String(),
		UserID:         user.ID,
		Amount:         quote.Amount,
		Fee:            quote.Fee,
		NetAmount:      quote.NetAmount,
		DestinationKey: input.DestinationKey,
		Status:         domain.WithdrawalStatusPending,
	}
	if err := stores.Withdrawals.Create(ctx, withdrawal); err != nil {
		// Undo the debit; nothing external has happened yet.
		if creditErr := stores.Users.Credit(ctx, user.ID, quote.Amount); creditErr != nil {
			s.logger.Err(creditErr).Str("user_id", user.ID).Msg("Failed to restore balance after create failure")
		}
		return nil, err
	}

	burnReceipt, err := s.ledger.Burn(ctx, user.LedgerAddress, withdrawal.Amount, "", withdrawal.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("withdrawal_id", withdrawal.ID).Msg("Ledger burn failed")
		if _, setErr := stores.Withdrawals.SetStatus(ctx, withdrawal.ID, domain.WithdrawalStatusPending, domain.WithdrawalStatusFailed); setErr != nil {
			s.logger.Err(setErr).Str("withdrawal_id", withdrawal.ID).Msg("Failed to mark withdrawal failed")
		}
		if creditErr := stores.Users.Credit(ctx, user.ID, quote.Amount); creditErr != nil {
			s.logger.Err(creditErr).Str("user_id", user.ID).Msg("Failed to restore balance after burn failure")
		}
		return nil, err
	}

	if _, err := stores.Withdrawals.SetProcessing(ctx, withdrawal.ID, burnReceipt.TxHash); err != nil {
		return nil, err
	}
	withdrawal.Status = domain.WithdrawalStatusProcessing
	withdrawal.BurnTxHash = burnReceipt.TxHash

	externalID, payoutErr := s.payout.Payout(ctx, withdrawal.DestinationKey, withdrawal.NetAmount, withdrawal.ID)
	if payoutErr != nil {
		s.logger.Error().Err(payoutErr).
			Str("withdrawal_id", withdrawal.ID).
			Msg("Payout failed after burn, reversing withdrawal")
		return s.ReverseWithdrawal(ctx, tenant, withdrawal.ID, payoutErr.Error())
	}

	if _, err := stores.Withdrawals.SetConfirmed(ctx, withdrawal.ID, externalID); err != nil {
		return nil, err
	}

	confirmed, err := stores.Withdrawals.GetByID(ctx, withdrawal.ID)
	if err != nil {
		return nil, err
	}
	s.fanOut(ctx, confirmed, "withdrawal_confirmed")
	return confirmed, nil
}

func checkLimits(tenant *domain.Tenant, amount decimal.Decimal) error {
	if tenant.Withdrawal.MinAmount != "" {
		if min, err := decimal.NewFromString(tenant.Withdrawal.MinAmount); err == nil && amount.LessThan(min) {
			return fmt.Errorf("withdrawal below tenant minimum of %s", money.FormatBRL(min))
		}
	}
	if tenant.Withdrawal.MaxAmount != "" {
		if max, err := decimal.NewFromString(tenant.Withdrawal.MaxAmount); err == nil && amount.GreaterThan(max) {
			return fmt.Errorf("withdrawal above tenant maximum of %s", money.FormatBRL(max))
		}
	}
	return nil
}

func (s *withdrawalService) GetByID(ctx context.Context, tenant *domain.Tenant, id string) (*domain.Withdrawal, error) {
	stores, err := s.stores(tenant)
	if err != nil {
		return nil, err
	}
	return stores.Withdrawals.GetByID(ctx, id)
}

func (s *withdrawalService) Cancel(ctx context.Context, tenant *domain.Tenant, id string) (*domain.Withdrawal, error) {
	stores, err := s.stores(tenant)
	if err != nil {
		return nil, err
	}

	withdrawal, err := stores.Withdrawals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	ok, err := stores.Withdrawals.SetStatus(ctx, id, domain.WithdrawalStatusPending, domain.WithdrawalStatusCancelled)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: cannot cancel withdrawal in status %s",
			domain.ErrInvalidStateTransition, withdrawal.Status)
	}

	if err := stores.Users.Credit(ctx, withdrawal.UserID, withdrawal.Amount); err != nil {
		s.logger.Err(err).Str("withdrawal_id", id).Msg("Failed to restore balance after cancel")
	}
	return stores.Withdrawals.GetByID(ctx, id)
}

func (s *withdrawalService) ReverseWithdrawal(ctx context.Context, tenant *domain.Tenant, id, reason string) (*domain.Withdrawal, error) {
	stores, err := s.stores(tenant)
	if err != nil {
		return nil, err
	}

	withdrawal, err := stores.Withdrawals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// Claim the reversal before touching the ledger. The compensating mint
	// is irreversible, so the processing -> reversing transition is the
	// gate: a concurrent reversal loses the CAS and never reaches Mint.
	claimed, err := stores.Withdrawals.SetStatus(ctx, id,
		domain.WithdrawalStatusProcessing, domain.WithdrawalStatusReversing)
	if err != nil {
		return nil, err
	}
	if !claimed {
		current, getErr := stores.Withdrawals.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%w: cannot reverse withdrawal in status %s",
			domain.ErrInvalidStateTransition, current.Status)
	}

	user, err := stores.Users.GetByID(ctx, withdrawal.UserID)
	if err != nil {
		s.releaseReversal(ctx, stores, id)
		return nil, err
	}

	// Re-mint the full burned amount, fee included: the user is made
	// whole when the payout never happened.
	receipt, err := s.ledger.Mint(ctx, user.LedgerAddress, withdrawal.Amount, "", "rev-"+withdrawal.ID)
	if err != nil {
		s.logger.Error().Err(err).
			Str("withdrawal_id", id).
			Msg("Compensating mint failed, withdrawal needs manual intervention")
		s.releaseReversal(ctx, stores, id)
		return nil, err
	}

	if _, err := stores.Withdrawals.SetFailed(ctx, id, receipt.TxHash, reason); err != nil {
		return nil, err
	}

	if err := stores.Users.Credit(ctx, withdrawal.UserID, withdrawal.Amount); err != nil {
		s.logger.Err(err).Str("withdrawal_id", id).Msg("Failed to restore balance after reversal")
	}

	failed, err := stores.Withdrawals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.fanOut(ctx, failed, "withdrawal_failed")
	return failed, nil
}

// releaseReversal hands the claim back so the reversal can be retried
// once whatever failed is resolved.
func (s *withdrawalService) releaseReversal(ctx context.Context, stores *repositories.TenantStores, id string) {
	if _, err := stores.Withdrawals.SetStatus(ctx, id,
		domain.WithdrawalStatusReversing, domain.WithdrawalStatusProcessing); err != nil {
		s.logger.Err(err).Str("withdrawal_id", id).Msg("Failed to release reversal claim")
	}
}

func (s *withdrawalService) fanOut(ctx context.Context, withdrawal *domain.Withdrawal, kind string) {
	if s.broadcaster != nil {
		s.broadcaster.BroadcastWithdrawal(withdrawal)
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, withdrawal.UserID, kind, withdrawal)
	}
}
