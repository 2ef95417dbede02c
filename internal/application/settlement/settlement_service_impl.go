package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/juan-silveira/clube-navi-sub003/internal/application/fees"
	"github.com/juan-silveira/clube-navi-sub003/internal/domain"
	"github.com/juan-silveira/clube-navi-sub003/internal/domain/interfaces"
	"github.com/juan-silveira/clube-navi-sub003/internal/infrastructure/providers"
	"github.com/juan-silveira/clube-navi-sub003/internal/infrastructure/tenantcache"
	"github.com/juan-silveira/clube-navi-sub003/internal/repositories"
	"github.com/juan-silveira/clube-navi-sub003/pkg/config"
	"github.com/juan-silveira/clube-navi-sub003/pkg/money"
)

type settlementService struct {
	pool        *tenantcache.Service
	router      *providers.Router
	ledger      interfaces.LedgerClient
	calc        *fees.Calculator
	notifier    interfaces.Notifier
	broadcaster interfaces.Broadcaster
	dispatcher  MintDispatcher
	cfg         config.SettlementConfig
	logger      zerolog.Logger
}

func NewSettlementService(
	pool *tenantcache.Service,
	router *providers.Router,
	ledgerClient interfaces.LedgerClient,
	calc *fees.Calculator,
	notifier interfaces.Notifier,
	broadcaster interfaces.Broadcaster,
	cfg config.SettlementConfig,
	logger zerolog.Logger,
) ISettlementService {
	return &settlementService{
		pool:        pool,
		router:      router,
		ledger:      ledgerClient,
		calc:        calc,
		notifier:    notifier,
		broadcaster: broadcaster,
		cfg:         cfg,
		logger:      logger,
	}
}

func (s *settlementService) SetDispatcher(dispatcher MintDispatcher) {
	s.dispatcher = dispatcher
}

func (s *settlementService) stores(tenant *domain.Tenant) (*repositories.TenantStores, error) {
	db, err := s.pool.Connection(tenant)
	if err != nil {
		return nil, err
	}
	return repositories.NewTenantStores(db, s.logger), nil
}

func (s *settlementService) Initiate(ctx context.Context, tenant *domain.Tenant, req *InitiateRequest) (*InitiateResult, error) {
	if !money.IsPositive(req.Amount) {
		return nil, fmt.Errorf("deposit amount must be positive")
	}

	stores, err := s.stores(tenant)
	if err != nil {
		return nil, err
	}

	user, err := stores.Users.GetByID(ctx, req.UserID)
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
	quote := s.calc.DepositFee(profile, req.Amount)

	record := &domain.SettlementRecord{
		ID:          ulid.Make().String(),
		UserID:      user.ID,
		Kind:        domain.KindDeposit,
		Amount:      quote.Amount,
		Fee:         quote.Fee,
		GrossAmount: quote.GrossAmount,
		NetAmount:   quote.NetAmount,
		FiatStatus:  domain.FiatPending,
		ExpiresAt:   time.Now().UTC().Add(s.cfg.ChargeExpiry),
	}
	if err := stores.Settlements.Create(ctx, record); err != nil {
		return nil, err
	}

	charge, err := s.router.CreateCharge(ctx, &domain.ChargeRequest{
		Amount:            quote.GrossAmount,
		PayerName:         user.Name,
		PayerDocument:     user.Document,
		ExternalReference: record.ID,
		Expiry:            s.cfg.ChargeExpiry,
	})

	var unavailable *domain.ProviderUnavailableError
	switch {
	case err == nil:
		record.Provider = charge.Provider
		record.ExternalID = charge.ExternalID
		record.QRPayload = charge.QRPayload
		record.UsedFallback = charge.UsedFallback
		record.ExpiresAt = charge.ExpiresAt
	case errors.As(err, &unavailable):
		// Both providers are down. Keep the flow alive with a locally
		// generated placeholder charge and leave the record flagged for
		// reconciliation.
		s.logger.Error().Err(err).
			Str("settlement_id", record.ID).
			Msg("All payment providers failed, degrading to local charge")
		record.Provider = domain.ProviderLocal
		record.ExternalID = "local-" + record.ID
		record.QRPayload = localQRPayload(record.ID, quote.GrossAmount)
		record.Degraded = true
		charge = &domain.Charge{
			ExternalID: record.ExternalID,
			QRPayload:  record.QRPayload,
			ExpiresAt:  record.ExpiresAt,
			Provider:   domain.ProviderLocal,
		}
	default:
		return nil, err
	}

	if err := stores.Settlements.UpdateCharge(ctx, record); err != nil {
		return nil, err
	}
	if record.Degraded {
		meta, _ := json.Marshal(map[string]string{"reason": "provider_unavailable_at_initiation"})
		if err := stores.Settlements.MarkNeedsReprocessing(ctx, record.ID, meta); err != nil {
			s.logger.Err(err).Str("settlement_id", record.ID).Msg("Failed to flag degraded record")
		}
		record.NeedsReprocessing = true
	}

	return &InitiateResult{
		Record:       record,
		QRPayload:    charge.QRPayload,
		QRImage:      charge.QRImage,
		ExpiresAt:    charge.ExpiresAt,
		Degraded:     record.Degraded,
		UsedFallback: record.UsedFallback,
	}, nil
}

// localQRPayload builds a static BR Code used when no provider could issue
// a real charge. It is scannable but routes nowhere; support reconciles
// these manually.
func localQRPayload(recordID string, amount decimal.Decimal) string {
	value := money.Round(amount).StringFixed(2)
	return fmt.Sprintf("00020101021226440014br.gov.bcb.pix0122%s52040000530398654%02d%s5802BR6304",
		recordID, len(value), value)
}

func (s *settlementService) ConfirmFiat(ctx context.Context, tenant *domain.Tenant, recordID string, event *domain.PaymentEvent) (*domain.SettlementRecord, error) {
	stores, err := s.stores(tenant)
	if err != nil {
		return nil, err
	}

	confirmedAt := event.PaidAt
	if confirmedAt.IsZero() {
		confirmedAt = time.Now().UTC()
	}

	claimed, err := stores.Settlements.ClaimForMint(ctx, recordID, event.EndToEndID, confirmedAt)
	if err != nil {
		return nil, err
	}

	record, err := stores.Settlements.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}

	if !claimed {
		// Duplicate delivery: minting already started or finished, or the
		// record was cancelled. Return the record unchanged.
		s.logger.Info().
			Str("settlement_id", recordID).
			Str("ledger_status", string(record.LedgerStatus)).
			Msg("Fiat confirmation replay ignored")
		return record, nil
	}

	s.logger.Info().
		Str("settlement_id", recordID).
		Str("end_to_end_id", event.EndToEndID).
		Str("provider", string(event.Provider)).
		Msg("Fiat confirmed, dispatching ledger mint")

	s.dispatchMint(ctx, tenant, recordID)
	return record, nil
}

// dispatchMint hands the mint to the worker pool, falling back to an inline
// call when no dispatcher is wired or the queue is full. The record is
// already in ledger_pending either way, so the sweep can recover it.
func (s *settlementService) dispatchMint(ctx context.Context, tenant *domain.Tenant, recordID string) {
	if s.dispatcher != nil && s.dispatcher.Enqueue(MintTask{TenantID: tenant.ID, RecordID: recordID}) {
		return
	}
	s.RunLedgerMint(ctx, tenant, recordID)
}

func (s *settlementService) RunLedgerMint(ctx context.Context, tenant *domain.Tenant, recordID string) {
	stores, err := s.stores(tenant)
	if err != nil {
		s.logger.Err(err).Str("settlement_id", recordID).Msg("Mint aborted: no tenant store")
		return
	}

	record, err := stores.Settlements.GetByID(ctx, recordID)
	if err != nil {
		s.logger.Err(err).Str("settlement_id", recordID).Msg("Mint aborted: record load failed")
		return
	}
	if record.LedgerStatus != domain.LedgerPending {
		// Not claimed, or another attempt already reached a terminal
		// status. Nothing to do.
		return
	}

	user, err := stores.Users.GetByID(ctx, record.UserID)
	if err != nil {
		s.logger.Err(err).Str("settlement_id", recordID).Msg("Mint aborted: user load failed")
		return
	}

	receipt, mintErr := s.ledger.Mint(ctx, user.LedgerAddress, record.NetAmount, "", record.ID)
	if mintErr != nil {
		s.logger.Error().Err(mintErr).
			Str("settlement_id", record.ID).
			Str("user_id", user.ID).
			Msg("Ledger mint failed")
		if ok, err := stores.Settlements.SetLedgerFailed(ctx, record.ID, mintErr.Error()); err == nil && ok {
			s.finishRecord(ctx, stores, tenant, record.ID, "deposit_failed")
		}
		return
	}

	ok, err := stores.Settlements.SetLedgerConfirmed(ctx, record.ID, receipt, time.Now().UTC())
	if err != nil || !ok {
		s.logger.Err(err).Bool("applied", ok).
			Str("settlement_id", record.ID).
			Msg("Mint succeeded but terminal write did not apply")
		return
	}

	if err := stores.Users.Credit(ctx, user.ID, record.NetAmount); err != nil {
		s.logger.Err(err).Str("settlement_id", record.ID).Msg("Failed to mirror minted balance")
	}

	s.logger.Info().
		Str("settlement_id", record.ID).
		Str("tx_hash", receipt.TxHash).
		Int64("block_number", receipt.BlockNumber).
		Msg("Deposit settled")
	s.finishRecord(ctx, stores, tenant, record.ID, "deposit_confirmed")
}

// finishRecord reloads a record after a terminal write and fans out the
// best-effort notifications.
func (s *settlementService) finishRecord(ctx context.Context, stores *repositories.TenantStores, tenant *domain.Tenant, recordID, kind string) {
	record, err := stores.Settlements.GetByID(ctx, recordID)
	if err != nil {
		return
	}
	if s.broadcaster != nil {
		s.broadcaster.BroadcastSettlement(record)
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, record.UserID, kind, record)
	}
}

func (s *settlementService) ConfirmLedger(ctx context.Context, tenant *domain.Tenant, recordID string, receipt *domain.ChainReceipt) (*domain.SettlementRecord, error) {
	stores, err := s.stores(tenant)
	if err != nil {
		return nil, err
	}

	record, err := stores.Settlements.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}

	if record.LedgerStatus == domain.LedgerConfirmed {
		if record.TxHash == receipt.TxHash {
			// Replay of the confirmation that already settled this record.
			return record, nil
		}
		return nil, fmt.Errorf("%w: ledger already confirmed by %s", domain.ErrInvalidStateTransition, record.TxHash)
	}
	if record.FiatStatus != domain.FiatConfirmed || record.LedgerStatus != domain.LedgerPending {
		return nil, fmt.Errorf("%w: fiat=%s ledger=%s", domain.ErrInvalidStateTransition, record.FiatStatus, record.LedgerStatus)
	}

	ok, err := stores.Settlements.SetLedgerConfirmed(ctx, recordID, receipt, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost the race with another confirmation between the read and
		// the write; reload and apply the same replay/conflict rules.
		return s.ConfirmLedger(ctx, tenant, recordID, receipt)
	}

	if err := stores.Users.Credit(ctx, record.UserID, record.NetAmount); err != nil {
		s.logger.Err(err).Str("settlement_id", recordID).Msg("Failed to mirror minted balance")
	}
	s.finishRecord(ctx, stores, tenant, recordID, "deposit_confirmed")
	return stores.Settlements.GetByID(ctx, recordID)
}

func (s *settlementService) Cancel(ctx context.Context, tenant *domain.Tenant, recordID, reason string) (*domain.SettlementRecord, error) {
	stores, err := s.stores(tenant)
	if err != nil {
		return nil, err
	}

	ok, err := stores.Settlements.Cancel(ctx, recordID, reason)
	if err != nil {
		return nil, err
	}
	if !ok {
		record, getErr := stores.Settlements.GetByID(ctx, recordID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%w: cannot cancel with fiat=%s ledger=%s",
			domain.ErrInvalidStateTransition, record.FiatStatus, record.LedgerStatus)
	}
	return stores.Settlements.GetByID(ctx, recordID)
}

func (s *settlementService) GetRecord(ctx context.Context, tenant *domain.Tenant, recordID string) (*domain.SettlementRecord, error) {
	stores, err := s.stores(tenant)
	if err != nil {
		return nil, err
	}
	return stores.Settlements.GetByID(ctx, recordID)
}

func (s *settlementService) ProcessWebhook(ctx context.Context, tenant *domain.Tenant, kind domain.ProviderKind, body []byte, header http.Header) {
	events, err := s.router.ParseWebhook(kind, body, header)
	if err != nil {
		// Nothing to attach the failure to; the provider still gets its
		// acknowledgment.
		s.logger.Error().Err(err).
			Str("provider", string(kind)).
			Str("tenant_id", tenant.ID).
			Msg("Webhook rejected")
		return
	}

	for i := range events {
		s.processPaymentEvent(ctx, tenant, &events[i])
	}
}

func (s *settlementService) processPaymentEvent(ctx context.Context, tenant *domain.Tenant, event *domain.PaymentEvent) {
	stores, err := s.stores(tenant)
	if err != nil {
		s.logger.Err(err).Str("tenant_id", tenant.ID).Msg("Webhook processing has no tenant store")
		return
	}

	record, err := stores.Settlements.GetByID(ctx, event.ReferenceID)
	if errors.Is(err, domain.ErrRecordNotFound) && event.ExternalID != "" {
		record, err = stores.Settlements.GetByExternalID(ctx, event.ExternalID)
	}
	if err != nil {
		s.logger.Warn().Err(err).
			Str("reference_id", event.ReferenceID).
			Str("external_id", event.ExternalID).
			Msg("Webhook for unknown settlement record")
		return
	}

	if record.Terminal() {
		// Duplicate delivery after settlement: acknowledged, no state
		// change, no new mint.
		s.logger.Info().
			Str("settlement_id", record.ID).
			Str("overall_status", string(record.OverallStatus)).
			Msg("Webhook replay for settled record ignored")
		return
	}

	if event.Amount.LessThan(record.GrossAmount) {
		meta, _ := json.Marshal(map[string]string{
			"reason":   "amount_mismatch",
			"expected": record.GrossAmount.StringFixed(2),
			"received": event.Amount.StringFixed(2),
		})
		if err := stores.Settlements.MarkNeedsReprocessing(ctx, record.ID, meta); err != nil {
			s.logger.Err(err).Str("settlement_id", record.ID).Msg("Failed to flag amount mismatch")
		}
		return
	}

	if _, err := s.ConfirmFiat(ctx, tenant, record.ID, event); err != nil {
		s.logger.Error().Err(err).Str("settlement_id", record.ID).Msg("Webhook confirmation failed")
		meta, _ := json.Marshal(map[string]string{"reason": "confirm_failed", "error": err.Error()})
		if err := stores.Settlements.MarkNeedsReprocessing(ctx, record.ID, meta); err != nil {
			s.logger.Err(err).Str("settlement_id", record.ID).Msg("Failed to flag webhook failure")
		}
	}
}

func (s *settlementService) Reprocess(ctx context.Context, tenant *domain.Tenant, recordID string) (*domain.SettlementRecord, error) {
	stores, err := s.stores(tenant)
	if err != nil {
		return nil, err
	}

	record, err := stores.Settlements.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}

	if record.LedgerStatus == domain.LedgerPending {
		s.dispatchMint(ctx, tenant, record.ID)
		return stores.Settlements.GetByID(ctx, recordID)
	}
	if record.Terminal() {
		return record, nil
	}

	if record.Provider == domain.ProviderLocal {
		return s.replaceDegradedCharge(ctx, stores, tenant, record)
	}

	if record.ExternalID != "" {
		status, err := s.router.CheckStatus(ctx, record.ExternalID)
		if err != nil {
			return nil, err
		}
		switch status.Status {
		case domain.ChargeApproved:
			event := &domain.PaymentEvent{
				ReferenceID: record.ID,
				ExternalID:  record.ExternalID,
				Amount:      record.GrossAmount,
				Provider:    status.Provider,
			}
			if _, err := s.ConfirmFiat(ctx, tenant, record.ID, event); err != nil {
				return nil, err
			}
			if err := stores.Settlements.ClearNeedsReprocessing(ctx, record.ID); err != nil {
				s.logger.Err(err).Str("settlement_id", record.ID).Msg("Failed to clear reprocessing flag")
			}
		case domain.ChargeExpired:
			if _, err := stores.Settlements.Cancel(ctx, record.ID, "charge_expired"); err != nil {
				return nil, err
			}
		}
	}

	return stores.Settlements.GetByID(ctx, recordID)
}

// replaceDegradedCharge retries charge creation for a record that was
// initiated with a local placeholder while every provider was down. The
// placeholder QR routes nowhere, so until a real charge replaces it the
// record stays flagged and each sweep tries again.
func (s *settlementService) replaceDegradedCharge(ctx context.Context, stores *repositories.TenantStores, tenant *domain.Tenant, record *domain.SettlementRecord) (*domain.SettlementRecord, error) {
	user, err := stores.Users.GetByID(ctx, record.UserID)
	if err != nil {
		return nil, err
	}

	charge, err := s.router.CreateCharge(ctx, &domain.ChargeRequest{
		Amount:            record.GrossAmount,
		PayerName:         user.Name,
		PayerDocument:     user.Document,
		ExternalReference: record.ID,
		Expiry:            s.cfg.ChargeExpiry,
	})
	if err != nil {
		var unavailable *domain.ProviderUnavailableError
		if errors.As(err, &unavailable) {
			// Still no provider; keep the flag and let the next sweep retry.
			s.logger.Warn().Err(err).
				Str("settlement_id", record.ID).
				Msg("Providers still unavailable, degraded charge kept")
			return record, nil
		}
		return nil, err
	}

	record.Provider = charge.Provider
	record.ExternalID = charge.ExternalID
	record.QRPayload = charge.QRPayload
	record.UsedFallback = charge.UsedFallback
	record.Degraded = false
	record.ExpiresAt = charge.ExpiresAt
	if err := stores.Settlements.UpdateCharge(ctx, record); err != nil {
		return nil, err
	}
	if err := stores.Settlements.ClearNeedsReprocessing(ctx, record.ID); err != nil {
		s.logger.Err(err).Str("settlement_id", record.ID).Msg("Failed to clear reprocessing flag")
	}

	s.logger.Info().
		Str("settlement_id", record.ID).
		Str("provider", string(charge.Provider)).
		Str("external_id", charge.ExternalID).
		Msg("Degraded charge replaced with a real provider charge")
	return stores.Settlements.GetByID(ctx, record.ID)
}

func (s *settlementService) ReconcileTenant(ctx context.Context, tenant *domain.Tenant) (int, int, error) {
	stores, err := s.stores(tenant)
	if err != nil {
		return 0, 0, err
	}

	requeued := 0
	stuck, err := stores.Settlements.ListStuckPending(ctx, time.Now().UTC().Add(-s.cfg.StuckThreshold), s.cfg.ReconcileBatchSize)
	if err != nil {
		return 0, 0, err
	}
	for i := range stuck {
		s.logger.Warn().
			Str("settlement_id", stuck[i].ID).
			Time("updated_at", stuck[i].UpdatedAt).
			Msg("Requeuing settlement stuck in ledger_pending")
		s.dispatchMint(ctx, tenant, stuck[i].ID)
		requeued++
	}

	reprocessed := 0
	flagged, err := stores.Settlements.ListNeedsReprocessing(ctx, s.cfg.ReconcileBatchSize)
	if err != nil {
		return requeued, 0, err
	}
	for i := range flagged {
		if _, err := s.Reprocess(ctx, tenant, flagged[i].ID); err != nil {
			s.logger.Err(err).Str("settlement_id", flagged[i].ID).Msg("Reconciliation reprocess failed")
			continue
		}
		reprocessed++
	}

	return requeued, reprocessed, nil
}
