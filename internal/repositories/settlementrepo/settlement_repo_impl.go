package settlementrepo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sqlc-dev/pqtype"

	"github.com/juan-silveira/clube-navi-sub003/internal/domain"
)

type SettlementRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func New(db *sql.DB, logger zerolog.Logger) ISettlementRepository {
	return &SettlementRepository{
		db:     db,
		logger: logger,
	}
}

const settlementColumns = `id, user_id, kind, amount, fee, gross_amount, net_amount,
	fiat_status, ledger_status, overall_status, provider, external_id, end_to_end_id,
	qr_payload, used_fallback, degraded, needs_reprocessing, cancel_reason,
	failure_reason, tx_hash, block_number, gas_used, metadata, expires_at,
	fiat_confirmed_at, settled_at, created_at, updated_at`

func (r *SettlementRepository) Create(ctx context.Context, record *domain.SettlementRecord) error {
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now
	record.OverallStatus = domain.DeriveOverallStatus(record.FiatStatus, record.LedgerStatus)

	metadata := pqtype.NullRawMessage{RawMessage: record.Metadata, Valid: len(record.Metadata) > 0}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settlement_records (`+settlementColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28)`,
		record.ID, record.UserID, record.Kind,
		record.Amount, record.Fee, record.GrossAmount, record.NetAmount,
		record.FiatStatus, record.LedgerStatus, record.OverallStatus,
		record.Provider, record.ExternalID, record.EndToEndID,
		record.QRPayload, record.UsedFallback, record.Degraded, record.NeedsReprocessing,
		record.CancelReason, record.FailureReason, record.TxHash, record.BlockNumber, record.GasUsed,
		metadata, record.ExpiresAt,
		nullTime(record.FiatConfirmedAt), nullTime(record.SettledAt),
		record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		r.logger.Err(err).Str("settlement_id", record.ID).Msg("Failed to insert settlement record")
		return err
	}
	return nil
}

func (r *SettlementRepository) GetByID(ctx context.Context, id string) (*domain.SettlementRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+settlementColumns+` FROM settlement_records WHERE id = $1`, id)
	return r.scanRecord(row)
}

func (r *SettlementRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.SettlementRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+settlementColumns+` FROM settlement_records WHERE external_id = $1`, externalID)
	return r.scanRecord(row)
}

func (r *SettlementRepository) UpdateCharge(ctx context.Context, record *domain.SettlementRecord) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE settlement_records
		SET provider = $1, external_id = $2, qr_payload = $3, used_fallback = $4,
		    degraded = $5, expires_at = $6, updated_at = $7
		WHERE id = $8`,
		record.Provider, record.ExternalID, record.QRPayload, record.UsedFallback,
		record.Degraded, record.ExpiresAt, time.Now().UTC(), record.ID,
	)
	if err != nil {
		r.logger.Err(err).Str("settlement_id", record.ID).Msg("Failed to update settlement charge")
	}
	return err
}

func (r *SettlementRepository) ClaimForMint(ctx context.Context, id, endToEndID string, confirmedAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE settlement_records
		SET fiat_status = $1, ledger_status = $2, end_to_end_id = $3,
		    fiat_confirmed_at = $4, updated_at = $5
		WHERE id = $6 AND ledger_status = '' AND fiat_status != $7`,
		domain.FiatConfirmed, domain.LedgerPending, endToEndID,
		confirmedAt.UTC(), time.Now().UTC(), id, domain.FiatCancelled,
	)
	if err != nil {
		r.logger.Err(err).Str("settlement_id", id).Msg("Failed to claim settlement for mint")
		return false, err
	}
	return affected(res), nil
}

func (r *SettlementRepository) SetLedgerConfirmed(ctx context.Context, id string, receipt *domain.ChainReceipt, settledAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE settlement_records
		SET ledger_status = $1, overall_status = $2, tx_hash = $3, block_number = $4,
		    gas_used = $5, settled_at = $6, updated_at = $7
		WHERE id = $8 AND ledger_status = $9`,
		domain.LedgerConfirmed, domain.OverallConfirmed,
		receipt.TxHash, receipt.BlockNumber, receipt.GasUsed,
		settledAt.UTC(), time.Now().UTC(), id, domain.LedgerPending,
	)
	if err != nil {
		r.logger.Err(err).Str("settlement_id", id).Msg("Failed to confirm ledger status")
		return false, err
	}
	return affected(res), nil
}

func (r *SettlementRepository) SetLedgerFailed(ctx context.Context, id, reason string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE settlement_records
		SET ledger_status = $1, overall_status = $2, failure_reason = $3, updated_at = $4
		WHERE id = $5 AND ledger_status = $6`,
		domain.LedgerFailed, domain.OverallFailed, reason,
		time.Now().UTC(), id, domain.LedgerPending,
	)
	if err != nil {
		r.logger.Err(err).Str("settlement_id", id).Msg("Failed to fail ledger status")
		return false, err
	}
	return affected(res), nil
}

func (r *SettlementRepository) Cancel(ctx context.Context, id, reason string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE settlement_records
		SET fiat_status = $1, overall_status = $2, cancel_reason = $3, updated_at = $4
		WHERE id = $5 AND ledger_status = '' AND fiat_status = $6`,
		domain.FiatCancelled, domain.OverallCancelled, reason,
		time.Now().UTC(), id, domain.FiatPending,
	)
	if err != nil {
		r.logger.Err(err).Str("settlement_id", id).Msg("Failed to cancel settlement record")
		return false, err
	}
	return affected(res), nil
}

func (r *SettlementRepository) MarkNeedsReprocessing(ctx context.Context, id string, metadata []byte) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE settlement_records
		SET needs_reprocessing = $1, metadata = $2, updated_at = $3
		WHERE id = $4`,
		true, pqtype.NullRawMessage{RawMessage: metadata, Valid: len(metadata) > 0},
		time.Now().UTC(), id,
	)
	if err != nil {
		r.logger.Err(err).Str("settlement_id", id).Msg("Failed to mark settlement for reprocessing")
	}
	return err
}

func (r *SettlementRepository) ClearNeedsReprocessing(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE settlement_records SET needs_reprocessing = $1, updated_at = $2 WHERE id = $3`,
		false, time.Now().UTC(), id,
	)
	return err
}

func (r *SettlementRepository) ListStuckPending(ctx context.Context, olderThan time.Time, limit int) ([]domain.SettlementRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+settlementColumns+` FROM settlement_records
		WHERE ledger_status = $1 AND updated_at < $2
		ORDER BY updated_at ASC LIMIT $3`,
		domain.LedgerPending, olderThan.UTC(), limit,
	)
	if err != nil {
		r.logger.Err(err).Msg("Failed to list stuck settlement records")
		return nil, err
	}
	defer rows.Close()
	return r.scanRecords(rows)
}

func (r *SettlementRepository) ListNeedsReprocessing(ctx context.Context, limit int) ([]domain.SettlementRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+settlementColumns+` FROM settlement_records
		WHERE needs_reprocessing = $1
		ORDER BY updated_at ASC LIMIT $2`,
		true, limit,
	)
	if err != nil {
		r.logger.Err(err).Msg("Failed to list settlement records needing reprocessing")
		return nil, err
	}
	defer rows.Close()
	return r.scanRecords(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *SettlementRepository) scanRecord(row rowScanner) (*domain.SettlementRecord, error) {
	var rec domain.SettlementRecord
	var metadata pqtype.NullRawMessage
	var fiatConfirmedAt, settledAt sql.NullTime

	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.Kind,
		&rec.Amount, &rec.Fee, &rec.GrossAmount, &rec.NetAmount,
		&rec.FiatStatus, &rec.LedgerStatus, &rec.OverallStatus,
		&rec.Provider, &rec.ExternalID, &rec.EndToEndID,
		&rec.QRPayload, &rec.UsedFallback, &rec.Degraded, &rec.NeedsReprocessing,
		&rec.CancelReason, &rec.FailureReason, &rec.TxHash, &rec.BlockNumber, &rec.GasUsed,
		&metadata, &rec.ExpiresAt,
		&fiatConfirmedAt, &settledAt,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	if metadata.Valid {
		rec.Metadata = metadata.RawMessage
	}
	if fiatConfirmedAt.Valid {
		rec.FiatConfirmedAt = fiatConfirmedAt.Time
	}
	if settledAt.Valid {
		rec.SettledAt = settledAt.Time
	}
	return &rec, nil
}

func (r *SettlementRepository) scanRecords(rows *sql.Rows) ([]domain.SettlementRecord, error) {
	var records []domain.SettlementRecord
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func affected(res sql.Result) bool {
	n, err := res.RowsAffected()
	return err == nil && n > 0
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}
