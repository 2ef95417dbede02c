package withdrawalrepo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/juan-silveira/clube-navi-sub003/internal/domain"
)

type WithdrawalRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func New(db *sql.DB, logger zerolog.Logger) IWithdrawalRepository {
	return &WithdrawalRepository{
		db:     db,
		logger: logger,
	}
}

const withdrawalColumns = `id, user_id, amount, fee, net_amount, destination_key,
	status, external_id, burn_tx_hash, reversal_tx_hash, failure_reason,
	created_at, updated_at`

func (r *WithdrawalRepository) Create(ctx context.Context, withdrawal *domain.Withdrawal) error {
	now := time.Now().UTC()
	withdrawal.CreatedAt = now
	withdrawal.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO withdrawals (`+withdrawalColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		withdrawal.ID, withdrawal.UserID,
		withdrawal.Amount, withdrawal.Fee, withdrawal.NetAmount,
		withdrawal.DestinationKey, withdrawal.Status, withdrawal.ExternalID,
		withdrawal.BurnTxHash, withdrawal.ReversalTxHash, withdrawal.FailureReason,
		withdrawal.CreatedAt, withdrawal.UpdatedAt,
	)
	if err != nil {
		r.logger.Err(err).Str("withdrawal_id", withdrawal.ID).Msg("Failed to insert withdrawal")
		return err
	}
	return nil
}

func (r *WithdrawalRepository) GetByID(ctx context.Context, id string) (*domain.Withdrawal, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, id)

	var w domain.Withdrawal
	err := row.Scan(
		&w.ID, &w.UserID, &w.Amount, &w.Fee, &w.NetAmount, &w.DestinationKey,
		&w.Status, &w.ExternalID, &w.BurnTxHash, &w.ReversalTxHash, &w.FailureReason,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WithdrawalRepository) SetStatus(ctx context.Context, id string, from, to domain.WithdrawalStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE withdrawals SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		to, time.Now().UTC(), id, from,
	)
	if err != nil {
		r.logger.Err(err).Str("withdrawal_id", id).Msg("Failed to update withdrawal status")
		return false, err
	}
	return affected(res), nil
}

func (r *WithdrawalRepository) SetProcessing(ctx context.Context, id, burnTxHash string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE withdrawals SET status = $1, burn_tx_hash = $2, updated_at = $3
		WHERE id = $4 AND status = $5`,
		domain.WithdrawalStatusProcessing, burnTxHash, time.Now().UTC(),
		id, domain.WithdrawalStatusPending,
	)
	if err != nil {
		r.logger.Err(err).Str("withdrawal_id", id).Msg("Failed to mark withdrawal processing")
		return false, err
	}
	return affected(res), nil
}

func (r *WithdrawalRepository) SetConfirmed(ctx context.Context, id, externalID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE withdrawals SET status = $1, external_id = $2, updated_at = $3
		WHERE id = $4 AND status = $5`,
		domain.WithdrawalStatusConfirmed, externalID, time.Now().UTC(),
		id, domain.WithdrawalStatusProcessing,
	)
	if err != nil {
		r.logger.Err(err).Str("withdrawal_id", id).Msg("Failed to confirm withdrawal")
		return false, err
	}
	return affected(res), nil
}

// SetFailed finishes a reversal; the row must hold the reversing claim.
func (r *WithdrawalRepository) SetFailed(ctx context.Context, id, reversalTxHash, reason string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE withdrawals SET status = $1, reversal_tx_hash = $2, failure_reason = $3, updated_at = $4
		WHERE id = $5 AND status = $6`,
		domain.WithdrawalStatusFailed, reversalTxHash, reason, time.Now().UTC(),
		id, domain.WithdrawalStatusReversing,
	)
	if err != nil {
		r.logger.Err(err).Str("withdrawal_id", id).Msg("Failed to fail withdrawal")
		return false, err
	}
	return affected(res), nil
}

func (r *WithdrawalRepository) ListByStatus(ctx context.Context, status domain.WithdrawalStatus, limit, offset int) ([]domain.Withdrawal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawals
		WHERE status = $1 ORDER BY created_at ASC LIMIT $2 OFFSET $3`,
		status, limit, offset,
	)
	if err != nil {
		r.logger.Err(err).Msg("Failed to list withdrawals")
		return nil, err
	}
	defer rows.Close()

	var withdrawals []domain.Withdrawal
	for rows.Next() {
		var w domain.Withdrawal
		if err := rows.Scan(
			&w.ID, &w.UserID, &w.Amount, &w.Fee, &w.NetAmount, &w.DestinationKey,
			&w.Status, &w.ExternalID, &w.BurnTxHash, &w.ReversalTxHash, &w.FailureReason,
			&w.CreatedAt, &w.UpdatedAt,
		); err != nil {
			return nil, err
		}
		withdrawals = append(withdrawals, w)
	}
	return withdrawals, rows.Err()
}

func affected(res sql.Result) bool {
	n, err := res.RowsAffected()
	return err == nil && n > 0
}
