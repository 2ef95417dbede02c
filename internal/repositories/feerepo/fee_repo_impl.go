package feerepo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/juan-silveira/clube-navi-sub003/internal/domain"
)

type FeeRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func New(db *sql.DB, logger zerolog.Logger) IFeeRepository {
	return &FeeRepository{
		db:     db,
		logger: logger,
	}
}

func (r *FeeRepository) GetProfile(ctx context.Context, userID string) (*domain.UserFeeProfile, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT user_id, deposit_fixed_fee, deposit_percent_fee,
		       withdraw_fixed_fee, withdraw_percent_fee, vip_tier,
		       valid_from, valid_until
		FROM user_fee_profiles WHERE user_id = $1`, userID)

	var p domain.UserFeeProfile
	var validUntil sql.NullTime
	err := row.Scan(&p.UserID, &p.DepositFixedFee, &p.DepositPercentFee,
		&p.WithdrawFixedFee, &p.WithdrawPercentFee, &p.VIPTier,
		&p.ValidFrom, &validUntil)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if validUntil.Valid {
		p.ValidUntil = validUntil.Time
	}

	p.TransferFees, err = r.loadTransferFees(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *FeeRepository) loadTransferFees(ctx context.Context, userID string) (map[domain.TransferFeeKey]decimal.Decimal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT network, token_id, fee FROM user_transfer_fees WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fees := make(map[domain.TransferFeeKey]decimal.Decimal)
	for rows.Next() {
		var key domain.TransferFeeKey
		var fee decimal.Decimal
		if err := rows.Scan(&key.Network, &key.TokenID, &fee); err != nil {
			return nil, err
		}
		fees[key] = fee
	}
	return fees, rows.Err()
}

func (r *FeeRepository) UpsertProfile(ctx context.Context, profile *domain.UserFeeProfile) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `DELETE FROM user_fee_profiles WHERE user_id = $1`, profile.UserID)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_fee_profiles (user_id, deposit_fixed_fee, deposit_percent_fee,
			withdraw_fixed_fee, withdraw_percent_fee, vip_tier, valid_from, valid_until)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		profile.UserID, profile.DepositFixedFee, profile.DepositPercentFee,
		profile.WithdrawFixedFee, profile.WithdrawPercentFee, profile.VIPTier,
		profile.ValidFrom.UTC(), nullableTime(profile.ValidUntil),
	)
	if err != nil {
		r.logger.Err(err).Str("user_id", profile.UserID).Msg("Failed to upsert fee profile")
		return err
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM user_transfer_fees WHERE user_id = $1`, profile.UserID)
	if err != nil {
		return err
	}
	for key, fee := range profile.TransferFees {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO user_transfer_fees (user_id, network, token_id, fee)
			VALUES ($1,$2,$3,$4)`,
			profile.UserID, key.Network, key.TokenID, fee,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func nullableTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}
