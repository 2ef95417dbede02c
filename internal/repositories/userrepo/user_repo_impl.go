package userrepo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/juan-silveira/clube-navi-sub003/internal/domain"
)

type UserRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func New(db *sql.DB, logger zerolog.Logger) IUserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, document, ledger_address, balance, created_at, updated_at
		FROM users WHERE id = $1`, id)

	var u domain.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Document, &u.LedgerAddress,
		&u.Balance, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) Debit(ctx context.Context, id string, amount decimal.Decimal) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET balance = balance - $1, updated_at = $2
		WHERE id = $3 AND balance >= $1`,
		amount, time.Now().UTC(), id,
	)
	if err != nil {
		r.logger.Err(err).Str("user_id", id).Msg("Failed to debit user balance")
		return false, err
	}
	n, err := res.RowsAffected()
	return err == nil && n > 0, nil
}

func (r *UserRepository) Credit(ctx context.Context, id string, amount decimal.Decimal) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET balance = balance + $1, updated_at = $2 WHERE id = $3`,
		amount, time.Now().UTC(), id,
	)
	if err != nil {
		r.logger.Err(err).Str("user_id", id).Msg("Failed to credit user balance")
	}
	return err
}
