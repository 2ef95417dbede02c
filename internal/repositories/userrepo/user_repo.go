package userrepo

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/juan-silveira/clube-navi-sub003/internal/domain"
)

type IUserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// Debit subtracts from the user's balance only if enough is available,
	// in a single statement. It reports whether the debit applied.
	Debit(ctx context.Context, id string, amount decimal.Decimal) (bool, error)
	Credit(ctx context.Context, id string, amount decimal.Decimal) error
}
