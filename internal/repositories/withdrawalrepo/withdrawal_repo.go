package withdrawalrepo

import (
	"context"

	"github.com/juan-silveira/clube-navi-sub003/internal/domain"
)

type IWithdrawalRepository interface {
	Create(ctx context.Context, withdrawal *domain.Withdrawal) error
	GetByID(ctx context.Context, id string) (*domain.Withdrawal, error)

	// SetStatus is a guarded transition: the update only applies while the
	// row is still in the expected status.
	SetStatus(ctx context.Context, id string, from, to domain.WithdrawalStatus) (bool, error)
	SetProcessing(ctx context.Context, id, burnTxHash string) (bool, error)
	SetConfirmed(ctx context.Context, id, externalID string) (bool, error)
	SetFailed(ctx context.Context, id, reversalTxHash, reason string) (bool, error)
	ListByStatus(ctx context.Context, status domain.WithdrawalStatus, limit, offset int) ([]domain.Withdrawal, error)
}
