package feerepo

import (
	"context"

	"github.com/juan-silveira/clube-navi-sub003/internal/domain"
)

type IFeeRepository interface {
	// GetProfile returns nil without error when the user has no profile
	// yet; the fee calculator lazily creates one with system defaults.
	GetProfile(ctx context.Context, userID string) (*domain.UserFeeProfile, error)
	UpsertProfile(ctx context.Context, profile *domain.UserFeeProfile) error
}
