package tenantrepo

import (
	"context"

	"github.com/juan-silveira/clube-navi-sub003/internal/domain"
)

// ITenantRepository reads the tenant registry in the master store. Tenant
// rows are written by billing/admin flows outside this service.
type ITenantRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Tenant, error)
	GetByCustomDomain(ctx context.Context, domainName string) (*domain.Tenant, error)

	// ListActive feeds the reconciliation sweep; it returns tenants whose
	// requests would pass the access check.
	ListActive(ctx context.Context) ([]domain.Tenant, error)
}
