package repositories

import (
	"database/sql"

	"github.com/rs/zerolog"

	"github.com/juan-silveira/clube-navi-sub003/internal/repositories/feerepo"
	"github.com/juan-silveira/clube-navi-sub003/internal/repositories/settlementrepo"
	"github.com/juan-silveira/clube-navi-sub003/internal/repositories/userrepo"
	"github.com/juan-silveira/clube-navi-sub003/internal/repositories/withdrawalrepo"
)

// TenantStores bundles the repositories bound to one tenant's store
// handle. Construction is cheap; services build one per resolved tenant.
type TenantStores struct {
	Settlements settlementrepo.ISettlementRepository
	Withdrawals withdrawalrepo.IWithdrawalRepository
	Fees        feerepo.IFeeRepository
	Users       userrepo.IUserRepository
}

func NewTenantStores(db *sql.DB, logger zerolog.Logger) *TenantStores {
	return &TenantStores{
		Settlements: settlementrepo.New(db, logger),
		Withdrawals: withdrawalrepo.New(db, logger),
		Fees:        feerepo.New(db, logger),
		Users:       userrepo.New(db, logger),
	}
}
