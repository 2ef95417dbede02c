package tenantrepo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"
	"github.com/sqlc-dev/pqtype"

	"github.com/juan-silveira/clube-navi-sub003/internal/domain"
)

type TenantRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func New(db *sql.DB, logger zerolog.Logger) ITenantRepository {
	return &TenantRepository{
		db:     db,
		logger: logger,
	}
}

// tenantConfig is the JSONB config column: branding plus the cashback and
// withdrawal settings cached from the admin panel.
type tenantConfig struct {
	Branding      domain.TenantBranding      `json:"branding"`
	CashbackSplit domain.CashbackSplitConfig `json:"cashback_split"`
	Withdrawal    domain.WithdrawalConfig    `json:"withdrawal"`
}

const tenantColumns = `id, slug, custom_domain, status, subscription_status,
	db_host, db_port, db_user, db_password, db_name, db_ssl_mode,
	config, created_at, updated_at`

func (r *TenantRepository) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	return r.getBy(ctx, "id", id)
}

func (r *TenantRepository) GetBySlug(ctx context.Context, slug string) (*domain.Tenant, error) {
	return r.getBy(ctx, "slug", slug)
}

func (r *TenantRepository) GetByCustomDomain(ctx context.Context, domainName string) (*domain.Tenant, error) {
	return r.getBy(ctx, "custom_domain", domainName)
}

func (r *TenantRepository) ListActive(ctx context.Context) ([]domain.Tenant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+tenantColumns+` FROM tenants
		WHERE status IN ($1, $2) AND subscription_status = $3
		ORDER BY slug ASC`,
		domain.TenantStatusTrial, domain.TenantStatusActive, domain.SubscriptionActive,
	)
	if err != nil {
		r.logger.Err(err).Msg("Failed to list active tenants")
		return nil, err
	}
	defer rows.Close()

	var tenants []domain.Tenant
	for rows.Next() {
		t, err := r.scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, *t)
	}
	return tenants, rows.Err()
}

func (r *TenantRepository) getBy(ctx context.Context, column, value string) (*domain.Tenant, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+tenantColumns+` FROM tenants WHERE `+column+` = $1`, value)

	t, err := r.scanTenant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.TenantAccessError{Kind: domain.TenantAccessNotFound, Identifier: value}
	}
	if err != nil {
		r.logger.Err(err).Str(column, value).Msg("Failed to load tenant")
		return nil, err
	}
	return t, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *TenantRepository) scanTenant(row rowScanner) (*domain.Tenant, error) {
	var t domain.Tenant
	var config pqtype.NullRawMessage
	err := row.Scan(
		&t.ID, &t.Slug, &t.CustomDomain, &t.Status, &t.SubscriptionStatus,
		&t.Credentials.Host, &t.Credentials.Port, &t.Credentials.User,
		&t.Credentials.Password, &t.Credentials.DBName, &t.Credentials.SSLMode,
		&config, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if config.Valid {
		var cfg tenantConfig
		if err := json.Unmarshal(config.RawMessage, &cfg); err != nil {
			r.logger.Err(err).Str("tenant_id", t.ID).Msg("Failed to decode tenant config")
		} else {
			t.Branding = cfg.Branding
			t.CashbackSplit = cfg.CashbackSplit
			t.Withdrawal = cfg.Withdrawal
		}
	}
	return &t, nil
}
