package domain

import (
	"time"
)

type TenantStatus string
type SubscriptionStatus string

const (
	TenantStatusTrial     TenantStatus = "trial"
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
	TenantStatusCancelled TenantStatus = "cancelled"
	TenantStatusExpired   TenantStatus = "expired"
)

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
	SubscriptionSuspended SubscriptionStatus = "suspended"
)

// DataStoreCredentials are the per-tenant database credentials kept in the
// master store. Every tenant gets a fully isolated database.
type DataStoreCredentials struct {
	Host     string `json:"host" db:"db_host"`
	Port     string `json:"port" db:"db_port"`
	User     string `json:"user" db:"db_user"`
	Password string `json:"-" db:"db_password"`
	DBName   string `json:"db_name" db:"db_name"`
	SSLMode  string `json:"ssl_mode" db:"db_ssl_mode"`
}

type CashbackSplitConfig struct {
	ConsumerPercent         string `json:"consumer_percent"`
	PlatformPercent         string `json:"platform_percent"`
	ConsumerReferrerPercent string `json:"consumer_referrer_percent"`
	MerchantReferrerPercent string `json:"merchant_referrer_percent"`
}

type WithdrawalConfig struct {
	MinAmount      string `json:"min_amount"`
	MaxAmount      string `json:"max_amount"`
	FeePercent     string `json:"fee_percent"`
	RequiresReview bool   `json:"requires_review"`
}

type TenantBranding struct {
	DisplayName string `json:"display_name"`
	LogoURL     string `json:"logo_url"`
	PrimaryHex  string `json:"primary_hex"`
}

type Tenant struct {
	ID                 string               `json:"id" db:"id"`
	Slug               string               `json:"slug" db:"slug"`
	CustomDomain       string               `json:"custom_domain" db:"custom_domain"`
	Status             TenantStatus         `json:"status" db:"status"`
	SubscriptionStatus SubscriptionStatus   `json:"subscription_status" db:"subscription_status"`
	Credentials        DataStoreCredentials `json:"-"`
	Branding           TenantBranding       `json:"branding"`
	CashbackSplit      CashbackSplitConfig  `json:"cashback_split"`
	Withdrawal         WithdrawalConfig     `json:"withdrawal"`
	CreatedAt          time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at" db:"updated_at"`
}

// Accessible reports whether requests for this tenant may proceed, and if
// not, which access error applies. Suspension is checked before the
// subscription so a suspended tenant never reads as a billing problem.
func (t *Tenant) Accessible() error {
	switch t.Status {
	case TenantStatusSuspended:
		return &TenantAccessError{Kind: TenantAccessSuspended, Identifier: t.Slug}
	case TenantStatusCancelled, TenantStatusExpired:
		return &TenantAccessError{Kind: TenantAccessInactive, Identifier: t.Slug}
	}
	if t.SubscriptionStatus == SubscriptionPastDue || t.SubscriptionStatus == SubscriptionSuspended {
		return &TenantAccessError{Kind: TenantAccessPaymentRequired, Identifier: t.Slug}
	}
	return nil
}
