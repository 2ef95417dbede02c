package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProviderKind string

const (
	ProviderAvista ProviderKind = "avista"
	ProviderPixefi ProviderKind = "pixefi"
	ProviderLocal  ProviderKind = "local"
)

type ChargeStatus string

const (
	ChargePending  ChargeStatus = "pending"
	ChargeApproved ChargeStatus = "approved"
	ChargeExpired  ChargeStatus = "expired"
	ChargeNotFound ChargeStatus = "not_found"
)

type ChargeRequest struct {
	Amount            decimal.Decimal `json:"amount"`
	PayerName         string          `json:"payer_name"`
	PayerDocument     string          `json:"payer_document"`
	ExternalReference string          `json:"external_reference"`
	Expiry            time.Duration   `json:"expiry"`
}

type Charge struct {
	ExternalID   string          `json:"external_id"`
	QRPayload    string          `json:"qr_payload"`
	QRImage      string          `json:"qr_image"`
	Amount       decimal.Decimal `json:"amount"`
	ExpiresAt    time.Time       `json:"expires_at"`
	Provider     ProviderKind    `json:"provider"`
	UsedFallback bool            `json:"used_fallback"`
}

type ChargeStatusResult struct {
	Status       ChargeStatus `json:"status"`
	Provider     ProviderKind `json:"provider"`
	UsedFallback bool         `json:"used_fallback"`
	// Soft reports that both providers were unreachable and the pending
	// status is a placeholder, not an answer.
	Soft bool `json:"soft"`
}

// PaymentEvent is the normalized form of a provider webhook entry.
type PaymentEvent struct {
	ReferenceID string          `json:"reference_id"`
	ExternalID  string          `json:"external_id"`
	Amount      decimal.Decimal `json:"amount"`
	PaidAt      time.Time       `json:"paid_at"`
	EndToEndID  string          `json:"end_to_end_id"`
	Provider    ProviderKind    `json:"provider"`
}
