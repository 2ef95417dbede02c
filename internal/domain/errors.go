package domain

import (
	"errors"
	"fmt"
)

type TenantAccessKind string

const (
	TenantAccessNotFound        TenantAccessKind = "not_found"
	TenantAccessSuspended       TenantAccessKind = "suspended"
	TenantAccessInactive        TenantAccessKind = "inactive"
	TenantAccessPaymentRequired TenantAccessKind = "payment_required"
)

// TenantAccessError carries which of the four tenant failure kinds applies
// so callers can map billing problems and terminations to different
// responses.
type TenantAccessError struct {
	Kind       TenantAccessKind
	Identifier string
}

func (e *TenantAccessError) Error() string {
	return fmt.Sprintf("tenant %q: %s", e.Identifier, e.Kind)
}

// ProviderUnavailableError means both the primary and the fallback payment
// provider failed. Both underlying errors are kept for diagnostics.
type ProviderUnavailableError struct {
	PrimaryErr  error
	FallbackErr error
}

func (e *ProviderUnavailableError) Error() string {
	if e.FallbackErr == nil {
		return fmt.Sprintf("payment provider unavailable: primary: %v (no fallback configured)", e.PrimaryErr)
	}
	return fmt.Sprintf("payment provider unavailable: primary: %v; fallback: %v", e.PrimaryErr, e.FallbackErr)
}

// LedgerExecutionError records a failed mint or burn. It is never retried
// automatically; recovery goes through reconciliation.
type LedgerExecutionError struct {
	Operation   string
	ReferenceID string
	Reason      string
}

func (e *LedgerExecutionError) Error() string {
	return fmt.Sprintf("ledger %s failed for %s: %s", e.Operation, e.ReferenceID, e.Reason)
}

var (
	ErrInvalidStateTransition = errors.New("invalid settlement state transition")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrRecordNotFound         = errors.New("record not found")
	ErrUserNotFound           = errors.New("user not found")
	ErrMissingLedgerAddress   = errors.New("user has no ledger address")
)
