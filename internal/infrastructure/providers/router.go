package providers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/juan-silveira/clube-navi-sub003/internal/domain"
	"github.com/juan-silveira/clube-navi-sub003/internal/domain/interfaces"
)

// Router fronts the configured primary provider with an optional fallback.
// Charge creation fails over and tags the result; status checks fail over
// and degrade to a soft pending answer rather than erroring, since polling
// loops must never crash.
type Router struct {
	primary  interfaces.PaymentProvider
	fallback interfaces.PaymentProvider
	logger   zerolog.Logger
}

func NewRouter(primary, fallback interfaces.PaymentProvider, logger zerolog.Logger) *Router {
	return &Router{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *Router) Primary() interfaces.PaymentProvider { return r.primary }

// ByKind returns the provider that owns a webhook payload shape.
func (r *Router) ByKind(kind domain.ProviderKind) interfaces.PaymentProvider {
	if r.primary != nil && r.primary.Kind() == kind {
		return r.primary
	}
	if r.fallback != nil && r.fallback.Kind() == kind {
		return r.fallback
	}
	return nil
}

func (r *Router) CreateCharge(ctx context.Context, req *domain.ChargeRequest) (*domain.Charge, error) {
	charge, primaryErr := r.primary.CreateCharge(ctx, req)
	if primaryErr == nil {
		return charge, nil
	}
	r.logger.Warn().Err(primaryErr).
		Str("provider", string(r.primary.Kind())).
		Str("reference", req.ExternalReference).
		Msg("Primary provider failed to create charge")

	if r.fallback == nil {
		return nil, &domain.ProviderUnavailableError{PrimaryErr: primaryErr}
	}

	charge, fallbackErr := r.fallback.CreateCharge(ctx, req)
	if fallbackErr != nil {
		r.logger.Error().Err(fallbackErr).
			Str("provider", string(r.fallback.Kind())).
			Str("reference", req.ExternalReference).
			Msg("Fallback provider failed to create charge")
		return nil, &domain.ProviderUnavailableError{PrimaryErr: primaryErr, FallbackErr: fallbackErr}
	}

	charge.UsedFallback = true
	return charge, nil
}

func (r *Router) CheckStatus(ctx context.Context, externalID string) (*domain.ChargeStatusResult, error) {
	status, primaryErr := r.primary.CheckStatus(ctx, externalID)
	if primaryErr == nil {
		return &domain.ChargeStatusResult{Status: status, Provider: r.primary.Kind()}, nil
	}
	r.logger.Warn().Err(primaryErr).
		Str("provider", string(r.primary.Kind())).
		Str("external_id", externalID).
		Msg("Primary provider status check failed")

	if r.fallback != nil {
		status, fallbackErr := r.fallback.CheckStatus(ctx, externalID)
		if fallbackErr == nil {
			return &domain.ChargeStatusResult{
				Status:       status,
				Provider:     r.fallback.Kind(),
				UsedFallback: true,
			}, nil
		}
		r.logger.Error().Err(fallbackErr).
			Str("provider", string(r.fallback.Kind())).
			Str("external_id", externalID).
			Msg("Fallback provider status check failed")
	}

	// Soft pending: polling callers treat this as "ask again later".
	return &domain.ChargeStatusResult{Status: domain.ChargePending, Soft: true}, nil
}

// ParseWebhook dispatches to the provider a webhook belongs to.
func (r *Router) ParseWebhook(kind domain.ProviderKind, body []byte, header http.Header) ([]domain.PaymentEvent, error) {
	provider := r.ByKind(kind)
	if provider == nil {
		return nil, fmt.Errorf("no provider configured for kind %q", kind)
	}
	return provider.ParseWebhook(body, header)
}
