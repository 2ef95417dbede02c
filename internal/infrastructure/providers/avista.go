package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/juan-silveira/clube-navi-sub003/internal/domain"
	"github.com/juan-silveira/clube-navi-sub003/internal/domain/interfaces"
	"github.com/juan-silveira/clube-navi-sub003/pkg/config"
	"github.com/juan-silveira/clube-navi-sub003/pkg/money"
)

// avistaClient talks to the Avista payment API. Webhooks arrive as a single
// JSON object with an event tag and a payment body; Avista does not sign
// its deliveries.
type avistaClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	logger     zerolog.Logger
}

func NewAvista(cfg config.AvistaProviderConfig, logger zerolog.Logger) interfaces.PaymentProvider {
	return &avistaClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryBackoffBase,
		logger:     logger,
	}
}

func (c *avistaClient) Kind() domain.ProviderKind {
	return domain.ProviderAvista
}

type avistaChargeRequest struct {
	BillingType       string `json:"billing_type"`
	Value             string `json:"value"`
	CustomerName      string `json:"customer_name"`
	CustomerDocument  string `json:"customer_document"`
	ExternalReference string `json:"external_reference"`
	DueSeconds        int64  `json:"due_seconds"`
}

type avistaChargeResponse struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	QRPayload      string `json:"pix_copy_paste"`
	QRImageBase64  string `json:"pix_qr_code"`
	ExpirationDate string `json:"expiration_date"`
}

func (c *avistaClient) CreateCharge(ctx context.Context, req *domain.ChargeRequest) (*domain.Charge, error) {
	payload := avistaChargeRequest{
		BillingType:       "PIX",
		Value:             money.Round(req.Amount).StringFixed(2),
		CustomerName:      req.PayerName,
		CustomerDocument:  req.PayerDocument,
		ExternalReference: req.ExternalReference,
		DueSeconds:        int64(req.Expiry.Seconds()),
	}

	var resp avistaChargeResponse
	if err := c.makeRequest(ctx, http.MethodPost, "/v3/payments", payload, &resp); err != nil {
		return nil, fmt.Errorf("avista create charge: %w", err)
	}

	expiresAt, err := time.Parse(time.RFC3339, resp.ExpirationDate)
	if err != nil {
		expiresAt = time.Now().Add(req.Expiry)
	}

	return &domain.Charge{
		ExternalID: resp.ID,
		QRPayload:  resp.QRPayload,
		QRImage:    resp.QRImageBase64,
		Amount:     req.Amount,
		ExpiresAt:  expiresAt,
		Provider:   domain.ProviderAvista,
	}, nil
}

func (c *avistaClient) CheckStatus(ctx context.Context, externalID string) (domain.ChargeStatus, error) {
	var resp avistaChargeResponse
	err := c.makeRequest(ctx, http.MethodGet, "/v3/payments/"+externalID, nil, &resp)
	if err != nil {
		if isNotFound(err) {
			return domain.ChargeNotFound, nil
		}
		return "", fmt.Errorf("avista check status: %w", err)
	}
	return normalizeAvistaStatus(resp.Status), nil
}

func normalizeAvistaStatus(status string) domain.ChargeStatus {
	switch status {
	case "RECEIVED", "CONFIRMED", "RECEIVED_IN_CASH":
		return domain.ChargeApproved
	case "OVERDUE":
		return domain.ChargeExpired
	case "PENDING", "AWAITING_PAYMENT":
		return domain.ChargePending
	default:
		return domain.ChargePending
	}
}

type avistaWebhook struct {
	Event   string `json:"event"`
	Payment struct {
		ID                string `json:"id"`
		Status            string `json:"status"`
		Value             string `json:"value"`
		ExternalReference string `json:"externalReference"`
		PaymentDate       string `json:"paymentDate"`
		EndToEndID        string `json:"endToEndIdentifier"`
	} `json:"payment"`
	Transfer json.RawMessage `json:"transfer"`
}

// ParseWebhook extracts payment events; non-payment events (transfers,
// refunds) yield no events and no error.
func (c *avistaClient) ParseWebhook(body []byte, _ http.Header) ([]domain.PaymentEvent, error) {
	var hook avistaWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return nil, fmt.Errorf("avista webhook decode: %w", err)
	}

	if hook.Event != "PAYMENT_RECEIVED" && hook.Event != "PAYMENT_CONFIRMED" {
		return nil, nil
	}

	amount, err := decimal.NewFromString(hook.Payment.Value)
	if err != nil {
		return nil, fmt.Errorf("avista webhook amount %q: %w", hook.Payment.Value, err)
	}

	paidAt := time.Now().UTC()
	if hook.Payment.PaymentDate != "" {
		if t, err := time.Parse(time.RFC3339, hook.Payment.PaymentDate); err == nil {
			paidAt = t
		}
	}

	return []domain.PaymentEvent{{
		ReferenceID: hook.Payment.ExternalReference,
		ExternalID:  hook.Payment.ID,
		Amount:      amount,
		PaidAt:      paidAt,
		EndToEndID:  hook.Payment.EndToEndID,
		Provider:    domain.ProviderAvista,
	}}, nil
}

type avistaTransferRequest struct {
	PixKey            string `json:"pix_key"`
	Value             string `json:"value"`
	ExternalReference string `json:"external_reference"`
}

type avistaTransferResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Payout sends fiat out to a PIX key. Avista is the only provider with a
// transfer API, so payouts do not fail over.
func (c *avistaClient) Payout(ctx context.Context, destinationKey string, amount decimal.Decimal, referenceID string) (string, error) {
	payload := avistaTransferRequest{
		PixKey:            destinationKey,
		Value:             money.Round(amount).StringFixed(2),
		ExternalReference: referenceID,
	}

	var resp avistaTransferResponse
	if err := c.makeRequest(ctx, http.MethodPost, "/v3/transfers", payload, &resp); err != nil {
		return "", fmt.Errorf("avista payout: %w", err)
	}
	return resp.ID, nil
}

type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.status, e.body)
}

func isNotFound(err error) bool {
	var statusErr *httpStatusError
	return asStatusError(err, &statusErr) && statusErr.status == http.StatusNotFound
}

func (c *avistaClient) makeRequest(ctx context.Context, method, endpoint string, body interface{}, response interface{}) error {
	return doRequest(ctx, c.httpClient, c.logger, requestSpec{
		method:     method,
		url:        c.baseURL + endpoint,
		body:       body,
		maxRetries: c.maxRetries,
		retryDelay: c.retryDelay,
		headers:    map[string]string{"access_token": c.apiKey},
	}, response)
}
