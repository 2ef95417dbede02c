package providers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
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

// SignatureHeader carries the HMAC-SHA256 of the raw webhook body, hex
// encoded, when the Pixefi account has a webhook secret configured.
const SignatureHeader = "X-Pixefi-Signature"

// pixefiClient talks to the Pixefi PSP. Webhooks deliver a `pix` array and
// are optionally HMAC signed over the raw body.
type pixefiClient struct {
	baseURL       string
	clientID      string
	clientSecret  string
	pixKey        string
	webhookSecret string
	httpClient    *http.Client
	maxRetries    int
	retryDelay    time.Duration
	logger        zerolog.Logger
}

func NewPixefi(cfg config.PixefiProviderConfig, logger zerolog.Logger) interfaces.PaymentProvider {
	return &pixefiClient{
		baseURL:       cfg.BaseURL,
		clientID:      cfg.ClientID,
		clientSecret:  cfg.ClientSecret,
		pixKey:        cfg.PixKey,
		webhookSecret: cfg.WebhookSecret,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryBackoffBase,
		logger:     logger,
	}
}

func (c *pixefiClient) Kind() domain.ProviderKind {
	return domain.ProviderPixefi
}

type pixefiCobRequest struct {
	Calendario struct {
		Expiracao int64 `json:"expiracao"`
	} `json:"calendario"`
	Valor struct {
		Original string `json:"original"`
	} `json:"valor"`
	Chave    string `json:"chave"`
	Devedor  struct {
		Nome string `json:"nome"`
		CPF  string `json:"cpf"`
	} `json:"devedor"`
	TxID string `json:"txid"`
}

type pixefiCobResponse struct {
	TxID          string `json:"txid"`
	Status        string `json:"status"`
	PixCopiaECola string `json:"pixCopiaECola"`
	QRCodeImagem  string `json:"imagemQrcode"`
	Calendario    struct {
		Criacao   string `json:"criacao"`
		Expiracao int64  `json:"expiracao"`
	} `json:"calendario"`
}

func (c *pixefiClient) CreateCharge(ctx context.Context, req *domain.ChargeRequest) (*domain.Charge, error) {
	var payload pixefiCobRequest
	payload.Calendario.Expiracao = int64(req.Expiry.Seconds())
	payload.Valor.Original = money.Round(req.Amount).StringFixed(2)
	payload.Chave = c.pixKey
	payload.Devedor.Nome = req.PayerName
	payload.Devedor.CPF = req.PayerDocument
	payload.TxID = req.ExternalReference

	var resp pixefiCobResponse
	if err := c.makeRequest(ctx, http.MethodPut, "/v2/cob/"+req.ExternalReference, payload, &resp); err != nil {
		return nil, fmt.Errorf("pixefi create charge: %w", err)
	}

	expiresAt := time.Now().Add(req.Expiry)
	if created, err := time.Parse(time.RFC3339, resp.Calendario.Criacao); err == nil {
		expiresAt = created.Add(time.Duration(resp.Calendario.Expiracao) * time.Second)
	}

	return &domain.Charge{
		ExternalID: resp.TxID,
		QRPayload:  resp.PixCopiaECola,
		QRImage:    resp.QRCodeImagem,
		Amount:     req.Amount,
		ExpiresAt:  expiresAt,
		Provider:   domain.ProviderPixefi,
	}, nil
}

func (c *pixefiClient) CheckStatus(ctx context.Context, externalID string) (domain.ChargeStatus, error) {
	var resp pixefiCobResponse
	err := c.makeRequest(ctx, http.MethodGet, "/v2/cob/"+externalID, nil, &resp)
	if err != nil {
		if isNotFound(err) {
			return domain.ChargeNotFound, nil
		}
		return "", fmt.Errorf("pixefi check status: %w", err)
	}
	return normalizePixefiStatus(resp.Status), nil
}

func normalizePixefiStatus(status string) domain.ChargeStatus {
	switch status {
	case "CONCLUIDA":
		return domain.ChargeApproved
	case "REMOVIDA_PELO_USUARIO_RECEBEDOR", "REMOVIDA_PELO_PSP":
		return domain.ChargeExpired
	case "ATIVA":
		return domain.ChargePending
	default:
		return domain.ChargePending
	}
}

type pixefiWebhook struct {
	Pix []struct {
		TxID       string `json:"txid"`
		Horario    string `json:"horario"`
		Valor      string `json:"valor"`
		Chave      string `json:"chave"`
		EndToEndID string `json:"endToEndId"`
	} `json:"pix"`
}

func (c *pixefiClient) ParseWebhook(body []byte, header http.Header) ([]domain.PaymentEvent, error) {
	if c.webhookSecret != "" {
		if err := c.verifySignature(body, header.Get(SignatureHeader)); err != nil {
			return nil, err
		}
	}

	var hook pixefiWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return nil, fmt.Errorf("pixefi webhook decode: %w", err)
	}

	events := make([]domain.PaymentEvent, 0, len(hook.Pix))
	for _, pix := range hook.Pix {
		amount, err := decimal.NewFromString(pix.Valor)
		if err != nil {
			return nil, fmt.Errorf("pixefi webhook amount %q: %w", pix.Valor, err)
		}

		paidAt := time.Now().UTC()
		if t, err := time.Parse(time.RFC3339, pix.Horario); err == nil {
			paidAt = t
		}

		events = append(events, domain.PaymentEvent{
			ReferenceID: pix.TxID,
			ExternalID:  pix.TxID,
			Amount:      amount,
			PaidAt:      paidAt,
			EndToEndID:  pix.EndToEndID,
			Provider:    domain.ProviderPixefi,
		})
	}
	return events, nil
}

func (c *pixefiClient) verifySignature(body []byte, signature string) error {
	if signature == "" {
		return fmt.Errorf("pixefi webhook: missing %s header", SignatureHeader)
	}
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("pixefi webhook: signature mismatch")
	}
	return nil
}

func (c *pixefiClient) makeRequest(ctx context.Context, method, endpoint string, body interface{}, response interface{}) error {
	return doRequest(ctx, c.httpClient, c.logger, requestSpec{
		method:     method,
		url:        c.baseURL + endpoint,
		body:       body,
		maxRetries: c.maxRetries,
		retryDelay: c.retryDelay,
		headers: map[string]string{
			"Client-Id":     c.clientID,
			"Client-Secret": c.clientSecret,
		},
	}, response)
}
