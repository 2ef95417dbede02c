package providers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/juan-silveira/clube-navi-sub003/internal/domain"
	"github.com/juan-silveira/clube-navi-sub003/pkg/config"
)

func chargeRequest() *domain.ChargeRequest {
	return &domain.ChargeRequest{
		Amount:            decimal.NewFromInt(103),
		PayerName:         "Ana",
		PayerDocument:     "12345678901",
		ExternalReference: "ref-1",
		Expiry:            30 * time.Minute,
	}
}

func newAvistaServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *avistaClient) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewAvista(config.AvistaProviderConfig{
		BaseURL: srv.URL,
		APIKey:  "key",
		Timeout: 2 * time.Second,
	}, zerolog.Nop()).(*avistaClient)
	return srv, client
}

func newPixefiServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *pixefiClient) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewPixefi(config.PixefiProviderConfig{
		BaseURL:      srv.URL,
		ClientID:     "cid",
		ClientSecret: "csec",
		PixKey:       "club@pix.key",
		Timeout:      2 * time.Second,
	}, zerolog.Nop()).(*pixefiClient)
	return srv, client
}

func TestAvistaCreateCharge(t *testing.T) {
	_, client := newAvistaServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v3/payments" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("access_token") != "key" {
			t.Error("missing access_token header")
		}
		var body avistaChargeRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Value != "103.00" {
			t.Errorf("value = %s, want 103.00", body.Value)
		}
		json.NewEncoder(w).Encode(avistaChargeResponse{
			ID:             "pay-1",
			Status:         "PENDING",
			QRPayload:      "copy-paste",
			ExpirationDate: time.Now().UTC().Add(30 * time.Minute).Format(time.RFC3339),
		})
	})

	charge, err := client.CreateCharge(context.Background(), chargeRequest())
	if err != nil {
		t.Fatalf("create charge: %v", err)
	}
	if charge.ExternalID != "pay-1" || charge.QRPayload != "copy-paste" {
		t.Errorf("charge = %+v", charge)
	}
	if charge.Provider != domain.ProviderAvista {
		t.Errorf("provider = %s", charge.Provider)
	}
}

func TestAvistaStatusNormalization(t *testing.T) {
	tests := []struct {
		raw  string
		want domain.ChargeStatus
	}{
		{"RECEIVED", domain.ChargeApproved},
		{"CONFIRMED", domain.ChargeApproved},
		{"RECEIVED_IN_CASH", domain.ChargeApproved},
		{"OVERDUE", domain.ChargeExpired},
		{"PENDING", domain.ChargePending},
		{"AWAITING_PAYMENT", domain.ChargePending},
		{"SOMETHING_NEW", domain.ChargePending},
	}
	for _, tt := range tests {
		if got := normalizeAvistaStatus(tt.raw); got != tt.want {
			t.Errorf("normalizeAvistaStatus(%q) = %s, want %s", tt.raw, got, tt.want)
		}
	}
}

func TestPixefiCreateCharge(t *testing.T) {
	_, client := newPixefiServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/v2/cob/ref-1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Client-Id") != "cid" || r.Header.Get("Client-Secret") != "csec" {
			t.Error("missing client credential headers")
		}
		var body pixefiCobRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Valor.Original != "103.00" || body.TxID != "ref-1" {
			t.Errorf("body = %+v", body)
		}
		json.NewEncoder(w).Encode(pixefiCobResponse{
			TxID:          "ref-1",
			Status:        "ATIVA",
			PixCopiaECola: "copy-paste",
		})
	})

	charge, err := client.CreateCharge(context.Background(), chargeRequest())
	if err != nil {
		t.Fatalf("create charge: %v", err)
	}
	if charge.ExternalID != "ref-1" || charge.QRPayload != "copy-paste" {
		t.Errorf("charge = %+v", charge)
	}
	if charge.Provider != domain.ProviderPixefi {
		t.Errorf("provider = %s", charge.Provider)
	}
}

func TestPixefiStatusNormalization(t *testing.T) {
	tests := []struct {
		raw  string
		want domain.ChargeStatus
	}{
		{"CONCLUIDA", domain.ChargeApproved},
		{"ATIVA", domain.ChargePending},
		{"REMOVIDA_PELO_USUARIO_RECEBEDOR", domain.ChargeExpired},
		{"REMOVIDA_PELO_PSP", domain.ChargeExpired},
		{"NOVA_COISA", domain.ChargePending},
	}
	for _, tt := range tests {
		if got := normalizePixefiStatus(tt.raw); got != tt.want {
			t.Errorf("normalizePixefiStatus(%q) = %s, want %s", tt.raw, got, tt.want)
		}
	}
}

func TestAvistaCheckStatusNotFound(t *testing.T) {
	_, client := newAvistaServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	status, err := client.CheckStatus(context.Background(), "missing")
	if err != nil {
		t.Fatalf("check status: %v", err)
	}
	if status != domain.ChargeNotFound {
		t.Errorf("status = %s, want not_found", status)
	}
}

func TestAvistaWebhookParsing(t *testing.T) {
	client := NewAvista(config.AvistaProviderConfig{}, zerolog.Nop())

	body := []byte(`{
		"event": "PAYMENT_RECEIVED",
		"payment": {
			"id": "pay-1",
			"status": "RECEIVED",
			"value": "103.00",
			"externalReference": "ref-1",
			"endToEndIdentifier": "E2E123"
		}
	}`)
	events, err := client.ParseWebhook(body, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0].ReferenceID != "ref-1" || events[0].ExternalID != "pay-1" {
		t.Errorf("event = %+v", events[0])
	}
	if !events[0].Amount.Equal(decimal.RequireFromString("103.00")) {
		t.Errorf("amount = %s", events[0].Amount)
	}

	// Non-payment events are acknowledged without producing events.
	events, err = client.ParseWebhook([]byte(`{"event": "TRANSFER_DONE", "payment": {}}`), nil)
	if err != nil {
		t.Fatalf("parse transfer: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("transfer event produced %d payment events", len(events))
	}

	if _, err := client.ParseWebhook([]byte(`not json`), nil); err == nil {
		t.Error("expected decode error")
	}
}

func TestPixefiWebhookParsesPixArray(t *testing.T) {
	client := NewPixefi(config.PixefiProviderConfig{}, zerolog.Nop())

	body := []byte(`{"pix": [
		{"txid": "ref-1", "valor": "103.00", "endToEndId": "E2E1"},
		{"txid": "ref-2", "valor": "50.00", "endToEndId": "E2E2"}
	]}`)
	events, err := client.ParseWebhook(body, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].ReferenceID != "ref-1" || events[1].ReferenceID != "ref-2" {
		t.Errorf("events = %+v", events)
	}
}

func TestPixefiWebhookSignature(t *testing.T) {
	client := NewPixefi(config.PixefiProviderConfig{WebhookSecret: "topsecret"}, zerolog.Nop())
	body := []byte(`{"pix": [{"txid": "ref-1", "valor": "10.00"}]}`)

	mac := hmac.New(sha256.New, []byte("topsecret"))
	mac.Write(body)
	valid := hex.EncodeToString(mac.Sum(nil))

	header := http.Header{}
	header.Set(SignatureHeader, valid)
	if _, err := client.ParseWebhook(body, header); err != nil {
		t.Errorf("valid signature rejected: %v", err)
	}

	header.Set(SignatureHeader, "deadbeef")
	if _, err := client.ParseWebhook(body, header); err == nil {
		t.Error("tampered signature accepted")
	}

	if _, err := client.ParseWebhook(body, http.Header{}); err == nil {
		t.Error("missing signature accepted")
	}
}

type scriptedProvider struct {
	kind      domain.ProviderKind
	createErr error
	status    domain.ChargeStatus
	statusErr error
	calls     int64
}

func (p *scriptedProvider) Kind() domain.ProviderKind { return p.kind }

func (p *scriptedProvider) CreateCharge(_ context.Context, req *domain.ChargeRequest) (*domain.Charge, error) {
	atomic.AddInt64(&p.calls, 1)
	if p.createErr != nil {
		return nil, p.createErr
	}
	return &domain.Charge{
		ExternalID: string(p.kind) + "-" + req.ExternalReference,
		QRPayload:  "qr",
		Provider:   p.kind,
	}, nil
}

func (p *scriptedProvider) CheckStatus(context.Context, string) (domain.ChargeStatus, error) {
	if p.statusErr != nil {
		return "", p.statusErr
	}
	return p.status, nil
}

func (p *scriptedProvider) ParseWebhook([]byte, http.Header) ([]domain.PaymentEvent, error) {
	return nil, nil
}

func TestRouterFailsOverOnCreate(t *testing.T) {
	primary := &scriptedProvider{kind: domain.ProviderAvista, createErr: errors.New("down")}
	fallback := &scriptedProvider{kind: domain.ProviderPixefi}
	router := NewRouter(primary, fallback, zerolog.Nop())

	charge, err := router.CreateCharge(context.Background(), chargeRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if charge.Provider != domain.ProviderPixefi {
		t.Errorf("provider = %s, want pixefi", charge.Provider)
	}
	if !charge.UsedFallback {
		t.Error("fallback charge not tagged")
	}
}

func TestRouterAggregatesBothFailures(t *testing.T) {
	primary := &scriptedProvider{kind: domain.ProviderAvista, createErr: errors.New("primary down")}
	fallback := &scriptedProvider{kind: domain.ProviderPixefi, createErr: errors.New("fallback down")}
	router := NewRouter(primary, fallback, zerolog.Nop())

	_, err := router.CreateCharge(context.Background(), chargeRequest())
	var unavailable *domain.ProviderUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("err = %v, want ProviderUnavailableError", err)
	}
	if unavailable.PrimaryErr == nil || unavailable.FallbackErr == nil {
		t.Errorf("aggregated error missing a cause: %+v", unavailable)
	}
}

func TestRouterStatusDegradesToSoftPending(t *testing.T) {
	primary := &scriptedProvider{kind: domain.ProviderAvista, statusErr: errors.New("down")}
	fallback := &scriptedProvider{kind: domain.ProviderPixefi, statusErr: errors.New("down")}
	router := NewRouter(primary, fallback, zerolog.Nop())

	result, err := router.CheckStatus(context.Background(), "ext-1")
	if err != nil {
		t.Fatalf("check status: %v", err)
	}
	if !result.Soft || result.Status != domain.ChargePending {
		t.Errorf("result = %+v, want soft pending", result)
	}
}

func TestRouterStatusFailsOver(t *testing.T) {
	primary := &scriptedProvider{kind: domain.ProviderAvista, statusErr: errors.New("down")}
	fallback := &scriptedProvider{kind: domain.ProviderPixefi, status: domain.ChargeApproved}
	router := NewRouter(primary, fallback, zerolog.Nop())

	result, err := router.CheckStatus(context.Background(), "ext-1")
	if err != nil {
		t.Fatalf("check status: %v", err)
	}
	if result.Status != domain.ChargeApproved || !result.UsedFallback || result.Soft {
		t.Errorf("result = %+v", result)
	}
}

func TestRouterDispatchesWebhookByKind(t *testing.T) {
	primary := &scriptedProvider{kind: domain.ProviderAvista}
	fallback := &scriptedProvider{kind: domain.ProviderPixefi}
	router := NewRouter(primary, fallback, zerolog.Nop())

	if got := router.ByKind(domain.ProviderAvista); got != primary {
		t.Error("avista webhook routed to the wrong provider")
	}
	if got := router.ByKind(domain.ProviderPixefi); got != fallback {
		t.Error("pixefi webhook routed to the wrong provider")
	}
	if _, err := router.ParseWebhook(domain.ProviderLocal, nil, nil); err == nil {
		t.Error("unknown kind accepted")
	}
}

func TestRetryOn5xxThenSuccess(t *testing.T) {
	var hits int64
	_, client := newAvistaServer(t, func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt64(&hits, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(avistaChargeResponse{ID: "pay-1", Status: "PENDING"})
	})
	client.maxRetries = 2
	client.retryDelay = time.Millisecond

	if _, err := client.CreateCharge(context.Background(), chargeRequest()); err != nil {
		t.Fatalf("create after retry: %v", err)
	}
	if atomic.LoadInt64(&hits) != 2 {
		t.Errorf("hits = %d, want 2", hits)
	}
}

func TestNoRetryOn4xx(t *testing.T) {
	var hits int64
	_, client := newAvistaServer(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	})
	client.maxRetries = 3
	client.retryDelay = time.Millisecond

	if _, err := client.CreateCharge(context.Background(), chargeRequest()); err == nil {
		t.Fatal("expected client error to surface")
	}
	if atomic.LoadInt64(&hits) != 1 {
		t.Errorf("hits = %d, client errors must not be retried", hits)
	}
}
