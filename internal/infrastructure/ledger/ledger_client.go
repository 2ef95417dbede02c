package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/juan-silveira/clube-navi-sub003/internal/domain"
	"github.com/juan-silveira/clube-navi-sub003/internal/domain/interfaces"
	"github.com/juan-silveira/clube-navi-sub003/pkg/config"
	"github.com/juan-silveira/clube-navi-sub003/pkg/money"
)

// Client calls the token ledger service that mints and burns stable-token
// balances. Mint and burn are irreversible once accepted, so this client
// never retries on its own: a transport failure surfaces as a
// LedgerExecutionError and recovery is left to reconciliation.
type Client struct {
	baseURL    string
	apiKey     string
	network    string
	tokenID    string
	httpClient *http.Client
	logger     zerolog.Logger
}

func New(cfg config.LedgerConfig, logger zerolog.Logger) interfaces.LedgerClient {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		network: cfg.Network,
		tokenID: cfg.TokenID,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

type executeRequest struct {
	Address     string `json:"address"`
	Amount      string `json:"amount"`
	Network     string `json:"network"`
	TokenID     string `json:"token_id"`
	ReferenceID string `json:"reference_id"`
}

type executeResponse struct {
	Success         bool   `json:"success"`
	TransactionHash string `json:"transaction_hash"`
	BlockNumber     int64  `json:"block_number"`
	GasUsed         int64  `json:"gas_used"`
	Error           string `json:"error"`
}

func (c *Client) Mint(ctx context.Context, destination string, amount decimal.Decimal, network, referenceID string) (*domain.ChainReceipt, error) {
	return c.execute(ctx, "mint", destination, amount, network, referenceID)
}

func (c *Client) Burn(ctx context.Context, source string, amount decimal.Decimal, network, referenceID string) (*domain.ChainReceipt, error) {
	return c.execute(ctx, "burn", source, amount, network, referenceID)
}

func (c *Client) execute(ctx context.Context, operation, address string, amount decimal.Decimal, network, referenceID string) (*domain.ChainReceipt, error) {
	if network == "" {
		network = c.network
	}

	payload := executeRequest{
		Address:     address,
		Amount:      money.Round(amount).StringFixed(2),
		Network:     network,
		TokenID:     c.tokenID,
		ReferenceID: referenceID,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/token/"+operation, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.LedgerExecutionError{
			Operation:   operation,
			ReferenceID: referenceID,
			Reason:      err.Error(),
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.LedgerExecutionError{
			Operation:   operation,
			ReferenceID: referenceID,
			Reason:      fmt.Sprintf("failed to read response: %v", err),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &domain.LedgerExecutionError{
			Operation:   operation,
			ReferenceID: referenceID,
			Reason:      fmt.Sprintf("status %d: %s", resp.StatusCode, string(respBody)),
		}
	}

	var result executeResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &domain.LedgerExecutionError{
			Operation:   operation,
			ReferenceID: referenceID,
			Reason:      fmt.Sprintf("failed to decode response: %v", err),
		}
	}

	if !result.Success {
		return nil, &domain.LedgerExecutionError{
			Operation:   operation,
			ReferenceID: referenceID,
			Reason:      result.Error,
		}
	}

	c.logger.Info().
		Str("operation", operation).
		Str("reference_id", referenceID).
		Str("tx_hash", result.TransactionHash).
		Int64("block_number", result.BlockNumber).
		Dur("latency", time.Since(start)).
		Msg("Ledger operation executed")

	return &domain.ChainReceipt{
		TxHash:      result.TransactionHash,
		BlockNumber: result.BlockNumber,
		GasUsed:     result.GasUsed,
	}, nil
}
