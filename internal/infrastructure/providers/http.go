package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

type requestSpec struct {
	method     string
	url        string
	body       interface{}
	headers    map[string]string
	maxRetries int
	retryDelay time.Duration
}

// doRequest is the shared HTTP plumbing for provider clients: JSON in and
// out, exponential backoff on transport and 5xx failures, no retry on 4xx.
func doRequest(ctx context.Context, client *http.Client, logger zerolog.Logger, spec requestSpec, response interface{}) error {
	var lastErr error

	for attempt := 0; attempt <= spec.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(spec.retryDelay * time.Duration(1<<(attempt-1))):
			}
		}

		var reqBody []byte
		var err error
		if spec.body != nil {
			reqBody, err = json.Marshal(spec.body)
			if err != nil {
				return fmt.Errorf("failed to marshal request body: %w", err)
			}
		}

		req, err := http.NewRequestWithContext(ctx, spec.method, spec.url, bytes.NewReader(reqBody))
		if err != nil {
			lastErr = fmt.Errorf("failed to create request: %w", err)
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range spec.headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			logger.Warn().Err(err).Int("attempt", attempt+1).Str("url", spec.url).Msg("Provider request failed, retrying")
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if readErr != nil {
				lastErr = fmt.Errorf("failed to read response body: %w", readErr)
				continue
			}
			if response != nil {
				if err := json.Unmarshal(respBody, response); err != nil {
					lastErr = fmt.Errorf("failed to unmarshal response: %w", err)
					continue
				}
			}
			return nil
		}

		if resp.StatusCode >= 500 {
			lastErr = &httpStatusError{status: resp.StatusCode, body: string(respBody)}
			logger.Warn().Int("status", resp.StatusCode).Int("attempt", attempt+1).Str("url", spec.url).Msg("Provider server error, retrying")
			continue
		}

		// Client errors are final.
		return &httpStatusError{status: resp.StatusCode, body: string(respBody)}
	}

	logger.Error().Err(lastErr).Str("url", spec.url).Int("max_retries", spec.maxRetries).Msg("Provider request failed after all retries")
	return lastErr
}

func asStatusError(err error, target **httpStatusError) bool {
	return errors.As(err, target)
}
