// Package freshbooks implements the external invoicing and customer
// directory collaborator over the FreshBooks accounting API.
package freshbooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/ledgerpilot/ledgerpilot/internal/shared"
)

// Config collects client construction parameters.
type Config struct {
	BaseURL    string
	AccountID  string
	HTTPClient *http.Client
	Tokens     *TokenManager
	Logger     *slog.Logger
}

// Client talks to the FreshBooks API. It implements the invoicing
// directory, the customer directory, and the approval gate's sender
// capability.
type Client struct {
	baseURL    string
	accountID  string
	httpClient *http.Client
	tokens     *TokenManager
	logger     *slog.Logger
}

// New constructs a Client.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		accountID:  cfg.AccountID,
		httpClient: httpClient,
		tokens:     cfg.Tokens,
		logger:     cfg.Logger,
	}
}

const (
	readRetries   = 3
	retryBaseWait = 200 * time.Millisecond
)

// do performs one API call. Idempotent reads are retried with backoff on
// transient failures; mutations go out exactly once. A 401 triggers a
// forced token refresh and a single replay of the same request.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any, idempotent bool) error {
	attempts := 1
	if idempotent {
		attempts = readRetries
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", shared.ErrExternalUnavailable, ctx.Err())
			case <-time.After(retryBaseWait << (attempt - 1)):
			}
		}
		lastErr = c.doOnce(ctx, method, path, query, body, out)
		if lastErr == nil || !isTransient(lastErr) {
			return lastErr
		}
		c.logger.Warn("invoicing call retry", slog.String("path", path), slog.Int("attempt", attempt+1), slog.Any("error", lastErr))
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, method, path string, query url.Values, body, out any) error {
	err := c.roundTrip(ctx, method, path, query, body, out, false)
	if err == errUnauthorized {
		// Stale token; refresh once and replay.
		err = c.roundTrip(ctx, method, path, query, body, out, true)
		if err == errUnauthorized {
			return fmt.Errorf("%w: unauthorized after token refresh", shared.ErrExternalRejection)
		}
	}
	return err
}

var errUnauthorized = fmt.Errorf("freshbooks: unauthorized")

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, body, out any, forceRefresh bool) error {
	token, err := c.tokens.AccessToken(ctx, forceRefresh)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("freshbooks: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrExternalUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return errUnauthorized
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", shared.ErrExternalUnavailable, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("invoicing resource %s: %w", path, shared.ErrNotFound)
	case resp.StatusCode >= 400:
		detail := readErrorDetail(resp.Body)
		return fmt.Errorf("%w: status %d: %s", shared.ErrExternalRejection, resp.StatusCode, detail)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("freshbooks: decode response: %w", err)
	}
	return nil
}

func isTransient(err error) bool {
	return errors.Is(err, shared.ErrExternalUnavailable)
}

func readErrorDetail(body io.Reader) string {
	var payload struct {
		Response struct {
			Errors []struct {
				Message string `json:"message"`
			} `json:"errors"`
		} `json:"response"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return "no detail"
	}
	if len(payload.Response.Errors) > 0 {
		return payload.Response.Errors[0].Message
	}
	if payload.Message != "" {
		return payload.Message
	}
	return "no detail"
}
