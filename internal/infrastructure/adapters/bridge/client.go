// Package bridge wraps the cross-chain transfer provider's HTTP API behind
// a circuit breaker and a client-side rate limit.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout       = 30 * time.Second
	maxRetries           = 3
	maxRequestsPerSecond = 10
)

// Config represents bridge client configuration
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client represents a bridge provider API client
type Client struct {
	config         Config
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	rateLimiter    *rate.Limiter
	logger         *zap.Logger
}

// NewClient creates a new bridge provider API client
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	cbSettings := gobreaker.Settings{
		Name:        "BridgeAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Bridge circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Client{
		config:         config,
		httpClient:     &http.Client{Timeout: config.Timeout},
		circuitBreaker: gobreaker.NewCircuitBreaker(cbSettings),
		rateLimiter:    rate.NewLimiter(rate.Limit(maxRequestsPerSecond), 1),
		logger:         logger,
	}
}

// SubmitTransfer starts a transfer to the destination chain
func (c *Client) SubmitTransfer(ctx context.Context, req TransferRequest) (*TransferResponse, error) {
	var resp TransferResponse
	if err := c.doRequest(ctx, http.MethodPost, "/v1/transfers", req, &resp); err != nil {
		return nil, fmt.Errorf("submit transfer failed: %w", err)
	}
	return &resp, nil
}

// GetTransfer polls the state of an in-flight transfer
func (c *Client) GetTransfer(ctx context.Context, transferID string) (*TransferStatusResponse, error) {
	var resp TransferStatusResponse
	endpoint := fmt.Sprintf("/v1/transfers/%s", transferID)
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		var apiErr *ErrorResponse
		if errors.As(err, &apiErr) && apiErr.IsNotFound() {
			return nil, ErrTransferNotFound
		}
		return nil, fmt.Errorf("get transfer failed: %w", err)
	}
	return &resp, nil
}

// Health reports provider availability and in-flight load
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return nil, fmt.Errorf("bridge health failed: %w", err)
	}
	return &resp, nil
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, payload, response interface{}) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return nil, c.doRequestInternal(ctx, method, endpoint, payload, response)
	})
	return err
}

func (c *Client) doRequestInternal(ctx context.Context, method, endpoint string, payload, response interface{}) error {
	fullURL := c.config.BaseURL + endpoint

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, fullURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.config.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read body: %w", err)
			continue
		}

		// Retry on 5xx
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: status %d", resp.StatusCode)
			continue
		}

		if resp.StatusCode >= 400 {
			var errResp ErrorResponse
			if json.Unmarshal(respBody, &errResp) == nil && errResp.Message != "" {
				errResp.StatusCode = resp.StatusCode
				return &errResp
			}
			return fmt.Errorf("API error: status %d, body: %s", resp.StatusCode, string(respBody))
		}

		if response != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, response); err != nil {
				return fmt.Errorf("unmarshal response: %w", err)
			}
		}
		return nil
	}
	return lastErr
}
