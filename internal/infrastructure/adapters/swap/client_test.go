package swap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExecute(t *testing.T) {
	logger := zap.NewNop()

	t.Run("submits conversion with idempotency key", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/swap", r.URL.Path)
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

			var req ExecuteRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "batch-1:1", req.IdempotencyKey)
			assert.Equal(t, int64(137), req.ChainID)

			json.NewEncoder(w).Encode(ExecuteResponse{
				ExecutionID: "exec-1",
				AmountOut:   decimal.RequireFromString("99.5"),
				Status:      "filled",
			})
		}))
		defer server.Close()

		client := NewClient(Config{BaseURL: server.URL, APIKey: "test-key"}, logger)
		resp, err := client.Execute(context.Background(), ExecuteRequest{
			IdempotencyKey: "batch-1:1",
			ChainID:        137,
			TokenAddress:   "0xtoken",
			Amount:         decimal.NewFromInt(100),
		})

		require.NoError(t, err)
		assert.Equal(t, "exec-1", resp.ExecutionID)
		assert.True(t, resp.AmountOut.Equal(decimal.RequireFromString("99.5")))
	})

	t.Run("surfaces structured API errors", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(ErrorResponse{Code: "NO_LIQUIDITY", Message: "amount too large"})
		}))
		defer server.Close()

		client := NewClient(Config{BaseURL: server.URL}, logger)
		_, err := client.Execute(context.Background(), ExecuteRequest{Amount: decimal.NewFromInt(1)})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "amount too large")
	})

	t.Run("submits exactly once on 5xx", func(t *testing.T) {
		attempts := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		client := NewClient(Config{BaseURL: server.URL}, logger)
		_, err := client.Execute(context.Background(), ExecuteRequest{Amount: decimal.NewFromInt(1)})

		require.Error(t, err)
		assert.Equal(t, 1, attempts)
	})
}

func TestGetQuote(t *testing.T) {
	t.Run("returns the indicative output", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/quote", r.URL.Path)
			json.NewEncoder(w).Encode(QuoteResponse{QuoteID: "q1", AmountOut: decimal.NewFromInt(42)})
		}))
		defer server.Close()

		client := NewClient(Config{BaseURL: server.URL}, zap.NewNop())
		resp, err := client.GetQuote(context.Background(), QuoteRequest{ChainID: 1, Amount: decimal.NewFromInt(50)})

		require.NoError(t, err)
		assert.Equal(t, "q1", resp.QuoteID)
		assert.True(t, resp.AmountOut.Equal(decimal.NewFromInt(42)))
	})

	t.Run("retries 5xx then succeeds", func(t *testing.T) {
		attempts := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			if attempts == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			json.NewEncoder(w).Encode(QuoteResponse{QuoteID: "q2", AmountOut: decimal.NewFromInt(1)})
		}))
		defer server.Close()

		client := NewClient(Config{BaseURL: server.URL}, zap.NewNop())
		resp, err := client.GetQuote(context.Background(), QuoteRequest{Amount: decimal.NewFromInt(1)})

		require.NoError(t, err)
		assert.Equal(t, "q2", resp.QuoteID)
		assert.Equal(t, 2, attempts)
	})
}

func TestSimulatorIdempotency(t *testing.T) {
	sim := NewSimulator(decimal.RequireFromString("0.5"))

	first, err := sim.Execute(context.Background(), ExecuteRequest{IdempotencyKey: "k1", Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)
	second, err := sim.Execute(context.Background(), ExecuteRequest{IdempotencyKey: "k1", Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)

	assert.Equal(t, first.ExecutionID, second.ExecutionID)
	assert.True(t, first.AmountOut.Equal(decimal.NewFromInt(5)))
}
