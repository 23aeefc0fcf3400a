package bridge

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

func TestSubmitTransfer(t *testing.T) {
	logger := zap.NewNop()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/transfers", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req TransferRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(33139), req.DestChainID)
		assert.Equal(t, "0xrecipient", req.Recipient)

		json.NewEncoder(w).Encode(TransferResponse{TransferID: "tr-1", Status: TransferStatusPending})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, logger)
	resp, err := client.SubmitTransfer(context.Background(), TransferRequest{
		IdempotencyKey: "batch:1",
		SourceChainID:  137,
		DestChainID:    33139,
		Amount:         decimal.NewFromInt(95),
		Recipient:      "0xrecipient",
	})

	require.NoError(t, err)
	assert.Equal(t, "tr-1", resp.TransferID)
	assert.Equal(t, TransferStatusPending, resp.Status)
}

func TestGetTransfer(t *testing.T) {
	logger := zap.NewNop()

	t.Run("returns transfer state", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/transfers/tr-1", r.URL.Path)
			json.NewEncoder(w).Encode(TransferStatusResponse{
				TransferID: "tr-1",
				Status:     TransferStatusConfirmed,
				DestTxHash: "0xdest",
			})
		}))
		defer server.Close()

		client := NewClient(Config{BaseURL: server.URL}, logger)
		resp, err := client.GetTransfer(context.Background(), "tr-1")

		require.NoError(t, err)
		assert.Equal(t, TransferStatusConfirmed, resp.Status)
		assert.Equal(t, "0xdest", resp.DestTxHash)
	})

	t.Run("maps 404 to ErrTransferNotFound", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(ErrorResponse{Code: "NOT_FOUND", Message: "unknown transfer"})
		}))
		defer server.Close()

		client := NewClient(Config{BaseURL: server.URL}, logger)
		_, err := client.GetTransfer(context.Background(), "missing")

		assert.ErrorIs(t, err, ErrTransferNotFound)
	})
}

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/health", r.URL.Path)
		json.NewEncoder(w).Encode(HealthResponse{Healthy: true, InFlightCount: 3})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, zap.NewNop())
	resp, err := client.Health(context.Background())

	require.NoError(t, err)
	assert.True(t, resp.Healthy)
	assert.Equal(t, 3, resp.InFlightCount)
}

func TestSimulator(t *testing.T) {
	sim := NewSimulator()
	ctx := context.Background()

	submitted, err := sim.SubmitTransfer(ctx, TransferRequest{IdempotencyKey: "k1", Amount: decimal.NewFromInt(1)})
	require.NoError(t, err)

	again, err := sim.SubmitTransfer(ctx, TransferRequest{IdempotencyKey: "k1", Amount: decimal.NewFromInt(1)})
	require.NoError(t, err)
	assert.Equal(t, submitted.TransferID, again.TransferID)

	status, err := sim.GetTransfer(ctx, submitted.TransferID)
	require.NoError(t, err)
	assert.Equal(t, TransferStatusConfirmed, status.Status)
	assert.NotEmpty(t, status.DestTxHash)

	_, err = sim.GetTransfer(ctx, "unknown")
	assert.ErrorIs(t, err, ErrTransferNotFound)
}
