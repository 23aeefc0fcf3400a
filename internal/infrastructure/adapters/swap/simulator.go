package swap

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// Simulator is an in-process SwapClient for demo mode and tests. It fills
// every order at a fixed rate and honors idempotency keys.
type Simulator struct {
	mu         sync.Mutex
	rate       decimal.Decimal
	executions map[string]*ExecuteResponse
	seq        int
}

// NewSimulator creates a simulator converting at the given USDC-per-unit rate
func NewSimulator(conversionRate decimal.Decimal) *Simulator {
	return &Simulator{
		rate:       conversionRate,
		executions: make(map[string]*ExecuteResponse),
	}
}

func (s *Simulator) GetQuote(_ context.Context, req QuoteRequest) (*QuoteResponse, error) {
	return &QuoteResponse{
		QuoteID:   "sim-quote",
		AmountOut: req.Amount.Mul(s.rate),
	}, nil
}

func (s *Simulator) Execute(_ context.Context, req ExecuteRequest) (*ExecuteResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.executions[req.IdempotencyKey]; ok {
		return prev, nil
	}
	s.seq++
	resp := &ExecuteResponse{
		ExecutionID: fmt.Sprintf("sim-exec-%d", s.seq),
		AmountOut:   req.Amount.Mul(s.rate),
		Status:      "filled",
	}
	s.executions[req.IdempotencyKey] = resp
	return resp, nil
}

var _ SwapClient = (*Simulator)(nil)
