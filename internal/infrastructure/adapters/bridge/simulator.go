package bridge

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
)

// Simulator is an in-process BridgeClient for demo mode and tests. Transfers
// confirm after one poll with a synthetic destination hash.
type Simulator struct {
	mu        sync.Mutex
	transfers map[string]*TransferStatusResponse
	byKey     map[string]string
	seq       int
}

// NewSimulator creates a bridge simulator
func NewSimulator() *Simulator {
	return &Simulator{
		transfers: make(map[string]*TransferStatusResponse),
		byKey:     make(map[string]string),
	}
}

func (s *Simulator) SubmitTransfer(_ context.Context, req TransferRequest) (*TransferResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byKey[req.IdempotencyKey]; ok {
		return &TransferResponse{TransferID: id, Status: s.transfers[id].Status}, nil
	}

	s.seq++
	id := fmt.Sprintf("sim-transfer-%d", s.seq)
	s.transfers[id] = &TransferStatusResponse{
		TransferID: id,
		Status:     TransferStatusConfirmed,
		DestTxHash: syntheticHash(),
	}
	s.byKey[req.IdempotencyKey] = id
	return &TransferResponse{TransferID: id, Status: TransferStatusPending}, nil
}

func (s *Simulator) GetTransfer(_ context.Context, transferID string) (*TransferStatusResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transfers[transferID]
	if !ok {
		return nil, ErrTransferNotFound
	}
	return t, nil
}

func (s *Simulator) Health(_ context.Context) (*HealthResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &HealthResponse{Healthy: true, InFlightCount: 0}, nil
}

func syntheticHash() string {
	b := make([]byte, 32)
	rand.Read(b)
	return "0x" + hex.EncodeToString(b)
}

var _ BridgeClient = (*Simulator)(nil)
