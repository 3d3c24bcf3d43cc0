// Package store holds the persistence adapters used by the gateway: an
// in-memory store for mock mode and tests, Redis for transaction records and
// idempotency, and MongoDB for merchant payout settings.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/chungtau/mti-gateway/internal/model"
)

// Memory keeps transactions and merchant settings in process. It is safe for
// concurrent use and stores copies, so callers never share records with it.
type Memory struct {
	mu        sync.RWMutex
	txs       map[string]*model.Transaction
	merchants map[string]model.MerchantPayoutSettings
}

func NewMemory() *Memory {
	return &Memory{
		txs:       make(map[string]*model.Transaction),
		merchants: make(map[string]model.MerchantPayoutSettings),
	}
}

func (m *Memory) Save(_ context.Context, tx *model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs[tx.TransactionID] = tx.Clone()
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.txs[id]
	if !ok {
		return nil, model.ErrTransactionNotFound
	}
	return tx.Clone(), nil
}

// ListByMerchant returns up to limit records, newest first.
func (m *Memory) ListByMerchant(_ context.Context, merchantID string, limit int) ([]*model.Transaction, error) {
	m.mu.RLock()
	out := make([]*model.Transaction, 0)
	for _, tx := range m.txs {
		if tx.MerchantID == merchantID {
			out = append(out, tx.Clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].TransactionID > out[j].TransactionID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) PayoutSettings(_ context.Context, merchantID string) (*model.MerchantPayoutSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.merchants[merchantID]
	if !ok {
		return nil, model.ErrMerchantNotFound
	}
	return &s, nil
}

// PutMerchant registers or replaces a merchant's payout settings.
func (m *Memory) PutMerchant(s model.MerchantPayoutSettings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.merchants[s.MerchantID] = s
}

func (m *Memory) Ping(context.Context) error { return nil }
