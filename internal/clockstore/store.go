// Package clockstore tracks this node's authoritative write counter per user
// wallet. The engine only reads clocks; the write path bumps them on every
// durable write.
package clockstore

import (
	"context"
	"sync"

	"github.com/dreamware/replset/internal/cluster"
)

// Store is the local clock database consumed by the sync machinery.
// All implementations must be safe for concurrent use.
type Store interface {
	// Clock returns the clock for wallet, or cluster.ClockNone if the wallet
	// has never been written on this node.
	Clock(ctx context.Context, wallet string) (int64, error)

	// Clocks returns the clock for each of wallets. Wallets never written on
	// this node map to cluster.ClockNone.
	Clocks(ctx context.Context, wallets []string) (map[string]int64, error)
}

// MemStore is an in-memory Store, used in tests and single-process setups.
type MemStore struct {
	mu     sync.RWMutex
	clocks map[string]int64
}

// NewMemStore creates an empty in-memory clock store.
func NewMemStore() *MemStore {
	return &MemStore{clocks: make(map[string]int64)}
}

// Set fixes the clock for wallet.
func (m *MemStore) Set(wallet string, clock int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clocks[wallet] = clock
}

// Bump increments the clock for wallet and returns the new value. A wallet
// with no prior writes starts at 0.
func (m *MemStore) Bump(wallet string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clocks[wallet]; !ok {
		m.clocks[wallet] = 0
		return 0
	}
	m.clocks[wallet]++
	return m.clocks[wallet]
}

// Clock implements Store.
func (m *MemStore) Clock(_ context.Context, wallet string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clocks[wallet]
	if !ok {
		return cluster.ClockNone, nil
	}
	return c, nil
}

// Clocks implements Store.
func (m *MemStore) Clocks(ctx context.Context, wallets []string) (map[string]int64, error) {
	out := make(map[string]int64, len(wallets))
	for _, w := range wallets {
		c, err := m.Clock(ctx, w)
		if err != nil {
			return nil, err
		}
		out[w] = c
	}
	return out, nil
}
