package sink

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type tradeKey struct {
	tx     common.Hash
	wallet common.Address
}

// MemorySink keeps records in memory (Note: data lost on restart, for testing/temp tasks only)
type MemorySink struct {
	mu     sync.RWMutex
	tokens map[common.Address]DeploymentRecord
	trades map[tradeKey]TradeRecord
	order  []tradeKey
	users  map[common.Address]struct{}
}

func NewMemorySink() *MemorySink {
	return &MemorySink{
		tokens: make(map[common.Address]DeploymentRecord),
		trades: make(map[tradeKey]TradeRecord),
		users:  make(map[common.Address]struct{}),
	}
}

func (m *MemorySink) TokenExists(_ context.Context, token common.Address) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.tokens[token]
	return ok, nil
}

func (m *MemorySink) UpsertToken(_ context.Context, rec DeploymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[rec.Token] = rec
	return nil
}

func (m *MemorySink) TransactionExists(_ context.Context, txHash common.Hash, wallet common.Address) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.trades[tradeKey{txHash, wallet}]
	return ok, nil
}

func (m *MemorySink) AppendTransaction(_ context.Context, rec TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := tradeKey{rec.TxHash, rec.Wallet}
	if _, ok := m.trades[k]; ok {
		return nil
	}
	m.trades[k] = rec
	m.order = append(m.order, k)
	return nil
}

func (m *MemorySink) UpsertUser(_ context.Context, wallet common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[wallet] = struct{}{}
	return nil
}

// Tokens returns every stored deployment.
func (m *MemorySink) Tokens() []DeploymentRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]DeploymentRecord, 0, len(m.tokens))
	for _, r := range m.tokens {
		out = append(out, r)
	}
	return out
}

// Trades returns every stored trade in append order.
func (m *MemorySink) Trades() []TradeRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]TradeRecord, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.trades[k])
	}
	return out
}

// HasUser reports whether the wallet was upserted.
func (m *MemorySink) HasUser(wallet common.Address) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.users[wallet]
	return ok
}

func (m *MemorySink) Close() error { return nil }
