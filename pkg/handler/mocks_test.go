package handler

import (
	"context"
	"math/big"
	"time"

	"github.com/84hero/launchpad-indexer/pkg/sink"
	"github.com/84hero/launchpad-indexer/pkg/storage"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/mock"
)

type mockReader struct {
	mock.Mock
}

func (m *mockReader) ReadAmountOut(ctx context.Context, token common.Address, amountIn *big.Int, isBuy bool) (*big.Int, error) {
	args := m.Called(ctx, token, amountIn, isBuy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *mockReader) ReadTotalSupply(ctx context.Context, token common.Address) (*big.Int, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *mockReader) ReadDecimals(ctx context.Context, token common.Address) (uint8, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(uint8), args.Error(1)
}

func (m *mockReader) BlockTimestamp(ctx context.Context, number uint64) (time.Time, error) {
	args := m.Called(ctx, number)
	return args.Get(0).(time.Time), args.Error(1)
}

type mockFeed struct {
	mock.Mock
}

func (m *mockFeed) ReadLatestPrice(ctx context.Context, oracle common.Address) (*big.Int, error) {
	args := m.Called(ctx, oracle)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

type mockSink struct {
	mock.Mock
}

func (m *mockSink) TokenExists(ctx context.Context, token common.Address) (bool, error) {
	args := m.Called(ctx, token)
	return args.Bool(0), args.Error(1)
}

func (m *mockSink) UpsertToken(ctx context.Context, rec sink.DeploymentRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *mockSink) TransactionExists(ctx context.Context, txHash common.Hash, wallet common.Address) (bool, error) {
	args := m.Called(ctx, txHash, wallet)
	return args.Bool(0), args.Error(1)
}

func (m *mockSink) AppendTransaction(ctx context.Context, rec sink.TradeRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *mockSink) UpsertUser(ctx context.Context, wallet common.Address) error {
	return m.Called(ctx, wallet).Error(0)
}

func (m *mockSink) Close() error { return nil }

type recordingNotifier struct {
	types []string
}

func (r *recordingNotifier) Broadcast(_ context.Context, eventType string, _ any) error {
	r.types = append(r.types, eventType)
	return nil
}

// memDedup is a Deduper backed by maps.
type memDedup struct {
	seen    map[string]bool
	entries map[string][]storage.DedupEntry
}

func newMemDedup() *memDedup {
	return &memDedup{seen: map[string]bool{}, entries: map[string][]storage.DedupEntry{}}
}

func (d *memDedup) Seen(key string) bool { return d.seen[key] }
func (d *memDedup) Remember(key string)  { d.seen[key] = true }
func (d *memDedup) RecordDedup(kind string, e storage.DedupEntry) error {
	d.entries[kind] = append(d.entries[kind], e)
	return nil
}
