package rpc

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/84hero/launchpad-indexer/pkg/rpc/rpctest"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
)

func TestNewNode(t *testing.T) {
	_, err := NewNode(context.Background(), NodeConfig{URL: "invalid", Priority: 10})
	assert.Error(t, err)
}

func TestNode_ProxyMethods(t *testing.T) {
	ctx := context.Background()
	mockEth := new(rpctest.MockClient)
	node := NewNodeWithClient(NodeConfig{URL: "test", Priority: 10}, mockEth)

	mockEth.On("BlockNumber", ctx).Return(uint64(100), nil).Once()
	h, err := node.BlockNumber(ctx)
	assert.NoError(t, err)
	assert.Equal(t, uint64(100), h)
	assert.Equal(t, uint64(100), node.GetLatestBlock())

	mockEth.On("ChainID", ctx).Return(big.NewInt(1), nil).Once()
	id, err := node.ChainID(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), id.Int64())

	mockEth.On("HeaderByNumber", ctx, big.NewInt(100)).Return(&types.Header{}, nil).Once()
	_, err = node.HeaderByNumber(ctx, big.NewInt(100))
	assert.NoError(t, err)

	mockEth.On("FilterLogs", ctx, ethereum.FilterQuery{}).Return([]types.Log{}, nil).Once()
	_, err = node.FilterLogs(ctx, ethereum.FilterQuery{})
	assert.NoError(t, err)

	to := common.HexToAddress("0x1")
	mockEth.On("CallContract", ctx, ethereum.CallMsg{To: &to}, (*big.Int)(nil)).Return([]byte{0x1}, nil).Once()
	_, err = node.CallContract(ctx, ethereum.CallMsg{To: &to}, nil)
	assert.NoError(t, err)

	mockEth.On("Close").Once()
	node.Close()
	mockEth.AssertExpectations(t)
}

func TestNode_CircuitBreaker(t *testing.T) {
	node := NewNodeWithClient(NodeConfig{URL: "test", Priority: 10}, new(rpctest.MockClient))
	for i := 0; i < circuitThreshold; i++ {
		node.RecordMetric(time.Now(), errors.New("fail"))
	}
	assert.True(t, node.IsCircuitBroken())
	assert.ErrorIs(t, node.TryAcquire(context.Background()), ErrCircuitOpen)

	// A success lowers the consecutive error count below the threshold
	node.RecordMetric(time.Now(), nil)
	assert.False(t, node.IsCircuitBroken())
	assert.NoError(t, node.TryAcquire(context.Background()))
}

func TestNode_TryAcquire_Concurrency(t *testing.T) {
	node := NewNodeWithClient(NodeConfig{URL: "test", MaxConcurrent: 1}, new(rpctest.MockClient))
	ctx := context.Background()

	assert.NoError(t, node.TryAcquire(ctx))
	assert.ErrorIs(t, node.TryAcquire(ctx), ErrNodeBusy)
	node.Release()
	assert.NoError(t, node.TryAcquire(ctx))
	node.Release()
}

func TestNode_TryAcquire_RateLimit(t *testing.T) {
	node := NewNodeWithClient(NodeConfig{URL: "test", RateLimit: 1}, new(rpctest.MockClient))
	ctx := context.Background()

	assert.NoError(t, node.TryAcquire(ctx))
	assert.ErrorIs(t, node.TryAcquire(ctx), ErrRateLimitExceeded)
}

func TestNode_TryAcquire_ContextCanceled(t *testing.T) {
	node := NewNodeWithClient(NodeConfig{URL: "test"}, new(rpctest.MockClient))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, node.TryAcquire(ctx), context.Canceled)
}
