package handler

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/84hero/launchpad-indexer/internal/retry"
	"github.com/84hero/launchpad-indexer/pkg/launchpad"
	"github.com/84hero/launchpad-indexer/pkg/launchpad/launchpadtest"
	"github.com/84hero/launchpad-indexer/pkg/notify"
	"github.com/84hero/launchpad-indexer/pkg/reader"
	"github.com/84hero/launchpad-indexer/pkg/sink"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	contractAddr = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	blockTime    = time.Unix(1700000000, 0).UTC()
)

type fixture struct {
	reader   *mockReader
	feed     *mockFeed
	sink     *sink.MemorySink
	dedup    *memDedup
	notifier *recordingNotifier
	handler  *Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		reader:   new(mockReader),
		feed:     new(mockFeed),
		sink:     sink.NewMemorySink(),
		dedup:    newMemDedup(),
		notifier: &recordingNotifier{},
	}
	f.handler = New(Options{
		Version:    "V1",
		Reader:     f.reader,
		Pricer:     NewPricer(f.feed, oracleAddr, retry.Linear{Attempts: 2}),
		Sink:       f.sink,
		Dedup:      f.dedup,
		Notifier:   f.notifier,
		BlockRetry: retry.Linear{Attempts: 3},
	})
	return f
}

func (f *fixture) expectPricing() {
	f.reader.On("ReadTotalSupply", mock.Anything, tokenAddr).Return(e18(1_000_000_000), nil)
	f.reader.On("ReadDecimals", mock.Anything, tokenAddr).Return(uint8(18), nil)
	f.reader.On("ReadAmountOut", mock.Anything, tokenAddr, oneNative, true).Return(e18(1_000_000), nil)
	f.feed.On("ReadLatestPrice", mock.Anything, oracleAddr).Return(big.NewInt(3000_00000000), nil)
}

func tradeEvent(t *testing.T, tx string, isBuy bool) *launchpad.Trade {
	t.Helper()
	l := launchpadtest.TradeLog(contractAddr, walletAddr, tokenAddr, isBuy, e18(2), e18(5000), 120, common.HexToHash(tx))
	ev, err := launchpad.ParseLog(l)
	require.NoError(t, err)
	return ev.(*launchpad.Trade)
}

func TestOnTokenDeployed(t *testing.T) {
	f := newFixture(t)
	l := launchpadtest.TokenDeployedLog(contractAddr, tokenAddr, walletAddr, 7, 100, common.HexToHash("0xabc"))

	require.NoError(t, f.handler.HandleLog(context.Background(), l))

	tokens := f.sink.Tokens()
	require.Len(t, tokens, 1)
	assert.Equal(t, "V1", tokens[0].Version)
	assert.Equal(t, walletAddr, tokens[0].Creator)
	assert.Equal(t, "7", tokens[0].CreationIndex)
	assert.Equal(t, uint64(100), tokens[0].BlockNumber)

	entries := f.dedup.entries[launchpad.EventTokenDeployed]
	require.Len(t, entries, 1)
	assert.Equal(t, common.HexToHash("0xabc").Hex(), entries[0].Hash)
	assert.Equal(t, tokenAddr.Hex(), entries[0].Token)
	assert.Equal(t, []string{notify.TypeTokenDeployed}, f.notifier.types)
}

// A deployment the sink already knows is neither upserted nor logged again.
func TestOnTokenDeployed_AlreadyRecorded(t *testing.T) {
	ms := new(mockSink)
	dedup := newMemDedup()
	notifier := &recordingNotifier{}
	h := New(Options{Version: "V1", Sink: ms, Dedup: dedup, Notifier: notifier})

	ms.On("TokenExists", mock.Anything, tokenAddr).Return(true, nil)

	l := launchpadtest.TokenDeployedLog(contractAddr, tokenAddr, walletAddr, 1, 100, common.HexToHash("0xabc"))
	require.NoError(t, h.HandleLog(context.Background(), l))

	ms.AssertNotCalled(t, "UpsertToken", mock.Anything, mock.Anything)
	assert.Empty(t, dedup.entries)
	assert.Empty(t, notifier.types)
}

func TestOnTokenDeployed_SinkError(t *testing.T) {
	ms := new(mockSink)
	h := New(Options{Version: "V1", Sink: ms, Dedup: newMemDedup()})

	ms.On("TokenExists", mock.Anything, tokenAddr).Return(false, nil)
	ms.On("UpsertToken", mock.Anything, mock.Anything).Return(errors.New("db down"))

	l := launchpadtest.TokenDeployedLog(contractAddr, tokenAddr, walletAddr, 1, 100, common.HexToHash("0xabc"))
	err := h.HandleLog(context.Background(), l)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestOnTrade(t *testing.T) {
	f := newFixture(t)
	f.expectPricing()
	f.reader.On("BlockTimestamp", mock.Anything, uint64(120)).Return(blockTime, nil)

	require.NoError(t, f.handler.OnTrade(context.Background(), tradeEvent(t, "0xdef", true)))

	trades := f.sink.Trades()
	require.Len(t, trades, 1)
	tr := trades[0]
	assert.Equal(t, sink.SideBuy, tr.Side)
	assert.Equal(t, walletAddr, tr.Wallet)
	assert.InDelta(t, 2.0, tr.ETHAmount, 1e-9)
	assert.InDelta(t, 5000.0, tr.TokenAmount, 1e-9)
	assert.InDelta(t, 3_000_000.0, tr.MarketCapUSD, 1e-4)
	assert.Equal(t, blockTime, tr.Timestamp)
	assert.False(t, tr.Bundled)

	assert.True(t, f.sink.HasUser(walletAddr))
	assert.Len(t, f.dedup.entries[launchpad.EventTrade], 1)
	assert.Equal(t, []string{notify.TypeTrade}, f.notifier.types)
}

func TestOnTrade_Sell(t *testing.T) {
	f := newFixture(t)
	f.expectPricing()
	f.reader.On("BlockTimestamp", mock.Anything, uint64(120)).Return(blockTime, nil)

	require.NoError(t, f.handler.OnTrade(context.Background(), tradeEvent(t, "0xdef", false)))
	assert.Equal(t, sink.SideSell, f.sink.Trades()[0].Side)
}

func TestOnTrade_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.expectPricing()
	f.reader.On("BlockTimestamp", mock.Anything, uint64(120)).Return(blockTime, nil)

	ev := tradeEvent(t, "0xdef", true)
	require.NoError(t, f.handler.OnTrade(context.Background(), ev))
	require.NoError(t, f.handler.OnTrade(context.Background(), ev))

	// a restarted process has an empty cache and relies on the sink
	f.dedup.seen = map[string]bool{}
	require.NoError(t, f.handler.OnTrade(context.Background(), ev))

	assert.Len(t, f.sink.Trades(), 1)
	assert.Len(t, f.dedup.entries[launchpad.EventTrade], 1)
	f.reader.AssertNumberOfCalls(t, "BlockTimestamp", 1)
}

func TestOnTrade_MarketCapFailureRecordsZero(t *testing.T) {
	f := newFixture(t)
	transient := &reader.TransientReadError{Op: "totalSupply", Err: errors.New("timeout")}
	f.reader.On("ReadTotalSupply", mock.Anything, tokenAddr).Return(nil, transient)
	f.reader.On("BlockTimestamp", mock.Anything, uint64(120)).Return(blockTime, nil)

	require.NoError(t, f.handler.OnTrade(context.Background(), tradeEvent(t, "0xdef", true)))

	trades := f.sink.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, 0.0, trades[0].MarketCapUSD)
	f.reader.AssertNumberOfCalls(t, "ReadTotalSupply", 2)
}

func TestOnTrade_BlockTimestampRetried(t *testing.T) {
	f := newFixture(t)
	f.expectPricing()
	f.reader.On("BlockTimestamp", mock.Anything, uint64(120)).Return(time.Time{}, errors.New("header not found")).Twice()
	f.reader.On("BlockTimestamp", mock.Anything, uint64(120)).Return(blockTime, nil).Once()

	require.NoError(t, f.handler.OnTrade(context.Background(), tradeEvent(t, "0xdef", true)))
	assert.Equal(t, blockTime, f.sink.Trades()[0].Timestamp)
}

func TestOnTrade_BlockTimestampExhausted(t *testing.T) {
	f := newFixture(t)
	f.expectPricing()
	f.reader.On("BlockTimestamp", mock.Anything, uint64(120)).Return(time.Time{}, errors.New("header not found"))

	err := f.handler.OnTrade(context.Background(), tradeEvent(t, "0xdef", true))
	require.Error(t, err)
	assert.True(t, reader.IsTransient(err), "caller must be able to retry the event")
	assert.Empty(t, f.sink.Trades())
	assert.Empty(t, f.dedup.entries)
	f.reader.AssertNumberOfCalls(t, "BlockTimestamp", 3)

	// once the node recovers the same trade is recorded
	f.reader.ExpectedCalls = nil
	f.expectPricing()
	f.reader.On("BlockTimestamp", mock.Anything, uint64(120)).Return(blockTime, nil)
	require.NoError(t, f.handler.OnTrade(context.Background(), tradeEvent(t, "0xdef", true)))
	assert.Len(t, f.sink.Trades(), 1)
}

func TestOnTrade_WithoutPricer(t *testing.T) {
	r := new(mockReader)
	s := sink.NewMemorySink()
	h := New(Options{Version: "V2", Reader: r, Sink: s, Dedup: newMemDedup()})
	r.On("BlockTimestamp", mock.Anything, uint64(120)).Return(blockTime, nil)

	require.NoError(t, h.OnTrade(context.Background(), tradeEvent(t, "0xdef", true)))
	assert.Equal(t, "V2", s.Trades()[0].Version)
	assert.Equal(t, 0.0, s.Trades()[0].MarketCapUSD)
}

func TestHandleLog_RemovedAndUnknown(t *testing.T) {
	f := newFixture(t)

	l := launchpadtest.TokenDeployedLog(contractAddr, tokenAddr, walletAddr, 1, 100, common.HexToHash("0xabc"))
	l.Removed = true
	require.NoError(t, f.handler.HandleLog(context.Background(), l))
	assert.Empty(t, f.sink.Tokens())

	err := f.handler.HandleLog(context.Background(), types.Log{Topics: []common.Hash{common.HexToHash("0x01")}})
	assert.Error(t, err)
}
