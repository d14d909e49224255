// Package sink defines where normalized launchpad records end up.
package sink

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Trade sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// DeploymentRecord is created once per token.
type DeploymentRecord struct {
	Version       string         `json:"version"`
	Token         common.Address `json:"token"`
	Creator       common.Address `json:"creator"`
	CreationIndex string         `json:"creation_index"`
	TxHash        common.Hash    `json:"tx_hash"`
	BlockNumber   uint64         `json:"block_number"`
}

// TradeRecord is created once per transaction hash and wallet and never mutated.
type TradeRecord struct {
	Version      string         `json:"version"`
	Wallet       common.Address `json:"wallet"`
	Token        common.Address `json:"token"`
	Side         string         `json:"side"`
	ETHAmount    float64        `json:"eth_amount"`
	TokenAmount  float64        `json:"token_amount"`
	MarketCapUSD float64        `json:"market_cap_usd"`
	TxHash       common.Hash    `json:"tx_hash"`
	BlockNumber  uint64         `json:"block_number"`
	Timestamp    time.Time      `json:"timestamp"`
	Bundled      bool           `json:"bundled"`
}

// TokenRegistry stores launched tokens.
type TokenRegistry interface {
	TokenExists(ctx context.Context, token common.Address) (bool, error)
	UpsertToken(ctx context.Context, rec DeploymentRecord) error
}

// TransactionLog stores trades.
type TransactionLog interface {
	TransactionExists(ctx context.Context, txHash common.Hash, wallet common.Address) (bool, error)
	AppendTransaction(ctx context.Context, rec TradeRecord) error
}

// UserRegistry stores known wallets.
type UserRegistry interface {
	UpsertUser(ctx context.Context, wallet common.Address) error
}

// Sink bundles every collaborator the handlers write to.
type Sink interface {
	TokenRegistry
	TransactionLog
	UserRegistry
	Close() error
}
