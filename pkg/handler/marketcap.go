package handler

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/84hero/launchpad-indexer/internal/retry"
	"github.com/84hero/launchpad-indexer/pkg/reader"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

var (
	ErrNoLiquidity  = errors.New("curve quote returned zero")
	ErrInvalidPrice = errors.New("oracle price is not positive")
)

const priceDecimals = 8

// oneNative is the reference amount quoted against the curve: one whole native unit.
var oneNative = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// TokenReader is the version-scoped read surface used for pricing.
type TokenReader interface {
	ReadAmountOut(ctx context.Context, token common.Address, amountIn *big.Int, isBuy bool) (*big.Int, error)
	ReadTotalSupply(ctx context.Context, token common.Address) (*big.Int, error)
	ReadDecimals(ctx context.Context, token common.Address) (uint8, error)
}

// PriceFeed reads the native/USD price with 8 decimals.
type PriceFeed interface {
	ReadLatestPrice(ctx context.Context, oracle common.Address) (*big.Int, error)
}

// Pricer derives token market caps in USD.
type Pricer struct {
	feed     PriceFeed
	oracle   common.Address
	strategy retry.Strategy
}

func NewPricer(feed PriceFeed, oracle common.Address, strategy retry.Strategy) *Pricer {
	if strategy == nil {
		strategy = retry.Linear{Attempts: 1}
	}
	return &Pricer{feed: feed, oracle: oracle, strategy: strategy}
}

// MarketCap computes supply × price per token in native × native/USD, using the
// reader of the version that emitted the trade. Transient read failures are retried.
func (p *Pricer) MarketCap(ctx context.Context, r TokenReader, token common.Address) (float64, error) {
	var mc float64
	err := retry.Do(ctx, p.strategy, func(ctx context.Context) error {
		v, err := p.marketCap(ctx, r, token)
		if err != nil && !reader.IsTransient(err) {
			return retry.Permanent(err)
		}
		mc = v
		return err
	}, func(failed int, err error) {
		log.Debug("Retrying market cap", "token", token, "attempt", failed, "err", err)
	})
	return mc, err
}

func (p *Pricer) marketCap(ctx context.Context, r TokenReader, token common.Address) (float64, error) {
	supplyRaw, err := r.ReadTotalSupply(ctx, token)
	if err != nil {
		return 0, err
	}
	decimals, err := r.ReadDecimals(ctx, token)
	if err != nil {
		return 0, err
	}
	out, err := r.ReadAmountOut(ctx, token, oneNative, true)
	if err != nil {
		return 0, err
	}
	if out.Sign() <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoLiquidity, token.Hex())
	}
	priceRaw, err := p.feed.ReadLatestPrice(ctx, p.oracle)
	if err != nil {
		return 0, err
	}
	if priceRaw.Sign() <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidPrice, priceRaw)
	}

	supply := scale(supplyRaw, decimals)
	tokensPerNative := scale(out, decimals)
	pricePerToken := new(big.Float).Quo(big.NewFloat(1), tokensPerNative)
	nativeUSD := scale(priceRaw, priceDecimals)

	mc := new(big.Float).Mul(supply, pricePerToken)
	mc.Mul(mc, nativeUSD)

	f, _ := mc.Float64()
	return f, nil
}

// scale returns v / 10^decimals.
func scale(v *big.Int, decimals uint8) *big.Float {
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return new(big.Float).Quo(new(big.Float).SetInt(v), new(big.Float).SetInt(denom))
}

// toFloat normalizes an 18 decimal amount.
func toFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := scale(v, 18).Float64()
	return f
}
