// Package reader is the read-only view of one launchpad deployment (or the oracle) over JSON-RPC.
package reader

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/84hero/launchpad-indexer/pkg/launchpad"
	"github.com/84hero/launchpad-indexer/pkg/rpc"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Reader performs side-effect-free reads for one contract.
type Reader struct {
	name     string
	client   rpc.Client
	contract common.Address
	sentinel common.Address
}

// New creates a reader for contract. A contract equal to sentinel (or the zero
// address) marks the version as inactive.
func New(name string, client rpc.Client, contract, sentinel common.Address) *Reader {
	return &Reader{
		name:     name,
		client:   client,
		contract: contract,
		sentinel: sentinel,
	}
}

func (r *Reader) Name() string             { return r.name }
func (r *Reader) Contract() common.Address { return r.contract }
func (r *Reader) Client() rpc.Client       { return r.client }

// Active reports whether the contract address is a real deployment.
func (r *Reader) Active() bool {
	return r.contract != (common.Address{}) && r.contract != r.sentinel
}

// QueryEvents returns the logs of one event kind in the inclusive range [from, to].
// No matching events yields an empty slice, not an error.
func (r *Reader) QueryEvents(ctx context.Context, kind string, from, to uint64) ([]types.Log, error) {
	if !r.Active() {
		return nil, ErrInactive
	}
	if to < from {
		return nil, fmt.Errorf("invalid range [%d, %d]", from, to)
	}

	f, err := NewFilter().AddContract(r.contract).AddEvent(kind)
	if err != nil {
		return nil, err
	}

	logs, err := r.client.FilterLogs(ctx, f.ToQuery(from, to))
	if err != nil {
		return nil, transient("queryEvents("+kind+")", err)
	}
	if logs == nil {
		logs = []types.Log{}
	}
	return logs, nil
}

// CurrentBlockHeight returns the latest block number known to the upstream.
func (r *Reader) CurrentBlockHeight(ctx context.Context) (uint64, error) {
	h, err := r.client.BlockNumber(ctx)
	if err != nil {
		return 0, transient("currentBlockHeight", err)
	}
	return h, nil
}

// BlockTimestamp returns the wall-clock time of a block.
func (r *Reader) BlockTimestamp(ctx context.Context, number uint64) (time.Time, error) {
	header, err := r.client.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return time.Time{}, transient("blockTimestamp", err)
	}
	if header == nil {
		return time.Time{}, transient("blockTimestamp", fmt.Errorf("block %d not found", number))
	}
	return time.Unix(int64(header.Time), 0).UTC(), nil
}

// ReadAmountOut quotes the launchpad curve for amountIn of token.
func (r *Reader) ReadAmountOut(ctx context.Context, token common.Address, amountIn *big.Int, isBuy bool) (*big.Int, error) {
	if !r.Active() {
		return nil, ErrInactive
	}
	return r.callUint256(ctx, launchpad.ABI(), r.contract, launchpad.MethodGetAmountOut, token, amountIn, isBuy)
}

// ReadTotalSupply reads the ERC-20 total supply of token.
func (r *Reader) ReadTotalSupply(ctx context.Context, token common.Address) (*big.Int, error) {
	return r.callUint256(ctx, launchpad.ERC20(), token, launchpad.MethodTotalSupply)
}

// ReadDecimals reads the ERC-20 decimals of token.
func (r *Reader) ReadDecimals(ctx context.Context, token common.Address) (uint8, error) {
	out, err := r.call(ctx, launchpad.ERC20(), token, launchpad.MethodDecimals)
	if err != nil {
		return 0, err
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals: unexpected type %T", out[0])
	}
	return d, nil
}

// ReadLatestPrice reads the native currency price in USD (8 decimals) from the oracle.
func (r *Reader) ReadLatestPrice(ctx context.Context, oracle common.Address) (*big.Int, error) {
	return r.callUint256(ctx, launchpad.Oracle(), oracle, launchpad.MethodGetLatestETHPrice)
}

func (r *Reader) callUint256(ctx context.Context, contractABI abi.ABI, to common.Address, method string, args ...interface{}) (*big.Int, error) {
	out, err := r.call(ctx, contractABI, to, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected type %T", method, out[0])
	}
	return v, nil
}

func (r *Reader) call(ctx context.Context, contractABI abi.ABI, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	input, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	res, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
	if err != nil {
		return nil, transient(method, err)
	}

	out, err := contractABI.Unpack(method, res)
	if err != nil {
		// empty or malformed return data, usually a node lagging behind
		return nil, transient(method, fmt.Errorf("unpack: %w", err))
	}
	if len(out) == 0 {
		return nil, transient(method, fmt.Errorf("empty result"))
	}
	return out, nil
}
