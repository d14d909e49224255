package launchpad

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var ErrUnexpectedField = errors.New("unexpected event field")

// Event is a decoded launchpad event.
type Event interface {
	Kind() string
	Log() types.Log
}

// TokenDeployed is emitted once per token created through the launchpad.
type TokenDeployed struct {
	Token   common.Address
	Creator common.Address
	Index   *big.Int
	Raw     types.Log
}

func (e *TokenDeployed) Kind() string   { return EventTokenDeployed }
func (e *TokenDeployed) Log() types.Log { return e.Raw }

// Trade is emitted for every buy or sell on the bonding curve.
type Trade struct {
	User        common.Address
	Token       common.Address
	IsBuy       bool
	ETHAmount   *big.Int
	TokenAmount *big.Int
	Raw         types.Log
}

func (e *Trade) Kind() string   { return EventTrade }
func (e *Trade) Log() types.Log { return e.Raw }

// Topic returns topic0 of an event kind.
func Topic(kind string) (common.Hash, error) {
	return launchpadDecoder.EventID(kind)
}

// ParseLog decodes a raw launchpad log into a TokenDeployed or Trade.
func ParseLog(l types.Log) (Event, error) {
	decoded, err := launchpadDecoder.Decode(l)
	if err != nil {
		return nil, err
	}

	in := decoded.Inputs
	switch decoded.Name {
	case EventTokenDeployed:
		ev := &TokenDeployed{Raw: l}
		if ev.Token, err = field[common.Address](in, "token"); err != nil {
			return nil, err
		}
		if ev.Creator, err = field[common.Address](in, "creator"); err != nil {
			return nil, err
		}
		if ev.Index, err = field[*big.Int](in, "index"); err != nil {
			return nil, err
		}
		return ev, nil

	case EventTrade:
		ev := &Trade{Raw: l}
		if ev.User, err = field[common.Address](in, "user"); err != nil {
			return nil, err
		}
		if ev.Token, err = field[common.Address](in, "token"); err != nil {
			return nil, err
		}
		if ev.IsBuy, err = field[bool](in, "isBuy"); err != nil {
			return nil, err
		}
		if ev.ETHAmount, err = field[*big.Int](in, "ethAmount"); err != nil {
			return nil, err
		}
		if ev.TokenAmount, err = field[*big.Int](in, "tokenAmount"); err != nil {
			return nil, err
		}
		return ev, nil
	}

	return nil, fmt.Errorf("unsupported event %q", decoded.Name)
}

func field[T any](in map[string]interface{}, name string) (T, error) {
	v, ok := in[name].(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s has type %T", ErrUnexpectedField, name, in[name])
	}
	return v, nil
}
