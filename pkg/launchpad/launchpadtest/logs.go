// Package launchpadtest builds raw launchpad logs for tests.
package launchpadtest

import (
	"math/big"

	"github.com/84hero/launchpad-indexer/pkg/launchpad"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TokenDeployedLog encodes a TokenDeployed log emitted by contract.
func TokenDeployedLog(contract, token, creator common.Address, index int64, block uint64, tx common.Hash) types.Log {
	ev := launchpad.ABI().Events[launchpad.EventTokenDeployed]
	data, err := ev.Inputs.NonIndexed().Pack(big.NewInt(index))
	if err != nil {
		panic(err)
	}
	return types.Log{
		Address:     contract,
		Topics:      []common.Hash{ev.ID, common.BytesToHash(token.Bytes()), common.BytesToHash(creator.Bytes())},
		Data:        data,
		BlockNumber: block,
		TxHash:      tx,
	}
}

// TradeLog encodes a Trade log emitted by contract.
func TradeLog(contract, user, token common.Address, isBuy bool, eth, amount *big.Int, block uint64, tx common.Hash) types.Log {
	ev := launchpad.ABI().Events[launchpad.EventTrade]
	data, err := ev.Inputs.NonIndexed().Pack(isBuy, eth, amount)
	if err != nil {
		panic(err)
	}
	return types.Log{
		Address:     contract,
		Topics:      []common.Hash{ev.ID, common.BytesToHash(user.Bytes()), common.BytesToHash(token.Bytes())},
		Data:        data,
		BlockNumber: block,
		TxHash:      tx,
	}
}
