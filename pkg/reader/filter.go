package reader

import (
	"math/big"

	"github.com/84hero/launchpad-indexer/pkg/launchpad"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// Filter selects launchpad events emitted by a set of contracts.
// It is used for eth_getLogs ranges and for live log subscriptions.
type Filter struct {
	// Contracts is the list of contract addresses to listen to (Log.Address).
	Contracts []common.Address

	// Topics maps to the eth_getLogs topics parameter: [[A, B], [C], null, [D]]
	Topics [][]common.Hash
}

// NewFilter creates a new filter
func NewFilter() *Filter {
	return &Filter{
		Contracts: make([]common.Address, 0),
		Topics:    make([][]common.Hash, 0),
	}
}

// AddContract adds contract addresses to listen to
func (f *Filter) AddContract(addrs ...common.Address) *Filter {
	f.Contracts = append(f.Contracts, addrs...)
	return f
}

// SetTopic sets the topics at a specific position
// pos: 0-3 (0 is the event signature hash)
func (f *Filter) SetTopic(pos int, hashes ...common.Hash) *Filter {
	if len(f.Topics) <= pos {
		newTopics := make([][]common.Hash, pos+1)
		copy(newTopics, f.Topics)
		f.Topics = newTopics
	}
	f.Topics[pos] = append(f.Topics[pos], hashes...)
	return f
}

// AddEvent restricts topic0 to the given launchpad event kinds.
func (f *Filter) AddEvent(kinds ...string) (*Filter, error) {
	for _, kind := range kinds {
		topic, err := launchpad.Topic(kind)
		if err != nil {
			return nil, err
		}
		f.SetTopic(0, topic)
	}
	return f, nil
}

// ToQuery converts the filter to an inclusive block range query
func (f *Filter) ToQuery(fromBlock, toBlock uint64) ethereum.FilterQuery {
	q := f.Query()
	q.FromBlock = new(big.Int).SetUint64(fromBlock)
	q.ToBlock = new(big.Int).SetUint64(toBlock)
	return q
}

// Query converts the filter to a query without block range, as used by subscriptions
func (f *Filter) Query() ethereum.FilterQuery {
	return ethereum.FilterQuery{
		Addresses: f.Contracts,
		Topics:    f.Topics,
	}
}
