package decoder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	ErrNoTopics         = errors.New("log has no topics")
	ErrUnknownSignature = errors.New("event signature not found in ABI")
)

// ABIWrapper wraps the decoding logic using go-ethereum's ABI parser.
type ABIWrapper struct {
	parsedABI abi.ABI
}

// NewFromJSON creates a decoder from a JSON ABI string
func NewFromJSON(jsonStr string) (*ABIWrapper, error) {
	parsed, err := abi.JSON(strings.NewReader(jsonStr))
	if err != nil {
		return nil, err
	}
	return &ABIWrapper{parsedABI: parsed}, nil
}

// NewFromABI wraps an already parsed ABI.
func NewFromABI(parsed abi.ABI) *ABIWrapper {
	return &ABIWrapper{parsedABI: parsed}
}

// ABI returns the wrapped ABI.
func (w *ABIWrapper) ABI() abi.ABI {
	return w.parsedABI
}

// EventID returns topic0 of the named event.
func (w *ABIWrapper) EventID(name string) (common.Hash, error) {
	ev, ok := w.parsedABI.Events[name]
	if !ok {
		return common.Hash{}, fmt.Errorf("event %q not found in ABI", name)
	}
	return ev.ID, nil
}

// DecodedLog contains parsed human-readable data from a transaction log.
type DecodedLog struct {
	Name   string                 // Event name (e.g., Trade)
	Inputs map[string]interface{} // Parameter key-value pairs
}

// Decode parses a single Log
func (w *ABIWrapper) Decode(log types.Log) (*DecodedLog, error) {
	if len(log.Topics) == 0 {
		return nil, ErrNoTopics
	}

	event, err := w.parsedABI.EventByID(log.Topics[0])
	if err != nil {
		return nil, ErrUnknownSignature
	}

	result := &DecodedLog{
		Name:   event.Name,
		Inputs: make(map[string]interface{}),
	}

	// Non-indexed parameters live in Data
	if len(log.Data) > 0 {
		if err := w.parsedABI.UnpackIntoMap(result.Inputs, event.Name, log.Data); err != nil {
			return nil, err
		}
	}

	var indexedArgs abi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexedArgs = append(indexedArgs, arg)
		}
	}

	// Topics[0] is the signature, the rest are indexed parameters
	if len(log.Topics)-1 != len(indexedArgs) {
		return nil, fmt.Errorf("topic count mismatch: expected %d, got %d", len(indexedArgs), len(log.Topics)-1)
	}

	if err := abi.ParseTopicsIntoMap(result.Inputs, indexedArgs, log.Topics[1:]); err != nil {
		return nil, err
	}

	return result, nil
}
