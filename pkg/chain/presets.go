package chain

import (
	"sync"
	"time"
)

// Preset defines the default scanning parameters for a chain
type Preset struct {
	ChainID       string
	BlockTime     time.Duration // Average block time (drives head polling)
	Confirmations uint64        // Recommended confirmation depth
	ChunkSize     uint64        // Recommended eth_getLogs range
}

var (
	registry = make(map[string]Preset)
	mu       sync.RWMutex
)

// Register adds a new chain preset to the global registry.
func Register(name string, p Preset) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = p
}

// Get retrieves a preset configuration from the registry by its name.
func Get(name string) (Preset, bool) {
	mu.RLock()
	defer mu.RUnlock()
	p, ok := registry[name]
	return p, ok
}

func init() {
	Register("eth-mainnet", Preset{
		ChainID:       "1",
		BlockTime:     12 * time.Second,
		Confirmations: 12,
		ChunkSize:     100,
	})

	Register("base-mainnet", Preset{
		ChainID:       "8453",
		BlockTime:     2 * time.Second,
		Confirmations: 5,
		ChunkSize:     250,
	})

	Register("base-sepolia", Preset{
		ChainID:       "84532",
		BlockTime:     2 * time.Second,
		Confirmations: 5,
		ChunkSize:     250,
	})

	Register("bsc-mainnet", Preset{
		ChainID:       "56",
		BlockTime:     3 * time.Second,
		Confirmations: 15, // BSC reorgs are relatively frequent
		ChunkSize:     200,
	})
}
