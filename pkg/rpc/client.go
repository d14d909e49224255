package rpc

import (
	"context"
	"errors"
	"math/big"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/84hero/launchpad-indexer/internal/metrics"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"
)

// Error definitions
var (
	ErrNoAvailableNodes  = errors.New("no available rpc nodes")
	ErrNoNodeMeetsHeight = errors.New("no node meets the required block height")
)

const (
	syncInterval = 5 * time.Second
	// maxLag is the number of blocks a node may trail the head before its
	// score is penalised.
	maxLag = 5
)

// MultiClient manages multiple RPC nodes, providing load balancing and failover
type MultiClient struct {
	nodes        []*Node
	globalHeight uint64

	mu sync.RWMutex
}

// NewClient initializes a multi-node client
func NewClient(ctx context.Context, configs []NodeConfig) (*MultiClient, error) {
	if len(configs) == 0 {
		return nil, errors.New("no rpc configs provided")
	}

	nodes := make([]*Node, 0, len(configs))
	for _, cfg := range configs {
		n, err := NewNode(ctx, cfg)
		if err != nil {
			// Unreachable nodes are skipped as long as at least one connects.
			log.Warn("Failed to dial rpc node", "url", cfg.URL, "err", err)
			continue
		}
		nodes = append(nodes, n)
	}

	return NewClientWithNodes(ctx, nodes)
}

// NewClientWithNodes initializes MultiClient with existing nodes (for testing or advanced usage)
func NewClientWithNodes(ctx context.Context, nodes []*Node) (*MultiClient, error) {
	if len(nodes) == 0 {
		return nil, errors.New("failed to connect to any rpc node")
	}

	mc := &MultiClient{
		nodes: nodes,
	}

	go mc.startBackgroundSync(ctx)

	return mc, nil
}

// startBackgroundSync refreshes node heights every syncInterval until ctx ends.
func (mc *MultiClient) startBackgroundSync(ctx context.Context) {
	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()

	for {
		mc.syncNodes(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// syncNodes asks every node for its head and stores the highest as the
// global height. Nodes that fail keep their previous height.
func (mc *MultiClient) syncNodes(ctx context.Context) {
	heights := make([]uint64, len(mc.nodes))

	var g errgroup.Group
	for i, n := range mc.nodes {
		i, n := i, n
		g.Go(func() error {
			// Maintenance traffic bypasses the rate limiter
			if h, err := n.BlockNumber(ctx); err == nil {
				heights[i] = h
			}
			return nil
		})
	}
	_ = g.Wait()

	top := slices.Max(heights)
	if top == 0 {
		return
	}
	atomic.StoreUint64(&mc.globalHeight, top)
	for i, h := range heights {
		if h > 0 && top-h > maxLag {
			log.Debug("RPC node is behind", "node", mc.nodes[i].URL(), "height", h, "head", top)
		}
	}
}

// execute performs an RPC request with retry logic and auto node switching.
// A non-zero required height restricts the request to nodes that have seen
// that block. Node heights are refreshed once before ErrNoNodeMeetsHeight is
// returned.
func (mc *MultiClient) execute(ctx context.Context, method string, required uint64, op func(*Node) error) error {
	// Max attempts = number of nodes (capped at 3 to avoid long loops)
	attempts := len(mc.nodes)
	if attempts > 3 {
		attempts = 3
	}

	metrics.RPCMethodInc(method)
	start := time.Now()
	defer func() { metrics.RPCMethodDuration(method, time.Since(start)) }()

	var lastErr error
	for i := 0; i < attempts; i++ {
		node, err := mc.pickAvailableNodeWithHeight(ctx, required)
		if errors.Is(err, ErrNoNodeMeetsHeight) {
			// Cached heights may trail a block seen over a subscription.
			mc.syncNodes(ctx)
			node, err = mc.pickAvailableNodeWithHeight(ctx, required)
			if errors.Is(err, ErrNoNodeMeetsHeight) {
				log.Debug("No rpc node has reached the requested block", "method", method, "block", required, "global", atomic.LoadUint64(&mc.globalHeight))
			}
		}
		if err != nil {
			metrics.RPCMethodError(method)
			return err
		}

		err = op(node)
		node.Release()
		if err == nil {
			return nil
		}

		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}
		log.Debug("RPC request failed, switching node", "method", method, "node", node.URL(), "err", err)
	}

	metrics.RPCMethodError(method)
	return lastErr
}

// query runs fn through execute and hands back its result.
func query[T any](ctx context.Context, mc *MultiClient, method string, required uint64, fn func(*Node) (T, error)) (T, error) {
	var res T
	err := mc.execute(ctx, method, required, func(n *Node) error {
		var e error
		res, e = fn(n)
		return e
	})
	return res, err
}

// ChainID retrieves the chain ID from the best available node
func (mc *MultiClient) ChainID(ctx context.Context) (*big.Int, error) {
	return query(ctx, mc, "eth_chainId", 0, func(n *Node) (*big.Int, error) {
		return n.ChainID(ctx)
	})
}

// BlockNumber returns the highest head seen across nodes by the background
// sync, asking a node directly only until the first sync has completed.
func (mc *MultiClient) BlockNumber(ctx context.Context) (uint64, error) {
	if h := atomic.LoadUint64(&mc.globalHeight); h > 0 {
		return h, nil
	}
	return query(ctx, mc, "eth_blockNumber", 0, func(n *Node) (uint64, error) {
		return n.BlockNumber(ctx)
	})
}

// HeaderByNumber retrieves a block header from the best node that has
// already seen the block. A nil number asks any node for its head.
func (mc *MultiClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return query(ctx, mc, "eth_getBlockByNumber", heightOf(number), func(n *Node) (*types.Header, error) {
		return n.HeaderByNumber(ctx, number)
	})
}

// FilterLogs retrieves logs from the best node whose head covers q.ToBlock.
// A lagging node would answer an uncovered range with an empty result that is
// indistinguishable from a range without events.
func (mc *MultiClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return query(ctx, mc, "eth_getLogs", heightOf(q.ToBlock), func(n *Node) ([]types.Log, error) {
		return n.FilterLogs(ctx, q)
	})
}

// CallContract executes a read-only call. A call pinned to a block goes to a
// node that has seen it.
func (mc *MultiClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return query(ctx, mc, "eth_call", heightOf(blockNumber), func(n *Node) ([]byte, error) {
		return n.CallContract(ctx, msg, blockNumber)
	})
}

// Close closes all underlying RPC connections
func (mc *MultiClient) Close() {
	for _, n := range mc.nodes {
		n.Close()
	}
}

// heightOf maps an optional block number to a height requirement; nil and
// negative tags such as "latest" impose none.
func heightOf(number *big.Int) uint64 {
	if number == nil || number.Sign() <= 0 || !number.IsUint64() {
		return 0
	}
	return number.Uint64()
}

// pickAvailableNodeWithHeight selects a node that meets the height requirement
func (mc *MultiClient) pickAvailableNodeWithHeight(ctx context.Context, requiredHeight uint64) (*Node, error) {
	mc.mu.RLock()
	globalH := atomic.LoadUint64(&mc.globalHeight)
	candidates := make([]*Node, len(mc.nodes))
	copy(candidates, mc.nodes)
	mc.mu.RUnlock()

	if len(candidates) == 0 {
		return nil, ErrNoAvailableNodes
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score(globalH) > candidates[j].Score(globalH)
	})

	eligible := candidates[:0]
	for _, node := range candidates {
		if requiredHeight > 0 && !node.MeetsHeightRequirement(requiredHeight) {
			continue
		}
		eligible = append(eligible, node)
	}
	if len(eligible) == 0 {
		return nil, ErrNoNodeMeetsHeight
	}

	for _, node := range eligible {
		if err := node.TryAcquire(ctx); err == nil {
			return node, nil
		} else if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
	}

	// All eligible nodes are busy, block and wait for the best of them
	bestNode := eligible[0]
	if bestNode.IsCircuitBroken() {
		return nil, ErrNoAvailableNodes
	}

	return mc.waitForNode(ctx, bestNode)
}

// waitForNode blocks until the node becomes available
func (mc *MultiClient) waitForNode(ctx context.Context, node *Node) (*Node, error) {
	if node.limiter != nil {
		if err := node.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	if node.semaphore != nil {
		select {
		case node.semaphore <- struct{}{}:
			return node, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return node, nil
}
