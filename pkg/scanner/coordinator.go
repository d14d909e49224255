package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"
)

// Coordinator runs scan rounds over every version. Only one round runs at a
// time; triggers that arrive meanwhile are dropped.
type Coordinator struct {
	scanners []*Scanner
	running  atomic.Bool
	wg       sync.WaitGroup
}

func NewCoordinator(scanners ...*Scanner) *Coordinator {
	return &Coordinator{scanners: scanners}
}

// Running reports whether a round is in flight.
func (c *Coordinator) Running() bool {
	return c.running.Load()
}

// TriggerScan runs one round, scanning all versions concurrently, and returns
// false without scanning if another round is still running.
func (c *Coordinator) TriggerScan(ctx context.Context) bool {
	if !c.running.CompareAndSwap(false, true) {
		log.Debug("Scan round already running, trigger dropped")
		return false
	}
	defer c.running.Store(false)

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, s := range c.scanners {
		s := s
		g.Go(func() error {
			res, err := s.Scan(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", s.Version(), err))
				mu.Unlock()
				return nil
			}
			if res.Chunks > 0 || res.Abandoned {
				log.Info("Scan finished", "version", s.Version(), "from", res.From, "to", res.To,
					"safe", res.Safe, "chunks", res.Chunks, "events", res.Events, "abandoned", res.Abandoned)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		log.Warn("Scan round finished with errors", "err", err)
	}
	return true
}

// TriggerAsync starts a round in the background. Wait blocks until it is done.
func (c *Coordinator) TriggerAsync(ctx context.Context) {
	if c.running.Load() {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.TriggerScan(ctx)
	}()
}

// Wait blocks until every round started by TriggerAsync has returned.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}
