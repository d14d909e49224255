package live

import (
	"context"
	"errors"
	"time"

	"github.com/84hero/launchpad-indexer/internal/metrics"
	"github.com/84hero/launchpad-indexer/internal/retry"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
)

// Trigger starts a scan round without waiting for it.
type Trigger interface {
	TriggerAsync(ctx context.Context)
}

// HeightReader is polled when no head subscription is available.
type HeightReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

type SchedulerConfig struct {
	// Interval is the scan cadence in blocks
	Interval     uint64
	PollInterval time.Duration
}

// Scheduler triggers a reconciliation scan whenever the chain head reaches a
// multiple of Interval, and once at startup.
type Scheduler struct {
	trigger Trigger
	stream  Streamer
	heights HeightReader
	config  SchedulerConfig
	backoff retry.Strategy

	last uint64
	seen bool
}

// NewScheduler follows new heads through stream, or polls heights when stream is nil.
func NewScheduler(t Trigger, stream Streamer, heights HeightReader, cfg SchedulerConfig) *Scheduler {
	if cfg.Interval == 0 {
		cfg.Interval = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	return &Scheduler{
		trigger: t,
		stream:  stream,
		heights: heights,
		config:  cfg,
		backoff: retry.Exponential(0),
	}
}

func (s *Scheduler) Run(ctx context.Context) error {
	s.fire(ctx, 0)

	if s.stream != nil {
		return s.followHeads(ctx)
	}
	if s.heights == nil {
		return errors.New("scheduler has neither a head stream nor a height reader")
	}
	return s.poll(ctx)
}

// observe reports whether head crossed an interval boundary since the last observed head.
func (s *Scheduler) observe(head uint64) bool {
	n := s.config.Interval
	metrics.SetHeadBlock(head)

	if !s.seen {
		s.seen = true
		s.last = head
		return head%n == 0
	}
	if head <= s.last {
		return false
	}
	crossed := head/n > s.last/n
	s.last = head
	return crossed
}

func (s *Scheduler) fire(ctx context.Context, head uint64) {
	if ctx.Err() != nil {
		return
	}
	metrics.ScanTriggered()
	log.Debug("Triggering scan round", "head", head)
	s.trigger.TriggerAsync(ctx)
}

func (s *Scheduler) followHeads(ctx context.Context) error {
	for {
		heads := make(chan *types.Header, 16)
		var sub ethereum.Subscription
		err := retry.Do(ctx, s.backoff, func(ctx context.Context) error {
			var err error
			sub, err = s.stream.SubscribeNewHead(ctx, heads)
			return err
		}, func(failed int, err error) {
			log.Warn("Head subscription failed", "attempt", failed, "err", err)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		err = s.consumeHeads(ctx, sub, heads)
		sub.Unsubscribe()
		if err == nil {
			return nil
		}
		log.Warn("Head subscription dropped, resubscribing", "err", err)
	}
}

func (s *Scheduler) consumeHeads(ctx context.Context, sub ethereum.Subscription, heads <-chan *types.Header) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sub.Err():
			if err == nil {
				err = errors.New("subscription closed")
			}
			return err
		case h := <-heads:
			if h == nil || h.Number == nil {
				continue
			}
			head := h.Number.Uint64()
			if s.observe(head) {
				s.fire(ctx, head)
			}
		}
	}
}

func (s *Scheduler) poll(ctx context.Context) error {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			head, err := s.heights.BlockNumber(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Warn("Failed to poll block height", "err", err)
				}
				continue
			}
			if s.observe(head) {
				s.fire(ctx, head)
			}
		}
	}
}
