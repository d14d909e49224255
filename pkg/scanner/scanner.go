// Package scanner backfills launchpad events in bounded, persisted chunks.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/84hero/launchpad-indexer/internal/metrics"
	"github.com/84hero/launchpad-indexer/internal/retry"
	"github.com/84hero/launchpad-indexer/pkg/checkpoint"
	"github.com/84hero/launchpad-indexer/pkg/launchpad"
	"github.com/84hero/launchpad-indexer/pkg/reader"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
)

var ErrScanInProgress = errors.New("scan already in progress")

type Config struct {
	// Confirmations: blocks below the head that are never requested
	Confirmations uint64
	ChunkSize     uint64
	// ChunkDelay is slept between chunks to stay under upstream rate limits
	ChunkDelay time.Duration
	// MaxRetries is the total number of attempts per chunk
	MaxRetries int
	// RetryDelay grows linearly: RetryDelay × attempt
	RetryDelay time.Duration
}

// EventReader is the chain access of one contract version.
type EventReader interface {
	Name() string
	Active() bool
	CurrentBlockHeight(ctx context.Context) (uint64, error)
	QueryEvents(ctx context.Context, kind string, from, to uint64) ([]types.Log, error)
}

// LogHandler consumes the logs of a chunk in block order.
type LogHandler interface {
	HandleLog(ctx context.Context, l types.Log) error
}

// CursorStore persists scan progress.
type CursorStore interface {
	Cursor(version string) (checkpoint.Cursor, bool)
	Update(version string, fn func(c *checkpoint.Cursor)) (checkpoint.Cursor, error)
}

// Result summarizes one Scan call.
type Result struct {
	From      uint64
	To        uint64 // cursor position when the scan returned
	Safe      uint64
	Chunks    int
	Events    int
	Abandoned bool
}

// Scanner advances the cursor of one contract version.
type Scanner struct {
	version string
	reader  EventReader
	handler LogHandler
	store   CursorStore
	config  Config

	mu sync.Mutex
}

func New(version string, r EventReader, h LogHandler, store CursorStore, cfg Config) *Scanner {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 250
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Scanner{
		version: version,
		reader:  r,
		handler: h,
		store:   store,
		config:  cfg,
	}
}

func (s *Scanner) Version() string { return s.version }

// Scan runs the two-phase backfill up to the confirmed head. Only one Scan per
// version runs at a time; a concurrent call returns ErrScanInProgress.
//
// Once a chunk has started it runs to completion and is persisted even if ctx
// is cancelled; cancellation is only observed between chunks.
func (s *Scanner) Scan(ctx context.Context) (Result, error) {
	if !s.mu.TryLock() {
		return Result{}, ErrScanInProgress
	}
	defer s.mu.Unlock()

	cur, ok := s.store.Cursor(s.version)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", checkpoint.ErrUnknownVersion, s.version)
	}
	res := Result{From: cur.LastProcessedBlock, To: cur.LastProcessedBlock}

	height, err := s.reader.CurrentBlockHeight(ctx)
	if err != nil {
		return res, err
	}
	var safe uint64
	if height > s.config.Confirmations {
		safe = height - s.config.Confirmations
	}
	res.Safe = safe

	if cur.LastProcessedBlock >= safe {
		return res, nil
	}

	if !s.reader.Active() {
		cur, err = s.store.Update(s.version, func(c *checkpoint.Cursor) {
			c.Advance(safe)
		})
		res.To = cur.LastProcessedBlock
		log.Info("Version inactive, cursor fast-forwarded", "version", s.version, "block", safe)
		return res, err
	}

	run := &chunkRun{Scanner: s, ctx: ctx, work: context.WithoutCancel(ctx), res: &res}

	if cur.Backfilling() {
		until := min(cur.BoundedTarget, safe)
		if cur.LastProcessedBlock < until && !run.scanRange(cur.LastProcessedBlock, until) {
			return res, ctx.Err()
		}
		if until < cur.BoundedTarget {
			// the bounded target is not confirmed yet
			return res, nil
		}
		cur, err = s.store.Update(s.version, func(c *checkpoint.Cursor) {
			c.Advance(c.BoundedTarget)
			c.CompleteBackfill()
		})
		if err != nil {
			log.Error("Failed to persist backfill completion", "version", s.version, "err", err)
		}
		log.Info("Bounded backfill complete", "version", s.version, "target", cur.BoundedTarget)
	}

	cur, _ = s.store.Cursor(s.version)
	start := max(cur.LastProcessedBlock, cur.BoundedTarget)
	if start < safe && !run.scanRange(start, safe) {
		return res, ctx.Err()
	}
	return res, nil
}

// chunkRun carries the state of one Scan across its phases.
type chunkRun struct {
	*Scanner
	ctx     context.Context // cancelled on shutdown
	work    context.Context // never cancelled, used inside a chunk
	res     *Result
	started bool
}

// scanRange processes [from, to) in chunks. It returns false if a chunk was
// abandoned or the scan was cancelled. A chunk is abandoned when its read
// exhausts the retries or a handler fails with a transient read error; its
// cursor does not advance. Other handler errors are logged and skipped.
func (r *chunkRun) scanRange(from, to uint64) bool {
	for start := from; start < to; {
		if r.ctx.Err() != nil {
			return false
		}
		if r.started {
			if err := retry.Sleep(r.ctx, r.config.ChunkDelay); err != nil {
				return false
			}
		}
		r.started = true

		end := min(start+r.config.ChunkSize, to)
		logs, err := r.readChunk(start, end-1)
		if err != nil {
			metrics.ChunkAbandoned(r.version)
			r.res.Abandoned = true
			log.Error("Chunk abandoned, will retry on next trigger",
				"version", r.version, "from", start, "to", end-1, "attempts", r.config.MaxRetries, "err", err)
			return false
		}

		for _, l := range logs {
			err := r.handler.HandleLog(r.work, l)
			if err == nil {
				continue
			}
			if reader.IsTransient(err) {
				metrics.ChunkAbandoned(r.version)
				r.res.Abandoned = true
				log.Error("Event could not be handled, chunk will be retried on next trigger",
					"version", r.version, "from", start, "to", end-1, "block", l.BlockNumber, "tx", l.TxHash, "err", err)
				return false
			}
			log.Error("Failed to handle event", "version", r.version, "block", l.BlockNumber,
				"tx", l.TxHash, "index", l.Index, "err", err)
		}

		cur, err := r.store.Update(r.version, func(c *checkpoint.Cursor) {
			c.Advance(end)
		})
		if err != nil {
			log.Error("Failed to persist cursor", "version", r.version, "block", end, "err", err)
		}

		metrics.ChunkScanned(r.version)
		r.res.Chunks++
		r.res.Events += len(logs)
		r.res.To = cur.LastProcessedBlock
		log.Info("Chunk scanned", "version", r.version, "from", start, "to", end-1, "events", len(logs))

		start = end
	}
	return true
}

// readChunk fetches both event kinds for the inclusive range and orders them
// by block and log index. The whole chunk is retried on a transient failure.
func (r *chunkRun) readChunk(from, to uint64) ([]types.Log, error) {
	var logs []types.Log
	strategy := retry.Linear{Attempts: r.config.MaxRetries, Base: r.config.RetryDelay}

	err := retry.Do(r.work, strategy, func(ctx context.Context) error {
		logs = logs[:0]
		for _, kind := range launchpad.EventKinds {
			got, err := r.reader.QueryEvents(ctx, kind, from, to)
			if err != nil {
				if !reader.IsTransient(err) {
					return retry.Permanent(err)
				}
				return err
			}
			logs = append(logs, got...)
		}
		return nil
	}, func(failed int, err error) {
		metrics.ChunkRetry(r.version)
		log.Warn("Chunk read failed, retrying", "version", r.version, "from", from, "to", to,
			"attempt", failed, "err", err)
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})
	return logs, nil
}
