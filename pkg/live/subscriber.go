// Package live routes pushed launchpad events to the handlers and schedules
// reconciliation scans on a block cadence.
package live

import (
	"context"
	"errors"
	"fmt"

	"github.com/84hero/launchpad-indexer/internal/metrics"
	"github.com/84hero/launchpad-indexer/internal/retry"
	"github.com/84hero/launchpad-indexer/pkg/reader"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
)

// Streamer is the push surface of a websocket endpoint. *ethclient.Client implements it.
type Streamer interface {
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
}

type LogHandler interface {
	HandleLog(ctx context.Context, l types.Log) error
}

// Subscriber follows one event kind of one contract version.
type Subscriber struct {
	version string
	kind    string
	query   ethereum.FilterQuery
	stream  Streamer
	handler LogHandler
	backoff retry.Strategy
}

func NewSubscriber(version, kind string, contract common.Address, s Streamer, h LogHandler) (*Subscriber, error) {
	f, err := reader.NewFilter().AddContract(contract).AddEvent(kind)
	if err != nil {
		return nil, fmt.Errorf("%s %s filter: %w", version, kind, err)
	}
	return &Subscriber{
		version: version,
		kind:    kind,
		query:   f.Query(),
		stream:  s,
		handler: h,
		backoff: retry.Exponential(0),
	}, nil
}

func (s *Subscriber) String() string { return s.version + "/" + s.kind }

// Run delivers events until ctx is done. A dropped subscription is
// re-established with exponential backoff; blocks missed meanwhile are
// picked up by the next reconciliation scan.
func (s *Subscriber) Run(ctx context.Context) error {
	for {
		logs := make(chan types.Log, 64)
		sub, err := s.subscribe(ctx, logs)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		log.Info("Live subscription started", "version", s.version, "kind", s.kind)

		err = s.consume(ctx, sub, logs)
		sub.Unsubscribe()
		if err == nil {
			log.Info("Live subscription stopped", "version", s.version, "kind", s.kind)
			return nil
		}

		metrics.Resubscribed(s.version, s.kind)
		log.Warn("Live subscription dropped, resubscribing", "version", s.version, "kind", s.kind, "err", err)
	}
}

func (s *Subscriber) subscribe(ctx context.Context, logs chan types.Log) (ethereum.Subscription, error) {
	var sub ethereum.Subscription
	err := retry.Do(ctx, s.backoff, func(ctx context.Context) error {
		var err error
		sub, err = s.stream.SubscribeFilterLogs(ctx, s.query, logs)
		return err
	}, func(failed int, err error) {
		log.Warn("Subscribe failed", "version", s.version, "kind", s.kind, "attempt", failed, "err", err)
	})
	return sub, err
}

// consume returns nil on shutdown and the subscription error otherwise.
func (s *Subscriber) consume(ctx context.Context, sub ethereum.Subscription, logs <-chan types.Log) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sub.Err():
			if err == nil {
				err = errors.New("subscription closed")
			}
			return err
		case l := <-logs:
			if err := s.handler.HandleLog(context.WithoutCancel(ctx), l); err != nil {
				log.Error("Failed to handle live event", "version", s.version, "kind", s.kind,
					"block", l.BlockNumber, "tx", l.TxHash, "err", err)
			}
		}
	}
}
