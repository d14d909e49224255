// Package handler turns decoded launchpad events into sink records.
package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/84hero/launchpad-indexer/internal/metrics"
	"github.com/84hero/launchpad-indexer/internal/retry"
	"github.com/84hero/launchpad-indexer/pkg/launchpad"
	"github.com/84hero/launchpad-indexer/pkg/notify"
	"github.com/84hero/launchpad-indexer/pkg/reader"
	"github.com/84hero/launchpad-indexer/pkg/sink"
	"github.com/84hero/launchpad-indexer/pkg/storage"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
)

// Reader is the chain access of one contract version.
type Reader interface {
	TokenReader
	BlockTimestamp(ctx context.Context, number uint64) (time.Time, error)
}

// Deduper is the process cache and persisted dedup log.
type Deduper interface {
	Seen(key string) bool
	Remember(key string)
	RecordDedup(kind string, entry storage.DedupEntry) error
}

type Options struct {
	Version  string
	Reader   Reader
	Pricer   *Pricer // nil records trades without market cap
	Sink     sink.Sink
	Dedup    Deduper
	Notifier notify.Notifier
	// BlockRetry bounds block timestamp reads
	BlockRetry retry.Strategy
}

// Handler processes the events of one contract version. Trades are always
// priced through that version's own reader.
type Handler struct {
	version    string
	reader     Reader
	pricer     *Pricer
	sink       sink.Sink
	dedup      Deduper
	notifier   notify.Notifier
	blockRetry retry.Strategy
	now        func() time.Time
}

func New(opts Options) *Handler {
	h := &Handler{
		version:    opts.Version,
		reader:     opts.Reader,
		pricer:     opts.Pricer,
		sink:       opts.Sink,
		dedup:      opts.Dedup,
		notifier:   opts.Notifier,
		blockRetry: opts.BlockRetry,
		now:        time.Now,
	}
	if h.notifier == nil {
		h.notifier = notify.Nop{}
	}
	if h.blockRetry == nil {
		h.blockRetry = retry.Linear{Attempts: 1}
	}
	return h
}

func (h *Handler) Version() string { return h.version }

// HandleLog decodes a raw log and routes it to the matching handler.
func (h *Handler) HandleLog(ctx context.Context, l types.Log) error {
	if l.Removed {
		log.Debug("Ignoring removed log", "version", h.version, "tx", l.TxHash)
		return nil
	}

	ev, err := launchpad.ParseLog(l)
	if err != nil {
		metrics.EventHandled("unknown", metrics.OutcomeFailed)
		return fmt.Errorf("decode log %s/%d: %w", l.TxHash.Hex(), l.Index, err)
	}

	switch e := ev.(type) {
	case *launchpad.TokenDeployed:
		return h.OnTokenDeployed(ctx, e)
	case *launchpad.Trade:
		return h.OnTrade(ctx, e)
	}
	return nil
}

// OnTokenDeployed records a new token unless the sink already knows it.
func (h *Handler) OnTokenDeployed(ctx context.Context, ev *launchpad.TokenDeployed) error {
	kind := launchpad.EventTokenDeployed
	tx := ev.Raw.TxHash

	exists, err := h.sink.TokenExists(ctx, ev.Token)
	if err != nil {
		metrics.EventHandled(kind, metrics.OutcomeFailed)
		return fmt.Errorf("token exists %s: %w", ev.Token.Hex(), err)
	}
	if exists {
		metrics.EventHandled(kind, metrics.OutcomeSkipped)
		return nil
	}

	index := "0"
	if ev.Index != nil {
		index = ev.Index.String()
	}
	rec := sink.DeploymentRecord{
		Version:       h.version,
		Token:         ev.Token,
		Creator:       ev.Creator,
		CreationIndex: index,
		TxHash:        tx,
		BlockNumber:   ev.Raw.BlockNumber,
	}
	if err := h.sink.UpsertToken(ctx, rec); err != nil {
		metrics.EventHandled(kind, metrics.OutcomeFailed)
		return fmt.Errorf("upsert token %s: %w", ev.Token.Hex(), err)
	}

	h.recordDedup(kind, tx.Hex(), ev.Raw.BlockNumber, ev.Token)
	h.broadcast(ctx, notify.TypeTokenDeployed, rec)

	metrics.EventHandled(kind, metrics.OutcomeRecorded)
	log.Info("Token deployed", "version", h.version, "token", ev.Token, "creator", ev.Creator, "block", ev.Raw.BlockNumber)
	return nil
}

// OnTrade records a trade unless the sink already has it for this wallet.
// A failed market cap derivation records the trade with a zero market cap. A
// block timestamp that cannot be read fails with a TransientReadError and
// nothing is recorded.
func (h *Handler) OnTrade(ctx context.Context, ev *launchpad.Trade) error {
	kind := launchpad.EventTrade
	tx := ev.Raw.TxHash
	key := tx.Hex() + ":" + ev.User.Hex()

	if h.dedup.Seen(key) {
		metrics.EventHandled(kind, metrics.OutcomeSkipped)
		return nil
	}

	exists, err := h.sink.TransactionExists(ctx, tx, ev.User)
	if err != nil {
		metrics.EventHandled(kind, metrics.OutcomeFailed)
		return fmt.Errorf("transaction exists %s: %w", tx.Hex(), err)
	}
	if exists {
		h.dedup.Remember(key)
		metrics.EventHandled(kind, metrics.OutcomeSkipped)
		return nil
	}

	var marketCap float64
	if h.pricer != nil {
		marketCap, err = h.pricer.MarketCap(ctx, h.reader, ev.Token)
		if err != nil {
			log.Warn("Market cap unavailable, recording trade without it",
				"version", h.version, "token", ev.Token, "tx", tx, "err", err)
			marketCap = 0
		}
	}

	ts, err := h.blockTime(ctx, ev.Raw.BlockNumber)
	if err != nil {
		metrics.EventHandled(kind, metrics.OutcomeFailed)
		return fmt.Errorf("block %d timestamp: %w", ev.Raw.BlockNumber, err)
	}

	side := sink.SideSell
	if ev.IsBuy {
		side = sink.SideBuy
	}
	rec := sink.TradeRecord{
		Version:      h.version,
		Wallet:       ev.User,
		Token:        ev.Token,
		Side:         side,
		ETHAmount:    toFloat(ev.ETHAmount),
		TokenAmount:  toFloat(ev.TokenAmount),
		MarketCapUSD: marketCap,
		TxHash:       tx,
		BlockNumber:  ev.Raw.BlockNumber,
		Timestamp:    ts,
		Bundled:      false,
	}

	if err := h.sink.UpsertUser(ctx, ev.User); err != nil {
		metrics.EventHandled(kind, metrics.OutcomeFailed)
		return fmt.Errorf("upsert user %s: %w", ev.User.Hex(), err)
	}
	if err := h.sink.AppendTransaction(ctx, rec); err != nil {
		metrics.EventHandled(kind, metrics.OutcomeFailed)
		return fmt.Errorf("append transaction %s: %w", tx.Hex(), err)
	}

	h.dedup.Remember(key)
	h.recordDedup(kind, tx.Hex(), ev.Raw.BlockNumber, ev.Token)
	h.broadcast(ctx, notify.TypeTrade, rec)

	metrics.EventHandled(kind, metrics.OutcomeRecorded)
	log.Debug("Trade recorded", "version", h.version, "token", ev.Token, "side", side,
		"eth", rec.ETHAmount, "mcap", marketCap, "block", ev.Raw.BlockNumber)
	return nil
}

func (h *Handler) blockTime(ctx context.Context, number uint64) (time.Time, error) {
	var ts time.Time
	err := retry.Do(ctx, h.blockRetry, func(ctx context.Context) error {
		var err error
		ts, err = h.reader.BlockTimestamp(ctx, number)
		return err
	}, func(failed int, err error) {
		log.Debug("Retrying block timestamp", "version", h.version, "block", number, "attempt", failed, "err", err)
	})
	if err != nil && !reader.IsTransient(err) {
		err = &reader.TransientReadError{Op: "blockTimestamp", Err: err}
	}
	return ts, err
}

// recordDedup failures are logged only; the sink already holds the record.
func (h *Handler) recordDedup(kind, tx string, block uint64, token common.Address) {
	entry := storage.DedupEntry{
		Hash:      tx,
		Block:     block,
		Token:     token.Hex(),
		Timestamp: h.now().UTC(),
	}
	if err := h.dedup.RecordDedup(kind, entry); err != nil {
		log.Warn("Failed to append dedup entry", "version", h.version, "kind", kind, "tx", tx, "err", err)
	}
}

func (h *Handler) broadcast(ctx context.Context, eventType string, payload any) {
	if err := h.notifier.Broadcast(ctx, eventType, payload); err != nil {
		log.Warn("Failed to broadcast notification", "version", h.version, "type", eventType, "err", err)
	}
}
