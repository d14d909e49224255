package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/84hero/launchpad-indexer/internal/retry"
	"github.com/84hero/launchpad-indexer/pkg/checkpoint"
	"github.com/84hero/launchpad-indexer/pkg/config"
	"github.com/84hero/launchpad-indexer/pkg/handler"
	"github.com/84hero/launchpad-indexer/pkg/launchpad"
	"github.com/84hero/launchpad-indexer/pkg/live"
	"github.com/84hero/launchpad-indexer/pkg/notify"
	"github.com/84hero/launchpad-indexer/pkg/reader"
	"github.com/84hero/launchpad-indexer/pkg/rpc"
	"github.com/84hero/launchpad-indexer/pkg/scanner"
	"github.com/84hero/launchpad-indexer/pkg/sink"
	"github.com/84hero/launchpad-indexer/pkg/storage"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
)

var errNoRPC = errors.New("no rpc endpoint configured for any contract version")

// app holds every component of a running indexer.
type app struct {
	cfg         *config.Config
	store       *checkpoint.Store
	sink        sink.Sink
	notifier    *notify.Broadcaster
	readers     []*reader.Reader
	handlers    []*handler.Handler
	coordinator *scanner.Coordinator

	closers []func()
}

func openBackend(cfg config.CheckpointConfig) (storage.Persistence, error) {
	switch cfg.Backend {
	case "memory":
		log.Warn("Using in-memory checkpoint, progress is lost on restart")
		return storage.NewMemoryStore(), nil
	case "redis":
		return storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.Prefix)
	case "postgres":
		return storage.NewPostgresStore(cfg.PostgresURL, cfg.Prefix)
	case "file", "":
		return storage.NewFileStore(cfg.Path, cfg.DedupPath), nil
	}
	return nil, fmt.Errorf("%w: unknown checkpoint backend %q", config.ErrInvalidConfig, cfg.Backend)
}

// loadStore opens the checkpoint backend and merges it with the configured start blocks.
func loadStore(cfg *config.Config) (*checkpoint.Store, storage.Persistence, error) {
	defaults, err := checkpoint.Defaults(cfg)
	if err != nil {
		return nil, nil, err
	}
	backend, err := openBackend(cfg.Checkpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("checkpoint backend: %w", err)
	}
	store, err := checkpoint.Load(backend, defaults)
	if err != nil {
		_ = backend.Close()
		return nil, nil, err
	}
	return store, backend, nil
}

func openSink(cfg *config.Config) (sink.Sink, error) {
	if cfg.Sink.PostgresURL == "" {
		log.Warn("No sink database configured, records are kept in memory only")
		return sink.NewMemorySink(), nil
	}
	return sink.NewPostgresSink(cfg.Sink.PostgresURL, cfg.Checkpoint.Prefix)
}

// newApp wires the scan path: clients, readers, handlers, scanners and the coordinator.
func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	store, backend, err := loadStore(cfg)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, func() { _ = backend.Close() })

	if a.sink, err = openSink(cfg); err != nil {
		return nil, fmt.Errorf("sink: %w", err)
	}
	a.closers = append(a.closers, func() { _ = a.sink.Close() })

	if a.notifier, err = notify.FromConfig(cfg.Notify); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = a.notifier.Close() })

	clients, err := a.dialVersions(ctx)
	if err != nil {
		return nil, err
	}
	pricer, err := a.newPricer(ctx, clients)
	if err != nil {
		return nil, err
	}

	retryDelay := cfg.Scanner.RetryDelay
	scanCfg := scanner.Config{
		Confirmations: cfg.Scanner.Confirmations,
		ChunkSize:     cfg.Scanner.ChunkSize,
		ChunkDelay:    cfg.Scanner.ChunkDelay,
		MaxRetries:    cfg.Scanner.MaxRetries,
		RetryDelay:    retryDelay,
	}

	var scanners []*scanner.Scanner
	for _, vc := range cfg.Versions() {
		r := reader.New(vc.Name, clients[vc.Name], vc.ContractAddress(), vc.Sentinel())
		h := handler.New(handler.Options{
			Version:    vc.Name,
			Reader:     r,
			Pricer:     pricer,
			Sink:       a.sink,
			Dedup:      store,
			Notifier:   a.notifier,
			BlockRetry: retry.Linear{Attempts: cfg.Scanner.BlockRetries, Base: retryDelay},
		})
		a.readers = append(a.readers, r)
		a.handlers = append(a.handlers, h)
		scanners = append(scanners, scanner.New(vc.Name, r, h, store, scanCfg))

		log.Info("Contract version configured", "version", vc.Name, "contract", vc.ContractAddress(), "active", r.Active())
	}
	a.coordinator = scanner.NewCoordinator(scanners...)
	return a, nil
}

// dialVersions connects every version that has nodes. A version without its
// own nodes shares the client of the first version that has one.
func (a *app) dialVersions(ctx context.Context) (map[string]rpc.Client, error) {
	clients := make(map[string]rpc.Client)
	var fallback rpc.Client

	for _, vc := range a.cfg.Versions() {
		nodes := vc.Nodes()
		if len(nodes) == 0 {
			continue
		}
		c, err := rpc.NewClient(ctx, nodes)
		if err != nil {
			return nil, fmt.Errorf("%s rpc: %w", vc.Name, err)
		}
		a.closers = append(a.closers, c.Close)
		clients[vc.Name] = c
		if fallback == nil {
			fallback = c
		}
	}
	if fallback == nil {
		return nil, errNoRPC
	}
	for _, vc := range a.cfg.Versions() {
		if _, ok := clients[vc.Name]; !ok {
			clients[vc.Name] = fallback
		}
	}
	return clients, nil
}

// newPricer returns nil when no oracle is configured; trades are then
// recorded without a market cap.
func (a *app) newPricer(ctx context.Context, clients map[string]rpc.Client) (*handler.Pricer, error) {
	oc := a.cfg.Oracle
	if oc.Address == "" {
		log.Warn("No price oracle configured, market caps are not derived")
		return nil, nil
	}

	client := clients[config.VersionV1]
	if nodes := oc.Nodes(); len(nodes) > 0 {
		c, err := rpc.NewClient(ctx, nodes)
		if err != nil {
			return nil, fmt.Errorf("oracle rpc: %w", err)
		}
		a.closers = append(a.closers, c.Close)
		client = c
	}

	feed := reader.New("oracle", client, common.Address{}, common.Address{})
	strategy := retry.Linear{Attempts: a.cfg.Scanner.MaxRetries, Base: a.cfg.Scanner.RetryDelay}
	return handler.NewPricer(feed, common.HexToAddress(oc.Address), strategy), nil
}

// newLive builds the subscriptions of every active version with a websocket
// endpoint, and the scan scheduler.
func (a *app) newLive(ctx context.Context) (*live.Service, error) {
	var (
		subs   []*live.Subscriber
		heads  live.Streamer
		vcs    = a.cfg.Versions()
		height live.HeightReader
	)

	for i, vc := range vcs {
		r, h := a.readers[i], a.handlers[i]
		if height == nil {
			height = r.Client()
		}
		if vc.WSURL == "" || !r.Active() {
			continue
		}

		ws, err := ethclient.DialContext(ctx, vc.WSURL)
		if err != nil {
			return nil, fmt.Errorf("%s websocket: %w", vc.Name, err)
		}
		a.closers = append(a.closers, ws.Close)
		if heads == nil {
			heads = ws
		}

		for _, kind := range launchpad.EventKinds {
			sub, err := live.NewSubscriber(vc.Name, kind, r.Contract(), ws, h)
			if err != nil {
				return nil, err
			}
			subs = append(subs, sub)
		}
	}

	if heads == nil {
		log.Warn("No websocket endpoint, polling for new blocks", "interval", a.cfg.Scanner.PollInterval)
	}
	sched := live.NewScheduler(a.coordinator, heads, height, live.SchedulerConfig{
		Interval:     a.cfg.Scanner.ScanInterval,
		PollInterval: a.cfg.Scanner.PollInterval,
	})
	return live.NewService(sched, subs...), nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
