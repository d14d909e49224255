package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/84hero/launchpad-indexer/internal/metrics"
	"github.com/84hero/launchpad-indexer/pkg/config"
	"github.com/ethereum/go-ethereum/log"
	"github.com/spf13/cobra"
)

const version = "1.0.0"

func main() {
	setupLogger(config.LogConfig{}, os.Stderr)
	if err := newRootCmd().Execute(); err != nil {
		log.Crit("Indexer failed", "err", err)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "indexer",
		Short: "Launchpad token and trade indexer",
		Long: `Indexes TokenDeployed and Trade events of the V1 and V2 launchpad contracts.
Progress is checkpointed per contract version so that a restart resumes where it stopped.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_FILE"),
		"path to configuration file (INDEXER_* environment variables override it)")

	load := func(cmd *cobra.Command) (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		setupLogger(cfg.Log, cmd.ErrOrStderr())
		return cfg, nil
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Follow the chain: live subscriptions plus periodic reconciliation scans",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			return runIndexer(cmd.Context(), cfg)
		},
	}

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a single scan round over both versions up to the confirmed head and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			return runScan(cmd.Context(), cfg)
		},
	}

	checkpointCmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Print the persisted cursors and dedup log sizes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			return printCheckpoint(cmd.OutOrStdout(), cfg)
		},
	}

	root.RunE = runCmd.RunE
	root.AddCommand(runCmd, scanCmd, checkpointCmd)
	return root
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runIndexer(parent context.Context, cfg *config.Config) error {
	ctx, stop := signalContext(parent)
	defer stop()

	if cfg.Metrics.Enabled {
		metrics.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path).Start(ctx)
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	svc, err := a.newLive(ctx)
	if err != nil {
		return err
	}

	log.Info("Indexer started", "project", cfg.Project, "environment", cfg.Environment, "chain", cfg.Chain)
	err = svc.Run(ctx)

	log.Info("Shutting down, waiting for the running scan round")
	a.coordinator.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runScan(parent context.Context, cfg *config.Config) error {
	ctx, stop := signalContext(parent)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	a.coordinator.TriggerScan(ctx)
	for _, v := range a.store.Versions() {
		c, _ := a.store.Cursor(v)
		log.Info("Cursor", "version", v, "next", c.LastProcessedBlock, "phase", c.Phase)
	}
	return nil
}

func printCheckpoint(w io.Writer, cfg *config.Config) error {
	store, backend, err := loadStore(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	fmt.Fprintf(w, "%-8s %-20s %-20s %s\n", "VERSION", "NEXT BLOCK", "BOUNDED TARGET", "PHASE")
	for _, v := range store.Versions() {
		c, _ := store.Cursor(v)
		fmt.Fprintf(w, "%-8s %-20d %-20d %s\n", v, c.LastProcessedBlock, c.BoundedTarget, c.Phase)
	}

	dedup, err := store.DedupLog()
	if err != nil {
		return fmt.Errorf("load dedup log: %w", err)
	}
	kinds := make([]string, 0, len(dedup))
	for k := range dedup {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-16s %s\n", "KIND", "ENTRIES")
	for _, k := range kinds {
		fmt.Fprintf(w, "%-16s %d\n", k, len(dedup[k]))
	}
	return nil
}
