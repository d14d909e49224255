package checkpoint

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/84hero/launchpad-indexer/internal/metrics"
	"github.com/84hero/launchpad-indexer/pkg/config"
	"github.com/84hero/launchpad-indexer/pkg/storage"
	"github.com/ethereum/go-ethereum/log"
)

var (
	ErrMissingStartBlock = errors.New("start block cannot be resolved")
	ErrUnknownVersion    = errors.New("unknown contract version")
)

// Store owns the scan cursors of all versions and the dedup log.
// Every update rewrites the whole checkpoint record.
type Store struct {
	mu      sync.Mutex
	backend storage.Persistence
	cursors map[string]Cursor

	// seen is a per-process cache of handled transaction hashes. It starts
	// empty on every run; sink existence checks remain authoritative.
	seenMu sync.RWMutex
	seen   map[string]struct{}
}

// Defaults derives the starting cursor of every configured version.
func Defaults(cfg *config.Config) ([]Cursor, error) {
	out := make([]Cursor, 0, 2)
	for _, vc := range cfg.Versions() {
		start, err := cfg.StartBlock(vc)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMissingStartBlock, err)
		}
		out = append(out, NewCursor(vc.Name, start, vc.ToBlock))
	}
	return out, nil
}

// Load builds a Store from the configuration defaults and whatever the backend
// has persisted. A missing or unparseable record falls back to the defaults.
func Load(backend storage.Persistence, defaults []Cursor) (*Store, error) {
	if len(defaults) == 0 {
		return nil, ErrMissingStartBlock
	}

	s := &Store{
		backend: backend,
		cursors: make(map[string]Cursor, len(defaults)),
		seen:    make(map[string]struct{}),
	}

	persisted, err := backend.LoadCheckpoint()
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		log.Info("No checkpoint found, starting from configured blocks")
	case errors.Is(err, storage.ErrCorrupt):
		log.Warn("Checkpoint is unreadable, starting from configured blocks", "err", err)
	default:
		log.Warn("Failed to load checkpoint, starting from configured blocks", "err", err)
	}

	for _, def := range defaults {
		c := def
		if rec, ok := persisted[def.Version]; ok {
			c = def.merge(rec)
		}
		s.cursors[c.Version] = c
		metrics.SetLastProcessedBlock(c.Version, c.LastProcessedBlock)
		log.Info("Cursor loaded", "version", c.Version, "block", c.LastProcessedBlock,
			"bounded", c.BoundedTarget, "phase", c.Phase)
	}

	return s, nil
}

// Cursor returns a copy of the cursor of a version.
func (s *Store) Cursor(version string) (Cursor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cursors[version]
	return c, ok
}

// Versions lists the tracked versions in sorted order.
func (s *Store) Versions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.cursors))
	for v := range s.cursors {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Update applies fn to the cursor of a version and persists the result.
// The in-memory cursor keeps the change even if persisting fails; the next
// successful save writes it out.
func (s *Store) Update(version string, fn func(c *Cursor)) (Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cursors[version]
	if !ok {
		return Cursor{}, fmt.Errorf("%w: %s", ErrUnknownVersion, version)
	}
	before := c
	fn(&c)

	// monotonic regardless of what fn did
	if c.LastProcessedBlock < before.LastProcessedBlock {
		c.LastProcessedBlock = before.LastProcessedBlock
	}
	if before.Phase == PhaseBackfillComplete {
		c.Phase = PhaseBackfillComplete
	}
	s.cursors[version] = c
	metrics.SetLastProcessedBlock(version, c.LastProcessedBlock)

	return c, s.saveLocked()
}

// Save persists the current state of every cursor.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// Snapshot returns the persisted form of all cursors.
func (s *Store) Snapshot() storage.Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() storage.Checkpoint {
	cp := make(storage.Checkpoint, len(s.cursors))
	for v, c := range s.cursors {
		cp[v] = c.record()
	}
	return cp
}

func (s *Store) saveLocked() error {
	if err := s.backend.SaveCheckpoint(s.snapshotLocked()); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// RecordDedup appends an entry to the persisted dedup log.
func (s *Store) RecordDedup(kind string, entry storage.DedupEntry) error {
	if err := s.backend.AppendDedup(kind, entry); err != nil {
		return fmt.Errorf("append dedup entry: %w", err)
	}
	return nil
}

// Seen reports whether this process already handled key, a transaction hash
// optionally qualified by the wallet.
func (s *Store) Seen(key string) bool {
	s.seenMu.RLock()
	defer s.seenMu.RUnlock()
	_, ok := s.seen[strings.ToLower(key)]
	return ok
}

// Remember adds key to the process cache.
func (s *Store) Remember(key string) {
	s.seenMu.Lock()
	defer s.seenMu.Unlock()
	s.seen[strings.ToLower(key)] = struct{}{}
}

// DedupLog reads the persisted dedup log. It is used for inspection only and
// never seeds the process cache.
func (s *Store) DedupLog() (storage.DedupLog, error) {
	return s.backend.LoadDedup()
}
