package storage

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no checkpoint has been persisted yet.
	ErrNotFound = errors.New("checkpoint not found")
	// ErrCorrupt is returned when a persisted record cannot be parsed.
	ErrCorrupt = errors.New("checkpoint record is corrupt")
)

// CursorRecord is the persisted form of one version's scan cursor.
type CursorRecord struct {
	LastProcessedBlock uint64 `json:"lastProcessedBlock"`
	ToProcessedBlock   uint64 `json:"toProcessedBlock"`
	ToBlockReached     bool   `json:"toBlockReached"`
}

// Checkpoint maps a contract version name to its cursor.
type Checkpoint map[string]CursorRecord

// DedupEntry records one already handled transaction.
type DedupEntry struct {
	Hash      string    `json:"hash"`
	Block     uint64    `json:"block"`
	Token     string    `json:"token"`
	Timestamp time.Time `json:"timestamp"`
}

// DedupLog maps an event kind to its entries in append order.
type DedupLog map[string][]DedupEntry

// Persistence defines the interface for saving indexer progress
type Persistence interface {
	// LoadCheckpoint returns ErrNotFound when nothing was saved yet
	// and ErrCorrupt when the saved record cannot be parsed.
	LoadCheckpoint() (Checkpoint, error)

	// SaveCheckpoint overwrites the whole checkpoint record
	SaveCheckpoint(cp Checkpoint) error

	// AppendDedup appends one entry to the dedup log of an event kind
	AppendDedup(kind string, entry DedupEntry) error

	// LoadDedup reads the full dedup log
	LoadDedup() (DedupLog, error)

	// Close releases resources
	Close() error
}

func (cp Checkpoint) clone() Checkpoint {
	out := make(Checkpoint, len(cp))
	for k, v := range cp {
		out[k] = v
	}
	return out
}

func (l DedupLog) clone() DedupLog {
	out := make(DedupLog, len(l))
	for k, v := range l {
		out[k] = append([]DedupEntry(nil), v...)
	}
	return out
}
