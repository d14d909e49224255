package checkpoint

import (
	"fmt"

	"github.com/84hero/launchpad-indexer/pkg/storage"
)

// Phase is the backfill state of a cursor.
type Phase int

const (
	// PhaseBackfilling scans up to the bounded target before anything else.
	PhaseBackfilling Phase = iota
	// PhaseBackfillComplete tracks the chain tip without a bound.
	PhaseBackfillComplete
)

func (p Phase) String() string {
	switch p {
	case PhaseBackfilling:
		return "backfilling"
	case PhaseBackfillComplete:
		return "backfill-complete"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Cursor is the scan position of one contract version.
//
// LastProcessedBlock is the next block that has not been scanned yet. While the
// cursor is backfilling, blocks below BoundedTarget are scanned first.
type Cursor struct {
	Version            string
	LastProcessedBlock uint64
	BoundedTarget      uint64
	Phase              Phase
}

// NewCursor builds the configuration default for a version.
func NewCursor(version string, start, bounded uint64) Cursor {
	c := Cursor{
		Version:            version,
		LastProcessedBlock: start,
		BoundedTarget:      bounded,
		Phase:              PhaseBackfilling,
	}
	if bounded == 0 {
		c.Phase = PhaseBackfillComplete
	}
	return c
}

// Backfilling reports whether the bounded phase is still active.
func (c Cursor) Backfilling() bool {
	return c.Phase == PhaseBackfilling
}

// Advance moves the cursor forward. Values that do not increase it are ignored.
func (c *Cursor) Advance(next uint64) bool {
	if next <= c.LastProcessedBlock {
		return false
	}
	c.LastProcessedBlock = next
	return true
}

// CompleteBackfill latches the cursor into PhaseBackfillComplete. It never goes back.
func (c *Cursor) CompleteBackfill() bool {
	if c.Phase == PhaseBackfillComplete {
		return false
	}
	c.Phase = PhaseBackfillComplete
	return true
}

func (c Cursor) record() storage.CursorRecord {
	return storage.CursorRecord{
		LastProcessedBlock: c.LastProcessedBlock,
		ToProcessedBlock:   c.BoundedTarget,
		ToBlockReached:     c.Phase == PhaseBackfillComplete,
	}
}

// merge folds a persisted record into the configuration default.
// Persisted progress wins only where it is ahead of the default. A latched
// record keeps its own bound; a to_block raised later is ignored.
func (c Cursor) merge(rec storage.CursorRecord) Cursor {
	c.Advance(rec.LastProcessedBlock)
	if rec.ToBlockReached {
		c.BoundedTarget = rec.ToProcessedBlock
		c.CompleteBackfill()
		return c
	}
	if rec.ToProcessedBlock > c.BoundedTarget {
		c.BoundedTarget = rec.ToProcessedBlock
		if c.Phase == PhaseBackfillComplete {
			c.Phase = PhaseBackfilling
		}
	}
	return c
}
