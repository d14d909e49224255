package checkpoint

import (
	"testing"

	"github.com/84hero/launchpad-indexer/pkg/storage"
	"github.com/stretchr/testify/assert"
)

func TestNewCursor(t *testing.T) {
	c := NewCursor("V1", 100, 500)
	assert.True(t, c.Backfilling())
	assert.Equal(t, uint64(100), c.LastProcessedBlock)

	c = NewCursor("V2", 100, 0)
	assert.False(t, c.Backfilling())
	assert.Equal(t, PhaseBackfillComplete, c.Phase)
}

func TestCursor_AdvanceIsMonotonic(t *testing.T) {
	c := NewCursor("V1", 100, 0)

	assert.True(t, c.Advance(200))
	assert.False(t, c.Advance(150))
	assert.False(t, c.Advance(200))
	assert.Equal(t, uint64(200), c.LastProcessedBlock)
}

func TestCursor_CompleteBackfillLatches(t *testing.T) {
	c := NewCursor("V1", 0, 500)

	assert.True(t, c.CompleteBackfill())
	assert.False(t, c.CompleteBackfill())
	assert.Equal(t, PhaseBackfillComplete, c.Phase)
	assert.Equal(t, "backfill-complete", c.Phase.String())
}

func TestCursor_Merge(t *testing.T) {
	tests := []struct {
		name string
		def  Cursor
		rec  storage.CursorRecord
		want Cursor
	}{
		{
			name: "persisted ahead wins",
			def:  NewCursor("V1", 100, 0),
			rec:  storage.CursorRecord{LastProcessedBlock: 900, ToBlockReached: true},
			want: Cursor{Version: "V1", LastProcessedBlock: 900, Phase: PhaseBackfillComplete},
		},
		{
			name: "lower persisted value does not roll back",
			def:  NewCursor("V1", 1000, 0),
			rec:  storage.CursorRecord{LastProcessedBlock: 10},
			want: Cursor{Version: "V1", LastProcessedBlock: 1000, Phase: PhaseBackfillComplete},
		},
		{
			name: "reached latch survives restart",
			def:  NewCursor("V1", 0, 500),
			rec:  storage.CursorRecord{LastProcessedBlock: 600, ToProcessedBlock: 500, ToBlockReached: true},
			want: Cursor{Version: "V1", LastProcessedBlock: 600, BoundedTarget: 500, Phase: PhaseBackfillComplete},
		},
		{
			name: "backfill still in progress",
			def:  NewCursor("V1", 0, 500),
			rec:  storage.CursorRecord{LastProcessedBlock: 250, ToProcessedBlock: 500},
			want: Cursor{Version: "V1", LastProcessedBlock: 250, BoundedTarget: 500, Phase: PhaseBackfilling},
		},
		{
			name: "raised to_block after the latch keeps the persisted bound",
			def:  NewCursor("V1", 0, 5000),
			rec:  storage.CursorRecord{LastProcessedBlock: 1000, ToProcessedBlock: 500, ToBlockReached: true},
			want: Cursor{Version: "V1", LastProcessedBlock: 1000, BoundedTarget: 500, Phase: PhaseBackfillComplete},
		},
		{
			name: "raised to_block before the latch extends the bounded phase",
			def:  NewCursor("V1", 0, 5000),
			rec:  storage.CursorRecord{LastProcessedBlock: 250, ToProcessedBlock: 500},
			want: Cursor{Version: "V1", LastProcessedBlock: 250, BoundedTarget: 5000, Phase: PhaseBackfilling},
		},
		{
			name: "higher persisted bound wins",
			def:  NewCursor("V1", 0, 0),
			rec:  storage.CursorRecord{LastProcessedBlock: 250, ToProcessedBlock: 500},
			want: Cursor{Version: "V1", LastProcessedBlock: 250, BoundedTarget: 500, Phase: PhaseBackfilling},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.def.merge(tt.rec))
		})
	}
}
