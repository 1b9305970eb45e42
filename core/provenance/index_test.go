package provenance

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wardenledger/kernel/core/types"
)

func event(id types.EventId, wid types.WorldlineId, stage types.Stage, seq uint64, parents ...types.EventId) types.KernelEvent {
	return types.KernelEvent{ID: id, Worldline: wid, Stage: stage, Seq: seq, Parents: parents}
}

func TestInsertAndGetRoundTrips(t *testing.T) {
	idx := New()
	id := types.NewEventId()
	wid := types.WorldlineId{0x01}
	idx.Insert(event(id, wid, types.StageIntent, 0))

	got, ok := idx.Get(id)
	require.True(t, ok)
	require.Equal(t, id, got.ID)

	_, ok = idx.Get(types.NewEventId())
	require.False(t, ok)
}

func TestByWorldlinePreservesInsertionOrder(t *testing.T) {
	idx := New()
	wid := types.WorldlineId{0x01}
	e1 := types.NewEventId()
	e2 := types.NewEventId()
	idx.Insert(event(e1, wid, types.StageIntent, 0))
	idx.Insert(event(e2, wid, types.StageCommitment, 1))

	ids := idx.ByWorldline(wid)
	require.Equal(t, []types.EventId{e1, e2}, ids)
}

func TestByWorldlineStageFiltersToOneStage(t *testing.T) {
	idx := New()
	wid := types.WorldlineId{0x01}
	intentID := types.NewEventId()
	commitID := types.NewEventId()
	idx.Insert(event(intentID, wid, types.StageIntent, 0))
	idx.Insert(event(commitID, wid, types.StageCommitment, 1))

	ids := idx.ByWorldlineStage(wid, types.StageCommitment)
	require.Equal(t, []types.EventId{commitID}, ids)

	require.Empty(t, idx.ByWorldlineStage(types.WorldlineId{0x02}, types.StageCommitment))
}

func TestChildrenReturnsEventsListingParent(t *testing.T) {
	idx := New()
	wid := types.WorldlineId{0x01}
	parent := types.NewEventId()
	child := types.NewEventId()
	idx.Insert(event(parent, wid, types.StageIntent, 0))
	idx.Insert(event(child, wid, types.StageCommitment, 1, parent))

	require.Equal(t, []types.EventId{child}, idx.Children(parent))
	require.Empty(t, idx.Children(child))
}

func TestRangeReturnsEventsSortedBySeqWithinBounds(t *testing.T) {
	idx := New()
	wid := types.WorldlineId{0x01}
	for i := uint64(0); i < 5; i++ {
		idx.Insert(event(types.NewEventId(), wid, types.StageIntent, i))
	}

	got := idx.Range(1, 3)
	require.Len(t, got, 3)
	for i := 1; i < len(got); i++ {
		require.Less(t, got[i-1].Seq, got[i].Seq)
	}
	require.Equal(t, uint64(1), got[0].Seq)
	require.Equal(t, uint64(3), got[len(got)-1].Seq)
}

func TestResetClearsAllIndices(t *testing.T) {
	idx := New()
	wid := types.WorldlineId{0x01}
	idx.Insert(event(types.NewEventId(), wid, types.StageIntent, 0))
	require.Equal(t, 1, idx.Len())

	idx.Reset()
	require.Equal(t, 0, idx.Len())
	require.Empty(t, idx.ByWorldline(wid))
}
