package fabric

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wardenledger/kernel/core/provenance"
	"github.com/wardenledger/kernel/core/types"
	"github.com/wardenledger/kernel/core/wal"
	"github.com/wardenledger/kernel/crypto"
)

func openFabric(t *testing.T) *Fabric {
	t.Helper()
	log, err := wal.Open(wal.Options{Dir: t.TempDir(), Fsync: wal.FsyncAlways})
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	return Open(log, provenance.New(), nil, 0)
}

func TestEmitChainsHashesAndAssignsSeq(t *testing.T) {
	f := openFabric(t)
	wid := crypto.DeriveWorldlineId([]byte("agent"))

	e1, err := f.Emit(wid, types.StageMeaning, "note", []byte("first"), nil)
	require.NoError(t, err)
	require.Equal(t, uint64(0), e1.Seq)
	require.Empty(t, e1.PrevHash)

	e2, err := f.Emit(wid, types.StageIntent, "note", []byte("second"), []types.EventId{e1.ID})
	require.NoError(t, err)
	require.Equal(t, uint64(1), e2.Seq)
	require.Equal(t, e1.Hash, e2.PrevHash)

	report := f.Verify()
	require.True(t, report.IsClean())
	require.Equal(t, 2, report.Verified)
}

func TestEmitRejectsUnknownParent(t *testing.T) {
	f := openFabric(t)
	wid := crypto.DeriveWorldlineId([]byte("agent"))
	_, err := f.Emit(wid, types.StageMeaning, "note", nil, []types.EventId{types.NewEventId()})
	require.Error(t, err)
}

func TestEmitRejectsParentWithSeqNotBeforeChild(t *testing.T) {
	f := openFabric(t)
	wid := crypto.DeriveWorldlineId([]byte("agent"))

	// A parent indexed at the child's about-to-be-assigned seq (or later)
	// must never validate: parents must strictly precede their children.
	bogusID := types.NewEventId()
	f.index.Insert(types.KernelEvent{ID: bogusID, Seq: f.NextSeq()})

	_, err := f.Emit(wid, types.StageIntent, "note", nil, []types.EventId{bogusID})
	require.Error(t, err)
}

func TestVerifyDetectsTamperedEvent(t *testing.T) {
	f := openFabric(t)
	wid := crypto.DeriveWorldlineId([]byte("agent"))
	e1, err := f.Emit(wid, types.StageMeaning, "note", []byte("payload"), nil)
	require.NoError(t, err)
	_, err = f.Emit(wid, types.StageIntent, "note", []byte("more"), []types.EventId{e1.ID})
	require.NoError(t, err)

	tampered := e1
	tampered.Payload = []byte("tampered")
	f.index.Reset()
	f.index.Insert(tampered)

	report := f.Verify()
	require.False(t, report.IsClean())
}

func TestCheckpointPassesHeadAndIndexToSnapshotter(t *testing.T) {
	f := openFabric(t)
	wid := crypto.DeriveWorldlineId([]byte("agent"))
	for i := 0; i < 3; i++ {
		_, err := f.Emit(wid, types.StageMeaning, "note", nil, nil)
		require.NoError(t, err)
	}

	var snapHead []byte
	var snapSeq uint64
	err := f.Checkpoint(func(headHash []byte, nextSeq uint64, idx *provenance.Index) error {
		snapHead = headHash
		snapSeq = nextSeq
		require.Equal(t, 3, idx.Len())
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, f.HeadHash(), snapHead)
	require.Equal(t, f.NextSeq(), snapSeq)
}
