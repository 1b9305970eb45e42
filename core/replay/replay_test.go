package replay

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wardenledger/kernel/core/fabric"
	"github.com/wardenledger/kernel/core/provenance"
	"github.com/wardenledger/kernel/core/types"
	"github.com/wardenledger/kernel/core/wal"
	"github.com/wardenledger/kernel/crypto"
)

func TestRecoverFromEmptyDirIsZeroState(t *testing.T) {
	dir := t.TempDir()
	log, err := wal.Open(wal.Options{Dir: dir, Fsync: wal.FsyncAlways})
	require.NoError(t, err)
	defer log.Close()

	state, count, err := Recover(dir, log, provenance.New())
	require.NoError(t, err)
	require.Equal(t, 0, count)
	require.Empty(t, state.HeadHash)
	require.Equal(t, uint64(0), state.NextSeq)
}

func TestRecoverReplaysWALAfterRestart(t *testing.T) {
	dir := t.TempDir()
	wid := crypto.DeriveWorldlineId([]byte("agent"))

	log, err := wal.Open(wal.Options{Dir: dir, Fsync: wal.FsyncAlways})
	require.NoError(t, err)
	idx := provenance.New()
	f := fabric.Open(log, idx, nil, 0)

	e1, err := f.Emit(wid, types.StageMeaning, "note", []byte("a"), nil)
	require.NoError(t, err)
	_, err = f.Emit(wid, types.StageIntent, "note", []byte("b"), []types.EventId{e1.ID})
	require.NoError(t, err)
	require.NoError(t, log.Close())

	// Simulate a process restart: fresh log handle, fresh index.
	log2, err := wal.Open(wal.Options{Dir: dir, Fsync: wal.FsyncAlways})
	require.NoError(t, err)
	defer log2.Close()
	idx2 := provenance.New()

	state, count, err := Recover(dir, log2, idx2)
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.Equal(t, uint64(2), state.NextSeq)
	require.Equal(t, 2, idx2.Len())

	f2 := fabric.Open(log2, idx2, state.HeadHash, state.NextSeq)
	report := f2.Verify()
	require.True(t, report.IsClean())
}

func TestRecoverRebuildsFullIndexAcrossACheckpoint(t *testing.T) {
	dir := t.TempDir()
	wid := crypto.DeriveWorldlineId([]byte("agent"))

	log, err := wal.Open(wal.Options{Dir: dir, Fsync: wal.FsyncAlways})
	require.NoError(t, err)
	idx := provenance.New()
	f := fabric.Open(log, idx, nil, 0)

	var preCheckpoint []types.EventId
	for i := 0; i < 3; i++ {
		e, err := f.Emit(wid, types.StageMeaning, "note", nil, nil)
		require.NoError(t, err)
		preCheckpoint = append(preCheckpoint, e.ID)
	}

	err = f.Checkpoint(func(headHash []byte, nextSeq uint64, idx *provenance.Index) error {
		_, err := WriteSnapshot(dir, headHash, nextSeq, idx)
		return err
	})
	require.NoError(t, err)

	post, err := f.Emit(wid, types.StageMeaning, "note", nil, nil)
	require.NoError(t, err)
	require.NoError(t, log.Close())

	log2, err := wal.Open(wal.Options{Dir: dir, Fsync: wal.FsyncAlways})
	require.NoError(t, err)
	defer log2.Close()
	idx2 := provenance.New()

	state, _, err := Recover(dir, log2, idx2)
	require.NoError(t, err)
	require.Equal(t, uint64(4), state.NextSeq)
	// The checkpoint's snapshot carries the three folded events directly,
	// and the fourth streams in from the WAL record the truncate left
	// behind — every event survives the restart, not just the head.
	require.Equal(t, 4, idx2.Len())
	for _, id := range preCheckpoint {
		_, ok := idx2.Get(id)
		require.True(t, ok)
	}
	_, ok := idx2.Get(post.ID)
	require.True(t, ok)
	require.Equal(t, preCheckpoint, idx2.ByWorldline(wid)[:3])
}
