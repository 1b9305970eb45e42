// Package replay implements boot-time recovery (spec component J):
// restoring the Provenance Index and fabric head from the latest snapshot,
// then streaming trailing WAL records to rebuild volatile state exactly
// once, idempotent by event id.
package replay

import (
	kernelerrors "github.com/wardenledger/kernel/core/errors"
	"github.com/wardenledger/kernel/core/provenance"
	"github.com/wardenledger/kernel/core/types"
	"github.com/wardenledger/kernel/core/wal"
	"github.com/wardenledger/kernel/crypto"
)

// State is a fully recovered fabric position: the chain head hash and the
// next sequence number to assign, ready to hand to fabric.Open.
type State struct {
	HeadHash []byte
	NextSeq  uint64
}

// Snapshot is the durable content folded into a snapshot file: the fabric
// head plus every Provenance Index entry at or below it, per spec.md §6
// ("snapshot-<seq>.bin = serialized indices + ledger head"). Carrying the
// events themselves, not just the head, is what lets Recover answer
// ByWorldline/ByWorldlineStage/Children queries for pre-checkpoint events
// after a restart — the WAL prefix a checkpoint truncates is gone from
// disk, so the index can no longer be rebuilt from WAL records alone.
type Snapshot struct {
	HeadHash []byte
	NextSeq  uint64
	Events   []types.KernelEvent
}

// snapshotWire is the RLP-encodable projection of Snapshot: events are
// flattened to their already-canonical body bytes plus the PrevHash/Hash
// framing, mirroring how the WAL itself frames a record.
type snapshotWire struct {
	HeadHash []byte
	NextSeq  uint64
	Events   []snapshotEventWire
}

type snapshotEventWire struct {
	Body     []byte
	PrevHash []byte
	Hash     []byte
}

func encodeSnapshot(s Snapshot) ([]byte, error) {
	wire := snapshotWire{HeadHash: s.HeadHash, NextSeq: s.NextSeq}
	for _, e := range s.Events {
		body, err := e.CanonicalEncode()
		if err != nil {
			return nil, kernelerrors.Wrap(kernelerrors.KindIntegrityBroken, "replay: encode snapshot event", err)
		}
		wire.Events = append(wire.Events, snapshotEventWire{Body: body, PrevHash: e.PrevHash, Hash: e.Hash})
	}
	return crypto.CanonicalEncode(wire)
}

func decodeSnapshot(data []byte) (Snapshot, error) {
	var wire snapshotWire
	if err := crypto.CanonicalDecode(data, &wire); err != nil {
		return Snapshot{}, kernelerrors.Wrap(kernelerrors.KindIntegrityBroken, "replay: decode snapshot", err)
	}
	snap := Snapshot{HeadHash: wire.HeadHash, NextSeq: wire.NextSeq}
	for _, ew := range wire.Events {
		e, err := types.DecodeCanonicalEvent(ew.Body, ew.PrevHash, ew.Hash)
		if err != nil {
			return Snapshot{}, kernelerrors.Wrap(kernelerrors.KindIntegrityBroken, "replay: decode snapshot event", err)
		}
		snap.Events = append(snap.Events, e)
	}
	return snap, nil
}

// WriteSnapshot durably persists the current fabric head together with
// every event the Provenance Index holds at or below nextSeq-1, so Recover
// can rebuild the full index from the snapshot alone rather than relying on
// WAL records the checkpoint is about to truncate still being on disk.
func WriteSnapshot(dir string, headHash []byte, nextSeq uint64, idx *provenance.Index) (string, error) {
	var events []types.KernelEvent
	if nextSeq > 0 {
		events = idx.Range(0, nextSeq-1)
	}
	data, err := encodeSnapshot(Snapshot{HeadHash: headHash, NextSeq: nextSeq, Events: events})
	if err != nil {
		return "", err
	}
	return wal.WriteSnapshot(dir, nextSeq, data)
}

// Recover performs spec.md §4.J's boot sequence: locate the latest valid
// snapshot (if any) and insert every event it carries into idx, then stream
// every WAL record still on disk, decoding, hash-verifying, and inserting
// each one. The snapshot only seeds HeadHash/NextSeq and a head start on
// the index; it is never a reason to skip a WAL record that is still
// physically present — a checkpoint's Truncate can race a crash, so a
// record folded into the snapshot may also still be on disk. idx.Get
// dedups by event id so each distinct event is still applied exactly once.
func Recover(dir string, log *wal.Log, idx *provenance.Index) (State, int, error) {
	idx.Reset()
	state := State{}

	path, _, ok, err := wal.LatestSnapshot(dir)
	if err != nil {
		return state, 0, err
	}
	if ok {
		data, err := wal.ReadSnapshot(path)
		if err != nil {
			return state, 0, err
		}
		snap, err := decodeSnapshot(data)
		if err != nil {
			return state, 0, err
		}
		state.HeadHash = snap.HeadHash
		state.NextSeq = snap.NextSeq
		for _, e := range snap.Events {
			if _, exists := idx.Get(e.ID); !exists {
				idx.Insert(e)
			}
		}
	}

	var applyErr error
	count, err := log.ReadAll(func(rec wal.Record) error {
		ok, verr := verifyRecordHash(rec)
		if verr != nil {
			applyErr = verr
			return verr
		}
		if !ok {
			applyErr = kernelerrors.New(kernelerrors.KindIntegrityBroken, "replay: broken hash chain link during recovery")
			return applyErr
		}

		e, derr := types.DecodeCanonicalEvent(rec.Body, rec.PrevHash[:], rec.Hash[:])
		if derr != nil {
			applyErr = kernelerrors.Wrap(kernelerrors.KindIntegrityBroken, "replay: decode event body", derr)
			return applyErr
		}
		if _, exists := idx.Get(e.ID); !exists {
			idx.Insert(e)
		}

		state.HeadHash = e.Hash
		if rec.Seq+1 > state.NextSeq {
			state.NextSeq = rec.Seq + 1
		}
		return nil
	})
	if err != nil {
		if applyErr != nil {
			return state, count, applyErr
		}
		return state, count, err
	}

	return state, count, nil
}

func verifyRecordHash(rec wal.Record) (bool, error) {
	want := crypto.ChainHash(rec.PrevHash[:], rec.Body)
	if len(want) != len(rec.Hash) {
		return false, nil
	}
	for i := range want {
		if want[i] != rec.Hash[i] {
			return false, nil
		}
	}
	return true, nil
}
