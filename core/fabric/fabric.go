// Package fabric implements the Event Fabric: an append-only, hash-chained,
// causally-ordered event log with write-ahead durability.
package fabric

import (
	"sync"
	"time"

	"github.com/wardenledger/kernel/core/provenance"
	"github.com/wardenledger/kernel/core/types"
	"github.com/wardenledger/kernel/core/wal"
	"github.com/wardenledger/kernel/crypto"

	kernelerrors "github.com/wardenledger/kernel/core/errors"
)

// Fabric is the single-writer, many-readers event log (spec component B).
// Writers serialize on one lock held for the duration of append; event
// readers (Get and index queries) take only the Provenance Index's read
// lock, so they never block on an in-flight append beyond the moment the
// new event is inserted. HeadHash and NextSeq take the writer lock.
type Fabric struct {
	writeMu sync.Mutex

	log   *wal.Log
	index *provenance.Index

	// head* is guarded by writeMu: only the writer advances it, and a
	// reader who wants a consistent view takes a snapshot under the
	// same lock rather than racing the writer's read-modify-write.
	headHash []byte
	nextSeq  uint64
}

// Open attaches a Fabric to an already-open WAL and a fresh (or
// already-recovered) Provenance Index, continuing from the given head
// hash and next sequence number. Recovery (core/replay) is responsible for
// producing those two values from the latest snapshot plus trailing WAL
// records before this call.
func Open(log *wal.Log, index *provenance.Index, headHash []byte, nextSeq uint64) *Fabric {
	return &Fabric{
		log:      log,
		index:    index,
		headHash: append([]byte(nil), headHash...),
		nextSeq:  nextSeq,
	}
}

// Emit appends a new event to the fabric: validates parents, assigns the
// next sequence number, computes the chain-integrity hash, durably writes
// the WAL record per the configured fsync policy, then publishes the event
// to the in-memory index. This is the spec's §4.B "emit" algorithm,
// step-for-step.
func (f *Fabric) Emit(worldline types.WorldlineId, stage types.Stage, payloadKind string, payload []byte, parents []types.EventId) (types.KernelEvent, error) {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	for _, p := range parents {
		parent, ok := f.index.Get(p)
		if !ok {
			return types.KernelEvent{}, kernelerrors.New(kernelerrors.KindValidationFailed, "fabric: unknown parent event id")
		}
		if parent.Seq >= f.nextSeq {
			return types.KernelEvent{}, kernelerrors.New(kernelerrors.KindValidationFailed, "fabric: parent sequence not strictly less than child")
		}
	}

	e := types.KernelEvent{
		ID:          types.NewEventId(),
		Worldline:   worldline,
		Stage:       stage,
		Seq:         f.nextSeq,
		Timestamp:   time.Now().UTC(),
		Parents:     append([]types.EventId(nil), parents...),
		PayloadKind: payloadKind,
		Payload:     payload,
		PrevHash:    append([]byte(nil), f.headHash...),
	}

	body, err := e.CanonicalEncode()
	if err != nil {
		return types.KernelEvent{}, kernelerrors.Wrap(kernelerrors.KindIntegrityBroken, "fabric: canonical encode", err)
	}
	e.Hash = crypto.ChainHash(e.PrevHash, body)

	rec := wal.Record{
		Seq:  e.Seq,
		Body: body,
	}
	copy(rec.PrevHash[:], e.PrevHash)
	copy(rec.Hash[:], e.Hash)
	if err := f.log.Append(rec); err != nil {
		return types.KernelEvent{}, err
	}

	f.index.Insert(e)
	f.headHash = e.Hash
	f.nextSeq++

	return e, nil
}

// Get returns an event by id.
func (f *Fabric) Get(id types.EventId) (types.KernelEvent, bool) {
	return f.index.Get(id)
}

// HeadHash returns the current chain head hash.
func (f *Fabric) HeadHash() []byte {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return append([]byte(nil), f.headHash...)
}

// NextSeq returns the next sequence number that will be assigned.
func (f *Fabric) NextSeq() uint64 {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return f.nextSeq
}

// Checkpoint durably snapshots the current chain head and Provenance Index
// (via the supplied snapshotter, typically core/replay's state snapshot
// writer) and then truncates the WAL segment prefix already folded into it.
// The index is handed to the snapshotter rather than captured internally
// here, since serializing it is a replay-package concern.
func (f *Fabric) Checkpoint(writeSnapshot func(headHash []byte, nextSeq uint64, idx *provenance.Index) error) error {
	f.writeMu.Lock()
	head := append([]byte(nil), f.headHash...)
	seq := f.nextSeq
	f.writeMu.Unlock()

	if err := writeSnapshot(head, seq, f.index); err != nil {
		return err
	}
	return f.log.Truncate(seq)
}

// Verify recomputes chain hashes end-to-end over every indexed event and
// reports broken links, per spec §4.B's IntegrityReport contract.
func (f *Fabric) Verify() types.IntegrityReport {
	events := f.index.Range(0, ^uint64(0))
	report := types.IntegrityReport{Total: len(events)}
	var prevHash []byte
	for i, e := range events {
		if i > 0 && !bytesEqual(e.PrevHash, prevHash) {
			report.BrokenLinks = append(report.BrokenLinks, e.ID)
			prevHash = e.Hash
			continue
		}
		ok, err := e.VerifyHash()
		if err != nil {
			report.IntegrityErrors = append(report.IntegrityErrors, err.Error())
			prevHash = e.Hash
			continue
		}
		if !ok {
			report.BrokenLinks = append(report.BrokenLinks, e.ID)
			prevHash = e.Hash
			continue
		}
		report.Verified++
		prevHash = e.Hash
	}
	return report
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
