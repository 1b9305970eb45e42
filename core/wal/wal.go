// Package wal implements the Event Fabric's write-ahead log: append-only
// segment files with an explicit record framing, fsync discipline, and
// atomic tmp-then-rename snapshotting.
package wal

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	kernelerrors "github.com/wardenledger/kernel/core/errors"
)

// FsyncPolicy controls how aggressively the WAL flushes to stable storage.
type FsyncPolicy string

const (
	FsyncAlways FsyncPolicy = "always"
	FsyncBatch  FsyncPolicy = "batch"
	FsyncNever  FsyncPolicy = "never"
)

// Record is one framed WAL entry: [len(u32) || seq(u64) || prev_hash(32) ||
// body || this_hash(32)], matching spec.md §6's on-disk format exactly.
type Record struct {
	Seq      uint64
	PrevHash [32]byte
	Body     []byte
	Hash     [32]byte
}

const (
	hashSize   = 32
	headerSize = 4 + 8 + hashSize // len + seq + prev_hash
)

func (r Record) encode() []byte {
	bodyLen := headerSize + len(r.Body) + hashSize - 4
	buf := make([]byte, 4+bodyLen)
	binary.BigEndian.PutUint32(buf[0:4], uint32(bodyLen))
	binary.BigEndian.PutUint64(buf[4:12], r.Seq)
	copy(buf[12:44], r.PrevHash[:])
	copy(buf[44:44+len(r.Body)], r.Body)
	copy(buf[44+len(r.Body):], r.Hash[:])
	return buf
}

func decodeRecord(r io.Reader) (Record, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Record{}, err
	}
	bodyLen := binary.BigEndian.Uint32(lenBuf[:])
	rest := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, rest); err != nil {
		return Record{}, err
	}
	if len(rest) < int(headerSize-4+hashSize) {
		return Record{}, fmt.Errorf("wal: truncated record")
	}
	var rec Record
	rec.Seq = binary.BigEndian.Uint64(rest[0:8])
	copy(rec.PrevHash[:], rest[8:40])
	rec.Body = append([]byte(nil), rest[40:len(rest)-hashSize]...)
	copy(rec.Hash[:], rest[len(rest)-hashSize:])
	return rec, nil
}

// Options configures a Log's segment rollover and durability policy.
type Options struct {
	Dir             string
	Fsync           FsyncPolicy
	MaxSegmentBytes int64
}

// Log is a single-writer, append-only WAL spanning one or more segment
// files in Dir, named wal-<start_seq>.log per spec.md §6.
type Log struct {
	mu          sync.Mutex
	opts        Options
	curFile     *os.File
	curWriter   *bufio.Writer
	curStartSeq uint64
	curBytes    int64
	pendingSync int
}

// Open opens (or creates) the WAL directory and positions the log for
// appends after any existing segments, without replaying them — replay is
// the Replay/Recovery component's job (core/replay), driven by Segments.
func Open(opts Options) (*Log, error) {
	if opts.Dir == "" {
		return nil, kernelerrors.New(kernelerrors.KindValidationFailed, "wal: empty data directory")
	}
	if err := os.MkdirAll(opts.Dir, 0o700); err != nil {
		return nil, kernelerrors.Wrap(kernelerrors.KindDurabilityFailed, "wal: create data directory", err)
	}
	l := &Log{opts: opts}
	segs, err := l.Segments()
	if err != nil {
		return nil, err
	}
	startSeq := uint64(0)
	if len(segs) > 0 {
		startSeq = segs[len(segs)-1].StartSeq
	}
	if err := l.openSegment(startSeq, len(segs) > 0); err != nil {
		return nil, err
	}
	return l, nil
}

// SegmentInfo describes one on-disk WAL segment.
type SegmentInfo struct {
	StartSeq uint64
	Path     string
}

// Segments lists the WAL's on-disk segments in ascending start-sequence
// order.
func (l *Log) Segments() ([]SegmentInfo, error) {
	entries, err := os.ReadDir(l.opts.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, kernelerrors.Wrap(kernelerrors.KindDurabilityFailed, "wal: list segments", err)
	}
	var segs []SegmentInfo
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "wal-") || !strings.HasSuffix(name, ".log") {
			continue
		}
		trimmed := strings.TrimSuffix(strings.TrimPrefix(name, "wal-"), ".log")
		seq, err := strconv.ParseUint(trimmed, 10, 64)
		if err != nil {
			continue
		}
		segs = append(segs, SegmentInfo{StartSeq: seq, Path: filepath.Join(l.opts.Dir, name)})
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].StartSeq < segs[j].StartSeq })
	return segs, nil
}

func (l *Log) segmentPath(startSeq uint64) string {
	return filepath.Join(l.opts.Dir, fmt.Sprintf("wal-%020d.log", startSeq))
}

func (l *Log) openSegment(startSeq uint64, appendExisting bool) error {
	flags := os.O_CREATE | os.O_WRONLY
	if appendExisting {
		flags |= os.O_APPEND
	}
	path := l.segmentPath(startSeq)
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return kernelerrors.Wrap(kernelerrors.KindDurabilityFailed, "wal: open segment", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return kernelerrors.Wrap(kernelerrors.KindDurabilityFailed, "wal: stat segment", err)
	}
	l.curFile = f
	l.curWriter = bufio.NewWriter(f)
	l.curStartSeq = startSeq
	l.curBytes = info.Size()
	return nil
}

// Append writes a single record to the active segment under the WAL's
// single-writer lock, applying the configured fsync policy, and rolls over
// to a new segment if MaxSegmentBytes would be exceeded.
func (l *Log) Append(rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	encoded := rec.encode()
	if l.opts.MaxSegmentBytes > 0 && l.curBytes > 0 && l.curBytes+int64(len(encoded)) > l.opts.MaxSegmentBytes {
		if err := l.rollover(rec.Seq); err != nil {
			return err
		}
	}
	if _, err := l.curWriter.Write(encoded); err != nil {
		return kernelerrors.Wrap(kernelerrors.KindDurabilityFailed, "wal: write record", err)
	}
	l.curBytes += int64(len(encoded))

	switch l.opts.Fsync {
	case FsyncAlways:
		if err := l.flushAndSync(); err != nil {
			return err
		}
	case FsyncBatch:
		if err := l.curWriter.Flush(); err != nil {
			return kernelerrors.Wrap(kernelerrors.KindDurabilityFailed, "wal: flush record", err)
		}
		l.pendingSync++
	case FsyncNever:
		if err := l.curWriter.Flush(); err != nil {
			return kernelerrors.Wrap(kernelerrors.KindDurabilityFailed, "wal: flush record", err)
		}
	}
	return nil
}

// Sync forces any buffered, unsynced writes to stable storage. Nothing in
// the kernel calls it on a timer, and the configured batch interval is not
// read: under FsyncBatch, records reach stable storage only through Sync,
// segment rollover, or Close.
func (l *Log) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pendingSync == 0 {
		return nil
	}
	return l.flushAndSync()
}

func (l *Log) flushAndSync() error {
	if err := l.curWriter.Flush(); err != nil {
		return kernelerrors.Wrap(kernelerrors.KindDurabilityFailed, "wal: flush", err)
	}
	if err := l.curFile.Sync(); err != nil {
		return kernelerrors.Wrap(kernelerrors.KindDurabilityFailed, "wal: fsync", err)
	}
	l.pendingSync = 0
	return nil
}

func (l *Log) rollover(nextSeq uint64) error {
	if err := l.flushAndSync(); err != nil {
		return err
	}
	if err := l.curFile.Close(); err != nil {
		return kernelerrors.Wrap(kernelerrors.KindDurabilityFailed, "wal: close segment", err)
	}
	return l.openSegment(nextSeq, false)
}

// Truncate removes segment files entirely contained before beforeSeq — used
// after a checkpoint has folded their contents into a snapshot. It never
// removes the segment that holds the current write head.
func (l *Log) Truncate(beforeSeq uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	segs, err := l.Segments()
	if err != nil {
		return err
	}
	for i, s := range segs {
		isLast := i == len(segs)-1
		nextStart := beforeSeq
		if !isLast {
			nextStart = segs[i+1].StartSeq
		}
		if isLast || nextStart > beforeSeq {
			break
		}
		if s.StartSeq == l.curStartSeq {
			continue
		}
		if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
			return kernelerrors.Wrap(kernelerrors.KindDurabilityFailed, "wal: remove folded segment", err)
		}
	}
	return nil
}

// Close flushes and syncs the active segment and releases its file handle.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.flushAndSync(); err != nil {
		return err
	}
	return l.curFile.Close()
}

// ReplayFunc is invoked once per decoded record, in seq order, during
// ReadAll.
type ReplayFunc func(Record) error

// ReadAll streams every record from every segment, in ascending seq order,
// through fn. It is the mechanism core/replay uses to rebuild volatile
// state after loading the latest snapshot.
func (l *Log) ReadAll(fn ReplayFunc) (int, error) {
	segs, err := l.Segments()
	if err != nil {
		return 0, err
	}
	count := 0
	for _, seg := range segs {
		f, err := os.Open(seg.Path)
		if err != nil {
			return count, kernelerrors.Wrap(kernelerrors.KindDurabilityFailed, "wal: open segment for replay", err)
		}
		r := bufio.NewReader(f)
		for {
			rec, err := decodeRecord(r)
			if err == io.EOF {
				break
			}
			if err != nil {
				f.Close()
				return count, kernelerrors.Wrap(kernelerrors.KindIntegrityBroken, "wal: corrupt record during replay", err)
			}
			if err := fn(rec); err != nil {
				f.Close()
				return count, err
			}
			count++
		}
		f.Close()
	}
	return count, nil
}
