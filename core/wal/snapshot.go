package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	kernelerrors "github.com/wardenledger/kernel/core/errors"
)

// WriteSnapshot durably writes data as snapshot-<seq>.bin in dir, using the
// tmp-file-then-fsync-then-rename discipline the teacher's keystore writer
// uses for its key files: a crash can never observe a partially-written
// snapshot under its final name.
func WriteSnapshot(dir string, seq uint64, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", kernelerrors.Wrap(kernelerrors.KindDurabilityFailed, "wal: create snapshot directory", err)
	}
	finalPath := filepath.Join(dir, fmt.Sprintf("snapshot-%020d.bin", seq))
	tmpPath := finalPath + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return "", kernelerrors.Wrap(kernelerrors.KindDurabilityFailed, "wal: create snapshot tmp file", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", kernelerrors.Wrap(kernelerrors.KindDurabilityFailed, "wal: write snapshot tmp file", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", kernelerrors.Wrap(kernelerrors.KindDurabilityFailed, "wal: fsync snapshot tmp file", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", kernelerrors.Wrap(kernelerrors.KindDurabilityFailed, "wal: close snapshot tmp file", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", kernelerrors.Wrap(kernelerrors.KindDurabilityFailed, "wal: rename snapshot into place", err)
	}
	return finalPath, nil
}

// LatestSnapshot returns the path and sequence of the newest snapshot file
// in dir, or ok=false if none exists.
func LatestSnapshot(dir string) (path string, seq uint64, ok bool, err error) {
	entries, readErr := os.ReadDir(dir)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return "", 0, false, nil
		}
		return "", 0, false, kernelerrors.Wrap(kernelerrors.KindDurabilityFailed, "wal: list snapshots", readErr)
	}
	type candidate struct {
		seq  uint64
		path string
	}
	var candidates []candidate
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "snapshot-") || !strings.HasSuffix(name, ".bin") {
			continue
		}
		trimmed := strings.TrimSuffix(strings.TrimPrefix(name, "snapshot-"), ".bin")
		s, perr := strconv.ParseUint(trimmed, 10, 64)
		if perr != nil {
			continue
		}
		candidates = append(candidates, candidate{seq: s, path: filepath.Join(dir, name)})
	}
	if len(candidates) == 0 {
		return "", 0, false, nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].seq < candidates[j].seq })
	latest := candidates[len(candidates)-1]
	return latest.path, latest.seq, true, nil
}

// ReadSnapshot loads the raw bytes of a snapshot file.
func ReadSnapshot(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, kernelerrors.Wrap(kernelerrors.KindDurabilityFailed, "wal: read snapshot", err)
	}
	return data, nil
}
