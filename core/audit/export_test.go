package audit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wardenledger/kernel/core/types"
)

func TestExportLedgerEntriesWritesThreeParquetFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "export")

	entry := types.LedgerEntry{
		ID:             types.NewLedgerEntryId(),
		State:          types.LifecycleCompleted,
		OutcomeSummary: "sent the message",
		OutcomeKind:    types.OutcomeKindAction,
		CreatedAt:      time.Now().UTC(),
		Transitions: []types.LifecycleTransition{
			{From: types.LifecyclePending, To: types.LifecycleApproved, At: time.Now().UTC()},
		},
		Receipts: []types.Receipt{
			{ID: types.NewReceiptId(), ToolCallID: "call-1", CapabilityID: "CAP-1", ContentHash: []byte{0x01, 0x02}, Status: "ok", At: time.Now().UTC()},
		},
	}

	require.NoError(t, ExportLedgerEntries(dir, []types.LedgerEntry{entry}))

	require.FileExists(t, filepath.Join(dir, "entries.parquet"))
	require.FileExists(t, filepath.Join(dir, "transitions.parquet"))
	require.FileExists(t, filepath.Join(dir, "receipts.parquet"))
}

func TestExportLedgerEntriesHandlesEmptySlice(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "export-empty")
	require.NoError(t, ExportLedgerEntries(dir, nil))
	require.FileExists(t, filepath.Join(dir, "entries.parquet"))
}

func TestExportLedgerEntriesCreatesDirRecursively(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "c")
	require.NoError(t, ExportLedgerEntries(dir, nil))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}
