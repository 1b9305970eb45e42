// Package audit exports ledger entries to columnar parquet files for
// offline compliance review, the way the teacher's otc-gateway reconciler
// exports its invoice reconciliation reports.
package audit

import (
	"fmt"
	"os"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/wardenledger/kernel/core/types"
)

// ledgerRow is the flattened, parquet-tagged projection of a LedgerEntry
// exported to disk. Nested structures (transitions, receipts) are exported
// as separate files rather than nested parquet groups, matching the
// teacher's flat-row reconciliation export rather than reaching for
// parquet-go's more elaborate nested-schema support.
type ledgerRow struct {
	EntryID        string `parquet:"name=entry_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	State          string `parquet:"name=state, type=BYTE_ARRAY, convertedtype=UTF8"`
	OutcomeSummary string `parquet:"name=outcome_summary, type=BYTE_ARRAY, convertedtype=UTF8"`
	OutcomeKind    string `parquet:"name=outcome_kind, type=BYTE_ARRAY, convertedtype=UTF8"`
	CreatedAt      string `parquet:"name=created_at, type=BYTE_ARRAY, convertedtype=UTF8"`
	ReceiptCount   int32  `parquet:"name=receipt_count, type=INT32"`
}

type transitionRow struct {
	EntryID string `parquet:"name=entry_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	From    string `parquet:"name=from_state, type=BYTE_ARRAY, convertedtype=UTF8"`
	To      string `parquet:"name=to_state, type=BYTE_ARRAY, convertedtype=UTF8"`
	At      string `parquet:"name=at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

type receiptRow struct {
	EntryID      string `parquet:"name=entry_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	ReceiptID    string `parquet:"name=receipt_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	ToolCallID   string `parquet:"name=tool_call_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	CapabilityID string `parquet:"name=capability_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	ContentHash  string `parquet:"name=content_hash, type=BYTE_ARRAY, convertedtype=UTF8"`
	Status       string `parquet:"name=status, type=BYTE_ARRAY, convertedtype=UTF8"`
	At           string `parquet:"name=at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ExportLedgerEntries writes three parquet files under dir
// (entries.parquet, transitions.parquet, receipts.parquet) covering the
// given entries.
func ExportLedgerEntries(dir string, entries []types.LedgerEntry) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("audit: create export dir: %w", err)
	}

	var entryRows []interface{}
	var transRows []interface{}
	var receiptRows []interface{}

	for _, e := range entries {
		entryRows = append(entryRows, &ledgerRow{
			EntryID:        e.ID.String(),
			State:          string(e.State),
			OutcomeSummary: e.OutcomeSummary,
			OutcomeKind:    string(e.OutcomeKind),
			CreatedAt:      e.CreatedAt.Format(time.RFC3339),
			ReceiptCount:   int32(len(e.Receipts)),
		})
		for _, t := range e.Transitions {
			transRows = append(transRows, &transitionRow{
				EntryID: e.ID.String(),
				From:    string(t.From),
				To:      string(t.To),
				At:      t.At.Format(time.RFC3339),
			})
		}
		for _, r := range e.Receipts {
			receiptRows = append(receiptRows, &receiptRow{
				EntryID:      e.ID.String(),
				ReceiptID:    r.ID.String(),
				ToolCallID:   r.ToolCallID,
				CapabilityID: string(r.CapabilityID),
				ContentHash:  fmt.Sprintf("%x", r.ContentHash),
				Status:       r.Status,
				At:           r.At.Format(time.RFC3339),
			})
		}
	}

	if err := writeParquetFile(dir+"/entries.parquet", new(ledgerRow), entryRows); err != nil {
		return err
	}
	if err := writeParquetFile(dir+"/transitions.parquet", new(transitionRow), transRows); err != nil {
		return err
	}
	if err := writeParquetFile(dir+"/receipts.parquet", new(receiptRow), receiptRows); err != nil {
		return err
	}
	return nil
}

func writeParquetFile(path string, schema interface{}, rows []interface{}) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audit: create %s: %w", path, err)
	}
	defer file.Close()

	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, schema, 1)
	if err != nil {
		return fmt.Errorf("audit: parquet schema for %s: %w", path, err)
	}
	pw.RowGroupSize = 64 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			return fmt.Errorf("audit: write row to %s: %w", path, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("audit: finalize %s: %w", path, err)
	}
	return nil
}
