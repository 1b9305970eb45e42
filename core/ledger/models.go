// Package ledger implements the durable store of commitment lifecycle,
// decisions, and receipts (spec component H), persisted with gorm the same
// way the teacher's otc-gateway service persists its invoice workflow.
package ledger

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// entryModel is the gorm row for a LedgerEntry. Declaration and Card are
// stored as their canonical RLP encodings rather than normalized columns —
// the Ledger never queries into their structure, only by id and lifecycle
// state, so a blob column avoids an otherwise-unused schema.
type entryModel struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey"`
	DeclarationID      uuid.UUID `gorm:"type:uuid;index"`
	DeclaringWorldline string    `gorm:"index"`
	DeclarationBlob    []byte
	CardBlob           []byte
	State              string `gorm:"index"`
	OutcomeSummary     string
	OutcomeKind        string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (entryModel) TableName() string { return "ledger_entries" }

// transitionModel is one row of a LedgerEntry's append-only transition
// history.
type transitionModel struct {
	ID      uint      `gorm:"primaryKey;autoIncrement"`
	EntryID uuid.UUID `gorm:"type:uuid;index"`
	From    string
	To      string
	At      time.Time
}

func (transitionModel) TableName() string { return "ledger_transitions" }

// receiptModel is one row of a LedgerEntry's receipts.
type receiptModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	EntryID      uuid.UUID `gorm:"type:uuid;index"`
	ToolCallID   string
	CapabilityID string
	ContentHash  []byte
	Status       string
	At           time.Time
}

func (receiptModel) TableName() string { return "ledger_receipts" }

// AutoMigrate performs all schema migrations for the ledger store.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&entryModel{}, &transitionModel{}, &receiptModel{})
}
