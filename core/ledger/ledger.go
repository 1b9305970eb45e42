package ledger

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	kernelerrors "github.com/wardenledger/kernel/core/errors"
	"github.com/wardenledger/kernel/core/types"
	"github.com/wardenledger/kernel/crypto"
)

// EventEmitter is the narrow Fabric contract the Ledger uses to audit
// illegal transitions, per spec.md §7: every denial or failure is
// recorded, never just returned to the caller.
type EventEmitter interface {
	Emit(worldline types.WorldlineId, stage types.Stage, payloadKind string, payload []byte, parents []types.EventId) (types.KernelEvent, error)
}

// Ledger is the durable commitment store (spec component H). Per-entry
// state transitions are guarded by a dedicated per-entry lock; cross-entry
// reporting operations take a read-only snapshot of the database instead
// of locking every entry.
type Ledger struct {
	db      *gorm.DB
	emitter EventEmitter

	mu        sync.Mutex
	entryLock map[types.LedgerEntryId]*sync.Mutex
}

// New constructs a Ledger backed by an already-migrated gorm.DB.
func New(db *gorm.DB, emitter EventEmitter) *Ledger {
	return &Ledger{db: db, emitter: emitter, entryLock: make(map[types.LedgerEntryId]*sync.Mutex)}
}

func (l *Ledger) lockFor(id types.LedgerEntryId) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.entryLock[id]
	if !ok {
		m = &sync.Mutex{}
		l.entryLock[id] = m
	}
	return m
}

// initialState maps a decision to the lifecycle state a fresh LedgerEntry
// begins in, per spec.md §4.H.
func initialState(decision types.Decision) types.LifecycleState {
	switch decision {
	case types.DecisionApproved:
		return types.LifecycleApproved
	case types.DecisionDenied:
		return types.LifecycleDenied
	default:
		return types.LifecyclePending
	}
}

// Record writes a new LedgerEntry for a declaration and its decision card.
func (l *Ledger) Record(decl types.CommitmentDeclaration, card types.PolicyDecisionCard) (types.LedgerEntryId, error) {
	id := types.NewLedgerEntryId()
	state := initialState(card.Decision)
	now := time.Now().UTC()

	declBlob, err := crypto.CanonicalEncode(declarationBody(decl))
	if err != nil {
		return id, kernelerrors.Wrap(kernelerrors.KindDurabilityFailed, "ledger: encode declaration", err)
	}
	cardBlob, err := crypto.CanonicalEncode(cardBodyOf(card))
	if err != nil {
		return id, kernelerrors.Wrap(kernelerrors.KindDurabilityFailed, "ledger: encode card", err)
	}

	row := entryModel{
		ID:                 uuid.UUID(id),
		DeclarationID:      uuid.UUID(decl.ID),
		DeclaringWorldline: decl.DeclaringWorldline.Hex(),
		DeclarationBlob:    declBlob,
		CardBlob:           cardBlob,
		State:              string(state),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := l.db.Create(&row).Error; err != nil {
		return id, kernelerrors.Wrap(kernelerrors.KindDurabilityFailed, "ledger: insert entry", err)
	}
	trans := transitionModel{EntryID: row.ID, From: "", To: string(state), At: now}
	if err := l.db.Create(&trans).Error; err != nil {
		return id, kernelerrors.Wrap(kernelerrors.KindDurabilityFailed, "ledger: insert initial transition", err)
	}
	return id, nil
}

// Transition moves an entry to a new lifecycle state, enforcing the legal
// transition table. Illegal transitions are rejected with a typed error
// and audited as a System event, never silently ignored.
func (l *Ledger) Transition(id types.LedgerEntryId, next types.LifecycleState, at time.Time) error {
	lock := l.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	var row entryModel
	if err := l.db.First(&row, "id = ?", uuid.UUID(id)).Error; err != nil {
		return kernelerrors.Wrap(kernelerrors.KindNotFound, "ledger: entry not found", err)
	}
	current := types.LifecycleState(row.State)
	if !current.CanTransition(next) {
		l.auditIllegal(row, current, next)
		return kernelerrors.New(kernelerrors.KindInvalidStateTransition, "ledger: illegal transition "+string(current)+" -> "+string(next)).WithStage("ledger.transition")
	}

	row.State = string(next)
	row.UpdatedAt = at
	if err := l.db.Save(&row).Error; err != nil {
		return kernelerrors.Wrap(kernelerrors.KindDurabilityFailed, "ledger: save transition", err)
	}
	trans := transitionModel{EntryID: row.ID, From: string(current), To: string(next), At: at}
	if err := l.db.Create(&trans).Error; err != nil {
		return kernelerrors.Wrap(kernelerrors.KindDurabilityFailed, "ledger: insert transition", err)
	}
	return nil
}

func (l *Ledger) auditIllegal(row entryModel, from, to types.LifecycleState) {
	if l.emitter == nil {
		return
	}
	wid, err := crypto.ParseWorldlineId(row.DeclaringWorldline)
	if err != nil {
		return
	}
	payload := []byte(row.ID.String() + ":" + string(from) + "->" + string(to))
	l.emitter.Emit(wid, types.StageSystem, "ledger.illegal_transition", payload, nil)
}

// AttachReceipt records a tool execution receipt against an entry. Only
// legal while the entry is Executing.
func (l *Ledger) AttachReceipt(id types.LedgerEntryId, receipt types.Receipt) error {
	lock := l.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	var row entryModel
	if err := l.db.First(&row, "id = ?", uuid.UUID(id)).Error; err != nil {
		return kernelerrors.Wrap(kernelerrors.KindNotFound, "ledger: entry not found", err)
	}
	if types.LifecycleState(row.State) != types.LifecycleExecuting {
		return kernelerrors.New(kernelerrors.KindInvalidStateTransition, "ledger: receipts only attach while Executing").WithStage("ledger.attach_receipt")
	}
	rec := receiptModel{
		ID:           uuid.UUID(receipt.ID),
		EntryID:      row.ID,
		ToolCallID:   receipt.ToolCallID,
		CapabilityID: string(receipt.CapabilityID),
		ContentHash:  receipt.ContentHash,
		Status:       receipt.Status,
		At:           receipt.At,
	}
	if err := l.db.Create(&rec).Error; err != nil {
		return kernelerrors.Wrap(kernelerrors.KindDurabilityFailed, "ledger: insert receipt", err)
	}
	return nil
}

// History returns the full lifecycle history for an entry: its row, every
// transition, and every receipt.
func (l *Ledger) History(id types.LedgerEntryId) (types.LedgerEntry, error) {
	var row entryModel
	if err := l.db.First(&row, "id = ?", uuid.UUID(id)).Error; err != nil {
		return types.LedgerEntry{}, kernelerrors.Wrap(kernelerrors.KindNotFound, "ledger: entry not found", err)
	}
	var transitions []transitionModel
	if err := l.db.Where("entry_id = ?", row.ID).Order("at asc").Find(&transitions).Error; err != nil {
		return types.LedgerEntry{}, kernelerrors.Wrap(kernelerrors.KindDurabilityFailed, "ledger: load transitions", err)
	}
	var receipts []receiptModel
	if err := l.db.Where("entry_id = ?", row.ID).Order("at asc").Find(&receipts).Error; err != nil {
		return types.LedgerEntry{}, kernelerrors.Wrap(kernelerrors.KindDurabilityFailed, "ledger: load receipts", err)
	}

	entry := types.LedgerEntry{
		ID:             types.LedgerEntryId(row.ID),
		State:          types.LifecycleState(row.State),
		OutcomeSummary: row.OutcomeSummary,
		OutcomeKind:    types.OutcomeKind(row.OutcomeKind),
		CreatedAt:      row.CreatedAt,
	}
	for _, t := range transitions {
		entry.Transitions = append(entry.Transitions, types.LifecycleTransition{
			From: types.LifecycleState(t.From),
			To:   types.LifecycleState(t.To),
			At:   t.At,
		})
	}
	for _, r := range receipts {
		entry.Receipts = append(entry.Receipts, types.Receipt{
			ID:           types.ReceiptId(r.ID),
			ToolCallID:   r.ToolCallID,
			CapabilityID: types.CapabilityId(r.CapabilityID),
			ContentHash:  r.ContentHash,
			Status:       r.Status,
			At:           r.At,
		})
	}
	return entry, nil
}

// RecordOutcome sets the outcome summary and kind on an entry. The entry's
// lifecycle state is not checked; any existing entry is updated.
func (l *Ledger) RecordOutcome(id types.LedgerEntryId, summary string, kind types.OutcomeKind) error {
	lock := l.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	res := l.db.Model(&entryModel{}).Where("id = ?", uuid.UUID(id)).Updates(map[string]interface{}{
		"outcome_summary": summary,
		"outcome_kind":    string(kind),
		"updated_at":      time.Now().UTC(),
	})
	if res.Error != nil {
		return kernelerrors.Wrap(kernelerrors.KindDurabilityFailed, "ledger: record outcome", res.Error)
	}
	if res.RowsAffected == 0 {
		return kernelerrors.New(kernelerrors.KindNotFound, "ledger: entry not found")
	}
	return nil
}
