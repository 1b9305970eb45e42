// Package kernel wires the Identity Registry, Event Fabric, Provenance
// Index, Capability Registry, Policy Provider, Risk Scorer, Commitment
// Gate, Ledger, and Safety/Coupling layer into one owned handle, and
// exposes the Submission API spec.md §6 describes. There is no
// process-wide singleton (per spec.md §9's design notes): every façade —
// cmd/kerneld included — borrows one Kernel value, and multiple Kernels
// may coexist, each pointed at its own data directory, for tests.
package kernel

import (
	"encoding/hex"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/wardenledger/kernel/config"
	"github.com/wardenledger/kernel/core/capability"
	kernelerrors "github.com/wardenledger/kernel/core/errors"
	"github.com/wardenledger/kernel/core/fabric"
	"github.com/wardenledger/kernel/core/gate"
	"github.com/wardenledger/kernel/core/identity"
	"github.com/wardenledger/kernel/core/ledger"
	"github.com/wardenledger/kernel/core/policy"
	"github.com/wardenledger/kernel/core/provenance"
	"github.com/wardenledger/kernel/core/replay"
	"github.com/wardenledger/kernel/core/safety"
	"github.com/wardenledger/kernel/core/types"
	"github.com/wardenledger/kernel/core/wal"
	"github.com/wardenledger/kernel/crypto"
)

// Kernel owns every core component and is the single place their
// lifecycles are coordinated: boot recovery, the periodic checkpoint, and
// graceful shutdown.
type Kernel struct {
	cfg *config.Config

	log   *wal.Log
	index *provenance.Index
	fab   *fabric.Fabric

	identity     *identity.Registry
	capabilities *capability.Registry
	budgets      *safety.BudgetBook
	coupling     *safety.CouplingBook
	limiter      *safety.SubmissionLimiter
	ledger       *ledger.Ledger
	gate         *gate.Gate

	cron *cron.Cron

	RecoveredHeadHash []byte
	RecoveredNextSeq  uint64
	RecoveredCount    int
}

// Open boots a Kernel rooted at cfg.DataDir: it opens the WAL, replays it
// to recover the Provenance Index and fabric head (halting with a typed
// integrity error rather than silently continuing on a broken chain), then
// wires every remaining component on top. db must already be open;
// AutoMigrate is run against it here.
func Open(cfg *config.Config, db *gorm.DB, provider policy.Provider) (*Kernel, error) {
	logOpts := wal.Options{
		Dir:             cfg.DataDir,
		Fsync:           wal.FsyncPolicy(cfg.FsyncPolicy),
		MaxSegmentBytes: cfg.MaxSegmentBytes,
	}
	log, err := wal.Open(logOpts)
	if err != nil {
		return nil, err
	}

	idx := provenance.New()
	state, count, err := replay.Recover(cfg.DataDir, log, idx)
	if err != nil {
		log.Close()
		return nil, kernelerrors.Wrap(kernelerrors.KindIntegrityBroken, "kernel: recovery halted on broken chain", err)
	}

	fab := fabric.Open(log, idx, state.HeadHash, state.NextSeq)

	if err := ledger.AutoMigrate(db); err != nil {
		log.Close()
		return nil, kernelerrors.Wrap(kernelerrors.KindDurabilityFailed, "kernel: migrate ledger schema", err)
	}

	identityReg := identity.NewRegistry()
	capReg := capability.New(fab)
	budgets := safety.NewBudgetBook()
	coupling := safety.NewCouplingBook()
	limiter := safety.NewSubmissionLimiter(cfg.SubmissionRatePerSecond, cfg.SubmissionBurst)
	ledgerStore := ledger.New(db, fab)

	var signer *crypto.CardSigner
	if cfg.CardSigningKey != "" {
		key, derr := hex.DecodeString(cfg.CardSigningKey)
		if derr != nil {
			log.Close()
			return nil, kernelerrors.Wrap(kernelerrors.KindValidationFailed, "kernel: decode card signing key", derr)
		}
		signer, err = crypto.NewCardSigner(key, "warden-kernel")
		if err != nil {
			log.Close()
			return nil, kernelerrors.Wrap(kernelerrors.KindValidationFailed, "kernel: construct card signer", err)
		}
	}

	maxRisk, _ := parseRiskClass(cfg.MaxAllowedRisk)
	reviewRisk, _ := parseRiskClass(cfg.HumanReviewAtRisk)

	gateCfg := gate.Config{
		MinConfidence:     cfg.MinConfidence,
		MaxAllowedRisk:    maxRisk,
		HumanReviewAtRisk: reviewRisk,
		RequireIntentRef:  true,
		CoSignBeyondSelf:  true,
		CoSignTimeout:     cfg.CoSignWaitDefault,
		CardSigner:        signer,
		DependencyLookup:  coupling.Dependency,
		SubmissionAllowed: limiter.Allow,
	}
	if pp, ok := provider.(*policy.ProfileProvider); ok {
		gateCfg.RequireIntentRef = pp.RequiresIntentRef()
		gateCfg.CoSignBeyondSelf = pp.RequiresCoSignBeyondSelf()
		if gateCfg.MaxAllowedRisk == 0 {
			gateCfg.MaxAllowedRisk = pp.MaxAllowedRisk()
		}
		if gateCfg.HumanReviewAtRisk == 0 {
			gateCfg.HumanReviewAtRisk = pp.HumanReviewAtRisk()
		}
		if gateCfg.MinConfidence == 0 {
			gateCfg.MinConfidence = pp.MinConfidence()
		}
	}

	g := gate.New(identityReg, capReg, provider, fab, gateCfg)

	k := &Kernel{
		cfg:               cfg,
		log:               log,
		index:             idx,
		fab:               fab,
		identity:          identityReg,
		capabilities:      capReg,
		budgets:           budgets,
		coupling:          coupling,
		limiter:           limiter,
		ledger:            ledgerStore,
		gate:              g,
		RecoveredHeadHash: state.HeadHash,
		RecoveredNextSeq:  state.NextSeq,
		RecoveredCount:    count,
	}

	if cfg.CheckpointEvery != "" {
		k.cron = cron.New()
		if _, err := k.cron.AddFunc(cfg.CheckpointEvery, func() { _ = k.Checkpoint() }); err != nil {
			log.Close()
			return nil, kernelerrors.Wrap(kernelerrors.KindValidationFailed, "kernel: schedule checkpoint", err)
		}
		k.cron.Start()
	}

	return k, nil
}

func parseRiskClass(s string) (types.RiskClass, bool) {
	switch s {
	case "Low":
		return types.RiskLow, true
	case "Medium":
		return types.RiskMedium, true
	case "High":
		return types.RiskHigh, true
	case "Critical":
		return types.RiskCritical, true
	default:
		return 0, false
	}
}

// AdjudicationResult mirrors spec.md §6's submit() return shape, adding the
// LedgerEntryId every branch receives since a card is always recorded.
type AdjudicationResult struct {
	Kind           gate.StageResultKind
	Card           types.PolicyDecisionCard
	EntryID        types.LedgerEntryId
	Reason         types.DenialReason
	Message        string
	MissingSigners []types.WorldlineId
}

// Submit runs a declaration through the Commitment Gate and records the
// resulting card in the Ledger before returning — per spec.md §7, the
// caller never learns of a decision before the audit trail does.
func (k *Kernel) Submit(decl types.CommitmentDeclaration) (AdjudicationResult, error) {
	adj := k.gate.Adjudicate(decl)

	entryID, err := k.ledger.Record(decl, adj.Card)
	if err != nil {
		return AdjudicationResult{}, err
	}

	return AdjudicationResult{
		Kind:           adj.Kind,
		Card:           adj.Card,
		EntryID:        entryID,
		Reason:         adj.Reason,
		Message:        adj.Message,
		MissingSigners: adj.MissingSigners,
	}, nil
}

// Transition drives a LedgerEntry's lifecycle forward (e.g. Approved ->
// Executing -> Completed|Failed). Illegal source states fail typed and
// audited, never silently.
func (k *Kernel) Transition(entryID types.LedgerEntryId, next types.LifecycleState) error {
	return k.ledger.Transition(entryID, next, time.Now().UTC())
}

// RecordOutcome attaches an outcome summary and kind to a ledger entry,
// per spec.md §6's record_outcome.
func (k *Kernel) RecordOutcome(entryID types.LedgerEntryId, summary string, kind types.OutcomeKind) error {
	return k.ledger.RecordOutcome(entryID, summary, kind)
}

// AttachReceipt pins a tool execution receipt to a ledger entry, per
// spec.md §6's attach_receipt. Only legal while the entry is Executing.
func (k *Kernel) AttachReceipt(entryID types.LedgerEntryId, receipt types.Receipt) error {
	return k.ledger.AttachReceipt(entryID, receipt)
}

// AuditTrail returns the full lifecycle history for a ledger entry, per
// spec.md §6's audit_trail.
func (k *Kernel) AuditTrail(entryID types.LedgerEntryId) (types.LedgerEntry, error) {
	return k.ledger.History(entryID)
}

// CreateWorldline registers a new worldline (or extends the continuity
// chain of an existing one) from opaque identity material.
func (k *Kernel) CreateWorldline(material []byte) types.WorldlineId {
	return k.identity.Create(material)
}

// GrantCapability registers a capability grant.
func (k *Kernel) GrantCapability(cap types.Capability) {
	k.capabilities.Grant(cap)
}

// RevokeCapability revokes a capability by id, auditing the revocation as
// a System event.
func (k *Kernel) RevokeCapability(id types.CapabilityId) bool {
	return k.capabilities.Revoke(id)
}

// OpenBudget opens an AttentionBudget for a (worldline, effect domain)
// pair.
func (k *Kernel) OpenBudget(budget types.AttentionBudget) {
	k.budgets.Open(budget)
}

// AllocateAttention grants amount of attention budget to target, failing
// with BudgetExhausted rather than partially granting it.
func (k *Kernel) AllocateAttention(wid types.WorldlineId, domain types.EffectDomain, target string, amount float64) error {
	return k.budgets.Allocate(wid, domain, target, amount)
}

// ReleaseAttention credits amount back to target's allocation.
func (k *Kernel) ReleaseAttention(wid types.WorldlineId, domain types.EffectDomain, target string, amount float64) {
	k.budgets.Release(wid, domain, target, amount)
}

// RecordCoupling stores the latest measured CouplingMetrics for a
// worldline, feeding the Gate's DependencyLookup for future submissions.
func (k *Kernel) RecordCoupling(metrics types.CouplingMetrics) {
	k.coupling.Record(metrics)
}

// VerifyIntegrity recomputes the fabric's hash chain end to end.
func (k *Kernel) VerifyIntegrity() types.IntegrityReport {
	return k.fab.Verify()
}

// Checkpoint durably snapshots the fabric head and truncates the WAL
// prefix already folded into it.
func (k *Kernel) Checkpoint() error {
	return k.fab.Checkpoint(func(headHash []byte, nextSeq uint64, idx *provenance.Index) error {
		_, err := replay.WriteSnapshot(k.cfg.DataDir, headHash, nextSeq, idx)
		return err
	})
}

// Fabric exposes the underlying Event Fabric for callers (e.g. audit
// export, façades) that need direct read access beyond the Ledger and
// Provenance Index accessors above.
func (k *Kernel) Fabric() *fabric.Fabric { return k.fab }

// Index exposes the Provenance Index for audit queries by worldline,
// stage, or causal parent.
func (k *Kernel) Index() *provenance.Index { return k.index }

// Close stops the checkpoint scheduler (if any) and closes the WAL,
// flushing and fsyncing any buffered writes first.
func (k *Kernel) Close() error {
	if k.cron != nil {
		ctx := k.cron.Stop()
		<-ctx.Done()
	}
	return k.log.Close()
}
