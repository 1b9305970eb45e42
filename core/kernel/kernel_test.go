package kernel

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/wardenledger/kernel/config"
	"github.com/wardenledger/kernel/core/policy"
	"github.com/wardenledger/kernel/core/types"
	"github.com/wardenledger/kernel/crypto"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:           t.TempDir(),
		FsyncPolicy:       "always",
		MaxSegmentBytes:   64 << 20,
		MinConfidence:     0.5,
		MaxAllowedRisk:    "Critical",
		HumanReviewAtRisk: "Critical",
		CoSignWaitDefault: 24 * time.Hour,
	}
}

func openTestKernel(t *testing.T) *Kernel {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	provider := policy.NewProfileProvider(policy.ThroughputFirst, "v1")

	k, err := Open(testConfig(t), db, provider)
	require.NoError(t, err)
	t.Cleanup(func() { k.Close() })
	return k
}

func TestSubmitApprovesAndRecordsToLedger(t *testing.T) {
	k := openTestKernel(t)
	wid := k.CreateWorldline([]byte("agent-1"))

	decl := types.NewDeclaration(wid, types.CommitmentScope{
		EffectDomain: types.Communication(),
		Targets:      []types.WorldlineId{crypto.DeriveWorldlineId([]byte("target"))},
	}).WithIntent(types.NewEventId()).Build()

	result, err := k.Submit(decl)
	require.NoError(t, err)
	require.Equal(t, types.DecisionApproved, result.Card.Decision)

	entry, err := k.AuditTrail(result.EntryID)
	require.NoError(t, err)
	require.Equal(t, types.LifecycleApproved, entry.State)
}

func TestSubmitDeniesUnknownWorldline(t *testing.T) {
	k := openTestKernel(t)
	ghost := crypto.DeriveWorldlineId([]byte("never-created"))

	decl := types.NewDeclaration(ghost, types.CommitmentScope{
		EffectDomain: types.Communication(),
		Targets:      []types.WorldlineId{crypto.DeriveWorldlineId([]byte("target"))},
	}).WithIntent(types.NewEventId()).Build()

	result, err := k.Submit(decl)
	require.NoError(t, err)
	require.Equal(t, types.DecisionDenied, result.Card.Decision)
}

func TestTransitionLifecycleThroughExecutingToCompleted(t *testing.T) {
	k := openTestKernel(t)
	wid := k.CreateWorldline([]byte("agent-2"))
	decl := types.NewDeclaration(wid, types.CommitmentScope{
		EffectDomain: types.Communication(),
		Targets:      []types.WorldlineId{crypto.DeriveWorldlineId([]byte("target"))},
	}).WithIntent(types.NewEventId()).Build()

	result, err := k.Submit(decl)
	require.NoError(t, err)
	require.Equal(t, types.DecisionApproved, result.Card.Decision)

	require.NoError(t, k.Transition(result.EntryID, types.LifecycleExecuting))
	require.NoError(t, k.AttachReceipt(result.EntryID, types.Receipt{ID: types.NewReceiptId(), ToolCallID: "call-1"}))
	require.NoError(t, k.RecordOutcome(result.EntryID, "sent the message", types.OutcomeKindAction))
	require.NoError(t, k.Transition(result.EntryID, types.LifecycleCompleted))

	entry, err := k.AuditTrail(result.EntryID)
	require.NoError(t, err)
	require.Equal(t, types.LifecycleCompleted, entry.State)
	require.Len(t, entry.Receipts, 1)
	require.Equal(t, "sent the message", entry.OutcomeSummary)
}

func TestAttentionBudgetExhaustionDeniesFurtherAllocation(t *testing.T) {
	k := openTestKernel(t)
	wid := k.CreateWorldline([]byte("agent-3"))
	domain := types.Communication()

	k.OpenBudget(types.AttentionBudget{Worldline: wid, EffectDomain: domain, Capacity: 5})
	require.NoError(t, k.AllocateAttention(wid, domain, "peer", 5))

	err := k.AllocateAttention(wid, domain, "peer", 1)
	require.Error(t, err)

	k.ReleaseAttention(wid, domain, "peer", 5)
	require.NoError(t, k.AllocateAttention(wid, domain, "peer", 1))
}

func TestRecordCouplingForcesCoSignOnNextSubmission(t *testing.T) {
	k := openTestKernel(t)
	wid := k.CreateWorldline([]byte("agent-4"))
	target := crypto.DeriveWorldlineId([]byte("target"))

	k.RecordCoupling(types.CouplingMetrics{
		Worldline:  wid,
		Dependency: types.DependencyMetrics{SampleCount: 20, DeferenceRate: 0.9, InitiativeRate: 0.05},
	})

	decl := types.NewDeclaration(wid, types.CommitmentScope{
		EffectDomain: types.Communication(),
		Targets:      []types.WorldlineId{target},
	}).WithIntent(types.NewEventId()).Build()

	result, err := k.Submit(decl)
	require.NoError(t, err)
	require.Equal(t, types.DecisionPendingHumanReview, result.Card.Decision)
	require.Contains(t, result.MissingSigners, target)
}

func TestVerifyIntegrityIsCleanAfterSubmissions(t *testing.T) {
	k := openTestKernel(t)
	wid := k.CreateWorldline([]byte("agent-5"))
	decl := types.NewDeclaration(wid, types.CommitmentScope{
		EffectDomain: types.Communication(),
		Targets:      []types.WorldlineId{crypto.DeriveWorldlineId([]byte("t"))},
	}).WithIntent(types.NewEventId()).Build()

	_, err := k.Submit(decl)
	require.NoError(t, err)

	report := k.VerifyIntegrity()
	require.True(t, report.IsClean())
}

func TestRecoveryAfterRestartPreservesChainHead(t *testing.T) {
	cfg := testConfig(t)
	cfg.DataDir = filepath.Join(t.TempDir(), "kernel-data")
	require.NoError(t, os.MkdirAll(cfg.DataDir, 0o700))

	db1, err := gorm.Open(sqlite.Open(filepath.Join(cfg.DataDir, "ledger.db")), &gorm.Config{})
	require.NoError(t, err)
	provider := policy.NewProfileProvider(policy.ThroughputFirst, "v1")
	k1, err := Open(cfg, db1, provider)
	require.NoError(t, err)

	wid := k1.CreateWorldline([]byte("agent-6"))
	decl := types.NewDeclaration(wid, types.CommitmentScope{
		EffectDomain: types.Communication(),
		Targets:      []types.WorldlineId{crypto.DeriveWorldlineId([]byte("t"))},
	}).WithIntent(types.NewEventId()).Build()
	_, err = k1.Submit(decl)
	require.NoError(t, err)
	headBefore := k1.Fabric().HeadHash()
	require.NoError(t, k1.Close())

	db2, err := gorm.Open(sqlite.Open(filepath.Join(cfg.DataDir, "ledger.db")), &gorm.Config{})
	require.NoError(t, err)
	k2, err := Open(cfg, db2, provider)
	require.NoError(t, err)
	defer k2.Close()

	require.Equal(t, headBefore, k2.Fabric().HeadHash())
	require.True(t, k2.RecoveredCount > 0)
}
