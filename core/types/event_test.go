package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wardenledger/kernel/crypto"
)

func TestCanonicalEncodeRoundTrips(t *testing.T) {
	e := KernelEvent{
		ID:          NewEventId(),
		Worldline:   crypto.DeriveWorldlineId([]byte("agent")),
		Stage:       StageIntent,
		Seq:         7,
		Timestamp:   time.Now().UTC().Truncate(time.Second),
		Parents:     []EventId{NewEventId(), NewEventId()},
		PayloadKind: "test.payload",
		Payload:     []byte("hello world"),
		PrevHash:    []byte{1, 2, 3},
	}
	e.Hash, _ = e.ComputeHash()

	body, err := e.CanonicalEncode()
	require.NoError(t, err)

	decoded, err := DecodeCanonicalEvent(body, e.PrevHash, e.Hash)
	require.NoError(t, err)

	require.Equal(t, e.ID, decoded.ID)
	require.Equal(t, e.Worldline, decoded.Worldline)
	require.Equal(t, e.Stage, decoded.Stage)
	require.Equal(t, e.Seq, decoded.Seq)
	require.Equal(t, e.Timestamp.Unix(), decoded.Timestamp.Unix())
	require.Equal(t, e.Parents, decoded.Parents)
	require.Equal(t, e.PayloadKind, decoded.PayloadKind)
	require.Equal(t, e.Payload, decoded.Payload)

	ok, err := decoded.VerifyHash()
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyHashDetectsPayloadTamper(t *testing.T) {
	e := KernelEvent{
		ID:        NewEventId(),
		Worldline: crypto.DeriveWorldlineId([]byte("agent")),
		Stage:     StageMeaning,
		Payload:   []byte("original"),
	}
	e.Hash, _ = e.ComputeHash()

	e.Payload = []byte("tampered")
	ok, err := e.VerifyHash()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIntegrityReportIsCleanRequiresFullVerification(t *testing.T) {
	clean := IntegrityReport{Total: 3, Verified: 3}
	require.True(t, clean.IsClean())

	broken := IntegrityReport{Total: 3, Verified: 2, BrokenLinks: []EventId{NewEventId()}}
	require.False(t, broken.IsClean())

	partial := IntegrityReport{Total: 3, Verified: 2}
	require.False(t, partial.IsClean())
}

func TestStagePrecedesOrdering(t *testing.T) {
	require.True(t, StageMeaning.Precedes(StageIntent))
	require.True(t, StageIntent.Precedes(StageCommitment))
	require.False(t, StageCommitment.Precedes(StageIntent))
	require.False(t, StageSystem.Precedes(StageMeaning))
	require.False(t, StageMeaning.Precedes(StageSystem))
}
