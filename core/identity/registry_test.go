package identity

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wardenledger/kernel/crypto"
)

func TestDeriveIsDeterministic(t *testing.T) {
	material := []byte("agent-alpha/device-1")

	a := Derive(material)
	b := Derive(material)
	require.Equal(t, a, b, "same material must derive the same worldline id every time")

	other := Derive([]byte("agent-beta/device-1"))
	require.NotEqual(t, a, other)
}

func TestCreateExtendsContinuityChain(t *testing.T) {
	reg := NewRegistry()
	material := []byte("agent-alpha")

	wid1 := reg.Create(material)
	seg1, ok := reg.Continuity(wid1)
	require.True(t, ok)
	require.Equal(t, uint64(0), seg1.Index)
	require.Nil(t, seg1.BackHash)

	wid2 := reg.Create(material)
	require.Equal(t, wid1, wid2, "re-presenting the same material must derive the same worldline id")

	seg2, ok := reg.Continuity(wid2)
	require.True(t, ok)
	require.Equal(t, uint64(1), seg2.Index)
	require.NotNil(t, seg2.BackHash, "second segment must bind to the first via a back-hash")

	require.True(t, reg.Verify(wid1))
}

func TestUnknownWorldlineReturnsAbsence(t *testing.T) {
	reg := NewRegistry()
	var unknown crypto.WorldlineId
	_, ok := reg.Continuity(unknown)
	require.False(t, ok)
	require.False(t, reg.Known(unknown))
}

func TestVerifyDetectsTamperedBackHash(t *testing.T) {
	reg := NewRegistry()
	material := []byte("agent-gamma")
	wid := reg.Create(material)
	reg.Create(material)

	reg.continuity[wid][1].BackHash[0] ^= 0xFF
	require.False(t, reg.Verify(wid))
}
