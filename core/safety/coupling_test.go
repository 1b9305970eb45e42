package safety

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wardenledger/kernel/core/types"
	"github.com/wardenledger/kernel/crypto"
)

func TestCouplingBookDependencyLookup(t *testing.T) {
	book := NewCouplingBook()
	wid := crypto.DeriveWorldlineId([]byte("agent"))

	_, ok := book.Dependency(wid)
	require.False(t, ok, "no coupling recorded yet")

	book.Record(types.CouplingMetrics{
		Worldline:  wid,
		Dependency: types.DependencyMetrics{SampleCount: 10, DeferenceRate: 0.9, InitiativeRate: 0.1},
	})

	dm, ok := book.Dependency(wid)
	require.True(t, ok)
	require.True(t, dm.IsConcerning())
}

func TestCouplingBookRecordOverwritesPriorSnapshot(t *testing.T) {
	book := NewCouplingBook()
	wid := crypto.DeriveWorldlineId([]byte("agent"))

	book.Record(types.CouplingMetrics{Worldline: wid, Dependency: types.DependencyMetrics{SampleCount: 1, DeferenceRate: 0.9, InitiativeRate: 0.1}})
	book.Record(types.CouplingMetrics{Worldline: wid, Dependency: types.DependencyMetrics{SampleCount: 1, DeferenceRate: 0.1, InitiativeRate: 0.9}})

	dm, ok := book.Dependency(wid)
	require.True(t, ok)
	require.False(t, dm.IsConcerning())
}
