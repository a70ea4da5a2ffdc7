package tlb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"vmcore/mem"
)

func TestInsertAndProbe(t *testing.T) {
	tb := New()
	tb.Insert(0x1000, 0x4000, false)
	idx, ok := tb.Probe(0x1000)
	require.True(t, ok)
	snap := tb.Snapshot()
	require.True(t, snap[idx].Valid)
	require.Equal(t, mem.Pa_t(0x4000), snap[idx].Paddr)
	require.True(t, snap[idx].Dirty)
}

func TestInsertReadOnlyClearsDirty(t *testing.T) {
	tb := New()
	tb.Insert(0x2000, 0x5000, true)
	_, ok := tb.Probe(0x2000)
	require.True(t, ok)
	snap := tb.Snapshot()
	for _, e := range snap {
		if e.Valid && e.Vaddr == 0x2000 {
			require.False(t, e.Dirty)
		}
	}
}

func TestRoundRobinReplacementReportsCorrectly(t *testing.T) {
	tb := New()
	for i := 0; i < NumEntries; i++ {
		replaced := tb.Insert(mem.Va_t(i*mem.PageSize), mem.Pa_t(i*mem.PageSize), false)
		require.False(t, replaced, "slot %d should have been empty", i)
	}
	// One full cycle later every slot is occupied, so the next insert
	// must report a replacement.
	replaced := tb.Insert(mem.Va_t(NumEntries*mem.PageSize), mem.Pa_t(NumEntries*mem.PageSize), false)
	require.True(t, replaced)
}

func TestRemoveByVaddr(t *testing.T) {
	tb := New()
	tb.Insert(0x3000, 0x6000, false)
	tb.RemoveByVaddr(0x3000)
	_, ok := tb.Probe(0x3000)
	require.False(t, ok)
}

func TestRemoveByPaddr(t *testing.T) {
	tb := New()
	tb.Insert(0x3000, 0x6000, false)
	tb.RemoveByPaddr(0x6000)
	_, ok := tb.Probe(0x3000)
	require.False(t, ok)
}

func TestInvalidateClearsEverything(t *testing.T) {
	tb := New()
	tb.Insert(0x1000, 0x1000, false)
	tb.Invalidate()
	for _, e := range tb.Snapshot() {
		require.False(t, e.Valid)
	}
}

func TestInsertPanicsOnMisalignedPaddr(t *testing.T) {
	tb := New()
	require.Panics(t, func() {
		tb.Insert(0x1000, 0x1001, false)
	})
}
