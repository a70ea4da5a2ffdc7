package fault

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"vmcore/addrspace"
	"vmcore/coremap"
	"vmcore/mem"
	"vmcore/pagetable"
	"vmcore/swap"
	"vmcore/tlb"
	"vmcore/vmstats"
)

// harness bootstraps one coremap/swap/TLB/stats quadruple and one address
// space with a text page, a data page, and an 18-page stack, mirroring
// the layout cmd/vmctl's demo drives.
type harness struct {
	cm    *coremap.Coremap
	sw    *swap.Store
	tlb   *tlb.Tlb
	stats *vmstats.Stats
	as    *addrspace.AddrSpace
	h     *Handler
}

func newHarness(t *testing.T, ramPages int) *harness {
	t.Helper()
	sw, err := swap.Bootstrap(filepath.Join(t.TempDir(), "swapfile"))
	require.NoError(t, err)
	t.Cleanup(func() { sw.Close() })

	tb := tlb.New()
	stats := vmstats.New()
	cm, err := coremap.Bootstrap(ramPages*mem.PageSize, 1, sw, tb, stats)
	require.NoError(t, err)

	image := make([]byte, 0x2000)
	for i := range image {
		image[i] = byte(i)
	}
	as := addrspace.New(bytes.NewReader(image))
	require.NoError(t, as.DefineRegion(0x400000, uint32(mem.PageSize), 0, int64(mem.PageSize)))
	require.NoError(t, as.DefineRegion(0x401000, uint32(mem.PageSize), int64(mem.PageSize), int64(mem.PageSize)))
	require.NoError(t, as.Prepare(18))

	return &harness{
		cm: cm, sw: sw, tlb: tb, stats: stats, as: as,
		h: NewHandler(as, cm, sw, tb, stats),
	}
}

func TestFaultLoadsTextFromElf(t *testing.T) {
	hs := newHarness(t, 16)
	require.NoError(t, hs.h.Fault(Read, 0x400000))

	_, entry, _, _, ok := hs.as.Lookup(0x400000)
	require.True(t, ok)
	require.Equal(t, pagetable.InMemory, entry.Status())

	paddr, found := hs.tlb.Probe(0x400000)
	require.True(t, found)
	snap := hs.tlb.Snapshot()
	require.False(t, snap[paddr].Dirty, "text page must be mapped read-only")
}

func TestFaultOnTextWriteIsFatal(t *testing.T) {
	hs := newHarness(t, 16)
	require.Error(t, hs.h.Fault(ReadOnly, 0x400000), "READONLY always terminates the process")
}

func TestFaultWriteToDataSetsDirty(t *testing.T) {
	hs := newHarness(t, 16)
	require.NoError(t, hs.h.Fault(Write, 0x401000))
	idx, found := hs.tlb.Probe(0x401000)
	require.True(t, found)
	require.True(t, hs.tlb.Snapshot()[idx].Dirty)
}

func TestFaultOutsideEverySegmentIsFatal(t *testing.T) {
	hs := newHarness(t, 16)
	require.Error(t, hs.h.Fault(Read, 0x7f000000))
}

func TestSecondFaultOnResidentPageIsATLBReload(t *testing.T) {
	hs := newHarness(t, 16)
	require.NoError(t, hs.h.Fault(Read, 0x401000))
	before := hs.stats.Get(vmstats.TLBReload)

	hs.tlb.RemoveByVaddr(0x401000) // simulate the TLB entry aging out
	require.NoError(t, hs.h.Fault(Read, 0x401000))

	require.Equal(t, before+1, hs.stats.Get(vmstats.TLBReload))
}

func TestFaultEvictionRoundTrip(t *testing.T) {
	// spec.md §8 scenario 3: fill every user-eligible frame with distinct
	// contents, force one more allocation, then fault the evicted page
	// back in and check its bytes survived the round trip.
	hs := newHarness(t, 6) // 2 reserved + 4 user frames
	require.NoError(t, hs.h.Fault(Read, 0x400000))
	require.NoError(t, hs.h.Fault(Read, 0x401000))

	// Touch two stack pages to consume the remaining two user frames.
	require.NoError(t, hs.h.Fault(Write, mem.Va_t(0x80000000-mem.PageSize)))
	require.NoError(t, hs.h.Fault(Write, mem.Va_t(0x80000000-2*mem.PageSize)))

	_, entry, _, _, ok := hs.as.Lookup(0x400000)
	require.True(t, ok)
	require.Equal(t, pagetable.InMemory, entry.Status())
	original := append([]byte(nil), hs.cm.RAM().Bytes(entry.Frame())...)

	// One more fault (a fresh stack page) forces an eviction since all
	// four user frames are occupied.
	require.NoError(t, hs.h.Fault(Write, mem.Va_t(0x80000000-3*mem.PageSize)))

	_, entryAfter, _, _, ok := hs.as.Lookup(0x400000)
	require.True(t, ok)
	require.Equal(t, pagetable.InSwap, entryAfter.Status(), "the round-robin cursor reaches the text page first among the four resident user frames")

	// Faulting the evicted text page again swaps it back in (evicting the
	// next victim) with its original bytes.
	require.NoError(t, hs.h.Fault(Read, 0x400000))
	_, entryBack, _, _, ok := hs.as.Lookup(0x400000)
	require.True(t, ok)
	require.Equal(t, pagetable.InMemory, entryBack.Status())
	require.Equal(t, original, hs.cm.RAM().Bytes(entryBack.Frame()))
}

func TestFaultOnUnalignedFirstVaddrLoadsElf(t *testing.T) {
	// spec.md §8 scenario 2: text first_vaddr=0x400004, elf_size=0x10,
	// elf_offset=0x1000. The fault handler page-rounds the faulting
	// address down to 0x400000 before looking up the segment; that
	// lookup must still resolve even though BaseVaddr < FirstVaddr.
	image := make([]byte, 0x2000)
	for i := 0x1000; i < 0x1010; i++ {
		image[i] = byte(i)
	}
	sw, err := swap.Bootstrap(filepath.Join(t.TempDir(), "swapfile"))
	require.NoError(t, err)
	t.Cleanup(func() { sw.Close() })
	tb := tlb.New()
	stats := vmstats.New()
	cm, err := coremap.Bootstrap(16*mem.PageSize, 1, sw, tb, stats)
	require.NoError(t, err)

	as := addrspace.New(bytes.NewReader(image))
	require.NoError(t, as.DefineRegion(0x400004, 0xffc, 0x1000, 0x10))
	require.NoError(t, as.DefineRegion(0x401000, uint32(mem.PageSize), 0, 0))
	require.NoError(t, as.Prepare(18))
	h := NewHandler(as, cm, sw, tb, stats)

	require.NoError(t, h.Fault(Read, 0x400004))

	_, entry, _, _, ok := as.Lookup(mem.PageRounddown(0x400004))
	require.True(t, ok)
	require.Equal(t, pagetable.InMemory, entry.Status())
	frame := entry.Frame()
	dst := cm.RAM().Bytes(frame)
	for i := 0; i < 4; i++ {
		require.Zero(t, dst[i])
	}
	for i := 0; i < 0x10; i++ {
		require.Equal(t, byte(0x1000+i), dst[4+i])
	}
}

func TestFaultSwapInRestoresBytes(t *testing.T) {
	hs := newHarness(t, 5)
	require.NoError(t, hs.h.Fault(Read, 0x400000))

	_, entry, index, _, ok := hs.as.Lookup(0x400000)
	require.True(t, ok)
	frame := entry.Frame()
	original := append([]byte(nil), hs.cm.RAM().Bytes(frame)...)

	// Manually evict this page to swap, as GetPages' eviction path would.
	idx := hs.sw.Out(hs.cm.RAM(), frame)
	hs.as.SetInSwap(index, idx)
	hs.cm.Free(frame)
	hs.tlb.RemoveByPaddr(mem.PaOf(frame))

	require.NoError(t, hs.h.Fault(Read, 0x400000))
	_, entryAfter, _, _, ok := hs.as.Lookup(0x400000)
	require.True(t, ok)
	require.Equal(t, pagetable.InMemory, entryAfter.Status())
	require.Equal(t, original, hs.cm.RAM().Bytes(entryAfter.Frame()))
}
