// Package addrspace ties one process's segments and page table
// together. It is grounded on kern/vm/addrspace.c (as_define_region,
// as_prepare_load, as_activate, as_destroy) and, for the locking
// convention around page table mutation, on biscuit's
// Lock_pmap/Unlock_pmap pairing in vm/as.go. Unlike the original, the
// byte-range math for loading an ELF-backed page is expressed as a
// single interval intersection rather than three separate cases; it
// computes the same ranges.
package addrspace

import (
	"fmt"
	"io"
	"sync"

	"vmcore/coremap"
	"vmcore/mem"
	"vmcore/pagetable"
	"vmcore/segment"
	"vmcore/swap"
	"vmcore/tlb"
	"vmcore/vmstats"
)

/// ELFSource supplies the initialized bytes of the executable backing
/// an address space's text and data segments. *os.File and any
/// io.ReaderAt satisfy it.
type ELFSource interface {
	io.ReaderAt
}

/// AddrSpace owns exactly one text segment, one data segment, one stack
/// segment, and the page table spanning all three. Fork/copy-on-write
/// is out of scope: an address space is created once, loaded, run, and
/// destroyed.
type AddrSpace struct {
	mu sync.Mutex // as_lock: guards pt mutation and segment definition

	elf   ELFSource
	text  *segment.Segment
	data  *segment.Segment
	stack *segment.Segment
	pt    *pagetable.Table

	textPages int
	dataPages int
}

/// New returns an address space with no segments defined yet. elf may
/// be nil for an address space that will never fault on an ELF-backed
/// page (e.g. in tests).
func New(elf ELFSource) *AddrSpace {
	return &AddrSpace{elf: elf}
}

/// DefineRegion records the text segment if it is not yet set, else the
/// data segment, matching as_define_region's "first call is text,
/// second is data" convention for a two-segment ELF.
func (a *AddrSpace) DefineRegion(firstVaddr mem.Va_t, memsize uint32, elfOffset, elfSize int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	seg, err := segment.Define(firstVaddr, memsize, elfOffset, elfSize)
	if err != nil {
		return err
	}
	switch {
	case a.text == nil:
		a.text = seg
	case a.data == nil:
		a.data = seg
	default:
		return fmt.Errorf("addrspace: text and data are already defined")
	}
	return nil
}

/// Prepare finalizes the address space once both segments are defined:
/// it adds the fixed-size stack segment and allocates a page table
/// dense enough to cover text, data, and stack, matching
/// as_prepare_load.
func (a *AddrSpace) Prepare(stackPages int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.text == nil || a.data == nil {
		return fmt.Errorf("addrspace: text and data must be defined before Prepare")
	}
	a.stack = segment.DefineStack(segment.USERSPACETOP, stackPages)
	a.textPages = a.text.NPages
	a.dataPages = a.data.NPages
	total := a.textPages + a.dataPages + a.stack.NPages
	a.pt = pagetable.Create(total)
	return nil
}

// locate classifies vaddr against the three segments and returns its
// dense page table index and whether the segment is read-only (text).
func (a *AddrSpace) locate(vaddr mem.Va_t) (seg *segment.Segment, index int, readOnly bool, ok bool) {
	switch {
	case a.text != nil && a.text.Contains(vaddr):
		return a.text, a.text.PageIndex(vaddr), true, true
	case a.data != nil && a.data.Contains(vaddr):
		return a.data, a.textPages + a.data.PageIndex(vaddr), false, true
	case a.stack != nil && a.stack.Contains(vaddr):
		return a.stack, a.textPages + a.dataPages + a.stack.PageIndex(vaddr), false, true
	default:
		return nil, 0, false, false
	}
}

/// Lookup classifies vaddr and returns the segment it falls in, its
/// page table entry, its dense index, and whether the segment is
/// read-only. ok is false if vaddr is outside every segment (a genuine
/// segmentation fault).
func (a *AddrSpace) Lookup(vaddr mem.Va_t) (seg *segment.Segment, entry pagetable.Entry, index int, readOnly bool, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	seg, index, readOnly, ok = a.locate(vaddr)
	if !ok {
		return nil, 0, 0, false, false
	}
	return seg, a.pt.Get(index), index, readOnly, true
}

/// RefFor returns an owning handle to the page table entry at index,
/// for the coremap to record as a frame's owner.
func (a *AddrSpace) RefFor(index int) *pagetable.Ref {
	r := a.pt.RefFor(index)
	return &r
}

/// SetInMemory records that the page at index is now backed by frame f.
func (a *AddrSpace) SetInMemory(index int, f mem.Frame_t) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pt.SetInMemory(index, f)
}

/// SetInSwap records that the page at index is now backed by swap slot
/// idx.
func (a *AddrSpace) SetInSwap(index int, idx int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pt.SetInSwap(index, idx)
}

/// LoadPage fills dst (one page-sized slice) with the bytes a fault at
/// vaddr within seg should see: whatever portion of [FirstVaddr,
/// FirstVaddr+ElfSize) this page overlaps, read from the ELF image at
/// the matching file offset, zero-filled everywhere else in the page.
func (a *AddrSpace) LoadPage(seg *segment.Segment, vaddr mem.Va_t, dst []byte) error {
	if len(dst) != mem.PageSize {
		panic("addrspace: LoadPage requires a page-sized buffer")
	}
	pageVaddr := mem.PageRounddown(vaddr)
	pageEnd := pageVaddr + mem.Va_t(mem.PageSize)
	elfStart := seg.FirstVaddr
	elfEnd := seg.FirstVaddr + mem.Va_t(seg.ElfSize)

	lo := pageVaddr
	if elfStart > lo {
		lo = elfStart
	}
	hi := pageEnd
	if elfEnd < hi {
		hi = elfEnd
	}

	for i := range dst {
		dst[i] = 0
	}
	if hi <= lo {
		return nil
	}
	if a.elf == nil {
		return fmt.Errorf("addrspace: page at 0x%x needs ELF data but no source is attached", vaddr)
	}

	n := int(hi - lo)
	fileOff := seg.ElfOffset + int64(lo-elfStart)
	pageOff := int(lo - pageVaddr)
	read, err := a.elf.ReadAt(dst[pageOff:pageOff+n], fileOff)
	if err != nil && err != io.EOF {
		return fmt.Errorf("addrspace: reading elf data at offset %d: %w", fileOff, err)
	}
	if read != n {
		return fmt.Errorf("addrspace: short elf read at offset %d: got %d want %d", fileOff, read, n)
	}
	return nil
}

/// Activate invalidates the TLB for this address space's benefit,
/// matching as_activate, and counts the invalidation.
func (a *AddrSpace) Activate(t *tlb.Tlb, stats *vmstats.Stats) {
	t.Invalidate()
	stats.Hit(vmstats.TLBInvalidation)
}

/// Destroy releases every frame and swap slot still held by this
/// address space's page table back to the coremap and swap store, and
/// asserts that nothing was left unaccounted for. It does not touch the
/// TLB; callers that destroy the currently active address space must
/// invalidate it separately.
func (a *AddrSpace) Destroy(cm *coremap.Coremap, sw *swap.Store) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 0; i < a.pt.Len(); i++ {
		e := a.pt.Get(i)
		switch e.Status() {
		case pagetable.InMemory:
			cm.Free(e.Frame())
		case pagetable.InSwap:
			sw.Free(e.SwapIndex())
		}
		a.pt.SetNotLoaded(i)
	}
	if !a.pt.Empty() {
		panic("addrspace: page table not empty after destroy")
	}
}
