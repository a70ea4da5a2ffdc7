// Package pagetable implements the per-address-space table of page
// table entries (PTEs). It is grounded on kern/include/pt.h's bitfield
// layout and kern/vm/pt.c's dense text+data+stack index scheme, but it
// is deliberately a pure data structure: it does not allocate frames,
// drive eviction, or know about segments. The original pt_get_entry
// folds vaddr classification into the page table itself; here that
// classification lives in package addrspace instead, so pagetable has
// no dependency on segment and cannot form an import cycle with it.
package pagetable

import "vmcore/mem"

/// Status is the three-state life cycle of one virtual page.
type Status uint8

const (
	/// NotLoaded means the page has never been touched: not in memory,
	/// not in swap. A fault here is resolved by zero-fill or ELF load.
	NotLoaded Status = iota
	/// InMemory means FrameIndex names the backing physical frame.
	InMemory
	/// InSwap means SwapIndex names the backing swap slot.
	InSwap

	numStatus = 3
)

const (
	frameBits  = 20
	swapBits   = 12
	frameMask  = Entry(1)<<frameBits - 1
	swapShift  = frameBits
	swapMask   = Entry(1)<<swapBits - 1
	statusShift = frameBits + swapBits
	statusMask  = Entry(0x3)
)

/// Entry is one page table entry, bit-packed as frame_index:20 |
/// swap_index:12 | status:2, matching the original bitfield layout but
/// with the fields and masks written out explicitly rather than relying
/// on any assumed bit ordering from the host language.
type Entry uint64

func pack(frame mem.Frame_t, swapIdx int, status Status) Entry {
	return Entry(frame)&frameMask |
		(Entry(swapIdx)&swapMask)<<swapShift |
		(Entry(status)&statusMask)<<statusShift
}

/// Frame returns the physical frame this entry names. Only meaningful
/// when Status() == InMemory.
func (e Entry) Frame() mem.Frame_t {
	return mem.Frame_t(e & frameMask)
}

/// SwapIndex returns the swap slot this entry names. Only meaningful
/// when Status() == InSwap.
func (e Entry) SwapIndex() int {
	return int((e >> swapShift) & swapMask)
}

/// Status returns the entry's life-cycle state.
func (e Entry) Status() Status {
	return Status((e >> statusShift) & statusMask)
}

/// Table is a flat array of Entry, indexed densely across every page of
/// every segment owned by one address space (text, then data, then
/// stack), exactly as pt_get_index computes it.
type Table struct {
	entries []Entry
}

/// Create returns a Table with npages entries, all NotLoaded, matching
/// pt_create's zero-initialization loop.
func Create(npages int) *Table {
	if npages <= 0 {
		panic("pagetable: npages must be positive")
	}
	return &Table{entries: make([]Entry, npages)}
}

/// Len returns the number of entries in the table.
func (t *Table) Len() int {
	return len(t.entries)
}

/// Get returns the entry at index i.
func (t *Table) Get(i int) Entry {
	return t.entries[i]
}

/// SetNotLoaded resets index i to NotLoaded. It does not release the
/// frame or swap slot the entry named: callers are responsible for
/// freeing that resource first; this only updates the entry's own state.
func (t *Table) SetNotLoaded(i int) {
	t.entries[i] = pack(0, 0, NotLoaded)
}

/// SetInMemory records that index i is now backed by frame f.
func (t *Table) SetInMemory(i int, f mem.Frame_t) {
	t.entries[i] = pack(f, 0, InMemory)
}

/// SetInSwap records that index i is now backed by swap slot idx.
func (t *Table) SetInSwap(i int, idx int) {
	t.entries[i] = pack(0, idx, InSwap)
}

/// Empty reports whether every entry is NotLoaded, mirroring pt_empty's
/// use as an invariant check before as_destroy discards a table (every
/// live entry must already have been released to the coremap/swap
/// store by the caller).
func (t *Table) Empty() bool {
	for _, e := range t.entries {
		if e.Status() != NotLoaded {
			return false
		}
	}
	return true
}

/// Ref is an opaque handle to one entry of one Table, used by the
/// coremap to record and later demote the owner of a physical frame
/// without needing to import addrspace's classification logic or hold a
/// raw index into a table it doesn't otherwise touch.
type Ref struct {
	table *Table
	index int
}

/// RefFor returns a Ref to the entry at index i.
func (t *Table) RefFor(i int) Ref {
	return Ref{table: t, index: i}
}

/// Frame returns the frame backing the referenced entry.
func (r Ref) Frame() mem.Frame_t {
	return r.table.entries[r.index].Frame()
}

/// Demote rewrites the referenced entry to InSwap at slot idx. Used by
/// the coremap's eviction path after it has written the frame's
/// contents out to the swap store.
func (r Ref) Demote(idx int) {
	r.table.entries[r.index] = pack(0, idx, InSwap)
}
