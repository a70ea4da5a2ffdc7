// Package tlb simulates the software-loaded translation look-aside buffer
// of a MIPS-like machine: a small, fixed-size cache of (vaddr, paddr)
// translations that the kernel refills on every miss. It is grounded on
// the original kern/vm/vm_tlb.c round-robin driver and, for the
// interrupt-masked critical section convention, on biscuit's
// Lock_pmap/Unlock_pmap pairing in vm/as.go.
package tlb

import (
	"sync"

	"vmcore/mem"
)

/// NumEntries is the number of hardware TLB slots (NUM_TLB).
const NumEntries = 64

/// Entry is one TLB slot's translation.
type Entry struct {
	Vaddr mem.Va_t
	Paddr mem.Pa_t
	Valid bool
	Dirty bool // dirty == writable, mirrors TLBLO_DIRTY
}

// noInterrupts stands in for splhigh()/splx(): TLB mutation on real
// hardware runs with interrupts masked on the current CPU so a timer
// interrupt can never observe a half-written entry. A single CPU's
// mutex gives the same mutual-exclusion guarantee here.
type noInterrupts struct {
	sync.Mutex
}

/// Tlb simulates the CPU's TLB for a single CPU: NumEntries slots and a
/// round-robin victim cursor, exactly as the original driver implements
/// it (no use bits, no LRU).
type Tlb struct {
	masked  noInterrupts
	entries [NumEntries]Entry
	victim  int
}

/// New returns a TLB with every slot invalid.
func New() *Tlb {
	t := &Tlb{}
	t.Invalidate()
	return t
}

/// Invalidate writes an invalid entry to every slot and resets the
/// round-robin victim cursor. Called on every address-space activation.
func (t *Tlb) Invalidate() {
	t.masked.Lock()
	defer t.masked.Unlock()
	for i := range t.entries {
		t.entries[i] = Entry{}
	}
	t.victim = 0
}

/// Insert loads vaddr -> paddr into the next victim slot, advancing the
/// round-robin cursor. paddr must be page-aligned. readOnly pages (text)
/// are inserted with Dirty clear so a later write faults. It reports
/// whether the victim slot held a valid translation that was replaced,
/// so callers can distinguish a fault serviced by a free slot from one
/// that displaced a live entry.
func (t *Tlb) Insert(vaddr mem.Va_t, paddr mem.Pa_t, readOnly bool) (replaced bool) {
	if uint32(paddr)&mem.PageOffset != 0 {
		panic("tlb: paddr not page-aligned")
	}
	t.masked.Lock()
	defer t.masked.Unlock()
	replaced = t.entries[t.victim].Valid
	t.entries[t.victim] = Entry{
		Vaddr: vaddr,
		Paddr: paddr,
		Valid: true,
		Dirty: !readOnly,
	}
	t.victim = (t.victim + 1) % NumEntries
	return replaced
}

/// RemoveByVaddr invalidates every slot whose vaddr matches v, if any.
func (t *Tlb) RemoveByVaddr(v mem.Va_t) {
	t.masked.Lock()
	defer t.masked.Unlock()
	for i := range t.entries {
		if t.entries[i].Valid && t.entries[i].Vaddr == v {
			t.entries[i] = Entry{}
		}
	}
}

/// RemoveByPaddr invalidates every slot whose paddr equals p, the
/// page-aligned start of a frame.
/// Used during eviction so no stale translation survives for a frame
/// that is about to be handed to a new owner.
func (t *Tlb) RemoveByPaddr(p mem.Pa_t) {
	t.masked.Lock()
	defer t.masked.Unlock()
	for i := range t.entries {
		if t.entries[i].Valid && t.entries[i].Paddr == p {
			t.entries[i] = Entry{}
		}
	}
}

/// Probe returns the slot index holding vaddr and true, or (0, false) if
/// no valid entry matches. Exposed mainly for tests and statistics.
func (t *Tlb) Probe(vaddr mem.Va_t) (int, bool) {
	t.masked.Lock()
	defer t.masked.Unlock()
	for i := range t.entries {
		if t.entries[i].Valid && t.entries[i].Vaddr == vaddr {
			return i, true
		}
	}
	return 0, false
}

/// Snapshot returns a copy of all slots, for inspection in tests.
func (t *Tlb) Snapshot() [NumEntries]Entry {
	t.masked.Lock()
	defer t.masked.Unlock()
	return t.entries
}
