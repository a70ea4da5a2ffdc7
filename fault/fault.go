// Package fault implements the page-fault entry point: classify the
// fault, look up the page table entry it names, and branch on that
// entry's status. It is grounded on kern/vm/vm.c's vm_fault and the
// rule, stated alongside it, that the page table entry must be updated
// before any later caller can observe the frame -- GetPages's owner
// argument and AddrSpace.SetInMemory are what make that ordering
// explicit here instead of implicit in lock placement.
package fault

import (
	"fmt"

	"vmcore/addrspace"
	"vmcore/coremap"
	"vmcore/mem"
	"vmcore/pagetable"
	"vmcore/segment"
	"vmcore/swap"
	"vmcore/tlb"
	"vmcore/vmstats"
)

/// Type is the reason the CPU trapped into the fault handler.
type Type int

const (
	/// Read is an ordinary load that missed the TLB.
	Read Type = iota
	/// Write is an ordinary store that missed the TLB.
	Write
	/// ReadOnly is a store against a page the TLB already has mapped
	/// read-only (MIPS TLB Mod exception): always fatal, since the only
	/// read-only pages this core hands out are text pages.
	ReadOnly
)

/// Handler resolves faults for one address space against the shared
/// coremap, swap store, and TLB.
type Handler struct {
	as    *addrspace.AddrSpace
	cm    *coremap.Coremap
	sw    *swap.Store
	tlb   *tlb.Tlb
	stats *vmstats.Stats
}

/// NewHandler returns a Handler wiring together one address space and
/// the machine-wide VM state it faults against.
func NewHandler(as *addrspace.AddrSpace, cm *coremap.Coremap, sw *swap.Store, t *tlb.Tlb, stats *vmstats.Stats) *Handler {
	return &Handler{as: as, cm: cm, sw: sw, tlb: t, stats: stats}
}

/// Fault resolves one fault at vaddr. It returns an error only for a
/// genuine fault the process cannot recover from: an address outside
/// every segment, a write to a read-only segment, exhaustion of
/// memory and swap together, or a failure to read the page's ELF data
/// (the frame is then freed again). Every other outcome ends with a valid
/// translation installed in the TLB.
func (h *Handler) Fault(kind Type, vaddr mem.Va_t) error {
	h.stats.Hit(vmstats.TLBFault)

	if kind == ReadOnly {
		return fmt.Errorf("fault: store to a read-only mapping at 0x%x", vaddr)
	}

	pageVaddr := mem.PageRounddown(vaddr)
	seg, entry, index, readOnly, ok := h.as.Lookup(pageVaddr)
	if !ok {
		return fmt.Errorf("fault: 0x%x is outside every segment", vaddr)
	}
	if readOnly && kind == Write {
		return fmt.Errorf("fault: write to read-only segment at 0x%x", vaddr)
	}

	switch entry.Status() {
	case pagetable.InMemory:
		h.stats.Hit(vmstats.TLBReload)
		h.insertTLB(pageVaddr, entry.Frame(), readOnly)
		return nil
	case pagetable.NotLoaded:
		return h.loadFresh(seg, index, pageVaddr, readOnly)
	case pagetable.InSwap:
		return h.loadFromSwap(entry, index, pageVaddr, readOnly)
	default:
		panic("fault: page table entry has an invalid status")
	}
}

func (h *Handler) insertTLB(pageVaddr mem.Va_t, f mem.Frame_t, readOnly bool) {
	paddr := mem.PaOf(f)
	if h.tlb.Insert(pageVaddr, paddr, readOnly) {
		h.stats.Hit(vmstats.TLBFaultReplace)
	} else {
		h.stats.Hit(vmstats.TLBFaultFree)
	}
}

func (h *Handler) loadFresh(seg *segment.Segment, index int, pageVaddr mem.Va_t, readOnly bool) error {
	ref := h.as.RefFor(index)
	frame, ok := h.cm.GetPages(1, ref)
	if !ok {
		return fmt.Errorf("fault: out of memory and swap for page 0x%x", pageVaddr)
	}

	if seg.InElf(pageVaddr) {
		if err := h.as.LoadPage(seg, pageVaddr, h.cm.RAM().Bytes(frame)); err != nil {
			h.cm.Free(frame)
			return err
		}
		h.stats.Hit(vmstats.PageFaultELF)
		h.stats.Hit(vmstats.PageFaultDisk)
	} else {
		h.stats.Hit(vmstats.PageFaultZero)
	}

	h.as.SetInMemory(index, frame)
	h.insertTLB(pageVaddr, frame, readOnly)
	return nil
}

func (h *Handler) loadFromSwap(entry pagetable.Entry, index int, pageVaddr mem.Va_t, readOnly bool) error {
	ref := h.as.RefFor(index)
	frame, ok := h.cm.GetPages(1, ref)
	if !ok {
		return fmt.Errorf("fault: out of memory bringing page 0x%x back from swap", pageVaddr)
	}
	h.sw.In(h.cm.RAM(), frame, entry.SwapIndex())
	h.stats.Hit(vmstats.PageFaultSwap)
	h.stats.Hit(vmstats.PageFaultDisk)
	h.as.SetInMemory(index, frame)
	h.insertTLB(pageVaddr, frame, readOnly)
	return nil
}
