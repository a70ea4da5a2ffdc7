// Package segment describes one ELF-derived region of an address space
// (text or data) or the stack. It is grounded on kern/vm/segment.c;
// biscuit has no equivalent type since its address spaces are described
// by a Vmregion_t of arbitrary mmap'd regions rather than a fixed
// text/data/stack triple.
package segment

import (
	"fmt"

	"vmcore/mem"
	"vmcore/util"
)

/// Segment describes a contiguous virtual region with uniform
/// provenance. See §3: base_vaddr <= first_vaddr < last_vaddr <=
/// USERSPACETOP, base_vaddr page-aligned, npages = ceil((last-base)/PageSize).
type Segment struct {
	BaseVaddr  mem.Va_t // base_vaddr: page-aligned start
	FirstVaddr mem.Va_t // first_vaddr: actual region start, may be unaligned
	LastVaddr  mem.Va_t // last_vaddr: exclusive end
	NPages     int
	ElfOffset  int64 // file offset of the region's initialized image
	ElfSize    int64 // bytes to copy from the ELF; rest is zero-filled
}

/// USERSPACETOP is the highest virtual address available to user code.
const USERSPACETOP mem.Va_t = 0x80000000

/// Define builds a Segment for a region starting at firstVaddr with the
/// given in-memory size, backed by elfSize bytes at elfOffset in the
/// executable. It silently clamps elfSize down to the segment size,
/// matching as_define_region/segment_define's elfsize check.
func Define(firstVaddr mem.Va_t, memsize uint32, elfOffset int64, elfSize int64) (*Segment, error) {
	if memsize == 0 {
		return nil, fmt.Errorf("segment: memsize must be nonzero")
	}
	lastVaddr := firstVaddr + mem.Va_t(memsize)
	if lastVaddr > USERSPACETOP || firstVaddr >= USERSPACETOP {
		return nil, fmt.Errorf("segment: [0x%x, 0x%x) exceeds user address space", firstVaddr, lastVaddr)
	}
	baseVaddr := mem.PageRounddown(firstVaddr)
	npages := int(util.DivRoundup(uint32(lastVaddr-baseVaddr), uint32(mem.PageSize)))

	maxElf := int64(lastVaddr - firstVaddr)
	if elfSize > maxElf {
		elfSize = maxElf
	}

	return &Segment{
		BaseVaddr:  baseVaddr,
		FirstVaddr: firstVaddr,
		LastVaddr:  lastVaddr,
		NPages:     npages,
		ElfOffset:  elfOffset,
		ElfSize:    elfSize,
	}, nil
}

/// DefineStack builds a stack segment of stackPages pages ending at
/// userstack, which is always demand-zero (ElfSize == 0).
func DefineStack(userstack mem.Va_t, stackPages int) *Segment {
	memsize := uint32(stackPages) * uint32(mem.PageSize)
	first := userstack - mem.Va_t(memsize)
	return &Segment{
		BaseVaddr:  first,
		FirstVaddr: first,
		LastVaddr:  userstack,
		NPages:     stackPages,
		ElfOffset:  0,
		ElfSize:    0,
	}
}

/// Contains reports whether vaddr falls within [BaseVaddr, LastVaddr), the
/// page-aligned span of the segment. Callers doing fault lookups pass a
/// page-rounded address, which can fall below FirstVaddr when the region
/// starts mid-page; BaseVaddr is the bound that actually owns that page.
func (s *Segment) Contains(vaddr mem.Va_t) bool {
	return vaddr >= s.BaseVaddr && vaddr < s.LastVaddr
}

/// PageIndex returns the dense page-table index of vaddr within this
/// segment (0-based, relative to BaseVaddr). It panics if vaddr is
/// outside the segment.
func (s *Segment) PageIndex(vaddr mem.Va_t) int {
	if !s.Contains(vaddr) {
		panic("segment: vaddr out of range")
	}
	return int((vaddr - s.BaseVaddr) / mem.Va_t(mem.PageSize))
}

/// InElf reports whether vaddr lies within the portion of the segment
/// backed by the ELF image, i.e. before ROUNDUP(FirstVaddr+ElfSize, PageSize).
/// False means the page is demand-zero.
func (s *Segment) InElf(vaddr mem.Va_t) bool {
	bound := mem.PageRoundup(s.FirstVaddr + mem.Va_t(s.ElfSize))
	return vaddr < bound
}
