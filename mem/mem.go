// Package mem defines the physical-address types and the simulated RAM
// backing store shared by the coremap, page table, and swap store. It plays
// the role biscuit's mem package plays for its x86 Pa_t/Pg_t types, adapted
// to the 32-bit, software-TLB machine this core targets.
package mem

import "fmt"

/// PageShift is the base-2 exponent of the page size.
const PageShift uint = 12

/// PageSize is the size of a single page in bytes.
const PageSize int = 1 << PageShift

/// PageOffset masks the offset bits of an address.
const PageOffset uint32 = uint32(PageSize) - 1

/// PageMask masks the page-number bits of an address, clearing the offset.
const PageMask uint32 = ^PageOffset

/// Pa_t is a physical address: byte offset into simulated RAM.
type Pa_t uint32

/// Va_t is a 32-bit user or kernel virtual address.
type Va_t uint32

/// Frame_t is a physical frame index. Frame 0 is reserved and never
/// handed out by the coremap; it exists so that a zero Frame_t can mean
/// "no frame" in a page-table entry.
type Frame_t uint32

/// Page_t is one PageSize-aligned page of bytes.
type Page_t [PageSize]byte

/// FrameOf returns the frame index containing the physical address pa.
func FrameOf(pa Pa_t) Frame_t {
	return Frame_t(uint32(pa) >> PageShift)
}

/// PaOf returns the physical address of the start of frame f.
func PaOf(f Frame_t) Pa_t {
	return Pa_t(uint32(f) << PageShift)
}

/// PageRounddown clears the offset bits of a virtual address.
func PageRounddown(v Va_t) Va_t {
	return Va_t(uint32(v) & PageMask)
}

/// PageRoundup rounds v up to the next page boundary.
func PageRoundup(v Va_t) Va_t {
	return PageRounddown(v + Va_t(PageSize) - 1)
}

/// RAM is the simulated physical memory of the machine: a flat array of
/// frames addressed by Frame_t. It has no locking of its own -- callers
/// serialize access to a given frame through ownership: the coremap
/// hands each frame to one owner under cm_lock, and the frame's bytes
/// are then zeroed, filled and read without cm_lock held, much as
/// biscuit's Physmem_t.Dmap returns a raw page pointer that callers must
/// otherwise synchronize.
type RAM struct {
	frames []Page_t
}

/// NewRAM allocates a simulated RAM of the given number of frames. Frame 0
/// is part of the array (so indices match Frame_t values directly) but is
/// never allocated by the coremap.
func NewRAM(nframes int) *RAM {
	if nframes <= 0 {
		panic("mem: bad frame count")
	}
	return &RAM{frames: make([]Page_t, nframes)}
}

/// NFrames returns the number of frames backing this RAM.
func (r *RAM) NFrames() int {
	return len(r.frames)
}

/// Page returns a pointer to the page backing frame f. The caller must
/// own f (or have it pinned) before mutating it.
func (r *RAM) Page(f Frame_t) *Page_t {
	if int(f) >= len(r.frames) {
		panic(fmt.Sprintf("mem: frame %d out of range (%d frames)", f, len(r.frames)))
	}
	return &r.frames[f]
}

/// Zero clears the page backing frame f.
func (r *RAM) Zero(f Frame_t) {
	p := r.Page(f)
	for i := range p {
		p[i] = 0
	}
}

/// Bytes returns a byte slice view of the page backing frame f, for
/// copying into or out of the frame.
func (r *RAM) Bytes(f Frame_t) []byte {
	return r.Page(f)[:]
}

/// ZeroRun clears n consecutive frames starting at f.
func (r *RAM) ZeroRun(f Frame_t, n int) {
	for i := 0; i < n; i++ {
		r.Zero(f + Frame_t(i))
	}
}
