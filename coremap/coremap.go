// Package coremap implements the physical frame allocator and the
// clock-style evictor that backs it once RAM is full. It is grounded on
// kern/vm/coremap.c's run-length allocation and round-robin victim scan,
// combined with the eviction protocol described for this machine: pin
// the victim frame, release the allocator lock around the blocking
// write to swap, then reacquire it to finish the handoff. The owner
// bookkeeping follows biscuit's mem.Physmem_t in spirit (a flat array
// of frame descriptors) though biscuit never evicts to disk at all.
package coremap

import (
	"fmt"
	"sync"

	"vmcore/mem"
	"vmcore/pagetable"
	"vmcore/swap"
	"vmcore/tlb"
	"vmcore/vmstats"
)

// entrySize estimates the footprint of one coremap bookkeeping slot, to
// size the kernel-reserved region the way the original coremap_bootstrap
// sizes the array it packs in just after the kernel image. The real
// metadata backing a Coremap lives in ordinary Go heap memory rather
// than inside the simulated RAM it describes; this constant exists only
// so reserved-frame accounting matches what the original bootstrap
// would have reserved for the same purpose.
const entrySize = 16

/// Entry is one frame's bookkeeping record.
type Entry struct {
	Used      bool
	AllocSize int // valid only at the head of a run
	Locked    bool // pinned during eviction I/O
	Owner     *pagetable.Ref
}

/// Coremap is the process-wide physical frame allocator.
type Coremap struct {
	mu      sync.Mutex // cm_lock
	ram     *mem.RAM
	entries []Entry
	victim  int
	swap    *swap.Store
	tlb     *tlb.Tlb
	stats   *vmstats.Stats
}

/// Bootstrap sizes RAM (capped at 512 MiB), reserves the frames used by
/// the kernel image and the coremap's own bookkeeping, and returns a
/// ready-to-use Coremap. kernelEndFrame is the first frame not occupied
/// by the kernel image, analogous to KVADDR_TO_PADDR(firstfree).
func Bootstrap(ramBytes int, kernelEndFrame mem.Frame_t, store *swap.Store, t *tlb.Tlb, stats *vmstats.Stats) (*Coremap, error) {
	const maxRAM = 512 * 1024 * 1024
	if ramBytes > maxRAM {
		ramBytes = maxRAM
	}
	if ramBytes < mem.PageSize {
		return nil, fmt.Errorf("coremap: ram too small")
	}
	nframes := ramBytes / mem.PageSize

	coremapBytes := nframes * entrySize
	coremapPages := (coremapBytes + mem.PageSize - 1) / mem.PageSize
	reservedTo := int(kernelEndFrame) + coremapPages
	if reservedTo > nframes {
		return nil, fmt.Errorf("coremap: kernel and bookkeeping don't fit in ram")
	}

	cm := &Coremap{
		ram:     mem.NewRAM(nframes),
		entries: make([]Entry, nframes),
		swap:    store,
		tlb:     t,
		stats:   stats,
	}
	for i := 0; i < reservedTo; i++ {
		cm.entries[i] = Entry{Used: true, AllocSize: 1}
	}
	return cm, nil
}

/// RAM exposes the simulated physical memory backing this Coremap, for
/// collaborators (the fault handler, the ELF loader) that need to copy
/// bytes into or out of a frame.
func (cm *Coremap) RAM() *mem.RAM {
	return cm.ram
}

func (cm *Coremap) findFreeRun(n int) (mem.Frame_t, bool) {
	run := 0
	for i := 0; i < len(cm.entries); i++ {
		if cm.entries[i].Used {
			run = 0
			continue
		}
		run++
		if run == n {
			return mem.Frame_t(i - n + 1), true
		}
	}
	return 0, false
}

func (cm *Coremap) markRun(head mem.Frame_t, n int, owner *pagetable.Ref) {
	for i := 0; i < n; i++ {
		cm.entries[int(head)+i].Used = true
	}
	cm.entries[head].AllocSize = n
	if owner != nil {
		cm.entries[head].Owner = owner
	}
}

/// GetPages allocates n contiguous frames. Non-nil owner is only valid
/// for n == 1 (a single user page); it records the page table entry
/// that this frame now backs, so a future eviction can find it. The
/// returned frame is always zero-filled. ok is false when no run of n
/// free frames exists and either n > 1 or the Coremap has no swap store
/// -- multi-page kernel allocations are never satisfied by eviction.
func (cm *Coremap) GetPages(n int, owner *pagetable.Ref) (f mem.Frame_t, ok bool) {
	if owner != nil && n != 1 {
		panic("coremap: a page table entry can only own a single frame")
	}
	cm.mu.Lock()
	if head, found := cm.findFreeRun(n); found {
		cm.markRun(head, n, owner)
		cm.mu.Unlock()
		cm.ram.ZeroRun(head, n)
		return head, true
	}
	if n != 1 || cm.swap == nil {
		cm.mu.Unlock()
		return 0, false
	}
	v := cm.evictOneLocked()
	cm.markRun(v, 1, owner)
	cm.mu.Unlock()
	cm.ram.Zero(v)
	return v, true
}

// evictOneLocked must be called with cm.mu held. It picks a victim
// frame, writes it out to swap (releasing cm.mu around the blocking
// I/O), demotes the victim's owning page table entry to InSwap, flushes
// any stale TLB translation for it, and returns with cm.mu held again
// and the victim frame marked free of any owner. It panics if no
// eviction candidate exists -- every frame pinned or kernel-owned means
// the system cannot make forward progress.
func (cm *Coremap) evictOneLocked() mem.Frame_t {
	v, found := cm.selectVictim()
	if !found {
		panic("coremap: no eviction candidate available")
	}
	cm.entries[v].Locked = true
	owner := cm.entries[v].Owner
	cm.mu.Unlock()

	idx := cm.swap.Out(cm.ram, v)

	cm.mu.Lock()
	cm.entries[v].Locked = false
	owner.Demote(idx)
	cm.tlb.RemoveByPaddr(mem.PaOf(v))
	cm.entries[v].Owner = nil
	cm.stats.Hit(vmstats.SwapWrite)
	return v
}

// selectVictim advances the round-robin cursor until it finds a frame
// that is owned by a page table entry and not currently pinned, or
// exhausts one full pass over the coremap.
func (cm *Coremap) selectVictim() (mem.Frame_t, bool) {
	n := len(cm.entries)
	for i := 0; i < n; i++ {
		cm.victim = (cm.victim + 1) % n
		e := cm.entries[cm.victim]
		if e.Owner != nil && !e.Locked {
			return mem.Frame_t(cm.victim), true
		}
	}
	return 0, false
}

/// Free releases the run of frames headed at f back to the pool. f must
/// be the head of a run previously returned by GetPages.
func (cm *Coremap) Free(f mem.Frame_t) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	n := cm.entries[f].AllocSize
	if n == 0 {
		panic("coremap: free of a non-head frame")
	}
	for i := 0; i < n; i++ {
		cm.entries[int(f)+i] = Entry{}
	}
}

/// NFrames returns the total number of frames managed by this Coremap.
func (cm *Coremap) NFrames() int {
	return len(cm.entries)
}

/// IsUsed reports whether frame f is currently allocated. Exposed for
/// invariant checks and tests.
func (cm *Coremap) IsUsed(f mem.Frame_t) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.entries[f].Used
}
