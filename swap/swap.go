// Package swap implements the fixed-size backing file used to hold user
// pages evicted from RAM. It is grounded on kern/vm/swapfile.c: a single
// vnode opened once at boot, a slot-occupancy bitmap guarded by its own
// lock, and I/O that runs outside that lock because it can block.
package swap

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"vmcore/mem"
)

/// Size is the total size of the swap file in bytes (9 MiB), matching
/// SWAPFILE_SIZE.
const Size = 9 * 1024 * 1024

/// NPages is the number of fixed-size slots the swap file holds
/// (SWAPFILE_NPAGES).
const NPages = Size / mem.PageSize

/// DefaultName is the conventional swap file name, matching
/// SWAPFILE_NAME ("emu0:/SWAPFILE") adapted to a hosted filesystem path.
const DefaultName = "SWAPFILE"

/// Store is the process-wide swap store: a fixed-size file plus a
/// bitmap tracking which of its NPages slots are occupied.
type Store struct {
	mu     sync.Mutex // swap_lock: guards bitmap only, never the I/O below
	file   *os.File
	bitmap []uint64
}

/// Bootstrap opens (creating if necessary) the swap file at path and
/// sizes it to Size bytes. It corresponds to swap_bootstrap().
func Bootstrap(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("swap: cannot open %s: %w", path, err)
	}
	if err := f.Truncate(Size); err != nil {
		f.Close()
		return nil, fmt.Errorf("swap: cannot size %s: %w", path, err)
	}
	words := (NPages + 63) / 64
	return &Store{file: f, bitmap: make([]uint64, words)}, nil
}

/// Close releases the underlying file. The swap store's contents are
/// ephemeral and are discarded on shutdown, matching §6.
func (s *Store) Close() error {
	return s.file.Close()
}

func (s *Store) testBit(i int) bool {
	return s.bitmap[i/64]&(1<<uint(i%64)) != 0
}

func (s *Store) setBit(i int) {
	s.bitmap[i/64] |= 1 << uint(i%64)
}

func (s *Store) clearBit(i int) {
	s.bitmap[i/64] &^= 1 << uint(i%64)
}

// alloc reserves and returns the index of the first free slot.
func (s *Store) alloc() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < NPages; i++ {
		if !s.testBit(i) {
			s.setBit(i)
			return i, true
		}
	}
	return 0, false
}

func (s *Store) free(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearBit(idx)
}

// IsAllocated reports whether slot idx is currently occupied. Exposed
// for invariant checks (P4) and tests.
func (s *Store) IsAllocated(idx int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.testBit(idx)
}

/// Out writes the page backing frame f to a freshly reserved slot and
/// returns that slot's index. It panics if the store is full -- running
/// out of swap is unrecoverable, per §4.2/§7.
func (s *Store) Out(ram *mem.RAM, f mem.Frame_t) int {
	idx, ok := s.alloc()
	if !ok {
		panic("swap: store is full")
	}
	data := ram.Bytes(f)
	if _, err := unix.Pwrite(int(s.file.Fd()), data, int64(idx)*int64(mem.PageSize)); err != nil {
		panic(fmt.Sprintf("swap: write to slot %d failed: %v", idx, err))
	}
	return idx
}

/// In reads slot idx into the page backing frame f, then frees the slot.
/// The bitmap clear happens only after the read succeeds, so a crash
/// mid-read never frees a slot whose only copy was lost. I/O failure is
/// fatal, per §4.2.
func (s *Store) In(ram *mem.RAM, f mem.Frame_t, idx int) {
	if !s.IsAllocated(idx) {
		panic("swap: slot not allocated")
	}
	data := ram.Bytes(f)
	n, err := unix.Pread(int(s.file.Fd()), data, int64(idx)*int64(mem.PageSize))
	if err != nil {
		panic(fmt.Sprintf("swap: read from slot %d failed: %v", idx, err))
	}
	if n != mem.PageSize {
		panic(fmt.Sprintf("swap: short read from slot %d (%d bytes)", idx, n))
	}
	s.free(idx)
}

/// Free releases slot idx without any I/O, used when an address space
/// drops a swapped-out page it will never page back in.
func (s *Store) Free(idx int) {
	s.free(idx)
}
