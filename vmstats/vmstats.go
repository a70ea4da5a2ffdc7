// Package vmstats counts the events the fault path and TLB driver care
// about: TLB faults by outcome, page faults by cause, and swap writes.
// It is grounded on kern/vm/vmstats.c's fixed ten-counter array and
// fixed-label printer, using biscuit's stats.Counter_t atomic-increment
// idiom (stats/stats.go) in place of a dedicated spinlock.
package vmstats

import (
	"fmt"
	"io"
	"sync/atomic"
)

/// Cause enumerates the ten counted events, in the order vmstats_print
/// reports them.
type Cause int

const (
	/// TLBFault counts every TLB miss that reaches the fault handler.
	TLBFault Cause = iota
	/// TLBFaultFree counts TLB misses serviced by an empty slot.
	TLBFaultFree
	/// TLBFaultReplace counts TLB misses that evicted a valid entry.
	TLBFaultReplace
	/// TLBInvalidation counts full-TLB invalidations (address-space activation).
	TLBInvalidation
	/// TLBReload counts faults resolved without allocation or I/O (PTE
	/// already IN_MEMORY; only the TLB needed a refill).
	TLBReload
	/// PageFaultZero counts faults resolved by handing back a zeroed page.
	PageFaultZero
	/// PageFaultDisk counts faults that required any disk-like I/O.
	PageFaultDisk
	/// PageFaultELF counts faults resolved by loading from the executable.
	PageFaultELF
	/// PageFaultSwap counts faults resolved by reading back from swap.
	PageFaultSwap
	/// SwapWrite counts pages written out to the swap store by eviction.
	SwapWrite

	numCauses
)

var causeNames = [numCauses]string{
	"TLB Faults",
	"TLB Faults with Free",
	"TLB Faults with Replace",
	"TLB Invalidations",
	"TLB Reloads",
	"Page Faults (Zeroed)",
	"Page Faults (Disk)",
	"Page Faults from ELF",
	"Page Faults from Swapfile",
	"Swapfile Writes",
}

/// Stats holds the ten counters. The zero value is ready to use.
type Stats struct {
	counts [numCauses]atomic.Int64
}

/// New returns a zeroed Stats.
func New() *Stats {
	return &Stats{}
}

/// Hit increments the counter for cause c.
func (s *Stats) Hit(c Cause) {
	s.counts[c].Add(1)
}

/// Get returns the current value of the counter for cause c.
func (s *Stats) Get(c Cause) int64 {
	return s.counts[c].Load()
}

/// Print writes all ten counters to w with their fixed labels, matching
/// vmstats_print's banner format.
func (s *Stats) Print(w io.Writer) {
	fmt.Fprintln(w, "---------------------------")
	fmt.Fprintln(w, "VM STATS")
	fmt.Fprintln(w, "---------------------------")
	for i := 0; i < int(numCauses); i++ {
		fmt.Fprintf(w, "%s: %d\n", causeNames[i], s.counts[i].Load())
	}
	fmt.Fprintln(w, "---------------------------")
}
