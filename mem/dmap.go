package mem

// Kernel addresses are direct-mapped to physical memory via a fixed
// offset, mirroring the MIPS KSEG0 mapping the fault path relies on to
// bypass the TLB entirely for kernel accesses. This plays the same role
// as biscuit's Vdirect/Dmap for x86's direct map, just as a flat add/sub
// instead of a recursive page-table walk.

/// KvaddrBase is the virtual address at which physical address 0 is
/// direct-mapped.
const KvaddrBase Va_t = 0x80000000

/// PaddrToKvaddr converts a physical address to its direct-mapped kernel
/// virtual address.
func PaddrToKvaddr(pa Pa_t) Va_t {
	return KvaddrBase + Va_t(pa)
}

/// KvaddrToPaddr converts a direct-mapped kernel virtual address back to
/// a physical address. It panics if v is not in the direct-mapped range.
func KvaddrToPaddr(v Va_t) Pa_t {
	if v < KvaddrBase {
		panic("mem: address isn't in the direct map")
	}
	return Pa_t(v - KvaddrBase)
}
