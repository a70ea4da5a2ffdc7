// Package system wires the coremap, swap store, TLB, and statistics
// counters into one bootstrapped VM subsystem and hands out fault
// handlers for individual address spaces. It plays the role biscuit's
// main kernel init path plays in calling mem.Physmem.Init and
// Dmap_init in sequence, and uses zerolog for its own event logging the
// way the rest of the example pack's services do, since biscuit itself
// logs through bare fmt.Printf.
package system

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"vmcore/addrspace"
	"vmcore/coremap"
	"vmcore/fault"
	"vmcore/mem"
	"vmcore/swap"
	"vmcore/tlb"
	"vmcore/vmstats"
)

/// System is the machine-wide VM state: one coremap, one swap store,
/// one TLB, and one statistics block, shared by every address space the
/// kernel creates.
type System struct {
	CM    *coremap.Coremap
	Swap  *swap.Store
	TLB   *tlb.Tlb
	Stats *vmstats.Stats

	log zerolog.Logger
}

/// Config parameterizes Bootstrap.
type Config struct {
	// RAMBytes is the amount of simulated physical memory to provision,
	// capped at 512 MiB by the coremap.
	RAMBytes int
	// KernelEndFrame is the first frame not occupied by the kernel
	// image; every frame below it, plus the coremap's own bookkeeping,
	// is reserved and never handed out.
	KernelEndFrame mem.Frame_t
	// SwapPath is the backing file for the swap store.
	SwapPath string
	// Logger receives bootstrap and shutdown events. Nil logs to stderr
	// at info level.
	Logger *zerolog.Logger
}

/// Bootstrap brings up the VM subsystem: opens the swap file, clears
/// the TLB, and sizes the coremap, in that order, mirroring the
/// original boot sequence's swap_bootstrap -> vm_bootstrap ->
/// coremap_bootstrap dependency chain (the coremap needs the swap store
/// to exist before it can ever evict into it).
func Bootstrap(cfg Config) (*System, error) {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel).With().Timestamp().Logger()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}

	store, err := swap.Bootstrap(cfg.SwapPath)
	if err != nil {
		return nil, fmt.Errorf("system: bootstrapping swap: %w", err)
	}
	log.Info().Str("path", cfg.SwapPath).Int("pages", swap.NPages).Msg("swap store ready")

	t := tlb.New()
	stats := vmstats.New()

	cm, err := coremap.Bootstrap(cfg.RAMBytes, cfg.KernelEndFrame, store, t, stats)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("system: bootstrapping coremap: %w", err)
	}
	log.Info().Int("frames", cm.NFrames()).Msg("coremap ready")

	return &System{CM: cm, Swap: store, TLB: t, Stats: stats, log: log}, nil
}

/// NewAddressSpace returns an address space ready to have its segments
/// defined, backed by elf for any ELF-resident pages it later faults
/// in.
func (s *System) NewAddressSpace(elf addrspace.ELFSource) *addrspace.AddrSpace {
	return addrspace.New(elf)
}

/// NewHandler returns a fault handler servicing as against this
/// System's shared coremap, swap store, TLB, and statistics.
func (s *System) NewHandler(as *addrspace.AddrSpace) *fault.Handler {
	return fault.NewHandler(as, s.CM, s.Swap, s.TLB, s.Stats)
}

/// DestroyAddressSpace releases every frame and swap slot an address
/// space holds.
func (s *System) DestroyAddressSpace(as *addrspace.AddrSpace) {
	as.Destroy(s.CM, s.Swap)
}

/// Shutdown closes the swap file. The swap store's contents are
/// ephemeral, so nothing else needs to be flushed.
func (s *System) Shutdown() error {
	s.log.Info().Msg("vm subsystem shutting down")
	return s.Swap.Close()
}
