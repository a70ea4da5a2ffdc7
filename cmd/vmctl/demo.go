package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vmcore/fault"
	"vmcore/mem"
)

func newDemoCmd(ramMB *int, swapPath *string, verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run a synthetic fault sequence and print the resulting statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(*ramMB, *swapPath, *verbose)
		},
	}
}

func runDemo(ramMB int, swapPath string, verbose bool) error {
	sys, err := bootstrap(ramMB, swapPath, verbose)
	if err != nil {
		return err
	}
	defer sys.Shutdown()

	image := make([]byte, 2*mem.PageSize)
	for i := range image {
		image[i] = byte(i)
	}
	as := sys.NewAddressSpace(bytes.NewReader(image))

	const textVaddr = 0x00400000
	const textSize = uint32(mem.PageSize)
	const dataVaddr = textVaddr + 0x00001000
	const dataSize = uint32(mem.PageSize)

	if err := as.DefineRegion(textVaddr, textSize, 0, int64(mem.PageSize)); err != nil {
		return fmt.Errorf("defining text: %w", err)
	}
	if err := as.DefineRegion(dataVaddr, dataSize, int64(mem.PageSize), int64(mem.PageSize)); err != nil {
		return fmt.Errorf("defining data: %w", err)
	}
	if err := as.Prepare(18); err != nil {
		return fmt.Errorf("preparing address space: %w", err)
	}
	as.Activate(sys.TLB, sys.Stats)

	h := sys.NewHandler(as)

	faults := []struct {
		kind fault.Type
		addr mem.Va_t
	}{
		{fault.Read, textVaddr},
		{fault.Read, textVaddr},
		{fault.Read, dataVaddr},
		{fault.Write, dataVaddr},
	}
	for _, f := range faults {
		if err := h.Fault(f.kind, f.addr); err != nil {
			return fmt.Errorf("fault at 0x%x: %w", f.addr, err)
		}
	}

	sys.Stats.Print(os.Stdout)
	return nil
}
