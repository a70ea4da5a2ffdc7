// Command vmctl drives the VM subsystem outside of any real kernel. Its
// one subcommand, demo, runs a short fixed sequence of faults through
// the fault handler and prints the statistics; that sequence never fills
// RAM, so it does not reach the eviction or swap paths. It is grounded on the rest of the example
// pack's cobra-based command-line tools rather than on biscuit, which
// has no standalone CLI of its own.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"vmcore/mem"
	"vmcore/system"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		ramMB    int
		swapPath string
		verbose  bool
	)

	root := &cobra.Command{
		Use:   "vmctl",
		Short: "Exercise the demand-paged virtual memory core from the command line",
	}
	root.PersistentFlags().IntVar(&ramMB, "ram-mb", 4, "simulated RAM size in megabytes")
	root.PersistentFlags().StringVar(&swapPath, "swap-file", "vmctl.swap", "path to the swap file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newDemoCmd(&ramMB, &swapPath, &verbose))
	return root
}

func bootstrap(ramMB int, swapPath string, verbose bool) (*system.System, error) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	return system.Bootstrap(system.Config{
		RAMBytes:       ramMB * 1024 * 1024,
		KernelEndFrame: mem.Frame_t(1),
		SwapPath:       swapPath,
		Logger:         &logger,
	})
}
