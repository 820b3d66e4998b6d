// Command rvsim loads a flat RV64 firmware image into simulated RAM and
// runs it to completion on the five-stage pipeline, printing the
// end-of-run statistics report.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/rv64sim/rv64pipe/internal/console"
	"github.com/rv64sim/rv64pipe/pkg/bus"
	"github.com/rv64sim/rv64pipe/pkg/vm"
)

func main() {
	log.SetFlags(0)

	var (
		biosPath    string
		diskPath    string
		trace       bool
		debug       bool
		guardCycles uint64
		consoleMode string
	)

	var exitCode int

	rootCmd := &cobra.Command{
		Use:   "rvsim",
		Short: "RV64 five-stage pipeline instruction-set simulator",
		RunE: func(cmd *cobra.Command, args []string) error {
			if biosPath == "" {
				return fmt.Errorf("rvsim: --bios is required")
			}
			code, err := run(runArgs{
				biosPath:    biosPath,
				diskPath:    diskPath,
				trace:       trace,
				debug:       debug,
				guardCycles: guardCycles,
				consoleMode: consoleMode,
			})
			exitCode = code
			return err
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&biosPath, "bios", "", "flat firmware binary loaded at RAM base (required)")
	flags.StringVar(&diskPath, "disk", "", "optional disk image; empty disk if omitted")
	flags.BoolVar(&trace, "trace", false, "emit per-stage textual trace to stderr")
	flags.BoolVar(&debug, "debug", false, "single-step, waiting for Enter between ticks")
	flags.Uint64Var(&guardCycles, "guard-cycles", 100_000_000, "upper bound on simulated cycles before aborting")
	flags.StringVar(&consoleMode, "console", "stdout", "UART sink: stdout, tty, or tcp")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
	os.Exit(exitCode)
}

type runArgs struct {
	biosPath    string
	diskPath    string
	trace       bool
	debug       bool
	guardCycles uint64
	consoleMode string
}

func run(a runArgs) (int, error) {
	bios, err := os.ReadFile(a.biosPath)
	if err != nil {
		return 1, fmt.Errorf("rvsim: reading bios: %w", err)
	}

	var diskImage []byte
	if a.diskPath != "" {
		diskImage, err = os.ReadFile(a.diskPath)
		if err != nil {
			return 1, fmt.Errorf("rvsim: reading disk image: %w", err)
		}
	}

	sink, err := newConsole(a.consoleMode)
	if err != nil {
		return 1, err
	}
	defer sink.Close()

	b := bus.New(sink, diskImage)
	if err := b.RAM.Load(0, bios); err != nil {
		return 1, fmt.Errorf("rvsim: loading bios into RAM: %w", err)
	}

	cfg := vm.Config{
		GuardCycles: a.guardCycles,
		Trace:       a.trace,
		Debug:       a.debug,
		TraceOut:    os.Stderr,
	}
	cpu := vm.NewCpu(b, cfg)

	if err := cpu.Run(); err != nil {
		return 1, fmt.Errorf("rvsim: %w", err)
	}

	cpu.Stats.Print(os.Stdout)
	return cpu.ExitCode(), nil
}

func newConsole(mode string) (console.Console, error) {
	switch mode {
	case "", "stdout":
		return console.NewStdout(), nil
	case "tty":
		return console.NewTerminal(), nil
	case "tcp":
		return console.ListenTCP()
	default:
		return nil, fmt.Errorf("rvsim: unknown --console mode %q (want stdout, tty, or tcp)", mode)
	}
}
