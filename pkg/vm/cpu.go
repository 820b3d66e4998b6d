// Package vm implements the RV64 five-stage pipeline: register file, ALU
// and FPU execution, the Sv39 MMU, the cache hierarchy, the branch
// predictor, and the Cpu that ties them together one tick at a time.
package vm

import (
	"fmt"
	"io"

	"github.com/rv64sim/rv64pipe/pkg/bus"
)

// entryPC is where every run starts: the base of RAM, where the firmware
// image is loaded (spec.md section 6).
const entryPC = bus.RAMBase

// Config collects the run-time knobs cmd/rvsim binds from flags.
type Config struct {
	GuardCycles uint64
	Trace       bool
	Debug       bool
	TraceOut    io.Writer
}

// reservation is the single load-reserved/store-conditional slot this
// model keeps on the Cpu, per SPEC_FULL.md's resolved Open Question: one
// address-plus-validity register, invalidated by any intervening store or
// AMO to the reserved address.
type reservation struct {
	valid bool
	addr  uint64
}

// Cpu is the whole machine: architectural state (registers, CSRs,
// privilege), the four pipeline latches, and the memory-system models the
// Memory stage consults.
type Cpu struct {
	Regs RegisterFile
	CSR  CSRFile
	Priv Privilege
	PC   uint64

	Bus   *bus.Bus
	mmu   MMU
	Cache *CacheHierarchy
	BP    *BranchPredictor
	Stats SimStats

	ifid  IFID
	idex  IDEx
	exmem EXMEM
	memwb MEMWB

	res reservation

	// traceWB is the instruction wbStage retired (or attempted to retire)
	// this tick, nil when WB is empty. Tick uses it, alongside the four
	// latches, to print one line per cycle showing every stage's occupant
	// when cfg.Trace is set.
	traceWB *MEMWBEntry

	cfg Config

	halted   bool
	exitCode int

	// fatalErr holds a host-level error raised mid-tick (an MRET/SRET
	// returning to EPC=0, which can only mean firmware bug or boot-time
	// misuse, not an architectural trap). Run surfaces it once the current
	// tick finishes.
	fatalErr error
}

// NewCpu builds a Cpu wired to b, with RAM already loaded by the caller.
func NewCpu(b *bus.Bus, cfg Config) *Cpu {
	if cfg.TraceOut == nil {
		cfg.TraceOut = io.Discard
	}
	c := &Cpu{
		Bus:   b,
		Cache: NewCacheHierarchy(),
		BP:    NewBranchPredictor(),
		Priv:  PrivMachine,
		PC:    entryPC,
		cfg:   cfg,
	}
	c.mmu = MMU{Bus: b}
	return c
}

// Halted reports whether the program has exited (via ECALL with a7=93).
func (c *Cpu) Halted() bool { return c.halted }

// ExitCode returns the value the program passed in a0 to its exit ecall.
func (c *Cpu) ExitCode() int { return c.exitCode }

// Run ticks the pipeline until the program halts or guardCycles elapses,
// whichever comes first. It returns an error for the latter, since a
// guard-cycle trip means the firmware image never reached an exit ecall
// (spec.md section 9), and for a fatal host-level error a tick recorded in
// fatalErr (an MRET/SRET returning to EPC=0).
func (c *Cpu) Run() error {
	guard := c.cfg.GuardCycles
	if guard == 0 {
		guard = 100_000_000
	}
	for !c.halted {
		if c.Stats.Cycles >= guard {
			return fmt.Errorf("vm: exceeded guard-cycles limit (%d) without halting", guard)
		}
		if c.cfg.Debug {
			fmt.Fprintf(c.cfg.TraceOut, "vm: paused at cycle %d, PC=%#x...\n", c.Stats.Cycles, c.PC)
			fmt.Scanln()
		}
		c.Tick()
		if c.fatalErr != nil {
			return c.fatalErr
		}
	}
	return nil
}

// Tick advances the pipeline by exactly one cycle. Stages run in reverse
// program order, each consuming the latch the previous tick populated and
// producing the next, so every stage in a single tick sees state left
// over from the previous cycle except for the two same-cycle forwarding
// paths Decode reads from: Execute's just-produced EX/MEM result and
// Memory's just-produced MEM/WB result, both a tick ahead of Write-Back's
// register-file commit (spec.md section 4.9).
func (c *Cpu) Tick() {
	startPriv := c.Priv
	c.Stats.Cycles++
	c.Stats.RecordPrivilegeCycle(startPriv)

	c.wbStage()
	c.memStage()
	flushedByExec := c.executeStage()

	if flushedByExec {
		// The branch/jump/xRET that caused this already executed correctly
		// and is on its way to Memory via c.exmem; what's wrong is
		// whatever Fetch/Decode guessed for the instructions behind it.
		c.idex = IDEx{}
		c.ifid = IFID{}
		c.fetchStage()
		c.traceDiagram()
		return
	}

	stalledOnLoadUse := c.decodeStage()
	if !stalledOnLoadUse {
		c.fetchStage()
	} else {
		c.Stats.Stalls++
		// Bubble: IF holds its fetch buffer, ID's output for this cycle
		// is empty (decodeStage already cleared idex on detecting the
		// hazard); re-fetch is skipped so the stalled instruction is
		// retried next cycle.
	}
	c.traceDiagram()
}

