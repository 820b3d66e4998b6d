package vm

import (
	"fmt"
	"io"
)

// SimStats accumulates the counters spec.md section 9 requires a run to
// report, plus the per-privilege cycle breakdown this model supplements
// beyond the distilled spec (SPEC_FULL.md's Supplemented Features).
type SimStats struct {
	Cycles            uint64
	InstructionsRetired uint64
	Stalls            uint64

	BranchPredictions   uint64
	BranchMispredictions uint64

	ICacheHits, ICacheMisses uint64
	DCacheHits, DCacheMisses uint64
	L2Hits, L2Misses         uint64
	L3Hits, L3Misses         uint64

	CyclesUser       uint64
	CyclesSupervisor uint64
	CyclesMachine    uint64
}

// RecordPrivilegeCycle charges one cycle to the running privilege-level
// bucket. Called once per tick from the level active when the tick began.
func (s *SimStats) RecordPrivilegeCycle(p Privilege) {
	switch p {
	case PrivUser:
		s.CyclesUser++
	case PrivSupervisor:
		s.CyclesSupervisor++
	default:
		s.CyclesMachine++
	}
}

// IPC returns instructions retired per cycle, 0 if no cycles elapsed.
func (s *SimStats) IPC() float64 {
	if s.Cycles == 0 {
		return 0
	}
	return float64(s.InstructionsRetired) / float64(s.Cycles)
}

func ratio(hits, misses uint64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// Print writes a human-readable end-of-run report, matching the shape of
// the Rust reference's final stdout summary.
func (s *SimStats) Print(w io.Writer) {
	fmt.Fprintf(w, "cycles:                %d\n", s.Cycles)
	fmt.Fprintf(w, "instructions retired:  %d\n", s.InstructionsRetired)
	fmt.Fprintf(w, "IPC:                   %.3f\n", s.IPC())
	fmt.Fprintf(w, "pipeline stalls:       %d\n", s.Stalls)
	fmt.Fprintf(w, "branch predictions:    %d\n", s.BranchPredictions)
	fmt.Fprintf(w, "branch mispredictions: %d\n", s.BranchMispredictions)
	fmt.Fprintf(w, "icache hit rate:       %.3f (%d/%d)\n", ratio(s.ICacheHits, s.ICacheMisses), s.ICacheHits, s.ICacheHits+s.ICacheMisses)
	fmt.Fprintf(w, "dcache hit rate:       %.3f (%d/%d)\n", ratio(s.DCacheHits, s.DCacheMisses), s.DCacheHits, s.DCacheHits+s.DCacheMisses)
	fmt.Fprintf(w, "l2 hit rate:           %.3f (%d/%d)\n", ratio(s.L2Hits, s.L2Misses), s.L2Hits, s.L2Hits+s.L2Misses)
	fmt.Fprintf(w, "l3 hit rate:           %.3f (%d/%d)\n", ratio(s.L3Hits, s.L3Misses), s.L3Hits, s.L3Hits+s.L3Misses)
	fmt.Fprintf(w, "cycles in U-mode:      %d\n", s.CyclesUser)
	fmt.Fprintf(w, "cycles in S-mode:      %d\n", s.CyclesSupervisor)
	fmt.Fprintf(w, "cycles in M-mode:      %d\n", s.CyclesMachine)
}
