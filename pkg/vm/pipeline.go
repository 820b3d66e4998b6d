package vm

import "github.com/rv64sim/rv64pipe/pkg/isa"

// The four inter-stage latches below model spec.md section 3's pipeline
// registers. Each is shaped as a small bundle (a slice, normally holding
// exactly one entry) rather than a bare struct, because spec.md section
// 4.3 describes Decode issuing instructions "from the fetch buffer...
// until a RAW hazard truncates the bundle". This model runs with a fetch
// width of one, which is what spec.md's own worked pipeline examples
// (section 4.9, section 8) assume and what makes an intra-bundle hazard
// vacuous: decodeStage reads only Entries[0] and has no intra-bundle
// hazard check, only the load-use check against the instruction in EX.

// IFEntry is one fetched-but-undecoded instruction.
type IFEntry struct {
	PC         uint64
	Inst       uint32
	PredTaken  bool
	PredTarget uint64
	Trap       *Trap // set if the fetch itself faulted (e.g. instruction page fault)
}

// IFID is the Fetch -> Decode latch.
type IFID struct {
	Entries []IFEntry
}

// IDExEntry is one decoded instruction together with its register-read
// operands, ready for Execute.
type IDExEntry struct {
	PC     uint64
	Inst   uint32
	Dec    isa.Decoded
	Ctrl   ControlSignals
	RV1    uint64 // rs1 value (post-forwarding)
	RV2    uint64 // rs2 value (post-forwarding)
	RV3    uint64 // rs3 value, FMADD family only
	PredTaken  bool
	PredTarget uint64
	Trap   *Trap // set if Decode already knows this instruction will fault
}

// IDEx is the Decode -> Execute latch.
type IDEx struct {
	Entries []IDExEntry
}

// EXMEMEntry is one executed instruction on its way to Memory.
type EXMEMEntry struct {
	PC        uint64
	Inst      uint32
	Ctrl      ControlSignals
	Rd        uint32
	ALUResult uint64
	StoreData uint64
	Branch    struct {
		Taken      bool
		Target     uint64
		Mispredict bool
	}
	Trap *Trap
}

// EXMEM is the Execute -> Memory latch.
type EXMEM struct {
	Entries []EXMEMEntry
}

// MEMWBEntry is one instruction that has passed Memory and is ready to
// retire.
type MEMWBEntry struct {
	PC       uint64
	Inst     uint32
	Ctrl     ControlSignals
	Rd       uint32
	Result   uint64 // ALU result or loaded value, whichever the instruction writes back
	IsBubble bool
	Trap     *Trap
}

// MEMWB is the Memory -> Write-Back latch.
type MEMWB struct {
	Entries []MEMWBEntry
}
