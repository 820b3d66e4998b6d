package vm

import "fmt"

// OpASrc selects the first ALU operand source (spec.md section 3).
type OpASrc uint8

const (
	OpASrcReg1 OpASrc = iota
	OpASrcPC
	OpASrcZero
)

// OpBSrc selects the second ALU operand source.
type OpBSrc uint8

const (
	OpBSrcReg2 OpBSrc = iota
	OpBSrcImm
	OpBSrcZero
)

// MemWidth is the access width for loads, stores, and AMOs.
type MemWidth uint8

const (
	WidthNone MemWidth = iota
	WidthByte
	WidthHalf
	WidthWord
	WidthDouble
)

// CsrOp identifies which of the six CSR read-modify-write forms a SYSTEM
// instruction uses.
type CsrOp uint8

const (
	CsrNone CsrOp = iota
	CsrRW
	CsrRS
	CsrRC
	CsrRWI
	CsrRSI
	CsrRCI
)

// AtomicOp identifies an AMO/LR/SC operation.
type AtomicOp uint8

const (
	AtomicNone AtomicOp = iota
	AtomicLR
	AtomicSC
	AtomicSwap
	AtomicAdd
	AtomicXor
	AtomicAnd
	AtomicOr
	AtomicMin
	AtomicMax
	AtomicMinu
	AtomicMaxu
)

// CvtKind selects which integer width/signedness a FCVT instruction
// converts to or from (the RS2 field of the FP-int conversion family).
type CvtKind uint8

const (
	CvtW CvtKind = iota
	CvtWU
	CvtL
	CvtLU
)

// AluOp is the full set of operations the Execute stage's ALU/FPU can
// perform, per spec.md section 4.4.
type AluOp uint8

const (
	AluAdd AluOp = iota
	AluSub
	AluSll
	AluSrl
	AluSra
	AluOr
	AluAnd
	AluXor
	AluSlt
	AluSltu
	AluMul
	AluMulh
	AluMulhu
	AluMulhsu
	AluDiv
	AluDivu
	AluRem
	AluRemu

	AluFAdd
	AluFSub
	AluFMul
	AluFDiv
	AluFSqrt
	AluFMin
	AluFMax
	AluFSgnJ
	AluFSgnJN
	AluFSgnJX
	AluFEq
	AluFLt
	AluFLe
	AluFClass
	AluFCvtIntFP // float -> integer (CvtKind selects the target)
	AluFCvtFPInt // integer -> float (CvtKind selects the source)
	AluFMvXW     // move FP bits to an integer register
	AluFMvWX     // move integer bits to an FP register
	AluFCvtSD    // double -> single
	AluFCvtDS    // single -> double

	AluFMAdd
	AluFMSub
	AluFNMAdd
	AluFNMSub
)

// ControlSignals is the decoded control bundle produced by the Decode
// stage for one instruction, per spec.md section 3/4.2.
type ControlSignals struct {
	ASrc OpASrc
	BSrc OpBSrc
	Alu  AluOp

	Width      MemWidth
	SignedLoad bool

	RegWrite   bool
	FPRegWrite bool
	MemRead    bool
	MemWrite   bool
	Branch     bool
	Jump       bool

	// IsRV32 means "32-bit arithmetic variant" for integer OP-IMM/OP-32
	// instructions and "single-precision" for OP-FP/FMADD-family
	// instructions (the same flag is reused for both, as spec.md
	// section 3 describes and the Rust reference's decode_stage does:
	// `c.is_rv32 = fmt == 0`).
	IsRV32 bool

	CsrOp   CsrOp
	CsrAddr uint32

	AtomicOp AtomicOp
	CvtKind  CvtKind

	IsSystem bool
	IsMRET   bool
	IsSRET   bool
	IsECALL  bool
	IsEBREAK bool

	RS1FP bool
	RS2FP bool
	RS3FP bool
}

// TrapKind enumerates the fault/exception kinds spec.md section 7 names.
type TrapKind uint8

const (
	TrapIllegalInstruction TrapKind = iota
	TrapBreakpoint
	TrapLoadAddressMisaligned
	TrapStoreAddressMisaligned
	TrapInstructionPageFault
	TrapLoadPageFault
	TrapStorePageFault
	TrapEnvironmentCallFromU
	TrapEnvironmentCallFromS
	TrapEnvironmentCallFromM
)

// Standard RISC-V scause values for the trap kinds this model raises.
var trapCauses = map[TrapKind]uint64{
	TrapIllegalInstruction:     2,
	TrapBreakpoint:             3,
	TrapLoadAddressMisaligned:  4,
	TrapStoreAddressMisaligned: 6,
	TrapInstructionPageFault:   12,
	TrapLoadPageFault:          13,
	TrapStorePageFault:         15,
	TrapEnvironmentCallFromU:   8,
	TrapEnvironmentCallFromS:   9,
	TrapEnvironmentCallFromM:   11,
}

// Trap carries a delayed fault: it attaches to an in-flight pipeline
// record at the stage that discovered it (Decode for illegal instructions,
// MEM for address/page faults) and only takes effect when that record
// reaches Write-Back, per spec.md section 7/9. Breakpoint and
// EnvironmentCall* traps are built at Write-Back from the IsEBREAK/IsECALL
// control flags.
type Trap struct {
	Kind TrapKind
	// Info is the offending instruction word (IllegalInstruction), the
	// faulting virtual address (the *Misaligned/*PageFault kinds), or the
	// EBREAK's PC (Breakpoint); zero for EnvironmentCall*, which carry
	// their PC via the latch's own PC field instead.
	Info uint64
}

// Cause returns the scause value this trap delivers.
func (t Trap) Cause() uint64 {
	return trapCauses[t.Kind]
}

func (t Trap) String() string {
	names := [...]string{
		"IllegalInstruction", "Breakpoint", "LoadAddressMisaligned",
		"StoreAddressMisaligned", "InstructionPageFault", "LoadPageFault",
		"StorePageFault", "EnvironmentCallFromU", "EnvironmentCallFromS",
		"EnvironmentCallFromM",
	}
	n := "Unknown"
	if int(t.Kind) < len(names) {
		n = names[t.Kind]
	}
	return fmt.Sprintf("%s(%#x)", n, t.Info)
}
