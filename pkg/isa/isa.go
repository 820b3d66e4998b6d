// Package isa contains the RV64 instruction encoding: opcode/funct
// constants and the pure decoder that turns a 32-bit word into a
// Decoded record.
//
// See the documentation of the pkg/vm package for how a Decoded record
// is turned into a control bundle and executed.
package isa

// Opcode holds the low 7 bits of an instruction word.
const (
	OpLoad     = 0x03
	OpLoadFP   = 0x07
	OpMiscMem  = 0x0f
	OpOpImm    = 0x13
	OpAUIPC    = 0x17
	OpOpImm32  = 0x1b
	OpStore    = 0x23
	OpStoreFP  = 0x27
	OpAMO      = 0x2f
	OpOp       = 0x33
	OpLUI      = 0x37
	OpOp32     = 0x3b
	OpFMADD    = 0x43
	OpFMSUB    = 0x47
	OpFNMSUB   = 0x4b
	OpFNMADD   = 0x4f
	OpOpFP     = 0x53
	OpBranch   = 0x63
	OpJALR     = 0x67
	OpJAL      = 0x6f
	OpSystem   = 0x73
)

// Funct3 values, scoped by the opcode that uses them (LOAD/STORE widths,
// OP-IMM/OP arithmetic selectors, BRANCH conditions, SYSTEM's CSR ops).
const (
	F3LB  = 0x0
	F3LH  = 0x1
	F3LW  = 0x2
	F3LD  = 0x3
	F3LBU = 0x4
	F3LHU = 0x5
	F3LWU = 0x6

	F3SB = 0x0
	F3SH = 0x1
	F3SW = 0x2
	F3SD = 0x3

	F3AddSub = 0x0
	F3SLL    = 0x1
	F3SLT    = 0x2
	F3SLTU   = 0x3
	F3XOR    = 0x4
	F3SrlSra = 0x5
	F3OR     = 0x6
	F3AND    = 0x7

	F3BEQ  = 0x0
	F3BNE  = 0x1
	F3BLT  = 0x4
	F3BGE  = 0x5
	F3BLTU = 0x6
	F3BGEU = 0x7

	F3CSRRW  = 0x1
	F3CSRRS  = 0x2
	F3CSRRC  = 0x3
	F3CSRRWI = 0x5
	F3CSRRSI = 0x6
	F3CSRRCI = 0x7

	F3FSGNJ  = 0x0
	F3FSGNJN = 0x1
	F3FSGNJX = 0x2

	F3FMIN = 0x0
	F3FMAX = 0x1

	F3FEQ = 0x2
	F3FLT = 0x1
	F3FLE = 0x0

	F3FMVXW = 0x0
	F3FCLASS = 0x1
)

// Funct7 values for bare integer ops (bit 5 of funct7 distinguishes
// ADD/SRL from SUB/SRA) and the M-extension selector.
const (
	F7Default    = 0x00
	F7Sub        = 0x20
	F7Sra        = 0x20
	F7MExtension = 0x01
)

// OP-FP funct5 values: the top 5 bits of funct7 (funct7>>2) select the FP
// operation family; the bottom 2 bits of funct7 (funct7&0x3) select the
// format (0 = single, 1 = double). For FCVT between FP and integer, the
// rs2 field (in both directions) further selects among signed/unsigned
// 32/64-bit integer conversions.
const (
	F5FAdd        = 0x00
	F5FSub        = 0x01
	F5FMul        = 0x02
	F5FDiv        = 0x03
	F5FSgnj       = 0x04
	F5FMinMax     = 0x05
	F5FCvtSD      = 0x08 // FCVT.S.D / FCVT.D.S (precision convert)
	F5FCmp        = 0x14 // FEQ/FLT/FLE
	F5FSqrt       = 0x0b
	F5FCvtIntFP   = 0x18 // FCVT.{W,WU,L,LU}.{S,D} (FP -> int)
	F5FCvtFPInt   = 0x1a // FCVT.{S,D}.{W,WU,L,LU} (int -> FP)
	F5FClassMvXW  = 0x1c // FCLASS / FMV.X.W / FMV.X.D, disambiguated by funct3
	F5FMvWX       = 0x1e // FMV.W.X / FMV.D.X
)

// FCVT rs2 selector values (which integer width/signedness).
const (
	CvtW  = 0
	CvtWU = 1
	CvtL  = 2
	CvtLU = 3
)

// Funct5 values used by AMO (bits 31:27, equivalently funct7>>2).
const (
	F5LR      = 0x02
	F5SC      = 0x03
	F5AMOSwap = 0x01
	F5AMOAdd  = 0x00
	F5AMOXor  = 0x04
	F5AMOAnd  = 0x0c
	F5AMOOr   = 0x08
	F5AMOMin  = 0x10
	F5AMOMax  = 0x14
	F5AMOMinu = 0x18
	F5AMOMaxu = 0x1c
)

// SYSTEM raw instruction words that do not decode like CSR ops.
const (
	RawECALL  uint32 = 0x00000073
	RawEBREAK uint32 = 0x00100073
	RawMRET   uint32 = 0x30200073
	RawSRET   uint32 = 0x10200073
	RawWFI    uint32 = 0x10500073
	// SFENCE.VMA has rs2/rs1 operands baked into the word; match on opcode+funct7 instead.
	F7SFenceVMA = 0x09
)

// ABI register indices used by the exit convention.
const (
	RegA0 = 10
	RegA7 = 17
)

// Decoded is the output of Decode: the raw opcode/register fields plus a
// sign-extended immediate, already shaped according to the opcode's
// instruction format (I/S/B/U/J).
type Decoded struct {
	Raw    uint32
	Opcode uint32
	Rd     uint32
	RS1    uint32
	RS2    uint32
	RS3    uint32 // valid only for FMADD/FMSUB/FNMADD/FNMSUB (bits 31:27)
	Funct3 uint32
	Funct7 uint32
	Imm    int64
}

// Decode splits a 32-bit instruction word into its fields and computes the
// sign-extended immediate for the opcode's instruction format, per
// spec.md section 4.1.
func Decode(word uint32) Decoded {
	d := Decoded{
		Raw:    word,
		Opcode: word & 0x7f,
		Rd:     (word >> 7) & 0x1f,
		Funct3: (word >> 12) & 0x7,
		RS1:    (word >> 15) & 0x1f,
		RS2:    (word >> 20) & 0x1f,
		RS3:    (word >> 27) & 0x1f,
		Funct7: (word >> 25) & 0x7f,
	}
	switch d.Opcode {
	case OpOpImm, OpLoad, OpJALR, OpOpImm32, OpLoadFP, OpAMO:
		// I-type: bits 31:20, arithmetic shift to sign-extend.
		d.Imm = int64(int32(word) >> 20)
	case OpStore, OpStoreFP:
		// S-type: concat(funct7, rd) sign-extended from 12 bits.
		imm := ((word >> 25) & 0x7f << 5) | ((word >> 7) & 0x1f)
		d.Imm = int64(int32(imm<<20) >> 20)
	case OpBranch:
		// B-type.
		imm := (((word >> 31) & 1) << 12) |
			(((word >> 7) & 1) << 11) |
			(((word >> 25) & 0x3f) << 5) |
			(((word >> 8) & 0xf) << 1)
		d.Imm = int64(int32(imm<<19) >> 19)
	case OpLUI, OpAUIPC:
		// U-type: high 20 bits in place, low 12 zero.
		d.Imm = int64(int32(word & 0xfffff000))
	case OpJAL:
		// J-type.
		imm := (((word >> 31) & 1) << 20) |
			(((word >> 12) & 0xff) << 12) |
			(((word >> 20) & 1) << 11) |
			(((word >> 21) & 0x3ff) << 1)
		d.Imm = int64(int32(imm<<11) >> 11)
	default:
		d.Imm = 0
	}
	return d
}

// CSRAddr extracts the 12-bit CSR address from a SYSTEM instruction word.
func CSRAddr(word uint32) uint32 {
	return (word >> 20) & 0xfff
}
