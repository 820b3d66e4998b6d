package vm

import "github.com/rv64sim/rv64pipe/pkg/isa"

// Small instruction encoders, the inverse of isa.Decode, used across this
// package's tests to build tiny RV64 programs without an assembler.

func encodeR(opcode, funct3, funct7, rd, rs1, rs2 uint32) uint32 {
	return funct7<<25 | rs2<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func encodeI(opcode, funct3, rd, rs1 uint32, imm int32) uint32 {
	return uint32(imm)<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func encodeS(opcode, funct3, rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm)
	imm11_5 := (u >> 5) & 0x7f
	imm4_0 := u & 0x1f
	return imm11_5<<25 | rs2<<20 | rs1<<15 | funct3<<12 | imm4_0<<7 | opcode
}

func encodeB(opcode, funct3, rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm)
	b12 := (u >> 12) & 1
	b11 := (u >> 11) & 1
	b10_5 := (u >> 5) & 0x3f
	b4_1 := (u >> 1) & 0xf
	return b12<<31 | b10_5<<25 | rs2<<20 | rs1<<15 | funct3<<12 | b4_1<<8 | b11<<7 | opcode
}

func encodeU(opcode, rd uint32, imm uint32) uint32 {
	return (imm & 0xfffff000) | rd<<7 | opcode
}

func encodeJ(opcode, rd uint32, imm int32) uint32 {
	u := uint32(imm)
	b20 := (u >> 20) & 1
	b19_12 := (u >> 12) & 0xff
	b11 := (u >> 11) & 1
	b10_1 := (u >> 1) & 0x3ff
	return b20<<31 | b19_12<<12 | b11<<20 | b10_1<<21 | rd<<7 | opcode
}

// addi/bne/lw/sw/add convenience wrappers for the handful of instructions
// the pipeline-level tests assemble programs out of.

func insnADDI(rd, rs1 uint32, imm int32) uint32 {
	return encodeI(isa.OpOpImm, isa.F3AddSub, rd, rs1, imm)
}

func insnADD(rd, rs1, rs2 uint32) uint32 {
	return encodeR(isa.OpOp, isa.F3AddSub, isa.F7Default, rd, rs1, rs2)
}

func insnLUI(rd uint32, imm uint32) uint32 {
	return encodeU(isa.OpLUI, rd, imm)
}

func insnAUIPC(rd uint32, imm uint32) uint32 {
	return encodeU(isa.OpAUIPC, rd, imm)
}

func insnLW(rd, rs1 uint32, imm int32) uint32 {
	return encodeI(isa.OpLoad, isa.F3LW, rd, rs1, imm)
}

func insnSW(rs1, rs2 uint32, imm int32) uint32 {
	return encodeS(isa.OpStore, isa.F3SW, rs1, rs2, imm)
}

func insnBNE(rs1, rs2 uint32, imm int32) uint32 {
	return encodeB(isa.OpBranch, isa.F3BNE, rs1, rs2, imm)
}

func insnECALL() uint32 { return isa.RawECALL }

// littleEndianWords packs a slice of 32-bit instruction words into their
// flat little-endian byte encoding, as if an assembler had emitted them.
func littleEndianWords(words []uint32) []byte {
	out := make([]byte, 4*len(words))
	for i, w := range words {
		out[4*i+0] = byte(w)
		out[4*i+1] = byte(w >> 8)
		out[4*i+2] = byte(w >> 16)
		out[4*i+3] = byte(w >> 24)
	}
	return out
}
