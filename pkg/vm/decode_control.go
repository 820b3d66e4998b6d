package vm

import "github.com/rv64sim/rv64pipe/pkg/isa"

// decodeControl turns a raw Decoded instruction into the control bundle
// Execute/Memory/Write-Back consume, per spec.md section 4.2. It returns a
// non-nil trap for anything this model doesn't recognize as a legal
// encoding (IllegalInstruction), which Decode attaches to the latch entry
// rather than raising immediately (spec.md section 7: faults are delayed
// to retirement).
func decodeControl(d isa.Decoded) (ControlSignals, *Trap) {
	var c ControlSignals

	switch d.Opcode {
	case isa.OpLUI:
		c.ASrc, c.BSrc, c.Alu, c.RegWrite = OpASrcZero, OpBSrcImm, AluAdd, true

	case isa.OpAUIPC:
		c.ASrc, c.BSrc, c.Alu, c.RegWrite = OpASrcPC, OpBSrcImm, AluAdd, true

	case isa.OpJAL:
		c.Jump, c.RegWrite = true, true

	case isa.OpJALR:
		c.Jump, c.RegWrite = true, true

	case isa.OpBranch:
		c.Branch = true
		switch d.Funct3 {
		case isa.F3BEQ, isa.F3BNE:
			c.Alu = AluSub
		case isa.F3BLT, isa.F3BGE:
			c.Alu = AluSlt
		default: // BLTU/BGEU
			c.Alu = AluSltu
		}

	case isa.OpLoad:
		c.MemRead, c.RegWrite, c.ASrc, c.BSrc, c.Alu = true, true, OpASrcReg1, OpBSrcImm, AluAdd
		switch d.Funct3 {
		case isa.F3LB:
			c.Width, c.SignedLoad = WidthByte, true
		case isa.F3LH:
			c.Width, c.SignedLoad = WidthHalf, true
		case isa.F3LW:
			c.Width, c.SignedLoad = WidthWord, true
		case isa.F3LD:
			c.Width = WidthDouble
		case isa.F3LBU:
			c.Width = WidthByte
		case isa.F3LHU:
			c.Width = WidthHalf
		case isa.F3LWU:
			c.Width = WidthWord
		default:
			return c, &Trap{Kind: TrapIllegalInstruction, Info: uint64(d.Raw)}
		}

	case isa.OpLoadFP:
		c.MemRead, c.FPRegWrite, c.ASrc, c.BSrc, c.Alu = true, true, OpASrcReg1, OpBSrcImm, AluAdd
		if d.Funct3 == isa.F3LW {
			c.Width = WidthWord
		} else {
			c.Width = WidthDouble
		}

	case isa.OpStore:
		c.MemWrite, c.ASrc, c.BSrc, c.Alu = true, OpASrcReg1, OpBSrcImm, AluAdd
		switch d.Funct3 {
		case isa.F3SB:
			c.Width = WidthByte
		case isa.F3SH:
			c.Width = WidthHalf
		case isa.F3SW:
			c.Width = WidthWord
		case isa.F3SD:
			c.Width = WidthDouble
		default:
			return c, &Trap{Kind: TrapIllegalInstruction, Info: uint64(d.Raw)}
		}

	case isa.OpStoreFP:
		c.MemWrite, c.ASrc, c.BSrc, c.Alu, c.RS2FP = true, OpASrcReg1, OpBSrcImm, AluAdd, true
		if d.Funct3 == isa.F3SW {
			c.Width = WidthWord
		} else {
			c.Width = WidthDouble
		}

	case isa.OpOpImm, isa.OpOpImm32:
		c.ASrc, c.BSrc, c.RegWrite = OpASrcReg1, OpBSrcImm, true
		c.IsRV32 = d.Opcode == isa.OpOpImm32
		var trap *Trap
		c.Alu, trap = intOpImmALU(d, c.IsRV32)
		if trap != nil {
			return c, trap
		}

	case isa.OpOp, isa.OpOp32:
		c.ASrc, c.BSrc, c.RegWrite = OpASrcReg1, OpBSrcReg2, true
		c.IsRV32 = d.Opcode == isa.OpOp32
		var trap *Trap
		c.Alu, trap = intRegALU(d, c.IsRV32)
		if trap != nil {
			return c, trap
		}

	case isa.OpOpFP:
		c.FPRegWrite, c.RS1FP, c.RS2FP = true, true, true
		c.IsRV32 = (d.Funct7 & 0x3) == 0
		var trap *Trap
		c.Alu, c.CvtKind, trap = fpOpALU(d)
		if trap != nil {
			return c, trap
		}
		switch c.Alu {
		case AluFEq, AluFLt, AluFLe, AluFClass, AluFCvtIntFP, AluFMvXW:
			c.FPRegWrite, c.RegWrite = false, true
		case AluFCvtFPInt, AluFMvWX:
			c.RS1FP = false
		}

	case isa.OpFMADD, isa.OpFMSUB, isa.OpFNMSUB, isa.OpFNMADD:
		c.FPRegWrite, c.RS1FP, c.RS2FP, c.RS3FP = true, true, true, true
		c.IsRV32 = (d.Funct7 & 0x3) == 0
		switch d.Opcode {
		case isa.OpFMADD:
			c.Alu = AluFMAdd
		case isa.OpFMSUB:
			c.Alu = AluFMSub
		case isa.OpFNMSUB:
			c.Alu = AluFNMSub
		default:
			c.Alu = AluFNMAdd
		}

	case isa.OpAMO:
		c.ASrc, c.BSrc, c.RegWrite, c.MemRead, c.MemWrite = OpASrcReg1, OpBSrcZero, true, true, true
		c.Width = WidthDouble
		if d.Funct3 == 0x2 {
			c.Width = WidthWord
			c.SignedLoad = true
		}
		var trap *Trap
		c.AtomicOp, trap = amoOp(d)
		if trap != nil {
			return c, trap
		}
		if c.AtomicOp == AtomicSC {
			// SC's destination is the success flag, not a memory value.
			c.MemRead = false
		}

	case isa.OpMiscMem:
		// FENCE: a no-op in this in-order single-hart model.

	case isa.OpSystem:
		c.IsSystem = true
		trap := decodeSystem(d, &c)
		if trap != nil {
			return c, trap
		}

	default:
		return c, &Trap{Kind: TrapIllegalInstruction, Info: uint64(d.Raw)}
	}

	return c, nil
}

func intOpImmALU(d isa.Decoded, isRV32 bool) (AluOp, *Trap) {
	switch d.Funct3 {
	case isa.F3AddSub:
		return AluAdd, nil
	case isa.F3SLL:
		return AluSll, nil
	case isa.F3SLT:
		return AluSlt, nil
	case isa.F3SLTU:
		return AluSltu, nil
	case isa.F3XOR:
		return AluXor, nil
	case isa.F3SrlSra:
		if shiftIsArithmetic(d) {
			return AluSra, nil
		}
		return AluSrl, nil
	case isa.F3OR:
		return AluOr, nil
	case isa.F3AND:
		return AluAnd, nil
	}
	return 0, &Trap{Kind: TrapIllegalInstruction, Info: uint64(d.Raw)}
}

// shiftIsArithmetic reports whether an OP-IMM/OP-IMM32 shift is SRAI(W)
// rather than SRLI(W): bit 30 carries the arithmetic flag regardless of
// whether the shamt field below it is 5 or 6 bits wide.
func shiftIsArithmetic(d isa.Decoded) bool {
	return (d.Raw>>30)&1 == 1
}

func intRegALU(d isa.Decoded, isRV32 bool) (AluOp, *Trap) {
	if d.Funct7 == isa.F7MExtension {
		switch d.Funct3 {
		case 0x0:
			return AluMul, nil
		case 0x1:
			return AluMulh, nil
		case 0x2:
			return AluMulhsu, nil
		case 0x3:
			return AluMulhu, nil
		case 0x4:
			return AluDiv, nil
		case 0x5:
			return AluDivu, nil
		case 0x6:
			return AluRem, nil
		case 0x7:
			return AluRemu, nil
		}
	}
	switch d.Funct3 {
	case isa.F3AddSub:
		if d.Funct7 == isa.F7Sub {
			return AluSub, nil
		}
		return AluAdd, nil
	case isa.F3SLL:
		return AluSll, nil
	case isa.F3SLT:
		return AluSlt, nil
	case isa.F3SLTU:
		return AluSltu, nil
	case isa.F3XOR:
		return AluXor, nil
	case isa.F3SrlSra:
		if d.Funct7 == isa.F7Sra {
			return AluSra, nil
		}
		return AluSrl, nil
	case isa.F3OR:
		return AluOr, nil
	case isa.F3AND:
		return AluAnd, nil
	}
	return 0, &Trap{Kind: TrapIllegalInstruction, Info: uint64(d.Raw)}
}

func fpOpALU(d isa.Decoded) (AluOp, CvtKind, *Trap) {
	f5 := d.Funct7 >> 2
	switch f5 {
	case isa.F5FAdd:
		return AluFAdd, 0, nil
	case isa.F5FSub:
		return AluFSub, 0, nil
	case isa.F5FMul:
		return AluFMul, 0, nil
	case isa.F5FDiv:
		return AluFDiv, 0, nil
	case isa.F5FSqrt:
		return AluFSqrt, 0, nil
	case isa.F5FSgnj:
		switch d.Funct3 {
		case isa.F3FSGNJ:
			return AluFSgnJ, 0, nil
		case isa.F3FSGNJN:
			return AluFSgnJN, 0, nil
		default:
			return AluFSgnJX, 0, nil
		}
	case isa.F5FMinMax:
		if d.Funct3 == isa.F3FMIN {
			return AluFMin, 0, nil
		}
		return AluFMax, 0, nil
	case isa.F5FCmp:
		switch d.Funct3 {
		case isa.F3FEQ:
			return AluFEq, 0, nil
		case isa.F3FLT:
			return AluFLt, 0, nil
		default:
			return AluFLe, 0, nil
		}
	case isa.F5FCvtSD:
		if d.RS2 == 1 {
			return AluFCvtSD, 0, nil // FCVT.S.D
		}
		return AluFCvtDS, 0, nil // FCVT.D.S
	case isa.F5FCvtIntFP:
		return AluFCvtIntFP, CvtKind(d.RS2), nil
	case isa.F5FCvtFPInt:
		return AluFCvtFPInt, CvtKind(d.RS2), nil
	case isa.F5FClassMvXW:
		if d.Funct3 == isa.F3FMVXW {
			return AluFMvXW, 0, nil
		}
		return AluFClass, 0, nil
	case isa.F5FMvWX:
		return AluFMvWX, 0, nil
	}
	return 0, 0, &Trap{Kind: TrapIllegalInstruction, Info: uint64(d.Raw)}
}

func amoOp(d isa.Decoded) (AtomicOp, *Trap) {
	switch d.Funct7 >> 2 {
	case isa.F5LR:
		return AtomicLR, nil
	case isa.F5SC:
		return AtomicSC, nil
	case isa.F5AMOSwap:
		return AtomicSwap, nil
	case isa.F5AMOAdd:
		return AtomicAdd, nil
	case isa.F5AMOXor:
		return AtomicXor, nil
	case isa.F5AMOAnd:
		return AtomicAnd, nil
	case isa.F5AMOOr:
		return AtomicOr, nil
	case isa.F5AMOMin:
		return AtomicMin, nil
	case isa.F5AMOMax:
		return AtomicMax, nil
	case isa.F5AMOMinu:
		return AtomicMinu, nil
	case isa.F5AMOMaxu:
		return AtomicMaxu, nil
	}
	return AtomicNone, &Trap{Kind: TrapIllegalInstruction, Info: uint64(d.Raw)}
}

// decodeSystem fills in the CSR/ECALL/EBREAK/xRET control bits for a
// SYSTEM-opcode instruction, mutating c in place.
func decodeSystem(d isa.Decoded, c *ControlSignals) *Trap {
	switch d.Raw {
	case isa.RawECALL:
		c.IsECALL = true
		return nil // resolved to the correct EnvironmentCallFrom* at retirement, once privilege is known
	case isa.RawEBREAK:
		c.IsEBREAK = true
		return nil
	case isa.RawMRET:
		c.IsMRET = true
		return nil
	case isa.RawSRET:
		c.IsSRET = true
		return nil
	case isa.RawWFI:
		return nil // treated as a no-op: this model has no external interrupts to wait for
	}
	if d.Funct7 == isa.F7SFenceVMA {
		return nil // no-op: this model never caches stale translations across a satp write
	}
	switch d.Funct3 {
	case isa.F3CSRRW:
		c.CsrOp = CsrRW
	case isa.F3CSRRS:
		c.CsrOp = CsrRS
	case isa.F3CSRRC:
		c.CsrOp = CsrRC
	case isa.F3CSRRWI:
		c.CsrOp = CsrRWI
	case isa.F3CSRRSI:
		c.CsrOp = CsrRSI
	case isa.F3CSRRCI:
		c.CsrOp = CsrRCI
	default:
		return &Trap{Kind: TrapIllegalInstruction, Info: uint64(d.Raw)}
	}
	c.CsrAddr = isa.CSRAddr(d.Raw)
	c.RegWrite = d.Rd != 0
	return nil
}
