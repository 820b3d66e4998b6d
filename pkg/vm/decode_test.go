package vm

import (
	"testing"

	"github.com/rv64sim/rv64pipe/pkg/isa"
)

func TestDecodeControlAddi(t *testing.T) {
	d := isa.Decode(insnADDI(5, 6, -1))
	c, trap := decodeControl(d)
	if trap != nil {
		t.Fatalf("unexpected trap: %+v", trap)
	}
	if c.ASrc != OpASrcReg1 || c.BSrc != OpBSrcImm || c.Alu != AluAdd || !c.RegWrite {
		t.Fatalf("ADDI control = %+v, want ASrcReg1/BSrcImm/Add/RegWrite", c)
	}
}

func TestDecodeControlLw(t *testing.T) {
	d := isa.Decode(insnLW(3, 1, 64))
	c, trap := decodeControl(d)
	if trap != nil {
		t.Fatalf("unexpected trap: %+v", trap)
	}
	if !c.MemRead || !c.RegWrite || c.Width != WidthWord || !c.SignedLoad {
		t.Fatalf("LW control = %+v, want MemRead/RegWrite/WidthWord/SignedLoad", c)
	}
}

func TestDecodeControlSw(t *testing.T) {
	d := isa.Decode(insnSW(1, 2, 64))
	c, trap := decodeControl(d)
	if trap != nil {
		t.Fatalf("unexpected trap: %+v", trap)
	}
	if !c.MemWrite || c.Width != WidthWord || c.RegWrite {
		t.Fatalf("SW control = %+v, want MemWrite/WidthWord, no RegWrite", c)
	}
}

func TestDecodeControlBne(t *testing.T) {
	d := isa.Decode(insnBNE(1, 0, -4))
	c, trap := decodeControl(d)
	if trap != nil {
		t.Fatalf("unexpected trap: %+v", trap)
	}
	if !c.Branch || c.Alu != AluSub {
		t.Fatalf("BNE control = %+v, want Branch with AluSub", c)
	}
}

func TestDecodeControlLui(t *testing.T) {
	d := isa.Decode(insnLUI(5, 0x12345000))
	c, trap := decodeControl(d)
	if trap != nil {
		t.Fatalf("unexpected trap: %+v", trap)
	}
	if c.ASrc != OpASrcZero || c.BSrc != OpBSrcImm || c.Alu != AluAdd || !c.RegWrite {
		t.Fatalf("LUI control = %+v, want ASrcZero/BSrcImm/Add/RegWrite", c)
	}
}

func TestDecodeControlEcall(t *testing.T) {
	d := isa.Decode(insnECALL())
	c, trap := decodeControl(d)
	if trap != nil {
		t.Fatalf("unexpected trap: %+v", trap)
	}
	if !c.IsSystem || !c.IsECALL {
		t.Fatalf("ECALL control = %+v, want IsSystem/IsECALL", c)
	}
}

func TestDecodeControlIllegalOpcode(t *testing.T) {
	// 0x5b has never been assigned a meaning by any of the base ISA's
	// extensions this model implements.
	const reservedOpcode = 0x5b
	d := isa.Decode(reservedOpcode)
	_, trap := decodeControl(d)
	if trap == nil || trap.Kind != TrapIllegalInstruction {
		t.Fatalf("decodeControl(reserved opcode) = %+v, want TrapIllegalInstruction", trap)
	}
}

func TestDecodeControlIllegalLoadWidth(t *testing.T) {
	// funct3 0x7 is not a defined LOAD width.
	d := isa.Decode(encodeI(isa.OpLoad, 0x7, 3, 1, 0))
	_, trap := decodeControl(d)
	if trap == nil || trap.Kind != TrapIllegalInstruction {
		t.Fatalf("decodeControl(bad load width) = %+v, want TrapIllegalInstruction", trap)
	}
}
