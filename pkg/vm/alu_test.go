package vm

import "testing"

func TestIntALUBasicOps(t *testing.T) {
	tests := []struct {
		name string
		op   AluOp
		a, b uint64
		want uint64
	}{
		{"Add", AluAdd, 2, 3, 5},
		{"Sub", AluSub, 5, 3, 2},
		{"Sll", AluSll, 1, 4, 16},
		{"Srl", AluSrl, 0x8000000000000000, 4, 0x0800000000000000},
		{"Sra", AluSra, 0x8000000000000000, 4, 0xf800000000000000},
		{"Or", AluOr, 0x0f, 0xf0, 0xff},
		{"And", AluAnd, 0x0f, 0xff, 0x0f},
		{"Xor", AluXor, 0x0f, 0xff, 0xf0},
		{"SltTrue", AluSlt, ^uint64(0), 1, 1},  // -1 < 1 signed
		{"SltFalse", AluSlt, 1, ^uint64(0), 0}, // 1 < -1 signed is false
		{"SltuTrue", AluSltu, 1, ^uint64(0), 1},
		{"SltuFalse", AluSltu, ^uint64(0), 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := intALU(tt.op, tt.a, tt.b, false); got != tt.want {
				t.Fatalf("intALU(%v, %#x, %#x) = %#x, want %#x", tt.op, tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestIntALUMulExtension(t *testing.T) {
	tests := []struct {
		name string
		op   AluOp
		a, b uint64
		want uint64
	}{
		{"Mul", AluMul, 6, 7, 42},
		{"MulOverflowLow", AluMul, 0xffffffffffffffff, 2, 0xfffffffffffffffe}, // -1 * 2 = -2
		{"Mulhu", AluMulhu, 0xffffffffffffffff, 2, 1},
		{"MulhSignedNegative", AluMulh, 0xffffffffffffffff, 0xffffffffffffffff, 0}, // (-1)*(-1)=1, hi=0
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := intALU(tt.op, tt.a, tt.b, false); got != tt.want {
				t.Fatalf("intALU(%v, %#x, %#x) = %#x, want %#x", tt.op, tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestIntALUDivRemEdgeCases(t *testing.T) {
	minI64 := uint64(1) << 63
	tests := []struct {
		name string
		op   AluOp
		a, b uint64
		want uint64
	}{
		{"DivByZero", AluDiv, 5, 0, ^uint64(0)},
		{"DivuByZero", AluDivu, 5, 0, ^uint64(0)},
		{"RemByZero", AluRem, 5, 0, 5},
		{"RemuByZero", AluRemu, 5, 0, 5},
		{"DivOverflow", AluDiv, minI64, ^uint64(0), minI64}, // MinInt64 / -1 = MinInt64
		{"RemOverflow", AluRem, minI64, ^uint64(0), 0},
		{"DivNegative", AluDiv, ^uint64(10) + 1, 3, ^uint64(3) + 1}, // -10 / 3 = -3
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := intALU(tt.op, tt.a, tt.b, false); got != tt.want {
				t.Fatalf("intALU(%v, %#x, %#x) = %#x, want %#x", tt.op, tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestIntALU32BitVariantsSignExtend(t *testing.T) {
	tests := []struct {
		name string
		op   AluOp
		a, b uint64
		want uint64
	}{
		// ADDW 0x7fffffff + 1 overflows the low 32 bits into a negative
		// 32-bit result, which must then sign-extend across all 64 bits.
		{"AddwOverflowSignExtends", AluAdd, 0x7fffffff, 1, 0xffffffff80000000},
		{"SubwNegativeSignExtends", AluSub, 0, 1, 0xffffffffffffffff},
		{"SllwMasksTo5Bits", AluSll, 1, 32, 1}, // shift amount masked to b&0x1f, so shift-by-32 is shift-by-0
		{"SrawSignExtends", AluSra, 0x80000000, 4, 0xfffffffff8000000},
		{"DivwByZero", AluDiv, 5, 0, 0xffffffffffffffff},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := intALU(tt.op, tt.a, tt.b, true); got != tt.want {
				t.Fatalf("intALU32(%v, %#x, %#x) = %#x, want %#x", tt.op, tt.a, tt.b, got, tt.want)
			}
		})
	}
}
