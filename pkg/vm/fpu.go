package vm

import "math"

// fpResult carries either an FP bit pattern (single, NaN-boxed by the
// caller, or double) or an integer result (for FEQ/FLT/FLE/FCLASS/FCVT-to-int
// /FMV.X.*), matching the dual nature of OP-FP's destination register file.
type fpResult struct {
	Bits    uint64 // FP bit pattern when IsInt is false
	Int     uint64 // integer value when IsInt is true
	IsInt   bool
	Flags   fcsrFlags
}

// fcsrFlags mirrors the five IEEE-754 exception flags RISC-V exposes via
// fcsr. No operation in this model sets them, so every flag stays false,
// and fcsr itself is not architecturally visible, since spec.md's CSR list
// omits it.
type fcsrFlags struct {
	Invalid, DivByZero, Overflow, Underflow, Inexact bool
}

// execFP evaluates one Execute-stage OP-FP/FMADD-family operation.
// single selects 32-bit (IsRV32 control signal) vs 64-bit arithmetic.
//
// FCVT.S.D and FCVT.D.S cross precisions, so they're handled here rather
// than in execFPSingle/execFPDouble: each reads rs1 in the *source*
// width, which is the opposite of the width execFP's single/double split
// otherwise selects by (the destination width, per decodeControl's
// IsRV32 = fmt==0). Truncating rs1 to uint32 before dispatch, as the
// single/double split below does for same-precision ops, would destroy
// FCVT.S.D's 64-bit double source. For the same reason, FCVT.S.{W,WU,L,LU}
// is handled here so a 64-bit integer source reaches intToFP whole.
func execFP(op AluOp, single bool, cvt CvtKind, rs1, rs2, rs3 uint64) fpResult {
	switch op {
	case AluFCvtSD: // double source -> single dest
		return boxSingle(float32(math.Float64frombits(rs1)))
	case AluFCvtDS: // single source -> double dest
		return doubleResult(float64(math.Float32frombits(uint32(rs1))))
	case AluFCvtFPInt:
		if single { // integer source -> single dest
			return boxSingle(float32(intToFP(rs1, cvt)))
		}
	}
	if single {
		return execFPSingle(op, cvt, uint32(rs1), uint32(rs2), uint32(rs3))
	}
	return execFPDouble(op, cvt, rs1, rs2, rs3)
}

func execFPSingle(op AluOp, cvt CvtKind, a, b, c uint32) fpResult {
	fa := math.Float32frombits(a)
	fb := math.Float32frombits(b)
	switch op {
	case AluFAdd:
		return boxSingle(fa + fb)
	case AluFSub:
		return boxSingle(fa - fb)
	case AluFMul:
		return boxSingle(fa * fb)
	case AluFDiv:
		return boxSingle(fa / fb)
	case AluFSqrt:
		return boxSingle(float32(math.Sqrt(float64(fa))))
	case AluFMin:
		return boxSingle(fminFloat32(fa, fb))
	case AluFMax:
		return boxSingle(fmaxFloat32(fa, fb))
	case AluFSgnJ:
		return boxSingle(math.Float32frombits((a &^ signBit32) | (b & signBit32)))
	case AluFSgnJN:
		return boxSingle(math.Float32frombits((a &^ signBit32) | (^b & signBit32)))
	case AluFSgnJX:
		return boxSingle(math.Float32frombits(a ^ (b & signBit32)))
	case AluFEq:
		return intResult(boolBit(fa == fb))
	case AluFLt:
		return intResult(boolBit(fa < fb))
	case AluFLe:
		return intResult(boolBit(fa <= fb))
	case AluFClass:
		return intResult(classifySingle(fa))
	case AluFCvtIntFP:
		return intResult(fpToInt(float64(fa), cvt))
	case AluFCvtFPInt:
		return boxSingle(float32(intToFP(uint64(a), cvt)))
	case AluFMvXW:
		return intResult(uint64(int64(int32(a))))
	case AluFMvWX:
		return boxSingle(math.Float32frombits(a))
	case AluFMAdd:
		return boxSingle(fa*fb + math.Float32frombits(c))
	case AluFMSub:
		return boxSingle(fa*fb - math.Float32frombits(c))
	case AluFNMAdd:
		return boxSingle(-(fa*fb + math.Float32frombits(c)))
	case AluFNMSub:
		return boxSingle(-(fa*fb - math.Float32frombits(c)))
	default:
		return fpResult{}
	}
}

func execFPDouble(op AluOp, cvt CvtKind, a, b, c uint64) fpResult {
	fa := math.Float64frombits(a)
	fb := math.Float64frombits(b)
	switch op {
	case AluFAdd:
		return doubleResult(fa + fb)
	case AluFSub:
		return doubleResult(fa - fb)
	case AluFMul:
		return doubleResult(fa * fb)
	case AluFDiv:
		return doubleResult(fa / fb)
	case AluFSqrt:
		return doubleResult(math.Sqrt(fa))
	case AluFMin:
		return doubleResult(fminFloat64(fa, fb))
	case AluFMax:
		return doubleResult(fmaxFloat64(fa, fb))
	case AluFSgnJ:
		return doubleResult(math.Float64frombits((a &^ signBit64) | (b & signBit64)))
	case AluFSgnJN:
		return doubleResult(math.Float64frombits((a &^ signBit64) | (^b & signBit64)))
	case AluFSgnJX:
		return doubleResult(math.Float64frombits(a ^ (b & signBit64)))
	case AluFEq:
		return intResult(boolBit(fa == fb))
	case AluFLt:
		return intResult(boolBit(fa < fb))
	case AluFLe:
		return intResult(boolBit(fa <= fb))
	case AluFClass:
		return intResult(classifyDouble(fa))
	case AluFCvtIntFP:
		return intResult(fpToInt(fa, cvt))
	case AluFCvtFPInt:
		return doubleResult(intToFP(a, cvt))
	case AluFMvXW:
		return intResult(a)
	case AluFMvWX:
		return doubleResult(math.Float64frombits(a))
	case AluFMAdd:
		return doubleResult(fa*fb + math.Float64frombits(c))
	case AluFMSub:
		return doubleResult(fa*fb - math.Float64frombits(c))
	case AluFNMAdd:
		return doubleResult(-(fa*fb + math.Float64frombits(c)))
	case AluFNMSub:
		return doubleResult(-(fa*fb - math.Float64frombits(c)))
	default:
		return fpResult{}
	}
}

const (
	signBit32 = uint32(1) << 31
	signBit64 = uint64(1) << 63
)

func boxSingle(f float32) fpResult {
	return fpResult{Bits: nanBoxTag | uint64(math.Float32bits(f))}
}

func doubleResult(f float64) fpResult {
	return fpResult{Bits: math.Float64bits(f)}
}

func intResult(v uint64) fpResult {
	return fpResult{Int: v, IsInt: true}
}

func boolBit(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func fminFloat32(a, b float32) float32 {
	if math.IsNaN(float64(a)) {
		return b
	}
	if math.IsNaN(float64(b)) {
		return a
	}
	if a == 0 && b == 0 {
		if math.Signbit(float64(a)) {
			return a
		}
		return b
	}
	if a < b {
		return a
	}
	return b
}

func fmaxFloat32(a, b float32) float32 {
	if math.IsNaN(float64(a)) {
		return b
	}
	if math.IsNaN(float64(b)) {
		return a
	}
	if a == 0 && b == 0 {
		if math.Signbit(float64(a)) {
			return b
		}
		return a
	}
	if a > b {
		return a
	}
	return b
}

func fminFloat64(a, b float64) float64 {
	if math.IsNaN(a) {
		return b
	}
	if math.IsNaN(b) {
		return a
	}
	if a == 0 && b == 0 {
		if math.Signbit(a) {
			return a
		}
		return b
	}
	return math.Min(a, b)
}

func fmaxFloat64(a, b float64) float64 {
	if math.IsNaN(a) {
		return b
	}
	if math.IsNaN(b) {
		return a
	}
	if a == 0 && b == 0 {
		if math.Signbit(a) {
			return b
		}
		return a
	}
	return math.Max(a, b)
}

// fpToInt converts a float64 (already widened from single if needed) to the
// integer width/signedness cvt selects, using RISC-V's saturating
// out-of-range convention instead of UB.
func fpToInt(f float64, cvt CvtKind) uint64 {
	if math.IsNaN(f) {
		switch cvt {
		case CvtW:
			return uint64(int64(int32(math.MaxInt32)))
		case CvtWU:
			return uint64(uint32(math.MaxUint32))
		case CvtL:
			return uint64(int64(math.MaxInt64))
		default:
			return math.MaxUint64
		}
	}
	switch cvt {
	case CvtW:
		if f >= math.MaxInt32 {
			return uint64(int64(int32(math.MaxInt32)))
		}
		if f <= math.MinInt32 {
			return 0xffff_ffff_8000_0000 // MinInt32 sign-extended to 64 bits
		}
		return uint64(int64(int32(f)))
	case CvtWU:
		if f >= math.MaxUint32 {
			return uint64(uint32(math.MaxUint32))
		}
		if f <= 0 {
			return 0
		}
		return uint64(uint32(f))
	case CvtL:
		if f >= math.MaxInt64 {
			return uint64(math.MaxInt64)
		}
		if f <= math.MinInt64 {
			return 1 << 63 // bit pattern of MinInt64
		}
		return uint64(int64(f))
	default: // CvtLU
		if f >= math.MaxUint64 {
			return math.MaxUint64
		}
		if f <= 0 {
			return 0
		}
		return uint64(f)
	}
}

// intToFP converts an integer bit pattern (width/signedness from cvt) to a
// float64; the caller narrows to float32 for single-precision ops.
func intToFP(bits uint64, cvt CvtKind) float64 {
	switch cvt {
	case CvtW:
		return float64(int32(uint32(bits)))
	case CvtWU:
		return float64(uint32(bits))
	case CvtL:
		return float64(int64(bits))
	default: // CvtLU
		return float64(bits)
	}
}

// classifySingle/classifyDouble return the 10-bit FCLASS mask spec.md
// section 4.6 requires.
const (
	classNegInf = 1 << iota
	classNegNormal
	classNegSubnormal
	classNegZero
	classPosZero
	classPosSubnormal
	classPosNormal
	classPosInf
	classSigNaN
	classQuietNaN
)

func classifySingle(f float32) uint64 {
	return classify(float64(f), math.Float32bits(f)&(1<<22) == 0, math.IsInf(float64(f), 0), isSubnormal32(f))
}

func classifyDouble(f float64) uint64 {
	bits := math.Float64bits(f)
	return classify(f, bits&(1<<51) == 0, math.IsInf(f, 0), isSubnormal64(f))
}

func isSubnormal32(f float32) bool {
	bits := math.Float32bits(f)
	exp := (bits >> 23) & 0xff
	return exp == 0 && (bits&0x7fffff) != 0
}

func isSubnormal64(f float64) bool {
	bits := math.Float64bits(f)
	exp := (bits >> 52) & 0x7ff
	return exp == 0 && (bits&((1<<52)-1)) != 0
}

func classify(f float64, sigNaNBitClear bool, isInf bool, subnormal bool) uint64 {
	neg := math.Signbit(f)
	switch {
	case math.IsNaN(f):
		if sigNaNBitClear {
			return classSigNaN
		}
		return classQuietNaN
	case isInf:
		if neg {
			return classNegInf
		}
		return classPosInf
	case f == 0:
		if neg {
			return classNegZero
		}
		return classPosZero
	case subnormal:
		if neg {
			return classNegSubnormal
		}
		return classPosSubnormal
	default:
		if neg {
			return classNegNormal
		}
		return classPosNormal
	}
}
