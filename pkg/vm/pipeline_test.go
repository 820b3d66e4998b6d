package vm

import (
	"math"
	"testing"

	"github.com/rv64sim/rv64pipe/pkg/bus"
)

func TestBranchPredictorTrainsTowardActualOutcome(t *testing.T) {
	bp := NewBranchPredictor()
	const pc = 0x80000100

	if bp.Predict(pc) {
		t.Fatal("a cold counter should start predicting not-taken")
	}
	bp.Update(pc, true)
	if !bp.Predict(pc) {
		t.Fatal("one taken update from weakly-not-taken should flip the prediction to taken")
	}
	bp.Update(pc, true)
	if !bp.Predict(pc) {
		t.Fatal("two taken updates should saturate into a taken prediction")
	}
	// Saturation: further taken updates must not wrap around.
	bp.Update(pc, true)
	bp.Update(pc, true)
	if !bp.Predict(pc) {
		t.Fatal("counter should stay saturated at strongly-taken")
	}
}

func TestBranchPredictorIndexWrapsOnAliasedPC(t *testing.T) {
	bp := NewBranchPredictor()
	// Two PCs 1024*4 bytes apart alias to the same table entry (PC[11:2]).
	const pcA = 0x80000000
	const pcB = pcA + branchPredictorEntries*4

	bp.Update(pcA, true)
	bp.Update(pcA, true)
	if !bp.Predict(pcB) {
		t.Fatal("aliased PC should share pcA's trained counter")
	}
}

func TestFPSingleMvRoundTrip(t *testing.T) {
	const bits = uint32(0x3f800000) // 1.0f
	toInt := execFP(AluFMvXW, true, 0, uint64(bits), 0, 0)
	if !toInt.IsInt {
		t.Fatal("FMV.X.W result should be an integer result")
	}
	if toInt.Int != uint64(int64(int32(bits))) {
		t.Fatalf("FMV.X.W(%#x) = %#x, want sign-extended %#x", bits, toInt.Int, uint64(int64(int32(bits))))
	}
	back := execFP(AluFMvWX, true, 0, toInt.Int, 0, 0)
	if back.IsInt {
		t.Fatal("FMV.W.X result should be an FP result")
	}
	if back.Bits != nanBoxTag|uint64(bits) {
		t.Fatalf("FMV.W.X round trip = %#x, want NaN-boxed %#x", back.Bits, nanBoxTag|uint64(bits))
	}
}

func TestFPDoubleArithmetic(t *testing.T) {
	a := math.Float64bits(3.5)
	b := math.Float64bits(1.5)
	r := execFP(AluFAdd, false, 0, a, b, 0)
	if got := math.Float64frombits(r.Bits); got != 5.0 {
		t.Fatalf("3.5+1.5 = %v, want 5.0", got)
	}
}

func TestFPCrossPrecisionConvert(t *testing.T) {
	// FCVT.S.D: double source, single (NaN-boxed) destination.
	d := math.Float64bits(3.5)
	toSingle := execFP(AluFCvtSD, true, 0, d, 0, 0)
	if toSingle.IsInt {
		t.Fatal("FCVT.S.D result should be an FP result")
	}
	wantSingle := nanBoxTag | uint64(math.Float32bits(3.5))
	if toSingle.Bits != wantSingle {
		t.Fatalf("FCVT.S.D(3.5) = %#x, want %#x", toSingle.Bits, wantSingle)
	}

	// FCVT.D.S: single source, double destination.
	single := math.Float32bits(2.25)
	toDouble := execFP(AluFCvtDS, false, 0, uint64(single), 0, 0)
	if toDouble.IsInt {
		t.Fatal("FCVT.D.S result should be an FP result")
	}
	if got := math.Float64frombits(toDouble.Bits); got != 2.25 {
		t.Fatalf("FCVT.D.S(2.25f) = %v, want 2.25", got)
	}
}

func newMemTestCpu() *Cpu {
	b := bus.New(nil, nil)
	return NewCpu(b, Config{})
}

func TestMemStoreLoadRoundTrip(t *testing.T) {
	c := newMemTestCpu()
	const addr = bus.RAMBase + 0x1000

	if trap := c.memStore(addr, 0xdeadbeef, ControlSignals{Width: WidthWord}); trap != nil {
		t.Fatalf("memStore: %+v", trap)
	}
	v, trap := c.memLoad(addr, ControlSignals{Width: WidthWord})
	if trap != nil {
		t.Fatalf("memLoad: %+v", trap)
	}
	if v != 0xdeadbeef {
		t.Fatalf("memLoad = %#x, want 0xdeadbeef", v)
	}
}

func TestMemLoadSignExtendsByte(t *testing.T) {
	c := newMemTestCpu()
	const addr = bus.RAMBase + 0x2000

	if trap := c.memStore(addr, 0xff, ControlSignals{Width: WidthByte}); trap != nil {
		t.Fatalf("memStore: %+v", trap)
	}
	v, trap := c.memLoad(addr, ControlSignals{Width: WidthByte, SignedLoad: true})
	if trap != nil {
		t.Fatalf("memLoad: %+v", trap)
	}
	if v != ^uint64(0) {
		t.Fatalf("signed load of 0xff = %#x, want all-ones (-1)", v)
	}

	v, trap = c.memLoad(addr, ControlSignals{Width: WidthByte, SignedLoad: false})
	if trap != nil {
		t.Fatalf("memLoad: %+v", trap)
	}
	if v != 0xff {
		t.Fatalf("unsigned load of 0xff = %#x, want 0xff", v)
	}
}

func TestMemLoadMisalignedTraps(t *testing.T) {
	c := newMemTestCpu()
	_, trap := c.memLoad(bus.RAMBase+1, ControlSignals{Width: WidthWord})
	if trap == nil || trap.Kind != TrapLoadAddressMisaligned {
		t.Fatalf("memLoad(misaligned word) = %+v, want TrapLoadAddressMisaligned", trap)
	}
}

func TestMemAtomicSwapRoundTrip(t *testing.T) {
	c := newMemTestCpu()
	const addr = bus.RAMBase + 0x3000

	if trap := c.memStore(addr, 10, ControlSignals{Width: WidthDouble}); trap != nil {
		t.Fatalf("memStore: %+v", trap)
	}

	old, trap := c.memAtomic(EXMEMEntry{
		ALUResult: addr,
		StoreData: 42,
		Ctrl:      ControlSignals{AtomicOp: AtomicSwap, Width: WidthDouble},
	})
	if trap != nil {
		t.Fatalf("memAtomic(swap): %+v", trap)
	}
	if old != 10 {
		t.Fatalf("AMOSWAP old value = %d, want 10", old)
	}

	v, trap := c.memLoad(addr, ControlSignals{Width: WidthDouble})
	if trap != nil {
		t.Fatalf("memLoad after swap: %+v", trap)
	}
	if v != 42 {
		t.Fatalf("memory after AMOSWAP = %d, want 42", v)
	}
}

func TestMemAtomicLRSCSucceedsThenFailsOnReuse(t *testing.T) {
	c := newMemTestCpu()
	const addr = bus.RAMBase + 0x4000

	if trap := c.memStore(addr, 7, ControlSignals{Width: WidthDouble}); trap != nil {
		t.Fatalf("memStore: %+v", trap)
	}

	if _, trap := c.memAtomic(EXMEMEntry{ALUResult: addr, Ctrl: ControlSignals{AtomicOp: AtomicLR, Width: WidthDouble}}); trap != nil {
		t.Fatalf("memAtomic(LR): %+v", trap)
	}

	result, trap := c.memAtomic(EXMEMEntry{ALUResult: addr, StoreData: 99, Ctrl: ControlSignals{AtomicOp: AtomicSC, Width: WidthDouble}})
	if trap != nil {
		t.Fatalf("memAtomic(SC): %+v", trap)
	}
	if result != 0 {
		t.Fatalf("first SC after LR: result = %d, want 0 (success)", result)
	}

	// The reservation was cleared by the successful SC above; a second SC
	// with no intervening LR must fail.
	result, trap = c.memAtomic(EXMEMEntry{ALUResult: addr, StoreData: 123, Ctrl: ControlSignals{AtomicOp: AtomicSC, Width: WidthDouble}})
	if trap != nil {
		t.Fatalf("memAtomic(SC again): %+v", trap)
	}
	if result != 1 {
		t.Fatalf("second SC without LR: result = %d, want 1 (failure)", result)
	}
}
