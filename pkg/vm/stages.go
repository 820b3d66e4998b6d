package vm

import (
	"fmt"

	"github.com/rv64sim/rv64pipe/pkg/isa"
)

const mmioAccessCycles = penaltyRAM

// fetchStage fetches one instruction at the current PC into the IF/ID
// latch, per spec.md section 4.1. It consults the branch predictor so a
// conditional branch's guessed direction is available by the time Decode
// builds the ID/EX entry.
func (c *Cpu) fetchStage() {
	if c.halted {
		c.ifid = IFID{}
		return
	}
	pc := c.PC
	paddr, cycles, trap := c.mmu.translate(c.CSR.Satp, c.Priv, c.CSR.Status, pc, AccessInstruction)
	if trap != nil {
		c.ifid = IFID{Entries: []IFEntry{{PC: pc, Trap: trap}}}
		c.PC += 4
		return
	}
	if cycles > 0 {
		c.Stats.Cycles += cycles
	}

	if c.Bus.IsMMIO(paddr) {
		c.Stats.Cycles += mmioAccessCycles
	} else {
		res := c.Cache.AccessInst(paddr)
		c.chargeCacheResult(res, true)
	}

	word, err := c.Bus.ReadU32(paddr)
	entry := IFEntry{PC: pc, Inst: word}
	if err != nil {
		entry.Trap = &Trap{Kind: TrapInstructionPageFault, Info: pc}
	}

	predTaken := c.BP.Predict(pc)
	entry.PredTaken = predTaken
	if predTaken {
		d := isa.Decode(word)
		if d.Opcode == isa.OpBranch {
			entry.PredTarget = pc + uint64(d.Imm)
		}
	}

	c.ifid = IFID{Entries: []IFEntry{entry}}
	if predTaken && entry.PredTarget != 0 {
		c.PC = entry.PredTarget
	} else {
		c.PC += 4
	}
}

func (c *Cpu) chargeCacheResult(res AccessResult, isInst bool) {
	if res.Cycles > 1 {
		c.Stats.Cycles += res.Cycles - 1
	}
	hit1 := res.HitLevel == 1
	if isInst {
		if hit1 {
			c.Stats.ICacheHits++
		} else {
			c.Stats.ICacheMisses++
		}
	} else {
		if hit1 {
			c.Stats.DCacheHits++
		} else {
			c.Stats.DCacheMisses++
		}
	}
	switch res.HitLevel {
	case 2:
		c.Stats.L2Hits++
	case 3:
		c.Stats.L2Misses++
		c.Stats.L3Hits++
	case 0:
		if !hit1 {
			c.Stats.L2Misses++
		}
		c.Stats.L3Misses++
	}
}

// decodeStage decodes the IF/ID latch's entry (if any), reads its source
// operands with EX/MEM forwarding, detects a load-use hazard against the
// instruction currently in EX, and produces the ID/EX latch. It returns
// true if a load-use hazard forced a bubble (spec.md section 4.3).
func (c *Cpu) decodeStage() (stalled bool) {
	prevIDEx := c.idex.Entries
	if len(c.ifid.Entries) == 0 {
		c.idex = IDEx{}
		return false
	}
	in := c.ifid.Entries[0]
	if in.Trap != nil {
		c.idex = IDEx{Entries: []IDExEntry{{PC: in.PC, Trap: in.Trap}}}
		return false
	}

	dec := isa.Decode(in.Inst)
	ctrl, trap := decodeControl(dec)

	if hazard := loadUseHazard(prevIDEx, dec); hazard {
		c.idex = IDEx{}
		return true
	}

	rv1 := c.readOperand(dec.RS1, ctrl.RS1FP, prevIDEx)
	rv2 := c.readOperand(dec.RS2, ctrl.RS2FP, prevIDEx)
	var rv3 uint64
	if ctrl.RS3FP {
		rv3 = c.readOperand(dec.RS3, true, prevIDEx)
	}
	if ctrl.CsrOp == CsrRWI || ctrl.CsrOp == CsrRSI || ctrl.CsrOp == CsrRCI {
		rv1 = uint64(dec.RS1) // the 5-bit zero-extended immediate, encoded where rs1 would be
	}

	entry := IDExEntry{
		PC: in.PC, Inst: in.Inst, Dec: dec, Ctrl: ctrl,
		RV1: rv1, RV2: rv2, RV3: rv3,
		PredTaken: in.PredTaken, PredTarget: in.PredTarget,
		Trap: trap,
	}
	c.idex = IDEx{Entries: []IDExEntry{entry}}
	return false
}

// readOperand returns a register value, forwarding from the two in-flight
// producers that haven't reached the register file yet. EX/MEM (the
// instruction this tick's Execute just produced, one instruction ahead of
// the one being decoded) takes priority when both forward the same
// register, since it is the nearer producer; MEM/WB (the instruction this
// tick's Memory just produced, a WB snapshot one cycle from retiring) is
// checked next, since that result exists a full tick before wbStage
// writes it into Regs. Write-Back's own writes for anything older than
// that are already visible through Regs, because wbStage runs earlier in
// the same tick.
func (c *Cpu) readOperand(reg uint32, isFP bool, prevIDEx []IDExEntry) uint64 {
	for _, e := range c.exmem.Entries {
		if e.Trap != nil {
			continue
		}
		if isFP && e.Ctrl.FPRegWrite && e.Rd == reg {
			return e.ALUResult
		}
		if !isFP && e.Ctrl.RegWrite && e.Rd == reg && reg != 0 {
			return e.ALUResult
		}
	}
	for _, e := range c.memwb.Entries {
		if e.Trap != nil {
			continue
		}
		if isFP && e.Ctrl.FPRegWrite && e.Rd == reg {
			return e.Result
		}
		if !isFP && e.Ctrl.RegWrite && e.Rd == reg && reg != 0 {
			return e.Result
		}
	}
	if isFP {
		return c.Regs.ReadFPDouble(reg)
	}
	return c.Regs.ReadInt(reg)
}

// loadUseHazard reports whether the instruction currently occupying EX
// (prevIDEx, the ID/EX latch from before this tick's Execute ran) is a
// load whose destination the newly decoded instruction needs as rs1/rs2,
// per spec.md section 4.3.
func loadUseHazard(prevIDEx []IDExEntry, dec isa.Decoded) bool {
	for _, e := range prevIDEx {
		if !e.Ctrl.MemRead || e.Trap != nil {
			continue
		}
		if e.Dec.Rd == 0 && !e.Ctrl.FPRegWrite {
			continue
		}
		if e.Dec.Rd == dec.RS1 || e.Dec.Rd == dec.RS2 {
			return true
		}
	}
	return false
}

// executeStage runs the ALU/FPU, resolves branches and jumps against the
// predictor, performs CSR read-modify-write, and invokes MRET/SRET. It
// returns true if a misprediction or jump/xRET requires flushing IF/ID and
// ID/EX (spec.md section 4.4/4.9).
func (c *Cpu) executeStage() (flush bool) {
	if len(c.idex.Entries) == 0 {
		c.exmem = EXMEM{}
		return false
	}
	in := c.idex.Entries[0]
	if in.Trap != nil {
		c.exmem = EXMEM{Entries: []EXMEMEntry{{PC: in.PC, Inst: in.Inst, Ctrl: in.Ctrl, Trap: in.Trap}}}
		return false
	}
	ctrl := in.Ctrl
	out := EXMEMEntry{PC: in.PC, Inst: in.Inst, Ctrl: ctrl, Rd: in.Dec.Rd}

	if ctrl.IsMRET {
		newPC, newPriv := c.CSR.doMRET()
		if newPC == 0 {
			c.fatalErr = fmt.Errorf("vm: mret at pc=%#x returned to epc=0", in.PC)
			c.halted = true
			c.exmem = EXMEM{Entries: []EXMEMEntry{out}}
			return false
		}
		c.PC, c.Priv = newPC, newPriv
		c.exmem = EXMEM{Entries: []EXMEMEntry{out}}
		return true
	}
	if ctrl.IsSRET {
		newPC, newPriv := c.CSR.doSRET()
		if newPC == 0 {
			c.fatalErr = fmt.Errorf("vm: sret at pc=%#x returned to epc=0", in.PC)
			c.halted = true
			c.exmem = EXMEM{Entries: []EXMEMEntry{out}}
			return false
		}
		c.PC, c.Priv = newPC, newPriv
		c.exmem = EXMEM{Entries: []EXMEMEntry{out}}
		return true
	}

	switch {
	case ctrl.IsSystem && ctrl.CsrOp != CsrNone:
		out.ALUResult = c.execCSR(ctrl, in.RV1)
	case ctrl.IsSystem:
		// ECALL/EBREAK/FENCE/WFI/SFENCE.VMA: no ALU work; the trap (if
		// any) is raised at retirement once privilege is settled.

	case ctrl.AtomicOp != AtomicNone:
		// Address only (rs1, no offset); the read-modify-write happens in
		// Memory, which has bus access.
		out.ALUResult = in.RV1
		out.StoreData = in.RV2

	case ctrl.MemRead || ctrl.MemWrite:
		// Covers both integer and FP loads/stores: address = rs1 + imm.
		out.ALUResult = in.RV1 + uint64(in.Dec.Imm)
		if ctrl.MemWrite {
			out.StoreData = in.RV2
		}

	case ctrl.FPRegWrite || (ctrl.RS1FP && !ctrl.FPRegWrite):
		res := execFP(ctrl.Alu, ctrl.IsRV32, ctrl.CvtKind, in.RV1, in.RV2, in.RV3)
		if res.IsInt {
			out.ALUResult = res.Int
		} else {
			out.ALUResult = res.Bits
		}

	case ctrl.Branch:
		a, b := aOperand(ctrl.ASrc, in.PC, in.RV1), in.RV2
		taken := branchTaken(in.Dec.Funct3, a, b)
		target := in.PC + uint64(in.Dec.Imm)
		fallthroughPC := in.PC + 4
		mispredict := taken != in.PredTaken || (taken && target != in.PredTarget)
		out.Branch.Taken, out.Branch.Target = taken, target
		out.Branch.Mispredict = mispredict
		c.Stats.BranchPredictions++
		if mispredict {
			c.Stats.BranchMispredictions++
		}
		c.BP.Update(in.PC, taken)
		if mispredict {
			if taken {
				c.PC = target
			} else {
				c.PC = fallthroughPC
			}
			flush = true
		}

	case ctrl.Jump:
		a := in.RV1
		var target uint64
		if in.Dec.Opcode == isa.OpJALR {
			target = (a + uint64(in.Dec.Imm)) &^ 1
		} else {
			target = in.PC + uint64(in.Dec.Imm)
		}
		out.ALUResult = in.PC + 4
		c.PC = target
		flush = true

	default:
		a := aOperand(ctrl.ASrc, in.PC, in.RV1)
		b := bOperand(ctrl.BSrc, in.RV2, in.Dec.Imm)
		out.ALUResult = intALU(ctrl.Alu, a, b, ctrl.IsRV32)
	}

	c.exmem = EXMEM{Entries: []EXMEMEntry{out}}
	return flush
}

func aOperand(src OpASrc, pc, reg uint64) uint64 {
	switch src {
	case OpASrcPC:
		return pc
	case OpASrcZero:
		return 0
	default:
		return reg
	}
}

func bOperand(src OpBSrc, reg uint64, imm int64) uint64 {
	switch src {
	case OpBSrcImm:
		return uint64(imm)
	case OpBSrcZero:
		return 0
	default:
		return reg
	}
}

func branchTaken(funct3 uint32, a, b uint64) bool {
	switch funct3 {
	case isa.F3BEQ:
		return a == b
	case isa.F3BNE:
		return a != b
	case isa.F3BLT:
		return int64(a) < int64(b)
	case isa.F3BGE:
		return int64(a) >= int64(b)
	case isa.F3BLTU:
		return a < b
	default: // BGEU
		return a >= b
	}
}

func (c *Cpu) execCSR(ctrl ControlSignals, rv1 uint64) uint64 {
	old, ok := c.CSR.Read(ctrl.CsrAddr)
	if !ok {
		return 0
	}
	var newVal uint64
	switch ctrl.CsrOp {
	case CsrRW, CsrRWI:
		newVal = rv1
	case CsrRS, CsrRSI:
		newVal = old | rv1
	case CsrRC, CsrRCI:
		newVal = old &^ rv1
	}
	c.CSR.Write(ctrl.CsrAddr, newVal)
	return old
}

// memStage performs the load/store/AMO the Execute stage addressed,
// walking the cache hierarchy (or bypassing it for MMIO, per the resolved
// Open Question on UART/disk cacheability) and producing the MEM/WB latch.
func (c *Cpu) memStage() {
	if len(c.exmem.Entries) == 0 {
		c.memwb = MEMWB{}
		return
	}
	in := c.exmem.Entries[0]
	if in.Trap != nil {
		c.memwb = MEMWB{Entries: []MEMWBEntry{{PC: in.PC, Inst: in.Inst, Ctrl: in.Ctrl, Trap: in.Trap}}}
		return
	}

	out := MEMWBEntry{PC: in.PC, Inst: in.Inst, Ctrl: in.Ctrl, Rd: in.Rd, Result: in.ALUResult}

	switch {
	case in.Ctrl.AtomicOp != AtomicNone:
		out.Result, out.Trap = c.memAtomic(in)
	case in.Ctrl.MemRead:
		out.Result, out.Trap = c.memLoad(in.ALUResult, in.Ctrl)
		if out.Trap == nil && in.Ctrl.FPRegWrite && in.Ctrl.Width == WidthWord {
			out.Result = nanBoxTag | (out.Result & 0xffffffff)
		}
	case in.Ctrl.MemWrite:
		out.Trap = c.memStore(in.ALUResult, in.StoreData, in.Ctrl)
	}

	c.memwb = MEMWB{Entries: []MEMWBEntry{out}}
}

func (c *Cpu) translateData(vaddr uint64, at AccessType) (uint64, *Trap) {
	paddr, cycles, trap := c.mmu.translate(c.CSR.Satp, c.Priv, c.CSR.Status, vaddr, at)
	if cycles > 0 {
		c.Stats.Cycles += cycles
	}
	return paddr, trap
}

func (c *Cpu) accessDataCache(paddr uint64, isWrite bool) {
	if c.Bus.IsMMIO(paddr) {
		c.Stats.Cycles += mmioAccessCycles
		return
	}
	res := c.Cache.AccessData(paddr, isWrite)
	c.chargeCacheResult(res, false)
}

func (c *Cpu) memLoad(vaddr uint64, ctrl ControlSignals) (uint64, *Trap) {
	paddr, trap := c.translateData(vaddr, AccessLoad)
	if trap != nil {
		return 0, trap
	}
	c.accessDataCache(paddr, false)
	if misaligned(vaddr, ctrl.Width) {
		return 0, &Trap{Kind: TrapLoadAddressMisaligned, Info: vaddr}
	}
	switch ctrl.Width {
	case WidthByte:
		v, err := c.Bus.ReadU8(paddr)
		if err != nil {
			return 0, &Trap{Kind: TrapLoadPageFault, Info: vaddr}
		}
		if ctrl.SignedLoad {
			return uint64(int64(int8(v))), nil
		}
		return uint64(v), nil
	case WidthHalf:
		v, err := c.Bus.ReadU16(paddr)
		if err != nil {
			return 0, &Trap{Kind: TrapLoadPageFault, Info: vaddr}
		}
		if ctrl.SignedLoad {
			return uint64(int64(int16(v))), nil
		}
		return uint64(v), nil
	case WidthWord:
		v, err := c.Bus.ReadU32(paddr)
		if err != nil {
			return 0, &Trap{Kind: TrapLoadPageFault, Info: vaddr}
		}
		if ctrl.SignedLoad {
			return uint64(int64(int32(v))), nil
		}
		return uint64(v), nil
	default:
		v, err := c.Bus.ReadU64(paddr)
		if err != nil {
			return 0, &Trap{Kind: TrapLoadPageFault, Info: vaddr}
		}
		return v, nil
	}
}

func (c *Cpu) memStore(vaddr, data uint64, ctrl ControlSignals) *Trap {
	paddr, trap := c.translateData(vaddr, AccessStore)
	if trap != nil {
		return trap
	}
	c.accessDataCache(paddr, true)
	if misaligned(vaddr, ctrl.Width) {
		return &Trap{Kind: TrapStoreAddressMisaligned, Info: vaddr}
	}
	if c.res.valid && c.res.addr == paddr {
		c.res.valid = false
	}
	var err error
	switch ctrl.Width {
	case WidthByte:
		err = c.Bus.WriteU8(paddr, byte(data))
	case WidthHalf:
		err = c.Bus.WriteU16(paddr, uint16(data))
	case WidthWord:
		err = c.Bus.WriteU32(paddr, uint32(data))
	default:
		err = c.Bus.WriteU64(paddr, data)
	}
	if err != nil {
		return &Trap{Kind: TrapStorePageFault, Info: vaddr}
	}
	return nil
}

func misaligned(addr uint64, w MemWidth) bool {
	switch w {
	case WidthHalf:
		return addr&0x1 != 0
	case WidthWord:
		return addr&0x3 != 0
	case WidthDouble:
		return addr&0x7 != 0
	default:
		return false
	}
}

// memAtomic performs LR/SC/AMO* read-modify-writes. Only a single
// reservation slot is modeled (SPEC_FULL.md's resolved Open Question):
// LR sets it; an SC attempt clears it, and so does a store or AMO to the
// reserved address.
func (c *Cpu) memAtomic(in EXMEMEntry) (uint64, *Trap) {
	vaddr := in.ALUResult
	paddr, trap := c.translateData(vaddr, AccessLoad)
	if trap != nil {
		return 0, trap
	}
	c.accessDataCache(paddr, in.Ctrl.AtomicOp != AtomicLR)

	switch in.Ctrl.AtomicOp {
	case AtomicLR:
		old, err := c.loadWidth(paddr, in.Ctrl)
		if err != nil {
			return 0, &Trap{Kind: TrapLoadPageFault, Info: vaddr}
		}
		c.res = reservation{valid: true, addr: paddr}
		return old, nil

	case AtomicSC:
		if !c.res.valid || c.res.addr != paddr {
			c.res.valid = false
			return 1, nil // failure
		}
		c.res.valid = false
		if err := c.storeWidth(paddr, in.StoreData, in.Ctrl); err != nil {
			return 1, nil
		}
		return 0, nil // success

	default:
		old, err := c.loadWidth(paddr, in.Ctrl)
		if err != nil {
			return 0, &Trap{Kind: TrapLoadPageFault, Info: vaddr}
		}
		if c.res.valid && c.res.addr == paddr {
			c.res.valid = false
		}
		newVal := amoCompute(in.Ctrl.AtomicOp, old, in.StoreData, in.Ctrl.Width == WidthWord)
		if err := c.storeWidth(paddr, newVal, in.Ctrl); err != nil {
			return 0, &Trap{Kind: TrapStorePageFault, Info: vaddr}
		}
		return old, nil
	}
}

func (c *Cpu) loadWidth(paddr uint64, ctrl ControlSignals) (uint64, error) {
	if ctrl.Width == WidthWord {
		v, err := c.Bus.ReadU32(paddr)
		return uint64(int64(int32(v))), err
	}
	return c.Bus.ReadU64(paddr)
}

func (c *Cpu) storeWidth(paddr uint64, v uint64, ctrl ControlSignals) error {
	if ctrl.Width == WidthWord {
		return c.Bus.WriteU32(paddr, uint32(v))
	}
	return c.Bus.WriteU64(paddr, v)
}

func amoCompute(op AtomicOp, old, operand uint64, isWord bool) uint64 {
	switch op {
	case AtomicSwap:
		return operand
	case AtomicAdd:
		return old + operand
	case AtomicXor:
		return old ^ operand
	case AtomicAnd:
		return old & operand
	case AtomicOr:
		return old | operand
	case AtomicMin:
		if isWord {
			if int32(old) < int32(operand) {
				return old
			}
			return operand
		}
		if int64(old) < int64(operand) {
			return old
		}
		return operand
	case AtomicMax:
		if isWord {
			if int32(old) > int32(operand) {
				return old
			}
			return operand
		}
		if int64(old) > int64(operand) {
			return old
		}
		return operand
	case AtomicMinu:
		if old < operand {
			return old
		}
		return operand
	case AtomicMaxu:
		if old > operand {
			return old
		}
		return operand
	default:
		return operand
	}
}

// wbStage retires the instruction in the MEM/WB latch: writes its result
// to the register file, counts it, handles any delayed trap, and detects
// the a7=93 exit ecall (spec.md section 9).
func (c *Cpu) wbStage() {
	if len(c.memwb.Entries) == 0 {
		c.traceWB = nil
		return
	}
	in := c.memwb.Entries[0]
	wb := in
	c.traceWB = &wb

	if trap := c.resolveTrap(in); trap != nil {
		c.enterTrap(in.PC, *trap)
		return
	}

	if in.Ctrl.IsECALL {
		if c.Regs.ReadInt(isa.RegA7) == 93 {
			c.halted = true
			c.exitCode = int(int32(c.Regs.ReadInt(isa.RegA0)))
			return
		}
	}

	if in.Ctrl.FPRegWrite {
		c.Regs.WriteFPDouble(in.Rd, in.Result)
	} else if in.Ctrl.RegWrite {
		c.Regs.WriteInt(in.Rd, in.Result)
	}
	c.Stats.InstructionsRetired++

	if c.cfg.Trace {
		fmt.Fprintf(c.cfg.TraceOut, "retire pc=%#010x inst=%#010x priv=%d\n", in.PC, in.Inst, c.Priv)
	}
}

// resolveTrap turns a retiring instruction into a Trap if it carries a
// delayed fault or is ECALL/EBREAK (whose exact cause depends on the
// privilege active at retirement).
func (c *Cpu) resolveTrap(in MEMWBEntry) *Trap {
	if in.Trap != nil {
		return in.Trap
	}
	if in.Ctrl.IsEBREAK {
		return &Trap{Kind: TrapBreakpoint, Info: in.PC}
	}
	if in.Ctrl.IsECALL {
		if c.Regs.ReadInt(isa.RegA7) == 93 {
			return nil // handled as a halt above, not a trap
		}
		switch c.Priv {
		case PrivUser:
			return &Trap{Kind: TrapEnvironmentCallFromU}
		case PrivSupervisor:
			return &Trap{Kind: TrapEnvironmentCallFromS}
		default:
			return &Trap{Kind: TrapEnvironmentCallFromM}
		}
	}
	return nil
}

// traceDiagram prints one line per cycle showing every pipeline stage's
// current occupant, laid out left to right in program order
// (IF -> ID -> EX -> MEM -> WB) the way a textbook pipeline diagram reads.
// Each slot holds the instruction that stage produced this tick, not the
// one it's presently working on, since that's what's left in the latches
// once Tick returns; an empty latch (bubble, flush, or stall) prints "-".
func (c *Cpu) traceDiagram() {
	if !c.cfg.Trace {
		return
	}
	fmt.Fprintf(c.cfg.TraceOut, "cycle=%d IF=%s ID=%s EX=%s MEM=%s WB=%s\n",
		c.Stats.Cycles,
		traceIF(c.ifid), traceIDEx(c.idex), traceEXMEM(c.exmem), traceMEMWB(c.memwb), traceRetiring(c.traceWB))
}

func traceIF(l IFID) string {
	if len(l.Entries) == 0 {
		return "-"
	}
	return fmt.Sprintf("%#06x", l.Entries[0].PC)
}

func traceIDEx(l IDEx) string {
	if len(l.Entries) == 0 {
		return "-"
	}
	return fmt.Sprintf("%#06x", l.Entries[0].PC)
}

func traceEXMEM(l EXMEM) string {
	if len(l.Entries) == 0 {
		return "-"
	}
	return fmt.Sprintf("%#06x", l.Entries[0].PC)
}

func traceMEMWB(l MEMWB) string {
	if len(l.Entries) == 0 {
		return "-"
	}
	return fmt.Sprintf("%#06x", l.Entries[0].PC)
}

func traceRetiring(wb *MEMWBEntry) string {
	if wb == nil {
		return "-"
	}
	return fmt.Sprintf("%#06x", wb.PC)
}

func (c *Cpu) enterTrap(pc uint64, t Trap) {
	newPC := c.CSR.trapEntry(c.Priv, pc, t.Cause())
	c.CSR.Stval = t.Info
	c.Priv = PrivSupervisor
	c.PC = newPC
	c.idex = IDEx{}
	c.exmem = EXMEM{}
	c.ifid = IFID{}
	if c.cfg.Trace {
		fmt.Fprintf(c.cfg.TraceOut, "trap pc=%#010x kind=%s -> stvec=%#010x\n", pc, t, newPC)
	}
}
