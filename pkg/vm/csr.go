package vm

// Privilege levels, encoded as spec.md section 5 and the RISC-V privileged
// spec define them.
type Privilege uint8

const (
	PrivUser       Privilege = 0
	PrivSupervisor Privilege = 1
	PrivMachine    Privilege = 3
)

// CSR addresses this model implements (spec.md section 5).
const (
	CsrAddrSstatus  = 0x100
	CsrAddrSie      = 0x104
	CsrAddrStvec    = 0x105
	CsrAddrSscratch = 0x140
	CsrAddrSepc     = 0x141
	CsrAddrScause   = 0x142
	CsrAddrStval    = 0x143
	CsrAddrSip      = 0x144
	CsrAddrSatp     = 0x180

	CsrAddrMstatus  = 0x300
	CsrAddrMtvec    = 0x305
	CsrAddrMscratch = 0x340
	CsrAddrMepc     = 0x341
	CsrAddrMcause   = 0x342
	CsrAddrMtval    = 0x343
)

// mstatus/sstatus bit positions this model tracks.
const (
	statusSIEBit = 1 << 1
	statusSPIEBit = 1 << 5
	statusSPPBit  = 1 << 8
	statusSUMBit  = 1 << 18
	statusMXRBit  = 1 << 19
)

// CSRFile holds the supervisor/machine control-and-status registers
// spec.md section 5 names. mstatus and sstatus are modeled as a single
// backing word (sstatus is architecturally a restricted view of mstatus);
// that matches the Rust reference's cpu/mod.rs, which keeps one status
// word and masks it per access.
type CSRFile struct {
	Status  uint64 // shared mstatus/sstatus backing word
	Mepc    uint64
	Sepc    uint64
	Mtvec   uint64
	Stvec   uint64
	Scause  uint64
	Mcause  uint64
	Stval   uint64
	Mtval   uint64
	Sscratch uint64
	Mscratch uint64
	Satp    uint64
}

const sstatusMask = statusSIEBit | statusSPIEBit | statusSPPBit | statusSUMBit | statusMXRBit

// Read returns the value of the CSR at addr; sstatus reads as the masked
// view of the shared status word. No privilege check is made. ok is false
// for an unimplemented address, which execCSR reads as zero, leaving the
// write undone and raising no trap.
func (c *CSRFile) Read(addr uint32) (v uint64, ok bool) {
	switch addr {
	case CsrAddrMstatus:
		return c.Status, true
	case CsrAddrSstatus:
		return c.Status & sstatusMask, true
	case CsrAddrMepc:
		return c.Mepc, true
	case CsrAddrSepc:
		return c.Sepc, true
	case CsrAddrMtvec:
		return c.Mtvec, true
	case CsrAddrStvec:
		return c.Stvec, true
	case CsrAddrScause:
		return c.Scause, true
	case CsrAddrMcause:
		return c.Mcause, true
	case CsrAddrStval:
		return c.Stval, true
	case CsrAddrMtval:
		return c.Mtval, true
	case CsrAddrSscratch:
		return c.Sscratch, true
	case CsrAddrMscratch:
		return c.Mscratch, true
	case CsrAddrSatp:
		return c.Satp, true
	default:
		return 0, false
	}
}

// Write stores v into the CSR at addr. epc writes mask off the two
// low bits, since instructions are always 4-byte aligned (spec.md
// section 5).
func (c *CSRFile) Write(addr uint32, v uint64) (ok bool) {
	switch addr {
	case CsrAddrMstatus:
		c.Status = v
	case CsrAddrSstatus:
		c.Status = (c.Status &^ sstatusMask) | (v & sstatusMask)
	case CsrAddrMepc:
		c.Mepc = v &^ 0x3
	case CsrAddrSepc:
		c.Sepc = v &^ 0x3
	case CsrAddrMtvec:
		c.Mtvec = v
	case CsrAddrStvec:
		c.Stvec = v
	case CsrAddrScause:
		c.Scause = v
	case CsrAddrMcause:
		c.Mcause = v
	case CsrAddrStval:
		c.Stval = v
	case CsrAddrMtval:
		c.Mtval = v
	case CsrAddrSscratch:
		c.Sscratch = v
	case CsrAddrMscratch:
		c.Mscratch = v
	case CsrAddrSatp:
		c.Satp = v
	default:
		return false
	}
	return true
}

func (c *CSRFile) sie() bool  { return c.Status&statusSIEBit != 0 }
func (c *CSRFile) spie() bool { return c.Status&statusSPIEBit != 0 }
func (c *CSRFile) spp() Privilege {
	if c.Status&statusSPPBit != 0 {
		return PrivSupervisor
	}
	return PrivUser
}

func (c *CSRFile) setSIE(v bool)  { c.setBit(statusSIEBit, v) }
func (c *CSRFile) setSPIE(v bool) { c.setBit(statusSPIEBit, v) }
// setSPP records p as SPP's single bit, which can only distinguish
// User (0) from non-User (1): a trap taken from Machine, same as one
// taken from Supervisor, must record SPP=1, or sret would return to the
// wrong privilege.
func (c *CSRFile) setSPP(p Privilege) {
	c.setBit(statusSPPBit, p != PrivUser)
}

func (c *CSRFile) setBit(mask uint64, v bool) {
	if v {
		c.Status |= mask
	} else {
		c.Status &^= mask
	}
}

// trapEntry implements the fixed delivery path: every trap this model
// raises lands in Supervisor mode regardless of the privilege it was
// taken from, as DESIGN.md's resolved MRET/SRET question records. It
// saves pc into sepc, the cause into scause, chains
// SPP/SPIE/SIE, and redirects the front end to stvec.
func (c *CSRFile) trapEntry(fromPriv Privilege, pc uint64, cause uint64) (newPC uint64) {
	c.Sepc = pc
	c.Scause = cause
	c.setSPP(fromPriv)
	c.setSPIE(c.sie())
	c.setSIE(false)
	return c.Stvec &^ 0x3
}

// doMRET returns the PC mret resumes at. This model always delivers traps
// to Supervisor, so mret (only reachable from Machine-mode firmware, e.g.
// the initial boot handoff) drops straight to Supervisor rather than
// restoring MPP, matching the Rust reference's do_mret. A caller that gets
// back Mepc==0 (mret before any epc was ever set) should treat that as a
// fatal firmware bug rather than redirect PC to 0.
func (c *CSRFile) doMRET() (newPC uint64, newPriv Privilege) {
	return c.Mepc, PrivSupervisor
}

// doSRET returns the PC and privilege sret resumes at/to. Per SPEC_FULL.md's
// resolved Open Question, this uses the SPP-encoded privilege-return
// variant: the destination privilege is whatever SPP recorded at trap
// entry, not unconditionally User. As with doMRET, Sepc==0 is the caller's
// signal to treat this as a fatal firmware bug, not a valid jump target.
func (c *CSRFile) doSRET() (newPC uint64, newPriv Privilege) {
	newPriv = c.spp()
	c.setSIE(c.spie())
	c.setSPIE(true)
	c.setSPP(PrivUser)
	return c.Sepc, newPriv
}
