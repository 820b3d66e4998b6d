package vm

import "github.com/rv64sim/rv64pipe/pkg/bus"

// AccessType distinguishes the three kinds of memory reference the Sv39
// walker checks permissions for, per spec.md section 4.7.
type AccessType uint8

const (
	AccessInstruction AccessType = iota
	AccessLoad
	AccessStore
)

// Sv39 page-table-entry bit layout.
const (
	pteV = 1 << 0
	pteR = 1 << 1
	pteW = 1 << 2
	pteX = 1 << 3
	pteU = 1 << 4
	pteA = 1 << 6
	pteD = 1 << 7

	pteWalkLevels = 3
	pteSize       = 8
	pageShift     = 12
	vpnBits       = 9
)

// satpModeSv39 is the only satp.MODE value this model recognizes as
// "translation enabled" (spec.md section 4.7); MODE 0 is bare/disabled.
const satpModeSv39 = 8

// MMU walks the Sv39 page table rooted at satp.PPN, per spec.md section
// 4.7. It has no state of its own beyond what the CSR file and bus give
// it; translate reads page-table entries through the bus and writes a
// leaf PTE back when it sets its A or D bit.
type MMU struct {
	Bus *bus.Bus
}

// translate converts a virtual address to a physical one. It returns the
// number of extra cycles the walk cost (for the cache-hierarchy latency
// model) and a non-nil trap on any fault. When privilege is Machine, or
// satp.MODE is 0 (bare), translation is the identity and costs 0 cycles.
func (m *MMU) translate(satp uint64, priv Privilege, status uint64, vaddr uint64, at AccessType) (paddr uint64, cycles uint64, trap *Trap) {
	mode := satp >> 60
	if priv == PrivMachine || mode == 0 {
		return vaddr, 0, nil
	}
	if mode != satpModeSv39 {
		return 0, 0, pageFault(at, vaddr)
	}

	vpn := [3]uint64{
		(vaddr >> 12) & 0x1ff,
		(vaddr >> 21) & 0x1ff,
		(vaddr >> 30) & 0x1ff,
	}
	ppn := satp & ((1 << 44) - 1)
	var pte uint64
	var pteAddr uint64
	level := pteWalkLevels - 1
	for {
		pteAddr = (ppn << pageShift) + vpn[level]*pteSize
		raw, err := m.Bus.ReadU64(pteAddr)
		cycles += 1
		if err != nil {
			return 0, cycles, pageFault(at, vaddr)
		}
		pte = raw
		if pte&pteV == 0 || (pte&pteR == 0 && pte&pteW != 0) {
			return 0, cycles, pageFault(at, vaddr)
		}
		leaf := pte&(pteR|pteX) != 0
		if leaf {
			break
		}
		if level == 0 {
			return 0, cycles, pageFault(at, vaddr)
		}
		ppn = (pte >> 10) & ((1 << 44) - 1)
		level--
	}

	if !checkPermission(pte, priv, status, at) {
		return 0, cycles, pageFault(at, vaddr)
	}

	// Superpage alignment: a level>0 leaf must have zero low PPN bits for
	// the levels it skipped.
	ppnFields := (pte >> 10) & ((1 << 44) - 1)
	for l := 0; l < level; l++ {
		if ppnFields&(0x1ff<<(vpnBits*l)) != 0 {
			return 0, cycles, pageFault(at, vaddr)
		}
	}

	if pte&pteA == 0 || (at == AccessStore && pte&pteD == 0) {
		pte |= pteA
		if at == AccessStore {
			pte |= pteD
		}
		m.Bus.WriteU64(pteAddr, pte)
	}

	paddrPageBits := ppnFields << pageShift
	offsetMask := uint64(1<<(pageShift+vpnBits*level)) - 1
	paddr = (paddrPageBits &^ offsetMask) | (vaddr & offsetMask)
	return paddr, cycles, nil
}

func checkPermission(pte uint64, priv Privilege, status uint64, at AccessType) bool {
	switch at {
	case AccessInstruction:
		if pte&pteX == 0 {
			return false
		}
	case AccessLoad:
		mxr := status&statusMXRBit != 0
		if pte&pteR == 0 && !(mxr && pte&pteX != 0) {
			return false
		}
	case AccessStore:
		if pte&pteW == 0 {
			return false
		}
	}
	isUserPage := pte&pteU != 0
	if priv == PrivUser {
		return isUserPage
	}
	// Supervisor accessing a U page requires SUM.
	if isUserPage {
		return status&statusSUMBit != 0
	}
	return true
}

func pageFault(at AccessType, vaddr uint64) *Trap {
	switch at {
	case AccessInstruction:
		return &Trap{Kind: TrapInstructionPageFault, Info: vaddr}
	case AccessStore:
		return &Trap{Kind: TrapStorePageFault, Info: vaddr}
	default:
		return &Trap{Kind: TrapLoadPageFault, Info: vaddr}
	}
}
