// Package vm implements the Sv39 page table: a 3-level radix tree mapping
// 39-bit virtual addresses (9+9+9+12 bits) to 4KiB physical pages, with
// map/unmap/clone/free operations preserving the ownership invariants in
// spec.md §3: a valid non-leaf always points at a page-aligned table frame
// owned exclusively by that tree; a valid leaf either owns its physical
// frame (user mapping) or references an externally owned region (kernel
// mapping: trampoline, MMIO, trap frame).
package vm

import (
	"unsafe"

	"rvcore/arch"
	"rvcore/klog"
	"rvcore/mem"
)

// Pte_t is one Sv39 page-table entry.
type Pte_t uint64

// Entry flag bits (Sv39).
const (
	PTE_V Pte_t = 1 << 0 /// valid
	PTE_R Pte_t = 1 << 1 /// readable
	PTE_W Pte_t = 1 << 2 /// writable
	PTE_X Pte_t = 1 << 3 /// executable
	PTE_U Pte_t = 1 << 4 /// user-accessible

	// PTE_OWNED is a software bit (Sv39 reserves bits 8-9 for this):
	// set on leaves whose physical frame is owned by this page table and
	// must be freed when the tree is torn down or unmapped.
	PTE_OWNED Pte_t = 1 << 8
)

const (
	pteAddrShift = 10
	ptesPerPage  = mem.PGSIZE / 8 // 512

	vpnBits = 9
	vpnMask = (1 << vpnBits) - 1
)

// MAXVA bounds the virtual addresses this 3-level Sv39 tree can express
// without relying on sign extension of the unimplemented high bits: the
// xv6-style convention of reserving the top page for the trampoline.
const MAXVA = uint64(1) << (12 + vpnBits*3 - 1)

// TRAMPOLINE_START and TRAPFRAME_START are the fixed kernel-mapping
// addresses spec.md §6 names: the trampoline page occupies the top page of
// the address space, and the per-process trap frame sits one page below it.
const (
	TRAMPOLINE_START = MAXVA - mem.PGSIZE
	TRAPFRAME_START  = TRAMPOLINE_START - mem.PGSIZE
)

// Table_t is one 4096-byte page-table page: 512 64-bit entries.
type Table_t [ptesPerPage]Pte_t

// Pagetable_t is a process (or kernel) address space: the physical address
// of the root (level-2) table page.
type Pagetable_t struct {
	Root mem.Pa_t
}

// New allocates a zeroed root table.
func New() *Pagetable_t {
	root := mem.Alloc.Allocate(mem.PGSIZE)
	zeroPage(root)
	return &Pagetable_t{Root: root}
}

func zeroPage(pa mem.Pa_t) {
	b := mem.Dmap(pa)
	for i := range b {
		b[i] = 0
	}
}

func tableAt(pa mem.Pa_t) *Table_t {
	b := mem.Dmap(pa)
	return (*Table_t)(unsafe.Pointer(b))
}

func vpn(va uint64, level int) int {
	shift := 12 + vpnBits*level
	return int((va >> shift) & vpnMask)
}

// pteAddr extracts the physical page number a PTE points at.
func pteAddr(pte Pte_t) mem.Pa_t {
	return mem.Pa_t((pte >> pteAddrShift) << mem.PGSHIFT)
}

func mkPte(pa mem.Pa_t, flags Pte_t) Pte_t {
	return Pte_t(pa>>mem.PGSHIFT)<<pteAddrShift | flags | PTE_V
}

// walk returns the level-0 PTE slot for va, allocating intermediate table
// pages as needed when alloc is true. It returns nil if the mapping is
// absent and alloc is false.
func (pt *Pagetable_t) walk(va uint64, alloc bool) *Pte_t {
	table := pt.Root
	for level := 2; level > 0; level-- {
		t := tableAt(table)
		idx := vpn(va, level)
		pte := &t[idx]
		if *pte&PTE_V != 0 {
			table = pteAddr(*pte)
			continue
		}
		if !alloc {
			return nil
		}
		child := mem.Alloc.Allocate(mem.PGSIZE)
		zeroPage(child)
		*pte = mkPte(child, 0)
		table = child
	}
	t := tableAt(table)
	return &t[vpn(va, 0)]
}

// Map installs a leaf mapping for the page containing va, pointing at pa,
// with the given permission/ownership flags. It is fatal to map an already
// mapped page.
func (pt *Pagetable_t) Map(va uint64, pa mem.Pa_t, flags Pte_t) {
	pte := pt.walk(va, true)
	if *pte&PTE_V != 0 {
		klog.Fatalf("vm: remap of already-mapped va %#x", va)
	}
	*pte = mkPte(pa, flags)
}

// MapOwned is Map with PTE_OWNED set: the mapped frame belongs to this
// page table and will be freed by Unmap/Free.
func (pt *Pagetable_t) MapOwned(va uint64, pa mem.Pa_t, flags Pte_t) {
	pt.Map(va, pa, flags|PTE_OWNED)
}

// Lookup returns the physical address and flags mapped at va, or ok=false
// if va is unmapped.
func (pt *Pagetable_t) Lookup(va uint64) (pa mem.Pa_t, flags Pte_t, ok bool) {
	pte := pt.walk(va, false)
	if pte == nil || *pte&PTE_V == 0 {
		return 0, 0, false
	}
	return pteAddr(*pte), *pte & ((1 << pteAddrShift) - 1), true
}

// Unmap clears the mapping at va, freeing the backing frame if this table
// owns it.
func (pt *Pagetable_t) Unmap(va uint64) {
	pte := pt.walk(va, false)
	if pte == nil || *pte&PTE_V == 0 {
		klog.Fatalf("vm: unmap of unmapped va %#x", va)
	}
	if *pte&PTE_OWNED != 0 {
		mem.Alloc.Deallocate(pteAddr(*pte))
	}
	*pte = 0
}

// walkLeaves invokes visit for every valid level-0 PTE reachable from the
// root, reconstructing each one's virtual address. Non-leaf entries at
// level 1 and 2 are descended into but never passed to visit.
func (pt *Pagetable_t) walkLeaves(visit func(va uint64, pte *Pte_t)) {
	pt.walkLevel(pt.Root, 2, 0, visit)
}

func (pt *Pagetable_t) walkLevel(pa mem.Pa_t, level int, vaPrefix uint64, visit func(uint64, *Pte_t)) {
	t := tableAt(pa)
	for idx := range t {
		pte := &t[idx]
		if *pte&PTE_V == 0 {
			continue
		}
		va := vaPrefix | uint64(idx)<<(12+vpnBits*level)
		if level == 0 {
			visit(va, pte)
		} else {
			pt.walkLevel(pteAddr(*pte), level-1, va, visit)
		}
	}
}

// UnmapUser clears and frees every owned leaf mapping (spec.md §3: user
// mappings own their frame), leaving kernel-shared leaves — trampoline,
// trap frame, MMIO — untouched so exec can reuse the same table pages
// without re-establishing them (spec.md §4.4).
func (pt *Pagetable_t) UnmapUser() {
	var freed []mem.Pa_t
	pt.walkLeaves(func(va uint64, pte *Pte_t) {
		if *pte&PTE_OWNED == 0 {
			return
		}
		freed = append(freed, pteAddr(*pte))
		*pte = 0
	})
	for _, pa := range freed {
		mem.Alloc.Deallocate(pa)
	}
}

// Clone deep-copies every owned (user) leaf mapping into a fresh page
// table, including its backing frame's contents; leaves without PTE_OWNED
// (kernel mappings: trampoline, trap frame, MMIO) are left absent in the
// child, since the child installs its own trampoline/trapframe mappings
// separately (spec.md §3: "kernel leaves are shared by reference").
func (pt *Pagetable_t) Clone() *Pagetable_t {
	child := New()
	pt.walkLeaves(func(va uint64, pte *Pte_t) {
		if *pte&PTE_OWNED == 0 {
			return
		}
		flags := *pte & ((1 << pteAddrShift) - 1)
		np := mem.Alloc.Allocate(mem.PGSIZE)
		copy(mem.Dmap(np)[:], mem.Dmap(pteAddr(*pte))[:])
		child.Map(va, np, flags)
	})
	return child
}

// DisasmAt decodes the instruction mapped at va, for use in a fault
// diagnostic when a trap frame's saved PC lands somewhere unexpected. It
// returns ok=false if va is unmapped or not executable.
func (pt *Pagetable_t) DisasmAt(va uint64) (text string, ok bool) {
	pa, flags, ok := pt.Lookup(va)
	if !ok || flags&PTE_X == 0 {
		return "", false
	}
	page := mem.Dmap(pa)
	off := int(va) % mem.PGSIZE
	end := off + 4
	if end > mem.PGSIZE {
		end = mem.PGSIZE
	}
	return arch.Disasm(page[off:end]), true
}

// Free tears down every table page reachable from the root, after freeing
// every owned leaf frame via UnmapUser. The process pool calls this when a
// process's slot is reclaimed (ZOMBIE -> NoProc).
func (pt *Pagetable_t) Free() {
	pt.UnmapUser()
	pt.freeTables(pt.Root, 2)
}

func (pt *Pagetable_t) freeTables(pa mem.Pa_t, level int) {
	if level > 0 {
		t := tableAt(pa)
		for _, pte := range t {
			if pte&PTE_V != 0 {
				pt.freeTables(pteAddr(pte), level-1)
			}
		}
	}
	mem.Alloc.Deallocate(pa)
}
