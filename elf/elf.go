// Package elf is the collaborator described in spec.md §6: given a
// complete ELF image and a destination page table, it installs every
// PT_LOAD segment as a user-accessible mapping and returns the recorded
// entry point. Pairing debug/elf's decoder with per-segment Pread is the
// same shape gokvm's loader uses for its kernel image, and chentry (this
// tree's own Go ELF tool) already leans on debug/elf for header surgery;
// there is no third-party ELF decoder in the dependency pack worth
// displacing it for.
package elf

import (
	"bytes"
	"debug/elf"
	"io"

	"rvcore/kerr"
	"rvcore/mem"
	"rvcore/vm"
)

// ParseELF decodes img as an ELF64 riscv64 executable and maps each
// PT_LOAD segment into pt at its virtual address, with permissions derived
// from the segment's flags (always user-accessible and readable; PF_W adds
// PTE_W, PF_X adds PTE_X). It returns the ELF entry point.
func ParseELF(img []byte, pt *vm.Pagetable_t) (uint64, kerr.Err_t) {
	f, err := elf.NewFile(bytes.NewReader(img))
	if err != nil {
		return 0, kerr.EINVAL
	}
	if f.Class != elf.ELFCLASS64 || f.Machine != elf.EM_RISCV {
		return 0, kerr.EINVAL
	}

	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		flags := vm.PTE_U | vm.PTE_R
		if p.Flags&elf.PF_W != 0 {
			flags |= vm.PTE_W
		}
		if p.Flags&elf.PF_X != 0 {
			flags |= vm.PTE_X
		}
		if e := mapSegment(pt, p, flags); e != 0 {
			return 0, e
		}
	}
	return f.Entry, 0
}

// mapSegment copies one PT_LOAD segment's file contents into freshly
// allocated, page-table-owned frames spanning [Vaddr, Vaddr+Memsz), zero
// filling the tail when Memsz exceeds Filesz (bss).
func mapSegment(pt *vm.Pagetable_t, p *elf.Prog, flags vm.Pte_t) kerr.Err_t {
	base := p.Vaddr &^ uint64(mem.PGSIZE-1)
	end := p.Vaddr + p.Memsz
	r := io.NewSectionReader(p, 0, int64(p.Filesz))

	for va := base; va < end; va += mem.PGSIZE {
		pa := mem.Alloc.Allocate(mem.PGSIZE)
		page := mem.Dmap(pa)
		for i := range page {
			page[i] = 0
		}

		pageStart := va
		pageEnd := va + mem.PGSIZE
		fileStart := max64(pageStart, p.Vaddr)
		fileEnd := min64(pageEnd, p.Vaddr+p.Filesz)
		if fileEnd > fileStart {
			if _, err := r.Seek(int64(fileStart-p.Vaddr), io.SeekStart); err != nil {
				return kerr.EINVAL
			}
			if _, err := io.ReadFull(r, page[fileStart-pageStart:fileEnd-pageStart]); err != nil {
				return kerr.EINVAL
			}
		}
		pt.MapOwned(va, pa, flags)
	}
	return 0
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
