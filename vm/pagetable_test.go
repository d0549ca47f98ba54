package vm

import (
	"testing"

	"rvcore/mem"
)

func setup(t *testing.T) {
	t.Helper()
	mem.Init()
}

func TestMapLookupUnmap(t *testing.T) {
	setup(t)
	pt := New()

	pa := mem.Alloc.Allocate(mem.PGSIZE)
	pt.MapOwned(0x1000, pa, PTE_R|PTE_W|PTE_U)

	got, flags, ok := pt.Lookup(0x1000)
	if !ok {
		t.Fatalf("expected mapping to be present")
	}
	if got != pa {
		t.Fatalf("lookup returned %#x, want %#x", got, pa)
	}
	if flags&PTE_U == 0 || flags&PTE_W == 0 {
		t.Fatalf("lookup lost permission bits: %#x", flags)
	}

	pt.Unmap(0x1000)
	if _, _, ok := pt.Lookup(0x1000); ok {
		t.Fatalf("expected mapping to be gone after Unmap")
	}
}

func TestRemapIsFatal(t *testing.T) {
	setup(t)
	pt := New()
	pa := mem.Alloc.Allocate(mem.PGSIZE)
	pt.MapOwned(0x2000, pa, PTE_R)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic remapping an already-mapped page")
		}
	}()
	pt.MapOwned(0x2000, pa, PTE_R)
}

func TestCloneDeepCopiesOwnedPages(t *testing.T) {
	setup(t)
	pt := New()
	pa := mem.Alloc.Allocate(mem.PGSIZE)
	mem.Dmap(pa)[0] = 0xAB
	pt.MapOwned(0x3000, pa, PTE_R|PTE_W|PTE_U)

	child := pt.Clone()
	cpa, _, ok := child.Lookup(0x3000)
	if !ok {
		t.Fatalf("clone did not copy the owned mapping")
	}
	if cpa == pa {
		t.Fatalf("clone shares the parent's physical frame instead of copying it")
	}
	if mem.Dmap(cpa)[0] != 0xAB {
		t.Fatalf("clone did not copy frame contents")
	}

	mem.Dmap(pa)[0] = 0xCD
	if mem.Dmap(cpa)[0] != 0xAB {
		t.Fatalf("parent and child frames alias after clone")
	}
}

func TestCloneSkipsUnownedKernelLeaves(t *testing.T) {
	setup(t)
	pt := New()
	kpa := mem.Alloc.Allocate(mem.PGSIZE)
	pt.Map(0x5000, kpa, PTE_R|PTE_X) // kernel mapping, not owned

	child := pt.Clone()
	if _, _, ok := child.Lookup(0x5000); ok {
		t.Fatalf("clone should not duplicate unowned kernel leaves")
	}
}

func TestDisasmAtDecodesMappedExecutablePage(t *testing.T) {
	setup(t)
	pt := New()
	pa := mem.Alloc.Allocate(mem.PGSIZE)
	// addi x0, x0, 0 (the canonical RISC-V nop), little-endian.
	copy(mem.Dmap(pa)[:], []byte{0x13, 0x00, 0x00, 0x00})
	pt.MapOwned(0x4000, pa, PTE_R|PTE_X|PTE_U)

	text, ok := pt.DisasmAt(0x4000)
	if !ok {
		t.Fatalf("expected DisasmAt to decode a mapped executable page")
	}
	if text == "" {
		t.Fatalf("expected a non-empty disassembly")
	}
}

func TestDisasmAtRejectsNonExecutablePage(t *testing.T) {
	setup(t)
	pt := New()
	pa := mem.Alloc.Allocate(mem.PGSIZE)
	pt.MapOwned(0x4000, pa, PTE_R|PTE_W|PTE_U)

	if _, ok := pt.DisasmAt(0x4000); ok {
		t.Fatalf("expected DisasmAt to reject a non-executable page")
	}
}

func TestUnmapUserFreesOwnedFrames(t *testing.T) {
	setup(t)
	pt := New()
	for i := uint64(0); i < 3; i++ {
		pa := mem.Alloc.Allocate(mem.PGSIZE)
		pt.MapOwned(i*mem.PGSIZE, pa, PTE_R|PTE_W|PTE_U)
	}
	pt.UnmapUser()
	for i := uint64(0); i < 3; i++ {
		if _, _, ok := pt.Lookup(i * mem.PGSIZE); ok {
			t.Fatalf("page %d still mapped after UnmapUser", i)
		}
	}
}
