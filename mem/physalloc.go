// Package mem is the page-frame allocator: a coarse, page-grained physical
// memory manager supporting multi-page contiguous allocation. It is the
// system-wide heap backend for kernel stacks, boxed trap frames, buffers
// and page-table frames built above it.
package mem

import (
	"unsafe"

	"rvcore/klog"
	"rvcore/lock"
)

// PGSHIFT is the base-2 exponent of the page size.
const PGSHIFT = 12

// PGSIZE is the size of a single physical page in bytes.
const PGSIZE = 1 << PGSHIFT

// MAX_PAGE bounds the heap to 128MiB of page-granular frames.
const MAX_PAGE = 128 * 1024 * 1024 / PGSIZE

// Pa_t is a physical address.
type Pa_t uintptr

// Physalloc_t is a first-fit allocator over a dense array of per-frame
// cells. A cell value of 0 means the frame is free; a nonzero value k
// means the frame is part of a k-page run (every cell of the run, not just
// the head, stores k), which lets Deallocate recover the run length from
// the head address alone.
//
// Grounded on the Rust original's Allocator (mem.rs): same cell encoding,
// same first-fit scan, same O(N*k) allocate/zero-range deallocate.
type Physalloc_t struct {
	lock  *lock.Spinlock_t
	base  Pa_t
	cells [MAX_PAGE]int
}

// Alloc is the kernel-wide page allocator singleton.
var Alloc = &Physalloc_t{lock: lock.New("mem")}

// heap backs the managed region with real Go memory. On real hardware the
// linker places HEAP_START in physical RAM directly; this backing slice is
// the hosted equivalent, kept alive for the process's lifetime so Pa_t
// values derived from it stay valid (see Dmap).
var heap []byte

// Init reserves the backing storage for the managed heap and sets the
// allocator's base address, page-aligned up from the start of that
// storage (standing in for align_up(HEAP_START, PAGE_SIZE), spec.md §6).
func Init() {
	Alloc.lock.Lock()
	defer Alloc.lock.Unlock()
	heap = make([]byte, MAX_PAGE*PGSIZE+PGSIZE)
	start := uintptr(unsafe.Pointer(&heap[0]))
	Alloc.base = Pa_t(roundup(start, PGSIZE))
	Alloc.cells = [MAX_PAGE]int{}
}

// Dmap returns a direct-mapped byte view of the page containing pa. The
// kernel core runs with an identity map between physical addresses and
// this process's own memory, so Dmap is a bounds-checked cast rather than
// a page-table walk (spec.md §6: the allocator is the heap backend for
// everything built above it, including page-table frames).
func Dmap(pa Pa_t) *[PGSIZE]byte {
	if pa < Alloc.base || pa-Alloc.base >= MAX_PAGE*PGSIZE {
		klog.Fatalf("mem: Dmap of out-of-range address %#x", pa)
	}
	return (*[PGSIZE]byte)(unsafe.Pointer(uintptr(pa)))
}

func roundup(v, b uintptr) uintptr {
	return (v + b - 1) &^ (b - 1)
}

// Allocate reserves the lowest-addressed run of ceil(size/PGSIZE) free
// frames and returns its base address. It is fatal if no such run exists
// (spec.md §4.1: configuration fault).
func (a *Physalloc_t) Allocate(size int) Pa_t {
	need := (size + PGSIZE - 1) / PGSIZE
	if need < 1 {
		need = 1
	}

	a.lock.Lock()
	defer a.lock.Unlock()

	for i := 0; i+need <= MAX_PAGE; i++ {
		if a.cells[i] != 0 {
			continue
		}
		found := true
		for j := 1; j < need; j++ {
			if a.cells[i+j] != 0 {
				found = false
				break
			}
		}
		if !found {
			continue
		}
		for j := 0; j < need; j++ {
			a.cells[i+j] = need
		}
		return a.base + Pa_t(i*PGSIZE)
	}
	klog.Fatalf("mem: no available page run for %d bytes", size)
	panic("unreachable")
}

// Deallocate frees the run whose first frame is addr. addr must be a value
// previously returned by Allocate and not yet freed.
func (a *Physalloc_t) Deallocate(addr Pa_t) {
	a.lock.Lock()
	defer a.lock.Unlock()

	i := int((addr - a.base) / PGSIZE)
	if i < 0 || i >= MAX_PAGE {
		klog.Fatalf("mem: deallocate of out-of-range address %#x", addr)
	}
	k := a.cells[i]
	if k == 0 {
		klog.Fatalf("mem: double free at %#x", addr)
	}
	for j := 0; j < k; j++ {
		a.cells[i+j] = 0
	}
}

// Debug prints every allocated run as a [from, to) address range, mirroring
// the original Allocator::debug used to diagnose fragmentation.
func (a *Physalloc_t) Debug() {
	a.lock.Lock()
	defer a.lock.Unlock()

	j := 0
	for j < MAX_PAGE {
		k := a.cells[j]
		if k != 0 {
			from := a.base + Pa_t(j*PGSIZE)
			to := a.base + Pa_t((j+k)*PGSIZE)
			klog.Infof("mem: %#x-%#x (pages: %d)", from, to, k)
			j += k
		} else {
			j++
		}
	}
}
