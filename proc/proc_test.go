package proc

import (
	"testing"
	"unsafe"

	"rvcore/mem"
	"rvcore/vm"
)

func TestNewAllocatesKernelStackAndPagetable(t *testing.T) {
	mem.Init()
	p := New(3)
	if p.Pid != 3 {
		t.Fatalf("pid = %d, want 3", p.Pid)
	}
	if p.KstackSp != uint64(p.KstackPa)+KSTACK_PAGES*mem.PGSIZE {
		t.Fatalf("kernel stack sp not at top of the allocated run")
	}
	if p.Pagetable == nil || p.Trapframe == nil || p.Context == nil {
		t.Fatalf("New left a required field nil")
	}
}

func TestNewMapsTrampolineAndTrapframe(t *testing.T) {
	mem.Init()
	p := New(0)

	_, flags, ok := p.Pagetable.Lookup(vm.TRAMPOLINE_START)
	if !ok {
		t.Fatalf("New did not map the trampoline at vm.TRAMPOLINE_START")
	}
	if flags&vm.PTE_OWNED != 0 {
		t.Fatalf("trampoline leaf is PTE_OWNED; it must be an externally owned kernel mapping")
	}
	if flags&(vm.PTE_R|vm.PTE_X) != vm.PTE_R|vm.PTE_X {
		t.Fatalf("trampoline flags = %#x, want PTE_R|PTE_X", flags)
	}

	tfPa, flags, ok := p.Pagetable.Lookup(vm.TRAPFRAME_START)
	if !ok {
		t.Fatalf("New did not map the trap frame at vm.TRAPFRAME_START")
	}
	if flags&vm.PTE_OWNED != 0 {
		t.Fatalf("trap frame leaf is PTE_OWNED; it must be an externally owned kernel mapping")
	}
	if tfPa != mem.Pa_t(uintptr(unsafe.Pointer(p.Trapframe))) {
		t.Fatalf("trap frame mapping points somewhere other than p.Trapframe")
	}
}

func TestNewRejectsNegativePid(t *testing.T) {
	mem.Init()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic constructing a process with a negative pid")
		}
	}()
	New(-1)
}

func TestSwitchInSuspendHandoff(t *testing.T) {
	mem.Init()
	p := New(0)

	var ran []string
	p.Start(func(pr *Proc_t) {
		ran = append(ran, "before-suspend")
		pr.Suspend()
		ran = append(ran, "after-suspend")
	})

	p.SwitchIn()
	if len(ran) != 1 || ran[0] != "before-suspend" {
		t.Fatalf("expected process to run up to Suspend, got %v", ran)
	}

	p.SwitchIn()
	if len(ran) != 2 || ran[1] != "after-suspend" {
		t.Fatalf("expected process to resume after second SwitchIn, got %v", ran)
	}
}

func TestExitSuspendTerminatesGoroutine(t *testing.T) {
	mem.Init()
	p := New(0)
	reachedAfterExit := false

	p.Start(func(pr *Proc_t) {
		pr.ExitSuspend()
		reachedAfterExit = true // unreachable: Goexit never returns here
	})

	p.SwitchIn()
	if reachedAfterExit {
		t.Fatalf("code after ExitSuspend ran; Goexit should have terminated the goroutine")
	}
}

func TestTeardownFreesKernelStackAndPagetable(t *testing.T) {
	mem.Init()
	p := New(0)
	p.Pagetable.MapOwned(0, mem.Alloc.Allocate(mem.PGSIZE), vm.PTE_U|vm.PTE_R|vm.PTE_W)
	p.Teardown()
}
