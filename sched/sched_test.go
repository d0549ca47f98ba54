package sched_test

import (
	"testing"
	"time"
	"unsafe"

	"rvcore/lock"
	"rvcore/mem"
	"rvcore/proc"
	"rvcore/sched"
	"rvcore/vm"
)

func TestForkClonesMemoryAndTrapframe(t *testing.T) {
	mem.Init()
	pl := sched.NewPool()

	parent := proc.New(0)
	pa := mem.Alloc.Allocate(mem.PGSIZE)
	mem.Dmap(pa)[0] = 0x42
	parent.Pagetable.MapOwned(0, pa, vm.PTE_U|vm.PTE_R|vm.PTE_W)
	parent.Trapframe.SetA0(99)
	parent.Body = func(*proc.Proc_t) {}
	pl.PutBack(parent)

	childPid, err := pl.Fork(parent)
	if err != 0 {
		t.Fatalf("fork failed: %v", err)
	}
	if childPid == parent.Pid {
		t.Fatalf("child pid %d collides with parent pid %d", childPid, parent.Pid)
	}

	child, ok := pl.Lookup(childPid)
	if !ok {
		t.Fatalf("child not installed in pool")
	}
	if child.State != proc.Runnable {
		t.Fatalf("child state = %v, want RUNNABLE", child.State)
	}
	if child.Trapframe.A0() != 0 {
		t.Fatalf("child trap frame a0 = %d, want 0", child.Trapframe.A0())
	}
	// Pool_t.Fork returns the child pid; writing it into the parent's a0 is
	// the syscall dispatcher's job (syscall.Env.Fork), so a0 is untouched.
	if parent.Trapframe.A0() != 99 {
		t.Fatalf("parent trap frame a0 = %d, want 99 (left to the dispatcher)", parent.Trapframe.A0())
	}

	cpa, _, ok := child.Pagetable.Lookup(0)
	if !ok {
		t.Fatalf("child did not inherit parent's mapping at va 0")
	}
	if cpa == pa {
		t.Fatalf("child shares parent's physical frame instead of a copy")
	}
	if mem.Dmap(cpa)[0] != 0x42 {
		t.Fatalf("child's copy of the page lost its contents")
	}

	tramp, _, ok := child.Pagetable.Lookup(vm.TRAMPOLINE_START)
	if !ok {
		t.Fatalf("child lost the trampoline mapping across Clone")
	}
	ptramp, _, ok := parent.Pagetable.Lookup(vm.TRAMPOLINE_START)
	if !ok || tramp != ptramp {
		t.Fatalf("child trampoline frame = %#x, want shared frame %#x", tramp, ptramp)
	}

	tfPa, _, ok := child.Pagetable.Lookup(vm.TRAPFRAME_START)
	if !ok {
		t.Fatalf("child lost the trap frame mapping across Clone")
	}
	if tfPa != mem.Pa_t(uintptr(unsafe.Pointer(child.Trapframe))) {
		t.Fatalf("child trap frame mapping points somewhere other than its own Trapframe")
	}
}

func TestPoolStatsCountsSlotsByState(t *testing.T) {
	mem.Init()
	pl := sched.NewPool()

	p := proc.New(0)
	p.Body = func(*proc.Proc_t) {}
	p.State = proc.Runnable
	pl.PutBack(p)

	stats := pl.Stats()
	if stats.Runnable != 1 {
		t.Fatalf("stats.Runnable = %d, want 1", stats.Runnable)
	}
	if stats.Free != sched.NMAXPROCS-1 {
		t.Fatalf("stats.Free = %d, want %d", stats.Free, sched.NMAXPROCS-1)
	}
}

func TestYieldReturnsToRunnable(t *testing.T) {
	mem.Init()
	pl := sched.NewPool()

	p := proc.New(0)
	ranAfterYield := make(chan struct{})
	p.Start(func(pr *proc.Proc_t) {
		sched.Yield(pr)
		close(ranAfterYield)
	})
	p.State = proc.Runnable
	pl.PutBack(p)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		pl.RunHart(stop)
		close(done)
	}()

	select {
	case <-ranAfterYield:
	case <-time.After(5 * time.Second):
		t.Fatalf("process never resumed after Yield")
	}

	close(stop)
	<-done
}

func TestExitOfInitIsFatal(t *testing.T) {
	mem.Init()
	p := proc.New(0)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic exiting the init process")
		}
	}()
	sched.Exit(p)
}

func TestSleepWakeupInterlock(t *testing.T) {
	mem.Init()
	pl := sched.NewPool()
	guard := lock.New("Q")
	condTrue := false
	const chanTok = 0xC0FFEE

	a := proc.New(0)
	b := proc.New(1)

	woke := make(chan bool, 1)
	a.Start(func(pr *proc.Proc_t) {
		guard.Lock()
		for !condTrue {
			pl.Sleep(pr, chanTok, guard)
		}
		woke <- condTrue
		guard.Unlock()
	})
	a.State = proc.Runnable
	pl.PutBack(a)

	b.Start(func(pr *proc.Proc_t) {
		guard.Lock()
		condTrue = true
		guard.Unlock()
		pl.Wakeup(chanTok)
	})
	b.State = proc.Runnable
	pl.PutBack(b)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		pl.RunHart(stop)
		close(done)
	}()

	select {
	case observed := <-woke:
		if !observed {
			t.Fatalf("sleeper woke without observing the condition set")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("sleeper never woke")
	}

	close(stop)
	<-done
}
