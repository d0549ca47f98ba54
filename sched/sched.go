package sched

import (
	"rvcore/arch"
	"rvcore/elf"
	"rvcore/fsstub"
	"rvcore/kerr"
	"rvcore/klog"
	"rvcore/mem"
	"rvcore/proc"
	"rvcore/vm"
)

// RunHart drives one hart's scheduler loop (spec.md §4.4) until stop is
// closed or receives a value. Each pass briefly enables interrupts, takes
// the first RUNNABLE process out of the pool, switches into it, and on
// return either tears it down (ZOMBIE) or reinserts it (anything else).
func (pl *Pool_t) RunHart(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		arch.IntrOn()

		pl.lock.Lock()
		idx := -1
		for i := range pl.slots {
			if pl.slots[i].kind == Pooling && pl.slots[i].proc.State == proc.Runnable {
				idx = i
				break
			}
		}
		if idx < 0 {
			pl.lock.Unlock()
			continue
		}
		p := pl.slots[idx].proc
		pl.slots[idx] = slot_t{kind: Scheduled}
		pl.lock.Unlock()

		p.State = proc.Running
		p.Sched.StartRunning()
		p.SwitchIn()
		p.Sched.StopRunning(&p.Accnt)

		// The process has yielded, slept, or exited; drop the stashed
		// sleep-lock guard exactly once, per spec.md §9.
		if p.DropOnReinsert != nil {
			p.DropOnReinsert.Unlock()
			p.DropOnReinsert = nil
		}

		pl.lock.Lock()
		if p.State == proc.Zombie {
			pl.slots[idx] = slot_t{kind: NoProc}
			pl.lock.Unlock()
			p.Teardown()
		} else {
			pl.slots[idx] = slot_t{kind: Pooling, proc: p}
			pl.lock.Unlock()
		}
	}
}

// Fork implements spec.md §4.4's fork: allocate a pid, clone the parent's
// page table (user pages deep-copied; the trampoline is re-pointed at the
// same shared frame and the trap frame at the child's own, since Clone
// drops both) and trap frame contents, zero the child's syscall return
// register, mark it RUNNABLE, and install it as Pooling. It returns the
// child pid to the caller, which the syscall dispatcher places in the
// parent's own return register; the child's own trap frame already reads
// 0.
func (pl *Pool_t) Fork(parent *proc.Proc_t) (int, kerr.Err_t) {
	pid, ok := pl.AllocPid()
	if !ok {
		return 0, kerr.ENOPID
	}

	child := proc.New(pid)
	child.Pagetable.Free() // drop New's fresh empty table; we install a clone below
	child.Pagetable = parent.Pagetable.Clone()
	child.MapKernelLeaves() // Clone drops non-owned leaves; re-point the child at its own trapframe
	*child.Trapframe = *parent.Trapframe
	child.Trapframe.SetA0(0)
	child.State = proc.Runnable
	child.Start(parent.Body)

	pl.PutBack(child)
	return pid, 0
}

// Exec implements spec.md §4.4's exec: resolve path via the filesystem
// collaborator, unmap the caller's user mappings, parse the ELF into the
// same page table, map a fresh user stack, and point the trap frame at the
// new entry.
func Exec(p *proc.Proc_t, path string) kerr.Err_t {
	content, err := fsstub.GetFile(path)
	if err != 0 {
		return err
	}

	p.Pagetable.UnmapUser()

	entry, err := elf.ParseELF(content, p.Pagetable)
	if err != 0 {
		return err
	}

	sp := mapUserStack(p.Pagetable, UserStackBase)
	p.Trapframe.Epc = entry
	p.Trapframe.SetSp(sp)
	return 0
}

// UserStackBase is the fixed virtual address the user stack is mapped at
// (spec.md §6).
const UserStackBase = 0x80001000

// UserStackPages is the number of pages backing the user stack.
const UserStackPages = 4

func mapUserStack(pt *vm.Pagetable_t, base uint64) uint64 {
	for i := 0; i < UserStackPages; i++ {
		pa := mem.Alloc.Allocate(mem.PGSIZE)
		pt.MapOwned(base+uint64(i)*mem.PGSIZE, pa, vm.PTE_U|vm.PTE_R|vm.PTE_W)
	}
	return base + uint64(UserStackPages)*mem.PGSIZE
}

// Exit implements spec.md §4.4's exit: mark the process ZOMBIE, disable
// interrupts, and hand control back to the scheduler for the last time.
// Exiting the init process (pid 0) is fatal.
func Exit(p *proc.Proc_t) {
	if p.Pid == 0 {
		klog.Fatalf("sched: init process (pid 0) exited")
	}
	p.State = proc.Zombie
	arch.IntrOff()
	p.ExitSuspend()
}

// Yield implements spec.md §4.4's yield: mark RUNNABLE and hand control
// back to the scheduler.
func Yield(p *proc.Proc_t) {
	p.State = proc.Runnable
	p.Suspend()
}
