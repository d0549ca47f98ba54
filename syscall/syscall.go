// Package syscall is the thin dispatch layer of spec.md §4.7: glue from a
// process's trap frame to the fork/exec/exit/sleep/wakeup/read operations
// in packages proc, sched, and virtio. It is intentionally small — the
// policy lives in those packages; this one only marshals return values
// into the trap frame's a0 register using the negated-errno convention
// (package kerr), grounded on biscuit's Err_t/fd.go dispatch style.
package syscall

import (
	"rvcore/kerr"
	"rvcore/lock"
	"rvcore/proc"
	"rvcore/sched"
	"rvcore/virtio"
)

// Number identifies a syscall (spec.md §6/§7: "surface defined by the
// syscall dispatcher, not the core").
type Number int

const (
	SysFork Number = iota
	SysExec
	SysExit
	SysSleep
	SysWake
	SysRead
)

// Env bundles the subsystem handles a dispatcher needs: the process pool
// driving fork/exec/exit/sleep/wakeup, and the block device driving read.
type Env struct {
	Pool *sched.Pool_t
	Disk *virtio.Device_t
}

// Fork implements the fork syscall: spec.md §4.4 says the parent's return
// register reads the child pid and the child's reads 0 (the latter is
// already true of a freshly forked trap frame; only the parent's needs
// setting here).
func (e *Env) Fork(p *proc.Proc_t) kerr.Err_t {
	pid, err := e.Pool.Fork(p)
	if err != 0 {
		p.Trapframe.SetA0(uint64(err.Rval()))
		return err
	}
	p.Trapframe.SetA0(uint64(pid))
	return 0
}

// Exec implements the exec syscall. path stands in for the string a real
// dispatcher would have already copied in from user memory via the
// (out-of-scope) trampoline; that copy-in step is not part of this core.
func (e *Env) Exec(p *proc.Proc_t, path string) kerr.Err_t {
	err := sched.Exec(p, path)
	p.Trapframe.SetA0(uint64(err.Rval()))
	return err
}

// Exit implements the exit syscall; it never returns to its caller in the
// same sense sched.Exit never returns to its.
func (e *Env) Exit(p *proc.Proc_t) {
	sched.Exit(p)
}

// Sleep implements the sleep syscall: block the calling process on
// channel, releasing g across the handoff and reacquiring it on wake
// (spec.md §4.3).
func (e *Env) Sleep(p *proc.Proc_t, channel uint64, g *lock.Spinlock_t) {
	e.Pool.Sleep(p, channel, g)
}

// Wake implements the wakeup syscall.
func (e *Env) Wake(channel uint64) {
	e.Pool.Wakeup(channel)
}

// Read implements the block-read syscall, surfacing the VirtIO driver's
// blocking read (spec.md §4.5) to syscall callers.
func (e *Env) Read(p *proc.Proc_t, dev uint32, blockno uint32) *virtio.Buf {
	return e.Disk.Read(p, e.Pool, dev, blockno)
}
