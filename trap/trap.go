// Package trap is the boundary described in spec.md §6: "usertrapret()
// never returns; invoked by forkret." Trap entry/exit assembly, the
// trampoline, and forkret itself are real riscv64 assembly out of scope
// for this core (spec.md §1): the hosted simulation switches into a
// process directly through proc.Proc_t.SwitchIn rather than returning
// through Swtch/forkret into usertrapret. This package holds the hook a
// riscv64 boot shim installs at that boundary.
package trap

// UsertrapretFn is installed once during boot, before scheduling begins.
// A real riscv64 forkret calls it on a process's first-ever scheduling to
// restore the trap frame's registers and sret into user mode, never
// returning.
var UsertrapretFn func()
