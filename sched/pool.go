// Package sched implements the process pool and per-hart scheduler loop
// (spec.md §4.4), plus the lost-wakeup-free sleep/wakeup protocol (spec.md
// §4.3) that cuts across it. Grounded on
// original_source/kernel/src/process/process.rs (PROCS_POOL,
// PROCS_POOL_SLEEP, find_available_pid, fork, exec, exit, sleep, wakeup),
// re-expressed in the teacher's idiom: a fixed-size slot array guarded by a
// *lock.Spinlock_t in the same style mem.Physalloc_t guards its cell array.
package sched

import (
	"rvcore/lock"
	"rvcore/proc"
)

// NMAXPROCS bounds the resident process table (spec.md §3).
const NMAXPROCS = 64

// slotKind is the four-way pool-slot variant from spec.md §3.
type slotKind int

const (
	NoProc     slotKind = iota // free
	Pooling                    // resident, eligible for scheduling/modification
	Scheduled                  // bound to some hart, executing; absent from scheduling scans
	BeingSlept                 // transitional: a hart is committing this process to sleep
)

func (k slotKind) String() string {
	switch k {
	case NoProc:
		return "NoProc"
	case Pooling:
		return "Pooling"
	case Scheduled:
		return "Scheduled"
	case BeingSlept:
		return "BeingSlept"
	default:
		return "?"
	}
}

type slot_t struct {
	kind slotKind
	proc *proc.Proc_t
}

// Pool_t is the fixed-size process table (spec.md §3). The zero value is
// not usable; construct with NewPool.
type Pool_t struct {
	lock  *lock.Spinlock_t
	slots [NMAXPROCS]slot_t
}

// NewPool constructs an empty pool.
func NewPool() *Pool_t {
	return &Pool_t{lock: lock.New("pool")}
}

// sleepLock is the auxiliary lock from spec.md §4.3/§9: taken by a sleeping
// process right after its slot becomes BeingSlept and held until the
// scheduler drops it, after the context switch away from that process completes.
// One instance is shared across pools since it exists purely to serialize
// the BeingSlept commit against concurrent wakeups, not to protect data.
var sleepLock = lock.New("sleep")

// AllocPid scans for the first free slot and returns its index, without
// reserving it; the caller installs the new process with PutBack shortly
// after, under the same race-acceptance the original find_available_pid
// has (spec.md §4.4: "Allocation of a pid scans for the first NoProc
// slot").
func (pl *Pool_t) AllocPid() (int, bool) {
	pl.lock.Lock()
	defer pl.lock.Unlock()
	for i := range pl.slots {
		if pl.slots[i].kind == NoProc {
			return i, true
		}
	}
	return 0, false
}

// PutBack installs p into its pool slot (index p.Pid) as Pooling. Callers
// must have already set p.State to a schedulable value.
func (pl *Pool_t) PutBack(p *proc.Proc_t) {
	pl.lock.Lock()
	defer pl.lock.Unlock()
	pl.slots[p.Pid] = slot_t{kind: Pooling, proc: p}
}

// Lookup returns the process installed at pid, if its slot is Pooling. A
// Scheduled or BeingSlept slot holds no process reference, so Lookup
// reports ok=false for it. It exists for diagnostics and tests; ordinary kernel code
// reaches a process through its own goroutine, not by pid lookup.
func (pl *Pool_t) Lookup(pid int) (*proc.Proc_t, bool) {
	pl.lock.Lock()
	defer pl.lock.Unlock()
	if pid < 0 || pid >= NMAXPROCS {
		return nil, false
	}
	s := pl.slots[pid]
	if s.proc == nil {
		return nil, false
	}
	return s.proc, true
}

// Stats_t is a snapshot of how many resident processes are in each
// scheduling state, plus the number of free slots.
type Stats_t struct {
	Free                                        int
	Unused, Sleeping, Runnable, Running, Zombie int
}

// Stats reports a snapshot of the pool's slot occupancy, taking the pool
// lock the same way mem.Physalloc_t.Debug scans its cell array under the
// allocator lock. A Scheduled or BeingSlept slot counts as Running: the
// process is bound to a hart (or mid-handoff to one) either way, which is
// all this report distinguishes from Pooling's resident States.
func (pl *Pool_t) Stats() Stats_t {
	pl.lock.Lock()
	defer pl.lock.Unlock()

	var s Stats_t
	for i := range pl.slots {
		switch pl.slots[i].kind {
		case NoProc:
			s.Free++
		case Scheduled, BeingSlept:
			s.Running++
		case Pooling:
			switch pl.slots[i].proc.State {
			case proc.Unused:
				s.Unused++
			case proc.Sleeping:
				s.Sleeping++
			case proc.Runnable:
				s.Runnable++
			case proc.Running:
				s.Running++
			case proc.Zombie:
				s.Zombie++
			}
		}
	}
	return s
}
