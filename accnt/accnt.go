// Package accnt tracks per-process user/system time consumption. Grounded
// on biscuit's accnt.Accnt_t (biscuit/src/accnt/accnt.go): the same
// Userns/Sysns nanosecond counters updated through atomic adds and merged
// under a mutex for reporting. Unlike the teacher, which samples
// time.Now() directly, this package samples through arch.Time() so the
// same hosted simulation backing the rest of the core also drives
// accounting (spec.md §6: arch is the only clock the kernel consults).
package accnt

import (
	"sync"
	"sync/atomic"

	"rvcore/arch"
)

// Accnt_t accumulates one process's user and system time, in ticks as
// reported by arch.Time(). The embedded mutex lets Add and Snapshot take a
// consistent pair of values while Utadd/Systadd stay lock-free on the hot
// context-switch path.
type Accnt_t struct {
	Userns int64
	Sysns  int64
	mu     sync.Mutex
}

// Utadd adds delta ticks to the user-time counter.
func (a *Accnt_t) Utadd(delta int64) {
	atomic.AddInt64(&a.Userns, delta)
}

// Systadd adds delta ticks to the system-time counter.
func (a *Accnt_t) Systadd(delta int64) {
	atomic.AddInt64(&a.Sysns, delta)
}

// Add merges n's counters into a.
func (a *Accnt_t) Add(n *Accnt_t) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Userns += atomic.LoadInt64(&n.Userns)
	a.Sysns += atomic.LoadInt64(&n.Sysns)
}

// Snapshot returns a consistent (Userns, Sysns) pair for reporting.
func (a *Accnt_t) Snapshot() (userns, sysns int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Userns, a.Sysns
}

// Sched_t hooks the scheduler's RUNNING/RUNNABLE transition boundary
// (spec.md §4.4 loop). StartRunning records when a process became RUNNING
// on a hart; StopRunning charges the elapsed ticks to the process's system
// time. The core
// charges everything a scheduled process does to Sysns: it has no
// separate notion of a user/kernel split in its hosted simulation, unlike
// the teacher which distinguishes trap entry/exit (spec.md §1: trap
// entry/exit is out of scope here).
type Sched_t struct {
	mark int64
}

// StartRunning records the tick at which a process begins its turn
// RUNNING on a hart.
func (s *Sched_t) StartRunning() {
	s.mark = arch.Time()
}

// StopRunning charges the ticks elapsed since the matching StartRunning to
// a's system time.
func (s *Sched_t) StopRunning(a *Accnt_t) {
	a.Systadd(arch.Time() - s.mark)
}
