package sched

import (
	"rvcore/klog"
	"rvcore/lock"
	"rvcore/proc"
)

// Sleep implements the sleeper's half of the lost-wakeup-free protocol
// (spec.md §4.3), grounded on original_source/kernel/src/process/
// process.rs's sleep(): publish the wait channel and SLEEPING state, commit
// the pool slot to BeingSlept under the pool lock, take the sleep lock and
// stash it on p so the scheduler drops it exactly once after the context
// switch completes, weaken g (morally an unlock that remembers identity),
// then hand control to the scheduler. On wake, reacquire g and return it.
func (pl *Pool_t) Sleep(p *proc.Proc_t, channel uint64, g *lock.Spinlock_t) *lock.Spinlock_t {
	p.Chan = channel
	p.State = proc.Sleeping

	pl.lock.Lock()
	if pl.slots[p.Pid].kind != Scheduled {
		klog.Fatalf("sched: sleep of pid %d whose slot is %s, not Scheduled", p.Pid, pl.slots[p.Pid].kind)
	}
	pl.slots[p.Pid] = slot_t{kind: BeingSlept}
	pl.lock.Unlock()

	sleepLock.Lock()
	p.DropOnReinsert = sleepLock

	weak := g.Weaken()

	p.Suspend()

	p.Chan = 0
	return weak.Reacquire()
}

// Wakeup implements the waker's half (spec.md §4.3): walk the pool,
// transitioning any Pooling+SLEEPING process waiting on channel to
// RUNNABLE. A BeingSlept slot forces the walk to drop the pool lock,
// acquire and release the sleep lock (serializing behind whichever hart is
// mid-commit), and restart scanning from that same index — the commit can
// only finish with the slot either still BeingSlept (loop again) or
// already Pooling+SLEEPING (caught on the restart).
func (pl *Pool_t) Wakeup(channel uint64) {
	pl.lock.Lock()
	i := 0
	for i < NMAXPROCS {
		switch pl.slots[i].kind {
		case Pooling:
			sp := pl.slots[i].proc
			if sp.State == proc.Sleeping && sp.Chan == channel {
				sp.State = proc.Runnable
			}
			i++
		case BeingSlept:
			pl.lock.Unlock()
			sleepLock.Lock()
			sleepLock.Unlock()
			pl.lock.Lock()
			// i intentionally not advanced: restart at this slot.
		default:
			i++
		}
	}
	pl.lock.Unlock()
}
