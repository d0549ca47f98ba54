// Package lock implements the kernel's mutual-exclusion primitive: an
// interrupt-disabling spinlock with hart-ownership tracking. Acquiring any
// lock disables external interrupts on the calling hart for as long as the
// hart holds any lock, nested correctly via a per-hart counter.
package lock

import (
	"sync/atomic"

	"rvcore/arch"
	"rvcore/klog"
)

// Spinlock_t is a test-and-set spinlock. The zero value is unlocked.
type Spinlock_t struct {
	locked uint32 /// 0 unlocked, 1 locked
	name   string /// for diagnostics
	hart   int64  /// hart id holding the lock, -1 when unlocked
}

// New constructs a named spinlock. The name appears in panic diagnostics
// only; it is not used for anything else.
func New(name string) *Spinlock_t {
	return &Spinlock_t{hart: -1, name: name}
}

// pushIntrOff disables interrupts for this hart and bumps the nesting
// counter, remembering the prior interrupt state on the outermost call.
func pushIntrOff() {
	wasEnabled := arch.IntrGet()
	arch.IntrOff()
	c := arch.MyCpu()
	if c.Noff == 0 {
		c.Intena = wasEnabled
	}
	c.Noff++
}

// popIntrOn reverses pushIntrOff: decrements the nesting counter and, on
// reaching zero, restores interrupts to their pre-critical-section state.
func popIntrOn() {
	c := arch.MyCpu()
	if arch.IntrGet() {
		klog.Fatalf("popIntrOn: interrupts enabled while unwinding a lock")
	}
	if c.Noff < 1 {
		klog.Fatalf("popIntrOn: not in a critical section")
	}
	c.Noff--
	if c.Noff == 0 && c.Intena {
		arch.IntrOn()
	}
}

// Holding reports whether the calling hart currently holds l.
func (l *Spinlock_t) Holding() bool {
	return atomic.LoadUint32(&l.locked) == 1 && atomic.LoadInt64(&l.hart) == int64(arch.HartID())
}

// Lock acquires l, disabling interrupts on the calling hart first so the
// hart cannot be preempted while it is held (spec.md §4.2). Re-acquiring a
// lock already held by this hart is a programming fault.
func (l *Spinlock_t) Lock() {
	pushIntrOff()
	if l.Holding() {
		klog.Fatalf("lock %s: hart %d already holding it", l.name, arch.HartID())
	}
	for !atomic.CompareAndSwapUint32(&l.locked, 0, 1) {
		// busy-wait; interrupts are already off on this hart so no
		// timer can preempt us out of the spin
	}
	atomic.StoreInt64(&l.hart, int64(arch.HartID()))
}

// Unlock releases l. Releasing a lock held by a different hart, or one not
// held at all, is a programming fault.
func (l *Spinlock_t) Unlock() {
	if !l.Holding() {
		klog.Fatalf("lock %s: unlock from hart %d, not the holder", l.name, arch.HartID())
	}
	// Clear ownership before the atomic release store, so no other hart
	// can observe the old owner once it sees the lock free (spec.md §4.2).
	atomic.StoreInt64(&l.hart, -1)
	atomic.StoreUint32(&l.locked, 0)
	popIntrOn()
}

// Weak_t is a lock handle that has released its critical section but
// remembers which lock it belonged to, so it can be re-acquired later. It
// carries no data and grants no access; see sched.Sleep for its use in the
// lost-wakeup-free sleep protocol (spec.md §4.3, design note in §9).
type Weak_t struct {
	l *Spinlock_t
}

// Weaken releases l's critical section and returns a handle that can later
// reacquire it. This is morally equivalent to Unlock followed by
// remembering the lock's identity.
func (l *Spinlock_t) Weaken() Weak_t {
	l.Unlock()
	return Weak_t{l: l}
}

// Reacquire re-locks the lock a Weak_t was derived from.
func (w Weak_t) Reacquire() *Spinlock_t {
	w.l.Lock()
	return w.l
}
