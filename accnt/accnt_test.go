package accnt_test

import (
	"testing"

	"rvcore/accnt"
)

func TestSchedChargesElapsedTicksToSystemTime(t *testing.T) {
	var a accnt.Accnt_t
	var s accnt.Sched_t

	s.StartRunning()
	s.StopRunning(&a)

	userns, sysns := a.Snapshot()
	if userns != 0 {
		t.Fatalf("userns = %d, want 0 (core charges everything to sysns)", userns)
	}
	if sysns < 0 {
		t.Fatalf("sysns = %d, want >= 0", sysns)
	}
}

func TestAddMergesCounters(t *testing.T) {
	var total accnt.Accnt_t
	var a, b accnt.Accnt_t
	a.Utadd(5)
	a.Systadd(7)
	b.Utadd(3)
	b.Systadd(1)

	total.Add(&a)
	total.Add(&b)

	userns, sysns := total.Snapshot()
	if userns != 8 {
		t.Fatalf("userns = %d, want 8", userns)
	}
	if sysns != 8 {
		t.Fatalf("sysns = %d, want 8", sysns)
	}
}
