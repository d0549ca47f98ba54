package klog

import "testing"

func TestFatalfPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected Fatalf to panic")
		}
	}()
	Fatalf("boom %d", 1)
}

func TestAssertPassesWhenTrue(t *testing.T) {
	defer func() {
		if recover() != nil {
			t.Fatalf("Assert(true, ...) should not panic")
		}
	}()
	Assert(true, "unreachable")
}

func TestAssertPanicsWhenFalse(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected Assert(false, ...) to panic")
		}
	}()
	Assert(false, "invariant violated")
}
