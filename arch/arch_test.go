package arch

import "testing"

func TestDisasmDecodesNop(t *testing.T) {
	// addi x0, x0, 0 (the canonical RISC-V nop), little-endian.
	got := Disasm([]byte{0x13, 0x00, 0x00, 0x00})
	if got == "" {
		t.Fatalf("expected a non-empty disassembly")
	}
}

func TestDisasmReportsBadInstruction(t *testing.T) {
	got := Disasm([]byte{0xff, 0xff, 0xff, 0xff})
	if got == "" {
		t.Fatalf("expected a non-empty error string for an undecodable instruction")
	}
}

func TestIntrOnEnablesInterrupts(t *testing.T) {
	SetSimHart(1)
	defer SetSimHart(-1)

	IntrOn()
	if !IntrGet() {
		t.Fatalf("expected interrupts enabled")
	}
}

func TestTimeIsMonotonic(t *testing.T) {
	a := Time()
	b := Time()
	if b <= a {
		t.Fatalf("Time() not monotonically increasing: %d then %d", a, b)
	}
}
