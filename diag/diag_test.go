package diag

import (
	"strings"
	"testing"
)

func TestLevelString(t *testing.T) {
	cases := map[Level]string{Error: "ERROR", Warn: "WARN", Info: "INFO", Debug: "DEBUG", Trace: "TRACE"}
	for lvl, want := range cases {
		if got := lvl.String(); got != want {
			t.Fatalf("%v.String(): got %q, want %q", int(lvl), got, want)
		}
	}
}

func TestLogRespectsThreshold(t *testing.T) {
	var lines []string
	old := Write
	Write = func(s string) { lines = append(lines, s) }
	oldThreshold := Threshold
	defer func() { Write = old; Threshold = oldThreshold }()

	Threshold = Warn
	Log(Info, "should be dropped")
	Log(Error, "boot ok")

	if len(lines) != 1 {
		t.Fatalf("expected exactly one line logged at/above Threshold: got %v", lines)
	}
	if !strings.Contains(lines[0], "boot ok") {
		t.Fatalf("logged line should contain the message: got %q", lines[0])
	}
	if !strings.HasPrefix(lines[0], "[ERROR]") {
		t.Fatalf("logged line should be prefixed with its level: got %q", lines[0])
	}
}

func TestDecodeFaultValidInstruction(t *testing.T) {
	// addi x0, x0, 0 (a RV64I nop), little-endian encoding 0x00000013.
	nop := []byte{0x13, 0x00, 0x00, 0x00}
	got := DecodeFault(0x80001000, nop)
	if !strings.Contains(got, "0x80001000") {
		t.Fatalf("DecodeFault should report the sepc: got %q", got)
	}
	if strings.Contains(got, "undecodable") {
		t.Fatalf("a valid instruction should decode: got %q", got)
	}
}

func TestDecodeFaultInvalidInstruction(t *testing.T) {
	got := DecodeFault(0x1000, []byte{0xff, 0xff, 0xff, 0xff})
	if !strings.Contains(got, "undecodable") {
		t.Fatalf("garbage bytes should report undecodable: got %q", got)
	}
}

func TestPanicLogsThenPanics(t *testing.T) {
	var lines []string
	old := Write
	Write = func(s string) { lines = append(lines, s) }
	defer func() { Write = old }()

	defer func() {
		if recover() == nil {
			t.Fatalf("Panic should panic")
		}
		if len(lines) != 1 || !strings.Contains(lines[0], "boom") {
			t.Fatalf("Panic should log before panicking: got %v", lines)
		}
	}()
	Panic("TestPanicLogsThenPanics", "boom")
}
