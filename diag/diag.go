// Package diag provides leveled console logging and fault diagnostics:
// decoding the faulting instruction at a trapped sepc so a panic message
// names what actually executed, not just its address.
//
// Grounded on rust teacher src/logger.rs (Level enum, per-level
// print macros gated by a compile-time log level) and teacher
// biscuit/src/caller/caller.go (Callerdump's call-stack-on-panic idiom,
// adapted here to a decoded-instruction dump instead of a Go call
// stack, since a kernel panic wants to know what RISC-V instruction
// faulted). Library golang.org/x/arch/riscv64/riscv64asm decodes the
// raw instruction bytes — see SPEC_FULL.md's Domain Stack section.
package diag

import (
	"fmt"

	"golang.org/x/arch/riscv64/riscv64asm"
)

// Level is a logging verbosity level, bit-exact in ordering with rust
// src/logger.rs's Level enum (most to least severe).
type Level int

const (
	Error Level = iota
	Warn
	Info
	Debug
	Trace
)

func (l Level) String() string {
	switch l {
	case Error:
		return "ERROR"
	case Warn:
		return "WARN"
	case Info:
		return "INFO"
	case Debug:
		return "DEBUG"
	case Trace:
		return "TRACE"
	default:
		return "?"
	}
}

// Threshold is the minimum level that is actually printed; levels more
// verbose than Threshold are dropped. Grounded on rust's compile-time
// log-level feature gates, made a runtime variable here since this
// module has no build-tag equivalent of its own.
var Threshold = Info

// Write is the console output hook a board may replace with a real UART
// writer (package board's Install does not set it); defaults to
// fmt.Println's stdout target so logging works unmodified under `go test`.
var Write = func(s string) { fmt.Println(s) }

// Log prints msg at level lvl if lvl is at or above Threshold severity.
func Log(lvl Level, format string, args ...any) {
	if lvl > Threshold {
		return
	}
	Write(fmt.Sprintf("[%s] %s", lvl, fmt.Sprintf(format, args...)))
}

// DecodeFault decodes the 2-or-4-byte RISC-V instruction at the
// faulting sepc from the raw bytes the fault handler read out of the
// thread's address space, for inclusion in a thread-fatal-fault log
// line (package pagefault). Returns the instruction's disassembly, or an
// error string if the bytes did not decode to a valid instruction.
func DecodeFault(sepc uint64, code []byte) string {
	inst, err := riscv64asm.Decode(code)
	if err != nil {
		return fmt.Sprintf("sepc=%#x <undecodable: %v>", sepc, err)
	}
	return fmt.Sprintf("sepc=%#x %s", sepc, inst.String())
}

// Panic logs msg at Error level with a location prefix and panics,
// mirroring the rust panic_handler's "print location, then halt" shape
// (halting the hart is board bring-up and out of scope; panic achieves
// the equivalent "this hart makes no further progress" outcome in a
// hosted Go process).
func Panic(where, msg string) {
	Log(Error, "panic at %s: %s", where, msg)
	panic(msg)
}
