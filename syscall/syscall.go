// Package syscall provides the ECALL dispatch glue: argument extraction
// from a trap frame's a0..a5/a7 and result/PC-advance write-back. The
// syscall table itself — the bodies behind each number — is an external
// collaborator per spec.md §1; this package only implements the contract
// those bodies are called through.
//
// Grounded on spec.md §4.7 and rust teacher trap.rs's
// `UserEnvCall => syscall_handler()` dispatch arm.
package syscall

import "sv39os/trapframe"

// Handler is the body of one syscall number: given its six argument
// registers, return a result to place in a0 (spec.md §4.7: "no syscall
// body may touch another thread's trap frame").
type Handler func(args [6]uint64) uint64

// Table maps syscall numbers to their handler. Populated by an external
// collaborator during bring-up; empty by default.
var Table = map[uint64]Handler{}

// Dispatch reads the syscall number and arguments out of tf, looks up
// and runs the matching Handler, writes its result back into a0, and
// advances tf past the ECALL instruction. Returns false if no handler is
// registered for the syscall number.
func Dispatch(tf *trapframe.TrapFrame) bool {
	h, ok := Table[tf.SyscallNum()]
	if !ok {
		return false
	}
	var args [6]uint64
	for i := range args {
		args[i] = tf.Arg(i)
	}
	tf.SetA0(h(args))
	tf.AdvancePastECALL()
	return true
}
