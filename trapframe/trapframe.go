// Package trapframe defines the fixed-layout trap frame and task context
// structures addressed by the entry/exit assembly trampolines, and the
// __switch calling contract between them.
//
// Grounded on spec.md §4.4/§6 (bit-exact layout: 31 GPRs + sstatus + sepc
// for the trap frame; callee-saved regs + ra + sp for the task context)
// and rust teacher arch/riscv/trap.rs (handle_trap's cause dispatch,
// ret_to_restore's new-thread return-address patch). The assembly
// trampolines themselves are board bring-up and out of scope per spec.md
// §1; EntryTrampoline/ExitTrampoline/Switch are hook contracts in the
// same style as pagetable.WriteSATP.
package trapframe

// TrapFrame is the fixed-layout register snapshot saved on entry to
// supervisor-mode exception/interrupt handling: x1..x31 (x0 is always
// zero and omitted), sstatus, and sepc. Field order is load-bearing — the
// assembly trampoline addresses these by offset.
type TrapFrame struct {
	X      [31]uint64 // x1 (ra) .. x31 (t6)
	Sstatus uint64
	Sepc    uint64
}

// Sv39 GPR indices into TrapFrame.X, named the way the ISA manual and the
// assembly trampoline refer to them (x1 is index 0 here since x0 is
// omitted).
const (
	RegRA = iota // x1
	RegSP        // x2
	RegGP        // x3
	RegTP        // x4
	_            // x5 t0
	_            // x6 t1
	_            // x7 t2
	RegS0        // x8
	RegS1        // x9
	RegA0        // x10
	RegA1        // x11
	RegA2        // x12
	RegA3        // x13
	RegA4        // x14
	RegA5        // x15
)

// A0 returns the first syscall argument / return-value register.
func (tf *TrapFrame) A0() uint64 { return tf.X[RegA0] }

// SetA0 sets the return-value register; syscall.Dispatch writes each
// handler's result through it. No fork path in this module calls it:
// proc.Process.Fork copies no trap frame.
func (tf *TrapFrame) SetA0(v uint64) { tf.X[RegA0] = v }

// Arg returns syscall argument i (0-indexed a0..a5), spec.md §4.7.
func (tf *TrapFrame) Arg(i int) uint64 { return tf.X[RegA0+i] }

// SyscallNum returns a7, the syscall number register, spec.md §4.7.
func (tf *TrapFrame) SyscallNum() uint64 { return tf.X[RegA0+7] }

// AdvancePastECALL increments the saved PC past the 4-byte ECALL
// instruction so __restore resumes execution after it, spec.md §4.7.
func (tf *TrapFrame) AdvancePastECALL() { tf.Sepc += 4 }

// Init resets a fresh user thread's trap frame to zero and sets the user
// stack pointer, entry PC, and sstatus. It places no argv words; callers
// needing argument registers write them directly. Grounded on
// rust Thread::new_thread's `cx.init(sp, entry_point, args, true)`.
func (tf *TrapFrame) Init(sp, entry, sstatusSPIE uint64) {
	*tf = TrapFrame{}
	tf.X[RegSP] = sp
	tf.Sepc = entry
	tf.Sstatus = sstatusSPIE
}

// TaskContext captures the callee-saved registers, return address, and
// stack pointer exchanged by Switch — the voluntary-context-switch half
// of spec.md §4.4, as opposed to TrapFrame's involuntary-trap half.
type TaskContext struct {
	RA uint64
	SP uint64
	S  [12]uint64 // s0..s11
}

// SetReturn points a fresh task context's return address at fn, so the
// first Switch into it begins execution there with the calling
// convention of an ordinary function call. Used both for a new kernel
// thread's entry function and — set to the exit trampoline's address —
// for a new user thread's bootstrap (spec.md §4.4.1).
func (tc *TaskContext) SetReturn(fn, sp uint64) {
	tc.RA = fn
	tc.SP = sp
}

// Switch is the board hook implementing __switch(&mut current, next):
// save the running thread's callee-saved registers into current, restore
// next's, and return into whatever next.RA points at. nil in tests; a
// real implementation is hand-written assembly (spec.md §4.4) since Go
// cannot express "return into an arbitrary caller-chosen frame" directly.
var Switch func(current, next *TaskContext)

// EntryTrampoline is the board hook for the user/kernel trap entry path:
// swap onto the current thread's kernel stack (derived by SP-masking,
// see package kstack), push a TrapFrame, and call into the high-level
// handler. nil in tests.
var EntryTrampoline func()

// ExitTrampoline is the board hook for the trap exit path: restore a
// TrapFrame and return to the mode (user or supervisor) it describes.
// Every freshly bootstrapped user thread's TaskContext.RA points here
// (spec.md §4.4.1). nil in tests.
var ExitTrampoline func()
