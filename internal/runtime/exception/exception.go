// Package exception models FasterBASIC's TRY/CATCH/FINALLY contract
// (spec.md §4.4/§4.7/§9) on the host side. The ARM64 emitter compiles
// TRY to a direct `bl setjmp` against libc and THROW to a call to the
// runtime's `_fbc_rt_basic_throw` — there is no portable Go equivalent of
// a non-local jump into an arbitrary trampoline frame, so this package is
// a reference model used by its own test suite (no other package imports
// it): a per-machine stack of *Frame, with
// Throw unwinding via panic/recover rather than longjmp. The *observable*
// contract (ERR()/ERL() visible inside the matching CATCH, FINALLY run on
// every exit path) is identical either way.
package exception

// Frame is the Go-side analogue of spec.md §3's exception frame: instead
// of a setjmp register-save buffer, it is a recover point installed by a
// deferred handler.
type Frame struct {
	parent  *Frame
	errCode int32
	errLine int32
}

// thrown is the panic payload basic_throw raises; Setup's deferred
// handler recovers exactly this type and nothing else, so an unrelated
// panic (a genuine bug) still propagates instead of being swallowed.
type thrown struct {
	code int32
	line int32
}

// Machine owns the current exception-frame chain for one emitted program
// (or, in-process, one JIT invocation).
type Machine struct {
	top     *Frame
	errCode int32
	errLine int32
}

func NewMachine() *Machine { return &Machine{} }

// Setup installs a new frame and runs body, recovering a matching Throw
// panic and reporting whether one was caught — the Go-side stand-in for
// "entry block calls setjmp directly" (spec.md §4.4). caught indicates
// dispatch should run; body's return means no exception crossed this
// frame.
func (m *Machine) Setup(body func()) (caught bool) {
	f := &Frame{parent: m.top}
	m.top = f
	defer func() {
		m.top = f.parent
		if r := recover(); r != nil {
			t, ok := r.(thrown)
			if !ok {
				panic(r) // not ours; a real bug, let it propagate
			}
			m.errCode, m.errLine = t.code, t.line
			caught = true
		}
	}()
	body()
	return false
}

// Throw raises code/line, unwinding SAMM frames and exception frames up
// to the nearest Setup call on the Go stack (spec.md §9: "THROW unwinds
// SAMM frames between the THROW site and the matching CATCH"). The
// caller is responsible for popping any SAMM frames it owns via a
// deferred samm.Machine.Pop before Throw's panic unwinds past them —
// exactly the same defer-ordering Go already guarantees.
func (m *Machine) Throw(code, line int32) {
	panic(thrown{code: code, line: line})
}

// Err / Erl implement basic_err()/basic_erl(): the most recently caught
// exception's code and line, valid inside a CATCH and until the next
// THROW.
func (m *Machine) Err() int32 { return m.errCode }
func (m *Machine) Erl() int32 { return m.errLine }

// Matches reports whether a CATCH arm with the given code filter (nil
// meaning catch-all) should handle the currently caught exception.
func Matches(filter *int32, caughtCode int32) bool {
	return filter == nil || *filter == caughtCode
}
