package common

import "errors"

// ErrBusy is returned when a mutating entry point is invoked while another one
// is still executing, i.e. from a reentrant call issued by an external
// collaborator.
var ErrBusy = errors.New("common: engine busy")

// Guard is a process-wide busy flag serialising the mutating entry points of a
// single engine instance. The execution model is single-threaded and
// cooperative: the flag does not protect against parallel goroutines, it
// rejects reentrant invocations that arrive while control is suspended inside
// an external token or venue call.
type Guard struct {
	busy bool
}

// Acquire engages the guard. It fails with ErrBusy when already engaged.
func (g *Guard) Acquire() error {
	if g.busy {
		return ErrBusy
	}
	g.busy = true
	return nil
}

// Release disengages the guard. Callers must release on every exit path,
// typically via defer immediately after a successful Acquire.
func (g *Guard) Release() {
	g.busy = false
}

// Engaged reports whether the guard is currently held.
func (g *Guard) Engaged() bool {
	return g.busy
}
