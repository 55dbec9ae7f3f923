package workflow

import (
	"github.com/rotisserie/eris"
)

var (
	// ErrRunTimeout is returned by RunHandle.Wait when the run exceeded its
	// wall-clock deadline. Partial results are discarded.
	ErrRunTimeout = eris.New("workflow: run timed out")

	// ErrBarrierMiscount indicates a fan-out/fan-in bookkeeping bug: an
	// event arrived at a barrier after it already released, or more events
	// arrived than the expected count allows. Always fatal.
	ErrBarrierMiscount = eris.New("workflow: barrier miscount")

	// ErrRunFailed is returned when a step hit an unrecoverable internal
	// error and the run had to be aborted.
	ErrRunFailed = eris.New("workflow: run failed")
)

// fatalError marks a step error that must abort the whole run rather than
// being downgraded to an error-level status event.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// fatal wraps err so the runtime aborts the run when the handler returns it.
func fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// isFatal reports whether a handler error must abort the run. Barrier
// miscounts are always fatal regardless of wrapping.
func isFatal(err error) bool {
	var fe *fatalError
	return eris.As(err, &fe) || eris.Is(err, ErrBarrierMiscount)
}
