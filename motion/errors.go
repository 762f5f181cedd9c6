// Package motion holds the types and error kinds shared by every stage of
// the g2motion pipeline: planner, exec, stepper, feedhold and dwell.
package motion

import "fmt"

// Recoverable conditions. These are ordinary control-flow values; callers
// test them with errors.Is and keep running.
var (
	// ErrMinimumLengthMove is returned by ALine when the requested move is
	// shorter than the minimum resolvable length. The buffer is not
	// committed and position is not advanced.
	ErrMinimumLengthMove = fmt.Errorf("motion: minimum length move")
	// ErrZeroLengthMove is returned by PrepLine when segment_time is
	// non-finite or below epsilon. The segment is dropped, not emitted.
	ErrZeroLengthMove = fmt.Errorf("motion: zero length move")
	// ErrNoop indicates a call had nothing to do (e.g. load/exec while on hold).
	ErrNoop = fmt.Errorf("motion: noop")
	// ErrAgain indicates the caller should retry later (no work ready yet).
	ErrAgain = fmt.Errorf("motion: again")
	// ErrWrongMoveType indicates a SegmentRunner was handed a buffer of a
	// Kind it does not implement (e.g. dwell.Runner given an ALine).
	ErrWrongMoveType = fmt.Errorf("motion: wrong move type for runner")
)

// FaultCode identifies a PANIC-disposition condition (spec.md §7). Unlike
// the recoverable errors above, a Fault always means the caller violated a
// contract the core requires upstream to uphold, or an internal invariant
// was found broken.
type FaultCode int

const (
	// FaultBufferFull fires when aline is called with no EMPTY buffer
	// available. Upstream must gate writes on ring fullness; seeing this
	// means that gate was not honored.
	FaultBufferFull FaultCode = iota
	// FaultGetPlannerBuffer fires when dwell/command need a buffer and the
	// ring is full.
	FaultGetPlannerBuffer
	// FaultAssertion fires when a planner invariant is found violated:
	// aline computing a non-positive move time, or exec deriving a
	// segment shorter than the minimum segment time.
	FaultAssertion
	// FaultInternal fires on an internal wiring error: queue_command given
	// a nil callback, or exec finding the prep slot not owned by exec.
	FaultInternal
)

func (c FaultCode) String() string {
	switch c {
	case FaultBufferFull:
		return "BUFFER_FULL_FATAL"
	case FaultGetPlannerBuffer:
		return "FAILED_GET_PLANNER_BUFFER"
	case FaultAssertion:
		return "PLANNER_ASSERTION_FAILURE"
	case FaultInternal:
		return "INTERNAL_ERROR"
	default:
		return "UNKNOWN_FAULT"
	}
}

// Fault is the panic value raised for PANIC-disposition errors. The runtime
// package is the only place that should recover from it: it logs the fault
// and halts motion, mirroring the firmware's "freeze and await reset"
// behavior.
type Fault struct {
	Code    FaultCode
	Context string
}

func (f Fault) Error() string {
	return fmt.Sprintf("%s: %s", f.Code, f.Context)
}

// Panic raises a Fault with the given code and formatted context.
func Panic(code FaultCode, format string, args ...any) {
	panic(Fault{Code: code, Context: fmt.Sprintf(format, args...)})
}
