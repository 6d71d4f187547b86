package sandbox

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnavailable means the bridge is not installed. Retry installation.
	ErrUnavailable = errors.New("sandbox bridge is not available")
	// ErrDisposed means the runtime or context was disposed.
	ErrDisposed = errors.New("sandbox is disposed")
	// ErrTimeout means an evaluation exceeded the runtime's budget.
	ErrTimeout = errors.New("sandbox execution timeout exceeded")
	// ErrEval means the script threw.
	ErrEval = errors.New("sandbox script threw")
	// ErrMarshal means a value could not cross the boundary.
	ErrMarshal = errors.New("sandbox value cannot be marshalled")
	// ErrInstall means discovery or activation of the bridge failed.
	ErrInstall = errors.New("sandbox bridge installation failed")
)

// DisposedError reports an operation on a disposed runtime or context.
type DisposedError struct {
	Kind string // "runtime", "context" or "function"
	ID   string
}

func (e *DisposedError) Error() string {
	return fmt.Sprintf("%s %s is disposed", e.Kind, e.ID)
}

func (e *DisposedError) Is(target error) bool { return target == ErrDisposed }

// TimeoutError reports an evaluation aborted by the watchdog.
type TimeoutError struct {
	Timeout time.Duration
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("execution timeout exceeded (limit: %v, elapsed: %v)", e.Timeout, e.Elapsed.Round(time.Millisecond))
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// EvalError carries the value thrown inside the sandbox.
type EvalError struct {
	Value   Value  // thrown value, marshalled
	Message string // human-readable message, e.g. "Error: test"
	Stack   string // engine stack trace, when available
}

func (e *EvalError) Error() string {
	return e.Message
}

func (e *EvalError) Is(target error) bool { return target == ErrEval }

// MarshalError reports a value that cannot cross the boundary.
type MarshalError struct {
	Path   string // location inside the value, "$" is the root
	Reason string
}

func (e *MarshalError) Error() string {
	return fmt.Sprintf("cannot marshal %s: %s", e.Path, e.Reason)
}

func (e *MarshalError) Is(target error) bool { return target == ErrMarshal }

// InstallError reports a failed installation attempt. The handshake
// absorbs it into a false result; it only surfaces in logs.
type InstallError struct {
	Source string // discovery source that produced the module, if any
	Cause  error
}

func (e *InstallError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("install failed: %v", e.Cause)
	}
	return fmt.Sprintf("install via %s failed: %v", e.Source, e.Cause)
}

func (e *InstallError) Unwrap() error { return e.Cause }

func (e *InstallError) Is(target error) bool { return target == ErrInstall }
