package render

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
)

// Error kinds. Every fatal engine error matches exactly one of these with
// errors.Is. Surface staleness is never an error, see Status.
var (
	ErrResourceCreation = errors.New("resource creation failed")
	ErrRecording        = errors.New("command recording failed")
	ErrSubmission       = errors.New("submission failed")
	ErrDeviceLost       = errors.New("device lost")
)

// ErrTimeout is returned by Fence.Wait when the timeout expires.
var ErrTimeout = errors.New("wait timed out")

// Error carries the kind of a fatal failure, the operation that hit it and
// where it was raised.
type Error struct {
	Kind error
	Op   string
	Err  error

	frame stackFrame
}

// NewError wraps err as a fatal error of the given kind. It returns nil when
// err is nil.
func NewError(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	e := &Error{Kind: kind, Op: op, Err: err}
	if pc, _, _, ok := runtime.Caller(1); ok {
		e.frame = newStackFrame(pc)
	}
	return e
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s: %v", e.Op, e.Kind)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	if e.frame.function != "" {
		s += " on " + e.frame.String()
	}
	return s
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// KindOf returns the kind of err, or nil if err is not an engine error.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}

// CheckError recovers a panic raised below it and stores it in err.
// Use it deferred.
func CheckError(err *error) {
	if v := recover(); v != nil {
		if e, ok := v.(error); ok {
			*err = fmt.Errorf("recovered: %w", e)
			return
		}
		*err = fmt.Errorf("recovered: %+v", v)
	}
}

type stackFrame struct {
	function string
	file     string
	line     int
}

func newStackFrame(pc uintptr) stackFrame {
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return stackFrame{}
	}
	file, line := fn.FileLine(pc)
	return stackFrame{function: fn.Name(), file: file, line: line}
}

func (f stackFrame) String() string {
	return fmt.Sprintf("%s (%s:%d)", f.function, filepath.Base(f.file), f.line)
}
