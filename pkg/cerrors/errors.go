// Package cerrors implements the three error kinds that cross an action
// boundary in Cedar Backup: configuration/usage errors, I/O errors, and
// per-file value errors. Each kind wraps an underlying error with
// go-errors/errors so a top-level handler can print a stack trace, and
// exposes a Kind for classification the way the teacher's ComplexError
// carries a Code.
package cerrors

import (
	"fmt"
	"runtime"

	goerrors "github.com/go-errors/errors"
	"golang.org/x/xerrors"
)

// Kind classifies a Cedar Backup error for the purposes of the action
// engine's retry/ignore policy.
type Kind int

const (
	// KindConfig marks invalid argument / usage-order / malformed-config
	// errors. Always fatal to the current action; never retried.
	KindConfig Kind = iota
	// KindIO marks filesystem, external-command, media, and indicator
	// failures. Some of these are locally recovered by the caller (unmount
	// retry, eject retry, ignoreFailureMode); the rest propagate.
	KindIO
	// KindValue marks per-file errors encountered while building a list or
	// writing a tarfile.
	KindValue
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindIO:
		return "io"
	case KindValue:
		return "value"
	default:
		return "unknown"
	}
}

// CedarError is the common shape of every error this package produces. It
// carries a Kind, a message, and a captured stack (via go-errors) for
// top-level reporting.
type CedarError struct {
	kind    Kind
	message string
	frame   xerrors.Frame
	wrapped *goerrors.Error
}

func newError(kind Kind, wrapped error, message string) *CedarError {
	return &CedarError{
		kind:    kind,
		message: message,
		frame:   xerrors.Caller(2),
		wrapped: goerrors.Wrap(wrapped, 1),
	}
}

// Config builds a KindConfig error from a message.
func Config(format string, args ...interface{}) *CedarError {
	return newError(KindConfig, fmt.Errorf(format, args...), fmt.Sprintf(format, args...))
}

// IO builds a KindIO error from a message.
func IO(format string, args ...interface{}) *CedarError {
	return newError(KindIO, fmt.Errorf(format, args...), fmt.Sprintf(format, args...))
}

// Value builds a KindValue error from a message.
func Value(format string, args ...interface{}) *CedarError {
	return newError(KindValue, fmt.Errorf(format, args...), fmt.Sprintf(format, args...))
}

// WrapConfig wraps an existing error as a KindConfig error, mirroring the
// teacher's WrapError except with classification attached. Returns nil for
// a nil input, matching the teacher's nil-safety note.
func WrapConfig(err error, message string) error {
	if err == nil {
		return nil
	}
	return newError(KindConfig, err, message+": "+err.Error())
}

// WrapIO wraps an existing error as a KindIO error.
func WrapIO(err error, message string) error {
	if err == nil {
		return nil
	}
	return newError(KindIO, err, message+": "+err.Error())
}

// WrapValue wraps an existing error as a KindValue error.
func WrapValue(err error, message string) error {
	if err == nil {
		return nil
	}
	return newError(KindValue, err, message+": "+err.Error())
}

func (e *CedarError) Error() string { return e.message }

// Unwrap exposes the wrapped cause so errors.Is/errors.As keep working
// across this boundary.
func (e *CedarError) Unwrap() error {
	if e.wrapped == nil {
		return nil
	}
	return e.wrapped.Err
}

// Kind reports the error's classification.
func (e *CedarError) Kind() Kind { return e.kind }

// FormatError implements xerrors.Formatter so %+v prints a stack trace.
func (e *CedarError) FormatError(p xerrors.Printer) error {
	p.Printf("[%s] %s", e.kind, e.message)
	e.frame.Format(p)
	return e.Unwrap()
}

func (e *CedarError) Format(f fmt.State, c rune) {
	xerrors.FormatError(e, f, c)
}

// StackTrace returns the captured go-errors stack trace for top-level
// logging, matching the teacher's `newErr.ErrorStack()` usage in main.go.
func (e *CedarError) StackTrace() string {
	if e.wrapped == nil {
		return ""
	}
	return e.wrapped.ErrorStack()
}

// Is reports whether err is a CedarError of the given kind.
func Is(err error, kind Kind) bool {
	var ce *CedarError
	if xerrors.As(err, &ce) {
		return ce.kind == kind
	}
	return false
}

// Snapshot is a best-effort diagnostic capture attached to a fatal
// top-level error for bug reports, grounded on the original
// implementation's Diagnostics class and the teacher's build-info
// stamping in main.go.
type Snapshot struct {
	GoVersion string
	GOOS      string
	GOARCH    string
	ToolPaths map[string]string
}

// NewSnapshot captures the current runtime facts and the resolved
// external tool paths known at the time of the failure.
func NewSnapshot(toolPaths map[string]string) Snapshot {
	paths := make(map[string]string, len(toolPaths))
	for k, v := range toolPaths {
		paths[k] = v
	}
	return Snapshot{
		GoVersion: runtime.Version(),
		GOOS:      runtime.GOOS,
		GOARCH:    runtime.GOARCH,
		ToolPaths: paths,
	}
}

func (s Snapshot) String() string {
	return fmt.Sprintf("go=%s os=%s arch=%s tools=%v", s.GoVersion, s.GOOS, s.GOARCH, s.ToolPaths)
}
