package engine

import (
	"errors"
	"fmt"
)

// loadFailureError reports that a model or its context could not be created.
// The handle is left unloaded.
type loadFailureError struct {
	path  string
	stage string
	err   error
}

func (e loadFailureError) Error() string {
	return fmt.Sprintf("load %s (%s): %v", e.path, e.stage, e.err)
}

func (e loadFailureError) Unwrap() error { return e.err }

// IsLoadFailure reports whether err came from a failed Load.
func IsLoadFailure(err error) bool {
	var e loadFailureError
	return errors.As(err, &e)
}

// decodeFailureError reports that the engine rejected a batch.
type decodeFailureError struct {
	pos int
	n   int
	err error
}

func (e decodeFailureError) Error() string {
	return fmt.Sprintf("decode %d tokens at pos %d: %v", e.n, e.pos, e.err)
}

func (e decodeFailureError) Unwrap() error { return e.err }

// IsDecodeFailure reports whether err came from a rejected batch.
func IsDecodeFailure(err error) bool {
	var e decodeFailureError
	return errors.As(err, &e)
}

// noModelLoadedError is returned by any call that needs a loaded model.
type noModelLoadedError struct{ op string }

func (e noModelLoadedError) Error() string { return e.op + ": no model loaded" }

// ErrNoModelLoaded constructs a noModelLoadedError for op.
func ErrNoModelLoaded(op string) error { return noModelLoadedError{op: op} }

// IsNoModelLoaded reports whether err indicates an empty handle.
func IsNoModelLoaded(err error) bool {
	var e noModelLoadedError
	return errors.As(err, &e)
}

// busyError is returned when the handle is reserved by a running session.
type busyError struct{ op string }

func (e busyError) Error() string { return e.op + ": generation in progress" }

// ErrBusy constructs a busyError for op.
func ErrBusy(op string) error { return busyError{op: op} }

// IsBusy reports whether err was caused by a running session.
func IsBusy(err error) bool {
	var e busyError
	return errors.As(err, &e)
}

// dependencyUnavailableError signals that the inference library is not part
// of this build.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing runtime dependency.
func IsDependencyUnavailable(err error) bool {
	var e dependencyUnavailableError
	return errors.As(err, &e)
}
