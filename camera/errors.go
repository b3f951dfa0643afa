package camera

import (
	"errors"
	"fmt"
)

var (
	// ErrEnumeration is generated when the runtime cannot list interfaces or devices
	ErrEnumeration = errors.New("enumeration failed")

	// ErrDeviceBusy is generated when a device is already held by another session
	ErrDeviceBusy = errors.New("device busy")

	// ErrParameter is generated for unknown parameter names or invalid values
	ErrParameter = errors.New("invalid parameter")

	// ErrInvalidState is generated when an operation is invoked outside the
	// session state it is valid in
	ErrInvalidState = errors.New("invalid state")

	// ErrTimeout is generated when no frame arrives within the requested time
	ErrTimeout = errors.New("timed out")
)

// StatusCoder is implemented by runtime errors that carry a numeric vendor status
type StatusCoder interface {
	StatusCode() uint32
}

// StatusCode extracts the vendor status code from anywhere in err's chain
func StatusCode(err error) (uint32, bool) {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode(), true
	}
	return 0, false
}

// OpError records the failed operation, the class of failure, and the
// underlying runtime error
type OpError struct {
	// Op names the operation, e.g. "open device"
	Op string

	// Kind is one of the Err* sentinels, or nil
	Kind error

	// Err is the error returned by the runtime, or nil
	Err error
}

func (e *OpError) Error() string {
	switch {
	case e.Err != nil && e.Kind != nil && !errors.Is(e.Err, e.Kind):
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Kind != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return e.Op + ": failed"
}

// Unwrap allows errors.Is and errors.As to see both the kind and the cause
func (e *OpError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// TransportWarning is a non-fatal transport problem, such as a failure to
// negotiate the stream packet size.  Acquisition continues with defaults.
type TransportWarning struct {
	Op  string
	Err error
}

func (w *TransportWarning) Error() string {
	return fmt.Sprintf("warning: %s: %v", w.Op, w.Err)
}

// Unwrap returns the underlying error
func (w *TransportWarning) Unwrap() error {
	return w.Err
}

// opErr wraps a runtime error, keeping its own kind if it has one
func opErr(op string, kind error, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Kind: kind, Err: err}
}

// IsWarning returns true if err is only a TransportWarning
func IsWarning(err error) bool {
	var w *TransportWarning
	return errors.As(err, &w)
}
