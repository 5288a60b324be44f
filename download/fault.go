package download

import (
	"fmt"
	"net/http"
)

// FaultKind classifies an interrupted download attempt.
type FaultKind int

const (
	// FaultStatus is an HTTP status other than the ones a download can proceed with.
	FaultStatus FaultKind = iota
	// FaultTransport is a connection error or read timeout.
	FaultTransport
	// FaultEarlyClose is a body that ended cleanly before the known total size.
	FaultEarlyClose
)

func (k FaultKind) String() string {
	switch k {
	case FaultStatus:
		return "status"
	case FaultTransport:
		return "transport"
	case FaultEarlyClose:
		return "early_close"
	default:
		return "unknown"
	}
}

// Fault is a recoverable failure of a single download attempt.
type Fault struct {
	Kind       FaultKind
	StatusCode int
	Err        error
}

func (f *Fault) Error() string {
	switch {
	case f.Kind == FaultStatus && f.Err != nil:
		return fmt.Sprintf("HTTP %d: %v", f.StatusCode, f.Err)
	case f.Kind == FaultStatus:
		return fmt.Sprintf("HTTP %d %s", f.StatusCode, http.StatusText(f.StatusCode))
	case f.Err != nil:
		return fmt.Sprintf("%s: %v", f.Kind, f.Err)
	default:
		return f.Kind.String()
	}
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// FaultLimitError is returned when a download hit MaxConsecutiveFaults faults
// in a row without writing any byte.
//
// Use errors.Is(err, ErrTooManyFaults) to detect it, or errors.As to inspect
// the last fault.
type FaultLimitError struct {
	URL    string
	Faults int
	Last   *Fault
}

func (e *FaultLimitError) Error() string {
	return fmt.Sprintf("%s after %d consecutive faults, last: %v", ErrTooManyFaults, e.Faults, e.Last)
}

func (e *FaultLimitError) Is(target error) bool {
	return target == ErrTooManyFaults
}

func (e *FaultLimitError) Unwrap() error {
	return e.Last
}
