package tracker

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

type Kind int

const (
	KindValidation Kind = iota + 1
	KindBackend
	KindTimeout
	KindGeolocation
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindBackend:
		return "backend"
	case KindTimeout:
		return "timeout"
	case KindGeolocation:
		return "geolocation"
	default:
		return "unknown"
	}
}

var (
	ErrCheckoutInProgress = errors.New("checkout already in progress")
	ErrCheckinInProgress  = errors.New("check-in already in progress")
	ErrNotCheckedIn       = errors.New("not checked in")
	ErrAlreadyCheckedIn   = errors.New("already checked in")
	ErrUnauthenticated    = errors.New("not authenticated")
	ErrInvalidOdometer    = errors.New("odometer reading must be a non-negative number")
	ErrInvalidLocation    = errors.New("latitude/longitude out of range")
	ErrTimedOut           = errors.New("operation timed out")
	ErrSamplerStopped     = errors.New("sampler stopped")
	ErrPermissionDenied   = errors.New("location permission denied")
	ErrSuppressed         = errors.New("automatic sampling suppressed")
)

// Error is what every tracker operation returns on failure.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: msg, Err: err}
}

// KindOf returns 0 for errors that did not come from the tracker.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return 0
}

func IsTimeout(err error) bool { return KindOf(err) == KindTimeout }

// classify turns a gateway failure into a tracker error.
func classify(op string, err error) *Error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	switch {
	case errors.Is(err, ErrTimedOut), errors.Is(err, context.DeadlineExceeded):
		return timeoutError(op, err)
	case errors.Is(err, ErrInvalid):
		return newError(KindValidation, op, "rejected by server", err)
	case errors.Is(err, ErrConflict):
		return newError(KindBackend, op, "conflicting state on server", err)
	case errors.Is(err, ErrNotFound):
		return newError(KindBackend, op, "record not found", err)
	default:
		return newError(KindBackend, op, "backend request failed", err)
	}
}

func timeoutError(op string, err error) *Error {
	return newError(KindTimeout, op,
		"timed out waiting for the server; the action may have succeeded, check status before retrying", err)
}
