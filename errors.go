package spindle

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// SpindleError is the error type returned by every package in this module. It
// can be extended with a more specific message or wrap an underlying cause
// while still matching its sentinel with errors.Is.
type SpindleError interface {
	error
	WithMessage(message string) SpindleError
	Wrap(err error) SpindleError
}

type baseSpindleError string

const rootError = baseSpindleError("")

// ErrDiskFull is returned when the allocator runs out of tracks.
var ErrDiskFull = rootError.WithMessage("Disk full")

// ErrBlankJob is returned when a chain is finalized without any payload.
var ErrBlankJob = rootError.WithMessage("Blank job not allowed")

// ErrInternal marks invariant violations. These are bugs, not user errors.
var ErrInternal = rootError.WithMessage("Internal error")

var ErrInvalidArgument = rootError.WithMessage("Invalid argument")
var ErrIOFailed = rootError.WithMessage("Input/output error")
var ErrInvalidScript = rootError.WithMessage("Invalid script")
var ErrInvalidRuntime = rootError.WithMessage("Invalid runtime code")

func (e baseSpindleError) Error() string {
	return string(e)
}

func (e baseSpindleError) WithMessage(message string) SpindleError {
	return customSpindleError{
		message:       message,
		originalError: e,
	}
}

func (e baseSpindleError) Wrap(err error) SpindleError {
	return customSpindleError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

// -----------------------------------------------------------------------------

type customSpindleError struct {
	message       string
	originalError error
}

// Error implements the `error` object interface. When called, it returns a string
// describing the error.
func (e customSpindleError) Error() string {
	return e.message
}

func (e customSpindleError) WithMessage(message string) SpindleError {
	return customSpindleError{
		message:       fmt.Sprintf("%s: %s", e.message, message),
		originalError: e,
	}
}

func (e customSpindleError) Wrap(err error) SpindleError {
	return customSpindleError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

func (e customSpindleError) Unwrap() error {
	return e.originalError
}

// Internalf panics with an ErrInternal carrying the formatted message. It is
// used for invariant violations that leave the image with no valid meaning.
func Internalf(format string, args ...any) {
	panic(ErrInternal.WithMessage(fmt.Sprintf(format, args...)))
}
