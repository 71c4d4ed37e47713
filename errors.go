package unidrc

import (
	"errors"
	"fmt"

	"github.com/llehouerou/go-unidrc/internal/gain"
	"github.com/llehouerou/go-unidrc/internal/selection"
	"github.com/llehouerou/go-unidrc/internal/syntax"
)

// Error is a DRC decoder error code.
type Error int

// Error codes.
const (
	ErrNone                Error = 0
	ErrNotOK               Error = 1
	ErrOutOfMemory         Error = 2
	ErrNotOpened           Error = 3
	ErrNotReady            Error = 4
	ErrParamOutOfRange     Error = 5
	ErrInvalidParam        Error = 6
	ErrUnsupportedFunction Error = 7
	ErrParamLocked         Error = 8
)

var errMessages = [...]string{
	"No error",
	"Operation failed",
	"Table capacity exceeded",
	"Decoder not opened",
	"Decoder not ready",
	"Parameter out of range",
	"Invalid parameter",
	"Function not supported",
	"Parameter locked",
}

// Error implements the error interface.
func (e Error) Error() string {
	if e >= 0 && int(e) < len(errMessages) {
		return errMessages[e]
	}
	return "unknown error"
}

// Code returns the Error code carried by err, ErrNone for nil and
// ErrNotOK for errors without a code.
func Code(err error) Error {
	if err == nil {
		return ErrNone
	}
	var e Error
	if errors.As(err, &e) {
		return e
	}
	return ErrNotOK
}

// codeOf maps an internal error onto its caller-facing code.
func codeOf(err error) Error {
	switch {
	case errors.Is(err, syntax.ErrMemory),
		errors.Is(err, selection.ErrOutOfMemory),
		errors.Is(err, gain.ErrSlots):
		return ErrOutOfMemory
	case errors.Is(err, syntax.ErrOutOfRange),
		errors.Is(err, selection.ErrParamOutOfRange):
		return ErrParamOutOfRange
	case errors.Is(err, syntax.ErrInvalidParam),
		errors.Is(err, gain.ErrInvalidParam),
		errors.Is(err, gain.ErrChannelOffset):
		return ErrInvalidParam
	case errors.Is(err, selection.ErrInvalidHandle),
		errors.Is(err, gain.ErrNotConfigured):
		return ErrNotReady
	case errors.Is(err, gain.ErrUnsupported):
		return ErrUnsupportedFunction
	}
	return ErrNotOK
}

// wrap attaches the code of err so that errors.Is matches both the code
// and the underlying error.
func wrap(err error) error {
	if err == nil {
		return nil
	}
	var e Error
	if errors.As(err, &e) {
		return err
	}
	return fmt.Errorf("%w: %w", codeOf(err), err)
}
