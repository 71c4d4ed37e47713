package syntax

import "errors"

// Parse and configuration errors.
var (
	// ErrOutOfRange indicates a decoded value outside its allowed range.
	ErrOutOfRange = errors.New("syntax: value out of range")

	// ErrInvalidParam indicates an invalid argument from the caller.
	ErrInvalidParam = errors.New("syntax: invalid parameter")

	// ErrMemory indicates a fixed table capacity would be exceeded.
	ErrMemory = errors.New("syntax: table capacity exceeded")

	// ErrNotOK indicates a semantic violation: inconsistent references,
	// duplicate ids or a substream that does not match substream 0.
	ErrNotOK = errors.New("syntax: inconsistent bitstream")

	// ErrBitstreamRead indicates the payload ended before the element did.
	ErrBitstreamRead = errors.New("syntax: bitstream read error")
)
