package gain

import "errors"

// Gain decoder errors.
var (
	// ErrInvalidParam indicates an invalid frame size, domain or buffer.
	ErrInvalidParam = errors.New("gain: invalid parameter")

	// ErrNotConfigured indicates processing before Configure.
	ErrNotConfigured = errors.New("gain: decoder not configured")

	// ErrUnknownSet indicates a selected DRC set id missing from the config.
	ErrUnknownSet = errors.New("gain: selected DRC set not in configuration")

	// ErrSlots indicates more gain curves than node buffer slots.
	ErrSlots = errors.New("gain: node buffer slots exhausted")

	// ErrUnsupported indicates a multiband DRC set in the time domain.
	ErrUnsupported = errors.New("gain: multiband DRC needs the subband domain")

	// ErrTimeDelta indicates gain nodes that are not strictly increasing
	// in time.
	ErrTimeDelta = errors.New("gain: invalid node time delta")

	// ErrChannelOffset indicates a buffer that does not fit the channels
	// of the active DRC sets.
	ErrChannelOffset = errors.New("gain: channel offset out of range")
)
