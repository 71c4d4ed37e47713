package selection

import "errors"

// Status reports a successful selection that may have used a fallback.
type Status uint8

// Selection statuses.
const (
	NoError Status = iota
	// Warning means a request could not be met and a fallback was applied.
	Warning
)

func (s Status) String() string {
	if s == Warning {
		return "warning"
	}
	return "ok"
}

// Fatal selection errors. The previous output stays in effect.
var (
	ErrNotOK           = errors.New("selection: no applicable DRC set")
	ErrOutOfMemory     = errors.New("selection: candidate capacity exceeded")
	ErrInvalidHandle   = errors.New("selection: no configuration")
	ErrParamOutOfRange = errors.New("selection: parameter out of range")
)
