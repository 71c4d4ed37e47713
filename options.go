package unidrc

import "github.com/sirupsen/logrus"

// Option configures a Decoder at construction.
type Option func(*Decoder)

// WithLogger sets the logger for payload and selection events. The
// default logger discards everything.
func WithLogger(log *logrus.Logger) Option {
	return func(d *Decoder) {
		if log != nil {
			d.log = log
		}
	}
}

// WithDelayMode sets the gain delay, as ParamDelayMode does before Init.
func WithDelayMode(m DelayMode) Option {
	return func(d *Decoder) {
		d.delay = m
	}
}

// WithSubbandDomain makes the decoder process subband audio with the
// given number of subbands and samples per timeslot, as used by
// ProcessFreq. Multiband DRC sets need it.
func WithSubbandDomain(subbands, step int) Option {
	return func(d *Decoder) {
		d.subbands, d.subbandStep = subbands, step
	}
}
