package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// A gain stream holds one uniDrcGain() payload per frame, each prefixed
// with its length in bytes as a big-endian uint16. A zero length marks a
// frame whose payload was lost.

var errPayloadTooLarge = errors.New("gain payload too large")

func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) > math.MaxUint16 {
		return errPayloadTooLarge
	}
	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// readFrame returns the next payload, or io.EOF at the clean end of the
// stream.
func readFrame(r io.Reader) ([]byte, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("truncated gain frame header: %w", err)
		}
		return nil, err
	}
	payload := make([]byte, binary.BigEndian.Uint16(hdr[:]))
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("truncated gain frame: %w", err)
	}
	return payload, nil
}
