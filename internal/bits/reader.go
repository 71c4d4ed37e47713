// Package bits provides the MSB-first bit cursor used by the DRC payload
// parsers, and a matching writer for building payloads.
package bits

// Reader reads bits MSB-first from a byte buffer.
//
// Reads past the end of the buffer return zero bits and latch the error
// flag; callers check Error once after parsing an element.
type Reader struct {
	buffer []byte // Original buffer
	pos    uint   // Bit position of the next unread bit
	size   uint   // Total number of bits in buffer
	err    bool   // Error flag (buffer overrun)
}

// NewReader creates a Reader from a byte slice.
// Empty or nil buffers set the error flag.
func NewReader(data []byte) *Reader {
	r := &Reader{
		buffer: data,
		size:   uint(len(data)) * 8,
	}
	if len(data) == 0 {
		r.err = true
	}
	return r
}

// NewReaderBits creates a Reader over the first nbits bits of data.
// Used for payloads whose length is signalled in bits rather than bytes.
func NewReaderBits(data []byte, nbits uint) *Reader {
	r := NewReader(data)
	if nbits < r.size {
		r.size = nbits
	}
	return r
}

// Error returns true if a buffer overrun occurred.
func (r *Reader) Error() bool {
	return r.err
}

// BitsRemaining returns the number of unread bits.
func (r *Reader) BitsRemaining() uint {
	if r.pos >= r.size {
		return 0
	}
	return r.size - r.pos
}

// GetProcessedBits returns the number of bits consumed so far.
func (r *Reader) GetProcessedBits() uint {
	return r.pos
}

// ShowBits returns the next n bits without consuming them.
// n must be 0-32. Bits beyond the end of the buffer read as zero.
func (r *Reader) ShowBits(n uint) uint32 {
	if n == 0 {
		return 0
	}

	var v uint32
	pos := r.pos
	for i := uint(0); i < n; i++ {
		v <<= 1
		if pos < r.size {
			v |= uint32(r.buffer[pos>>3]>>(7-(pos&7))) & 1
		}
		pos++
	}
	return v
}

// FlushBits discards n bits from the stream.
func (r *Reader) FlushBits(n uint) {
	if r.pos+n > r.size {
		r.err = true
		r.pos = r.size
		return
	}
	r.pos += n
}

// SkipBits is an alias of FlushBits used for skipping extension payloads.
func (r *Reader) SkipBits(n uint) {
	r.FlushBits(n)
}

// GetBits reads and returns n bits from the stream.
// n must be 0-32.
func (r *Reader) GetBits(n uint) uint32 {
	if n == 0 {
		return 0
	}

	ret := r.ShowBits(n)
	r.FlushBits(n)
	return ret
}

// Get1Bit reads and returns a single bit from the stream.
func (r *Reader) Get1Bit() uint8 {
	if r.pos >= r.size {
		r.err = true
		return 0
	}
	b := (r.buffer[r.pos>>3] >> (7 - (r.pos & 7))) & 1
	r.pos++
	return b
}

// ByteAlign skips to the next byte boundary and returns the number of
// bits skipped.
func (r *Reader) ByteAlign() uint {
	rem := (8 - r.pos&7) & 7
	r.FlushBits(rem)
	return rem
}

// ResetBits moves the cursor to an absolute bit position and clears the
// error flag if the position is inside the buffer.
func (r *Reader) ResetBits(bits uint) {
	if bits > r.size {
		r.pos = r.size
		r.err = true
		return
	}
	r.pos = bits
	r.err = false
}
