package bits

// Writer accumulates bits MSB-first. It is the inverse of Reader and is
// used to build configuration and gain payloads.
type Writer struct {
	buf  []byte
	nbit uint
}

// NewWriter creates an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// PutBits appends the n least significant bits of v, MSB first.
// n must be 0-32.
func (w *Writer) PutBits(v uint32, n uint) {
	for i := n; i > 0; i-- {
		if w.nbit&7 == 0 {
			w.buf = append(w.buf, 0)
		}
		bit := byte(v>>(i-1)) & 1
		w.buf[len(w.buf)-1] |= bit << (7 - (w.nbit & 7))
		w.nbit++
	}
}

// PutBool appends a single flag bit.
func (w *Writer) PutBool(b bool) {
	if b {
		w.PutBits(1, 1)
		return
	}
	w.PutBits(0, 1)
}

// Len returns the number of bits written.
func (w *Writer) Len() uint {
	return w.nbit
}

// Bytes returns the written bits, zero-padded to a whole byte.
func (w *Writer) Bytes() []byte {
	out := make([]byte, len(w.buf))
	copy(out, w.buf)
	return out
}
