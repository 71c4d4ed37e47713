// Package huffman implements the variable-length codes of the DRC gain
// payload: delta-gain codebooks and the spline slope codebook.
package huffman

// Tree is a binary search table. Row i holds the successors of node i
// for bit 0 and bit 1. A non-negative entry is the next row, a negative
// entry is a leaf whose value is entry + LeafOffset.
type Tree [][2]int8

// LeafOffset is added to a negative tree entry to get the leaf value.
const LeafOffset = 64

// Codeword is one leaf of a codebook, with the code that reaches it.
type Codeword struct {
	Len   uint8  // Codeword length in bits
	Code  uint32 // Codeword, right-aligned
	Value int16  // Decoded value
}

// Codebook is a decoding tree plus the codeword list derived from it for
// encoding.
type Codebook struct {
	name  string
	tree  Tree
	words []Codeword
}

// newCodebook walks t and collects the codeword of every leaf, in order of
// increasing code.
func newCodebook(name string, t Tree) *Codebook {
	cb := &Codebook{name: name, tree: t}
	cb.walk(0, 0, 0)
	return cb
}

func (cb *Codebook) walk(row int, code uint32, n uint8) {
	for b := 0; b < 2; b++ {
		next := cb.tree[row][b]
		c := code<<1 | uint32(b)
		if next >= 0 {
			cb.walk(int(next), c, n+1)
			continue
		}
		cb.words = append(cb.words, Codeword{Len: n + 1, Code: c, Value: int16(next) + LeafOffset})
	}
}

// Name returns the codebook name used in error messages.
func (cb *Codebook) Name() string {
	return cb.name
}

// Words returns a copy of the codeword list.
func (cb *Codebook) Words() []Codeword {
	out := make([]Codeword, len(cb.words))
	copy(out, cb.words)
	return out
}

// Lookup returns the codeword for value.
func (cb *Codebook) Lookup(value int16) (Codeword, bool) {
	for _, w := range cb.words {
		if w.Value == value {
			return w, true
		}
	}
	return Codeword{}, false
}
