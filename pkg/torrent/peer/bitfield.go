package peer

// Bitfield is the piece availability a peer announces. The high bit of
// the first byte is piece 0. Spare bits past the last piece are ignored.
type Bitfield []byte

// NewBitfield creates an empty bitfield able to hold numPieces pieces.
func NewBitfield(numPieces int) Bitfield {
	return make(Bitfield, (numPieces+7)/8)
}

// Has reports whether the piece is marked available. Indexes beyond the
// bitfield are reported as missing.
func (bf Bitfield) Has(index int) bool {
	byteIndex := index / 8
	if index < 0 || byteIndex >= len(bf) {
		return false
	}

	return bf[byteIndex]>>(7-uint(index%8))&1 != 0
}

// Set marks a piece as available. Out of range indexes are ignored.
func (bf Bitfield) Set(index int) {
	byteIndex := index / 8
	if index < 0 || byteIndex >= len(bf) {
		return
	}

	bf[byteIndex] |= 1 << (7 - uint(index%8))
}

// Count returns the number of pieces marked available.
func (bf Bitfield) Count() int {
	count := 0
	for i := range len(bf) * 8 {
		if bf.Has(i) {
			count++
		}
	}

	return count
}
