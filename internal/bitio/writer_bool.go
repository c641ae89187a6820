package bitio

import "math/bits"

// BoolWriter encodes a VP8 boolean-coded partition.
type BoolWriter struct {
	range_ int32 // current range minus one
	value  int32
	run    int // pending 0xff bytes awaiting a possible carry
	nbBits int // number of pending bits in value
	buf    []byte
}

// NewBoolWriter returns a writer whose buffer starts with the given capacity.
func NewBoolWriter(capacity int) *BoolWriter {
	return &BoolWriter{
		range_: 255 - 1,
		nbBits: -8,
		buf:    make([]byte, 0, capacity),
	}
}

// flush moves one finished byte out of value, propagating a carry into the
// bytes already written when needed.
func (bw *BoolWriter) flush() {
	s := 8 + bw.nbBits
	b := bw.value >> uint(s)
	bw.value -= b << uint(s)
	bw.nbBits -= 8
	if b&0xff == 0xff {
		bw.run++
		return
	}
	if b&0x100 != 0 && len(bw.buf) > 0 {
		bw.buf[len(bw.buf)-1]++
	}
	if bw.run > 0 {
		fill := byte(0xff)
		if b&0x100 != 0 {
			fill = 0x00
		}
		for ; bw.run > 0; bw.run-- {
			bw.buf = append(bw.buf, fill)
		}
	}
	bw.buf = append(bw.buf, byte(b))
}

func (bw *BoolWriter) renormalize() {
	if bw.range_ >= 127 {
		return
	}
	shift := 7 - (bits.Len32(uint32(bw.range_+1)) - 1)
	bw.range_ = (bw.range_+1)<<uint(shift) - 1
	bw.value <<= uint(shift)
	bw.nbBits += shift
	if bw.nbBits > 0 {
		bw.flush()
	}
}

// PutBit encodes bit with a zero-probability of prob/256 and returns bit.
func (bw *BoolWriter) PutBit(bit int, prob uint8) int {
	split := (bw.range_ * int32(prob)) >> 8
	if bit != 0 {
		bw.value += split + 1
		bw.range_ -= split + 1
	} else {
		bw.range_ = split
	}
	bw.renormalize()
	return bit
}

// PutBitUniform encodes bit at probability one half.
func (bw *BoolWriter) PutBitUniform(bit int) int {
	split := bw.range_ >> 1
	if bit != 0 {
		bw.value += split + 1
		bw.range_ -= split + 1
	} else {
		bw.range_ = split
	}
	bw.renormalize()
	return bit
}

// PutLiteral writes the low n bits of v, most significant first.
func (bw *BoolWriter) PutLiteral(v uint32, n int) {
	for mask := uint32(1) << uint(n) >> 1; mask != 0; mask >>= 1 {
		if v&mask != 0 {
			bw.PutBitUniform(1)
		} else {
			bw.PutBitUniform(0)
		}
	}
}

// PutSigned writes an n-bit magnitude followed by a sign bit.
func (bw *BoolWriter) PutSigned(v int32, n int) {
	if v < 0 {
		bw.PutLiteral(uint32(-v), n)
		bw.PutBitUniform(1)
		return
	}
	bw.PutLiteral(uint32(v), n)
	bw.PutBitUniform(0)
}

// PutOptionalSigned writes a presence flag followed, for non-zero v, by
// the signed value. It mirrors BoolReader.GetOptionalSigned.
func (bw *BoolWriter) PutOptionalSigned(v int32, n int) {
	if v == 0 {
		bw.PutBitUniform(0)
		return
	}
	bw.PutBitUniform(1)
	bw.PutSigned(v, n)
}

// Len returns an estimate of the encoded size in bytes so far.
func (bw *BoolWriter) Len() int {
	return len(bw.buf) + bw.run + (bw.nbBits+8+7)/8
}

// Finish flushes the pending state and returns the encoded bytes. The
// writer must not be used afterwards.
func (bw *BoolWriter) Finish() []byte {
	bw.PutLiteral(0, 9-bw.nbBits)
	bw.nbBits = 0
	bw.flush()
	return bw.buf
}
