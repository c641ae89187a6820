// Package bitio provides bit-level I/O primitives for the WebP codec.
//
// Two families live here: the VP8 boolean (arithmetic) coder used by the
// lossy path, and the LSB-first bit packer used by the lossless and alpha
// paths. Readers never return bits from beyond the end of their input:
// an over-read yields zero bits and a sticky ErrTruncated.
package bitio

import (
	"errors"
	"math/bits"
)

// ErrTruncated is reported when a reader is asked for more bits than its
// input holds.
var ErrTruncated = errors.New("webp: truncated bitstream")

// BoolReader decodes a VP8 boolean-coded partition.
type BoolReader struct {
	buf    []byte
	pos    int
	value  uint64 // pending bits, most significant first
	bits   int    // number of bits available below the decoding window
	range_ uint32 // current range minus one, in [126, 254]
	eof    bool
}

// NewBoolReader returns a reader positioned at the start of data.
func NewBoolReader(data []byte) *BoolReader {
	br := &BoolReader{buf: data, range_: 255 - 1, bits: -8}
	br.load()
	return br
}

// load pulls bytes into the value register until at least one whole byte
// is buffered below the window. Past the end of input a single zero byte
// is shifted in and eof is raised; further loads are no-ops.
func (br *BoolReader) load() {
	for br.bits < 0 {
		if br.pos < len(br.buf) {
			br.value = br.value<<8 | uint64(br.buf[br.pos])
			br.pos++
			br.bits += 8
			continue
		}
		if !br.eof {
			br.value <<= 8
			br.bits += 8
			br.eof = true
			continue
		}
		br.bits = 0
	}
}

// GetBit decodes one bit whose probability of being zero is prob/256.
func (br *BoolReader) GetBit(prob uint8) int {
	if br.bits < 0 {
		br.load()
	}
	rng := br.range_
	split := (rng * uint32(prob)) >> 8
	value := uint32(br.value >> uint(br.bits))
	bit := 0
	if value > split {
		bit = 1
		rng -= split
		br.value -= uint64(split+1) << uint(br.bits)
	} else {
		rng = split + 1
	}
	shift := 7 ^ (bits.Len32(rng) - 1)
	rng <<= uint(shift)
	br.bits -= shift
	br.range_ = rng - 1
	return bit
}

// GetLiteral reads an n-bit unsigned value, most significant bit first,
// each bit coded at probability one half.
func (br *BoolReader) GetLiteral(n int) uint32 {
	var v uint32
	for n > 0 {
		n--
		v |= uint32(br.GetBit(0x80)) << uint(n)
	}
	return v
}

// GetSigned reads an n-bit magnitude followed by a sign bit.
func (br *BoolReader) GetSigned(n int) int32 {
	v := int32(br.GetLiteral(n))
	if br.GetBit(0x80) == 1 {
		return -v
	}
	return v
}

// GetOptionalSigned reads a presence flag and, when set, a signed value.
func (br *BoolReader) GetOptionalSigned(n int) int32 {
	if br.GetBit(0x80) == 0 {
		return 0
	}
	return br.GetSigned(n)
}

// EOF reports whether the reader has run past the end of its input.
func (br *BoolReader) EOF() bool { return br.eof }

// Err returns ErrTruncated once the reader has run past its input.
func (br *BoolReader) Err() error {
	if br.eof {
		return ErrTruncated
	}
	return nil
}
