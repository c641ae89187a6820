package bitio

// MaxReadBits is the largest n accepted by LSBReader.ReadBits.
const MaxReadBits = 24

// LSBReader reads little-endian, least-significant-bit-first bit fields as
// used by VP8L and the ALPH payload.
type LSBReader struct {
	buf   []byte
	pos   int    // next byte of buf to load
	value uint64 // buffered bits, next bit at position 0
	nbits int    // valid bits in value
	err   error
}

// NewLSBReader returns a reader over data.
func NewLSBReader(data []byte) *LSBReader {
	r := &LSBReader{buf: data}
	r.fill()
	return r
}

func (r *LSBReader) fill() {
	for r.nbits <= 56 && r.pos < len(r.buf) {
		r.value |= uint64(r.buf[r.pos]) << uint(r.nbits)
		r.pos++
		r.nbits += 8
	}
}

// ReadBits consumes n bits (n <= MaxReadBits). Reading past the end of the
// input returns 0 and latches ErrTruncated.
func (r *LSBReader) ReadBits(n int) uint32 {
	if n == 0 {
		return 0
	}
	if r.nbits < n {
		r.fill()
		if r.nbits < n {
			r.err = ErrTruncated
			r.value, r.nbits = 0, 0
			return 0
		}
	}
	v := uint32(r.value & (1<<uint(n) - 1))
	r.value >>= uint(n)
	r.nbits -= n
	return v
}

// ReadBit consumes a single bit.
func (r *LSBReader) ReadBit() bool { return r.ReadBits(1) == 1 }

// PrefetchBits returns the next 32 bits without consuming them. Bits past
// the end of input read as zero.
func (r *LSBReader) PrefetchBits() uint32 {
	if r.nbits < 32 {
		r.fill()
	}
	return uint32(r.value)
}

// SkipBits consumes n bits previously inspected with PrefetchBits.
func (r *LSBReader) SkipBits(n int) {
	if n > r.nbits {
		r.err = ErrTruncated
		r.value, r.nbits = 0, 0
		return
	}
	r.value >>= uint(n)
	r.nbits -= n
}

// AlignToByte discards the bits remaining in the current byte.
func (r *LSBReader) AlignToByte() {
	r.SkipBits(r.nbits & 7)
}

// Err returns ErrTruncated if any read went past the end of input.
func (r *LSBReader) Err() error { return r.err }

// BitsRead returns the number of bits consumed so far.
func (r *LSBReader) BitsRead() int { return r.pos*8 - r.nbits }
