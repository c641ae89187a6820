package bitio

// LSBWriter packs bit fields least-significant bit first into a growable
// buffer, the mirror of LSBReader.
type LSBWriter struct {
	buf   []byte
	acc   uint64
	nbits int
}

// NewLSBWriter returns a writer whose buffer starts with the given capacity.
func NewLSBWriter(capacity int) *LSBWriter {
	return &LSBWriter{buf: make([]byte, 0, capacity)}
}

// WriteBits appends the low n bits of v (n <= 32).
func (w *LSBWriter) WriteBits(v uint32, n int) {
	if n == 0 {
		return
	}
	w.acc |= uint64(v&uint32(1<<uint(n)-1)) << uint(w.nbits)
	w.nbits += n
	for w.nbits >= 8 {
		w.buf = append(w.buf, byte(w.acc))
		w.acc >>= 8
		w.nbits -= 8
	}
}

// WriteBit appends a single bit.
func (w *LSBWriter) WriteBit(b bool) {
	if b {
		w.WriteBits(1, 1)
	} else {
		w.WriteBits(0, 1)
	}
}

// AlignToByte pads the current byte with zero bits.
func (w *LSBWriter) AlignToByte() {
	if w.nbits > 0 {
		w.buf = append(w.buf, byte(w.acc))
		w.acc, w.nbits = 0, 0
	}
}

// BitLen returns the number of bits written so far.
func (w *LSBWriter) BitLen() int { return len(w.buf)*8 + w.nbits }

// Finish pads the final byte with zero bits and returns the buffer.
func (w *LSBWriter) Finish() []byte {
	w.AlignToByte()
	return w.buf
}
