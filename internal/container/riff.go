package container

import (
	"errors"
	"fmt"

	"github.com/deepteams/webpcodec/internal/bitio"
)

// Error kinds shared by the container and the codecs. Codec packages wrap
// these so that callers can classify failures with errors.Is.
var (
	ErrTruncated        = bitio.ErrTruncated
	ErrMalformed        = errors.New("webp: malformed container")
	ErrInvalidBitstream = errors.New("webp: invalid bitstream")
	ErrTooLarge         = errors.New("webp: image dimensions too large")
)

// Chunk is one RIFF chunk. Payload aliases the parsed buffer.
type Chunk struct {
	ID      uint32
	Payload []byte
}

// ParseRIFF validates the 12-byte file header and returns the chunk area
// covered by the RIFF size field. Bytes past the declared size are ignored.
func ParseRIFF(data []byte) ([]byte, error) {
	if len(data) < RIFFHeaderSize {
		return nil, fmt.Errorf("%w: %d byte header (%w)", ErrMalformed, len(data), ErrTruncated)
	}
	if ReadLE32(data[0:]) != FourCCRIFF {
		return nil, fmt.Errorf("%w: missing RIFF signature", ErrMalformed)
	}
	if ReadLE32(data[8:]) != FourCCWEBP {
		return nil, fmt.Errorf("%w: missing WEBP form type", ErrMalformed)
	}
	size := ReadLE32(data[4:])
	if size < 4+ChunkHeaderSize || size > maxChunkLength {
		return nil, fmt.Errorf("%w: RIFF size %d out of range", ErrMalformed, size)
	}
	if uint64(size) > uint64(len(data)-ChunkHeaderSize) {
		return nil, fmt.Errorf("%w: RIFF size %d exceeds %d available bytes (%w)",
			ErrMalformed, size, len(data)-ChunkHeaderSize, ErrTruncated)
	}
	return data[RIFFHeaderSize : ChunkHeaderSize+int(size)], nil
}

// ParseChunks splits buf into chunks. A chunk whose declared size overruns
// buf is an error; a missing pad byte after the final chunk is tolerated.
func ParseChunks(buf []byte) ([]Chunk, error) {
	var chunks []Chunk
	for off := 0; off < len(buf); {
		if len(buf)-off < ChunkHeaderSize {
			return nil, fmt.Errorf("%w: %d trailing bytes after last chunk (%w)",
				ErrMalformed, len(buf)-off, ErrTruncated)
		}
		id := ReadLE32(buf[off:])
		size := ReadLE32(buf[off+4:])
		off += ChunkHeaderSize
		if uint64(size) > uint64(len(buf)-off) {
			return nil, fmt.Errorf("%w: chunk %q declares %d bytes, %d remain (%w)",
				ErrMalformed, FourCCString(id), size, len(buf)-off, ErrTruncated)
		}
		chunks = append(chunks, Chunk{ID: id, Payload: buf[off : off+int(size)]})
		off += int(size) + int(size&1)
	}
	return chunks, nil
}

// AppendChunk appends a chunk header, payload and pad byte to dst.
func AppendChunk(dst []byte, id uint32, payload []byte) []byte {
	var hdr [ChunkHeaderSize]byte
	PutLE32(hdr[0:], id)
	PutLE32(hdr[4:], uint32(len(payload)))
	dst = append(dst, hdr[:]...)
	dst = append(dst, payload...)
	if len(payload)&1 != 0 {
		dst = append(dst, 0)
	}
	return dst
}

// Writer accumulates chunks into a RIFF/WEBP file.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer holding only the file header.
func NewWriter(capacity int) *Writer {
	w := &Writer{buf: make([]byte, RIFFHeaderSize, RIFFHeaderSize+capacity)}
	PutLE32(w.buf[0:], FourCCRIFF)
	PutLE32(w.buf[8:], FourCCWEBP)
	return w
}

// AddChunk appends a chunk to the file.
func (w *Writer) AddChunk(id uint32, payload []byte) {
	w.buf = AppendChunk(w.buf, id, payload)
}

// Bytes patches the RIFF size field and returns the finished file.
func (w *Writer) Bytes() ([]byte, error) {
	size := len(w.buf) - ChunkHeaderSize
	if uint64(size) > uint64(maxChunkLength) {
		return nil, fmt.Errorf("%w: RIFF payload of %d bytes", ErrTooLarge, size)
	}
	PutLE32(w.buf[4:], uint32(size))
	return w.buf, nil
}
