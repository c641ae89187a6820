// Package container reads and writes the RIFF/WEBP container: the file
// header, the chunk stream and the fixed-layout payloads of the VP8X, ANIM,
// ANMF and ALPH chunks. It also owns the error kinds shared by every codec
// stage.
package container

import "encoding/binary"

// FourCC creates a FourCC value from four bytes (little-endian).
func FourCC(a, b, c, d byte) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
}

// Chunk identifiers.
var (
	FourCCRIFF = FourCC('R', 'I', 'F', 'F')
	FourCCWEBP = FourCC('W', 'E', 'B', 'P')
	FourCCVP8  = FourCC('V', 'P', '8', ' ')
	FourCCVP8L = FourCC('V', 'P', '8', 'L')
	FourCCVP8X = FourCC('V', 'P', '8', 'X')
	FourCCALPH = FourCC('A', 'L', 'P', 'H')
	FourCCANIM = FourCC('A', 'N', 'I', 'M')
	FourCCANMF = FourCC('A', 'N', 'M', 'F')
	FourCCICCP = FourCC('I', 'C', 'C', 'P')
	FourCCEXIF = FourCC('E', 'X', 'I', 'F')
	FourCCXMP  = FourCC('X', 'M', 'P', ' ')
)

// VP8X feature flags.
const (
	AnimationFlag uint8 = 0x02
	XMPFlag       uint8 = 0x04
	EXIFFlag      uint8 = 0x08
	AlphaFlag     uint8 = 0x10
	ICCPFlag      uint8 = 0x20
)

// Structure sizes.
const (
	ChunkHeaderSize    = 8
	RIFFHeaderSize     = 12
	VP8XChunkSize      = 10
	ANIMChunkSize      = 6
	ANMFHeaderSize     = 16
	VP8FrameHeaderSize = 10
	VP8LHeaderSize     = 5
)

// VP8 and VP8L bitstream markers.
const (
	VP8Signature   = 0x9d012a
	VP8LMagicByte  = 0x2f
	VP8LSizeBits   = 14
	VP8LVersion    = 0
	VP8MaxDim      = 1<<14 - 1
	VP8LMaxDim     = 1 << 14
	MaxCanvasSize  = VP8LMaxDim // per side
	MaxDuration    = 1<<24 - 1
	MaxLoopCount   = 1<<16 - 1
	maxChunkLength = ^uint32(0) - ChunkHeaderSize - 1
)

// ALPH header fields.
const (
	AlphaNoCompression       = 0
	AlphaLosslessCompression = 1

	AlphaFilterNone       = 0
	AlphaFilterHorizontal = 1
	AlphaFilterVertical   = 2
	AlphaFilterGradient   = 3

	AlphaPreprocessedLevels = 1
)

// FourCCString renders a chunk identifier for diagnostics.
func FourCCString(id uint32) string {
	b := [4]byte{byte(id), byte(id >> 8), byte(id >> 16), byte(id >> 24)}
	return string(b[:])
}

// ReadLE16 reads a little-endian uint16 from data.
func ReadLE16(data []byte) uint16 { return binary.LittleEndian.Uint16(data) }

// ReadLE24 reads a little-endian 24-bit value from data.
func ReadLE24(data []byte) int {
	return int(data[0]) | int(data[1])<<8 | int(data[2])<<16
}

// ReadLE32 reads a little-endian uint32 from data.
func ReadLE32(data []byte) uint32 { return binary.LittleEndian.Uint32(data) }

// PutLE16 writes a little-endian uint16 to data.
func PutLE16(data []byte, v uint16) { binary.LittleEndian.PutUint16(data, v) }

// PutLE24 writes the low 24 bits of v to data, little-endian.
func PutLE24(data []byte, v int) {
	data[0] = byte(v)
	data[1] = byte(v >> 8)
	data[2] = byte(v >> 16)
}

// PutLE32 writes a little-endian uint32 to data.
func PutLE32(data []byte, v uint32) { binary.LittleEndian.PutUint32(data, v) }
