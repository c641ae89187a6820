package container

import "fmt"

// VP8X is the extended-format header chunk.
type VP8X struct {
	Flags        uint8
	CanvasWidth  int
	CanvasHeight int
}

// ParseVP8X decodes a VP8X payload.
func ParseVP8X(p []byte) (VP8X, error) {
	if len(p) < VP8XChunkSize {
		return VP8X{}, fmt.Errorf("%w: VP8X payload of %d bytes", ErrMalformed, len(p))
	}
	v := VP8X{
		Flags:        p[0],
		CanvasWidth:  ReadLE24(p[4:]) + 1,
		CanvasHeight: ReadLE24(p[7:]) + 1,
	}
	if v.CanvasWidth > MaxCanvasSize || v.CanvasHeight > MaxCanvasSize {
		return VP8X{}, fmt.Errorf("%w: canvas %dx%d exceeds %d", ErrTooLarge, v.CanvasWidth, v.CanvasHeight, MaxCanvasSize)
	}
	return v, nil
}

// Marshal encodes the VP8X payload.
func (v VP8X) Marshal() []byte {
	p := make([]byte, VP8XChunkSize)
	p[0] = v.Flags
	PutLE24(p[4:], v.CanvasWidth-1)
	PutLE24(p[7:], v.CanvasHeight-1)
	return p
}

// Has reports whether flag is set.
func (v VP8X) Has(flag uint8) bool { return v.Flags&flag != 0 }

// ANIM holds the global animation parameters.
type ANIM struct {
	Background uint32 // stored as B, G, R, A bytes
	LoopCount  int    // 0 means infinite
}

// ParseANIM decodes an ANIM payload.
func ParseANIM(p []byte) (ANIM, error) {
	if len(p) < ANIMChunkSize {
		return ANIM{}, fmt.Errorf("%w: ANIM payload of %d bytes", ErrMalformed, len(p))
	}
	return ANIM{Background: ReadLE32(p), LoopCount: int(ReadLE16(p[4:]))}, nil
}

// Marshal encodes the ANIM payload.
func (a ANIM) Marshal() []byte {
	p := make([]byte, ANIMChunkSize)
	PutLE32(p, a.Background)
	PutLE16(p[4:], uint16(min(max(a.LoopCount, 0), MaxLoopCount)))
	return p
}

// Dispose says what happens to a frame's area once its duration ends.
type Dispose uint8

const (
	DisposeNone       Dispose = 0
	DisposeBackground Dispose = 1
)

// Blend says how a frame is combined with the canvas beneath it.
type Blend uint8

const (
	BlendAlpha Blend = 0
	BlendNone  Blend = 1
)

// ANMF is the fixed header of an animation frame chunk.
type ANMF struct {
	X, Y          int // canvas offsets, always even
	Width, Height int
	Duration      int // milliseconds
	Dispose       Dispose
	Blend         Blend
}

// ParseANMF decodes the 16-byte header at the start of an ANMF payload.
func ParseANMF(p []byte) (ANMF, error) {
	if len(p) < ANMFHeaderSize {
		return ANMF{}, fmt.Errorf("%w: ANMF payload of %d bytes", ErrMalformed, len(p))
	}
	bits := p[15]
	f := ANMF{
		X:        ReadLE24(p[0:]) * 2,
		Y:        ReadLE24(p[3:]) * 2,
		Width:    ReadLE24(p[6:]) + 1,
		Height:   ReadLE24(p[9:]) + 1,
		Duration: ReadLE24(p[12:]),
		Dispose:  Dispose(bits & 1),
		Blend:    Blend((bits >> 1) & 1),
	}
	return f, nil
}

// AppendTo appends the 16-byte ANMF header to dst. Odd offsets are rounded
// down and the duration is clamped to 24 bits.
func (f ANMF) AppendTo(dst []byte) []byte {
	var p [ANMFHeaderSize]byte
	PutLE24(p[0:], f.X/2)
	PutLE24(p[3:], f.Y/2)
	PutLE24(p[6:], f.Width-1)
	PutLE24(p[9:], f.Height-1)
	PutLE24(p[12:], min(max(f.Duration, 0), MaxDuration))
	p[15] = byte(f.Dispose&1) | byte(f.Blend&1)<<1
	return append(dst, p[:]...)
}

// AlphaHeader is the first byte of an ALPH payload.
type AlphaHeader struct {
	Compression   int
	Filter        int
	PreProcessing int
}

// ParseAlphaHeader decodes the ALPH header byte.
func ParseAlphaHeader(p []byte) (AlphaHeader, error) {
	if len(p) < 1 {
		return AlphaHeader{}, fmt.Errorf("%w: empty ALPH payload (%w)", ErrInvalidBitstream, ErrTruncated)
	}
	h := AlphaHeader{
		Compression:   int(p[0] & 3),
		Filter:        int(p[0]>>2) & 3,
		PreProcessing: int(p[0]>>4) & 3,
	}
	if h.Compression > AlphaLosslessCompression || p[0]>>6 != 0 || h.PreProcessing > AlphaPreprocessedLevels {
		return AlphaHeader{}, fmt.Errorf("%w: ALPH header %#02x", ErrInvalidBitstream, p[0])
	}
	return h, nil
}

// Byte encodes the ALPH header byte.
func (h AlphaHeader) Byte() byte {
	return byte(h.Compression&3) | byte(h.Filter&3)<<2 | byte(h.PreProcessing&3)<<4
}

// ParseVP8Header checks a VP8 keyframe header and returns its dimensions.
func ParseVP8Header(p []byte) (width, height int, err error) {
	if len(p) < VP8FrameHeaderSize {
		return 0, 0, fmt.Errorf("%w: VP8 header of %d bytes (%w)", ErrInvalidBitstream, len(p), ErrTruncated)
	}
	tag := uint32(p[0]) | uint32(p[1])<<8 | uint32(p[2])<<16
	keyFrame := tag&1 == 0
	profile := (tag >> 1) & 7
	show := (tag >> 4) & 1
	partLen := tag >> 5
	if !keyFrame {
		return 0, 0, fmt.Errorf("%w: VP8 interframe in still image", ErrInvalidBitstream)
	}
	if profile > 3 || show == 0 {
		return 0, 0, fmt.Errorf("%w: VP8 profile %d show %d", ErrInvalidBitstream, profile, show)
	}
	if p[3] != 0x9d || p[4] != 0x01 || p[5] != 0x2a {
		return 0, 0, fmt.Errorf("%w: bad VP8 sync code", ErrInvalidBitstream)
	}
	width = int(ReadLE16(p[6:]) & 0x3fff)
	height = int(ReadLE16(p[8:]) & 0x3fff)
	if width == 0 || height == 0 {
		return 0, 0, fmt.Errorf("%w: VP8 frame %dx%d", ErrInvalidBitstream, width, height)
	}
	if uint64(partLen) > uint64(len(p)-VP8FrameHeaderSize) {
		return 0, 0, fmt.Errorf("%w: VP8 first partition of %d bytes (%w)", ErrInvalidBitstream, partLen, ErrTruncated)
	}
	return width, height, nil
}

// ParseVP8LHeader checks a VP8L header and returns its dimensions and
// alpha hint.
func ParseVP8LHeader(p []byte) (width, height int, hasAlpha bool, err error) {
	if len(p) < VP8LHeaderSize {
		return 0, 0, false, fmt.Errorf("%w: VP8L header of %d bytes (%w)", ErrInvalidBitstream, len(p), ErrTruncated)
	}
	if p[0] != VP8LMagicByte {
		return 0, 0, false, fmt.Errorf("%w: VP8L signature %#02x", ErrInvalidBitstream, p[0])
	}
	bits := ReadLE32(p[1:])
	if bits>>29 != VP8LVersion {
		return 0, 0, false, fmt.Errorf("%w: VP8L version %d", ErrInvalidBitstream, bits>>29)
	}
	width = int(bits&0x3fff) + 1
	height = int((bits>>14)&0x3fff) + 1
	hasAlpha = (bits>>28)&1 == 1
	return width, height, hasAlpha, nil
}
