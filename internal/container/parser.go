package container

import "fmt"

// Format identifies the coding used by a file's image data.
type Format int

const (
	FormatUndefined Format = iota
	FormatLossy
	FormatLossless
	FormatMixed // animation with both lossy and lossless frames
)

// String returns a human-readable format name.
func (f Format) String() string {
	switch f {
	case FormatLossy:
		return "lossy"
	case FormatLossless:
		return "lossless"
	case FormatMixed:
		return "mixed"
	default:
		return "undefined"
	}
}

// Features describes a file without decoding any pixels.
type Features struct {
	Width, Height int // canvas size
	HasAlpha      bool
	HasAnimation  bool
	Extended      bool // VP8X present
	Format        Format
	LoopCount     int
	Background    uint32
	FrameCount    int
}

// Frame is one coded image: the whole picture of a still file or one ANMF
// entry of an animation.
type Frame struct {
	ANMF
	Bitstream []byte // VP8 or VP8L payload
	Lossless  bool
	Alpha     []byte  // ALPH payload, nil when absent
	Unknown   []Chunk // unrecognised chunks nested in the ANMF payload
}

// File is the parsed structure of a WebP file. Byte slices alias the
// input buffer.
type File struct {
	Features Features
	VP8X     *VP8X
	Frames   []Frame
	ICCP     []byte
	EXIF     []byte
	XMP      []byte
	Unknown  []Chunk // unrecognised top-level chunks, in file order
}

// Parse validates the container structure of data.
func Parse(data []byte) (*File, error) {
	body, err := ParseRIFF(data)
	if err != nil {
		return nil, err
	}
	chunks, err := ParseChunks(body)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no chunks", ErrMalformed)
	}
	f := &File{}
	switch chunks[0].ID {
	case FourCCVP8, FourCCVP8L:
		fr, err := parseImageChunks(chunks[:1], true)
		if err != nil {
			return nil, err
		}
		f.Frames = []Frame{fr}
		f.Unknown = append(f.Unknown, chunks[1:]...)
		f.Features = Features{
			Width:      fr.Width,
			Height:     fr.Height,
			HasAlpha:   fr.Lossless && fr.hasAlphaHint(),
			Format:     fr.format(),
			FrameCount: 1,
		}
		return f, nil
	case FourCCVP8X:
		if err := f.parseExtended(chunks); err != nil {
			return nil, err
		}
		return f, nil
	}
	return nil, fmt.Errorf("%w: unexpected first chunk %q", ErrMalformed, FourCCString(chunks[0].ID))
}

func (f *File) parseExtended(chunks []Chunk) error {
	vp8x, err := ParseVP8X(chunks[0].Payload)
	if err != nil {
		return err
	}
	f.VP8X = &vp8x
	f.Features = Features{
		Width:        vp8x.CanvasWidth,
		Height:       vp8x.CanvasHeight,
		HasAlpha:     vp8x.Has(AlphaFlag),
		HasAnimation: vp8x.Has(AnimationFlag),
		Extended:     true,
	}
	var (
		image   []Chunk
		sawANIM bool
	)
	for _, c := range chunks[1:] {
		switch c.ID {
		case FourCCICCP:
			f.ICCP = c.Payload
		case FourCCEXIF:
			f.EXIF = c.Payload
		case FourCCXMP:
			f.XMP = c.Payload
		case FourCCANIM:
			anim, err := ParseANIM(c.Payload)
			if err != nil {
				return err
			}
			sawANIM = true
			f.Features.LoopCount = anim.LoopCount
			f.Features.Background = anim.Background
		case FourCCANMF:
			if !f.Features.HasAnimation {
				return fmt.Errorf("%w: ANMF chunk without animation flag", ErrMalformed)
			}
			fr, err := parseANMF(c.Payload)
			if err != nil {
				return err
			}
			if fr.X+fr.Width > vp8x.CanvasWidth || fr.Y+fr.Height > vp8x.CanvasHeight {
				return fmt.Errorf("%w: frame %dx%d at (%d,%d) outside %dx%d canvas",
					ErrMalformed, fr.Width, fr.Height, fr.X, fr.Y, vp8x.CanvasWidth, vp8x.CanvasHeight)
			}
			f.Frames = append(f.Frames, fr)
		case FourCCALPH, FourCCVP8, FourCCVP8L:
			image = append(image, c)
		default:
			f.Unknown = append(f.Unknown, c)
		}
	}

	if f.Features.HasAnimation {
		if !sawANIM {
			return fmt.Errorf("%w: animation without ANIM chunk", ErrMalformed)
		}
		if len(f.Frames) == 0 {
			return fmt.Errorf("%w: animation without frames", ErrMalformed)
		}
		f.Features.FrameCount = len(f.Frames)
		f.Features.Format = f.Frames[0].format()
		for _, fr := range f.Frames[1:] {
			if fr.format() != f.Features.Format {
				f.Features.Format = FormatMixed
				break
			}
		}
		return nil
	}

	fr, err := parseImageChunks(image, false)
	if err != nil {
		return err
	}
	if fr.Width != vp8x.CanvasWidth || fr.Height != vp8x.CanvasHeight {
		return fmt.Errorf("%w: image %dx%d does not match %dx%d canvas",
			ErrMalformed, fr.Width, fr.Height, vp8x.CanvasWidth, vp8x.CanvasHeight)
	}
	f.Frames = []Frame{fr}
	f.Features.Format = fr.format()
	f.Features.FrameCount = 1
	return nil
}

func parseANMF(payload []byte) (Frame, error) {
	hdr, err := ParseANMF(payload)
	if err != nil {
		return Frame{}, err
	}
	sub, err := ParseChunks(payload[ANMFHeaderSize:])
	if err != nil {
		return Frame{}, err
	}
	var image, unknown []Chunk
	for _, c := range sub {
		switch c.ID {
		case FourCCALPH, FourCCVP8, FourCCVP8L:
			image = append(image, c)
		default:
			unknown = append(unknown, c)
		}
	}
	fr, err := parseImageChunks(image, false)
	if err != nil {
		return Frame{}, err
	}
	if fr.Width != hdr.Width || fr.Height != hdr.Height {
		return Frame{}, fmt.Errorf("%w: ANMF declares %dx%d, bitstream is %dx%d",
			ErrMalformed, hdr.Width, hdr.Height, fr.Width, fr.Height)
	}
	fr.ANMF = hdr
	fr.Unknown = unknown
	return fr, nil
}

// parseImageChunks accepts an optional ALPH followed by exactly one VP8 or
// VP8L chunk. ALPH in front of VP8L is ignored, as the lossless stream
// carries its own alpha.
func parseImageChunks(chunks []Chunk, simple bool) (Frame, error) {
	var fr Frame
	for i, c := range chunks {
		switch c.ID {
		case FourCCALPH:
			if simple || i != 0 {
				return Frame{}, fmt.Errorf("%w: misplaced ALPH chunk", ErrMalformed)
			}
			fr.Alpha = c.Payload
		case FourCCVP8, FourCCVP8L:
			if fr.Bitstream != nil {
				return Frame{}, fmt.Errorf("%w: more than one image bitstream", ErrMalformed)
			}
			fr.Bitstream = c.Payload
			fr.Lossless = c.ID == FourCCVP8L
		}
	}
	if fr.Bitstream == nil {
		return Frame{}, fmt.Errorf("%w: no VP8 or VP8L chunk", ErrMalformed)
	}
	var err error
	if fr.Lossless {
		fr.Alpha = nil
		fr.Width, fr.Height, _, err = ParseVP8LHeader(fr.Bitstream)
	} else {
		fr.Width, fr.Height, err = ParseVP8Header(fr.Bitstream)
	}
	if err != nil {
		return Frame{}, err
	}
	return fr, nil
}

func (fr *Frame) hasAlphaHint() bool {
	_, _, a, err := ParseVP8LHeader(fr.Bitstream)
	return err == nil && a
}

func (fr *Frame) format() Format {
	if fr.Lossless {
		return FormatLossless
	}
	return FormatLossy
}

// HasAlpha reports whether the frame carries alpha: an ALPH chunk for lossy
// frames, the header hint for lossless ones.
func (fr *Frame) HasAlpha() bool {
	if fr.Lossless {
		return fr.hasAlphaHint()
	}
	return fr.Alpha != nil
}

// GetFeatures parses just enough of data to describe it.
func GetFeatures(data []byte) (Features, error) {
	f, err := Parse(data)
	if err != nil {
		return Features{}, err
	}
	return f.Features, nil
}
