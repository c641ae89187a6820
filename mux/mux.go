// Package mux assembles and splits WebP files at the chunk level. The
// muxer builds still or animated files from already coded bitstreams plus
// opaque metadata blobs; the demuxer exposes the frames, metadata and any
// unrecognised chunks of an existing file so that it can be rebuilt
// without loss.
package mux

import (
	"errors"
	"fmt"
	"io"

	"github.com/deepteams/webpcodec/internal/container"
)

var (
	ErrNoFrames     = errors.New("mux: no frames to assemble")
	ErrInvalidFrame = errors.New("mux: invalid frame")
	ErrMixedFrames  = errors.New("mux: still image and animation frames mixed")
)

// Image is one coded picture: a VP8 or VP8L bitstream and, for lossy
// pictures with transparency, the ALPH payload.
type Image struct {
	Bitstream []byte
	Alpha     []byte
	Lossless  bool
}

// FrameOptions place an animation frame on the canvas.
type FrameOptions struct {
	X, Y     int // must be even
	Duration int // milliseconds, clamped to the 24-bit field
	Dispose  container.Dispose
	Blend    container.Blend
}

type muxFrame struct {
	img  Image
	opts FrameOptions
	w, h int
}

// Muxer accumulates images, metadata and extra chunks. The zero value is
// not usable; call NewMuxer.
type Muxer struct {
	frames   []muxFrame
	animated bool
	anim     container.ANIM
	iccp     []byte
	exif     []byte
	xmp      []byte
	unknown  []container.Chunk
	canvasW  int
	canvasH  int
}

// NewMuxer returns an empty Muxer.
func NewMuxer() *Muxer {
	return &Muxer{}
}

// SetICCProfile sets the ICCP chunk payload.
func (m *Muxer) SetICCProfile(data []byte) { m.iccp = data }

// SetEXIF sets the EXIF chunk payload.
func (m *Muxer) SetEXIF(data []byte) { m.exif = data }

// SetXMP sets the XMP chunk payload.
func (m *Muxer) SetXMP(data []byte) { m.xmp = data }

// SetBackgroundColor sets the ANIM background, as B, G, R, A bytes in
// little-endian order.
func (m *Muxer) SetBackgroundColor(c uint32) { m.anim.Background = c }

// SetLoopCount sets the number of loops, 0 meaning forever. Values are
// clamped to the 16-bit field.
func (m *Muxer) SetLoopCount(n int) {
	m.anim.LoopCount = min(max(n, 0), container.MaxLoopCount)
}

// SetCanvasSize fixes the canvas size. By default it is the extent of
// the frames.
func (m *Muxer) SetCanvasSize(width, height int) {
	m.canvasW, m.canvasH = width, height
}

// AddChunk appends a chunk the muxer does not interpret. It is written
// after the image data.
func (m *Muxer) AddChunk(id uint32, payload []byte) {
	m.unknown = append(m.unknown, container.Chunk{ID: id, Payload: payload})
}

// NumFrames returns the number of images added.
func (m *Muxer) NumFrames() int { return len(m.frames) }

// SetImage sets the picture of a still file.
func (m *Muxer) SetImage(img Image) error {
	if m.animated {
		return ErrMixedFrames
	}
	f, err := newMuxFrame(img, FrameOptions{})
	if err != nil {
		return err
	}
	m.frames = []muxFrame{f}
	return nil
}

// AddFrame appends an animation frame.
func (m *Muxer) AddFrame(img Image, opts FrameOptions) error {
	if !m.animated && len(m.frames) > 0 {
		return ErrMixedFrames
	}
	if opts.X < 0 || opts.Y < 0 || opts.X&1 != 0 || opts.Y&1 != 0 {
		return fmt.Errorf("%w: offset (%d,%d) must be even and non-negative", ErrInvalidFrame, opts.X, opts.Y)
	}
	opts.Duration = min(max(opts.Duration, 0), container.MaxDuration)
	f, err := newMuxFrame(img, opts)
	if err != nil {
		return err
	}
	m.animated = true
	m.frames = append(m.frames, f)
	return nil
}

// SetFrameDispose changes the dispose method of animation frame i.
func (m *Muxer) SetFrameDispose(i int, d container.Dispose) error {
	if !m.animated || i < 0 || i >= len(m.frames) {
		return fmt.Errorf("%w: no animation frame %d", ErrInvalidFrame, i)
	}
	m.frames[i].opts.Dispose = d
	return nil
}

func newMuxFrame(img Image, opts FrameOptions) (muxFrame, error) {
	f := muxFrame{img: img, opts: opts}
	var err error
	if img.Lossless {
		f.w, f.h, _, err = container.ParseVP8LHeader(img.Bitstream)
	} else {
		f.w, f.h, err = container.ParseVP8Header(img.Bitstream)
	}
	if err != nil {
		return muxFrame{}, fmt.Errorf("%w: %w", ErrInvalidFrame, err)
	}
	if img.Lossless && img.Alpha != nil {
		return muxFrame{}, fmt.Errorf("%w: ALPH chunk with a lossless bitstream", ErrInvalidFrame)
	}
	return f, nil
}

func (f *muxFrame) hasAlpha() bool {
	if f.img.Lossless {
		_, _, a, _ := container.ParseVP8LHeader(f.img.Bitstream)
		return a
	}
	return f.img.Alpha != nil
}

func (m *Muxer) canvasSize() (int, int) {
	if m.canvasW > 0 && m.canvasH > 0 {
		return m.canvasW, m.canvasH
	}
	w, h := 0, 0
	for _, f := range m.frames {
		w = max(w, f.opts.X+f.w)
		h = max(h, f.opts.Y+f.h)
	}
	return w, h
}

func (m *Muxer) needsVP8X() bool {
	return m.animated || m.iccp != nil || m.exif != nil || m.xmp != nil ||
		len(m.unknown) > 0 || m.frames[0].img.Alpha != nil
}

func (m *Muxer) validate() error {
	if len(m.frames) == 0 {
		return ErrNoFrames
	}
	cw, ch := m.canvasSize()
	if cw > container.MaxCanvasSize || ch > container.MaxCanvasSize {
		return fmt.Errorf("%w: canvas %dx%d", container.ErrTooLarge, cw, ch)
	}
	for i, f := range m.frames {
		if f.opts.X+f.w > cw || f.opts.Y+f.h > ch {
			return fmt.Errorf("%w: frame %d (%dx%d at %d,%d) exceeds the %dx%d canvas",
				ErrInvalidFrame, i, f.w, f.h, f.opts.X, f.opts.Y, cw, ch)
		}
	}
	if !m.animated && (cw != m.frames[0].w || ch != m.frames[0].h) {
		return fmt.Errorf("%w: still image %dx%d on a %dx%d canvas", ErrInvalidFrame, m.frames[0].w, m.frames[0].h, cw, ch)
	}
	return nil
}

// Assemble returns the complete file. Chunks are ordered VP8X, ICCP,
// ANIM, image data, EXIF, XMP, then the extra chunks.
func (m *Muxer) Assemble() ([]byte, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	size := 0
	for _, f := range m.frames {
		size += len(f.img.Bitstream) + len(f.img.Alpha) + 3*container.ChunkHeaderSize + container.ANMFHeaderSize
	}
	w := container.NewWriter(size + len(m.iccp) + len(m.exif) + len(m.xmp) + 64)

	if !m.needsVP8X() {
		addImageChunks(w, m.frames[0].img)
		return w.Bytes()
	}

	vp8x := container.VP8X{}
	vp8x.CanvasWidth, vp8x.CanvasHeight = m.canvasSize()
	for i := range m.frames {
		if m.frames[i].hasAlpha() {
			vp8x.Flags |= container.AlphaFlag
			break
		}
	}
	if m.animated {
		vp8x.Flags |= container.AnimationFlag
	}
	if m.iccp != nil {
		vp8x.Flags |= container.ICCPFlag
	}
	if m.exif != nil {
		vp8x.Flags |= container.EXIFFlag
	}
	if m.xmp != nil {
		vp8x.Flags |= container.XMPFlag
	}
	w.AddChunk(container.FourCCVP8X, vp8x.Marshal())
	if m.iccp != nil {
		w.AddChunk(container.FourCCICCP, m.iccp)
	}
	if m.animated {
		w.AddChunk(container.FourCCANIM, m.anim.Marshal())
		for _, f := range m.frames {
			w.AddChunk(container.FourCCANMF, f.anmfPayload())
		}
	} else {
		addImageChunks(w, m.frames[0].img)
	}
	if m.exif != nil {
		w.AddChunk(container.FourCCEXIF, m.exif)
	}
	if m.xmp != nil {
		w.AddChunk(container.FourCCXMP, m.xmp)
	}
	for _, c := range m.unknown {
		w.AddChunk(c.ID, c.Payload)
	}
	return w.Bytes()
}

// WriteTo assembles the file and writes it to w.
func (m *Muxer) WriteTo(w io.Writer) (int64, error) {
	data, err := m.Assemble()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

func addImageChunks(w *container.Writer, img Image) {
	if img.Alpha != nil {
		w.AddChunk(container.FourCCALPH, img.Alpha)
	}
	if img.Lossless {
		w.AddChunk(container.FourCCVP8L, img.Bitstream)
	} else {
		w.AddChunk(container.FourCCVP8, img.Bitstream)
	}
}

func (f *muxFrame) anmfPayload() []byte {
	hdr := container.ANMF{
		X:        f.opts.X,
		Y:        f.opts.Y,
		Width:    f.w,
		Height:   f.h,
		Duration: f.opts.Duration,
		Dispose:  f.opts.Dispose,
		Blend:    f.opts.Blend,
	}
	p := hdr.AppendTo(make([]byte, 0, container.ANMFHeaderSize+len(f.img.Alpha)+len(f.img.Bitstream)+2*container.ChunkHeaderSize+2))
	if f.img.Alpha != nil {
		p = container.AppendChunk(p, container.FourCCALPH, f.img.Alpha)
	}
	id := container.FourCCVP8
	if f.img.Lossless {
		id = container.FourCCVP8L
	}
	return container.AppendChunk(p, id, f.img.Bitstream)
}
