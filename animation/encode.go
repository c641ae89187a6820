package animation

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"time"

	"github.com/deepteams/webpcodec/internal/container"
	"github.com/deepteams/webpcodec/mux"
)

var (
	ErrNoFrames          = errors.New("animation: no frames")
	ErrDimensionMismatch = errors.New("animation: frame size differs from the canvas")
	ErrInvalidCanvas     = errors.New("animation: invalid canvas size")
)

// StreamOptions configure an animation encoder.
type StreamOptions struct {
	// MinimizeSize also tries disposing the previous frame to background,
	// both blend modes, and a full keyframe for every frame.
	MinimizeSize bool `yaml:"minimize_size"`
	// Kmin and Kmax bound the distance between keyframes. Kmax 0 emits a
	// keyframe only for the first frame; Kmax 1 makes every frame one.
	Kmin         int     `yaml:"kmin"`
	Kmax         int     `yaml:"kmax"`
	Quality      float32 `yaml:"quality"`
	Lossless     bool    `yaml:"lossless"`
	Method       int     `yaml:"method"`
	LoopCount    int     `yaml:"loop_count"`
	AlphaQuality int     `yaml:"alpha_quality"`
	// AllowMixed codes each frame both ways and keeps the smaller result.
	AllowMixed bool `yaml:"allow_mixed"`
	SharpYUV   bool `yaml:"sharp_yuv"`
}

// DefaultStreamOptions returns the options used when none are given.
func DefaultStreamOptions() StreamOptions {
	return StreamOptions{
		Quality:      80,
		Method:       4,
		AlphaQuality: 100,
	}
}

// Normalize clamps every field into its valid range.
func (o StreamOptions) Normalize() StreamOptions {
	o.Quality = min(max(o.Quality, 0), 100)
	o.Method = min(max(o.Method, 0), 6)
	o.AlphaQuality = min(max(o.AlphaQuality, 0), 100)
	o.LoopCount = min(max(o.LoopCount, 0), container.MaxLoopCount)
	o.Kmin = max(o.Kmin, 0)
	o.Kmax = max(o.Kmax, 0)
	return o
}

// EncodeOptions configure an Encoder.
type EncodeOptions struct {
	StreamOptions
	Background color.NRGBA
}

// Encoder assembles an animation from full-canvas pictures. Each picture
// is reduced to the rectangle that differs from the previous one and
// committed to the muxer before AddFrame returns.
type Encoder struct {
	width, height int
	opts          EncodeOptions
	kmin, kmax    int
	muxer         *mux.Muxer

	prev     *image.NRGBA // canvas shown by the last frame
	prevRect image.Rectangle
	sinceKey int
}

// NewEncoder returns an Encoder for a width x height canvas. A nil opts
// selects DefaultStreamOptions.
func NewEncoder(width, height int, opts *EncodeOptions) (*Encoder, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidCanvas, width, height)
	}
	if width > container.MaxCanvasSize || height > container.MaxCanvasSize {
		return nil, fmt.Errorf("%w: canvas %dx%d", container.ErrTooLarge, width, height)
	}
	e := &Encoder{width: width, height: height, muxer: mux.NewMuxer()}
	if opts != nil {
		e.opts = *opts
	} else {
		e.opts.StreamOptions = DefaultStreamOptions()
	}
	e.opts.StreamOptions = e.opts.Normalize()
	e.kmin, e.kmax = keyframeDistances(e.opts.Kmin, e.opts.Kmax)
	e.muxer.SetCanvasSize(width, height)
	e.muxer.SetLoopCount(e.opts.LoopCount)
	e.muxer.SetBackgroundColor(nrgbaToBGRA(e.opts.Background))
	return e, nil
}

// keyframeDistances resolves the keyframe interval options.
func keyframeDistances(kmin, kmax int) (int, int) {
	const maxCached = 30
	switch {
	case kmax == 0:
		return math.MaxInt - 1, math.MaxInt
	case kmax == 1:
		return 0, 0
	case kmin >= kmax:
		kmin = kmax - 1
	case kmin < kmax/2+1 && kmax/2+1 < kmax:
		kmin = kmax/2 + 1
	}
	return max(kmin, kmax-maxCached), kmax
}

// SetLoopCount sets the number of loops, 0 meaning forever.
func (e *Encoder) SetLoopCount(n int) { e.muxer.SetLoopCount(n) }

// SetBackground sets the background colour hint.
func (e *Encoder) SetBackground(c color.NRGBA) { e.muxer.SetBackgroundColor(nrgbaToBGRA(c)) }

// SetICCProfile sets the ICCP payload.
func (e *Encoder) SetICCProfile(data []byte) { e.muxer.SetICCProfile(data) }

// SetEXIF sets the EXIF payload.
func (e *Encoder) SetEXIF(data []byte) { e.muxer.SetEXIF(data) }

// SetXMP sets the XMP payload.
func (e *Encoder) SetXMP(data []byte) { e.muxer.SetXMP(data) }

// NumFrames returns the number of committed frames.
func (e *Encoder) NumFrames() int { return e.muxer.NumFrames() }

// candidate is one way of coding a frame.
type candidate struct {
	img         mux.Image
	rect        image.Rectangle
	blend       BlendMethod
	disposePrev DisposeMethod
	key         bool
}

func (c *candidate) size() int { return len(c.img.Bitstream) + len(c.img.Alpha) }

// AddFrame appends a picture shown for d. img must have the canvas size.
// A failed call leaves the encoder unchanged.
func (e *Encoder) AddFrame(img image.Image, d time.Duration) error {
	curr := toNRGBA(img)
	if curr.Bounds().Dx() != e.width || curr.Bounds().Dy() != e.height {
		return fmt.Errorf("%w: %dx%d frame on a %dx%d canvas",
			ErrDimensionMismatch, curr.Bounds().Dx(), curr.Bounds().Dy(), e.width, e.height)
	}
	var (
		best candidate
		err  error
	)
	if e.prev == nil || e.sinceKey+1 >= e.kmax {
		best, err = e.keyframe(curr)
	} else {
		best, err = e.bestSubFrame(curr)
	}
	if err != nil {
		return fmt.Errorf("animation: frame %d: %w", e.muxer.NumFrames(), err)
	}
	err = e.muxer.AddFrame(best.img, mux.FrameOptions{
		X:        best.rect.Min.X,
		Y:        best.rect.Min.Y,
		Duration: int(max(d, 0) / time.Millisecond),
		Blend:    best.blend,
	})
	if err != nil {
		return err
	}
	if best.disposePrev == DisposeBackground {
		if err := e.muxer.SetFrameDispose(e.muxer.NumFrames()-2, DisposeBackground); err != nil {
			return err
		}
	}
	if best.key {
		e.sinceKey = 0
	} else {
		e.sinceKey++
	}
	e.prev = cloneNRGBA(curr)
	e.prevRect = best.rect
	return nil
}

// Assemble returns the animated file.
func (e *Encoder) Assemble() ([]byte, error) {
	if e.muxer.NumFrames() == 0 {
		return nil, ErrNoFrames
	}
	return e.muxer.Assemble()
}

// encode codes pic with the configured codec, or with both codecs when
// mixing is allowed.
func (e *Encoder) encode(pic *image.NRGBA) (mux.Image, error) {
	co := CodecOptions{
		Lossless:     e.opts.Lossless,
		Quality:      e.opts.Quality,
		Method:       e.opts.Method,
		AlphaQuality: e.opts.AlphaQuality,
		SharpYUV:     e.opts.SharpYUV,
	}
	img, err := FrameEncoderFunc(pic, co)
	if err != nil || !e.opts.AllowMixed {
		return img, err
	}
	co.Lossless = !co.Lossless
	alt, err := FrameEncoderFunc(pic, co)
	if err == nil && len(alt.Bitstream)+len(alt.Alpha) < len(img.Bitstream)+len(img.Alpha) {
		return alt, nil
	}
	return img, nil
}

func (e *Encoder) keyframe(curr *image.NRGBA) (candidate, error) {
	img, err := e.encode(curr)
	return candidate{img: img, rect: curr.Bounds(), blend: BlendNone, key: true}, err
}

func (e *Encoder) bestSubFrame(curr *image.NRGBA) (candidate, error) {
	maxDiff := 0
	if !e.opts.Lossless && !e.opts.AllowMixed {
		maxDiff = qualityToMaxDiff(e.opts.Quality)
	}
	best, err := e.subFrame(e.prev, curr, DisposeNone, maxDiff)
	if err != nil {
		return candidate{}, err
	}
	if e.opts.MinimizeSize {
		base := cloneNRGBA(e.prev)
		clearRect(base, e.prevRect)
		if c, err := e.subFrame(base, curr, DisposeBackground, maxDiff); err == nil && c.size() < best.size() {
			best = c
		}
	}
	area := best.rect.Dx() * best.rect.Dy()
	if e.sinceKey+1 >= e.kmin && (e.opts.MinimizeSize || 10*area > 9*e.width*e.height) {
		if k, err := e.keyframe(curr); err == nil && k.size() < best.size() {
			best = k
		}
	}
	return best, nil
}

// subFrame codes the part of curr that differs from base, the canvas the
// decoder will hold before drawing the frame.
func (e *Encoder) subFrame(base, curr *image.NRGBA, dispose DisposeMethod, maxDiff int) (candidate, error) {
	r := changedRect(base, curr)
	if r.Empty() {
		r = image.Rect(0, 0, 1, 1)
	}
	r = snapToEven(r)
	c := candidate{rect: r, blend: BlendNone, disposePrev: dispose}
	plain := crop(curr, r)
	if blendPossible(base, curr, r, maxDiff) {
		img, err := e.encode(flattenUnchanged(plain, base, r, maxDiff))
		if err != nil {
			return candidate{}, err
		}
		c.img, c.blend = img, BlendAlpha
		if !e.opts.MinimizeSize {
			return c, nil
		}
	}
	img, err := e.encode(plain)
	if err != nil {
		return candidate{}, err
	}
	if c.img.Bitstream == nil || len(img.Bitstream)+len(img.Alpha) < c.size() {
		c.img, c.blend = img, BlendNone
	}
	return c, nil
}

// changedRect returns the bounding box of the pixels that differ between
// two same-sized images.
func changedRect(a, b *image.NRGBA) image.Rectangle {
	w, h := a.Bounds().Dx(), a.Bounds().Dy()
	row := func(img *image.NRGBA, y int) []byte { return img.Pix[y*img.Stride : y*img.Stride+4*w] }
	y0 := 0
	for y0 < h && bytes.Equal(row(a, y0), row(b, y0)) {
		y0++
	}
	if y0 == h {
		return image.Rectangle{}
	}
	y1 := h
	for y1 > y0+1 && bytes.Equal(row(a, y1-1), row(b, y1-1)) {
		y1--
	}
	x0, x1 := w, 0
	for y := y0; y < y1; y++ {
		ra, rb := row(a, y), row(b, y)
		for x := 0; x < x0; x++ {
			if !bytes.Equal(ra[4*x:4*x+4], rb[4*x:4*x+4]) {
				x0 = x
				break
			}
		}
		for x := w - 1; x >= x1; x-- {
			if !bytes.Equal(ra[4*x:4*x+4], rb[4*x:4*x+4]) {
				x1 = x + 1
				break
			}
		}
	}
	return image.Rect(x0, y0, x1, y1)
}

// snapToEven moves the origin of r to even coordinates, growing r so it
// still covers the same pixels.
func snapToEven(r image.Rectangle) image.Rectangle {
	r.Min.X &^= 1
	r.Min.Y &^= 1
	return r
}

// qualityToMaxDiff maps the lossy quality to the per-channel difference
// under which two pixels count as equal.
func qualityToMaxDiff(q float32) int {
	v := math.Sqrt(float64(q) / 100)
	return int(31*(1-v) + v + 0.5)
}

// similar compares two pixels. With maxDiff 0 they must be identical;
// otherwise the alphas must match and each colour difference, weighted by
// alpha, stay within maxDiff.
func similar(a, b color.NRGBA, maxDiff int) bool {
	if maxDiff == 0 || a.A != b.A {
		return a == b
	}
	limit := maxDiff * 255
	d := func(x, y uint8) int { return abs(int(x)-int(y)) * int(b.A) }
	return d(a.R, b.R) <= limit && d(a.G, b.G) <= limit && d(a.B, b.B) <= limit
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// blendPossible reports whether alpha blending over base can reproduce
// curr in r once unchanged pixels are made transparent: every pixel must
// be opaque or unchanged.
func blendPossible(base, curr *image.NRGBA, r image.Rectangle, maxDiff int) bool {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c := curr.NRGBAAt(x, y)
			if c.A != 0xff && !similar(c, base.NRGBAAt(x, y), maxDiff) {
				return false
			}
		}
	}
	return true
}

// flattenUnchanged returns a copy of pic, the crop r of the current
// canvas, with the pixels that match base made transparent.
func flattenUnchanged(pic, base *image.NRGBA, r image.Rectangle, maxDiff int) *image.NRGBA {
	out := cloneNRGBA(pic)
	for y := 0; y < r.Dy(); y++ {
		for x := 0; x < r.Dx(); x++ {
			if similar(pic.NRGBAAt(x, y), base.NRGBAAt(r.Min.X+x, r.Min.Y+y), maxDiff) {
				out.SetNRGBA(x, y, color.NRGBA{})
			}
		}
	}
	return out
}
