package animation

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/deepteams/webpcodec/mux"
)

// Animation is a decoded animated file.
type Animation struct {
	Width, Height int
	LoopCount     int // 0 means forever
	Background    color.NRGBA
	Frames        []Frame
	ICC           []byte
	EXIF          []byte
	XMP           []byte
}

// TotalDuration returns the sum of the frame durations.
func (a *Animation) TotalDuration() time.Duration {
	var d time.Duration
	for i := range a.Frames {
		d += a.Frames[i].Duration
	}
	return d
}

// Decode decodes every frame of data in file order and composites it onto
// the canvas. Each returned frame owns its canvas image. A still file
// decodes to a single frame with zero duration.
func Decode(data []byte) (*Animation, error) {
	d, err := mux.NewDemuxer(data)
	if err != nil {
		return nil, err
	}
	feat := d.Features()
	anim := &Animation{
		Width:      feat.Width,
		Height:     feat.Height,
		LoopCount:  feat.LoopCount,
		Background: bgraToNRGBA(feat.Background),
		Frames:     make([]Frame, 0, d.NumFrames()),
		ICC:        d.ICCProfile(),
		EXIF:       d.EXIF(),
		XMP:        d.XMP(),
	}
	c := newCompositor(feat.Width, feat.Height)
	for i, fi := range d.Frames() {
		pic, err := FrameDecoderFunc(fi.Image)
		if err != nil {
			return nil, fmt.Errorf("animation: frame %d: %w", i, err)
		}
		f := Frame{
			Duration: time.Duration(fi.Duration) * time.Millisecond,
			X:        fi.X,
			Y:        fi.Y,
			Width:    fi.Width,
			Height:   fi.Height,
			Dispose:  fi.Dispose,
			Blend:    fi.Blend,
		}
		f.Image = c.render(&f, pic)
		anim.Frames = append(anim.Frames, f)
	}
	return anim, nil
}

// compositor keeps the canvas between frames. The canvas starts
// transparent, and dispose-to-background clears to transparent as well;
// the ANIM background colour is only a hint for players.
type compositor struct {
	canvas *image.NRGBA
}

func newCompositor(width, height int) *compositor {
	return &compositor{canvas: image.NewNRGBA(image.Rect(0, 0, width, height))}
}

// render draws pic at f's position, returns a snapshot of the canvas and
// then applies f's dispose method.
func (c *compositor) render(f *Frame, pic *image.NRGBA) *image.NRGBA {
	r := f.Rect().Intersect(c.canvas.Bounds()).Intersect(pic.Bounds().Add(image.Pt(f.X, f.Y)))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			src := pic.NRGBAAt(x-f.X, y-f.Y)
			if f.Blend == BlendAlpha {
				src = blendPixel(src, c.canvas.NRGBAAt(x, y))
			}
			c.canvas.SetNRGBA(x, y, src)
		}
	}
	snap := cloneNRGBA(c.canvas)
	if f.Dispose == DisposeBackground {
		clearRect(c.canvas, r)
	}
	return snap
}
