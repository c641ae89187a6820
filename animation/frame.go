// Package animation builds and plays back animated WebP files.
//
// The Encoder turns a sequence of full-canvas pictures into ANMF frames,
// cropping each one to the region that changed. Decode demultiplexes a
// file and composites every frame onto the canvas. The Arena holds
// streaming encoder sessions addressed by opaque handles.
package animation

import (
	"image"
	"image/color"
	"time"

	"github.com/deepteams/webpcodec/internal/container"
)

// DisposeMethod says what happens to a frame's area once it has been shown.
type DisposeMethod = container.Dispose

const (
	// DisposeNone leaves the canvas as it is.
	DisposeNone = container.DisposeNone
	// DisposeBackground clears the frame's area to transparent.
	DisposeBackground = container.DisposeBackground
)

// BlendMethod says how a frame is combined with the canvas beneath it.
type BlendMethod = container.Blend

const (
	// BlendAlpha draws the frame over the canvas using its alpha.
	BlendAlpha = container.BlendAlpha
	// BlendNone overwrites the frame's area.
	BlendNone = container.BlendNone
)

// Frame is one displayed picture of an animation. For decoded animations
// Image is the whole canvas after compositing, while the placement fields
// describe the ANMF chunk it came from.
type Frame struct {
	Image    *image.NRGBA
	Duration time.Duration
	X, Y     int
	Width    int
	Height   int
	Dispose  DisposeMethod
	Blend    BlendMethod
}

// Rect returns the area the frame's ANMF chunk covers on the canvas.
func (f *Frame) Rect() image.Rectangle {
	return image.Rect(f.X, f.Y, f.X+f.Width, f.Y+f.Height)
}

// toNRGBA returns src as an NRGBA image anchored at the origin.
func toNRGBA(src image.Image) *image.NRGBA {
	b := src.Bounds()
	if n, ok := src.(*image.NRGBA); ok && b.Min == (image.Point{}) && n.Stride == 4*b.Dx() {
		return n
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			dst.SetNRGBA(x, y, color.NRGBAModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA))
		}
	}
	return dst
}

func cloneNRGBA(src *image.NRGBA) *image.NRGBA {
	dst := image.NewNRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}

// crop copies r out of src into a new origin-anchored image.
func crop(src *image.NRGBA, r image.Rectangle) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		s := src.PixOffset(r.Min.X, r.Min.Y+y)
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+4*r.Dx()], src.Pix[s:s+4*r.Dx()])
	}
	return dst
}

// clearRect sets r to transparent black.
func clearRect(canvas *image.NRGBA, r image.Rectangle) {
	r = r.Intersect(canvas.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		clear(canvas.Pix[canvas.PixOffset(r.Min.X, y):canvas.PixOffset(r.Max.X, y)])
	}
}

// blendPixel composites src over dst in non-premultiplied space, with the
// integer rounding of the reference decoder.
func blendPixel(src, dst color.NRGBA) color.NRGBA {
	switch {
	case src.A == 0:
		return dst
	case src.A == 255 || dst.A == 0:
		return src
	}
	sa := uint32(src.A)
	da := (uint32(dst.A) * (256 - sa)) >> 8
	a := sa + da
	scale := (1 << 24) / a
	mix := func(s, d uint8) uint8 {
		return uint8(min((uint32(s)*sa+uint32(d)*da)*scale>>24, 255))
	}
	return color.NRGBA{R: mix(src.R, dst.R), G: mix(src.G, dst.G), B: mix(src.B, dst.B), A: uint8(a)}
}

// nrgbaToBGRA packs a colour in the byte order of the ANIM background field.
func nrgbaToBGRA(c color.NRGBA) uint32 {
	return uint32(c.A)<<24 | uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

func bgraToNRGBA(v uint32) color.NRGBA {
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: uint8(v >> 24)}
}
