package webpcodec

import (
	"fmt"
	"image"
	"image/color"
)

// PixelBuffer is a packed image: rows of Width pixels, each of Channels
// bytes in R, G, B(, A) order, without padding.
type PixelBuffer struct {
	Width    int
	Height   int
	Channels int // 3 or 4
	Pix      []byte
}

// Validate checks the geometry against the pixel data.
func (pb *PixelBuffer) Validate() error {
	if pb == nil {
		return fmt.Errorf("%w: nil", ErrInvalidPixelBuffer)
	}
	if pb.Width <= 0 || pb.Height <= 0 {
		return fmt.Errorf("%w: size %dx%d", ErrInvalidPixelBuffer, pb.Width, pb.Height)
	}
	if pb.Width > MaxDimension || pb.Height > MaxDimension {
		return fmt.Errorf("%w: %dx%d exceeds %d", ErrTooLarge, pb.Width, pb.Height, MaxDimension)
	}
	if pb.Channels != 3 && pb.Channels != 4 {
		return fmt.Errorf("%w: %d channels", ErrInvalidPixelBuffer, pb.Channels)
	}
	if want := pb.Width * pb.Height * pb.Channels; len(pb.Pix) != want {
		return fmt.Errorf("%w: %d bytes for %dx%dx%d", ErrInvalidPixelBuffer, len(pb.Pix), pb.Width, pb.Height, pb.Channels)
	}
	return nil
}

// HasAlpha reports whether a 4-channel buffer holds a pixel that is not
// fully opaque.
func (pb *PixelBuffer) HasAlpha() bool {
	if pb.Channels != 4 {
		return false
	}
	for i := 3; i < len(pb.Pix); i += 4 {
		if pb.Pix[i] != 0xff {
			return true
		}
	}
	return false
}

// NRGBA returns the buffer as an image, copying the pixels.
func (pb *PixelBuffer) NRGBA() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, pb.Width, pb.Height))
	if pb.Channels == 4 {
		copy(img.Pix, pb.Pix)
		return img
	}
	for i, j := 0, 0; j < len(pb.Pix); i, j = i+4, j+3 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = pb.Pix[j], pb.Pix[j+1], pb.Pix[j+2], 0xff
	}
	return img
}

// fromNRGBA packs img into a buffer of the given channel count.
func fromNRGBA(img *image.NRGBA, channels int) *PixelBuffer {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	pb := &PixelBuffer{Width: w, Height: h, Channels: channels, Pix: make([]byte, w*h*channels)}
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+4*w]
		if channels == 4 {
			copy(pb.Pix[y*w*4:], row)
			continue
		}
		dst := pb.Pix[y*w*3 : (y+1)*w*3]
		for x := 0; x < w; x++ {
			dst[3*x], dst[3*x+1], dst[3*x+2] = row[4*x], row[4*x+1], row[4*x+2]
		}
	}
	return pb
}

// fromImage converts any image to a 4-channel buffer.
func fromImage(img image.Image) *PixelBuffer {
	b := img.Bounds()
	if n, ok := img.(*image.NRGBA); ok {
		return fromNRGBA(n.SubImage(b).(*image.NRGBA), 4)
	}
	pb := &PixelBuffer{Width: b.Dx(), Height: b.Dy(), Channels: 4, Pix: make([]byte, 4*b.Dx()*b.Dy())}
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			pb.Pix[i], pb.Pix[i+1], pb.Pix[i+2], pb.Pix[i+3] = c.R, c.G, c.B, c.A
			i += 4
		}
	}
	return pb
}
