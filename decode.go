package webpcodec

import (
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/deepteams/webpcodec/animation"
	"github.com/deepteams/webpcodec/internal/container"
	"github.com/deepteams/webpcodec/mux"
)

func init() {
	image.RegisterFormat("webp", "RIFF????WEBP", Decode, DecodeConfig)
}

// Features describes a WebP file without decoding its pixels.
type Features = container.Features

// DecodedFrame is one fully composited frame of an animation. Pixels is
// an independent copy of the canvas.
type DecodedFrame struct {
	Pixels     PixelBuffer
	DurationMs int
	Width      int
	Height     int
}

// readAll reads r to the end, allocating once when r knows its length.
func readAll(r io.Reader) ([]byte, error) {
	if lr, ok := r.(interface{ Len() int }); ok && lr.Len() > 0 {
		data := make([]byte, lr.Len())
		_, err := io.ReadFull(r, data)
		return data, err
	}
	return io.ReadAll(r)
}

// Decode reads a WebP image from r. Animations yield their first
// composited frame.
func Decode(r io.Reader) (image.Image, error) {
	data, err := readAll(r)
	if err != nil {
		return nil, err
	}
	return decodeNRGBA(data)
}

// DecodeConfig returns the colour model and canvas size of a WebP image.
func DecodeConfig(r io.Reader) (image.Config, error) {
	data, err := readAll(r)
	if err != nil {
		return image.Config{}, err
	}
	f, err := GetFeatures(data)
	if err != nil {
		return image.Config{}, err
	}
	cfg := image.Config{Width: f.Width, Height: f.Height, ColorModel: color.NRGBAModel}
	if !f.HasAlpha {
		cfg.ColorModel = color.RGBAModel
	}
	return cfg, nil
}

// GetFeatures parses the container headers of data.
func GetFeatures(data []byte) (Features, error) {
	f, err := container.GetFeatures(data)
	if err != nil {
		return Features{}, fmt.Errorf("webp: %w", err)
	}
	return f, nil
}

// DecodePixels decodes data into a packed buffer with 4 channels when
// the file carries alpha and 3 otherwise.
func DecodePixels(data []byte) (*PixelBuffer, error) {
	f, err := GetFeatures(data)
	if err != nil {
		return nil, err
	}
	img, err := decodeNRGBA(data)
	if err != nil {
		return nil, err
	}
	if f.HasAlpha {
		return fromNRGBA(img, 4), nil
	}
	return fromNRGBA(img, 3), nil
}

// DecodeRGB decodes data into packed RGB pixels, dropping alpha.
func DecodeRGB(data []byte) (pix []byte, width, height int, err error) {
	return decodeChannels(data, 3)
}

// DecodeRGBA decodes data into packed RGBA pixels.
func DecodeRGBA(data []byte) (pix []byte, width, height int, err error) {
	return decodeChannels(data, 4)
}

func decodeChannels(data []byte, channels int) ([]byte, int, int, error) {
	img, err := decodeNRGBA(data)
	if err != nil {
		return nil, 0, 0, err
	}
	pb := fromNRGBA(img, channels)
	return pb.Pix, pb.Width, pb.Height, nil
}

// DecodeAnimation decodes every frame of data composited onto the
// canvas, in file order. A still image yields a single frame with zero
// duration. Frames have 4 channels when hasAlpha is set and 3 otherwise.
func DecodeAnimation(data []byte, hasAlpha bool) ([]DecodedFrame, error) {
	anim, err := animation.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("webp: %w", err)
	}
	channels := 3
	if hasAlpha {
		channels = 4
	}
	out := make([]DecodedFrame, len(anim.Frames))
	for i, f := range anim.Frames {
		out[i] = DecodedFrame{
			Pixels:     *fromNRGBA(f.Image, channels),
			DurationMs: int(f.Duration.Milliseconds()),
			Width:      anim.Width,
			Height:     anim.Height,
		}
	}
	return out, nil
}

// decodeNRGBA decodes a still image, or the first frame of an animation.
func decodeNRGBA(data []byte) (*image.NRGBA, error) {
	d, err := mux.NewDemuxer(data)
	if err != nil {
		return nil, fmt.Errorf("webp: %w", err)
	}
	if d.Features().HasAnimation {
		anim, err := animation.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("webp: %w", err)
		}
		return anim.Frames[0].Image, nil
	}
	fi, err := d.Frame(0)
	if err != nil {
		return nil, fmt.Errorf("webp: %w", err)
	}
	img, err := animation.FrameDecoderFunc(fi.Image)
	if err != nil {
		return nil, fmt.Errorf("webp: decode: %w", err)
	}
	return img, nil
}
