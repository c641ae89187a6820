package animation

import (
	"fmt"
	"image"

	"github.com/deepteams/webpcodec/internal/lossless"
	"github.com/deepteams/webpcodec/internal/lossy"
	"github.com/deepteams/webpcodec/mux"
)

// CodecOptions configure the coding of a single frame.
type CodecOptions struct {
	Lossless     bool
	Quality      float32
	Method       int
	AlphaQuality int
	SharpYUV     bool
}

// FrameEncoderFunc codes one picture as a VP8 (plus ALPH) or VP8L image.
// It can be replaced to plug in another encoder.
var FrameEncoderFunc = EncodeFrame

// FrameDecoderFunc decodes one coded picture. It can be replaced to plug
// in another decoder.
var FrameDecoderFunc = DecodeFrame

// EncodeFrame codes img with the built-in encoders. Lossy pictures get an
// ALPH chunk only when some pixel is not opaque.
func EncodeFrame(img *image.NRGBA, o CodecOptions) (mux.Image, error) {
	img = toNRGBA(img)
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if o.Lossless {
		bs, err := lossless.Encode(img.Pix, w, h, 4, lossless.Options{
			Quality: o.Quality,
			Method:  o.Method,
			Exact:   true,
		})
		if err != nil {
			return mux.Image{}, err
		}
		return mux.Image{Bitstream: bs, Lossless: true}, nil
	}
	bs, err := lossy.EncodeFrame(img.Pix, w, h, 4, lossy.Options{
		Quality:  o.Quality,
		Method:   o.Method,
		SharpYUV: o.SharpYUV,
	})
	if err != nil {
		return mux.Image{}, err
	}
	out := mux.Image{Bitstream: bs}
	if plane, ok := alphaPlane(img); ok {
		ao := lossy.DefaultAlphaOptions()
		ao.Quality = o.AlphaQuality
		ao.Method = min(o.Method, 2)
		if out.Alpha, err = lossy.EncodeAlpha(plane, w, h, ao); err != nil {
			return mux.Image{}, err
		}
	}
	return out, nil
}

// DecodeFrame decodes a coded picture with the built-in decoders.
func DecodeFrame(img mux.Image) (*image.NRGBA, error) {
	if img.Lossless {
		return lossless.Decode(img.Bitstream)
	}
	yuv, err := lossy.DecodeFrame(img.Bitstream)
	if err != nil {
		return nil, err
	}
	out := &image.NRGBA{
		Pix:    yuv.ToRGB(4),
		Stride: 4 * yuv.Width,
		Rect:   image.Rect(0, 0, yuv.Width, yuv.Height),
	}
	if img.Alpha == nil {
		return out, nil
	}
	plane, err := lossy.DecodeAlpha(img.Alpha, yuv.Width, yuv.Height)
	if err != nil {
		return nil, fmt.Errorf("alpha: %w", err)
	}
	for i, a := range plane {
		out.Pix[4*i+3] = a
	}
	return out, nil
}

// alphaPlane extracts the alpha channel, reporting false when the image
// is fully opaque.
func alphaPlane(img *image.NRGBA) ([]byte, bool) {
	plane := make([]byte, len(img.Pix)/4)
	opaque := true
	for i := range plane {
		plane[i] = img.Pix[4*i+3]
		opaque = opaque && plane[i] == 0xff
	}
	return plane, !opaque
}
