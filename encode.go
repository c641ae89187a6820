package webpcodec

import (
	"fmt"
	"image"
	"io"
	"slices"

	"github.com/deepteams/webpcodec/internal/container"
	"github.com/deepteams/webpcodec/internal/lossless"
	"github.com/deepteams/webpcodec/internal/lossy"
	"github.com/deepteams/webpcodec/mux"
)

// Encode writes img to w as a still WebP image. A nil config selects
// DefaultConfig.
func Encode(w io.Writer, img image.Image, c *Config) error {
	data, err := EncodePixels(fromImage(img), c)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// EncodeRGB encodes packed 3-channel pixels.
func EncodeRGB(pix []byte, width, height int, c *Config) ([]byte, error) {
	return EncodePixels(&PixelBuffer{Width: width, Height: height, Channels: 3, Pix: pix}, c)
}

// EncodeRGBA encodes packed 4-channel pixels.
func EncodeRGBA(pix []byte, width, height int, c *Config) ([]byte, error) {
	return EncodePixels(&PixelBuffer{Width: width, Height: height, Channels: 4, Pix: pix}, c)
}

// EncodePixels validates pb and encodes it as a complete WebP file. Lossy
// images whose alpha is fully opaque are written without an ALPH chunk.
func EncodePixels(pb *PixelBuffer, c *Config) ([]byte, error) {
	if err := pb.Validate(); err != nil {
		return nil, err
	}
	cfg := resolveConfig(c)
	var (
		img mux.Image
		err error
	)
	if cfg.Lossless {
		img, err = encodeLossless(pb, cfg)
	} else {
		img, err = encodeLossy(pb, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("webp: encode: %w", err)
	}
	m := mux.NewMuxer()
	if err := m.SetImage(img); err != nil {
		return nil, fmt.Errorf("webp: encode: %w", err)
	}
	return m.Assemble()
}

func encodeLossless(pb *PixelBuffer, cfg Config) (mux.Image, error) {
	bs, err := lossless.Encode(pb.Pix, pb.Width, pb.Height, pb.Channels, lossless.Options{
		Quality:      cfg.Quality,
		Method:       cfg.Method,
		Exact:        true,
		NearLossless: cfg.NearLossless,
	})
	if err != nil {
		return mux.Image{}, err
	}
	return mux.Image{Bitstream: bs, Lossless: true}, nil
}

func encodeLossy(pb *PixelBuffer, cfg Config) (mux.Image, error) {
	if pb.Width > container.VP8MaxDim || pb.Height > container.VP8MaxDim {
		return mux.Image{}, fmt.Errorf("%w: %dx%d exceeds the VP8 limit of %d",
			ErrTooLarge, pb.Width, pb.Height, container.VP8MaxDim)
	}
	pix := pb.Pix
	hasAlpha := pb.HasAlpha()
	if hasAlpha && !cfg.Exact {
		pix = slices.Clone(pix)
		cleanupTransparentArea(pix, pb.Width, pb.Height)
	}
	bs, err := lossy.EncodeFrame(pix, pb.Width, pb.Height, pb.Channels, lossy.Options{
		Quality:     cfg.Quality,
		Method:      cfg.Method,
		SharpYUV:    cfg.SharpYUV,
		Segments:    cfg.Segments,
		SNSStrength: cfg.SNSStrength,
		Partitions:  cfg.Partitions,
	})
	if err != nil {
		return mux.Image{}, err
	}
	img := mux.Image{Bitstream: bs}
	if !hasAlpha {
		return img, nil
	}
	ao := lossy.DefaultAlphaOptions()
	ao.Quality = cfg.AlphaQuality
	ao.Method = min(cfg.Method, 2)
	if img.Alpha, err = lossy.EncodeAlpha(extractAlpha(pb.Pix), pb.Width, pb.Height, ao); err != nil {
		return mux.Image{}, fmt.Errorf("alpha: %w", err)
	}
	return img, nil
}

// extractAlpha returns the alpha plane of 4-channel pixels.
func extractAlpha(pix []byte) []byte {
	plane := make([]byte, len(pix)/4)
	for i := range plane {
		plane[i] = pix[4*i+3]
	}
	return plane
}

const cleanupBlock = 8

// cleanupTransparentArea rewrites the hidden colour of fully transparent
// pixels in packed RGBA so the lossy coder spends fewer bits on it. In
// blocks with some visible pixels, hidden pixels take the visible average.
// Fully transparent blocks are flattened to the colour of the first block
// of their run along the row.
func cleanupTransparentArea(pix []byte, width, height int) {
	for by := 0; by < height; by += cleanupBlock {
		bh := min(cleanupBlock, height-by)
		var carry [3]byte
		inRun := false
		for bx := 0; bx < width; bx += cleanupBlock {
			bw := min(cleanupBlock, width-bx)
			if smoothenBlock(pix, width, bx, by, bw, bh) {
				inRun = false
				continue
			}
			// Only whole blocks join a flat run; edge remainders are left.
			if bw < cleanupBlock || bh < cleanupBlock {
				continue
			}
			if !inRun {
				o := 4 * (by*width + bx)
				carry = [3]byte{pix[o], pix[o+1], pix[o+2]}
				inRun = true
			}
			flattenBlock(pix, width, bx, by, bw, bh, carry)
		}
	}
}

// smoothenBlock sets every transparent pixel of the block to the mean
// colour of its visible pixels. It reports false when nothing is visible.
func smoothenBlock(pix []byte, stride, bx, by, bw, bh int) bool {
	var sum [3]int
	n := 0
	for y := by; y < by+bh; y++ {
		for x := bx; x < bx+bw; x++ {
			o := 4 * (y*stride + x)
			if pix[o+3] != 0 {
				sum[0] += int(pix[o])
				sum[1] += int(pix[o+1])
				sum[2] += int(pix[o+2])
				n++
			}
		}
	}
	if n == 0 {
		return false
	}
	if n == bw*bh {
		return true
	}
	avg := [3]byte{byte(sum[0] / n), byte(sum[1] / n), byte(sum[2] / n)}
	for y := by; y < by+bh; y++ {
		for x := bx; x < bx+bw; x++ {
			o := 4 * (y*stride + x)
			if pix[o+3] == 0 {
				pix[o], pix[o+1], pix[o+2] = avg[0], avg[1], avg[2]
			}
		}
	}
	return true
}

func flattenBlock(pix []byte, stride, bx, by, bw, bh int, c [3]byte) {
	for y := by; y < by+bh; y++ {
		for x := bx; x < bx+bw; x++ {
			o := 4 * (y*stride + x)
			pix[o], pix[o+1], pix[o+2] = c[0], c[1], c[2]
		}
	}
}
