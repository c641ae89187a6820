package webpcodec

import (
	"bytes"
	"fmt"
	"image"
	"testing"

	"github.com/HugoSmits86/nativewebp"
	xwebp "golang.org/x/image/webp"
)

func benchPixels(w, h int) *PixelBuffer {
	return &PixelBuffer{Width: w, Height: h, Channels: 4, Pix: gradientPix(w, h, 4)}
}

func BenchmarkEncodeLossy(b *testing.B) {
	pb := benchPixels(640, 480)
	for _, q := range []float32{50, 75, 90} {
		b.Run(fmt.Sprintf("Q%.0f", q), func(b *testing.B) {
			b.SetBytes(int64(len(pb.Pix)))
			for i := 0; i < b.N; i++ {
				if _, err := EncodePixels(pb, &Config{Quality: q, Method: 4}); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkEncodeLossy_MethodSweep(b *testing.B) {
	pb := benchPixels(640, 480)
	for m := 0; m <= 6; m++ {
		b.Run(fmt.Sprintf("M%d", m), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := EncodePixels(pb, &Config{Quality: 75, Method: m}); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkEncodeLossless(b *testing.B) {
	pb := benchPixels(640, 480)
	for _, m := range []int{0, 4, 6} {
		b.Run(fmt.Sprintf("M%d", m), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := EncodePixels(pb, &Config{Lossless: true, Quality: 75, Method: m}); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkEncodeLossless_NativeWebP(b *testing.B) {
	img := benchPixels(640, 480).NRGBA()
	var buf bytes.Buffer
	for i := 0; i < b.N; i++ {
		buf.Reset()
		if err := nativewebp.Encode(&buf, img, nil); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDecode(b *testing.B) {
	pb := benchPixels(640, 480)
	lossy, err := EncodePixels(pb, &Config{Quality: 75, Method: 4})
	if err != nil {
		b.Fatal(err)
	}
	lossless, err := EncodePixels(pb, &Config{Lossless: true, Quality: 75, Method: 4})
	if err != nil {
		b.Fatal(err)
	}
	decoders := []struct {
		name   string
		decode func([]byte) (image.Image, error)
	}{
		{"webpcodec", func(d []byte) (image.Image, error) { return Decode(bytes.NewReader(d)) }},
		{"x-image", func(d []byte) (image.Image, error) { return xwebp.Decode(bytes.NewReader(d)) }},
		{"nativewebp", func(d []byte) (image.Image, error) { return nativewebp.Decode(bytes.NewReader(d)) }},
	}
	for _, in := range []struct {
		name string
		data []byte
	}{{"Lossy", lossy}, {"Lossless", lossless}} {
		for _, d := range decoders {
			if d.name == "nativewebp" && in.name == "Lossy" {
				continue
			}
			b.Run(in.name+"/"+d.name, func(b *testing.B) {
				b.SetBytes(int64(len(in.data)))
				for i := 0; i < b.N; i++ {
					if _, err := d.decode(in.data); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}

func BenchmarkStream(b *testing.B) {
	frames := make([]*PixelBuffer, 8)
	for i := range frames {
		frames[i] = benchPixels(160, 120)
		for j := 0; j < 4*160*4*(i+1); j++ {
			frames[i].Pix[j] ^= 0x5a
		}
	}
	for i := 0; i < b.N; i++ {
		h, err := NewStreamEncoder(160, 120, true, nil)
		if err != nil {
			b.Fatal(err)
		}
		for _, f := range frames {
			if err := StreamAddFrame(h, f, 40); err != nil {
				b.Fatal(err)
			}
		}
		if _, err := StreamFinalize(h); err != nil {
			b.Fatal(err)
		}
		StreamDispose(h)
	}
}

// TestFileSizes logs the output sizes next to the pure Go reference
// encoder.
func TestFileSizes(t *testing.T) {
	if testing.Short() {
		t.Skip("size report")
	}
	pb := benchPixels(320, 240)
	lossy, err := EncodePixels(pb, &Config{Quality: 75, Method: 4})
	if err != nil {
		t.Fatal(err)
	}
	lossless, err := EncodePixels(pb, &Config{Lossless: true, Quality: 75, Method: 4})
	if err != nil {
		t.Fatal(err)
	}
	var native bytes.Buffer
	if err := nativewebp.Encode(&native, pb.NRGBA(), nil); err != nil {
		t.Fatal(err)
	}
	t.Logf("lossy q75:            %6d bytes", len(lossy))
	t.Logf("lossless:             %6d bytes", len(lossless))
	t.Logf("nativewebp lossless:  %6d bytes", native.Len())
}
