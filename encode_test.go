package webpcodec

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"math/rand"
	"testing"
)

func gradientPix(w, h, channels int) []byte {
	pix := make([]byte, w*h*channels)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := (y*w + x) * channels
			pix[o] = uint8(x * 255 / max(w-1, 1))
			pix[o+1] = uint8(y * 255 / max(h-1, 1))
			pix[o+2] = uint8((x + y) * 127 / max(w+h-2, 1))
			if channels == 4 {
				pix[o+3] = 0xff
			}
		}
	}
	return pix
}

func meanAbsDiff(a, b []byte) float64 {
	var sum int
	for i := range a {
		d := int(a[i]) - int(b[i])
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return float64(sum) / float64(len(a))
}

func TestConfig_Normalize(t *testing.T) {
	tests := []struct {
		in, want Config
	}{
		{Config{Quality: -5, Method: -1, AlphaQuality: -3, Segments: -1, SNSStrength: -8, Partitions: -2, NearLossless: -1}, Config{}},
		{
			Config{Quality: 250, Method: 9, AlphaQuality: 300, Segments: 7, SNSStrength: 101, Partitions: 4, NearLossless: 150},
			Config{Quality: 100, Method: 6, AlphaQuality: 100, Segments: 4, SNSStrength: 100, Partitions: 3, NearLossless: 100},
		},
		{*DefaultConfig(), *DefaultConfig()},
		{Config{Lossless: true, Quality: 50, Method: 3, Exact: true}, Config{Lossless: true, Quality: 50, Method: 3, Exact: true}},
	}
	for _, tt := range tests {
		if got := tt.in.Normalize(); got != tt.want {
			t.Errorf("Normalize(%+v) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	want := Config{Quality: 75, Method: 4, AlphaQuality: 100, Segments: 4, SNSStrength: 50}
	if *c != want {
		t.Fatalf("DefaultConfig() = %+v, want %+v", *c, want)
	}
}

func TestPixelBuffer_Validate(t *testing.T) {
	tests := []struct {
		name string
		pb   *PixelBuffer
		want error
	}{
		{"ok rgb", &PixelBuffer{Width: 2, Height: 3, Channels: 3, Pix: make([]byte, 18)}, nil},
		{"ok rgba", &PixelBuffer{Width: 2, Height: 3, Channels: 4, Pix: make([]byte, 24)}, nil},
		{"nil", nil, ErrInvalidPixelBuffer},
		{"zero width", &PixelBuffer{Width: 0, Height: 3, Channels: 3}, ErrInvalidPixelBuffer},
		{"negative height", &PixelBuffer{Width: 2, Height: -1, Channels: 3}, ErrInvalidPixelBuffer},
		{"two channels", &PixelBuffer{Width: 2, Height: 2, Channels: 2, Pix: make([]byte, 8)}, ErrInvalidPixelBuffer},
		{"short", &PixelBuffer{Width: 2, Height: 2, Channels: 4, Pix: make([]byte, 15)}, ErrInvalidPixelBuffer},
		{"long", &PixelBuffer{Width: 2, Height: 2, Channels: 3, Pix: make([]byte, 13)}, ErrInvalidPixelBuffer},
		{"too wide", &PixelBuffer{Width: MaxDimension + 1, Height: 1, Channels: 3}, ErrTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pb.Validate()
			if tt.want == nil {
				if err != nil {
					t.Fatalf("Validate() = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEncodeRGBA_Lossless2x2(t *testing.T) {
	pix := []byte{
		255, 0, 0, 255, 0, 255, 0, 255,
		0, 0, 255, 255, 255, 255, 255, 128,
	}
	data, err := EncodeRGBA(pix, 2, 2, &Config{Lossless: true, Quality: 75, Method: 4})
	if err != nil {
		t.Fatalf("EncodeRGBA: %v", err)
	}
	pb, err := DecodePixels(data)
	if err != nil {
		t.Fatalf("DecodePixels: %v", err)
	}
	if pb.Width != 2 || pb.Height != 2 || pb.Channels != 4 {
		t.Fatalf("decoded %dx%dx%d, want 2x2x4", pb.Width, pb.Height, pb.Channels)
	}
	if !bytes.Equal(pb.Pix, pix) {
		t.Fatalf("pixels = %v, want %v", pb.Pix, pix)
	}
}

func TestEncodeRGBA_LosslessKeepsTransparentColour(t *testing.T) {
	pix := []byte{
		255, 255, 255, 255, 200, 10, 20, 0,
		0, 255, 0, 255, 0, 0, 255, 255,
	}
	lossless := DefaultConfig()
	lossless.Lossless = true
	for _, cfg := range []*Config{{Lossless: true}, lossless} {
		data, err := EncodeRGBA(pix, 2, 2, cfg)
		if err != nil {
			t.Fatalf("EncodeRGBA(%+v): %v", *cfg, err)
		}
		got, _, _, err := DecodeRGBA(data)
		if err != nil {
			t.Fatalf("DecodeRGBA: %v", err)
		}
		if !bytes.Equal(got, pix) {
			t.Fatalf("config %+v: pixels = %v, want %v", *cfg, got, pix)
		}
	}
}

func TestEncodeRGBA_LossyOpaqueDropsAlpha(t *testing.T) {
	pix := []byte{
		255, 0, 0, 255, 0, 255, 0, 255,
		0, 0, 255, 255, 255, 255, 255, 255,
	}
	data, err := EncodeRGBA(pix, 2, 2, &Config{Quality: 50, Method: 4, AlphaQuality: 100})
	if err != nil {
		t.Fatalf("EncodeRGBA: %v", err)
	}
	f, err := GetFeatures(data)
	if err != nil {
		t.Fatalf("GetFeatures: %v", err)
	}
	if f.HasAlpha || f.Extended {
		t.Fatalf("features = %+v, want simple opaque file", f)
	}
	pb, err := DecodePixels(data)
	if err != nil {
		t.Fatalf("DecodePixels: %v", err)
	}
	if pb.Width != 2 || pb.Height != 2 || pb.Channels != 3 || len(pb.Pix) != 12 {
		t.Fatalf("decoded %dx%dx%d (%d bytes), want 2x2x3", pb.Width, pb.Height, pb.Channels, len(pb.Pix))
	}
}

func TestEncodeRGB_RoundTrip(t *testing.T) {
	const w, h = 40, 24
	pix := gradientPix(w, h, 3)
	tests := []struct {
		name    string
		cfg     *Config
		maxDiff float64
	}{
		{"lossless", &Config{Lossless: true, Quality: 60, Method: 2}, 0},
		{"lossy default", nil, 6},
		{"lossy q95", &Config{Quality: 95, Method: 6}, 4},
		{"lossy method 0", &Config{Quality: 80, Method: 0}, 8},
		{"lossy sharp yuv", &Config{Quality: 90, Method: 4, SharpYUV: true}, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeRGB(pix, w, h, tt.cfg)
			if err != nil {
				t.Fatalf("EncodeRGB: %v", err)
			}
			got, gw, gh, err := DecodeRGB(data)
			if err != nil {
				t.Fatalf("DecodeRGB: %v", err)
			}
			if gw != w || gh != h {
				t.Fatalf("size %dx%d, want %dx%d", gw, gh, w, h)
			}
			if d := meanAbsDiff(pix, got); d > tt.maxDiff {
				t.Fatalf("mean abs diff %.2f > %.2f", d, tt.maxDiff)
			}
		})
	}
}

func TestEncodeRGB_Quality100MaxError(t *testing.T) {
	const w, h = 40, 24
	pix := gradientPix(w, h, 3)
	data, err := EncodeRGB(pix, w, h, &Config{Quality: 100, Method: 0})
	if err != nil {
		t.Fatalf("EncodeRGB: %v", err)
	}
	got, _, _, err := DecodeRGB(data)
	if err != nil {
		t.Fatalf("DecodeRGB: %v", err)
	}
	worst := 0
	for i := range pix {
		worst = max(worst, abs(int(pix[i])-int(got[i])))
	}
	if worst > 16 {
		t.Fatalf("max channel error %d > 16", worst)
	}
}

func TestEncodeRGB_LossyTuning(t *testing.T) {
	const w, h = 64, 48
	pix := gradientPix(w, h, 3)
	for _, cfg := range []*Config{
		{Quality: 75, Method: 4, Segments: 4, SNSStrength: 100, Partitions: 2},
		{Quality: 75, Method: 6, Segments: 2, SNSStrength: 30, Partitions: 3},
		{Quality: 75, Method: 3, Segments: 1},
	} {
		data, err := EncodeRGB(pix, w, h, cfg)
		if err != nil {
			t.Fatalf("%+v: EncodeRGB: %v", *cfg, err)
		}
		got, _, _, err := DecodeRGB(data)
		if err != nil {
			t.Fatalf("%+v: DecodeRGB: %v", *cfg, err)
		}
		if d := meanAbsDiff(pix, got); d > 6 {
			t.Fatalf("%+v: mean abs diff %.2f > 6", *cfg, d)
		}
	}
}

func TestEncodeRGB_NearLossless(t *testing.T) {
	const w, h = 96, 96
	rng := rand.New(rand.NewSource(3))
	pix := make([]byte, w*h*3)
	rng.Read(pix)
	data, err := EncodeRGB(pix, w, h, &Config{Lossless: true, Quality: 50, Method: 3, NearLossless: 60})
	if err != nil {
		t.Fatalf("EncodeRGB: %v", err)
	}
	got, _, _, err := DecodeRGB(data)
	if err != nil {
		t.Fatalf("DecodeRGB: %v", err)
	}
	worst := 0
	for i := range pix {
		worst = max(worst, abs(int(pix[i])-int(got[i])))
	}
	if worst == 0 || worst > 2 {
		t.Fatalf("max channel error %d, want 1 or 2", worst)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func TestEncodePixels_LossyAlpha(t *testing.T) {
	const w, h = 24, 24
	pix := gradientPix(w, h, 4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pix[(y*w+x)*4+3] = uint8(x * 10)
		}
	}
	for _, exact := range []bool{false, true} {
		data, err := EncodeRGBA(pix, w, h, &Config{Quality: 90, Method: 4, AlphaQuality: 100, Exact: exact})
		if err != nil {
			t.Fatalf("exact=%v: EncodeRGBA: %v", exact, err)
		}
		f, err := GetFeatures(data)
		if err != nil {
			t.Fatal(err)
		}
		if !f.HasAlpha || !f.Extended || f.Format.String() != "lossy" {
			t.Fatalf("exact=%v: features = %+v", exact, f)
		}
		pb, err := DecodePixels(data)
		if err != nil {
			t.Fatalf("exact=%v: DecodePixels: %v", exact, err)
		}
		if pb.Channels != 4 {
			t.Fatalf("exact=%v: channels = %d, want 4", exact, pb.Channels)
		}
		for i := 3; i < len(pix); i += 4 {
			if pb.Pix[i] != pix[i] {
				t.Fatalf("exact=%v: alpha at %d = %d, want %d", exact, i/4, pb.Pix[i], pix[i])
			}
		}
	}
}

func TestEncodePixels_AlphaQuality(t *testing.T) {
	const w, h = 16, 16
	pix := gradientPix(w, h, 4)
	seed := uint32(1)
	for i := 3; i < len(pix); i += 4 {
		seed = seed*1664525 + 1013904223
		pix[i] = uint8(seed >> 24)
	}
	full, err := EncodeRGBA(pix, w, h, &Config{Quality: 75, Method: 4, AlphaQuality: 100})
	if err != nil {
		t.Fatal(err)
	}
	reduced, err := EncodeRGBA(pix, w, h, &Config{Quality: 75, Method: 4, AlphaQuality: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(reduced) >= len(full) {
		t.Errorf("alpha quality 10 gave %d bytes, not below %d", len(reduced), len(full))
	}
}

func TestEncodePixels_Errors(t *testing.T) {
	tests := []struct {
		name string
		pb   *PixelBuffer
		cfg  *Config
		want error
	}{
		{"bad buffer", &PixelBuffer{Width: 2, Height: 2, Channels: 3, Pix: make([]byte, 5)}, nil, ErrInvalidPixelBuffer},
		{"lossy too wide", &PixelBuffer{Width: MaxDimension, Height: 1, Channels: 3, Pix: make([]byte, 3*MaxDimension)}, nil, ErrTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodePixels(tt.pb, tt.cfg)
			if !errors.Is(err, tt.want) {
				t.Fatalf("EncodePixels() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEncode_Image(t *testing.T) {
	img := image.NewRGBA(image.Rect(3, 5, 19, 13))
	for y := img.Rect.Min.Y; y < img.Rect.Max.Y; y++ {
		for x := img.Rect.Min.X; x < img.Rect.Max.X; x++ {
			img.SetRGBA(x, y, color.RGBA{uint8(x * 12), uint8(y * 16), 90, 255})
		}
	}
	var buf bytes.Buffer
	if err := Encode(&buf, img, &Config{Lossless: true, Quality: 50}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Bounds() != image.Rect(0, 0, 16, 8) {
		t.Fatalf("bounds = %v", got.Bounds())
	}
	for y := 0; y < 8; y++ {
		for x := 0; x < 16; x++ {
			want := img.RGBAAt(x+3, y+5)
			r, g, b, a := got.At(x, y).RGBA()
			if uint8(r>>8) != want.R || uint8(g>>8) != want.G || uint8(b>>8) != want.B || uint8(a>>8) != want.A {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got.At(x, y), want)
			}
		}
	}
}

func TestCleanupTransparentArea(t *testing.T) {
	const w, h = 20, 9
	pix := make([]byte, 4*w*h)
	for i := range pix {
		pix[i] = uint8(i * 7)
	}
	set := func(x, y int, c color.NRGBA) {
		o := 4 * (y*w + x)
		pix[o], pix[o+1], pix[o+2], pix[o+3] = c.R, c.G, c.B, c.A
	}
	// Block (0,0) holds two visible pixels; every other pixel is hidden.
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pix[4*(y*w+x)+3] = 0
		}
	}
	set(1, 1, color.NRGBA{100, 50, 10, 255})
	set(2, 1, color.NRGBA{200, 150, 30, 128})

	cleanupTransparentArea(pix, w, h)

	at := func(x, y int) [4]byte {
		o := 4 * (y*w + x)
		return [4]byte{pix[o], pix[o+1], pix[o+2], pix[o+3]}
	}
	if got := at(5, 6); got != [4]byte{150, 100, 20, 0} {
		t.Errorf("hidden pixel in mixed block = %v, want mean colour", got)
	}
	if got := at(1, 1); got != [4]byte{100, 50, 10, 255} {
		t.Errorf("visible pixel changed to %v", got)
	}
	first := at(8, 0)
	for _, p := range [][2]int{{9, 3}, {15, 7}} {
		if got := at(p[0], p[1]); got != first {
			t.Errorf("flat block pixel %v = %v, want %v", p, got, first)
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if pix[4*(y*w+x)+3] != 0 && !(x == 1 || x == 2) {
				t.Fatalf("alpha at (%d,%d) changed", x, y)
			}
		}
	}
}
