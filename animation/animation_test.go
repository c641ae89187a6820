package animation

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/deepteams/webpcodec/internal/container"
	"github.com/deepteams/webpcodec/mux"
)

// scene draws a gradient background with a square at (pos, pos).
func scene(w, h, pos int, square color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 8), G: uint8(y * 8), B: 0x40, A: 0xff})
		}
	}
	for y := pos; y < min(pos+4, h); y++ {
		for x := pos; x < min(pos+4, w); x++ {
			img.SetNRGBA(x, y, square)
		}
	}
	return img
}

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func encodeAll(t *testing.T, opts *EncodeOptions, frames []*image.NRGBA, durations []int) []byte {
	t.Helper()
	b := frames[0].Bounds()
	enc, err := NewEncoder(b.Dx(), b.Dy(), opts)
	if err != nil {
		t.Fatal(err)
	}
	for i, f := range frames {
		if err := enc.AddFrame(f, time.Duration(durations[i])*time.Millisecond); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
	data, err := enc.Assemble()
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func losslessOptions(s StreamOptions) *EncodeOptions {
	s.Lossless = true
	return &EncodeOptions{StreamOptions: s}
}

func TestBlendPixel(t *testing.T) {
	tests := []struct {
		name     string
		src, dst color.NRGBA
		want     color.NRGBA
	}{
		{"opaque src", color.NRGBA{255, 0, 0, 255}, color.NRGBA{0, 255, 0, 255}, color.NRGBA{255, 0, 0, 255}},
		{"transparent src", color.NRGBA{255, 0, 0, 0}, color.NRGBA{0, 255, 0, 128}, color.NRGBA{0, 255, 0, 128}},
		{"transparent dst", color.NRGBA{10, 20, 30, 40}, color.NRGBA{}, color.NRGBA{10, 20, 30, 40}},
		{"half over opaque", color.NRGBA{255, 0, 0, 128}, color.NRGBA{0, 0, 255, 255}, color.NRGBA{127, 0, 126, 255}},
	}
	for _, tt := range tests {
		if got := blendPixel(tt.src, tt.dst); got != tt.want {
			t.Errorf("%s: blendPixel = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestChangedRect(t *testing.T) {
	a := solid(10, 8, color.NRGBA{1, 2, 3, 255})
	b := cloneNRGBA(a)
	if r := changedRect(a, b); !r.Empty() {
		t.Errorf("identical images: %v", r)
	}
	b.SetNRGBA(3, 2, color.NRGBA{})
	b.SetNRGBA(6, 5, color.NRGBA{})
	if r, want := changedRect(a, b), image.Rect(3, 2, 7, 6); r != want {
		t.Errorf("changedRect = %v, want %v", r, want)
	}
	c := cloneNRGBA(a)
	c.SetNRGBA(9, 7, color.NRGBA{})
	if r, want := changedRect(a, c), image.Rect(9, 7, 10, 8); r != want {
		t.Errorf("corner: changedRect = %v, want %v", r, want)
	}
}

func TestSnapToEven(t *testing.T) {
	tests := []struct{ in, want image.Rectangle }{
		{image.Rect(0, 0, 3, 3), image.Rect(0, 0, 3, 3)},
		{image.Rect(3, 5, 4, 6), image.Rect(2, 4, 4, 6)},
		{image.Rect(1, 2, 9, 3), image.Rect(0, 2, 9, 3)},
	}
	for _, tt := range tests {
		if got := snapToEven(tt.in); got != tt.want {
			t.Errorf("snapToEven(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestKeyframeDistances(t *testing.T) {
	tests := []struct{ kmin, kmax, wantMin, wantMax int }{
		{0, 1, 0, 0},
		{5, 2, 1, 2},
		{0, 2, 0, 2},
		{0, 10, 6, 10},
		{8, 10, 8, 10},
		{0, 100, 70, 100},
	}
	for _, tt := range tests {
		kmin, kmax := keyframeDistances(tt.kmin, tt.kmax)
		if kmin != tt.wantMin || kmax != tt.wantMax {
			t.Errorf("keyframeDistances(%d, %d) = %d, %d, want %d, %d", tt.kmin, tt.kmax, kmin, kmax, tt.wantMin, tt.wantMax)
		}
	}
	if _, kmax := keyframeDistances(0, 0); kmax < 1<<30 {
		t.Errorf("kmax 0 should disable keyframes, got %d", kmax)
	}
}

func TestQualityToMaxDiff(t *testing.T) {
	if got := qualityToMaxDiff(100); got != 1 {
		t.Errorf("quality 100: %d", got)
	}
	if got := qualityToMaxDiff(0); got != 31 {
		t.Errorf("quality 0: %d", got)
	}
	if qualityToMaxDiff(50) <= qualityToMaxDiff(90) {
		t.Error("lower quality should tolerate larger differences")
	}
}

func TestEncoder_LosslessRoundTrip(t *testing.T) {
	red := color.NRGBA{255, 0, 0, 255}
	frames := []*image.NRGBA{scene(24, 20, 0, red), scene(24, 20, 3, red), scene(24, 20, 3, red), scene(24, 20, 11, red)}
	durations := []int{100, 40, 70, 250}
	for _, tt := range []struct {
		name string
		opts StreamOptions
	}{
		{"default", DefaultStreamOptions()},
		{"minimize size", StreamOptions{MinimizeSize: true, Method: 2, Quality: 50}},
		{"kmax 2", StreamOptions{Kmax: 2, Method: 1}},
		{"allow mixed", StreamOptions{AllowMixed: true, Method: 1}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			opts := losslessOptions(tt.opts)
			if tt.opts.AllowMixed {
				opts.Lossless = false
			}
			data := encodeAll(t, opts, frames, durations)
			anim, err := Decode(data)
			if err != nil {
				t.Fatal(err)
			}
			if anim.Width != 24 || anim.Height != 20 || len(anim.Frames) != len(frames) {
				t.Fatalf("%dx%d with %d frames", anim.Width, anim.Height, len(anim.Frames))
			}
			for i, f := range anim.Frames {
				if f.Duration != time.Duration(durations[i])*time.Millisecond {
					t.Errorf("frame %d duration %v", i, f.Duration)
				}
				if tt.opts.AllowMixed {
					continue
				}
				if !bytes.Equal(f.Image.Pix, frames[i].Pix) {
					t.Errorf("frame %d differs from its source", i)
				}
			}
		})
	}
}

func TestEncoder_TransparentRoundTrip(t *testing.T) {
	frames := []*image.NRGBA{
		solid(16, 16, color.NRGBA{}),
		solid(16, 16, color.NRGBA{}),
		solid(16, 16, color.NRGBA{0, 0, 200, 255}),
		solid(16, 16, color.NRGBA{}),
	}
	for y := 4; y < 8; y++ {
		for x := 4; x < 8; x++ {
			frames[1].SetNRGBA(x, y, color.NRGBA{0, 200, 0, 255})
			frames[3].SetNRGBA(x+6, y+6, color.NRGBA{9, 9, 9, 99})
		}
	}
	for _, minimize := range []bool{false, true} {
		data := encodeAll(t, losslessOptions(StreamOptions{MinimizeSize: minimize, Method: 1}), frames, []int{10, 20, 30, 40})
		anim, err := Decode(data)
		if err != nil {
			t.Fatal(err)
		}
		for i, f := range anim.Frames {
			if !bytes.Equal(f.Image.Pix, frames[i].Pix) {
				t.Errorf("minimize=%v: frame %d differs from its source", minimize, i)
			}
		}
	}
}

func TestEncoder_SubFrames(t *testing.T) {
	base := scene(64, 48, 0, color.NRGBA{255, 255, 255, 255})
	moved := cloneNRGBA(base)
	moved.SetNRGBA(33, 21, color.NRGBA{0, 0, 0, 255})
	data := encodeAll(t, losslessOptions(DefaultStreamOptions()), []*image.NRGBA{base, moved, moved}, []int{1, 2, 3})
	d, err := mux.NewDemuxer(data)
	if err != nil {
		t.Fatal(err)
	}
	if d.NumFrames() != 3 {
		t.Fatalf("%d frames, identical frames must be kept", d.NumFrames())
	}
	first, _ := d.Frame(0)
	if first.Width != 64 || first.Height != 48 || first.Blend != BlendNone {
		t.Errorf("first frame %+v", first.FrameOptions)
	}
	second, _ := d.Frame(1)
	if second.X != 32 || second.Y != 20 || second.Width != 2 || second.Height != 2 {
		t.Errorf("second frame at %d,%d size %dx%d", second.X, second.Y, second.Width, second.Height)
	}
	third, _ := d.Frame(2)
	if third.Width*third.Height > 4 || third.Duration != 3 {
		t.Errorf("unchanged frame %dx%d for %dms", third.Width, third.Height, third.Duration)
	}
}

func TestEncoder_KmaxOneEmitsKeyframes(t *testing.T) {
	red := color.NRGBA{255, 0, 0, 255}
	frames := []*image.NRGBA{scene(20, 20, 0, red), scene(20, 20, 2, red), scene(20, 20, 4, red)}
	data := encodeAll(t, losslessOptions(StreamOptions{Kmax: 1}), frames, []int{5, 5, 5})
	d, err := mux.NewDemuxer(data)
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range d.Frames() {
		if f.X != 0 || f.Y != 0 || f.Width != 20 || f.Height != 20 || f.Blend != BlendNone {
			t.Errorf("frame is not a keyframe: %+v %dx%d", f.FrameOptions, f.Width, f.Height)
		}
	}
}

func TestEncoder_Lossy(t *testing.T) {
	var frames []*image.NRGBA
	for i := 0; i < 4; i++ {
		frames = append(frames, scene(32, 32, 4*i, color.NRGBA{220, 30, 30, 255}))
	}
	data := encodeAll(t, &EncodeOptions{StreamOptions: StreamOptions{Quality: 90, Method: 2, AlphaQuality: 100}}, frames, []int{40, 40, 40, 40})
	feat, err := container.GetFeatures(data)
	if err != nil {
		t.Fatal(err)
	}
	if feat.Format != container.FormatLossy || feat.FrameCount != 4 {
		t.Errorf("features %+v", feat)
	}
	anim, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	for i, f := range anim.Frames {
		var sum int
		for j := range f.Image.Pix {
			sum += abs(int(f.Image.Pix[j]) - int(frames[i].Pix[j]))
		}
		if mean := sum / len(f.Image.Pix); mean > 12 {
			t.Errorf("frame %d: mean error %d", i, mean)
		}
	}
}

func TestEncoder_Errors(t *testing.T) {
	if _, err := NewEncoder(0, 5, nil); !errors.Is(err, ErrInvalidCanvas) {
		t.Errorf("zero width: %v", err)
	}
	if _, err := NewEncoder(container.MaxCanvasSize+1, 5, nil); !errors.Is(err, container.ErrTooLarge) {
		t.Errorf("huge canvas: %v", err)
	}
	enc, err := NewEncoder(8, 8, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := enc.Assemble(); !errors.Is(err, ErrNoFrames) {
		t.Errorf("no frames: %v", err)
	}
	if err := enc.AddFrame(solid(8, 6, color.NRGBA{A: 255}), time.Second); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("wrong size: %v", err)
	}
	if enc.NumFrames() != 0 {
		t.Errorf("%d frames after a rejected one", enc.NumFrames())
	}
}

func TestEncoder_FailedEncodeLeavesState(t *testing.T) {
	enc, err := NewEncoder(8, 8, losslessOptions(DefaultStreamOptions()))
	if err != nil {
		t.Fatal(err)
	}
	if err := enc.AddFrame(solid(8, 8, color.NRGBA{1, 2, 3, 255}), time.Millisecond); err != nil {
		t.Fatal(err)
	}
	boom := errors.New("boom")
	saved := FrameEncoderFunc
	FrameEncoderFunc = func(*image.NRGBA, CodecOptions) (mux.Image, error) { return mux.Image{}, boom }
	t.Cleanup(func() { FrameEncoderFunc = saved })
	if err := enc.AddFrame(solid(8, 8, color.NRGBA{9, 9, 9, 255}), time.Millisecond); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if enc.NumFrames() != 1 {
		t.Errorf("%d frames after a failed encode", enc.NumFrames())
	}
}

func TestEncoder_Metadata(t *testing.T) {
	enc, err := NewEncoder(4, 4, losslessOptions(DefaultStreamOptions()))
	if err != nil {
		t.Fatal(err)
	}
	enc.SetLoopCount(7)
	enc.SetBackground(color.NRGBA{1, 2, 3, 4})
	enc.SetICCProfile([]byte("icc"))
	enc.SetEXIF([]byte("exif"))
	enc.SetXMP([]byte("xmp"))
	if err := enc.AddFrame(solid(4, 4, color.NRGBA{A: 255}), 0); err != nil {
		t.Fatal(err)
	}
	data, err := enc.Assemble()
	if err != nil {
		t.Fatal(err)
	}
	anim, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if anim.LoopCount != 7 || anim.Background != (color.NRGBA{1, 2, 3, 4}) {
		t.Errorf("loop %d background %v", anim.LoopCount, anim.Background)
	}
	if string(anim.ICC) != "icc" || string(anim.EXIF) != "exif" || string(anim.XMP) != "xmp" {
		t.Errorf("metadata %q %q %q", anim.ICC, anim.EXIF, anim.XMP)
	}
}

func TestDecode_Compositing(t *testing.T) {
	code := func(img *image.NRGBA) mux.Image {
		m, err := EncodeFrame(img, CodecOptions{Lossless: true})
		if err != nil {
			t.Fatal(err)
		}
		return m
	}
	red := color.NRGBA{255, 0, 0, 255}
	halfGreen := color.NRGBA{0, 255, 0, 128}
	m := mux.NewMuxer()
	m.SetCanvasSize(4, 4)
	steps := []struct {
		img  *image.NRGBA
		opts mux.FrameOptions
	}{
		{solid(4, 4, red), mux.FrameOptions{Duration: 10, Dispose: DisposeNone, Blend: BlendNone}},
		{solid(2, 2, halfGreen), mux.FrameOptions{X: 2, Y: 2, Duration: 20, Dispose: DisposeBackground}},
		{solid(2, 2, halfGreen), mux.FrameOptions{Duration: 30, Blend: BlendNone}},
	}
	for _, s := range steps {
		if err := m.AddFrame(code(s.img), s.opts); err != nil {
			t.Fatal(err)
		}
	}
	data, err := m.Assemble()
	if err != nil {
		t.Fatal(err)
	}
	anim, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if got := anim.TotalDuration(); got != 60*time.Millisecond {
		t.Errorf("total duration %v", got)
	}
	blended := blendPixel(halfGreen, red)
	checks := []struct {
		frame, x, y int
		want        color.NRGBA
	}{
		{0, 3, 3, red},
		{1, 3, 3, blended},
		{1, 0, 0, red},
		{2, 3, 3, color.NRGBA{}},
		{2, 0, 0, halfGreen},
		{2, 2, 0, red},
	}
	for _, c := range checks {
		if got := anim.Frames[c.frame].Image.NRGBAAt(c.x, c.y); got != c.want {
			t.Errorf("frame %d pixel (%d,%d) = %v, want %v", c.frame, c.x, c.y, got, c.want)
		}
	}
	if r := anim.Frames[1].Rect(); r != image.Rect(2, 2, 4, 4) {
		t.Errorf("frame 1 rect %v", r)
	}
}

func TestDecode_StillImage(t *testing.T) {
	img, err := EncodeFrame(solid(5, 3, color.NRGBA{7, 8, 9, 255}), CodecOptions{Lossless: true})
	if err != nil {
		t.Fatal(err)
	}
	m := mux.NewMuxer()
	if err := m.SetImage(img); err != nil {
		t.Fatal(err)
	}
	data, err := m.Assemble()
	if err != nil {
		t.Fatal(err)
	}
	anim, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(anim.Frames) != 1 || anim.Frames[0].Duration != 0 || anim.Frames[0].Image.NRGBAAt(4, 2) != (color.NRGBA{7, 8, 9, 255}) {
		t.Errorf("still image decoded as %+v", anim.Frames)
	}
}

func TestDecode_Truncated(t *testing.T) {
	red := color.NRGBA{255, 0, 0, 255}
	data := encodeAll(t, losslessOptions(DefaultStreamOptions()),
		[]*image.NRGBA{scene(12, 12, 0, red), scene(12, 12, 6, red)}, []int{10, 10})
	for n := 0; n < len(data); n++ {
		if _, err := Decode(data[:n]); err == nil {
			t.Fatalf("prefix of %d bytes decoded", n)
		}
	}
}

func TestEncodeFrame_LossyAlpha(t *testing.T) {
	opaque, err := EncodeFrame(solid(8, 8, color.NRGBA{50, 60, 70, 255}), CodecOptions{Quality: 75, AlphaQuality: 100})
	if err != nil {
		t.Fatal(err)
	}
	if opaque.Alpha != nil || opaque.Lossless {
		t.Error("opaque lossy frame carries ALPH")
	}
	img := solid(8, 8, color.NRGBA{50, 60, 70, 255})
	img.SetNRGBA(1, 1, color.NRGBA{50, 60, 70, 10})
	coded, err := EncodeFrame(img, CodecOptions{Quality: 75, AlphaQuality: 100})
	if err != nil {
		t.Fatal(err)
	}
	if coded.Alpha == nil {
		t.Fatal("no ALPH for a translucent frame")
	}
	got, err := DecodeFrame(coded)
	if err != nil {
		t.Fatal(err)
	}
	if got.NRGBAAt(1, 1).A != 10 || got.NRGBAAt(0, 0).A != 255 {
		t.Errorf("alpha %d %d", got.NRGBAAt(1, 1).A, got.NRGBAAt(0, 0).A)
	}
}

func FuzzDecode(f *testing.F) {
	enc, _ := NewEncoder(4, 4, losslessOptions(DefaultStreamOptions()))
	_ = enc.AddFrame(solid(4, 4, color.NRGBA{1, 2, 3, 255}), time.Millisecond)
	_ = enc.AddFrame(solid(4, 4, color.NRGBA{3, 2, 1, 255}), time.Millisecond)
	if data, err := enc.Assemble(); err == nil {
		f.Add(data)
	}
	f.Fuzz(func(t *testing.T, data []byte) {
		anim, err := Decode(data)
		if err != nil {
			return
		}
		for _, fr := range anim.Frames {
			if fr.Image.Bounds().Dx() != anim.Width || fr.Image.Bounds().Dy() != anim.Height {
				t.Fatalf("frame canvas %v for %dx%d", fr.Image.Bounds(), anim.Width, anim.Height)
			}
		}
	})
}

func BenchmarkEncoder(b *testing.B) {
	var frames []*image.NRGBA
	for i := 0; i < 8; i++ {
		frames = append(frames, scene(128, 128, 8*i, color.NRGBA{255, 255, 0, 255}))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		enc, err := NewEncoder(128, 128, &EncodeOptions{StreamOptions: DefaultStreamOptions()})
		if err != nil {
			b.Fatal(err)
		}
		for _, f := range frames {
			if err := enc.AddFrame(f, 50*time.Millisecond); err != nil {
				b.Fatal(err)
			}
		}
		if _, err := enc.Assemble(); err != nil {
			b.Fatal(err)
		}
	}
}
