package container

import (
	"bytes"
	"errors"
	"testing"
)

// vp8lStub returns a VP8L header for a w x h image followed by filler.
func vp8lStub(w, h int, alpha bool) []byte {
	bits := uint32(w-1) | uint32(h-1)<<14
	if alpha {
		bits |= 1 << 28
	}
	p := []byte{VP8LMagicByte, 0, 0, 0, 0, 0xaa, 0x55}
	PutLE32(p[1:], bits)
	return p
}

// vp8Stub returns a VP8 keyframe header for a w x h image.
func vp8Stub(w, h int) []byte {
	p := make([]byte, 16)
	tag := uint32(0) | 0<<1 | 1<<4 | 4<<5 // keyframe, profile 0, shown, 4-byte partition
	p[0], p[1], p[2] = byte(tag), byte(tag>>8), byte(tag>>16)
	p[3], p[4], p[5] = 0x9d, 0x01, 0x2a
	PutLE16(p[6:], uint16(w))
	PutLE16(p[8:], uint16(h))
	return p
}

func buildFile(t *testing.T, chunks ...Chunk) []byte {
	t.Helper()
	w := NewWriter(64)
	for _, c := range chunks {
		w.AddChunk(c.ID, c.Payload)
	}
	data, err := w.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	return data
}

func TestParse_SimpleLossless(t *testing.T) {
	data := buildFile(t, Chunk{FourCCVP8L, vp8lStub(3, 5, true)})
	f, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ft := f.Features
	if ft.Width != 3 || ft.Height != 5 || !ft.HasAlpha || ft.Format != FormatLossless || ft.FrameCount != 1 {
		t.Fatalf("features = %+v", ft)
	}
	if ReadLE32(data[4:]) != uint32(len(data)-8) {
		t.Fatalf("RIFF size %d, file %d", ReadLE32(data[4:]), len(data))
	}
	if len(data)%2 != 0 {
		t.Fatalf("odd-length payload was not padded: %d bytes", len(data))
	}
}

func TestParse_ExtendedStillWithAlphaAndUnknown(t *testing.T) {
	vp8x := VP8X{Flags: AlphaFlag | EXIFFlag, CanvasWidth: 20, CanvasHeight: 10}
	custom := Chunk{FourCC('Z', 'Z', 'Z', 'Z'), []byte{1, 2, 3}}
	data := buildFile(t,
		Chunk{FourCCVP8X, vp8x.Marshal()},
		Chunk{FourCCALPH, []byte{0x01, 0xde}},
		Chunk{FourCCVP8, vp8Stub(20, 10)},
		Chunk{FourCCEXIF, []byte("exif")},
		custom,
	)
	f, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !f.Features.Extended || !f.Features.HasAlpha || f.Features.Format != FormatLossy {
		t.Fatalf("features = %+v", f.Features)
	}
	fr := f.Frames[0]
	if !bytes.Equal(fr.Alpha, []byte{0x01, 0xde}) || !fr.HasAlpha() {
		t.Fatalf("alpha payload = %x", fr.Alpha)
	}
	if string(f.EXIF) != "exif" {
		t.Fatalf("EXIF = %q", f.EXIF)
	}
	if len(f.Unknown) != 1 || f.Unknown[0].ID != custom.ID || !bytes.Equal(f.Unknown[0].Payload, custom.Payload) {
		t.Fatalf("unknown chunks = %+v", f.Unknown)
	}
}

func TestParse_Animation(t *testing.T) {
	vp8x := VP8X{Flags: AnimationFlag | AlphaFlag, CanvasWidth: 8, CanvasHeight: 8}
	frame := func(h ANMF, bitstream []byte, id uint32) Chunk {
		p := h.AppendTo(nil)
		p = AppendChunk(p, id, bitstream)
		return Chunk{FourCCANMF, p}
	}
	data := buildFile(t,
		Chunk{FourCCVP8X, vp8x.Marshal()},
		Chunk{FourCCANIM, ANIM{Background: 0xff00ff00, LoopCount: 3}.Marshal()},
		frame(ANMF{Width: 8, Height: 8, Duration: 100}, vp8lStub(8, 8, true), FourCCVP8L),
		frame(ANMF{X: 2, Y: 4, Width: 4, Height: 2, Duration: 250, Dispose: DisposeBackground, Blend: BlendNone},
			vp8Stub(4, 2), FourCCVP8),
	)
	f, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ft := f.Features
	if !ft.HasAnimation || ft.LoopCount != 3 || ft.Background != 0xff00ff00 || ft.FrameCount != 2 || ft.Format != FormatMixed {
		t.Fatalf("features = %+v", ft)
	}
	second := f.Frames[1]
	if second.X != 2 || second.Y != 4 || second.Duration != 250 ||
		second.Dispose != DisposeBackground || second.Blend != BlendNone || second.Lossless {
		t.Fatalf("second frame = %+v", second.ANMF)
	}
}

func TestParse_Errors(t *testing.T) {
	good := buildFile(t, Chunk{FourCCVP8L, vp8lStub(2, 2, false)})

	badSig := append([]byte(nil), good...)
	copy(badSig, "RIFX")

	overrun := append([]byte(nil), good...)
	PutLE32(overrun[16:], 1000) // chunk size past the end

	anmfOutside := buildFile(t,
		Chunk{FourCCVP8X, VP8X{Flags: AnimationFlag, CanvasWidth: 4, CanvasHeight: 4}.Marshal()},
		Chunk{FourCCANIM, ANIM{}.Marshal()},
		Chunk{FourCCANMF, AppendChunk(ANMF{X: 2, Width: 4, Height: 4}.AppendTo(nil), FourCCVP8L, vp8lStub(4, 4, false))},
	)

	hugeCanvas := buildFile(t,
		Chunk{FourCCVP8X, VP8X{Flags: AnimationFlag, CanvasWidth: 40000, CanvasHeight: 3000}.Marshal()},
		Chunk{FourCCANIM, ANIM{}.Marshal()},
		Chunk{FourCCANMF, AppendChunk(ANMF{Width: 4, Height: 4}.AppendTo(nil), FourCCVP8L, vp8lStub(4, 4, false))},
	)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrMalformed},
		{"canvas too large", hugeCanvas, ErrTooLarge},
		{"signature", badSig, ErrMalformed},
		{"truncated", good[:len(good)-3], ErrTruncated},
		{"chunk overrun", overrun, ErrMalformed},
		{"frame outside canvas", anmfOutside, ErrMalformed},
		{"bad bitstream", buildFile(t, Chunk{FourCCVP8L, []byte{0x2e, 0, 0, 0, 0}}), ErrInvalidBitstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.data)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Parse error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParse_EveryTruncationFails(t *testing.T) {
	data := buildFile(t,
		Chunk{FourCCVP8X, VP8X{Flags: AnimationFlag, CanvasWidth: 4, CanvasHeight: 4}.Marshal()},
		Chunk{FourCCANIM, ANIM{LoopCount: 1}.Marshal()},
		Chunk{FourCCANMF, AppendChunk(ANMF{Width: 4, Height: 4, Duration: 40}.AppendTo(nil), FourCCVP8L, vp8lStub(4, 4, false))},
	)
	for n := 0; n < len(data); n++ {
		if _, err := Parse(data[:n]); err == nil {
			t.Fatalf("Parse(data[:%d]) succeeded", n)
		} else if !errors.Is(err, ErrMalformed) && !errors.Is(err, ErrTruncated) {
			t.Fatalf("Parse(data[:%d]) = %v, want a container error", n, err)
		}
	}
}

func TestParseVP8X_CanvasLimit(t *testing.T) {
	tests := []struct {
		w, h int
		ok   bool
	}{
		{1, 1, true},
		{MaxCanvasSize, MaxCanvasSize, true},
		{MaxCanvasSize + 1, 1, false},
		{1, MaxCanvasSize + 1, false},
		{1 << 24, 1 << 24, false},
	}
	for _, tt := range tests {
		_, err := ParseVP8X(VP8X{CanvasWidth: tt.w, CanvasHeight: tt.h}.Marshal())
		if tt.ok && err != nil {
			t.Errorf("%dx%d: %v", tt.w, tt.h, err)
		}
		if !tt.ok && !errors.Is(err, ErrTooLarge) {
			t.Errorf("%dx%d: error = %v, want ErrTooLarge", tt.w, tt.h, err)
		}
	}
}

func TestAlphaHeader_RoundTrip(t *testing.T) {
	h := AlphaHeader{Compression: AlphaLosslessCompression, Filter: AlphaFilterGradient, PreProcessing: AlphaPreprocessedLevels}
	got, err := ParseAlphaHeader([]byte{h.Byte()})
	if err != nil {
		t.Fatalf("ParseAlphaHeader: %v", err)
	}
	if got != h {
		t.Fatalf("got %+v, want %+v", got, h)
	}
	if _, err := ParseAlphaHeader([]byte{0x03}); !errors.Is(err, ErrInvalidBitstream) {
		t.Fatalf("compression 3 accepted: %v", err)
	}
}

func TestANMF_OffsetsAndClamping(t *testing.T) {
	p := ANMF{X: 7, Y: 10, Width: 3, Height: 1, Duration: 1 << 30}.AppendTo(nil)
	got, err := ParseANMF(p)
	if err != nil {
		t.Fatalf("ParseANMF: %v", err)
	}
	if got.X != 6 || got.Y != 10 || got.Duration != MaxDuration {
		t.Fatalf("got %+v", got)
	}
}

func FuzzParse(f *testing.F) {
	w := NewWriter(16)
	w.AddChunk(FourCCVP8L, vp8lStub(1, 1, false))
	seed, _ := w.Bytes()
	f.Add(seed)
	f.Add([]byte("RIFF\x04\x00\x00\x00WEBP"))
	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = Parse(data)
	})
}
