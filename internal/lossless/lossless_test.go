package lossless

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/deepteams/webpcodec/internal/bitio"
	"github.com/deepteams/webpcodec/internal/container"
)

func noiseARGB(rng *rand.Rand, w, h int, opaque bool) []uint32 {
	pix := make([]uint32, w*h)
	for i := range pix {
		pix[i] = rng.Uint32()
		if opaque {
			pix[i] |= argbBlack
		}
	}
	return pix
}

func gradientARGB(w, h int) []uint32 {
	pix := make([]uint32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r := uint32(x * 255 / max(w-1, 1))
			g := uint32(y * 255 / max(h-1, 1))
			b := uint32((x + y) & 0xff)
			pix[y*w+x] = argbBlack | r<<16 | g<<8 | b
		}
	}
	return pix
}

// paletteARGB draws blocks from n colours, with some repetition so that
// backward references and the colour cache get exercised.
func paletteARGB(rng *rand.Rand, w, h, n int) []uint32 {
	colors := make([]uint32, n)
	for i := range colors {
		colors[i] = rng.Uint32() | 0x80000000
	}
	pix := make([]uint32, w*h)
	for i := range pix {
		if i > 0 && rng.Intn(3) == 0 {
			pix[i] = pix[i-1]
			continue
		}
		pix[i] = colors[rng.Intn(n)]
	}
	return pix
}

func requireSamePixels(t *testing.T, want, got []uint32) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("decoded %d pixels, want %d", len(got), len(want))
	}
	for i := range want {
		if want[i] != got[i] {
			t.Fatalf("pixel %d = %#08x, want %#08x", i, got[i], want[i])
		}
	}
}

func TestEncodeARGB_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	images := []struct {
		name string
		w, h int
		pix  []uint32
	}{
		{"1x1", 1, 1, []uint32{0xff336699}},
		{"noise7x5", 7, 5, noiseARGB(rng, 7, 5, false)},
		{"noise33x17", 33, 17, noiseARGB(rng, 33, 17, true)},
		{"gradient64x48", 64, 48, gradientARGB(64, 48)},
		{"gradient130x3", 130, 3, gradientARGB(130, 3)},
		{"palette2", 41, 23, paletteARGB(rng, 41, 23, 2)},
		{"palette3", 19, 19, paletteARGB(rng, 19, 19, 3)},
		{"palette12", 50, 10, paletteARGB(rng, 50, 10, 12)},
		{"palette200", 64, 64, paletteARGB(rng, 64, 64, 200)},
	}
	for _, img := range images {
		for method := 0; method <= 6; method++ {
			t.Run(fmt.Sprintf("%s/m%d", img.name, method), func(t *testing.T) {
				data, err := EncodeARGB(img.pix, img.w, img.h, true, Options{Quality: 75, Method: method, Exact: true})
				if err != nil {
					t.Fatal(err)
				}
				got, w, h, err := DecodeARGB(data)
				if err != nil {
					t.Fatal(err)
				}
				if w != img.w || h != img.h {
					t.Fatalf("decoded %dx%d, want %dx%d", w, h, img.w, img.h)
				}
				requireSamePixels(t, img.pix, got)
			})
		}
	}
}

func TestEncodeARGB_RepetitiveImageUsesRegions(t *testing.T) {
	// Left half noise, right half flat: separate prefix codes pay off.
	rng := rand.New(rand.NewSource(2))
	const w, h = 256, 128
	pix := make([]uint32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < w/2 {
				pix[y*w+x] = rng.Uint32() | argbBlack
			} else {
				pix[y*w+x] = 0xff204060
			}
		}
	}
	data, err := EncodeARGB(pix, w, h, false, Options{Quality: 50, Method: 6, Exact: true})
	if err != nil {
		t.Fatal(err)
	}
	got, _, _, err := DecodeARGB(data)
	if err != nil {
		t.Fatal(err)
	}
	requireSamePixels(t, pix, got)
}

func TestEncodeARGB_NoPalette(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	pix := paletteARGB(rng, 30, 30, 5)
	withPalette, err := EncodeARGB(pix, 30, 30, true, Options{Method: 4, Exact: true})
	if err != nil {
		t.Fatal(err)
	}
	without, err := EncodeARGB(pix, 30, 30, true, Options{Method: 4, Exact: true, NoPalette: true})
	if err != nil {
		t.Fatal(err)
	}
	for _, data := range [][]byte{withPalette, without} {
		got, _, _, err := DecodeARGB(data)
		if err != nil {
			t.Fatal(err)
		}
		requireSamePixels(t, pix, got)
	}
}

func TestEncode_TransparentPixels(t *testing.T) {
	pix := []byte{
		10, 20, 30, 0, 40, 50, 60, 255,
		70, 80, 90, 0, 1, 2, 3, 128,
	}
	tests := []struct {
		exact bool
		want  []uint32
	}{
		{false, []uint32{0, 0xff28323c, 0, 0x80010203}},
		{true, []uint32{0x000a141e, 0xff28323c, 0x0046505a, 0x80010203}},
	}
	for _, tt := range tests {
		data, err := Encode(pix, 2, 2, 4, Options{Method: 2, Exact: tt.exact})
		if err != nil {
			t.Fatal(err)
		}
		got, _, _, err := DecodeARGB(data)
		if err != nil {
			t.Fatal(err)
		}
		requireSamePixels(t, tt.want, got)
	}
}

func TestEncodeARGB_NearLossless(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const w, h = 96, 96
	pix := noiseARGB(rng, w, h, true)
	for _, q := range []int{0, 20, 60, 80} {
		t.Run(fmt.Sprintf("quality %d", q), func(t *testing.T) {
			data, err := EncodeARGB(pix, w, h, false, Options{Method: 4, NearLossless: max(q, 1)})
			if err != nil {
				t.Fatal(err)
			}
			got, _, _, err := DecodeARGB(data)
			if err != nil {
				t.Fatal(err)
			}
			bound := 1 << (nearLosslessBits(max(q, 1)) - 1)
			changed := 0
			for i, p := range pix {
				if got[i] != p {
					changed++
				}
				for shift := 0; shift < 32; shift += 8 {
					d := int(got[i]>>shift&0xff) - int(p>>shift&0xff)
					if d > bound || d < -bound {
						t.Fatalf("pixel %d moved by %d, bound %d", i, d, bound)
					}
				}
				x, y := i%w, i/w
				if (x == 0 || y == 0 || x == w-1 || y == h-1) && got[i] != p {
					t.Fatalf("border pixel (%d,%d) changed", x, y)
				}
			}
			if changed == 0 {
				t.Error("no pixel was changed")
			}
		})
	}
}

func TestEncodeARGB_NearLosslessOffIsExact(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	const w, h = 80, 70
	pix := noiseARGB(rng, w, h, true)
	for _, q := range []int{0, 100} {
		data, err := EncodeARGB(pix, w, h, false, Options{Method: 3, NearLossless: q})
		if err != nil {
			t.Fatal(err)
		}
		got, _, _, err := DecodeARGB(data)
		if err != nil {
			t.Fatal(err)
		}
		requireSamePixels(t, pix, got)
	}
	small := noiseARGB(rng, 40, 40, true)
	data, err := EncodeARGB(small, 40, 40, false, Options{NearLossless: 10})
	if err != nil {
		t.Fatal(err)
	}
	got, _, _, err := DecodeARGB(data)
	if err != nil {
		t.Fatal(err)
	}
	requireSamePixels(t, small, got)
}

func TestSnapChannel(t *testing.T) {
	tests := []struct {
		a    uint32
		bits uint
		want uint32
	}{
		{0, 3, 0},
		{3, 3, 0},
		{4, 3, 0},
		{12, 3, 16},
		{5, 3, 8},
		{250, 5, 255},
		{255, 1, 255},
		{17, 1, 16},
		{19, 1, 20},
	}
	for _, tt := range tests {
		if got := snapChannel(tt.a, tt.bits); got != tt.want {
			t.Errorf("snapChannel(%d, %d) = %d, want %d", tt.a, tt.bits, got, tt.want)
		}
	}
}

func TestEncode_AlphaHint(t *testing.T) {
	rgb := make([]byte, 4*4*3)
	data, err := Encode(rgb, 4, 4, 3, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, alpha, _ := DecodeConfig(data); alpha {
		t.Error("alpha hint set for RGB input")
	}
	rgba := make([]byte, 4*4*4)
	data, err = Encode(rgba, 4, 4, 4, Options{})
	if err != nil {
		t.Fatal(err)
	}
	w, h, alpha, err := DecodeConfig(data)
	if err != nil || w != 4 || h != 4 || !alpha {
		t.Errorf("DecodeConfig = %d, %d, %v, %v; want 4, 4, true, nil", w, h, alpha, err)
	}
}

func TestEncode_InvalidInput(t *testing.T) {
	if _, err := Encode(make([]byte, 10), 2, 2, 3, Options{}); err == nil {
		t.Error("short buffer accepted")
	}
	if _, err := Encode(make([]byte, 8), 2, 2, 2, Options{}); err == nil {
		t.Error("2-channel input accepted")
	}
	if _, err := EncodeARGB(make([]uint32, 1), container.VP8LMaxDim+1, 1, false, Options{}); err == nil {
		t.Error("oversized image accepted")
	}
	_, err := EncodeARGB(make([]uint32, container.VP8LMaxDim+1), container.VP8LMaxDim+1, 1, false, Options{})
	if !errors.Is(err, container.ErrTooLarge) {
		t.Errorf("err = %v, want ErrTooLarge", err)
	}
}

func TestEncodeImageStream_RoundTrip(t *testing.T) {
	// Alpha planes travel in the green channel of a headerless stream.
	const w, h = 37, 21
	pix := make([]uint32, w*h)
	for i := range pix {
		pix[i] = argbBlack | uint32((i*7)%256)<<8
	}
	data := EncodeImageStream(pix, w, h, Options{Method: 4, NoPalette: true})
	got, err := DecodeImageStream(data, w, h)
	if err != nil {
		t.Fatal(err)
	}
	requireSamePixels(t, pix, got)
}

func TestDecode_NRGBA(t *testing.T) {
	rgba := []byte{255, 0, 0, 255, 0, 255, 0, 128, 0, 0, 255, 0, 9, 9, 9, 9}
	data, err := Encode(rgba, 2, 2, 4, Options{Exact: true})
	if err != nil {
		t.Fatal(err)
	}
	img, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range rgba {
		if img.Pix[i] != v {
			t.Fatalf("Pix[%d] = %d, want %d", i, img.Pix[i], v)
		}
	}
}

func TestDecode_Truncated(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	data, err := EncodeARGB(noiseARGB(rng, 40, 40, true), 40, 40, false, Options{Method: 3})
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range []int{0, 3, container.VP8LHeaderSize, 20, len(data) / 2, len(data) - 2} {
		_, _, _, err := DecodeARGB(data[:n])
		if !errors.Is(err, container.ErrInvalidBitstream) {
			t.Errorf("%d bytes: err = %v, want ErrInvalidBitstream", n, err)
		}
	}
	if _, _, _, err := DecodeARGB(data[:3]); !errors.Is(err, container.ErrTruncated) {
		t.Errorf("short header: err = %v, want ErrTruncated", err)
	}
}

func TestDecode_BadSignature(t *testing.T) {
	data, err := Encode(make([]byte, 12), 2, 2, 3, Options{})
	if err != nil {
		t.Fatal(err)
	}
	data[0] = 0x2e
	if _, err := Decode(data); !errors.Is(err, container.ErrInvalidBitstream) {
		t.Errorf("err = %v, want ErrInvalidBitstream", err)
	}
}

func TestBuildHuffmanTree(t *testing.T) {
	tests := []struct {
		name    string
		lengths []uint8
		wantErr bool
	}{
		{"single", []uint8{0, 0, 3, 0}, false},
		{"complete", []uint8{1, 2, 3, 3}, false},
		{"long codes", append([]uint8{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14}, 15, 15), false},
		{"empty", []uint8{0, 0, 0}, true},
		{"over-subscribed", []uint8{1, 1, 1}, true},
		{"incomplete", []uint8{1, 2, 0}, true},
		{"too long", []uint8{16, 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildHuffmanTree(tt.lengths)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, container.ErrInvalidBitstream) {
				t.Errorf("err = %v, want ErrInvalidBitstream", err)
			}
		})
	}
}

func TestHuffmanLengths_LimitAndKraft(t *testing.T) {
	// Fibonacci weights produce the deepest unconstrained trees.
	hist := make([]uint32, 30)
	a, b := uint32(1), uint32(1)
	for i := range hist {
		hist[i] = a
		a, b = b, a+b
	}
	for _, limit := range []int{7, 15} {
		lengths := huffmanLengths(hist, limit)
		kraft := 0.0
		for s, l := range lengths {
			if l == 0 || int(l) > limit {
				t.Fatalf("limit %d: symbol %d has length %d", limit, s, l)
			}
			kraft += 1 / float64(uint(1)<<l)
		}
		if kraft != 1 {
			t.Errorf("limit %d: Kraft sum %v, want 1", limit, kraft)
		}
	}
}

func TestPrefixCode_WriteRead(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	hist := make([]uint32, 280)
	for i := range hist {
		if rng.Intn(4) > 0 {
			hist[i] = uint32(rng.Intn(1000))
		}
	}
	w := bitio.NewLSBWriter(64)
	pc := writeHuffmanCode(w, hist)
	var syms []int
	for s, n := range hist {
		if n > 0 {
			syms = append(syms, s)
			pc.write(w, s)
		}
	}
	dec := &Decoder{br: bitio.NewLSBReader(w.Finish())}
	tree, err := dec.readHuffmanCode(len(hist))
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range syms {
		if got := tree.readSymbol(dec.br); got != s {
			t.Fatalf("read %d, want %d", got, s)
		}
	}
	if err := dec.br.Err(); err != nil {
		t.Fatal(err)
	}
}

func TestPrefixCode_SimpleCodes(t *testing.T) {
	tests := [][]int{{}, {0}, {1}, {200}, {3, 9}, {0, 255}}
	for _, syms := range tests {
		hist := make([]uint32, 256)
		for _, s := range syms {
			hist[s] = 5
		}
		w := bitio.NewLSBWriter(8)
		pc := writeHuffmanCode(w, hist)
		for _, s := range syms {
			pc.write(w, s)
		}
		dec := &Decoder{br: bitio.NewLSBReader(w.Finish())}
		tree, err := dec.readHuffmanCode(256)
		if err != nil {
			t.Fatalf("%v: %v", syms, err)
		}
		for _, s := range syms {
			if got := tree.readSymbol(dec.br); got != s {
				t.Errorf("%v: read %d, want %d", syms, got, s)
			}
		}
	}
}

func TestRLECodeLengths_ExpandsBack(t *testing.T) {
	lengths := []uint8{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 3, 3, 3, 3, 3, 3, 3, 3, 8, 8, 0, 0, 5, 5, 5, 0, 0, 0, 0}
	lengths = append(lengths, make([]uint8, 300)...)
	lengths = append(lengths, 7)
	var got []uint8
	prev := uint8(8)
	for _, tok := range rleCodeLengths(lengths) {
		switch tok.code {
		case 16:
			for i := 0; i < int(tok.extra)+3; i++ {
				got = append(got, prev)
			}
		case 17:
			got = append(got, make([]uint8, int(tok.extra)+3)...)
		case 18:
			got = append(got, make([]uint8, int(tok.extra)+11)...)
		default:
			got = append(got, tok.code)
			if tok.code != 0 {
				prev = tok.code
			}
		}
	}
	if fmt.Sprint(got) != fmt.Sprint(lengths) {
		t.Errorf("expanded %v\nwant %v", got, lengths)
	}
}

func TestPrefixEncode_ReadPrefixValue(t *testing.T) {
	w := bitio.NewLSBWriter(1024)
	var codes []int
	values := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 16, 17, 100, 4095, 4096, 1 << 19, 1<<20 - 120}
	for _, v := range values {
		code, nbits, extra := prefixEncode(v)
		codes = append(codes, code)
		w.WriteBits(uint32(extra), nbits)
	}
	br := bitio.NewLSBReader(w.Finish())
	for i, v := range values {
		if got := readPrefixValue(br, codes[i]); got != v {
			t.Errorf("value %d decoded as %d (code %d)", v, got, codes[i])
		}
	}
}

func TestDistanceToPlaneCode_RoundTrip(t *testing.T) {
	for _, width := range []int{1, 3, 8, 16, 100} {
		for dist := 1; dist < 20*width+20; dist++ {
			code := distanceToPlaneCode(width, dist)
			if got := planeCodeToDistance(width, code); got != dist {
				t.Fatalf("width %d dist %d: code %d decodes to %d", width, dist, code, got)
			}
		}
	}
	if c := distanceToPlaneCode(100, 100); c != 1 {
		t.Errorf("pixel above coded as %d, want 1", c)
	}
	if c := distanceToPlaneCode(100, 1); c != 2 {
		t.Errorf("pixel left coded as %d, want 2", c)
	}
}

func TestCrossColor_InverseUndoesForward(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	for i := 0; i < 1000; i++ {
		m := multipliers{g2r: int8(rng.Intn(256)), g2b: int8(rng.Intn(256)), r2b: int8(rng.Intn(256))}
		p := rng.Uint32()
		if got := m.inverse(m.forward(p)); got != p {
			t.Fatalf("%+v: %#08x -> %#08x", m, p, got)
		}
		if got := multipliersFrom(m.pixel()); got != m {
			t.Fatalf("pixel round trip %+v -> %+v", m, got)
		}
	}
}

func TestColorCache_Contains(t *testing.T) {
	c := newColorCache(4)
	c.insert(0xff123456)
	k, ok := c.contains(0xff123456)
	if !ok || c.lookup(k) != 0xff123456 {
		t.Errorf("contains = %d, %v after insert", k, ok)
	}
}

func FuzzDecode(f *testing.F) {
	rng := rand.New(rand.NewSource(7))
	for _, m := range []int{0, 3, 6} {
		data, err := EncodeARGB(noiseARGB(rng, 9, 9, false), 9, 9, true, Options{Method: m})
		if err != nil {
			f.Fatal(err)
		}
		f.Add(data)
	}
	palette, _ := EncodeARGB(paletteARGB(rng, 16, 16, 4), 16, 16, true, Options{})
	f.Add(palette)
	f.Fuzz(func(t *testing.T, data []byte) {
		w, h, _, err := DecodeConfig(data)
		if err != nil || w*h > 1<<20 {
			return
		}
		pix, dw, dh, err := DecodeARGB(data)
		if err == nil && len(pix) != dw*dh {
			t.Fatalf("%d pixels for %dx%d", len(pix), dw, dh)
		}
	})
}

func BenchmarkEncodeARGB(b *testing.B) {
	pix := gradientARGB(256, 256)
	for _, m := range []int{0, 4, 6} {
		b.Run(fmt.Sprintf("m%d", m), func(b *testing.B) {
			b.SetBytes(int64(len(pix) * 4))
			for i := 0; i < b.N; i++ {
				if _, err := EncodeARGB(pix, 256, 256, false, Options{Quality: 75, Method: m}); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkDecodeARGB(b *testing.B) {
	data, err := EncodeARGB(gradientARGB(256, 256), 256, 256, false, Options{Quality: 75, Method: 4})
	if err != nil {
		b.Fatal(err)
	}
	b.SetBytes(256 * 256 * 4)
	for i := 0; i < b.N; i++ {
		if _, _, _, err := DecodeARGB(data); err != nil {
			b.Fatal(err)
		}
	}
}
