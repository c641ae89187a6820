package lossless

import (
	"fmt"
	"image"

	"github.com/deepteams/webpcodec/internal/bitio"
	"github.com/deepteams/webpcodec/internal/container"
)

// maxPixels bounds the pixel count of any decoded plane, sub-images
// included.
const maxPixels = 1 << 28

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: vp8l "+format, append([]any{container.ErrInvalidBitstream}, args...)...)
}

func truncated(what string) error {
	return fmt.Errorf("%w: vp8l %s (%w)", container.ErrInvalidBitstream, what, container.ErrTruncated)
}

// htreeGroup holds the five prefix codes used for one tile of the
// entropy image.
type htreeGroup [codesPerGroup]*huffmanTree

type transform struct {
	kind  int
	bits  int
	xsize int // width of the image the transform applies to
	data  []uint32
}

// Decoder reads one VP8L image stream.
type Decoder struct {
	br         *bitio.LSBReader
	transforms []transform
	seen       [4]bool
}

// DecodeConfig returns the dimensions and alpha hint of a VP8L bitstream.
func DecodeConfig(data []byte) (width, height int, hasAlpha bool, err error) {
	return container.ParseVP8LHeader(data)
}

// DecodeARGB decodes a VP8L bitstream into ARGB pixels in raster order.
func DecodeARGB(data []byte) (pix []uint32, width, height int, err error) {
	width, height, _, err = container.ParseVP8LHeader(data)
	if err != nil {
		return nil, 0, 0, err
	}
	pix, err = DecodeImageStream(data[container.VP8LHeaderSize:], width, height)
	if err != nil {
		return nil, 0, 0, err
	}
	return pix, width, height, nil
}

// Decode decodes a VP8L bitstream into an NRGBA image.
func Decode(data []byte) (*image.NRGBA, error) {
	pix, w, h, err := DecodeARGB(data)
	if err != nil {
		return nil, err
	}
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	ARGBToNRGBA(pix, img.Pix)
	return img, nil
}

// DecodeImageStream decodes a headerless image stream of known size, the
// form used by ALPH chunks.
func DecodeImageStream(data []byte, width, height int) ([]uint32, error) {
	if width <= 0 || height <= 0 || width*height > maxPixels {
		return nil, invalid("image size %dx%d", width, height)
	}
	dec := &Decoder{br: bitio.NewLSBReader(data)}
	return dec.decodeImageStream(width, height, true)
}

// decodeImageStream decodes the main image (level0) or one of the
// sub-images carried by transforms and the entropy image.
func (dec *Decoder) decodeImageStream(xsize, ysize int, level0 bool) ([]uint32, error) {
	br := dec.br
	codedWidth := xsize
	if level0 {
		for br.ReadBit() {
			var err error
			if codedWidth, err = dec.readTransform(codedWidth, ysize); err != nil {
				return nil, err
			}
		}
	}

	cacheBits := 0
	if br.ReadBit() {
		cacheBits = int(br.ReadBits(4))
		if cacheBits < 1 || cacheBits > maxCacheBits {
			return nil, invalid("colour cache of %d bits", cacheBits)
		}
	}

	var (
		entropy     []uint32
		entropyBits int
		numGroups   = 1
	)
	if level0 && br.ReadBit() {
		entropyBits = int(br.ReadBits(3)) + 2
		ew, eh := subSampleSize(codedWidth, entropyBits), subSampleSize(ysize, entropyBits)
		var err error
		if entropy, err = dec.decodeImageStream(ew, eh, false); err != nil {
			return nil, err
		}
		for i, p := range entropy {
			g := int(p>>8) & 0xffff
			entropy[i] = uint32(g)
			numGroups = max(numGroups, g+1)
		}
	}
	if br.Err() != nil {
		return nil, truncated("image header")
	}

	groups := make([]htreeGroup, numGroups)
	for i := range groups {
		for c := range groups[i] {
			t, err := dec.readHuffmanCode(alphabetSize(c, cacheBits))
			if err != nil {
				return nil, err
			}
			groups[i][c] = t
		}
	}

	pix, err := dec.decodePixels(codedWidth, ysize, groups, entropy, entropyBits, cacheBits)
	if err != nil {
		return nil, err
	}
	if !level0 {
		return pix, nil
	}
	for i := len(dec.transforms) - 1; i >= 0; i-- {
		pix = dec.transforms[i].inverse(pix, ysize)
	}
	return pix, nil
}

// readTransform reads one transform header and its sub-image. It returns
// the coded width of the image that follows.
func (dec *Decoder) readTransform(xsize, ysize int) (int, error) {
	br := dec.br
	kind := int(br.ReadBits(2))
	if dec.seen[kind] {
		return 0, invalid("transform %d repeated", kind)
	}
	dec.seen[kind] = true
	t := transform{kind: kind, xsize: xsize}
	var err error
	switch kind {
	case predictorTransform, crossColorTransform:
		t.bits = int(br.ReadBits(3)) + 2
		t.data, err = dec.decodeImageStream(subSampleSize(xsize, t.bits), subSampleSize(ysize, t.bits), false)
	case colorIndexingTransform:
		n := int(br.ReadBits(8)) + 1
		switch {
		case n > 16:
			t.bits = 0
		case n > 4:
			t.bits = 1
		case n > 2:
			t.bits = 2
		default:
			t.bits = 3
		}
		var palette []uint32
		if palette, err = dec.decodeImageStream(n, 1, false); err == nil {
			// The palette is delta coded and padded to the addressable size.
			t.data = make([]uint32, 1<<(8>>t.bits))
			copy(t.data, palette)
			for i := 1; i < n; i++ {
				t.data[i] = addPixels(t.data[i], t.data[i-1])
			}
			xsize = subSampleSize(xsize, t.bits)
		}
	}
	if err != nil {
		return 0, err
	}
	dec.transforms = append(dec.transforms, t)
	return xsize, nil
}

func (dec *Decoder) readHuffmanCode(alphabet int) (*huffmanTree, error) {
	br := dec.br
	lengths := make([]uint8, alphabet)
	if br.ReadBit() {
		// Simple code: one or two symbols of length one.
		two := br.ReadBit()
		nbits := 1
		if br.ReadBit() {
			nbits = 8
		}
		symbols := []int{int(br.ReadBits(nbits))}
		if two {
			symbols = append(symbols, int(br.ReadBits(8)))
		}
		if br.Err() != nil {
			return nil, truncated("simple prefix code")
		}
		for _, s := range symbols {
			if s >= alphabet {
				return nil, invalid("symbol %d outside an alphabet of %d", s, alphabet)
			}
			lengths[s] = 1
		}
		return buildHuffmanTree(lengths)
	}

	var clLengths [numCodeLengthCodes]uint8
	n := int(br.ReadBits(4)) + 4
	for i := 0; i < n; i++ {
		clLengths[codeLengthOrder[i]] = uint8(br.ReadBits(3))
	}
	if br.Err() != nil {
		return nil, truncated("code lengths")
	}
	cl, err := buildHuffmanTree(clLengths[:])
	if err != nil {
		return nil, err
	}

	maxSymbol := alphabet
	if br.ReadBit() {
		nbits := 2 + 2*int(br.ReadBits(3))
		maxSymbol = 2 + int(br.ReadBits(nbits))
		if maxSymbol > alphabet {
			return nil, invalid("%d code lengths for an alphabet of %d", maxSymbol, alphabet)
		}
	}

	prev := uint8(8)
	for s := 0; s < alphabet && maxSymbol > 0; maxSymbol-- {
		code := cl.readSymbol(br)
		if code < 16 {
			lengths[s] = uint8(code)
			if code != 0 {
				prev = uint8(code)
			}
			s++
			continue
		}
		extra := [3]int{2, 3, 7}[code-16]
		repeat := int(br.ReadBits(extra)) + [3]int{3, 3, 11}[code-16]
		if s+repeat > alphabet {
			return nil, invalid("code length run past the alphabet")
		}
		v := uint8(0)
		if code == 16 {
			v = prev
		}
		for ; repeat > 0; repeat-- {
			lengths[s] = v
			s++
		}
	}
	if br.Err() != nil {
		return nil, truncated("code lengths")
	}
	return buildHuffmanTree(lengths)
}
