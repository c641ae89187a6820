package lossless

import "github.com/deepteams/webpcodec/internal/bitio"

// readPrefixValue reads the extra bits of a length or distance prefix
// symbol and returns the value it codes (1-based).
func readPrefixValue(br *bitio.LSBReader, code int) int {
	if code < 4 {
		return code + 1
	}
	extra := (code - 2) >> 1
	offset := (2 + code&1) << extra
	return offset + int(br.ReadBits(extra)) + 1
}

// decodePixels reads the entropy-coded pixels of a width x height plane.
// entropy holds the group index of each 1<<bits tile, or is nil when one
// group covers the plane.
func (dec *Decoder) decodePixels(width, height int, groups []htreeGroup, entropy []uint32, bits, cacheBits int) ([]uint32, error) {
	br := dec.br
	total := width * height
	if total > maxPixels {
		return nil, invalid("plane of %d pixels", total)
	}
	pix := make([]uint32, total)

	var cache *colorCache
	if cacheBits > 0 {
		cache = newColorCache(cacheBits)
	}
	cached := 0
	entropyWidth := subSampleSize(width, bits)
	g := &groups[0]

	x, y := 0, 0
	for pos := 0; pos < total; {
		if entropy != nil {
			g = &groups[entropy[(y>>bits)*entropyWidth+x>>bits]]
		}
		code := g[codeGreen].readSymbol(br)
		n := 1
		switch {
		case code < numLiteralCodes:
			r := g[codeRed].readSymbol(br)
			b := g[codeBlue].readSymbol(br)
			a := g[codeAlpha].readSymbol(br)
			pix[pos] = uint32(a)<<24 | uint32(r)<<16 | uint32(code)<<8 | uint32(b)
		case code < numLiteralCodes+numLengthCodes:
			n = readPrefixValue(br, code-numLiteralCodes)
			dist := planeCodeToDistance(width, readPrefixValue(br, g[codeDist].readSymbol(br)))
			if br.Err() != nil {
				return nil, truncated("pixels")
			}
			if dist > pos {
				return nil, invalid("distance %d at pixel %d", dist, pos)
			}
			if n > total-pos {
				return nil, invalid("copy of %d pixels past the end of the image", n)
			}
			for i := pos; i < pos+n; i++ {
				pix[i] = pix[i-dist]
			}
		default:
			if cache == nil {
				return nil, invalid("colour cache symbol without a cache")
			}
			for ; cached < pos; cached++ {
				cache.insert(pix[cached])
			}
			pix[pos] = cache.lookup(code - numLiteralCodes - numLengthCodes)
		}
		if br.Err() != nil {
			return nil, truncated("pixels")
		}
		pos += n
		for x += n; x >= width; x -= width {
			y++
		}
	}
	return pix, nil
}
