package lossless

import (
	"fmt"
	"slices"

	"github.com/deepteams/webpcodec/internal/bitio"
	"github.com/deepteams/webpcodec/internal/container"
)

// Options control the lossless encoder.
type Options struct {
	// Quality scales the effort spent on the LZ77 search, 0 to 100.
	Quality float32
	// Method selects the speed/size trade-off, 0 (fastest) to 6. Method 3
	// and up add the cross-colour transform, 5 and up split the entropy
	// codes over image regions.
	Method int
	// Exact keeps the colour of fully transparent pixels. Otherwise it is
	// zeroed, which compresses better.
	Exact bool
	// NoPalette disables the colour-indexing transform.
	NoPalette bool
	// NearLossless, from 1 to 99, lets pixels move by up to a few levels
	// per channel in exchange for smaller output; lower is lossier. 0 and
	// 100 keep the image exact. Paletted images are never altered.
	NearLossless int
}

func (o Options) normalized() Options {
	o.Quality = min(max(o.Quality, 0), 100)
	o.Method = min(max(o.Method, 0), 6)
	o.NearLossless = min(max(o.NearLossless, 0), 100)
	return o
}

// Encode compresses packed RGB (channels 3) or RGBA (channels 4) pixels
// into a VP8L bitstream. The alpha hint is set for 4-channel input.
func Encode(pix []byte, width, height, channels int, o Options) ([]byte, error) {
	if channels != 3 && channels != 4 || len(pix) < width*height*channels {
		return nil, fmt.Errorf("vp8l: %d bytes of %d-channel pixels for %dx%d", len(pix), channels, width, height)
	}
	argb := PackARGB(pix[:width*height*channels], channels)
	return EncodeARGB(argb, width, height, channels == 4, o)
}

// EncodeARGB compresses ARGB pixels into a VP8L bitstream.
func EncodeARGB(argb []uint32, width, height int, hasAlpha bool, o Options) ([]byte, error) {
	if width <= 0 || height <= 0 || len(argb) < width*height {
		return nil, fmt.Errorf("vp8l: invalid image %dx%d with %d pixels", width, height, len(argb))
	}
	if width > container.VP8LMaxDim || height > container.VP8LMaxDim {
		return nil, fmt.Errorf("%w: %dx%d exceeds the VP8L limit of %d", container.ErrTooLarge, width, height, container.VP8LMaxDim)
	}
	w := bitio.NewLSBWriter(width * height)
	w.WriteBits(0x2f, 8)
	w.WriteBits(uint32(width-1), 14)
	w.WriteBits(uint32(height-1), 14)
	w.WriteBit(hasAlpha)
	w.WriteBits(0, 3) // version
	encodeStream(w, argb[:width*height], width, height, o.normalized())
	return w.Finish(), nil
}

// EncodeImageStream compresses ARGB pixels into a headerless image stream
// whose size is implied by the container, as in ALPH chunks.
func EncodeImageStream(argb []uint32, width, height int, o Options) []byte {
	w := bitio.NewLSBWriter(width * height / 2)
	encodeStream(w, argb[:width*height], width, height, o.normalized())
	return w.Finish()
}

func encodeStream(w *bitio.LSBWriter, argb []uint32, width, height int, o Options) {
	pix := slices.Clone(argb)
	if !o.Exact {
		for i, p := range pix {
			if p>>24 == 0 {
				pix[i] = 0
			}
		}
	}

	codedWidth := width
	palette, ok := collectPalette(pix)
	if ok && !o.NoPalette {
		w.WriteBits(1, 1)
		w.WriteBits(colorIndexingTransform, 2)
		w.WriteBits(uint32(len(palette)-1), 8)
		deltas := make([]uint32, len(palette))
		deltas[0] = palette[0]
		for i := 1; i < len(palette); i++ {
			deltas[i] = subPixels(palette[i], palette[i-1])
		}
		encodeImageData(w, deltas, len(palette), 1, false, o)
		pix, codedWidth = bundlePixels(pix, width, height, palette)
	} else {
		if o.NearLossless > 0 {
			applyNearLossless(pix, width, height, o.NearLossless)
		}
		w.WriteBits(1, 1)
		w.WriteBits(subtractGreenTransform, 2)
		subtractGreen(pix)

		bits := predictorBits(o.Method, width, height)
		modes := choosePredictors(pix, width, height, bits)
		w.WriteBits(1, 1)
		w.WriteBits(predictorTransform, 2)
		w.WriteBits(uint32(bits-2), 3)
		encodeImageData(w, modes, subSampleSize(width, bits), subSampleSize(height, bits), false, o)
		pix = applyPredictors(pix, width, height, bits, modes)

		if o.Method >= 3 {
			coeffs := chooseCrossColor(pix, width, height, bits)
			w.WriteBits(1, 1)
			w.WriteBits(crossColorTransform, 2)
			w.WriteBits(uint32(bits-2), 3)
			encodeImageData(w, coeffs, subSampleSize(width, bits), subSampleSize(height, bits), false, o)
			applyCrossColor(pix, width, height, bits, coeffs)
		}
	}
	w.WriteBits(0, 1)
	encodeImageData(w, pix, codedWidth, height, true, o)
}

// collectPalette returns the sorted distinct colours of pix when there are
// at most maxPaletteSize of them.
func collectPalette(pix []uint32) ([]uint32, bool) {
	seen := make(map[uint32]struct{}, maxPaletteSize+1)
	for _, p := range pix {
		if _, ok := seen[p]; ok {
			continue
		}
		if len(seen) == maxPaletteSize {
			return nil, false
		}
		seen[p] = struct{}{}
	}
	palette := make([]uint32, 0, len(seen))
	for p := range seen {
		palette = append(palette, p)
	}
	slices.Sort(palette)
	return palette, true
}

// bundlePixels replaces colours by palette indices, packing 2, 4 or 8
// indices per pixel for small palettes. It returns the packed plane and
// its width.
func bundlePixels(pix []uint32, width, height int, palette []uint32) ([]uint32, int) {
	index := make(map[uint32]uint32, len(palette))
	for i, c := range palette {
		index[c] = uint32(i)
	}
	bits := 0
	switch n := len(palette); {
	case n <= 2:
		bits = 3
	case n <= 4:
		bits = 2
	case n <= 16:
		bits = 1
	}
	packedWidth := subSampleSize(width, bits)
	out := make([]uint32, packedWidth*height)
	bitsPer := uint(8 >> bits)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			idx := index[pix[y*width+x]]
			out[y*packedWidth+x>>bits] |= idx << (8 + uint(x&(1<<bits-1))*bitsPer)
		}
	}
	for i := range out {
		out[i] |= argbBlack
	}
	return out, packedWidth
}

// chooseCacheBits estimates the coded size of refs for a few colour cache
// sizes and returns the cheapest, with refs rewritten to use it.
func chooseCacheBits(refs []pixelRef, pix []uint32, width int, o Options) (int, []pixelRef) {
	candidates := []int{0}
	switch {
	case o.Method >= 4:
		candidates = append(candidates, 2, 4, 6, 8, 10)
	case o.Method >= 1:
		candidates = append(candidates, 6, 10)
	}
	best, bestRefs, bestCost := 0, refs, refsHistogram(refs, width, 0).cost()
	for _, bits := range candidates[1:] {
		r := withCache(refs, pix, bits)
		if c := refsHistogram(r, width, bits).cost(); c < bestCost {
			best, bestRefs, bestCost = bits, r, c
		}
	}
	return best, bestRefs
}

// encodeImageData writes the entropy-coded part of an image stream: the
// colour cache size, for the main image the entropy image, then the prefix
// codes and the symbols.
func encodeImageData(w *bitio.LSBWriter, pix []uint32, width, height int, level0 bool, o Options) {
	refs := backwardRefs(pix, width, o)
	cacheBits, refs := chooseCacheBits(refs, pix, width, o)
	if cacheBits > 0 {
		w.WriteBits(1, 1)
		w.WriteBits(uint32(cacheBits), 4)
	} else {
		w.WriteBits(0, 1)
	}

	var grouping *entropyGrouping
	if level0 {
		if o.Method >= 5 {
			grouping = groupTiles(refs, width, height, cacheBits)
		}
		if grouping != nil {
			w.WriteBits(1, 1)
			w.WriteBits(uint32(grouping.bits-2), 3)
			encodeImageData(w, grouping.image(), grouping.tilesWide, grouping.tilesHigh, false, o)
		} else {
			w.WriteBits(0, 1)
		}
	}
	if grouping == nil {
		grouping = singleGroup(refs, width, cacheBits)
	}
	writeRefs(w, refs, width, cacheBits, grouping)
}

func writeRefs(w *bitio.LSBWriter, refs []pixelRef, width, cacheBits int, g *entropyGrouping) {
	codes := make([][codesPerGroup]*prefixCode, len(g.histograms))
	for i, h := range g.histograms {
		for c := range codes[i] {
			codes[i][c] = writeHuffmanCode(w, h.counts[c])
		}
	}
	pos := 0
	for _, r := range refs {
		pc := &codes[g.groupAt(pos, width)]
		switch r.kind {
		case refLiteral:
			pc[codeGreen].write(w, int(r.val>>8)&0xff)
			pc[codeRed].write(w, int(r.val>>16)&0xff)
			pc[codeBlue].write(w, int(r.val)&0xff)
			pc[codeAlpha].write(w, int(r.val>>24))
		case refCache:
			pc[codeGreen].write(w, numLiteralCodes+numLengthCodes+int(r.val))
		case refCopy:
			code, nbits, extra := prefixEncode(int(r.len))
			pc[codeGreen].write(w, numLiteralCodes+code)
			w.WriteBits(uint32(extra), nbits)
			code, nbits, extra = prefixEncode(distanceToPlaneCode(width, int(r.val)))
			pc[codeDist].write(w, code)
			w.WriteBits(uint32(extra), nbits)
		}
		pos += int(r.len)
	}
}
