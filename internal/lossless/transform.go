package lossless

func addPixels(a, b uint32) uint32 {
	ag := (a & 0xff00ff00) + (b & 0xff00ff00)
	rb := (a & 0x00ff00ff) + (b & 0x00ff00ff)
	return ag&0xff00ff00 | rb&0x00ff00ff
}

func subPixels(a, b uint32) uint32 {
	ag := 0x00ff00ff + (a & 0xff00ff00) - (b & 0xff00ff00)
	rb := 0xff00ff00 + (a & 0x00ff00ff) - (b & 0x00ff00ff)
	return ag&0xff00ff00 | rb&0x00ff00ff
}

func average2(a, b uint32) uint32 {
	return ((a^b)&0xfefefefe)>>1 + a&b
}

func clip255(v int) uint32 {
	return uint32(min(max(v, 0), 255))
}

func channel(p uint32, shift uint) int { return int(p>>shift) & 0xff }

func clampAddSubtractFull(a, b, c uint32) uint32 {
	var out uint32
	for shift := uint(0); shift < 32; shift += 8 {
		out |= clip255(channel(a, shift)+channel(b, shift)-channel(c, shift)) << shift
	}
	return out
}

func clampAddSubtractHalf(a, b uint32) uint32 {
	var out uint32
	for shift := uint(0); shift < 32; shift += 8 {
		ca := channel(a, shift)
		out |= clip255(ca+(ca-channel(b, shift))/2) << shift
	}
	return out
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// selectPredictor returns top or left, whichever is closer to the
// gradient estimate left+top-topLeft.
func selectPredictor(top, left, topLeft uint32) uint32 {
	d := 0
	for shift := uint(0); shift < 32; shift += 8 {
		tl := channel(topLeft, shift)
		d += absInt(channel(left, shift)-tl) - absInt(channel(top, shift)-tl)
	}
	if d <= 0 {
		return top
	}
	return left
}

// numPredictors is the number of distinct predictor modes. Modes 14 and 15
// are valid in the bitstream and predict black.
const numPredictors = 14

// predict computes predictor mode for pixel i of an image of the given
// width. i must not be in the first row or column.
func predict(mode int, pix []uint32, i, width int) uint32 {
	left, top := pix[i-1], pix[i-width]
	switch mode {
	case 1:
		return left
	case 2:
		return top
	case 3:
		return pix[i-width+1]
	case 4:
		return pix[i-width-1]
	case 5:
		return average2(average2(left, pix[i-width+1]), top)
	case 6:
		return average2(left, pix[i-width-1])
	case 7:
		return average2(left, top)
	case 8:
		return average2(pix[i-width-1], top)
	case 9:
		return average2(top, pix[i-width+1])
	case 10:
		return average2(average2(left, pix[i-width-1]), average2(top, pix[i-width+1]))
	case 11:
		return selectPredictor(top, left, pix[i-width-1])
	case 12:
		return clampAddSubtractFull(left, top, pix[i-width-1])
	case 13:
		return clampAddSubtractHalf(average2(left, top), pix[i-width-1])
	default:
		return argbBlack
	}
}

// predictorFor returns the prediction of pixel (x, y) honouring the fixed
// predictors of the first row and column.
func predictorFor(mode, x, y int, pix []uint32, width int) uint32 {
	i := y*width + x
	switch {
	case y == 0 && x == 0:
		return argbBlack
	case y == 0:
		return pix[i-1]
	case x == 0:
		return pix[i-width]
	}
	return predict(mode, pix, i, width)
}

func inversePredictor(pix []uint32, width, height, bits int, modes []uint32) {
	tiles := subSampleSize(width, bits)
	for y := 0; y < height; y++ {
		row := (y >> bits) * tiles
		for x := 0; x < width; x++ {
			mode := int(modes[row+x>>bits]>>8) & 0xf
			i := y*width + x
			pix[i] = addPixels(pix[i], predictorFor(mode, x, y, pix, width))
		}
	}
}

// multipliers are the coefficients of the cross-colour transform.
type multipliers struct {
	g2r, g2b, r2b int8
}

func multipliersFrom(p uint32) multipliers {
	return multipliers{g2r: int8(p), g2b: int8(p >> 8), r2b: int8(p >> 16)}
}

func (m multipliers) pixel() uint32 {
	return argbBlack | uint32(uint8(m.r2b))<<16 | uint32(uint8(m.g2b))<<8 | uint32(uint8(m.g2r))
}

func colorDelta(t, c int8) int {
	return int(t) * int(c) >> 5
}

func (m multipliers) forward(argb uint32) uint32 {
	green, red := int8(argb>>8), int8(argb>>16)
	r := (int(argb>>16)&0xff - colorDelta(m.g2r, green)) & 0xff
	b := (int(argb)&0xff - colorDelta(m.g2b, green) - colorDelta(m.r2b, red)) & 0xff
	return argb&0xff00ff00 | uint32(r)<<16 | uint32(b)
}

func (m multipliers) inverse(argb uint32) uint32 {
	green := int8(argb >> 8)
	r := (int(argb>>16)&0xff + colorDelta(m.g2r, green)) & 0xff
	b := (int(argb)&0xff + colorDelta(m.g2b, green) + colorDelta(m.r2b, int8(r))) & 0xff
	return argb&0xff00ff00 | uint32(r)<<16 | uint32(b)
}

func inverseCrossColor(pix []uint32, width, height, bits int, data []uint32) {
	tiles := subSampleSize(width, bits)
	for y := 0; y < height; y++ {
		row := (y >> bits) * tiles
		for x := 0; x < width; x++ {
			i := y*width + x
			pix[i] = multipliersFrom(data[row+x>>bits]).inverse(pix[i])
		}
	}
}

func subtractGreen(pix []uint32) {
	for i, p := range pix {
		g := (p >> 8) & 0xff
		pix[i] = p&0xff00ff00 | (p>>16-g)&0xff<<16 | (p-g)&0xff
	}
}

func addGreen(pix []uint32) {
	for i, p := range pix {
		g := (p >> 8) & 0xff
		pix[i] = p&0xff00ff00 | (p>>16+g)&0xff<<16 | (p+g)&0xff
	}
}

// expandPalette maps the bundled palette indices of a packed plane back to
// colours. Indices past the palette decode as transparent black.
func expandPalette(pix []uint32, width, height, bits int, palette []uint32) []uint32 {
	out := make([]uint32, width*height)
	packed := subSampleSize(width, bits)
	bitsPer := uint(8 >> bits)
	mask := uint32(1)<<bitsPer - 1
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			p := pix[y*packed+x>>bits] >> 8
			idx := p >> (uint(x&(1<<bits-1)) * bitsPer) & mask
			out[y*width+x] = palette[idx]
		}
	}
	return out
}

// inverse undoes the transform on pix, whose rows are t.xsize wide, or
// the packed width for colour indexing.
func (t *transform) inverse(pix []uint32, height int) []uint32 {
	switch t.kind {
	case predictorTransform:
		inversePredictor(pix, t.xsize, height, t.bits, t.data)
	case crossColorTransform:
		inverseCrossColor(pix, t.xsize, height, t.bits, t.data)
	case subtractGreenTransform:
		addGreen(pix)
	case colorIndexingTransform:
		return expandPalette(pix, t.xsize, height, t.bits, t.data)
	}
	return pix
}

// ARGBToNRGBA unpacks ARGB pixels into NRGBA bytes.
func ARGBToNRGBA(pix []uint32, dst []byte) {
	for i, p := range pix {
		d := dst[4*i : 4*i+4 : 4*i+4]
		d[0], d[1], d[2], d[3] = uint8(p>>16), uint8(p>>8), uint8(p), uint8(p>>24)
	}
}

// PackARGB converts packed RGB (channels 3, opaque) or RGBA (channels 4)
// bytes into ARGB pixels.
func PackARGB(src []byte, channels int) []uint32 {
	n := len(src) / channels
	pix := make([]uint32, n)
	for i := range pix {
		s := src[i*channels:]
		a := uint32(0xff)
		if channels == 4 {
			a = uint32(s[3])
		}
		pix[i] = a<<24 | uint32(s[0])<<16 | uint32(s[1])<<8 | uint32(s[2])
	}
	return pix
}
