// Package lossless implements the VP8L lossless image codec: predictor,
// cross-colour, subtract-green and colour-indexing transforms over ARGB
// pixels, followed by LZ77 backward references, a colour cache and
// canonical prefix codes.
package lossless

const (
	numLiteralCodes    = 256
	numLengthCodes     = 24
	numDistanceCodes   = 40
	numCodeLengthCodes = 19
	maxCodeLength      = 15
	maxCacheBits       = 11
	maxPaletteSize     = 256
	maxLength          = 4096
	codesPerGroup      = 5
	planeCodes         = 120
	argbBlack          = 0xff000000
)

// Transform types, in bitstream numbering.
const (
	predictorTransform = iota
	crossColorTransform
	subtractGreenTransform
	colorIndexingTransform
)

// Prefix code classes of a Huffman group.
const (
	codeGreen = iota
	codeRed
	codeBlue
	codeAlpha
	codeDist
)

// codeLengthOrder is the transmission order of the code-length code lengths.
var codeLengthOrder = [numCodeLengthCodes]int{
	17, 18, 0, 1, 2, 3, 4, 5, 16, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15,
}

// alphabetSize returns the size of prefix code class c for a colour cache
// of cacheBits bits (0 disables the cache).
func alphabetSize(c, cacheBits int) int {
	switch c {
	case codeGreen:
		n := numLiteralCodes + numLengthCodes
		if cacheBits > 0 {
			n += 1 << cacheBits
		}
		return n
	case codeDist:
		return numDistanceCodes
	default:
		return numLiteralCodes
	}
}

// codeToPlane lists, for short distance codes 1..120, the (dy, 8-dx)
// offset packed as dy<<4 | (8-dx).
var codeToPlane = [planeCodes]uint8{
	0x18, 0x07, 0x17, 0x19, 0x28, 0x06, 0x27, 0x29, 0x16, 0x1a,
	0x26, 0x2a, 0x38, 0x05, 0x37, 0x39, 0x15, 0x1b, 0x36, 0x3a,
	0x25, 0x2b, 0x48, 0x04, 0x47, 0x49, 0x14, 0x1c, 0x35, 0x3b,
	0x46, 0x4a, 0x24, 0x2c, 0x58, 0x45, 0x4b, 0x34, 0x3c, 0x03,
	0x57, 0x59, 0x13, 0x1d, 0x56, 0x5a, 0x23, 0x2d, 0x44, 0x4c,
	0x55, 0x5b, 0x33, 0x3d, 0x68, 0x02, 0x67, 0x69, 0x12, 0x1e,
	0x66, 0x6a, 0x22, 0x2e, 0x54, 0x5c, 0x43, 0x4d, 0x65, 0x6b,
	0x32, 0x3e, 0x78, 0x01, 0x77, 0x79, 0x53, 0x5d, 0x11, 0x1f,
	0x64, 0x6c, 0x42, 0x4e, 0x76, 0x7a, 0x21, 0x2f, 0x75, 0x7b,
	0x31, 0x3f, 0x63, 0x6d, 0x52, 0x5e, 0x00, 0x74, 0x7c, 0x41,
	0x4f, 0x10, 0x20, 0x62, 0x6e, 0x30, 0x73, 0x7d, 0x51, 0x5f,
	0x40, 0x72, 0x7e, 0x61, 0x6f, 0x50, 0x71, 0x7f, 0x60, 0x70,
}

// planeToCode inverts codeToPlane. Unused slots hold 0xff.
var planeToCode [128]uint8

func init() {
	for i := range planeToCode {
		planeToCode[i] = 0xff
	}
	for code, v := range codeToPlane {
		planeToCode[v] = uint8(code)
	}
}

// planeCodeToDistance converts a decoded distance value into a pixel
// distance for an image of the given width.
func planeCodeToDistance(width, code int) int {
	if code > planeCodes {
		return code - planeCodes
	}
	v := codeToPlane[code-1]
	dy, dx := int(v>>4), 8-int(v&0xf)
	return max(dy*width+dx, 1)
}

// distanceToPlaneCode is the inverse of planeCodeToDistance, preferring
// the short codes for offsets near the current pixel.
func distanceToPlaneCode(width, dist int) int {
	dy, dx := dist/width, dist%width
	switch {
	case dx <= 8 && dy < 8:
		if c := planeToCode[dy*16+8-dx]; c != 0xff {
			return int(c) + 1
		}
	case dx > width-8 && dy < 7:
		if c := planeToCode[(dy+1)*16+8+width-dx]; c != 0xff {
			return int(c) + 1
		}
	}
	return dist + planeCodes
}

// prefixEncode splits v >= 1 into a prefix symbol and its extra bits.
func prefixEncode(v int) (code, extraBits, extra int) {
	d := v - 1
	if d < 2 {
		return d, 0, 0
	}
	hb := bitLen(d) - 1
	second := (d >> (hb - 1)) & 1
	extraBits = hb - 1
	return 2*hb + second, extraBits, d & (1<<extraBits - 1)
}

func bitLen(v int) int {
	n := 0
	for ; v > 0; v >>= 1 {
		n++
	}
	return n
}

// subSampleSize is the size of a plane of the given size reduced by
// 1<<bits, rounding up.
func subSampleSize(size, bits int) int {
	return (size + 1<<bits - 1) >> bits
}
