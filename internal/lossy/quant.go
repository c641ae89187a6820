package lossy

// quantMatrix holds the DC and AC step sizes of one segment.
type quantMatrix struct {
	y1, y2, uv [2]int
}

func clipQ(v, hi int) int {
	return min(max(v, 0), hi)
}

// newQuantMatrix derives the step sizes for base index q and the per-type
// index deltas of the frame header.
func newQuantMatrix(q, dqY1DC, dqY2DC, dqY2AC, dqUVDC, dqUVAC int) quantMatrix {
	var m quantMatrix
	m.y1[0] = dcTable[clipQ(q+dqY1DC, maxQuantIndex)]
	m.y1[1] = acTable[clipQ(q, maxQuantIndex)]
	m.y2[0] = dcTable[clipQ(q+dqY2DC, maxQuantIndex)] * 2
	m.y2[1] = acTable[clipQ(q+dqY2AC, maxQuantIndex)] * 155 / 100
	if m.y2[1] < 8 {
		m.y2[1] = 8
	}
	m.uv[0] = dcTable[clipQ(q+dqUVDC, 117)]
	m.uv[1] = acTable[clipQ(q+dqUVAC, maxQuantIndex)]
	return m
}

// qualityToIndex maps a 0..100 quality to a base quantizer index. The
// curve is linear in perceived compression below 75 and steeper above it.
func qualityToIndex(quality float32) int {
	return clipQ(int(127*(1-qualityToCompression(quality))), maxQuantIndex)
}

// filterLevel returns the normal loop-filter level used for index q.
func filterLevel(q int) int {
	level := acTable[q] * 5 / 16
	if level < 2 {
		return 0
	}
	return min(level, maxLFLevel)
}

const (
	qFix     = 17
	maxLevel = 2047
)

// Rounding biases in 1/256 units, DC then AC, per coefficient type.
var (
	biasY1 = [2]int{96, 110}
	biasY2 = [2]int{96, 108}
	biasUV = [2]int{110, 115}
)

// quantizer converts transform coefficients to levels for one block type.
type quantizer struct {
	q, iq, bias [2]int
}

func newQuantizer(steps [2]int, bias [2]int) quantizer {
	var qz quantizer
	for i := 0; i < 2; i++ {
		qz.q[i] = steps[i]
		qz.iq[i] = (1 << qFix) / steps[i]
		qz.bias[i] = bias[i] << (qFix - 8)
	}
	return qz
}

// quantize turns the raster coefficients in into levels in scan order,
// starting at scan position first, and replaces in with the dequantized
// values. It returns the scan position of the last non-zero level, or -1.
func (qz *quantizer) quantize(in *[16]int16, first int, levels *[16]int16) int {
	last := -1
	for n := 0; n < first; n++ {
		levels[n] = 0
	}
	for n := first; n < 16; n++ {
		j := zigzag[n]
		t := 0
		if n > 0 {
			t = 1
		}
		c := int(in[j])
		neg := c < 0
		if neg {
			c = -c
		}
		level := min((c*qz.iq[t]+qz.bias[t])>>qFix, maxLevel)
		if neg {
			level = -level
		}
		levels[n] = int16(level)
		in[j] = int16(level * qz.q[t])
		if level != 0 {
			last = n
		}
	}
	return last
}
