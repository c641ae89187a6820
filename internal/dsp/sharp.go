package dsp

import (
	"math"
	"sync"
)

// Sharp RGB to 4:2:0 conversion. Luma is refined so that the image
// rebuilt from the subsampled chroma matches the source luminance in
// linear light, which keeps thin coloured edges from bleeding.

const (
	sharpIterations = 4
	sharpFix        = 2 // extra bits of working precision
	sharpDepth      = 8 + sharpFix
	sharpMax        = 1<<sharpDepth - 1

	linearBits   = 16
	toLinearBits = sharpDepth
	toGammaBits  = 9
)

var (
	toLinearTab [1<<toLinearBits + 1]uint32
	toGammaTab  [1<<toGammaBits + 2]uint32
	gammaOnce   sync.Once
)

func initGamma() {
	gammaOnce.Do(func() {
		const (
			a      = 0.09929682680944
			thresh = 0.018053968510807
			gamma  = 1 / 0.45
			scale  = float64(1 << linearBits)
		)
		for v := range toLinearTab {
			g := float64(v) / (1 << toLinearBits)
			l := g / 4.5
			if g > thresh*4.5 {
				l = math.Pow((g+a)/(1+a), gamma)
			}
			toLinearTab[v] = uint32(l*scale + 0.5)
		}
		for v := 0; v <= 1<<toGammaBits; v++ {
			l := float64(v) / (1 << toGammaBits)
			g := 4.5 * l
			if l > thresh {
				g = (1+a)*math.Pow(l, 1/gamma) - a
			}
			toGammaTab[v] = uint32(g*scale + 0.5)
		}
		toGammaTab[1<<toGammaBits+1] = toGammaTab[1<<toGammaBits]
	})
}

func toLinear(v uint16) uint32 { return toLinearTab[v] }

// toGamma maps a 16-bit linear value back to sharpDepth bits,
// interpolating between table entries.
func toGamma(v uint32) uint16 {
	const (
		shift = linearBits - toGammaBits
		down  = linearBits - sharpDepth
	)
	pos := v >> shift
	frac := v & (1<<shift - 1)
	v0 := toGammaTab[pos] >> down
	v1 := toGammaTab[pos+1] >> down
	return uint16(min(v0+((v1-v0)*frac+1<<(shift-1))>>shift, sharpMax))
}

// grayOf is the Rec. 709 luminance used as the W channel.
func grayOf(r, g, b int) int {
	return (13933*r + 46871*g + 4732*b + yuvHalf) >> yuvFix
}

func clipSharp(v int) uint16 {
	if v < 0 {
		return 0
	}
	if v > sharpMax {
		return sharpMax
	}
	return uint16(v)
}

// rgbRows holds two source rows as separate R, G and B planes of width w.
type rgbRows struct {
	w       int
	r, g, b [2][]uint16
}

func newRGBRows(w int) *rgbRows {
	rr := &rgbRows{w: w}
	for k := 0; k < 2; k++ {
		rr.r[k] = make([]uint16, w)
		rr.g[k] = make([]uint16, w)
		rr.b[k] = make([]uint16, w)
	}
	return rr
}

func (rr *rgbRows) load(k int, row []byte, width, channels int) {
	for i := 0; i < width; i++ {
		p := row[i*channels:]
		rr.r[k][i] = uint16(p[0]) << sharpFix
		rr.g[k][i] = uint16(p[1]) << sharpFix
		rr.b[k][i] = uint16(p[2]) << sharpFix
	}
	for i := width; i < rr.w; i++ {
		rr.r[k][i] = rr.r[k][width-1]
		rr.g[k][i] = rr.g[k][width-1]
		rr.b[k][i] = rr.b[k][width-1]
	}
}

// luma writes the linear-light luminance of row k, back in gamma space.
func (rr *rgbRows) luma(k int, dst []uint16) {
	for i := 0; i < rr.w; i++ {
		y := grayOf(int(toLinear(rr.r[k][i])), int(toLinear(rr.g[k][i])), int(toLinear(rr.b[k][i])))
		dst[i] = toGamma(uint32(y))
	}
}

func average4(p [2][]uint16, i int) int {
	sum := toLinear(p[0][i]) + toLinear(p[0][i+1]) + toLinear(p[1][i]) + toLinear(p[1][i+1])
	return int(toGamma((sum + 2) >> 2))
}

// chroma writes the subsampled R-W, G-W and B-W residuals of both rows.
func (rr *rgbRows) chroma(dr, dg, db []int16) {
	for i := 0; i < rr.w/2; i++ {
		r := average4(rr.r, 2*i)
		g := average4(rr.g, 2*i)
		b := average4(rr.b, 2*i)
		gray := grayOf(r, g, b)
		dr[i] = int16(r - gray)
		dg[i] = int16(g - gray)
		db[i] = int16(b - gray)
	}
}

// upsample rebuilds one plane of two rows from the W values and the
// residuals of the current, previous and next chroma rows.
func upsample(w0, w1 []uint16, cur, prev, next []int16, out0, out1 []uint16) {
	w := len(w0)
	uvW := w / 2
	edge := func(a, b int16, y uint16) uint16 {
		return clipSharp((3*int(a)+int(b)+2)>>2 + int(y))
	}
	out0[0] = edge(cur[0], prev[0], w0[0])
	out1[0] = edge(cur[0], next[0], w1[0])
	for i := 0; i < (w-1)/2; i++ {
		a0, a1 := int(cur[i]), int(cur[i+1])
		p0, p1 := int(prev[i]), int(prev[i+1])
		n0, n1 := int(next[i]), int(next[i+1])
		out0[2*i+1] = clipSharp(int(w0[2*i+1]) + (9*a0+3*a1+3*p0+p1+8)>>4)
		out0[2*i+2] = clipSharp(int(w0[2*i+2]) + (9*a1+3*a0+3*p1+p0+8)>>4)
		out1[2*i+1] = clipSharp(int(w1[2*i+1]) + (9*a0+3*a1+3*n0+n1+8)>>4)
		out1[2*i+2] = clipSharp(int(w1[2*i+2]) + (9*a1+3*a0+3*n1+n0+8)>>4)
	}
	out0[w-1] = edge(cur[uvW-1], prev[uvW-1], w0[w-1])
	out1[w-1] = edge(cur[uvW-1], next[uvW-1], w1[w-1])
}

// SharpImportYUV420 is ImportYUV420 with iterative luma refinement.
// It takes the same arguments and honours the same destination layout.
func SharpImportYUV420(pix []byte, width, height, channels int,
	y []byte, yStride int, u, v []byte, uvStride int) {
	initGamma()
	w := (width + 1) &^ 1
	h := (height + 1) &^ 1
	uvW, uvH := w/2, h/2
	stride := width * channels

	bestY := make([]uint16, w*h)
	targetY := make([]uint16, w*h)
	// Residual planes, indexed [channel][row*uvW+col].
	var bestUV, targetUV [3][]int16
	for k := 0; k < 3; k++ {
		bestUV[k] = make([]int16, uvW*uvH)
		targetUV[k] = make([]int16, uvW*uvH)
	}
	rows := newRGBRows(w)

	for j := 0; j < h; j += 2 {
		rows.load(0, pix[j*stride:], width, channels)
		if j+1 < height {
			rows.load(1, pix[(j+1)*stride:], width, channels)
		} else {
			rows.load(1, pix[j*stride:], width, channels)
		}
		for k := 0; k < 2; k++ {
			dst := bestY[(j+k)*w:]
			for i := 0; i < w; i++ {
				dst[i] = uint16(grayOf(int(rows.r[k][i]), int(rows.g[k][i]), int(rows.b[k][i])))
			}
			rows.luma(k, targetY[(j+k)*w:])
		}
		off := j / 2 * uvW
		rows.chroma(targetUV[0][off:], targetUV[1][off:], targetUV[2][off:])
	}
	for k := 0; k < 3; k++ {
		copy(bestUV[k], targetUV[k])
	}

	gotY := make([]uint16, 2*w)
	gotR, gotG, gotB := make([]int16, uvW), make([]int16, uvW), make([]int16, uvW)
	prevDiff := uint64(math.MaxUint64)
	for iter := 0; iter < sharpIterations; iter++ {
		var diff uint64
		for j := 0; j < h; j += 2 {
			row := j / 2
			cur := row * uvW
			prev, next := cur, cur
			if row > 0 {
				prev = cur - uvW
			}
			if row+1 < uvH {
				next = cur + uvW
			}
			w0, w1 := bestY[j*w:(j+1)*w], bestY[(j+1)*w:(j+2)*w]
			planes := [3][2][]uint16{rows.r, rows.g, rows.b}
			for k := 0; k < 3; k++ {
				p := bestUV[k]
				upsample(w0, w1, p[cur:], p[prev:], p[next:], planes[k][0], planes[k][1])
			}
			rows.luma(0, gotY[:w])
			rows.luma(1, gotY[w:])
			rows.chroma(gotR, gotG, gotB)

			target := targetY[j*w : (j+2)*w]
			best := bestY[j*w : (j+2)*w]
			for i, t := range target {
				d := int(t) - int(gotY[i])
				best[i] = clipSharp(int(best[i]) + d)
				if d < 0 {
					d = -d
				}
				diff += uint64(d)
			}
			for i := 0; i < uvW; i++ {
				bestUV[0][cur+i] += targetUV[0][cur+i] - gotR[i]
				bestUV[1][cur+i] += targetUV[1][cur+i] - gotG[i]
				bestUV[2][cur+i] += targetUV[2][cur+i] - gotB[i]
			}
		}
		if iter > 0 && (diff < uint64(3*w*h) || diff > prevDiff) {
			break
		}
		prevDiff = diff
	}

	const (
		shift = yuvFix + sharpFix
		round = 1 << (shift - 1)
	)
	for j := 0; j < height; j++ {
		dst := y[j*yStride:]
		for i := 0; i < width; i++ {
			c := j/2*uvW + i/2
			wv := int(bestY[j*w+i])
			r := int(bestUV[0][c]) + wv
			g := int(bestUV[1][c]) + wv
			b := int(bestUV[2][c]) + wv
			dst[i] = Clip8((16839*r + 33059*g + 6420*b + 16<<shift + round) >> shift)
		}
	}
	for j := 0; j < (height+1)/2; j++ {
		for i := 0; i < (width+1)/2; i++ {
			c := j*uvW + i
			r, g, b := int(bestUV[0][c]), int(bestUV[1][c]), int(bestUV[2][c])
			u[j*uvStride+i] = Clip8((-9719*r - 19081*g + 28800*b + 128<<shift + round) >> shift)
			v[j*uvStride+i] = Clip8((28800*r - 24116*g - 4684*b + 128<<shift + round) >> shift)
		}
	}
}
