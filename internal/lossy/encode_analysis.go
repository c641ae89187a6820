package lossy

import (
	"math"

	"github.com/deepteams/webpcodec/internal/dsp"
)

// Macroblock analysis. Every macroblock gets a susceptibility "alpha"
// from the spread of its residual spectrum against a cheap prediction of
// the source. Alphas are clustered into segments and spatial noise
// shaping (SNS) moves each segment's quantizer away from the base one:
// flat segments, where artifacts show most, are quantized more finely.

const (
	maxAlpha       = 255
	alphaScale     = 2 * maxAlpha
	maxCoeffThresh = 31
	kMeansIters    = 6
)

// segment holds the coding parameters shared by the macroblocks of one
// segment.
type segment struct {
	quant      int
	level      int // loop-filter level
	y1, y2, uv quantizer
	i4Penalty  int
	lambdaI4   int // trellis rate weights
	lambdaI16  int
	alpha      int // centred susceptibility, -127 to 127
}

// residualAlpha maps the histogram of the transformed residual between
// src and pred to 0..maxAlpha. Blocks whose coefficients spread over a
// wide range score high.
func residualAlpha(src, pred []byte, blocks []int) int {
	var dist [maxCoeffThresh + 1]int
	var c [16]int16
	for _, off := range blocks {
		dsp.FTransform(src, off, pred, off, c[:])
		for _, v := range c {
			dist[min(abs(int(v))>>3, maxCoeffThresh)]++
		}
	}
	maxValue, lastNonZero := 0, 1
	for k, n := range dist {
		if n > 0 {
			maxValue = max(maxValue, n)
			lastNonZero = k
		}
	}
	if maxValue <= 1 {
		return 0
	}
	return min(alphaScale*lastNonZero/maxValue, maxAlpha)
}

// Workspace offsets of the 4x4 blocks of a macroblock.
var (
	lumaBlocks   [16]int
	chromaBlocks [4]int
)

func init() {
	for n := range lumaBlocks {
		lumaBlocks[n] = subOff(n)
	}
	for n := range chromaBlocks {
		chromaBlocks[n] = chromaSubOff(n)
	}
}

// analyzeMacroblock returns the luma and chroma alphas of one macroblock,
// predicting from neighbouring source samples with the DC and TM modes.
func (e *encoder) analyzeMacroblock(mbx, mby int) (int, int) {
	ws, src := &e.ws, &e.srcWS
	ws.load(e.src, mbx, mby, e.mbW)
	loadSource(src, e.src, mbx, mby)
	top, left := mby > 0, mbx > 0

	best, bestUV := maxAlpha+1, maxAlpha+1
	for _, mode := range []int{dsp.PredDC, dsp.PredTM} {
		dsp.Predict16(mode, ws.y[:], wsOff, top, left)
		best = min(best, residualAlpha(src.y[:], ws.y[:], lumaBlocks[:]))
		dsp.Predict8(mode, ws.u[:], wsOff, top, left)
		dsp.Predict8(mode, ws.v[:], wsOff, top, left)
		uv := residualAlpha(src.u[:], ws.u[:], chromaBlocks[:]) + residualAlpha(src.v[:], ws.v[:], chromaBlocks[:])
		bestUV = min(bestUV, uv/2)
	}
	return best, bestUV
}

// analyze assigns every macroblock to a segment and derives the
// quantizers, filter levels and chroma quantizer deltas of the frame.
func (e *encoder) analyze() {
	n := e.mbW * e.mbH
	e.segOf = make([]uint8, n)
	alphas := make([]int, n)
	uvSum := 0
	if e.o.Segments > 1 || e.o.SNSStrength > 0 {
		for mby := 0; mby < e.mbH; mby++ {
			for mbx := 0; mbx < e.mbW; mbx++ {
				a, uv := e.analyzeMacroblock(mbx, mby)
				alpha := (3*a + uv + 2) >> 2
				alphas[mby*e.mbW+mbx] = maxAlpha - min(alpha, maxAlpha)
				uvSum += uv
			}
		}
	}
	e.nSegs = 1
	if e.o.Segments > 1 {
		e.assignSegments(alphas)
	}
	e.setSegmentParams(uvSum / n)
}

// assignSegments clusters the alpha histogram into e.o.Segments centres
// with k-means and records each segment's centred alpha.
func (e *encoder) assignSegments(alphas []int) {
	k := min(e.o.Segments, numSegments)
	var histo [maxAlpha + 1]int
	for _, a := range alphas {
		histo[a]++
	}
	lo, hi := 0, maxAlpha
	for lo < maxAlpha && histo[lo] == 0 {
		lo++
	}
	for hi > lo && histo[hi] == 0 {
		hi--
	}
	var centers [numSegments]int
	for s := 0; s < k; s++ {
		centers[s] = lo + (2*s+1)*(hi-lo)/(2*k)
	}

	var assign [maxAlpha + 1]uint8
	weighted := 0
	for iter := 0; iter < kMeansIters; iter++ {
		var sum, count [numSegments]int
		s := 0
		for a := lo; a <= hi; a++ {
			if histo[a] == 0 {
				continue
			}
			for s+1 < k && abs(a-centers[s+1]) < abs(a-centers[s]) {
				s++
			}
			assign[a] = uint8(s)
			sum[s] += a * histo[a]
			count[s] += histo[a]
		}
		moved, total := 0, 0
		weighted = 0
		for s := 0; s < k; s++ {
			if count[s] == 0 {
				continue
			}
			c := (sum[s] + count[s]/2) / count[s]
			moved += abs(centers[s] - c)
			centers[s] = c
			weighted += c * count[s]
			total += count[s]
		}
		weighted = (weighted + total/2) / total
		if moved < 5 {
			break
		}
	}
	for i, a := range alphas {
		e.segOf[i] = assign[a]
	}

	minC, maxC := centers[0], centers[0]
	for s := 1; s < k; s++ {
		minC = min(minC, centers[s])
		maxC = max(maxC, centers[s])
	}
	spread := max(maxC-minC, 1)
	for s := 0; s < k; s++ {
		e.segs[s].alpha = min(max(255*(centers[s]-weighted)/spread, -127), 127)
	}
	e.nSegs = k
}

// qualityToCompression maps a 0..100 quality to the compression factor
// that the quantizer index is derived from.
func qualityToCompression(quality float32) float64 {
	c := float64(quality) / 100
	if c < 0.75 {
		c *= 2.0 / 3.0
	} else {
		c = 2*c - 1
	}
	return math.Cbrt(c)
}

// setSegmentParams modulates the quantizer of each segment by its alpha,
// merges segments that ended up identical and builds the quantizers.
func (e *encoder) setSegmentParams(uvAlpha int) {
	sns := min(max(e.o.SNSStrength, 0), 100)
	amp := 0.9 * float64(sns) / 100 / 128
	cBase := qualityToCompression(e.o.Quality)
	base := qualityToIndex(e.o.Quality)
	for s := 0; s < e.nSegs; s++ {
		seg := &e.segs[s]
		seg.quant = base
		if expn := 1 - amp*float64(seg.alpha); expn != 1 {
			seg.quant = clipQ(int(127*(1-math.Pow(cBase, expn))), maxQuantIndex)
		}
		seg.level = filterLevel(seg.quant)
	}

	if sns > 0 {
		const (
			midAlpha = 64
			lowAlpha = 30
			hiAlpha  = 100
			minDQUV  = -4
			maxDQUV  = 6
		)
		dq := (uvAlpha - midAlpha) * (maxDQUV - minDQUV) / (hiAlpha - lowAlpha)
		e.dqUVAC = min(max(dq*sns/100, minDQUV), maxDQUV)
		e.dqUVDC = -4 * sns / 100
	}

	e.simplifySegments()
	e.level = 0
	for s := range e.segs {
		if s >= e.nSegs {
			e.segs[s] = e.segs[e.nSegs-1]
			continue
		}
		seg := &e.segs[s]
		qm := newQuantMatrix(seg.quant, 0, 0, 0, e.dqUVDC, e.dqUVAC)
		seg.y1 = newQuantizer(qm.y1, biasY1)
		seg.y2 = newQuantizer(qm.y2, biasY2)
		seg.uv = newQuantizer(qm.uv, biasUV)
		seg.i4Penalty = 12 * qm.y1[1]
		q4 := (qm.y1[0] + 15*qm.y1[1] + 8) >> 4
		q16 := (qm.y2[0] + 15*qm.y2[1] + 8) >> 4
		seg.lambdaI4 = 7 * q4 * q4 >> 3
		seg.lambdaI16 = q16 * q16 >> 2
		e.level = max(e.level, seg.level)
	}
}

// simplifySegments folds segments with the same quantizer and filter
// level into one and renumbers the macroblocks.
func (e *encoder) simplifySegments() {
	remap := [numSegments]uint8{0, 1, 2, 3}
	n := 1
	for s := 1; s < e.nSegs; s++ {
		found := false
		for t := 0; t < n; t++ {
			if e.segs[s].quant == e.segs[t].quant && e.segs[s].level == e.segs[t].level {
				remap[s] = uint8(t)
				found = true
				break
			}
		}
		if !found {
			remap[s] = uint8(n)
			e.segs[n] = e.segs[s]
			n++
		}
	}
	if n < e.nSegs {
		for i, s := range e.segOf {
			e.segOf[i] = remap[s]
		}
	}
	e.nSegs = n
}

// segmentProbs returns the probabilities of the segment-id tree.
func (e *encoder) segmentProbs() [3]uint8 {
	var count [numSegments]int
	for _, s := range e.segOf {
		count[s]++
	}
	proba := func(a, b int) uint8 {
		if a+b == 0 {
			return 255
		}
		return uint8((255*a + (a+b)/2) / (a + b))
	}
	return [3]uint8{
		proba(count[0]+count[1], count[2]+count[3]),
		proba(count[0], count[1]),
		proba(count[2], count[3]),
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
