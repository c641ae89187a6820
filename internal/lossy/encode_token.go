package lossy

import (
	"fmt"
	"math"

	"github.com/deepteams/webpcodec/internal/bitio"
	"github.com/deepteams/webpcodec/internal/container"
	"github.com/deepteams/webpcodec/internal/dsp"
)

// A token is one boolean decision of the residual coder. Adaptive tokens
// carry the flat index of their coefficient probability, fixed ones the
// probability itself.
const (
	tokenBit   = 1 << 31
	tokenFixed = 1 << 30
	tokenMask  = 0xffff

	numCoeffProbs = numTypes * numBands * numCtx * numProbas
)

type tokenBuffer struct {
	toks []uint32
}

func probIndex(typ, n, ctx int) int {
	return ((typ*numBands+int(bands[n]))*numCtx + ctx) * numProbas
}

func (tb *tokenBuffer) put(bit bool, idx int) bool {
	t := uint32(idx)
	if bit {
		t |= tokenBit
	}
	tb.toks = append(tb.toks, t)
	return bit
}

func (tb *tokenBuffer) putFixed(bit bool, prob uint8) {
	t := tokenFixed | uint32(prob)
	if bit {
		t |= tokenBit
	}
	tb.toks = append(tb.toks, t)
}

// putCoeffs records the tokens of one block of levels in scan order and
// returns 1 when the block had any coefficient at or after first.
func (tb *tokenBuffer) putCoeffs(typ int, ctx uint8, first int, levels *[16]int16, last int) uint8 {
	n := first
	p := probIndex(typ, n, int(ctx))
	if !tb.put(last >= 0, p) {
		return 0
	}
	for n < 16 {
		c := int(levels[n])
		n++
		v := c
		if v < 0 {
			v = -v
		}
		if !tb.put(v != 0, p+1) {
			p = probIndex(typ, n, 0)
			continue
		}
		if !tb.put(v > 1, p+2) {
			p = probIndex(typ, n, 1)
		} else {
			tb.putLarge(v, p)
			p = probIndex(typ, n, 2)
		}
		tb.putFixed(c < 0, probUniform)
		if n == 16 || !tb.put(n <= last, p) {
			return 1
		}
	}
	return 1
}

// putLarge records a magnitude of at least 2.
func (tb *tokenBuffer) putLarge(v, p int) {
	switch {
	case !tb.put(v > 4, p+3):
		if tb.put(v != 2, p+4) {
			tb.put(v == 4, p+5)
		}
	case !tb.put(v > 10, p+6):
		if !tb.put(v > 6, p+7) {
			tb.putFixed(v == 6, probCat1)
		} else {
			tb.putFixed(v >= 9, probCat2a)
			tb.putFixed(v&1 == 0, probCat2b)
		}
	default:
		cat := 3
		switch {
		case v < 3+(8<<1):
			cat = 0
		case v < 3+(8<<2):
			cat = 1
		case v < 3+(8<<3):
			cat = 2
		}
		tb.put(cat >= 2, p+8)
		tb.put(cat&1 == 1, p+9+cat>>1)
		v -= 3 + (8 << cat)
		probs := catProbs[cat]
		for i, prob := range probs {
			tb.putFixed((v>>(len(probs)-1-i))&1 == 1, prob)
		}
	}
}

// recordTokens appends the residual tokens of one macroblock and updates
// the non-zero contexts exactly as the decoder will.
func (e *encoder) recordTokens(mbx int, m *mbModes, r *mbResidual) {
	tb := &e.tokens
	top, left := &e.nzT[mbx], &e.nzL

	first, typ := 0, typeI4
	if !m.isI4 {
		nz := tb.putCoeffs(typeI16DC, top.dc+left.dc, 0, &r.levels[24], r.last[24])
		top.dc, left.dc = nz, nz
		first, typ = 1, typeI16AC
	}
	for y := 0; y < 4; y++ {
		l := left.y[y]
		for x := 0; x < 4; x++ {
			b := 4*y + x
			l = tb.putCoeffs(typ, l+top.y[x], first, &r.levels[b], r.last[b])
			top.y[x] = l
		}
		left.y[y] = l
	}
	for ch := 0; ch < 2; ch++ {
		tctx, lctx := &top.u, &left.u
		if ch == 1 {
			tctx, lctx = &top.v, &left.v
		}
		for y := 0; y < 2; y++ {
			l := lctx[y]
			for x := 0; x < 2; x++ {
				b := 16 + 4*ch + 2*y + x
				l = tb.putCoeffs(typeChroma, l+tctx[x], 0, &r.levels[b], r.last[b])
				tctx[x] = l
			}
			lctx[y] = l
		}
	}
}

// entropyCost[k] is the cost, in 1/256 bit, of an event of probability k/256.
var entropyCost [257]int

func init() {
	entropyCost[0] = 16 << 8
	for k := 1; k <= 256; k++ {
		entropyCost[k] = int(math.Round(-math.Log2(float64(k)/256) * 256))
	}
}

func bitCost(bit bool, prob uint8) int {
	if bit {
		return entropyCost[256-int(prob)]
	}
	return entropyCost[prob]
}

// branchCost is the cost of coding total decisions, ones of them set, at
// probability prob.
func branchCost(ones, total int, prob uint8) int {
	return ones*bitCost(true, prob) + (total-ones)*bitCost(false, prob)
}

// calcProba returns the probability of a zero given ones set out of total.
func calcProba(ones, total int) uint8 {
	if total == 0 {
		return 255
	}
	return uint8(min(max(255-ones*255/total, 1), 255))
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

// frameProbs gathers the statistics of the tokens that will be written and
// chooses which coefficient probabilities to update.
func (e *encoder) frameProbs(useSkip bool) *[numCoeffProbs]uint8 {
	var probs [numCoeffProbs]uint8
	var defaults, updates [numCoeffProbs]uint8
	i := 0
	for t := range defaultCoeffProbs {
		for b := range defaultCoeffProbs[t] {
			for c := range defaultCoeffProbs[t][b] {
				for p := range defaultCoeffProbs[t][b][c] {
					defaults[i] = defaultCoeffProbs[t][b][c][p]
					updates[i] = coeffUpdateProbs[t][b][c][p]
					i++
				}
			}
		}
	}
	probs = defaults
	if e.o.Method < 1 {
		return &probs
	}

	var ones, totals [numCoeffProbs]int
	for mb := range e.skips {
		if useSkip && e.skips[mb] {
			continue
		}
		for _, t := range e.tokens.toks[e.starts[mb]:e.starts[mb+1]] {
			if t&tokenFixed != 0 {
				continue
			}
			idx := t & tokenMask
			totals[idx]++
			if t&tokenBit != 0 {
				ones[idx]++
			}
		}
	}
	for i := range probs {
		if totals[i] == 0 {
			continue
		}
		p := calcProba(ones[i], totals[i])
		oldCost := branchCost(ones[i], totals[i], defaults[i]) + bitCost(false, updates[i])
		newCost := branchCost(ones[i], totals[i], p) + bitCost(true, updates[i]) + 8*256
		if oldCost > newCost {
			probs[i] = p
		}
	}
	return &probs
}

// skipProba decides whether empty macroblocks are flagged as skipped.
func (e *encoder) skipProba() (uint8, bool) {
	n := 0
	for _, s := range e.skips {
		if s {
			n++
		}
	}
	p := calcProba(n, len(e.skips))
	return p, p < 250
}

// writeFrame serialises the frame header, the mode partition and the
// token partitions.
func (e *encoder) writeFrame() ([]byte, error) {
	skipP, useSkip := e.skipProba()
	probs := e.frameProbs(useSkip)
	useSegs := e.nSegs > 1
	segProbs := e.segmentProbs()

	bw := bitio.NewBoolWriter(e.mbW * e.mbH * 4)
	bw.PutBitUniform(0) // colour space
	bw.PutBitUniform(0) // clamping required
	bw.PutBitUniform(b2i(useSegs))
	if useSegs {
		e.putSegmentHeader(bw, &segProbs)
	}
	e.putFilterHeader(bw)
	bw.PutLiteral(uint32(e.o.Partitions), 2)
	bw.PutLiteral(uint32(e.segs[0].quant), 7)
	bw.PutOptionalSigned(0, 4) // y1 dc
	bw.PutOptionalSigned(0, 4) // y2 dc
	bw.PutOptionalSigned(0, 4) // y2 ac
	bw.PutOptionalSigned(int32(e.dqUVDC), 4)
	bw.PutOptionalSigned(int32(e.dqUVAC), 4)
	bw.PutBitUniform(0) // refresh entropy probs

	i := 0
	for t := range coeffUpdateProbs {
		for b := range coeffUpdateProbs[t] {
			for c := range coeffUpdateProbs[t][b] {
				for p, upd := range coeffUpdateProbs[t][b][c] {
					changed := probs[i] != defaultCoeffProbs[t][b][c][p]
					if bw.PutBit(b2i(changed), upd) != 0 {
						bw.PutLiteral(uint32(probs[i]), 8)
					}
					i++
				}
			}
		}
	}
	bw.PutBitUniform(b2i(useSkip))
	if useSkip {
		bw.PutLiteral(uint32(skipP), 8)
	}

	for mby := 0; mby < e.mbH; mby++ {
		e.intraL = [4]uint8{}
		for mbx := 0; mbx < e.mbW; mbx++ {
			mb := mby*e.mbW + mbx
			if useSegs {
				s := int(e.segOf[mb])
				if bw.PutBit(b2i(s >= 2), segProbs[0]) == 0 {
					bw.PutBit(s, segProbs[1])
				} else {
					bw.PutBit(s-2, segProbs[2])
				}
			}
			if useSkip {
				bw.PutBit(b2i(e.skips[mb]), skipP)
			}
			e.putModes(bw, mbx, &e.modes[mb])
		}
	}
	part0 := bw.Finish()
	if len(part0) >= 1<<19 {
		return nil, fmt.Errorf("%w: vp8 mode partition of %d bytes", container.ErrTooLarge, len(part0))
	}

	nParts := 1 << e.o.Partitions
	tws := make([]*bitio.BoolWriter, nParts)
	for p := range tws {
		tws[p] = bitio.NewBoolWriter(len(e.tokens.toks) / (4 * nParts))
	}
	for mb := range e.skips {
		if useSkip && e.skips[mb] {
			continue
		}
		tw := tws[(mb/e.mbW)&(nParts-1)]
		for _, t := range e.tokens.toks[e.starts[mb]:e.starts[mb+1]] {
			bit := int(t >> 31)
			if t&tokenFixed != 0 {
				tw.PutBit(bit, uint8(t))
			} else {
				tw.PutBit(bit, probs[t&tokenMask])
			}
		}
	}
	parts := make([][]byte, nParts)
	size := 3 * (nParts - 1)
	for p, tw := range tws {
		parts[p] = tw.Finish()
		size += len(parts[p])
	}

	out := make([]byte, container.VP8FrameHeaderSize, container.VP8FrameHeaderSize+len(part0)+size)
	container.PutLE24(out, 1<<4|len(part0)<<5) // key frame, profile 0, shown
	out[3], out[4], out[5] = 0x9d, 0x01, 0x2a
	container.PutLE16(out[6:], uint16(e.src.Width))
	container.PutLE16(out[8:], uint16(e.src.Height))
	out = append(out, part0...)
	var sz [3]byte
	for _, part := range parts[:nParts-1] {
		if len(part) >= 1<<24 {
			return nil, fmt.Errorf("%w: vp8 token partition of %d bytes", container.ErrTooLarge, len(part))
		}
		container.PutLE24(sz[:], len(part))
		out = append(out, sz[:]...)
	}
	for _, part := range parts {
		out = append(out, part...)
	}
	return out, nil
}

// putSegmentHeader writes absolute per-segment quantizers and filter
// levels and the probabilities of the segment map.
func (e *encoder) putSegmentHeader(bw *bitio.BoolWriter, probs *[3]uint8) {
	bw.PutBitUniform(1) // update map
	bw.PutBitUniform(1) // update data
	bw.PutBitUniform(1) // absolute values
	for _, s := range e.segs {
		bw.PutOptionalSigned(int32(s.quant), 7)
	}
	for _, s := range e.segs {
		bw.PutOptionalSigned(int32(s.level), 6)
	}
	for _, p := range probs {
		if bw.PutBitUniform(b2i(p != 255)) != 0 {
			bw.PutLiteral(uint32(p), 8)
		}
	}
}

func (e *encoder) putFilterHeader(bw *bitio.BoolWriter) {
	bw.PutBitUniform(b2i(e.o.SimpleFilter))
	bw.PutLiteral(uint32(e.level), 6)
	bw.PutLiteral(uint32(e.o.FilterSharpness), 3)
	useDelta := e.o.I4FilterDelta != 0
	bw.PutBitUniform(b2i(useDelta))
	if !useDelta {
		return
	}
	bw.PutBitUniform(1) // update deltas
	for i := 0; i < numRefLFDelta; i++ {
		bw.PutOptionalSigned(0, 6)
	}
	bw.PutOptionalSigned(int32(e.o.I4FilterDelta), 6)
	for i := 1; i < numModeLFDelta; i++ {
		bw.PutOptionalSigned(0, 6)
	}
}

func (e *encoder) putModes(bw *bitio.BoolWriter, mbx int, m *mbModes) {
	top := e.intraT[4*mbx : 4*mbx+4]
	if bw.PutBit(b2i(!m.isI4), probIsI16) != 0 {
		mode := m.y16
		if bw.PutBit(b2i(mode == dsp.PredTM || mode == dsp.PredHE), probI16First) != 0 {
			bw.PutBit(b2i(mode == dsp.PredTM), probI16HEorTM)
		} else {
			bw.PutBit(b2i(mode == dsp.PredVE), probI16DCorVE)
		}
		for i := 0; i < 4; i++ {
			top[i] = mode
			e.intraL[i] = mode
		}
	} else {
		for y := 0; y < 4; y++ {
			left := e.intraL[y]
			for x := 0; x < 4; x++ {
				mode := m.sub[4*y+x]
				putBMode(bw, mode, &bModeProbs[top[x]][left])
				top[x] = mode
				left = mode
			}
			e.intraL[y] = left
		}
	}
	uv := m.uv
	if bw.PutBit(b2i(uv != dsp.PredDC), probUVFirst) != 0 {
		if bw.PutBit(b2i(uv != dsp.PredVE), probUVVE) != 0 {
			bw.PutBit(b2i(uv != dsp.PredHE), probUVHE)
		}
	}
}

// putBMode writes a 4x4 prediction mode with the tree read by readBMode.
func putBMode(bw *bitio.BoolWriter, mode uint8, p *[9]uint8) {
	if bw.PutBit(b2i(mode != dsp.PredDC), p[0]) == 0 {
		return
	}
	if bw.PutBit(b2i(mode != dsp.PredTM), p[1]) == 0 {
		return
	}
	if bw.PutBit(b2i(mode != dsp.PredVE), p[2]) == 0 {
		return
	}
	if bw.PutBit(b2i(mode >= dsp.PredLD), p[3]) == 0 {
		if bw.PutBit(b2i(mode != dsp.PredHE), p[4]) != 0 {
			bw.PutBit(b2i(mode != dsp.PredRD), p[5])
		}
		return
	}
	if bw.PutBit(b2i(mode != dsp.PredLD), p[6]) != 0 {
		if bw.PutBit(b2i(mode != dsp.PredVL), p[7]) != 0 {
			bw.PutBit(b2i(mode != dsp.PredHD), p[8])
		}
	}
}
