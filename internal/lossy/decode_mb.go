package lossy

import (
	"github.com/deepteams/webpcodec/internal/bitio"
	"github.com/deepteams/webpcodec/internal/dsp"
)

// mbModes are the prediction modes of one macroblock.
type mbModes struct {
	isI4 bool
	y16  uint8
	sub  [16]uint8
	uv   uint8
}

func b2u(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func (dec *Decoder) decodeMacroblocks() error {
	for mby := 0; mby < dec.mbH; mby++ {
		dec.intraL = [4]uint8{}
		dec.nzL = nzContext{}
		tr := dec.parts[mby&(len(dec.parts)-1)]
		for mbx := 0; mbx < dec.mbW; mbx++ {
			dec.decodeMacroblock(mbx, mby, tr)
			if tr.EOF() {
				return truncated("token partition")
			}
		}
		if dec.br.EOF() {
			return truncated("mode partition")
		}
	}
	return nil
}

func (dec *Decoder) decodeMacroblock(mbx, mby int, tr *bitio.BoolReader) {
	br := dec.br
	segment := 0
	if dec.segHdr.updateMap {
		if br.GetBit(dec.segmentProbs[0]) == 0 {
			segment = br.GetBit(dec.segmentProbs[1])
		} else {
			segment = 2 + br.GetBit(dec.segmentProbs[2])
		}
	}
	skip := dec.useSkipProba && br.GetBit(dec.skipProba) == 1

	var m mbModes
	dec.parseModes(mbx, &m)

	var nz uint32
	if !skip {
		nz = dec.parseResiduals(mbx, &m, tr, &dec.dqm[segment])
	} else {
		top, left := &dec.nzT[mbx], &dec.nzL
		topDC, leftDC := top.dc, left.dc
		*top, *left = nzContext{}, nzContext{}
		if m.isI4 {
			top.dc, left.dc = topDC, leftDC
		}
	}

	dec.ws.load(dec.img, mbx, mby, dec.mbW)
	dec.reconstruct(mbx, mby, &m, nz)
	dec.ws.store(dec.img, mbx, mby)

	if dec.filterType > 0 {
		info := dec.fstrengths[segment][b2u(m.isI4)]
		info.inner = info.inner || nz != 0
		dec.finfo[mby*dec.mbW+mbx] = info
	}
}

func (dec *Decoder) parseModes(mbx int, m *mbModes) {
	br := dec.br
	top := dec.intraT[4*mbx : 4*mbx+4]
	m.isI4 = br.GetBit(probIsI16) == 0
	if !m.isI4 {
		var mode uint8
		if br.GetBit(probI16First) == 1 {
			mode = dsp.PredHE
			if br.GetBit(probI16HEorTM) == 1 {
				mode = dsp.PredTM
			}
		} else {
			mode = dsp.PredDC
			if br.GetBit(probI16DCorVE) == 1 {
				mode = dsp.PredVE
			}
		}
		m.y16 = mode
		for i := 0; i < 4; i++ {
			top[i] = mode
			dec.intraL[i] = mode
		}
	} else {
		for y := 0; y < 4; y++ {
			left := dec.intraL[y]
			for x := 0; x < 4; x++ {
				left = readBMode(br, &bModeProbs[top[x]][left])
				m.sub[4*y+x] = left
				top[x] = left
			}
			dec.intraL[y] = left
		}
	}
	switch {
	case br.GetBit(probUVFirst) == 0:
		m.uv = dsp.PredDC
	case br.GetBit(probUVVE) == 0:
		m.uv = dsp.PredVE
	case br.GetBit(probUVHE) == 0:
		m.uv = dsp.PredHE
	default:
		m.uv = dsp.PredTM
	}
}

func readBMode(br *bitio.BoolReader, p *[9]uint8) uint8 {
	switch {
	case br.GetBit(p[0]) == 0:
		return dsp.PredDC
	case br.GetBit(p[1]) == 0:
		return dsp.PredTM
	case br.GetBit(p[2]) == 0:
		return dsp.PredVE
	case br.GetBit(p[3]) == 0:
		switch {
		case br.GetBit(p[4]) == 0:
			return dsp.PredHE
		case br.GetBit(p[5]) == 0:
			return dsp.PredRD
		default:
			return dsp.PredVR
		}
	case br.GetBit(p[6]) == 0:
		return dsp.PredLD
	case br.GetBit(p[7]) == 0:
		return dsp.PredVL
	case br.GetBit(p[8]) == 0:
		return dsp.PredHD
	default:
		return dsp.PredHU
	}
}

// parseResiduals reads and dequantizes the coefficients of a macroblock.
// Blocks 0-15 are luma, 16-19 U and 20-23 V. The result has bit b set when
// block b has a non-zero coefficient.
func (dec *Decoder) parseResiduals(mbx int, m *mbModes, tr *bitio.BoolReader, q *quantMatrix) uint32 {
	coeffs := dec.coeffs[:]
	clear(coeffs)
	top, left := &dec.nzT[mbx], &dec.nzL
	var nz uint32

	first, typ := 0, typeI4
	if !m.isI4 {
		var dc, wht [16]int16
		n := dec.getCoeffs(tr, typeI16DC, int(top.dc+left.dc), q.y2, 0, dc[:])
		top.dc = b2u(n > 0)
		left.dc = top.dc
		dsp.ITransformWHT(dc[:], wht[:])
		for b := 0; b < 16; b++ {
			coeffs[16*b] = wht[b]
		}
		first, typ = 1, typeI16AC
	}

	for y := 0; y < 4; y++ {
		l := left.y[y]
		for x := 0; x < 4; x++ {
			b := 4*y + x
			blk := coeffs[16*b : 16*b+16]
			n := dec.getCoeffs(tr, typ, int(l+top.y[x]), q.y1, first, blk)
			l = b2u(n > first)
			top.y[x] = l
			if n > 1 || blk[0] != 0 {
				nz |= 1 << b
			}
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
				blk := coeffs[16*b : 16*b+16]
				n := dec.getCoeffs(tr, typeChroma, int(l+tctx[x]), q.uv, 0, blk)
				l = b2u(n > 0)
				tctx[x] = l
				if n > 1 || blk[0] != 0 {
					nz |= 1 << b
				}
			}
			lctx[y] = l
		}
	}
	return nz
}

// getCoeffs decodes the tokens of one 4x4 block starting at scan position
// n. It returns the scan position following the last decoded token, or n
// when the block is empty.
func (dec *Decoder) getCoeffs(tr *bitio.BoolReader, typ, ctx int, dq [2]int, n int, out []int16) int {
	probs := &dec.coeffProbs[typ]
	p := &probs[bands[n]][ctx]
	for ; n < 16; n++ {
		if tr.GetBit(p[0]) == 0 {
			return n
		}
		for tr.GetBit(p[1]) == 0 {
			n++
			if n == 16 {
				return 16
			}
			p = &probs[bands[n]][0]
		}
		next := &probs[bands[n+1]]
		var v int
		if tr.GetBit(p[2]) == 0 {
			v = 1
			p = &next[1]
		} else {
			v = getLargeValue(tr, p)
			p = &next[2]
		}
		if tr.GetBit(probUniform) == 1 {
			v = -v
		}
		step := dq[1]
		if n == 0 {
			step = dq[0]
		}
		out[zigzag[n]] = int16(v * step)
	}
	return 16
}

func getLargeValue(tr *bitio.BoolReader, p *[numProbas]uint8) int {
	if tr.GetBit(p[3]) == 0 {
		if tr.GetBit(p[4]) == 0 {
			return 2
		}
		return 3 + tr.GetBit(p[5])
	}
	if tr.GetBit(p[6]) == 0 {
		if tr.GetBit(p[7]) == 0 {
			return 5 + tr.GetBit(probCat1)
		}
		v := 7 + 2*tr.GetBit(probCat2a)
		return v + tr.GetBit(probCat2b)
	}
	bit1 := tr.GetBit(p[8])
	bit0 := tr.GetBit(p[9+bit1])
	cat := 2*bit1 + bit0
	v := 0
	for _, prob := range catProbs[cat] {
		v += v + tr.GetBit(prob)
	}
	return v + 3 + (8 << cat)
}

func (dec *Decoder) reconstruct(mbx, mby int, m *mbModes, nz uint32) {
	ws := &dec.ws
	coeffs := dec.coeffs[:]
	if m.isI4 {
		for b := 0; b < 16; b++ {
			off := subOff(b)
			dsp.Predict4(int(m.sub[b]), ws.y[:], off)
			addResidual(coeffs[16*b:16*b+16], ws.y[:], off, nz&(1<<b) != 0)
		}
	} else {
		dsp.Predict16(int(m.y16), ws.y[:], wsOff, mby > 0, mbx > 0)
		for b := 0; b < 16; b++ {
			addResidual(coeffs[16*b:16*b+16], ws.y[:], subOff(b), nz&(1<<b) != 0)
		}
	}
	dsp.Predict8(int(m.uv), ws.u[:], wsOff, mby > 0, mbx > 0)
	dsp.Predict8(int(m.uv), ws.v[:], wsOff, mby > 0, mbx > 0)
	for n := 0; n < 4; n++ {
		bu, bv := 16+n, 20+n
		addResidual(coeffs[16*bu:16*bu+16], ws.u[:], chromaSubOff(n), nz&(1<<bu) != 0)
		addResidual(coeffs[16*bv:16*bv+16], ws.v[:], chromaSubOff(n), nz&(1<<bv) != 0)
	}
}

func addResidual(c []int16, dst []byte, off int, nonZero bool) {
	if !nonZero {
		return
	}
	for _, v := range c[1:] {
		if v != 0 {
			dsp.ITransform(c, dst, off)
			return
		}
	}
	dsp.ITransformDC(c, dst, off)
}
