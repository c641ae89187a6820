package lossy

import (
	"fmt"
	"math"

	"github.com/deepteams/webpcodec/internal/container"
	"github.com/deepteams/webpcodec/internal/dsp"
)

// Options control the lossy encoder.
type Options struct {
	// Quality trades size for fidelity, 0 (smallest) to 100 (best).
	Quality float32
	// Method selects the speed/size trade-off, 0 (fastest) to 6. Method 1
	// and up re-estimate token probabilities, 2 and up consider 4x4
	// prediction, 5 and up score 4x4 modes on the reconstructed block.
	Method int
	// SharpYUV refines luma during RGB conversion so that subsampled
	// chroma bleeds less across sharp colour edges. It is slower.
	SharpYUV bool

	// Segments is the number of macroblock segments, 1 to 4. Segments
	// group macroblocks of similar complexity under one quantizer and
	// filter level.
	Segments int
	// SNSStrength, 0 to 100, is how far segment quantizers move away from
	// the base one. It also sets the chroma quantizer deltas.
	SNSStrength int
	// Partitions is the base-2 logarithm of the number of token
	// partitions, 0 to 3.
	Partitions int
	// SimpleFilter selects the luma-only simple loop filter.
	SimpleFilter bool
	// FilterSharpness is 0 to 7.
	FilterSharpness int
	// I4FilterDelta is added to the filter level of macroblocks that use
	// 4x4 prediction, -63 to 63.
	I4FilterDelta int
}

// mbResidual holds the quantized levels of one macroblock in scan order.
// Blocks 0-15 are luma, 16-23 chroma and 24 the luma DC block.
type mbResidual struct {
	levels [25][16]int16
	last   [25]int
}

func (r *mbResidual) empty() bool {
	for _, l := range r.last {
		if l >= 0 {
			return false
		}
	}
	return true
}

type encoder struct {
	o        Options
	mbW, mbH int
	src      *YUVImage
	recon    *YUVImage

	segs           [numSegments]segment
	nSegs          int
	segOf          []uint8 // segment of each macroblock
	seg            *segment
	dqUVDC, dqUVAC int
	level          int // frame filter level, 0 disables the filter

	ctxT, ctxL [4]uint8 // luma non-zero contexts entering the macroblock

	intraT []uint8
	intraL [4]uint8
	nzT    []nzContext
	nzL    nzContext

	modes  []mbModes
	skips  []bool
	tokens tokenBuffer
	starts []int // token index of each macroblock, plus the end

	ws, srcWS workspace
}

// EncodeFrame compresses packed RGB (channels 3) or RGBA (channels 4)
// pixels into a VP8 key frame. Alpha is ignored.
func EncodeFrame(pix []byte, width, height, channels int, o Options) ([]byte, error) {
	if err := checkDimensions(width, height); err != nil {
		return nil, err
	}
	if channels != 3 && channels != 4 || len(pix) < width*height*channels {
		return nil, fmt.Errorf("vp8: %d bytes of %d-channel pixels for %dx%d", len(pix), channels, width, height)
	}
	src := newYUVImage(width, height)
	importYUV := dsp.ImportYUV420
	if o.SharpYUV {
		importYUV = dsp.SharpImportYUV420
	}
	importYUV(pix, width, height, channels, src.Y, src.YStride, src.U, src.V, src.UVStride)
	replicateEdges(src)
	return newEncoder(src, o).encode()
}

// EncodeYUV compresses a 4:2:0 image into a VP8 key frame.
func EncodeYUV(img *YUVImage, o Options) ([]byte, error) {
	if err := checkDimensions(img.Width, img.Height); err != nil {
		return nil, err
	}
	src := newYUVImage(img.Width, img.Height)
	for j := 0; j < img.Height; j++ {
		copy(src.Y[j*src.YStride:j*src.YStride+img.Width], img.Y[j*img.YStride:])
	}
	cw, ch := (img.Width+1)/2, (img.Height+1)/2
	for j := 0; j < ch; j++ {
		copy(src.U[j*src.UVStride:j*src.UVStride+cw], img.U[j*img.UVStride:])
		copy(src.V[j*src.UVStride:j*src.UVStride+cw], img.V[j*img.UVStride:])
	}
	replicateEdges(src)
	return newEncoder(src, o).encode()
}

func checkDimensions(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("vp8: invalid dimensions %dx%d", width, height)
	}
	if width > container.VP8MaxDim || height > container.VP8MaxDim {
		return fmt.Errorf("%w: %dx%d exceeds the VP8 limit of %d", container.ErrTooLarge, width, height, container.VP8MaxDim)
	}
	return nil
}

// replicateEdges fills the macroblock padding of img by repeating the last
// visible column and row.
func replicateEdges(img *YUVImage) {
	replicatePlane(img.Y, img.YStride, img.Width, img.Height, len(img.Y)/img.YStride)
	cw, ch := (img.Width+1)/2, (img.Height+1)/2
	rows := len(img.U) / img.UVStride
	replicatePlane(img.U, img.UVStride, cw, ch, rows)
	replicatePlane(img.V, img.UVStride, cw, ch, rows)
}

func replicatePlane(p []byte, stride, w, h, rows int) {
	for j := 0; j < h; j++ {
		row := p[j*stride : (j+1)*stride]
		for i := w; i < stride; i++ {
			row[i] = row[w-1]
		}
	}
	last := p[(h-1)*stride : h*stride]
	for j := h; j < rows; j++ {
		copy(p[j*stride:(j+1)*stride], last)
	}
}

func newEncoder(src *YUVImage, o Options) *encoder {
	o.Quality = float32(math.Max(0, math.Min(100, float64(o.Quality))))
	o.Method = min(max(o.Method, 0), 6)
	o.Segments = min(max(o.Segments, 1), numSegments)
	o.Partitions = min(max(o.Partitions, 0), 3)
	o.FilterSharpness = min(max(o.FilterSharpness, 0), 7)
	o.I4FilterDelta = min(max(o.I4FilterDelta, -maxLFLevel), maxLFLevel)
	e := &encoder{
		o:     o,
		mbW:   (src.Width + 15) >> 4,
		mbH:   (src.Height + 15) >> 4,
		src:   src,
		recon: newYUVImage(src.Width, src.Height),
	}
	e.analyze()

	n := e.mbW * e.mbH
	e.intraT = make([]uint8, 4*e.mbW)
	e.nzT = make([]nzContext, e.mbW)
	e.modes = make([]mbModes, n)
	e.skips = make([]bool, n)
	e.starts = make([]int, 0, n+1)
	return e
}

func (e *encoder) encode() ([]byte, error) {
	var r mbResidual
	for mby := 0; mby < e.mbH; mby++ {
		e.intraL = [4]uint8{}
		e.nzL = nzContext{}
		for mbx := 0; mbx < e.mbW; mbx++ {
			i := mby*e.mbW + mbx
			m := &e.modes[i]
			e.seg = &e.segs[e.segOf[i]]
			e.ctxT, e.ctxL = e.nzT[mbx].y, e.nzL.y
			e.encodeMacroblock(mbx, mby, m, &r)
			e.skips[i] = r.empty()
			e.starts = append(e.starts, len(e.tokens.toks))
			e.recordTokens(mbx, m, &r)
		}
	}
	e.starts = append(e.starts, len(e.tokens.toks))
	return e.writeFrame()
}

// encodeMacroblock picks the modes of one macroblock, quantizes its
// residual into r and leaves the reconstruction in e.recon.
func (e *encoder) encodeMacroblock(mbx, mby int, m *mbModes, r *mbResidual) {
	ws, src := &e.ws, &e.srcWS
	ws.load(e.recon, mbx, mby, e.mbW)
	loadSource(src, e.src, mbx, mby)
	top, left := mby > 0, mbx > 0

	*m = mbModes{}
	for i := range r.last {
		r.last[i] = -1
	}

	m.y16, _ = pickMode(func(mode int) int {
		dsp.Predict16(mode, ws.y[:], wsOff, top, left)
		return dsp.SAD16x16(ws.y[:], wsOff, src.y[:], wsOff)
	}, dsp.NumPredModes)
	i16Cost := 0

	if e.o.Method >= 2 {
		dsp.Predict16(int(m.y16), ws.y[:], wsOff, top, left)
		i16Cost = dsp.SAD16x16(ws.y[:], wsOff, src.y[:], wsOff)
		trial := *ws
		var i4 mbModes
		var i4Res mbResidual
		for i := range i4Res.last {
			i4Res.last[i] = -1
		}
		i4Cost := e.codeI4(&trial, &i4, &i4Res)
		if i4Cost+e.seg.i4Penalty < i16Cost {
			m.isI4 = true
			m.sub = i4.sub
			copy(ws.y[:], trial.y[:])
			copy(r.levels[:16], i4Res.levels[:16])
			copy(r.last[:16], i4Res.last[:16])
		}
	}
	if !m.isI4 {
		e.codeI16(ws, int(m.y16), top, left, r)
	}

	m.uv, _ = pickMode(func(mode int) int {
		dsp.Predict8(mode, ws.u[:], wsOff, top, left)
		dsp.Predict8(mode, ws.v[:], wsOff, top, left)
		return dsp.SAD8x8(ws.u[:], wsOff, src.u[:], wsOff) + dsp.SAD8x8(ws.v[:], wsOff, src.v[:], wsOff)
	}, dsp.NumPredModes)
	e.codeChroma(ws, int(m.uv), top, left, r)

	ws.store(e.recon, mbx, mby)
}

// pickMode returns the mode with the lowest cost. Ties keep the lower mode.
func pickMode(cost func(mode int) int, n int) (uint8, int) {
	best, bestCost := 0, math.MaxInt
	for mode := 0; mode < n; mode++ {
		if c := cost(mode); c < bestCost {
			best, bestCost = mode, c
		}
	}
	return uint8(best), bestCost
}

func loadSource(ws *workspace, img *YUVImage, mbx, mby int) {
	loadBlock(ws.y[:], img.Y, img.YStride, mbx, mby, 16)
	loadBlock(ws.u[:], img.U, img.UVStride, mbx, mby, 8)
	loadBlock(ws.v[:], img.V, img.UVStride, mbx, mby, 8)
}

func loadBlock(ws []byte, p []byte, stride, mbx, mby, size int) {
	x0, y0 := mbx*size, mby*size
	for j := 0; j < size; j++ {
		copy(ws[wsOff+j*bps:wsOff+j*bps+size], p[(y0+j)*stride+x0:])
	}
}

func (e *encoder) codeI16(ws *workspace, mode int, top, left bool, r *mbResidual) {
	src := &e.srcWS
	dsp.Predict16(mode, ws.y[:], wsOff, top, left)
	var coeffs [16][16]int16
	var dc, wht [16]int16
	for b := 0; b < 16; b++ {
		off := subOff(b)
		dsp.FTransform(src.y[:], off, ws.y[:], off, coeffs[b][:])
		dc[b] = coeffs[b][0]
		coeffs[b][0] = 0
	}
	dsp.FTransformWHT(dc[:], wht[:])
	r.last[24] = e.seg.y2.quantize(&wht, 0, &r.levels[24])
	dsp.ITransformWHT(wht[:], dc[:])
	ctxT, ctxL := e.ctxT, e.ctxL
	for b := 0; b < 16; b++ {
		x, y := b&3, b>>2
		if e.o.Method >= 6 {
			r.last[b] = e.seg.y1.trellis(&coeffs[b], 1, &r.levels[b], typeI16AC, ctxT[x]+ctxL[y], e.seg.lambdaI16)
		} else {
			r.last[b] = e.seg.y1.quantize(&coeffs[b], 1, &r.levels[b])
		}
		ctxT[x] = b2u(r.last[b] >= 0)
		ctxL[y] = ctxT[x]
		coeffs[b][0] = dc[b]
		addResidual(coeffs[b][:], ws.y[:], subOff(b), true)
	}
}

// codeI4 chooses, codes and reconstructs the sixteen 4x4 luma blocks in
// ws. It returns the summed distortion of the chosen predictions.
func (e *encoder) codeI4(ws *workspace, m *mbModes, r *mbResidual) int {
	src := &e.srcWS
	total := 0
	top, left := e.ctxT, e.ctxL
	for b := 0; b < 16; b++ {
		off := subOff(b)
		mode, cost := pickMode(func(mode int) int {
			dsp.Predict4(mode, ws.y[:], off)
			if e.o.Method >= 5 {
				return e.reconstructedCost(ws, off)
			}
			return dsp.SAD4x4(ws.y[:], off, src.y[:], off)
		}, dsp.NumBPredModes)
		total += cost
		m.sub[b] = mode
		dsp.Predict4(int(mode), ws.y[:], off)
		var c [16]int16
		dsp.FTransform(src.y[:], off, ws.y[:], off, c[:])
		x, y := b&3, b>>2
		if e.o.Method >= 6 {
			r.last[b] = e.seg.y1.trellis(&c, 0, &r.levels[b], typeI4, top[x]+left[y], e.seg.lambdaI4)
		} else {
			r.last[b] = e.seg.y1.quantize(&c, 0, &r.levels[b])
		}
		top[x] = b2u(r.last[b] >= 0)
		left[y] = top[x]
		addResidual(c[:], ws.y[:], off, true)
	}
	return total
}

// reconstructedCost codes the prediction at ws.y[off] and returns the
// distortion of the decoded block.
func (e *encoder) reconstructedCost(ws *workspace, off int) int {
	src := &e.srcWS
	var blk [4 * bps]byte
	for j := 0; j < 4; j++ {
		copy(blk[j*bps:j*bps+4], ws.y[off+j*bps:])
	}
	var c, levels [16]int16
	dsp.FTransform(src.y[:], off, blk[:], 0, c[:])
	e.seg.y1.quantize(&c, 0, &levels)
	addResidual(c[:], blk[:], 0, true)
	return dsp.SAD4x4(blk[:], 0, src.y[:], off)
}

func (e *encoder) codeChroma(ws *workspace, mode int, top, left bool, r *mbResidual) {
	src := &e.srcWS
	planes := [2]struct{ rec, src []byte }{{ws.u[:], src.u[:]}, {ws.v[:], src.v[:]}}
	for ch, p := range planes {
		dsp.Predict8(mode, p.rec, wsOff, top, left)
		for n := 0; n < 4; n++ {
			b := 16 + 4*ch + n
			off := chromaSubOff(n)
			var c [16]int16
			dsp.FTransform(p.src, off, p.rec, off, c[:])
			r.last[b] = e.seg.uv.quantize(&c, 0, &r.levels[b])
			addResidual(c[:], p.rec, off, true)
		}
	}
}
