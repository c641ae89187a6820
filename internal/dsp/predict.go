package dsp

// Intra prediction modes. The numbering is shared by whole-block modes
// (DC, TM, VE, HE) and the ten 4x4 sub-block modes.
const (
	PredDC = iota
	PredTM
	PredVE
	PredHE
	PredRD
	PredVR
	PredLD
	PredVL
	PredHD
	PredHU

	NumPredModes  = 4
	NumBPredModes = 10
)

func avg2(a, b byte) byte    { return byte((int(a) + int(b) + 1) >> 1) }
func avg3(a, b, c byte) byte { return byte((int(a) + 2*int(b) + int(c) + 2) >> 2) }

func fill(buf []byte, off, size int, v byte) {
	for j := 0; j < size; j++ {
		row := buf[off+j*BPS : off+j*BPS+size]
		for i := range row {
			row[i] = v
		}
	}
}

// predictBlock implements the whole-block modes for a size x size block.
// top and left say whether the neighbouring samples exist; the DC mode
// averages only the ones that do, the other modes read the border as is.
func predictBlock(mode int, buf []byte, off, size int, top, left bool) {
	shift := 3
	if size == 16 {
		shift = 4
	}
	switch mode {
	case PredDC:
		sum := 0
		switch {
		case top && left:
			for i := 0; i < size; i++ {
				sum += int(buf[off-BPS+i]) + int(buf[off-1+i*BPS])
			}
			fill(buf, off, size, byte((sum+size)>>(shift+1)))
		case top:
			for i := 0; i < size; i++ {
				sum += int(buf[off-BPS+i])
			}
			fill(buf, off, size, byte((sum+size/2)>>shift))
		case left:
			for i := 0; i < size; i++ {
				sum += int(buf[off-1+i*BPS])
			}
			fill(buf, off, size, byte((sum+size/2)>>shift))
		default:
			fill(buf, off, size, 0x80)
		}
	case PredTM:
		tl := int(buf[off-BPS-1])
		for j := 0; j < size; j++ {
			base := int(buf[off-1+j*BPS]) - tl
			row := buf[off+j*BPS:]
			for i := 0; i < size; i++ {
				row[i] = Clip8(base + int(buf[off-BPS+i]))
			}
		}
	case PredVE:
		for j := 0; j < size; j++ {
			copy(buf[off+j*BPS:off+j*BPS+size], buf[off-BPS:off-BPS+size])
		}
	case PredHE:
		for j := 0; j < size; j++ {
			v := buf[off-1+j*BPS]
			row := buf[off+j*BPS : off+j*BPS+size]
			for i := range row {
				row[i] = v
			}
		}
	}
}

// Predict16 fills the 16x16 luma block at buf[off].
func Predict16(mode int, buf []byte, off int, top, left bool) {
	predictBlock(mode, buf, off, 16, top, left)
}

// Predict8 fills an 8x8 chroma block at buf[off].
func Predict8(mode int, buf []byte, off int, top, left bool) {
	predictBlock(mode, buf, off, 8, top, left)
}

// Predict4 fills the 4x4 sub-block at buf[off] using the row above (with
// four above-right samples), the left column and the top-left corner.
func Predict4(mode int, buf []byte, off int) {
	t := buf[off-BPS-1 : off-BPS+8] // t[0] is top-left, t[1:9] the row above
	l := [4]byte{buf[off-1], buf[off-1+BPS], buf[off-1+2*BPS], buf[off-1+3*BPS]}
	tl := t[0]
	a, b, c, d, e, f, g, h := t[1], t[2], t[3], t[4], t[5], t[6], t[7], t[8]
	p, q, r, s := l[0], l[1], l[2], l[3]
	set := func(y int, v0, v1, v2, v3 byte) {
		row := buf[off+y*BPS:]
		row[0], row[1], row[2], row[3] = v0, v1, v2, v3
	}
	switch mode {
	case PredDC:
		sum := 4
		for i := 0; i < 4; i++ {
			sum += int(t[1+i]) + int(l[i])
		}
		fill(buf, off, 4, byte(sum>>3))
	case PredTM:
		for j := 0; j < 4; j++ {
			base := int(l[j]) - int(tl)
			set(j, Clip8(base+int(a)), Clip8(base+int(b)), Clip8(base+int(c)), Clip8(base+int(d)))
		}
	case PredVE:
		v0, v1, v2, v3 := avg3(tl, a, b), avg3(a, b, c), avg3(b, c, d), avg3(c, d, e)
		for j := 0; j < 4; j++ {
			set(j, v0, v1, v2, v3)
		}
	case PredHE:
		v0, v1, v2, v3 := avg3(tl, p, q), avg3(p, q, r), avg3(q, r, s), avg3(r, s, s)
		set(0, v0, v0, v0, v0)
		set(1, v1, v1, v1, v1)
		set(2, v2, v2, v2, v2)
		set(3, v3, v3, v3, v3)
	case PredRD:
		srq, rqp, qpt, ptA := avg3(s, r, q), avg3(r, q, p), avg3(q, p, tl), avg3(p, tl, a)
		tab, abc, bcd := avg3(tl, a, b), avg3(a, b, c), avg3(b, c, d)
		set(0, ptA, tab, abc, bcd)
		set(1, qpt, ptA, tab, abc)
		set(2, rqp, qpt, ptA, tab)
		set(3, srq, rqp, qpt, ptA)
	case PredVR:
		ta, ab, bc, cd := avg2(tl, a), avg2(a, b), avg2(b, c), avg2(c, d)
		rqp, qpt, ptA := avg3(r, q, p), avg3(q, p, tl), avg3(p, tl, a)
		tab, abc, bcd := avg3(tl, a, b), avg3(a, b, c), avg3(b, c, d)
		set(0, ta, ab, bc, cd)
		set(1, ptA, tab, abc, bcd)
		set(2, qpt, ta, ab, bc)
		set(3, rqp, ptA, tab, abc)
	case PredLD:
		abc, bcd, cde, def := avg3(a, b, c), avg3(b, c, d), avg3(c, d, e), avg3(d, e, f)
		efg, fgh, ghh := avg3(e, f, g), avg3(f, g, h), avg3(g, h, h)
		set(0, abc, bcd, cde, def)
		set(1, bcd, cde, def, efg)
		set(2, cde, def, efg, fgh)
		set(3, def, efg, fgh, ghh)
	case PredVL:
		ab, bc, cd, de := avg2(a, b), avg2(b, c), avg2(c, d), avg2(d, e)
		abc, bcd, cde, def := avg3(a, b, c), avg3(b, c, d), avg3(c, d, e), avg3(d, e, f)
		efg, fgh := avg3(e, f, g), avg3(f, g, h)
		set(0, ab, bc, cd, de)
		set(1, abc, bcd, cde, def)
		set(2, bc, cd, de, efg)
		set(3, bcd, cde, def, fgh)
	case PredHD:
		sr, rq, qp, pt := avg2(s, r), avg2(r, q), avg2(q, p), avg2(p, tl)
		srq, rqp, qpt, ptA := avg3(s, r, q), avg3(r, q, p), avg3(q, p, tl), avg3(p, tl, a)
		tab, abc := avg3(tl, a, b), avg3(a, b, c)
		set(0, pt, ptA, tab, abc)
		set(1, qp, qpt, pt, ptA)
		set(2, rq, rqp, qp, qpt)
		set(3, sr, srq, rq, rqp)
	case PredHU:
		pq, qr, rs := avg2(p, q), avg2(q, r), avg2(r, s)
		pqr, qrs, rss := avg3(p, q, r), avg3(q, r, s), avg3(r, s, s)
		set(0, pq, pqr, qr, qrs)
		set(1, qr, qrs, rs, rss)
		set(2, rs, rss, s, s)
		set(3, s, s, s, s)
	}
}
