package dsp

// In-loop deblocking filters. p is a plane, off the index of the first
// pixel past the edge being filtered and stride the plane's row stride.
// V filters smooth a horizontal edge (pixels above and below it), H filters
// a vertical edge.

func sclip1(v int) int { return min(max(v, -128), 127) }
func sclip2(v int) int { return min(max(v, -16), 15) }

func doFilter2(p []byte, i, step int) {
	p1, p0, q0, q1 := int(p[i-2*step]), int(p[i-step]), int(p[i]), int(p[i+step])
	a := 3*(q0-p0) + sclip1(p1-q1)
	a1 := sclip2((a + 4) >> 3)
	a2 := sclip2((a + 3) >> 3)
	p[i-step] = Clip8(p0 + a2)
	p[i] = Clip8(q0 - a1)
}

func doFilter4(p []byte, i, step int) {
	p1, p0, q0, q1 := int(p[i-2*step]), int(p[i-step]), int(p[i]), int(p[i+step])
	a := 3 * (q0 - p0)
	a1 := sclip2((a + 4) >> 3)
	a2 := sclip2((a + 3) >> 3)
	a3 := (a1 + 1) >> 1
	p[i-2*step] = Clip8(p1 + a3)
	p[i-step] = Clip8(p0 + a2)
	p[i] = Clip8(q0 - a1)
	p[i+step] = Clip8(q1 - a3)
}

func doFilter6(p []byte, i, step int) {
	p2, p1, p0 := int(p[i-3*step]), int(p[i-2*step]), int(p[i-step])
	q0, q1, q2 := int(p[i]), int(p[i+step]), int(p[i+2*step])
	a := sclip1(3*(q0-p0) + sclip1(p1-q1))
	a1 := (27*a + 63) >> 7
	a2 := (18*a + 63) >> 7
	a3 := (9*a + 63) >> 7
	p[i-3*step] = Clip8(p2 + a3)
	p[i-2*step] = Clip8(p1 + a2)
	p[i-step] = Clip8(p0 + a1)
	p[i] = Clip8(q0 - a1)
	p[i+step] = Clip8(q1 - a2)
	p[i+2*step] = Clip8(q2 - a3)
}

func hev(p []byte, i, step, thresh int) bool {
	p1, p0, q0, q1 := int(p[i-2*step]), int(p[i-step]), int(p[i]), int(p[i+step])
	return abs(p1-p0) > thresh || abs(q1-q0) > thresh
}

func needsFilter(p []byte, i, step, t int) bool {
	p1, p0, q0, q1 := int(p[i-2*step]), int(p[i-step]), int(p[i]), int(p[i+step])
	return 4*abs(p0-q0)+abs(p1-q1) <= t
}

func needsFilter2(p []byte, i, step, t, it int) bool {
	p3, p2, p1, p0 := int(p[i-4*step]), int(p[i-3*step]), int(p[i-2*step]), int(p[i-step])
	q0, q1, q2, q3 := int(p[i]), int(p[i+step]), int(p[i+2*step]), int(p[i+3*step])
	if 4*abs(p0-q0)+abs(p1-q1) > t {
		return false
	}
	return abs(p3-p2) <= it && abs(p2-p1) <= it && abs(p1-p0) <= it &&
		abs(q3-q2) <= it && abs(q2-q1) <= it && abs(q1-q0) <= it
}

func simpleLoop(p []byte, off, hstep, vstep, thresh int) {
	t := 2*thresh + 1
	for n := 0; n < 16; n++ {
		i := off + n*vstep
		if needsFilter(p, i, hstep, t) {
			doFilter2(p, i, hstep)
		}
	}
}

// SimpleVFilter16 filters the horizontal edge above the 16-pixel row at off.
func SimpleVFilter16(p []byte, off, stride, thresh int) {
	simpleLoop(p, off, stride, 1, thresh)
}

// SimpleHFilter16 filters the vertical edge left of the 16-pixel column at off.
func SimpleHFilter16(p []byte, off, stride, thresh int) {
	simpleLoop(p, off, 1, stride, thresh)
}

// SimpleVFilter16i filters the three inner horizontal edges of a macroblock.
func SimpleVFilter16i(p []byte, off, stride, thresh int) {
	for k := 1; k < 4; k++ {
		simpleLoop(p, off+4*k*stride, stride, 1, thresh)
	}
}

// SimpleHFilter16i filters the three inner vertical edges of a macroblock.
func SimpleHFilter16i(p []byte, off, stride, thresh int) {
	for k := 1; k < 4; k++ {
		simpleLoop(p, off+4*k, 1, stride, thresh)
	}
}

func filterLoop26(p []byte, off, hstep, vstep, size, thresh, ithresh, hevThresh int) {
	t := 2*thresh + 1
	for n := 0; n < size; n++ {
		i := off + n*vstep
		if !needsFilter2(p, i, hstep, t, ithresh) {
			continue
		}
		if hev(p, i, hstep, hevThresh) {
			doFilter2(p, i, hstep)
		} else {
			doFilter6(p, i, hstep)
		}
	}
}

func filterLoop24(p []byte, off, hstep, vstep, size, thresh, ithresh, hevThresh int) {
	t := 2*thresh + 1
	for n := 0; n < size; n++ {
		i := off + n*vstep
		if !needsFilter2(p, i, hstep, t, ithresh) {
			continue
		}
		if hev(p, i, hstep, hevThresh) {
			doFilter2(p, i, hstep)
		} else {
			doFilter4(p, i, hstep)
		}
	}
}

// VFilter filters the macroblock edge above a size-wide block.
func VFilter(p []byte, off, stride, size, thresh, ithresh, hevThresh int) {
	filterLoop26(p, off, stride, 1, size, thresh, ithresh, hevThresh)
}

// HFilter filters the macroblock edge left of a size-tall block.
func HFilter(p []byte, off, stride, size, thresh, ithresh, hevThresh int) {
	filterLoop26(p, off, 1, stride, size, thresh, ithresh, hevThresh)
}

// VFilterInner filters the inner horizontal edges of a size x size block,
// every four rows.
func VFilterInner(p []byte, off, stride, size, thresh, ithresh, hevThresh int) {
	for k := 4; k < size; k += 4 {
		filterLoop24(p, off+k*stride, stride, 1, size, thresh, ithresh, hevThresh)
	}
}

// HFilterInner filters the inner vertical edges of a size x size block.
func HFilterInner(p []byte, off, stride, size, thresh, ithresh, hevThresh int) {
	for k := 4; k < size; k += 4 {
		filterLoop24(p, off+k, 1, stride, size, thresh, ithresh, hevThresh)
	}
}
