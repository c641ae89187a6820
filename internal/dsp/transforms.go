package dsp

// Integer 4x4 DCT and Walsh-Hadamard transforms. Coefficients are stored
// in raster order: index 4*v+h holds vertical frequency v, horizontal h.

func mul1(a int) int { return (a*20091)>>16 + a }
func mul2(a int) int { return (a * 35468) >> 16 }

// FTransform computes the DCT of the 4x4 difference src-ref. Both blocks
// use stride BPS.
func FTransform(src []byte, srcOff int, ref []byte, refOff int, out []int16) {
	var tmp [16]int
	for i := 0; i < 4; i++ {
		s := src[srcOff+i*BPS:]
		r := ref[refOff+i*BPS:]
		d0 := int(s[0]) - int(r[0])
		d1 := int(s[1]) - int(r[1])
		d2 := int(s[2]) - int(r[2])
		d3 := int(s[3]) - int(r[3])
		a0 := d0 + d3
		a1 := d1 + d2
		a2 := d1 - d2
		a3 := d0 - d3
		tmp[0+i*4] = (a0 + a1) * 8
		tmp[1+i*4] = (a2*2217 + a3*5352 + 1812) >> 9
		tmp[2+i*4] = (a0 - a1) * 8
		tmp[3+i*4] = (a3*2217 - a2*5352 + 937) >> 9
	}
	for i := 0; i < 4; i++ {
		a0 := tmp[0+i] + tmp[12+i]
		a1 := tmp[4+i] + tmp[8+i]
		a2 := tmp[4+i] - tmp[8+i]
		a3 := tmp[0+i] - tmp[12+i]
		out[0+i] = int16((a0 + a1 + 7) >> 4)
		nz := 0
		if a3 != 0 {
			nz = 1
		}
		out[4+i] = int16((a2*2217+a3*5352+12000)>>16 + nz)
		out[8+i] = int16((a0 - a1 + 7) >> 4)
		out[12+i] = int16((a3*2217 - a2*5352 + 51000) >> 16)
	}
}

// ITransform adds the inverse DCT of in to the 4x4 block at dst[off].
func ITransform(in []int16, dst []byte, off int) {
	var tmp [16]int
	for i := 0; i < 4; i++ {
		a := int(in[i]) + int(in[8+i])
		b := int(in[i]) - int(in[8+i])
		c := mul2(int(in[4+i])) - mul1(int(in[12+i]))
		d := mul1(int(in[4+i])) + mul2(int(in[12+i]))
		tmp[i*4+0] = a + d
		tmp[i*4+1] = b + c
		tmp[i*4+2] = b - c
		tmp[i*4+3] = a - d
	}
	for i := 0; i < 4; i++ {
		dc := tmp[i] + 4
		a := dc + tmp[8+i]
		b := dc - tmp[8+i]
		c := mul2(tmp[4+i]) - mul1(tmp[12+i])
		d := mul1(tmp[4+i]) + mul2(tmp[12+i])
		row := dst[off+i*BPS:]
		row[0] = Clip8(int(row[0]) + (a+d)>>3)
		row[1] = Clip8(int(row[1]) + (b+c)>>3)
		row[2] = Clip8(int(row[2]) + (b-c)>>3)
		row[3] = Clip8(int(row[3]) + (a-d)>>3)
	}
}

// ITransformDC adds a DC-only inverse transform to the block at dst[off].
func ITransformDC(in []int16, dst []byte, off int) {
	dc := (int(in[0]) + 4) >> 3
	for j := 0; j < 4; j++ {
		row := dst[off+j*BPS:]
		for i := 0; i < 4; i++ {
			row[i] = Clip8(int(row[i]) + dc)
		}
	}
}

// FTransformWHT transforms the 16 luma DC terms, dc[4*by+bx] being the DC
// of sub-block (bx, by).
func FTransformWHT(dc []int16, out []int16) {
	var tmp [16]int
	for i := 0; i < 4; i++ {
		r := dc[i*4:]
		a0 := int(r[0]) + int(r[2])
		a1 := int(r[1]) + int(r[3])
		a2 := int(r[1]) - int(r[3])
		a3 := int(r[0]) - int(r[2])
		tmp[0+i*4] = a0 + a1
		tmp[1+i*4] = a3 + a2
		tmp[2+i*4] = a3 - a2
		tmp[3+i*4] = a0 - a1
	}
	for i := 0; i < 4; i++ {
		a0 := tmp[0+i] + tmp[8+i]
		a1 := tmp[4+i] + tmp[12+i]
		a2 := tmp[4+i] - tmp[12+i]
		a3 := tmp[0+i] - tmp[8+i]
		out[0+i] = int16((a0 + a1) >> 1)
		out[4+i] = int16((a3 + a2) >> 1)
		out[8+i] = int16((a3 - a2) >> 1)
		out[12+i] = int16((a0 - a1) >> 1)
	}
}

// ITransformWHT inverts FTransformWHT, writing the DC of sub-block
// (bx, by) to dc[4*by+bx].
func ITransformWHT(in []int16, dc []int16) {
	var tmp [16]int
	for i := 0; i < 4; i++ {
		a0 := int(in[0+i]) + int(in[12+i])
		a1 := int(in[4+i]) + int(in[8+i])
		a2 := int(in[4+i]) - int(in[8+i])
		a3 := int(in[0+i]) - int(in[12+i])
		tmp[0+i] = a0 + a1
		tmp[8+i] = a0 - a1
		tmp[4+i] = a3 + a2
		tmp[12+i] = a3 - a2
	}
	for i := 0; i < 4; i++ {
		d := tmp[i*4] + 3
		a0 := d + tmp[3+i*4]
		a1 := tmp[1+i*4] + tmp[2+i*4]
		a2 := tmp[1+i*4] - tmp[2+i*4]
		a3 := d - tmp[3+i*4]
		dc[i*4+0] = int16((a0 + a1) >> 3)
		dc[i*4+1] = int16((a3 + a2) >> 3)
		dc[i*4+2] = int16((a0 - a1) >> 3)
		dc[i*4+3] = int16((a3 - a2) >> 3)
	}
}
