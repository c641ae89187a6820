package dsp

// BT.601 limited-range conversion in 16.16 and 14-bit fixed point.

const (
	yuvFix  = 16
	yuvHalf = 1 << (yuvFix - 1)
)

// RGBToY returns the luma of one pixel.
func RGBToY(r, g, b int) uint8 {
	return uint8((16839*r + 33059*g + 6420*b + yuvHalf + 16<<yuvFix) >> yuvFix)
}

// clipUV converts an accumulated chroma sum (four pixels' worth) to 8 bits.
func clipUV(v int) uint8 {
	v = (v + yuvHalf<<2 + 128<<(yuvFix+2)) >> (yuvFix + 2)
	return Clip8(v)
}

// RGBToU returns the Cb value for r, g, b summed over four pixels.
func RGBToU(r4, g4, b4 int) uint8 {
	return clipUV(-9719*r4 - 19081*g4 + 28800*b4)
}

// RGBToV returns the Cr value for r, g, b summed over four pixels.
func RGBToV(r4, g4, b4 int) uint8 {
	return clipUV(28800*r4 - 24116*g4 - 4684*b4)
}

func yuvClip(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > (256<<6)-1 {
		return 255
	}
	return uint8(v >> 6)
}

// YUVToRGB converts one sample triple, writing R, G and B to dst.
func YUVToRGB(y, u, v int, dst []byte) {
	yy := (y * 19077) >> 8
	dst[0] = yuvClip(yy + (v*26149)>>8 - 14234)
	dst[1] = yuvClip(yy - (u*6419)>>8 - (v*13320)>>8 + 8708)
	dst[2] = yuvClip(yy + (u*33050)>>8 - 17685)
}

// ImportYUV420 converts packed RGB or RGBA pixels (channels 3 or 4) into
// 4:2:0 planes. The destination planes may be larger than the image;
// samples outside it are left untouched. Chroma of odd edges averages the
// available pixels, replicating the last row or column.
func ImportYUV420(pix []byte, width, height, channels int,
	y []byte, yStride int, u, v []byte, uvStride int) {
	stride := width * channels
	for j := 0; j < height; j++ {
		row := pix[j*stride:]
		dst := y[j*yStride:]
		for i := 0; i < width; i++ {
			p := row[i*channels:]
			dst[i] = RGBToY(int(p[0]), int(p[1]), int(p[2]))
		}
	}
	for j := 0; j < (height+1)/2; j++ {
		r0 := pix[2*j*stride:]
		r1 := r0
		if 2*j+1 < height {
			r1 = pix[(2*j+1)*stride:]
		}
		for i := 0; i < (width+1)/2; i++ {
			x0 := 2 * i * channels
			x1 := x0
			if 2*i+1 < width {
				x1 = x0 + channels
			}
			r := int(r0[x0]) + int(r0[x1]) + int(r1[x0]) + int(r1[x1])
			g := int(r0[x0+1]) + int(r0[x1+1]) + int(r1[x0+1]) + int(r1[x1+1])
			b := int(r0[x0+2]) + int(r0[x1+2]) + int(r1[x0+2]) + int(r1[x1+2])
			u[j*uvStride+i] = RGBToU(r, g, b)
			v[j*uvStride+i] = RGBToV(r, g, b)
		}
	}
}
