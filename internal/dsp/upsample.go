package dsp

// Fancy upsampling: each output pixel takes its chroma from the 2x2
// neighbourhood of nearest chroma samples with weights 9/16, 3/16, 3/16 and
// 1/16, the nearest sample weighted heaviest. Samples past an image edge
// repeat the edge sample.

// UpsampleYUV420 converts 4:2:0 planes to packed RGB (channels 3) or RGBA
// (channels 4, alpha set to 0xff) into dst with stride width*channels.
func UpsampleYUV420(y []byte, yStride int, u, v []byte, uvStride int,
	width, height, channels int, dst []byte) {
	cw := (width + 1) / 2
	ch := (height + 1) / 2
	colU := make([]int, cw)
	colV := make([]int, cw)
	stride := width * channels
	for j := 0; j < height; j++ {
		near := j >> 1
		far := near - 1
		if j&1 == 1 {
			far = near + 1
		}
		far = min(max(far, 0), ch-1)
		nu, fu := u[near*uvStride:], u[far*uvStride:]
		nv, fv := v[near*uvStride:], v[far*uvStride:]
		for c := 0; c < cw; c++ {
			colU[c] = 3*int(nu[c]) + int(fu[c])
			colV[c] = 3*int(nv[c]) + int(fv[c])
		}
		yRow := y[j*yStride:]
		out := dst[j*stride:]
		for i := 0; i < width; i++ {
			n := i >> 1
			f := n - 1
			if i&1 == 1 {
				f = n + 1
			}
			f = min(max(f, 0), cw-1)
			uu := (3*colU[n] + colU[f] + 8) >> 4
			vv := (3*colV[n] + colV[f] + 8) >> 4
			px := out[i*channels:]
			YUVToRGB(int(yRow[i]), uu, vv, px)
			if channels == 4 {
				px[3] = 0xff
			}
		}
	}
}
