package lossy

import "github.com/deepteams/webpcodec/internal/dsp"

// loopFilter runs the in-loop deblocking filter over the reconstructed
// frame in macroblock raster order.
func (dec *Decoder) loopFilter() {
	if dec.filterType == 0 {
		return
	}
	img := dec.img
	ys, uvs := img.YStride, img.UVStride
	for mby := 0; mby < dec.mbH; mby++ {
		for mbx := 0; mbx < dec.mbW; mbx++ {
			info := &dec.finfo[mby*dec.mbW+mbx]
			limit := info.limit
			if limit == 0 {
				continue
			}
			yOff := mby*16*ys + mbx*16
			if dec.filterType == 1 {
				if mbx > 0 {
					dsp.SimpleHFilter16(img.Y, yOff, ys, limit+4)
				}
				if info.inner {
					dsp.SimpleHFilter16i(img.Y, yOff, ys, limit)
				}
				if mby > 0 {
					dsp.SimpleVFilter16(img.Y, yOff, ys, limit+4)
				}
				if info.inner {
					dsp.SimpleVFilter16i(img.Y, yOff, ys, limit)
				}
				continue
			}

			uvOff := mby*8*uvs + mbx*8
			il, hev := info.ilevel, info.hevThresh
			if mbx > 0 {
				dsp.HFilter(img.Y, yOff, ys, 16, limit+4, il, hev)
				dsp.HFilter(img.U, uvOff, uvs, 8, limit+4, il, hev)
				dsp.HFilter(img.V, uvOff, uvs, 8, limit+4, il, hev)
			}
			if info.inner {
				dsp.HFilterInner(img.Y, yOff, ys, 16, limit, il, hev)
				dsp.HFilterInner(img.U, uvOff, uvs, 8, limit, il, hev)
				dsp.HFilterInner(img.V, uvOff, uvs, 8, limit, il, hev)
			}
			if mby > 0 {
				dsp.VFilter(img.Y, yOff, ys, 16, limit+4, il, hev)
				dsp.VFilter(img.U, uvOff, uvs, 8, limit+4, il, hev)
				dsp.VFilter(img.V, uvOff, uvs, 8, limit+4, il, hev)
			}
			if info.inner {
				dsp.VFilterInner(img.Y, yOff, ys, 16, limit, il, hev)
				dsp.VFilterInner(img.U, uvOff, uvs, 8, limit, il, hev)
				dsp.VFilterInner(img.V, uvOff, uvs, 8, limit, il, hev)
			}
		}
	}
}
