// Package lossy implements the VP8 key-frame codec used by lossy WebP
// images, and the ALPH alpha-plane coder that accompanies it.
package lossy

import (
	"github.com/deepteams/webpcodec/internal/dsp"
)

// YUVImage is a 4:2:0 frame. The planes cover whole macroblocks; Width and
// Height give the visible area.
type YUVImage struct {
	Width, Height int
	Y, U, V       []byte
	YStride       int
	UVStride      int
}

func newYUVImage(width, height int) *YUVImage {
	mbW := (width + 15) >> 4
	mbH := (height + 15) >> 4
	img := &YUVImage{
		Width:    width,
		Height:   height,
		YStride:  mbW * 16,
		UVStride: mbW * 8,
	}
	img.Y = make([]byte, img.YStride*mbH*16)
	img.U = make([]byte, img.UVStride*mbH*8)
	img.V = make([]byte, img.UVStride*mbH*8)
	return img
}

// ToRGB converts the visible area to packed RGB (channels 3) or RGBA
// (channels 4, opaque) using fancy upsampling.
func (img *YUVImage) ToRGB(channels int) []byte {
	dst := make([]byte, img.Width*img.Height*channels)
	dsp.UpsampleYUV420(img.Y, img.YStride, img.U, img.V, img.UVStride,
		img.Width, img.Height, channels, dst)
	return dst
}

// Workspace geometry: a 16x16 luma block and two 8x8 chroma blocks, each
// with a row of top samples and a column of left samples. The luma top
// row extends four samples to the right for the 4x4 predictors.
const (
	bps      = dsp.BPS
	wsOff    = bps + 1
	ySize    = bps * 17
	uvSize   = bps * 9
	topEdge  = 127
	leftEdge = 129
)

type workspace struct {
	y [ySize]byte
	u [uvSize]byte
	v [uvSize]byte
}

// load prepares the prediction context of macroblock (mbx, mby) from the
// unfiltered reconstruction in img.
func (ws *workspace) load(img *YUVImage, mbx, mby, mbW int) {
	loadPlane(ws.y[:], img.Y, img.YStride, mbx, mby, 16)
	loadPlane(ws.u[:], img.U, img.UVStride, mbx, mby, 8)
	loadPlane(ws.v[:], img.V, img.UVStride, mbx, mby, 8)

	// Above-right samples for the right column of 4x4 sub-blocks.
	tr := ws.y[wsOff-bps+16 : wsOff-bps+20]
	switch {
	case mby == 0:
		for i := range tr {
			tr[i] = topEdge
		}
	case mbx < mbW-1:
		copy(tr, img.Y[(mby*16-1)*img.YStride+mbx*16+16:])
	default:
		v := img.Y[(mby*16-1)*img.YStride+mbx*16+15]
		for i := range tr {
			tr[i] = v
		}
	}
	for r := 3; r < 15; r += 4 {
		copy(ws.y[wsOff+r*bps+16:wsOff+r*bps+20], tr)
	}
}

func loadPlane(ws []byte, p []byte, stride, mbx, mby, size int) {
	x0, y0 := mbx*size, mby*size
	top := ws[wsOff-bps-1 : wsOff-bps+size]
	if mby == 0 {
		for i := range top {
			top[i] = topEdge
		}
	} else {
		row := p[(y0-1)*stride:]
		copy(top[1:], row[x0:x0+size])
		if mbx > 0 {
			top[0] = row[x0-1]
		} else {
			top[0] = leftEdge
		}
	}
	for j := 0; j < size; j++ {
		if mbx > 0 {
			ws[wsOff-1+j*bps] = p[(y0+j)*stride+x0-1]
		} else {
			ws[wsOff-1+j*bps] = leftEdge
		}
	}
}

// store copies the reconstructed macroblock back into img.
func (ws *workspace) store(img *YUVImage, mbx, mby int) {
	storePlane(ws.y[:], img.Y, img.YStride, mbx, mby, 16)
	storePlane(ws.u[:], img.U, img.UVStride, mbx, mby, 8)
	storePlane(ws.v[:], img.V, img.UVStride, mbx, mby, 8)
}

func storePlane(ws []byte, p []byte, stride, mbx, mby, size int) {
	x0, y0 := mbx*size, mby*size
	for j := 0; j < size; j++ {
		copy(p[(y0+j)*stride+x0:(y0+j)*stride+x0+size], ws[wsOff+j*bps:wsOff+j*bps+size])
	}
}

// subOff returns the workspace offset of luma sub-block n (raster order).
func subOff(n int) int {
	return wsOff + (n>>2)*4*bps + (n&3)*4
}

// chromaSubOff returns the offset of sub-block n of an 8x8 chroma block.
func chromaSubOff(n int) int {
	return wsOff + (n>>1)*4*bps + (n&1)*4
}
