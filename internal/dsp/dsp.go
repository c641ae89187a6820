// Package dsp holds the pixel kernels of the lossy codec: colour
// conversion, chroma upsampling, the 4x4 DCT and WHT, intra predictors,
// the loop filters and block distortion metrics.
//
// Block kernels work on a byte buffer with stride BPS and an offset to the
// block origin. Reference pixels (the row above, the column to the left and
// the top-left corner) live before the origin, so callers lay out their
// workspace with a one-pixel border and pass an offset of at least BPS+1.
package dsp

// BPS is the stride of the block workspaces.
const BPS = 32

// Clip8 clamps v to [0, 255].
func Clip8(v int) uint8 {
	if v&^0xff == 0 {
		return uint8(v)
	}
	if v < 0 {
		return 0
	}
	return 255
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
