package lossless

// Near-lossless preprocessing. Pixels that differ from one of their four
// neighbours by the limit or more are snapped to a multiple of 1<<bits,
// which makes the predictor residuals far more repetitive. Every channel
// moves by at most 1<<(bits-1).

const (
	nearLosslessMinDim  = 64
	nearLosslessMaxBits = 5
)

// nearLosslessBits maps a 0..100 near-lossless quality to the number of
// low bits that may be dropped: 100 keeps everything, 0 drops five.
func nearLosslessBits(quality int) int {
	return nearLosslessMaxBits - quality/20
}

// snapChannel rounds a to the closer multiple of 1<<bits, or to 255,
// breaking ties towards the even multiple.
func snapChannel(a uint32, bits uint) uint32 {
	mask := uint32(1)<<bits - 1
	biased := a + mask>>1 + (a>>bits)&1
	if biased > 0xff {
		return 0xff
	}
	return biased &^ mask
}

func snapPixel(p uint32, bits uint) uint32 {
	return snapChannel(p>>24, bits)<<24 |
		snapChannel(p>>16&0xff, bits)<<16 |
		snapChannel(p>>8&0xff, bits)<<8 |
		snapChannel(p&0xff, bits)
}

// isNear reports whether every channel of a and b differs by less than
// limit.
func isNear(a, b uint32, limit int) bool {
	for shift := 0; shift < 32; shift += 8 {
		d := int(a>>shift&0xff) - int(b>>shift&0xff)
		if d >= limit || d <= -limit {
			return false
		}
	}
	return true
}

// nearLosslessPass snaps the non-smooth interior pixels of pix in place.
// Border rows and columns are kept.
func nearLosslessPass(pix []uint32, width, height int, bits uint) {
	limit := 1 << bits
	prev := make([]uint32, width)
	cur := make([]uint32, width)
	copy(cur, pix[:width])
	for y := 1; y < height-1; y++ {
		prev, cur = cur, prev
		copy(cur, pix[y*width:(y+1)*width])
		next := pix[(y+1)*width : (y+2)*width]
		row := pix[y*width:]
		for x := 1; x < width-1; x++ {
			p := cur[x]
			if isNear(p, cur[x-1], limit) && isNear(p, cur[x+1], limit) &&
				isNear(p, prev[x], limit) && isNear(p, next[x], limit) {
				continue
			}
			row[x] = snapPixel(p, bits)
		}
	}
}

// applyNearLossless runs the passes from the coarsest step down to one
// bit. Images smaller than 64 pixels on both sides are left alone.
func applyNearLossless(pix []uint32, width, height, quality int) {
	bits := min(nearLosslessBits(quality), nearLosslessMaxBits)
	if bits <= 0 || height < 3 || width < nearLosslessMinDim && height < nearLosslessMinDim {
		return
	}
	for b := bits; b >= 1; b-- {
		nearLosslessPass(pix, width, height, uint(b))
	}
}
