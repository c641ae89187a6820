package dsp

func sad(a []byte, aOff int, b []byte, bOff int, w, h int) int {
	sum := 0
	for j := 0; j < h; j++ {
		ra := a[aOff+j*BPS : aOff+j*BPS+w]
		rb := b[bOff+j*BPS : bOff+j*BPS+w]
		for i := range ra {
			sum += abs(int(ra[i]) - int(rb[i]))
		}
	}
	return sum
}

func sse(a []byte, aOff int, b []byte, bOff int, w, h int) int {
	sum := 0
	for j := 0; j < h; j++ {
		ra := a[aOff+j*BPS : aOff+j*BPS+w]
		rb := b[bOff+j*BPS : bOff+j*BPS+w]
		for i := range ra {
			d := int(ra[i]) - int(rb[i])
			sum += d * d
		}
	}
	return sum
}

// SAD4x4 returns the sum of absolute differences of two 4x4 blocks.
func SAD4x4(a []byte, aOff int, b []byte, bOff int) int { return sad(a, aOff, b, bOff, 4, 4) }

// SAD8x8 returns the sum of absolute differences of two 8x8 blocks.
func SAD8x8(a []byte, aOff int, b []byte, bOff int) int { return sad(a, aOff, b, bOff, 8, 8) }

// SAD16x16 returns the sum of absolute differences of two 16x16 blocks.
func SAD16x16(a []byte, aOff int, b []byte, bOff int) int { return sad(a, aOff, b, bOff, 16, 16) }

// SSE4x4 returns the sum of squared errors of two 4x4 blocks.
func SSE4x4(a []byte, aOff int, b []byte, bOff int) int { return sse(a, aOff, b, bOff, 4, 4) }

// SSE16x16 returns the sum of squared errors of two 16x16 blocks.
func SSE16x16(a []byte, aOff int, b []byte, bOff int) int { return sse(a, aOff, b, bOff, 16, 16) }
