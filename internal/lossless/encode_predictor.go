package lossless

// predictorBits picks the tile size of the predictor and cross-colour
// images. Higher effort affords smaller tiles.
func predictorBits(method, width, height int) int {
	bits := 5
	if method >= 4 {
		bits = 4
	}
	for bits > 2 && subSampleSize(width, bits)*subSampleSize(height, bits) < 4 {
		bits--
	}
	return bits
}

type channelHistograms [4][256]int

func (h *channelHistograms) add(p uint32) {
	h[0][p>>24]++
	h[1][(p>>16)&0xff]++
	h[2][(p>>8)&0xff]++
	h[3][p&0xff]++
}

func (h *channelHistograms) cost() float64 {
	return channelEntropy(&h[0]) + channelEntropy(&h[1]) + channelEntropy(&h[2]) + channelEntropy(&h[3])
}

// choosePredictors selects, for every tile, the predictor whose residuals
// have the lowest entropy. The result is the predictor sub-image.
func choosePredictors(pix []uint32, width, height, bits int) []uint32 {
	tw, th := subSampleSize(width, bits), subSampleSize(height, bits)
	modes := make([]uint32, tw*th)
	size := 1 << bits
	for ty := 0; ty < th; ty++ {
		for tx := 0; tx < tw; tx++ {
			x0, y0 := tx*size, ty*size
			x1, y1 := min(x0+size, width), min(y0+size, height)
			best, bestCost := 0, 0.0
			for mode := 0; mode < numPredictors; mode++ {
				var h channelHistograms
				for y := y0; y < y1; y++ {
					for x := x0; x < x1; x++ {
						h.add(subPixels(pix[y*width+x], predictorFor(mode, x, y, pix, width)))
					}
				}
				if c := h.cost(); mode == 0 || c < bestCost {
					best, bestCost = mode, c
				}
			}
			modes[ty*tw+tx] = argbBlack | uint32(best)<<8
		}
	}
	return modes
}

// applyPredictors returns the residuals of pix under the chosen modes.
func applyPredictors(pix []uint32, width, height, bits int, modes []uint32) []uint32 {
	out := make([]uint32, len(pix))
	tw := subSampleSize(width, bits)
	for y := 0; y < height; y++ {
		row := (y >> bits) * tw
		for x := 0; x < width; x++ {
			mode := int(modes[row+x>>bits]>>8) & 0xf
			i := y*width + x
			out[i] = subPixels(pix[i], predictorFor(mode, x, y, pix, width))
		}
	}
	return out
}

// multiplierOrder lists the candidate multipliers, nearest to zero first
// so that ties keep the cheaper transform.
var multiplierOrder = func() []int8 {
	order := []int8{0}
	for d := 1; d <= 24; d++ {
		order = append(order, int8(d), int8(-d))
	}
	return order
}()

// chooseCrossColor searches per tile the multipliers that minimise the
// entropy of the transformed red and blue channels.
func chooseCrossColor(pix []uint32, width, height, bits int) []uint32 {
	tw, th := subSampleSize(width, bits), subSampleSize(height, bits)
	out := make([]uint32, tw*th)
	size := 1 << bits
	for ty := 0; ty < th; ty++ {
		for tx := 0; tx < tw; tx++ {
			x0, y0 := tx*size, ty*size
			x1, y1 := min(x0+size, width), min(y0+size, height)
			tileCost := func(m multipliers, shift uint) float64 {
				var h [256]int
				for y := y0; y < y1; y++ {
					for x := x0; x < x1; x++ {
						h[(m.forward(pix[y*width+x])>>shift)&0xff]++
					}
				}
				return channelEntropy(&h)
			}
			var m multipliers
			m.g2r = searchMultiplier(func(v int8) float64 {
				return tileCost(multipliers{g2r: v}, 16)
			})
			m.g2b = searchMultiplier(func(v int8) float64 {
				return tileCost(multipliers{g2r: m.g2r, g2b: v}, 0)
			})
			m.r2b = searchMultiplier(func(v int8) float64 {
				return tileCost(multipliers{g2r: m.g2r, g2b: m.g2b, r2b: v}, 0)
			})
			out[ty*tw+tx] = m.pixel()
		}
	}
	return out
}

func searchMultiplier(cost func(int8) float64) int8 {
	best, bestCost := int8(0), 0.0
	for i, v := range multiplierOrder {
		if c := cost(v); i == 0 || c < bestCost {
			best, bestCost = v, c
		}
	}
	return best
}

func applyCrossColor(pix []uint32, width, height, bits int, data []uint32) {
	tw := subSampleSize(width, bits)
	for y := 0; y < height; y++ {
		row := (y >> bits) * tw
		for x := 0; x < width; x++ {
			i := y*width + x
			pix[i] = multipliersFrom(data[row+x>>bits]).forward(pix[i])
		}
	}
}
