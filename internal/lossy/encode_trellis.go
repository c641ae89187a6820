package lossy

import "math"

// Trellis quantization. For each coefficient the candidates are zero and
// the two levels around the exact quotient; a dynamic program over the
// token contexts picks the sequence minimising
//
//	rate*lambda + rdDistoMult*weighted distortion
//
// with rates taken from the default coefficient probabilities.

const rdDistoMult = 256

// trellisWeights weight the squared error of each raster position.
var trellisWeights = [16]int64{
	30, 27, 19, 11,
	27, 24, 17, 10,
	19, 17, 12, 8,
	11, 10, 8, 6,
}

// levelCost is the cost, in 1/256 bit, of a non-zero magnitude v given
// the probabilities of its band and context. The sign is not included.
func levelCost(v int, p *[numProbas]uint8) int {
	if v == 1 {
		return bitCost(false, p[2])
	}
	c := bitCost(true, p[2])
	switch {
	case v <= 4:
		c += bitCost(false, p[3])
		if v == 2 {
			return c + bitCost(false, p[4])
		}
		return c + bitCost(true, p[4]) + bitCost(v == 4, p[5])
	case v <= 10:
		c += bitCost(true, p[3]) + bitCost(false, p[6])
		if v <= 6 {
			return c + bitCost(false, p[7]) + bitCost(v == 6, probCat1)
		}
		return c + bitCost(true, p[7]) + bitCost(v >= 9, probCat2a) + bitCost(v&1 == 0, probCat2b)
	}
	c += bitCost(true, p[3]) + bitCost(true, p[6])
	cat := 3
	switch {
	case v < 3+(8<<1):
		cat = 0
	case v < 3+(8<<2):
		cat = 1
	case v < 3+(8<<3):
		cat = 2
	}
	c += bitCost(cat >= 2, p[8]) + bitCost(cat&1 == 1, p[9+cat>>1])
	v -= 3 + (8 << cat)
	probs := catProbs[cat]
	for i, prob := range probs {
		c += bitCost((v>>(len(probs)-1-i))&1 == 1, prob)
	}
	return c
}

// trellisNode is the best path ending at one coefficient in one state.
// The state is the context the next coefficient is coded in: 0 after a
// zero level, 1 after a one and 2 after anything larger.
type trellisNode struct {
	score int64
	level int16 // magnitude
	prev  int8  // state at the previous position, -1 for the block start
}

// trellis is quantize with rate-distortion optimised levels. typ and ctx
// are the token plane and the context of the block's first token.
func (qz *quantizer) trellis(in *[16]int16, first int, levels *[16]int16, typ int, ctx uint8, lambda int) int {
	const unreached = math.MaxInt64
	var nodes [16][3]trellisNode
	lam := int64(lambda)

	probsAt := func(n, state int) *[numProbas]uint8 {
		return &defaultCoeffProbs[typ][bands[n]][state]
	}
	bestScore := int64(bitCost(false, probsAt(first, int(ctx))[0])) * lam
	bestN, bestState := -1, 0

	for n := first; n < 16; n++ {
		j := zigzag[n]
		t := min(n, 1)
		coeff := abs(int(in[j]))
		q := qz.q[t]
		level0 := min(coeff*qz.iq[t]>>qFix, maxLevel)
		nearest := min((coeff*qz.iq[t]+1<<(qFix-1))>>qFix, maxLevel)
		w := trellisWeights[j]
		coeff2 := int64(coeff * coeff)

		for s := range nodes[n] {
			nodes[n][s] = trellisNode{score: unreached}
		}
		for prev := -1; prev < 3; prev++ {
			var base int64
			state := prev
			if prev < 0 {
				if n != first {
					continue
				}
				state = int(ctx)
			} else {
				if n == first || nodes[n-1][prev].score == unreached {
					continue
				}
				base = nodes[n-1][prev].score
			}
			p := probsAt(n, state)
			eob := 0
			if prev != 0 {
				eob = bitCost(true, p[0])
			}
			for _, l := range [3]int{0, level0, level0 + 1} {
				if l > nearest {
					continue
				}
				rate := eob + bitCost(l != 0, p[1])
				var dist int64
				if l != 0 {
					rate += levelCost(l, p) + 256
					e := int64(coeff - l*q)
					dist = w * (e*e - coeff2)
				}
				score := base + int64(rate)*lam + rdDistoMult*dist
				next := min(l, 2)
				if score < nodes[n][next].score {
					nodes[n][next] = trellisNode{score: score, level: int16(l), prev: int8(prev)}
				}
			}
		}

		for s := 1; s < 3; s++ {
			score := nodes[n][s].score
			if score == unreached {
				continue
			}
			if n < 15 {
				score += int64(bitCost(false, probsAt(n+1, s)[0])) * lam
			}
			if score < bestScore {
				bestScore, bestN, bestState = score, n, s
			}
		}
	}

	var neg [16]bool
	for n := first; n < 16; n++ {
		neg[n] = in[zigzag[n]] < 0
		in[zigzag[n]] = 0
	}
	*levels = [16]int16{}
	state := bestState
	for n := bestN; n >= first; n-- {
		node := nodes[n][state]
		l := int(node.level)
		if neg[n] {
			l = -l
		}
		levels[n] = int16(l)
		in[zigzag[n]] = int16(l * qz.q[min(n, 1)])
		state = int(node.prev)
	}
	return bestN
}
