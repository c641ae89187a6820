package lossless

import "math"

// histogram counts the symbols of each prefix code class of one group.
type histogram struct {
	counts    [codesPerGroup][]uint32
	extraBits int // length and distance extra bits
}

func newHistogram(cacheBits int) *histogram {
	h := &histogram{}
	for c := range h.counts {
		h.counts[c] = make([]uint32, alphabetSize(c, cacheBits))
	}
	return h
}

func (h *histogram) add(r pixelRef, width int) {
	switch r.kind {
	case refLiteral:
		h.counts[codeGreen][(r.val>>8)&0xff]++
		h.counts[codeRed][(r.val>>16)&0xff]++
		h.counts[codeBlue][r.val&0xff]++
		h.counts[codeAlpha][r.val>>24]++
	case refCache:
		h.counts[codeGreen][numLiteralCodes+numLengthCodes+int(r.val)]++
	case refCopy:
		lc, lbits, _ := prefixEncode(int(r.len))
		dc, dbits, _ := prefixEncode(distanceToPlaneCode(width, int(r.val)))
		h.counts[codeGreen][numLiteralCodes+lc]++
		h.counts[codeDist][dc]++
		h.extraBits += lbits + dbits
	}
}

func (h *histogram) merge(o *histogram) {
	for c := range h.counts {
		for s, n := range o.counts[c] {
			h.counts[c][s] += n
		}
	}
	h.extraBits += o.extraBits
}

// cost estimates the coded size in bits: the Shannon entropy of every
// class, the extra bits, and a rough price for the code lengths.
func (h *histogram) cost() float64 {
	bits := float64(h.extraBits)
	for _, counts := range h.counts {
		bits += entropy(counts)
	}
	return bits
}

// entropy returns the Shannon bits needed for the symbols counted, plus
// an estimate of the code description.
func entropy(counts []uint32) float64 {
	var total, sum float64
	used := 0
	for _, n := range counts {
		if n == 0 {
			continue
		}
		f := float64(n)
		total += f
		sum += f * math.Log2(f)
		used++
	}
	if used <= 1 {
		return 4
	}
	return total*math.Log2(total) - sum + float64(4*used)
}

// channelEntropy is the Shannon entropy of a 256-bin channel histogram,
// without header estimate.
func channelEntropy(counts *[256]int) float64 {
	var total, sum float64
	for _, n := range counts {
		if n > 1 {
			f := float64(n)
			sum += f * math.Log2(f)
		}
		total += float64(n)
	}
	if total == 0 {
		return 0
	}
	return total*math.Log2(total) - sum
}

func refsHistogram(refs []pixelRef, width, cacheBits int) *histogram {
	h := newHistogram(cacheBits)
	for _, r := range refs {
		h.add(r, width)
	}
	return h
}
