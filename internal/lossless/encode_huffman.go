package lossless

import (
	"cmp"
	"slices"

	"github.com/deepteams/webpcodec/internal/bitio"
)

type huffNode struct {
	weight      uint64
	symbol      int
	left, right int
}

// huffmanLengths computes code lengths for hist no longer than limit.
// Unused symbols get length 0 and a lone symbol gets length 1. Ties
// between equal weights are broken by symbol value.
func huffmanLengths(hist []uint32, limit int) []uint8 {
	lengths := make([]uint8, len(hist))
	var syms []int
	for s, n := range hist {
		if n > 0 {
			syms = append(syms, s)
		}
	}
	switch len(syms) {
	case 0:
		return lengths
	case 1:
		lengths[syms[0]] = 1
		return lengths
	}
	// Flatten the distribution until the tree fits the limit.
	for floor := uint64(1); !buildLengths(hist, syms, floor, limit, lengths); floor <<= 1 {
	}
	return lengths
}

func buildLengths(hist []uint32, syms []int, floor uint64, limit int, lengths []uint8) bool {
	n := len(syms)
	nodes := make([]huffNode, 0, 2*n-1)
	for _, s := range syms {
		nodes = append(nodes, huffNode{weight: max(uint64(hist[s]), floor), symbol: s, left: -1, right: -1})
	}
	slices.SortStableFunc(nodes, func(a, b huffNode) int {
		if c := cmp.Compare(a.weight, b.weight); c != 0 {
			return c
		}
		return cmp.Compare(a.symbol, b.symbol)
	})

	// Two-queue merge: leaves in weight order, internal nodes in creation
	// order, which is also weight order.
	leaf, inner := 0, n
	pick := func() int {
		if leaf < n && (inner >= len(nodes) || nodes[leaf].weight <= nodes[inner].weight) {
			leaf++
			return leaf - 1
		}
		inner++
		return inner - 1
	}
	for len(nodes) < 2*n-1 {
		a, b := pick(), pick()
		nodes = append(nodes, huffNode{weight: nodes[a].weight + nodes[b].weight, symbol: -1, left: a, right: b})
	}

	depth := make([]int, len(nodes))
	for i := len(nodes) - 1; i >= n; i-- {
		d := depth[i] + 1
		if d > limit {
			return false
		}
		depth[nodes[i].left] = d
		depth[nodes[i].right] = d
	}
	for i := 0; i < n; i++ {
		lengths[nodes[i].symbol] = uint8(depth[i])
	}
	return true
}

// prefixCode is the encoder side of a canonical prefix code.
type prefixCode struct {
	lengths []uint8
	codes   []uint16 // bit-reversed for LSB-first output
}

// newPrefixCode derives the output codes for lengths. A code with a single
// used symbol is written with zero bits.
func newPrefixCode(lengths []uint8) *prefixCode {
	used := 0
	for _, l := range lengths {
		if l > 0 {
			used++
		}
	}
	pc := &prefixCode{lengths: lengths, codes: canonicalCodes(lengths)}
	if used <= 1 {
		pc.lengths = make([]uint8, len(lengths))
		return pc
	}
	for s, l := range lengths {
		pc.codes[s] = reverseBits(pc.codes[s], int(l))
	}
	return pc
}

func (pc *prefixCode) write(w *bitio.LSBWriter, sym int) {
	w.WriteBits(uint32(pc.codes[sym]), int(pc.lengths[sym]))
}

// writeHuffmanCode transmits the prefix code built for hist and returns it.
func writeHuffmanCode(w *bitio.LSBWriter, hist []uint32) *prefixCode {
	lengths := huffmanLengths(hist, maxCodeLength)
	var syms []int
	for s, l := range lengths {
		if l > 0 {
			syms = append(syms, s)
		}
	}
	if len(syms) <= 2 && (len(syms) == 0 || syms[len(syms)-1] < numLiteralCodes) {
		if len(syms) == 0 {
			syms = []int{0}
		}
		w.WriteBits(1, 1)
		w.WriteBits(uint32(len(syms)-1), 1)
		if syms[0] <= 1 {
			w.WriteBits(0, 1)
			w.WriteBits(uint32(syms[0]), 1)
		} else {
			w.WriteBits(1, 1)
			w.WriteBits(uint32(syms[0]), 8)
		}
		if len(syms) == 2 {
			w.WriteBits(uint32(syms[1]), 8)
		}
		return newPrefixCode(lengths)
	}
	w.WriteBits(0, 1)
	writeCodeLengths(w, lengths)
	return newPrefixCode(lengths)
}

// clToken is one symbol of the run-length coded code lengths.
type clToken struct {
	code, extra uint8
}

// rleCodeLengths codes lengths with the repeat codes 16 (previous
// non-zero length), 17 and 18 (runs of zeros).
func rleCodeLengths(lengths []uint8) []clToken {
	var toks []clToken
	prev := uint8(8)
	for i := 0; i < len(lengths); {
		v := lengths[i]
		run := 1
		for i+run < len(lengths) && lengths[i+run] == v {
			run++
		}
		i += run
		if v == 0 {
			for run > 0 {
				switch {
				case run >= 11:
					n := min(run, 138)
					toks = append(toks, clToken{18, uint8(n - 11)})
					run -= n
				case run >= 3:
					toks = append(toks, clToken{17, uint8(run - 3)})
					run = 0
				default:
					toks = append(toks, clToken{0, 0})
					run--
				}
			}
			continue
		}
		if v != prev {
			toks = append(toks, clToken{v, 0})
			prev = v
			run--
		}
		for run > 0 {
			if run >= 3 {
				n := min(run, 6)
				toks = append(toks, clToken{16, uint8(n - 3)})
				run -= n
			} else {
				toks = append(toks, clToken{v, 0})
				run--
			}
		}
	}
	return toks
}

var clExtraBits = [3]int{2, 3, 7}

func writeCodeLengths(w *bitio.LSBWriter, lengths []uint8) {
	last := len(lengths) - 1
	for last > 0 && lengths[last] == 0 {
		last--
	}
	toks := rleCodeLengths(lengths[:last+1])
	trim := last+1 < len(lengths) && len(toks) >= 2
	if !trim {
		toks = rleCodeLengths(lengths)
	}

	var hist [numCodeLengthCodes]uint32
	for _, t := range toks {
		hist[t.code]++
	}
	clLengths := huffmanLengths(hist[:], 7)
	n := numCodeLengthCodes
	for n > 4 && clLengths[codeLengthOrder[n-1]] == 0 {
		n--
	}
	w.WriteBits(uint32(n-4), 4)
	for i := 0; i < n; i++ {
		w.WriteBits(uint32(clLengths[codeLengthOrder[i]]), 3)
	}

	if trim {
		v := len(toks) - 2
		nbits := 2
		for v >= 1<<nbits {
			nbits += 2
		}
		w.WriteBits(1, 1)
		w.WriteBits(uint32(nbits-2)/2, 3)
		w.WriteBits(uint32(v), nbits)
	} else {
		w.WriteBits(0, 1)
	}

	cl := newPrefixCode(clLengths)
	for _, t := range toks {
		cl.write(w, int(t.code))
		if t.code >= 16 {
			w.WriteBits(uint32(t.extra), clExtraBits[t.code-16])
		}
	}
}
