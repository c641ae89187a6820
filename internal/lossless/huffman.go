package lossless

import (
	"fmt"

	"github.com/deepteams/webpcodec/internal/bitio"
	"github.com/deepteams/webpcodec/internal/container"
)

const (
	rootBits = 8
	rootMask = 1<<rootBits - 1
)

// huffmanCode is one lookup-table entry. Root entries with link set point
// to a second-level table of 1<<bits entries starting at value.
type huffmanCode struct {
	bits  uint8
	link  bool
	value uint16
}

// huffmanTree decodes one canonical prefix code, LSB first.
type huffmanTree struct {
	table  []huffmanCode
	single bool
	symbol int
}

// canonicalCodes assigns canonical codes to the given code lengths.
// Shorter codes come first and equal lengths are ordered by symbol.
func canonicalCodes(lengths []uint8) []uint16 {
	var count, next [maxCodeLength + 2]int
	for _, l := range lengths {
		count[l]++
	}
	count[0] = 0
	code := 0
	for l := 1; l <= maxCodeLength; l++ {
		code = (code + count[l-1]) << 1
		next[l] = code
	}
	codes := make([]uint16, len(lengths))
	for s, l := range lengths {
		if l > 0 {
			codes[s] = uint16(next[l])
			next[l]++
		}
	}
	return codes
}

func reverseBits(v uint16, n int) uint16 {
	var r uint16
	for i := 0; i < n; i++ {
		r = r<<1 | v&1
		v >>= 1
	}
	return r
}

// buildHuffmanTree validates code lengths and builds the decoding table.
// A single used symbol decodes without reading bits. Any other set of
// lengths must form a complete prefix code.
func buildHuffmanTree(lengths []uint8) (*huffmanTree, error) {
	var count [maxCodeLength + 1]int
	used, last := 0, 0
	for s, l := range lengths {
		if l > maxCodeLength {
			return nil, fmt.Errorf("%w: vp8l code length %d", container.ErrInvalidBitstream, l)
		}
		if l > 0 {
			count[l]++
			used++
			last = s
		}
	}
	switch used {
	case 0:
		return nil, fmt.Errorf("%w: vp8l prefix code without symbols", container.ErrInvalidBitstream)
	case 1:
		return &huffmanTree{single: true, symbol: last}, nil
	}
	left := 1
	for l := 1; l <= maxCodeLength; l++ {
		left = left<<1 - count[l]
		if left < 0 {
			return nil, fmt.Errorf("%w: vp8l prefix code over-subscribed", container.ErrInvalidBitstream)
		}
	}
	if left != 0 {
		return nil, fmt.Errorf("%w: vp8l prefix code incomplete", container.ErrInvalidBitstream)
	}

	codes := canonicalCodes(lengths)
	rev := make([]uint16, len(lengths))
	var subBits [1 << rootBits]int
	for s, l := range lengths {
		if l == 0 {
			continue
		}
		rev[s] = reverseBits(codes[s], int(l))
		if l > rootBits {
			r := rev[s] & rootMask
			subBits[r] = max(subBits[r], int(l)-rootBits)
		}
	}

	size := 1 << rootBits
	for _, b := range subBits {
		if b > 0 {
			size += 1 << b
		}
	}
	t := &huffmanTree{table: make([]huffmanCode, size)}
	off := 1 << rootBits
	for r, b := range subBits {
		if b > 0 {
			t.table[r] = huffmanCode{bits: uint8(b), link: true, value: uint16(off)}
			off += 1 << b
		}
	}
	for s, l := range lengths {
		if l == 0 {
			continue
		}
		code := int(rev[s])
		if l <= rootBits {
			for i := code; i < 1<<rootBits; i += 1 << l {
				t.table[i] = huffmanCode{bits: l, value: uint16(s)}
			}
			continue
		}
		root := t.table[code&rootMask]
		sub := t.table[root.value : int(root.value)+1<<root.bits]
		n := int(l) - rootBits
		for i := code >> rootBits; i < len(sub); i += 1 << n {
			sub[i] = huffmanCode{bits: uint8(n), value: uint16(s)}
		}
	}
	return t, nil
}

// readSymbol decodes one symbol. Running out of input latches the reader's
// error and yields an arbitrary symbol.
func (t *huffmanTree) readSymbol(br *bitio.LSBReader) int {
	if t.single {
		return t.symbol
	}
	v := br.PrefetchBits()
	e := t.table[v&rootMask]
	if e.link {
		br.SkipBits(rootBits)
		v >>= rootBits
		e = t.table[int(e.value)+int(v&(1<<e.bits-1))]
	}
	br.SkipBits(int(e.bits))
	return int(e.value)
}
