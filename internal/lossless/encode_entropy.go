package lossless

// entropyBits is the tile size of the entropy image written by the
// region-splitting encoder.
const entropyBits = 5

// entropyGrouping assigns a prefix-code group to every tile of the image.
type entropyGrouping struct {
	bits       int
	tilesWide  int
	tilesHigh  int
	groups     []uint32 // per tile, nil when one group covers the image
	histograms []*histogram
}

func singleGroup(refs []pixelRef, width, cacheBits int) *entropyGrouping {
	return &entropyGrouping{histograms: []*histogram{refsHistogram(refs, width, cacheBits)}}
}

func (g *entropyGrouping) groupAt(pos, width int) int {
	if g.groups == nil {
		return 0
	}
	x, y := pos%width, pos/width
	return int(g.groups[(y>>g.bits)*g.tilesWide+x>>g.bits])
}

// image returns the entropy image: the group index in the red and green
// channels of each tile.
func (g *entropyGrouping) image() []uint32 {
	out := make([]uint32, len(g.groups))
	for i, grp := range g.groups {
		out[i] = argbBlack | grp<<8
	}
	return out
}

// groupTiles clusters tiles with similar statistics. Tiles are bucketed
// by their literal share and mean green, then buckets are merged while
// merging lowers the estimated size. It returns nil when a single group
// is at least as good.
func groupTiles(refs []pixelRef, width, height, cacheBits int) *entropyGrouping {
	tw, th := subSampleSize(width, entropyBits), subSampleSize(height, entropyBits)
	if tw*th < 4 {
		return nil
	}
	type tileStats struct {
		literals, pixels, green int
	}
	stats := make([]tileStats, tw*th)
	tileOf := func(pos int) int {
		x, y := pos%width, pos/width
		return (y>>entropyBits)*tw + x>>entropyBits
	}
	pos := 0
	for _, r := range refs {
		s := &stats[tileOf(pos)]
		s.pixels += int(r.len)
		if r.kind == refLiteral {
			s.literals++
			s.green += int(r.val>>8) & 0xff
		}
		pos += int(r.len)
	}

	const buckets = 16
	assign := make([]uint32, tw*th)
	for i, s := range stats {
		share, green := 0, 0
		if s.pixels > 0 {
			share = min(4*s.literals/s.pixels, 3)
		}
		if s.literals > 0 {
			green = s.green / s.literals >> 6
		}
		assign[i] = uint32(share*4 + green)
	}

	hists := make([]*histogram, buckets)
	for i := range hists {
		hists[i] = newHistogram(cacheBits)
	}
	pos = 0
	for _, r := range refs {
		hists[assign[tileOf(pos)]].add(r, width)
		pos += int(r.len)
	}
	single := newHistogram(cacheBits)
	for _, h := range hists {
		single.merge(h)
	}

	// Greedy pairwise merging of the occupied buckets.
	var occupied [buckets]bool
	for _, a := range assign {
		occupied[a] = true
	}
	live := make([]int, 0, buckets)
	for i, ok := range occupied {
		if ok {
			live = append(live, i)
		}
	}
	for len(live) > 1 {
		bi, bj, bestGain := -1, -1, 0.0
		var bestMerged *histogram
		for a := 0; a < len(live); a++ {
			for b := a + 1; b < len(live); b++ {
				ha, hb := hists[live[a]], hists[live[b]]
				m := newHistogram(cacheBits)
				m.merge(ha)
				m.merge(hb)
				if gain := ha.cost() + hb.cost() - m.cost(); gain > bestGain {
					bi, bj, bestGain, bestMerged = a, b, gain, m
				}
			}
		}
		if bi < 0 {
			break
		}
		hists[live[bi]] = bestMerged
		redirect(assign, live[bj], live[bi])
		live = append(live[:bj], live[bj+1:]...)
	}
	if len(live) < 2 {
		return nil
	}

	// Renumber the surviving groups densely.
	g := &entropyGrouping{bits: entropyBits, tilesWide: tw, tilesHigh: th, groups: assign}
	index := make(map[uint32]uint32, len(live))
	for n, b := range live {
		index[uint32(b)] = uint32(n)
		g.histograms = append(g.histograms, hists[b])
	}
	total := 0.0
	for _, h := range g.histograms {
		total += h.cost()
	}
	// Each tile costs a few bits in the entropy image.
	if total+float64(2*tw*th) >= single.cost() {
		return nil
	}
	for i, a := range assign {
		assign[i] = index[a]
	}
	return g
}

func redirect(assign []uint32, from, to int) {
	for i, a := range assign {
		if a == uint32(from) {
			assign[i] = uint32(to)
		}
	}
}
