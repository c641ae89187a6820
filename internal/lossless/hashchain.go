package lossless

import "github.com/deepteams/webpcodec/internal/pool"

const (
	hashBits  = 18
	maxWindow = 1<<20 - planeCodes
	minMatch  = 3
)

func hashPair(a, b uint32) uint32 {
	return (a*0x1e35a7bd ^ b*0x9e3779b1) >> (32 - hashBits)
}

// hashChain indexes pixel pairs so earlier occurrences of the pair at a
// position can be walked nearest first.
type hashChain struct {
	head   []int32
	prev   []int32
	window int
	iters  int
}

func newHashChain(n, window, iters int) *hashChain {
	c := &hashChain{
		head:   pool.GetInt32(1 << hashBits),
		prev:   pool.GetInt32(n),
		window: window,
		iters:  iters,
	}
	for i := range c.head {
		c.head[i] = -1
	}
	return c
}

func (c *hashChain) release() {
	pool.PutInt32(c.head)
	pool.PutInt32(c.prev)
}

func (c *hashChain) insert(pix []uint32, pos int) {
	if pos+1 >= len(pix) {
		return
	}
	h := hashPair(pix[pos], pix[pos+1])
	c.prev[pos] = c.head[h]
	c.head[h] = int32(pos)
}

func matchLength(pix []uint32, a, b, limit int) int {
	n := 0
	for n < limit && pix[a+n] == pix[b+n] {
		n++
	}
	return n
}

// longestMatch returns the longest earlier match for pos. The previous
// pixel and the pixel above are always tried first.
func (c *hashChain) longestMatch(pix []uint32, pos, width int) (length, dist int) {
	limit := min(maxLength, len(pix)-pos)
	if limit < minMatch {
		return 0, 0
	}
	try := func(d int) {
		if d <= 0 || d > pos {
			return
		}
		if l := matchLength(pix, pos-d, pos, limit); l > length {
			length, dist = l, d
		}
	}
	try(1)
	try(width)
	h := hashPair(pix[pos], pix[pos+1])
	for cand, n := c.head[h], 0; cand >= 0 && n < c.iters && length < limit; cand, n = c.prev[cand], n+1 {
		d := pos - int(cand)
		if d > c.window {
			break
		}
		try(d)
	}
	return length, dist
}

// backwardRefs parses pix greedily into literals and copies.
func backwardRefs(pix []uint32, width int, o Options) []pixelRef {
	window, iters := lz77Params(o)
	refs := make([]pixelRef, 0, len(pix)/2+1)
	c := newHashChain(len(pix), window, iters)
	defer c.release()
	for pos := 0; pos < len(pix); {
		l, d := c.longestMatch(pix, pos, width)
		if l < minMatch {
			refs = append(refs, literal(pix[pos]))
			c.insert(pix, pos)
			pos++
			continue
		}
		refs = append(refs, pixelCopy(l, d))
		for end := pos + l; pos < end; pos++ {
			c.insert(pix, pos)
		}
	}
	return refs
}

// lz77Params derives the search window and chain depth from the effort
// settings.
func lz77Params(o Options) (window, iters int) {
	window = min(maxWindow, 1<<(12+2*o.Method))
	q := max(int(o.Quality), 1)
	iters = max(1, (4<<min(o.Method, 5))*q/100)
	return window, iters
}
