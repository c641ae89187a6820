package lossless

const cacheHashMul = 0x1e35a7bd

// colorCache is the hash-addressed table of recently coded ARGB values
// shared by the encoder and decoder.
type colorCache struct {
	colors []uint32
	shift  uint
}

func newColorCache(bits int) *colorCache {
	return &colorCache{
		colors: make([]uint32, 1<<bits),
		shift:  uint(32 - bits),
	}
}

func (c *colorCache) key(argb uint32) int {
	return int((argb * cacheHashMul) >> c.shift)
}

func (c *colorCache) insert(argb uint32) {
	c.colors[c.key(argb)] = argb
}

func (c *colorCache) lookup(key int) uint32 {
	return c.colors[key]
}

// contains reports the slot of argb if the cache currently holds it.
func (c *colorCache) contains(argb uint32) (int, bool) {
	k := c.key(argb)
	return k, c.colors[k] == argb
}
