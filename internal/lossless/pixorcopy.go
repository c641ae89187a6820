package lossless

// refKind tells how a pixelRef is coded.
type refKind uint8

const (
	refLiteral refKind = iota
	refCache
	refCopy
)

// pixelRef is one symbol of the backward-reference stream: a literal
// ARGB value, a colour-cache hit or a copy of earlier pixels.
type pixelRef struct {
	kind refKind
	len  uint16 // pixels covered, 1 for literals and cache hits
	val  uint32 // ARGB, cache key or pixel distance
}

func literal(argb uint32) pixelRef { return pixelRef{kind: refLiteral, len: 1, val: argb} }

func cacheHit(key int) pixelRef { return pixelRef{kind: refCache, len: 1, val: uint32(key)} }

func pixelCopy(length, dist int) pixelRef {
	return pixelRef{kind: refCopy, len: uint16(length), val: uint32(dist)}
}

// withCache rewrites literals that the colour cache would hold as cache
// hits, replaying the cache the way the decoder fills it.
func withCache(refs []pixelRef, pix []uint32, bits int) []pixelRef {
	if bits == 0 {
		return refs
	}
	cache := newColorCache(bits)
	out := make([]pixelRef, len(refs))
	pos := 0
	for i, r := range refs {
		out[i] = r
		if r.kind == refLiteral {
			if k, ok := cache.contains(r.val); ok {
				out[i] = cacheHit(k)
			}
		}
		for j := 0; j < int(r.len); j++ {
			cache.insert(pix[pos+j])
		}
		pos += int(r.len)
	}
	return out
}
