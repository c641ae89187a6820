// Package pool provides bucketed sync.Pool instances for the scratch
// buffers of the codecs. Buffers are organised by size class to limit
// waste.
package pool

import "sync"

// Size classes, in elements.
const (
	Size256B = 256
	Size1K   = 1024
	Size4K   = 4096
	Size16K  = 16384
	Size64K  = 65536
	Size256K = 262144
	Size1M   = 1048576
)

var sizes = [...]int{Size256B, Size1K, Size4K, Size16K, Size64K, Size256K, Size1M}

// bucketIndex returns the pool index for a given size.
func bucketIndex(size int) int {
	for i, s := range sizes[:len(sizes)-1] {
		if size <= s {
			return i
		}
	}
	return len(sizes) - 1
}

// bucketed is a set of pools of []T, one per size class.
type bucketed[T any] struct {
	pools [len(sizes)]sync.Pool
}

func newBucketed[T any]() *bucketed[T] {
	b := &bucketed[T]{}
	for i := range b.pools {
		sz := sizes[i]
		b.pools[i].New = func() any {
			s := make([]T, sz)
			return &s
		}
	}
	return b
}

func (b *bucketed[T]) get(size int) []T {
	sp := b.pools[bucketIndex(size)].Get().(*[]T)
	s := *sp
	if cap(s) < size {
		return make([]T, size)
	}
	return s[:size]
}

func (b *bucketed[T]) put(s []T) {
	c := cap(s)
	if c < Size256B {
		return
	}
	// A buffer is filed under the largest class it can fully serve.
	idx := bucketIndex(c)
	if sizes[idx] > c {
		idx--
	}
	s = s[:c]
	b.pools[idx].Put(&s)
}

var (
	bytePool   = newBucketed[byte]()
	int32Pool  = newBucketed[int32]()
	uint32Pool = newBucketed[uint32]()
)

// Get returns a byte slice of length size. The contents are not cleared.
// The caller should call Put when done.
func Get(size int) []byte { return bytePool.get(size) }

// Put returns a byte slice obtained from Get.
func Put(b []byte) { bytePool.put(b) }

// GetInt32 returns an int32 slice of length size with unspecified contents.
func GetInt32(size int) []int32 { return int32Pool.get(size) }

// PutInt32 returns a slice obtained from GetInt32.
func PutInt32(s []int32) { int32Pool.put(s) }

// GetUint32 returns a uint32 slice of length size with unspecified contents.
func GetUint32(size int) []uint32 { return uint32Pool.get(size) }

// PutUint32 returns a slice obtained from GetUint32.
func PutUint32(s []uint32) { uint32Pool.put(s) }
