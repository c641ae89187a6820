package pool

import (
	"strconv"
	"sync"
	"testing"
)

func TestBucketIndex(t *testing.T) {
	tests := []struct {
		size, want int
	}{
		{0, 0}, {1, 0}, {256, 0}, {257, 1}, {1024, 1}, {1025, 2},
		{4096, 2}, {16385, 4}, {262144, 5}, {262145, 6}, {Size1M, 6}, {4 * Size1M, 6},
	}
	for _, tt := range tests {
		if got := bucketIndex(tt.size); got != tt.want {
			t.Errorf("bucketIndex(%d) = %d, want %d", tt.size, got, tt.want)
		}
	}
}

func TestGet_Length(t *testing.T) {
	for _, size := range []int{0, 1, 255, 500, Size4K, Size1M, Size1M + 1, 3 * Size1M} {
		b := Get(size)
		if len(b) != size {
			t.Errorf("Get(%d): len = %d", size, len(b))
		}
		if size <= Size1M && cap(b) < sizes[bucketIndex(size)] {
			t.Errorf("Get(%d): cap = %d below its size class", size, cap(b))
		}
		Put(b)
	}
}

func TestGetTyped_Length(t *testing.T) {
	for _, size := range []int{0, 1, 100, Size64K, Size1M + 7} {
		i32 := GetInt32(size)
		u32 := GetUint32(size)
		if len(i32) != size || len(u32) != size {
			t.Errorf("size %d: len %d and %d", size, len(i32), len(u32))
		}
		PutInt32(i32)
		PutUint32(u32)
	}
}

func TestPut_FilesUnderServableClass(t *testing.T) {
	// A 3000-element buffer can serve the 1K class but not the 4K one.
	p := newBucketed[uint32]()
	p.put(make([]uint32, 3000))
	if got := p.get(Size4K); len(got) != Size4K {
		t.Fatalf("len = %d", len(got))
	}
	if got := p.get(Size1K); cap(got) < Size1K {
		t.Errorf("cap = %d", cap(got))
	}
}

func TestPut_IgnoresSmallSlices(t *testing.T) {
	Put(nil)
	Put(make([]byte, 10))
	PutInt32(make([]int32, 0, 255))
	if b := Get(Size256B); len(b) != Size256B {
		t.Errorf("len = %d", len(b))
	}
}

func TestConcurrentGetPut(t *testing.T) {
	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(seed int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				size := (seed*7919 + i*104729) % (Size256K + 1)
				b := GetUint32(size)
				for j := range b {
					b[j] = uint32(j)
				}
				PutUint32(b)
			}
		}(g)
	}
	wg.Wait()
}

func BenchmarkGetPut(b *testing.B) {
	for _, size := range []int{Size256B, Size64K, Size1M} {
		b.Run(strconv.Itoa(size), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				PutInt32(GetInt32(size))
			}
		})
	}
}

