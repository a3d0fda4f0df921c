// Package buffer pools the staging slices the transfer drivers use
// for part uploads and ranged downloads.
package buffer

import (
	"sync"
)

// BytePool hands out byte slices from size-bucketed pools to keep the
// transfer hot path off the allocator. Requests larger than the
// biggest bucket are allocated directly.
type BytePool struct {
	pools map[int]*sync.Pool
	sizes []int
}

// Bucket sizes cover one listing row up to one multipart part.
var bucketSizes = []int{
	64 << 10,
	256 << 10,
	1 << 20,
	4 << 20,
	8 << 20,
	16 << 20,
	64 << 20,
}

// NewBytePool creates a pool with the standard buckets.
func NewBytePool() *BytePool {
	pools := make(map[int]*sync.Pool, len(bucketSizes))
	for _, size := range bucketSizes {
		size := size
		pools[size] = &sync.Pool{
			New: func() interface{} { return make([]byte, size) },
		}
	}
	return &BytePool{pools: pools, sizes: bucketSizes}
}

// Get returns a slice of exactly the requested length, backed by the
// smallest bucket that fits.
func (p *BytePool) Get(size int) []byte {
	for _, bucket := range p.sizes {
		if bucket >= size {
			buf := p.pools[bucket].Get().([]byte)
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// Put returns a slice to its bucket. Slices not originating from a
// bucket are left to the garbage collector.
func (p *BytePool) Put(buf []byte) {
	if buf == nil {
		return
	}
	pool, ok := p.pools[cap(buf)]
	if !ok {
		return
	}
	//nolint:staticcheck // SA6002: pooling slices by value is intended here
	pool.Put(buf[:cap(buf)])
}
