// Package pools provides object pooling for reducing GC pressure.
//
// Bulk transfers move whole objects through fixed-size chunks; pooling the
// chunks keeps steady-state imports and exports allocation-free.
package pools

import "sync"

// ChunkSize is the size of a pooled transfer chunk.
const ChunkSize = 1024

var chunkPool = sync.Pool{
	New: func() any {
		b := make([]byte, ChunkSize)
		return &b
	},
}

// GetChunk returns a ChunkSize byte slice from the pool. Contents are
// unspecified; callers must not read past what they wrote.
func GetChunk() []byte {
	return *chunkPool.Get().(*[]byte)
}

// PutChunk returns a chunk to the pool. Slices of the wrong capacity are
// dropped rather than pooled.
func PutChunk(b []byte) {
	if cap(b) != ChunkSize {
		return
	}
	b = b[:ChunkSize]
	chunkPool.Put(&b)
}
