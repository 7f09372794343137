// Package pool provides reusable byte buffers for the corpus and artifact
// encode paths, where every sample write serializes a flux vector.
package pool

import "sync"

const (
	// BufferDefaultSize is the initial capacity of pooled buffers. A typical
	// single-bin flux vector is a few thousand float64 samples, so 64KiB
	// absorbs most encodes without growth.
	BufferDefaultSize = 64 * 1024

	// BufferMaxThreshold is the largest buffer the pool retains. Buffers
	// grown beyond this (e.g. full-grid SEDs) are dropped instead of pinned.
	BufferMaxThreshold = 1024 * 1024
)

// ByteBuffer is a minimal growable byte buffer that can be pooled.
type ByteBuffer struct {
	// B is the underlying byte slice.
	B []byte
}

// NewByteBuffer creates a new ByteBuffer with the specified initial capacity.
func NewByteBuffer(size int) *ByteBuffer {
	return &ByteBuffer{B: make([]byte, 0, size)}
}

// Bytes returns the underlying byte slice.
func (bb *ByteBuffer) Bytes() []byte {
	return bb.B
}

// Len returns the length of the buffer.
func (bb *ByteBuffer) Len() int {
	return len(bb.B)
}

// Cap returns the capacity of the buffer.
func (bb *ByteBuffer) Cap() int {
	return cap(bb.B)
}

// Reset resets the buffer to be empty, retaining the allocated memory.
func (bb *ByteBuffer) Reset() {
	bb.B = bb.B[:0]
}

// MustWrite appends data to the buffer, growing it if necessary.
func (bb *ByteBuffer) MustWrite(data []byte) {
	bb.B = append(bb.B, data...)
}

var bufferPool = sync.Pool{
	New: func() any {
		return NewByteBuffer(BufferDefaultSize)
	},
}

// GetBuffer returns a reset buffer from the pool.
func GetBuffer() *ByteBuffer {
	bb, _ := bufferPool.Get().(*ByteBuffer)
	bb.Reset()

	return bb
}

// PutBuffer returns a buffer to the pool. Oversized buffers are dropped so
// one large SED encode does not pin memory for the life of the process.
func PutBuffer(bb *ByteBuffer) {
	if bb == nil || bb.Cap() > BufferMaxThreshold {
		return
	}
	bufferPool.Put(bb)
}
