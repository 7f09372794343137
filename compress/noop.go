package compress

// NoOpCompressor bypasses compression entirely.
//
// Useful for debugging corpus payloads with external tools and for baseline
// measurements of codec overhead.
type NoOpCompressor struct{}

var _ Codec = (*NoOpCompressor)(nil)

// NewNoOpCompressor creates a new no-operation compressor.
func NewNoOpCompressor() NoOpCompressor {
	return NoOpCompressor{}
}

// Compress returns the input slice as-is, without copying.
//
// Note: the returned slice shares the same underlying memory as the input.
// Callers must not modify the input after calling this method if they plan
// to use the returned slice.
func (c NoOpCompressor) Compress(data []byte) ([]byte, error) {
	return data, nil
}

// Decompress returns the input slice as-is, without copying.
//
// Note: the returned slice shares the same underlying memory as the input.
func (c NoOpCompressor) Decompress(data []byte) ([]byte, error) {
	return data, nil
}
