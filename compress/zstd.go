package compress

// ZstdCompressor provides Zstandard compression for durable corpus payloads.
//
// Zstd trades compression speed for ratio, which fits the corpus store's
// write-once, read-many access pattern: a training corpus is generated once
// and then re-read by every basis and emulator training run.
//
// Two implementations exist behind build tags:
//   - default: pure-Go klauspost/compress/zstd with pooled encoders/decoders
//   - gozstd tag: cgo bindings to libzstd for hosts where cgo is acceptable
type ZstdCompressor struct{}

var _ Codec = (*ZstdCompressor)(nil)

// NewZstdCompressor creates a new Zstd compressor with default settings.
func NewZstdCompressor() ZstdCompressor {
	return ZstdCompressor{}
}
