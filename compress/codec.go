// Package compress provides the compression codec layer for corpus flux
// blobs and artifact payload sections.
//
// Flux vectors are stored as packed little-endian float64 payloads. Log-flux
// spectra are smooth and highly redundant, so even fast codecs reclaim a
// large fraction of the raw size. The tradeoffs are the usual ones:
//
//   - Zstd: best ratio, used for the durable corpus store (write once,
//     read every training run)
//   - S2/LZ4: much faster, useful for scratch corpora and large artifact
//     payloads read at model-load time
//   - None: byte passthrough for debugging and baselines
package compress

import (
	"fmt"
)

// Type identifies a compression algorithm in corpus and artifact headers.
type Type uint8

const (
	// TypeNone stores payloads uncompressed.
	TypeNone Type = 0x1
	// TypeZstd compresses payloads with Zstandard.
	TypeZstd Type = 0x2
	// TypeS2 compresses payloads with S2.
	TypeS2 Type = 0x3
	// TypeLZ4 compresses payloads with LZ4 block format.
	TypeLZ4 Type = 0x4
)

func (t Type) String() string {
	switch t {
	case TypeNone:
		return "None"
	case TypeZstd:
		return "Zstd"
	case TypeS2:
		return "S2"
	case TypeLZ4:
		return "LZ4"
	default:
		return "Unknown"
	}
}

// Valid reports whether t names a supported codec.
func (t Type) Valid() bool {
	switch t {
	case TypeNone, TypeZstd, TypeS2, TypeLZ4:
		return true
	default:
		return false
	}
}

// ParseType maps a codec name (as accepted on the command line) to a Type.
func ParseType(name string) (Type, error) {
	switch name {
	case "none":
		return TypeNone, nil
	case "zstd":
		return TypeZstd, nil
	case "s2":
		return TypeS2, nil
	case "lz4":
		return TypeLZ4, nil
	default:
		return 0, fmt.Errorf("unknown compression type: %q", name)
	}
}

// Compressor compresses a payload.
//
// Memory management:
//   - Returned slice is newly allocated and owned by the caller
//   - Input slice is not modified
//   - Internal buffers may be reused for efficiency
type Compressor interface {
	Compress(data []byte) ([]byte, error)
}

// Decompressor restores a payload compressed with the matching Compressor.
//
// Implementations validate the input format and return an error if the data
// is corrupted or was produced by an incompatible algorithm.
type Decompressor interface {
	Decompress(data []byte) ([]byte, error)
}

// Codec combines both compression and decompression capabilities.
//
// Codec implementations in this package are stateless or internally pooled
// and safe for concurrent use, which matters because bin trainers decompress
// corpus payloads from multiple goroutines.
type Codec interface {
	Compressor
	Decompressor
}

var builtinCodecs = map[Type]Codec{
	TypeNone: NewNoOpCompressor(),
	TypeZstd: NewZstdCompressor(),
	TypeS2:   NewS2Compressor(),
	TypeLZ4:  NewLZ4Compressor(),
}

// GetCodec retrieves the built-in Codec for the specified compression type.
func GetCodec(t Type) (Codec, error) {
	if codec, ok := builtinCodecs[t]; ok {
		return codec, nil
	}

	return nil, fmt.Errorf("unsupported compression type: %s", t)
}

// CreateCodec creates a Codec for the specified compression type. The target
// string names the consumer (e.g. "corpus", "artifact") for error messages.
func CreateCodec(t Type, target string) (Codec, error) {
	switch t {
	case TypeNone:
		return NewNoOpCompressor(), nil
	case TypeZstd:
		return NewZstdCompressor(), nil
	case TypeS2:
		return NewS2Compressor(), nil
	case TypeLZ4:
		return NewLZ4Compressor(), nil
	default:
		return nil, fmt.Errorf("invalid %s compression: %s", target, t)
	}
}
