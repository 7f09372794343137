package compress

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// fluxPayload builds a packed little-endian float64 payload shaped like a
// smooth log-flux spectrum, the dominant payload type in the corpus store.
func fluxPayload(n int) []byte {
	buf := make([]byte, 0, n*8)
	for i := 0; i < n; i++ {
		v := -18.0 + 2.0*math.Sin(float64(i)/40.0) + 0.001*float64(i%7)
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
	}

	return buf
}

func TestCodecRoundTrip(t *testing.T) {
	payload := fluxPayload(4096)

	for _, ct := range []Type{TypeNone, TypeZstd, TypeS2, TypeLZ4} {
		t.Run(ct.String(), func(t *testing.T) {
			codec, err := GetCodec(ct)
			require.NoError(t, err)

			compressed, err := codec.Compress(payload)
			require.NoError(t, err)

			restored, err := codec.Decompress(compressed)
			require.NoError(t, err)
			require.Equal(t, payload, restored)
		})
	}
}

func TestCompressionReducesFluxPayload(t *testing.T) {
	payload := fluxPayload(8192)

	for _, ct := range []Type{TypeZstd, TypeS2, TypeLZ4} {
		codec, err := GetCodec(ct)
		require.NoError(t, err)

		compressed, err := codec.Compress(payload)
		require.NoError(t, err)
		require.Less(t, len(compressed), len(payload), "%s should compress a smooth spectrum", ct)
	}
}

func TestEmptyPayload(t *testing.T) {
	for _, ct := range []Type{TypeNone, TypeZstd, TypeS2, TypeLZ4} {
		codec, err := GetCodec(ct)
		require.NoError(t, err)

		compressed, err := codec.Compress(nil)
		require.NoError(t, err)

		restored, err := codec.Decompress(compressed)
		require.NoError(t, err)
		require.Empty(t, restored)
	}
}

func TestDecompressCorruptedData(t *testing.T) {
	garbage := []byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01, 0x02, 0x03}

	for _, ct := range []Type{TypeZstd, TypeLZ4} {
		codec, err := GetCodec(ct)
		require.NoError(t, err)

		_, err = codec.Decompress(garbage)
		require.Error(t, err, "%s should reject corrupted data", ct)
	}
}

func TestGetCodecUnsupported(t *testing.T) {
	_, err := GetCodec(Type(0xff))
	require.Error(t, err)
}

func TestCreateCodec(t *testing.T) {
	for _, ct := range []Type{TypeNone, TypeZstd, TypeS2, TypeLZ4} {
		codec, err := CreateCodec(ct, "corpus")
		require.NoError(t, err)
		require.NotNil(t, codec)
	}

	_, err := CreateCodec(Type(0), "corpus")
	require.ErrorContains(t, err, "corpus")
}

func TestParseType(t *testing.T) {
	cases := map[string]Type{
		"none": TypeNone,
		"zstd": TypeZstd,
		"s2":   TypeS2,
		"lz4":  TypeLZ4,
	}
	for name, want := range cases {
		got, err := ParseType(name)
		require.NoError(t, err)
		require.Equal(t, want, got)
		require.True(t, got.Valid())
	}

	_, err := ParseType("gzip")
	require.Error(t, err)
	require.False(t, Type(0x7f).Valid())
}

func BenchmarkZstdCompressFlux(b *testing.B) {
	payload := fluxPayload(8192)
	codec := NewZstdCompressor()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = codec.Compress(payload)
	}
}
