package corpus

import (
	"fmt"
	"math"

	"github.com/sedlab/sedemu/compress"
	"github.com/sedlab/sedemu/endian"
	"github.com/sedlab/sedemu/errs"
	"github.com/sedlab/sedemu/internal/pool"
)

// Stored vectors are packed little-endian float64 payloads, compressed and
// prefixed with a single codec-type byte so each blob is self-describing.
// Readers never need the writer's configuration to decode a corpus.

func encodeFloats(engine endian.EndianEngine, codec compress.Codec, ct compress.Type, vals []float64) ([]byte, error) {
	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	for _, v := range vals {
		buf.B = engine.AppendUint64(buf.B, math.Float64bits(v))
	}

	compressed, err := codec.Compress(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("compress vector: %w", err)
	}

	out := make([]byte, 1, 1+len(compressed))
	out[0] = byte(ct)
	out = append(out, compressed...)

	return out, nil
}

func decodeFloats(engine endian.EndianEngine, blob []byte) ([]float64, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("decode vector: empty blob")
	}

	ct := compress.Type(blob[0])
	codec, err := compress.GetCodec(ct)
	if err != nil {
		return nil, fmt.Errorf("decode vector: %w", err)
	}

	raw, err := codec.Decompress(blob[1:])
	if err != nil {
		return nil, fmt.Errorf("decompress vector: %w", err)
	}
	if len(raw)%8 != 0 {
		return nil, fmt.Errorf("decode vector: %w: payload length %d not a multiple of 8",
			errs.ErrChecksumMismatch, len(raw))
	}

	vals := make([]float64, len(raw)/8)
	for i := range vals {
		vals[i] = math.Float64frombits(engine.Uint64(raw[i*8:]))
	}

	return vals, nil
}
