package artifact

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/sedlab/sedemu/compress"
	"github.com/sedlab/sedemu/emulator"
	"github.com/sedlab/sedemu/endian"
	"github.com/sedlab/sedemu/errs"
	"github.com/sedlab/sedemu/internal/hash"
	"github.com/sedlab/sedemu/internal/options"
	"github.com/sedlab/sedemu/pca"
)

type encodeConfig struct {
	flag Flag
}

// EncodeOption configures artifact encoding.
type EncodeOption = options.Option[*encodeConfig]

// WithCompression selects the payload codec. Default is zstd.
func WithCompression(ct compress.Type) EncodeOption {
	return options.New(func(cfg *encodeConfig) error {
		if !ct.Valid() {
			return fmt.Errorf("artifact: unknown compression type %d", ct)
		}
		cfg.flag.CompressionType = ct

		return nil
	})
}

// WithBigEndian writes the header fields and payload in big-endian byte
// order. Default is little-endian.
func WithBigEndian() EncodeOption {
	return options.NoError(func(cfg *encodeConfig) {
		cfg.flag.WithBigEndian()
	})
}

// WithLittleEndian writes the header fields and payload in little-endian
// byte order. This is the default.
func WithLittleEndian() EncodeOption {
	return options.NoError(func(cfg *encodeConfig) {
		cfg.flag.WithLittleEndian()
	})
}

// EncodeBasis serializes a trained PCA basis into the artifact format.
//
// Parameters:
//   - b: Trained basis to serialize
//   - opts: Optional compression and endianness overrides
//
// Returns:
//   - []byte: Header plus compressed payload
//   - error: Option validation or compression errors
func EncodeBasis(b *pca.Basis, opts ...EncodeOption) ([]byte, error) {
	cfg := encodeConfig{flag: NewFlag(KindBasis)}
	if err := options.Apply(&cfg, opts...); err != nil {
		return nil, err
	}

	k := b.K()
	d := b.Dim()
	engine := cfg.flag.GetEndianEngine()

	raw := make([]byte, 0, 8+(len(b.Mean)+2*k+k*d)*8)
	raw = engine.AppendUint32(raw, uint32(b.EffectiveRank))
	raw = engine.AppendUint32(raw, uint32(b.SampleCount))
	raw = appendFloats(engine, raw, b.Mean)
	raw = appendFloats(engine, raw, b.SingularValues)
	raw = appendFloats(engine, raw, b.ExplainedVariance)
	raw = appendFloats(engine, raw, b.Components.RawMatrix().Data)

	return seal(cfg.flag, raw, Header{
		BinIndex:   uint32(b.BinIndex),
		Components: uint32(k),
		Dim:        uint32(d),
	})
}

// DecodeBasis deserializes a PCA basis artifact produced by EncodeBasis.
//
// Returns:
//   - *pca.Basis: Reconstructed basis
//   - error: ErrInvalidMagicNumber, ErrUnsupportedVersion,
//     ErrInvalidHeaderSize, ErrChecksumMismatch, or decompression errors
func DecodeBasis(data []byte) (*pca.Basis, error) {
	hdr, raw, err := open(data, KindBasis)
	if err != nil {
		return nil, err
	}

	k := int(hdr.Components)
	d := int(hdr.Dim)
	want := 8 + (d+2*k+k*d)*8
	if len(raw) != want {
		return nil, fmt.Errorf("%w: basis payload is %d bytes, want %d",
			errs.ErrInvalidHeaderSize, len(raw), want)
	}

	engine := hdr.Flag.GetEndianEngine()
	b := &pca.Basis{
		BinIndex:      int(hdr.BinIndex),
		EffectiveRank: int(engine.Uint32(raw[0:4])),
		SampleCount:   int(engine.Uint32(raw[4:8])),
	}
	raw = raw[8:]
	b.Mean, raw = readFloats(engine, raw, d)
	b.SingularValues, raw = readFloats(engine, raw, k)
	b.ExplainedVariance, raw = readFloats(engine, raw, k)

	var comps []float64
	comps, _ = readFloats(engine, raw, k*d)
	b.Components = mat.NewDense(k, d, comps)

	return b, nil
}

// EncodeEmulator serializes a trained emulator into the artifact format,
// including its fit and test metrics.
func EncodeEmulator(e *emulator.Emulator, opts ...EncodeOption) ([]byte, error) {
	cfg := encodeConfig{flag: NewFlag(KindEmulator)}
	if err := options.Apply(&cfg, opts...); err != nil {
		return nil, err
	}

	p := e.NumParams()
	k := e.K()
	engine := cfg.flag.GetEndianEngine()
	nFeat := emulator.FeatureCount(p, e.Degree)

	raw := make([]byte, 0, 2*metricsSize+(2*p+2*k+nFeat*k)*8)
	raw = appendMetrics(engine, raw, e.Fit)
	raw = appendMetrics(engine, raw, e.Test)
	raw = appendFloats(engine, raw, e.ParamShift)
	raw = appendFloats(engine, raw, e.ParamScale)
	raw = appendFloats(engine, raw, e.CoeffShift)
	raw = appendFloats(engine, raw, e.CoeffScale)
	raw = appendFloats(engine, raw, e.Weights.RawMatrix().Data)

	return seal(cfg.flag, raw, Header{
		BinIndex:   uint32(e.BinIndex),
		Components: uint32(k),
		Dim:        uint32(e.Degree),
		ParamDim:   uint32(p),
	})
}

// DecodeEmulator deserializes an emulator artifact produced by EncodeEmulator.
func DecodeEmulator(data []byte) (*emulator.Emulator, error) {
	hdr, raw, err := open(data, KindEmulator)
	if err != nil {
		return nil, err
	}

	k := int(hdr.Components)
	p := int(hdr.ParamDim)
	degree := int(hdr.Dim)
	nFeat := emulator.FeatureCount(p, degree)
	want := 2*metricsSize + (2*p+2*k+nFeat*k)*8
	if len(raw) != want {
		return nil, fmt.Errorf("%w: emulator payload is %d bytes, want %d",
			errs.ErrInvalidHeaderSize, len(raw), want)
	}

	engine := hdr.Flag.GetEndianEngine()
	e := &emulator.Emulator{
		BinIndex: int(hdr.BinIndex),
		Degree:   degree,
	}
	e.Fit, raw = readMetrics(engine, raw)
	e.Test, raw = readMetrics(engine, raw)
	e.ParamShift, raw = readFloats(engine, raw, p)
	e.ParamScale, raw = readFloats(engine, raw, p)
	e.CoeffShift, raw = readFloats(engine, raw, k)
	e.CoeffScale, raw = readFloats(engine, raw, k)

	var weights []float64
	weights, _ = readFloats(engine, raw, nFeat*k)
	e.Weights = mat.NewDense(nFeat, k, weights)

	return e, nil
}

// seal compresses the raw payload, stamps size and checksum into the header
// and returns header plus payload.
func seal(flag Flag, raw []byte, hdr Header) ([]byte, error) {
	codec, err := compress.GetCodec(flag.CompressionType)
	if err != nil {
		return nil, err
	}

	payload, err := codec.Compress(raw)
	if err != nil {
		return nil, fmt.Errorf("compress artifact payload: %w", err)
	}

	hdr.Flag = flag
	hdr.PayloadSize = uint32(len(payload))
	hdr.Checksum = hash.Sum(payload)

	out := make([]byte, 0, HeaderSize+len(payload))
	out = append(out, hdr.Bytes()...)
	out = append(out, payload...)

	return out, nil
}

// open parses and validates the header, verifies the checksum and returns
// the decompressed payload.
func open(data []byte, kind Kind) (Header, []byte, error) {
	var hdr Header
	if err := hdr.Parse(data); err != nil {
		return Header{}, nil, err
	}
	if hdr.Flag.Kind != kind {
		return Header{}, nil, fmt.Errorf("%w: artifact kind is %d, want %d",
			errs.ErrInvalidMagicNumber, hdr.Flag.Kind, kind)
	}
	if len(data) != HeaderSize+int(hdr.PayloadSize) {
		return Header{}, nil, errs.ErrInvalidHeaderSize
	}

	payload := data[HeaderSize:]
	if hash.Sum(payload) != hdr.Checksum {
		return Header{}, nil, errs.ErrChecksumMismatch
	}

	codec, err := compress.GetCodec(hdr.Flag.CompressionType)
	if err != nil {
		return Header{}, nil, err
	}
	raw, err := codec.Decompress(payload)
	if err != nil {
		return Header{}, nil, fmt.Errorf("decompress artifact payload: %w", err)
	}

	return hdr, raw, nil
}

// metricsSize is the encoded size of one emulator.Metrics block: three
// float64 values plus a uint32 sample count.
const metricsSize = 3*8 + 4

func appendMetrics(engine endian.EndianEngine, dst []byte, m emulator.Metrics) []byte {
	dst = engine.AppendUint64(dst, math.Float64bits(m.RMSE))
	dst = engine.AppendUint64(dst, math.Float64bits(m.MaxAbsErr))
	dst = engine.AppendUint64(dst, math.Float64bits(m.FracVarUnexplained))

	return engine.AppendUint32(dst, uint32(m.Samples))
}

func readMetrics(engine endian.EndianEngine, raw []byte) (emulator.Metrics, []byte) {
	m := emulator.Metrics{
		RMSE:               math.Float64frombits(engine.Uint64(raw[0:8])),
		MaxAbsErr:          math.Float64frombits(engine.Uint64(raw[8:16])),
		FracVarUnexplained: math.Float64frombits(engine.Uint64(raw[16:24])),
		Samples:            int(engine.Uint32(raw[24:28])),
	}

	return m, raw[metricsSize:]
}

func appendFloats(engine endian.EndianEngine, dst []byte, vals []float64) []byte {
	for _, v := range vals {
		dst = engine.AppendUint64(dst, math.Float64bits(v))
	}

	return dst
}

// readFloats decodes n float64 values from the front of raw and returns the
// remainder of raw.
func readFloats(engine endian.EndianEngine, raw []byte, n int) ([]float64, []byte) {
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = math.Float64frombits(engine.Uint64(raw[i*8 : i*8+8]))
	}

	return vals, raw[n*8:]
}
