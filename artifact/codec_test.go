package artifact

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/sedlab/sedemu/compress"
	"github.com/sedlab/sedemu/emulator"
	"github.com/sedlab/sedemu/errs"
	"github.com/sedlab/sedemu/pca"
	"github.com/sedlab/sedemu/spectrum"
)

// trainedBasis fits a small basis on low-rank synthetic rows so artifact
// round trips exercise realistic values.
func trainedBasis(t *testing.T, binIndex, k int) *pca.Basis {
	t.Helper()

	rng := rand.New(rand.NewSource(41))
	const n, d = 24, 10
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, d)
		for j := range rows[i] {
			rows[i][j] = -18.0 +
				rng.NormFloat64()*math.Sin(float64(j+1)) +
				0.3*rng.NormFloat64()*math.Cos(2*float64(j))
		}
	}

	b, err := pca.Train(binIndex, rows, k)
	require.NoError(t, err)

	return b
}

// trainedEmulator fits a small emulator on a smooth params-to-coeffs map.
func trainedEmulator(t *testing.T, binIndex, k int) *emulator.Emulator {
	t.Helper()

	rng := rand.New(rand.NewSource(43))
	const n, p = 60, 3
	params := make([]spectrum.ParameterVector, n)
	coeffs := mat.NewDense(n, k, nil)
	for i := range params {
		params[i] = spectrum.ParameterVector{rng.Float64(), rng.Float64(), rng.Float64()}
		for j := 0; j < k; j++ {
			coeffs.Set(i, j, params[i][0]+0.5*params[i][1]*params[i][2]+0.1*float64(j))
		}
	}

	e, _, err := emulator.Train(binIndex, params, coeffs, emulator.DefaultConfig())
	require.NoError(t, err)

	return e
}

func requireBasisEqual(t *testing.T, want, got *pca.Basis) {
	t.Helper()

	require.Equal(t, want.BinIndex, got.BinIndex)
	require.Equal(t, want.EffectiveRank, got.EffectiveRank)
	require.Equal(t, want.SampleCount, got.SampleCount)
	require.Equal(t, want.Mean, got.Mean)
	require.Equal(t, want.SingularValues, got.SingularValues)
	require.Equal(t, want.ExplainedVariance, got.ExplainedVariance)
	require.True(t, mat.Equal(want.Components, got.Components))
}

func requireEmulatorEqual(t *testing.T, want, got *emulator.Emulator) {
	t.Helper()

	require.Equal(t, want.BinIndex, got.BinIndex)
	require.Equal(t, want.Degree, got.Degree)
	require.Equal(t, want.ParamShift, got.ParamShift)
	require.Equal(t, want.ParamScale, got.ParamScale)
	require.Equal(t, want.CoeffShift, got.CoeffShift)
	require.Equal(t, want.CoeffScale, got.CoeffScale)
	require.True(t, mat.Equal(want.Weights, got.Weights))
	require.Equal(t, want.Fit, got.Fit)
	require.Equal(t, want.Test, got.Test)
}

func TestBasisRoundTrip(t *testing.T) {
	basis := trainedBasis(t, 2, 4)

	for _, ct := range []compress.Type{
		compress.TypeNone, compress.TypeZstd, compress.TypeS2, compress.TypeLZ4,
	} {
		t.Run(ct.String(), func(t *testing.T) {
			data, err := EncodeBasis(basis, WithCompression(ct))
			require.NoError(t, err)

			got, err := DecodeBasis(data)
			require.NoError(t, err)
			requireBasisEqual(t, basis, got)
		})
	}
}

func TestBasisRoundTripBigEndian(t *testing.T) {
	basis := trainedBasis(t, 0, 3)

	data, err := EncodeBasis(basis, WithBigEndian())
	require.NoError(t, err)

	got, err := DecodeBasis(data)
	require.NoError(t, err)
	requireBasisEqual(t, basis, got)
}

func TestEmulatorRoundTrip(t *testing.T) {
	emu := trainedEmulator(t, 3, 5)

	data, err := EncodeEmulator(emu)
	require.NoError(t, err)

	got, err := DecodeEmulator(data)
	require.NoError(t, err)
	requireEmulatorEqual(t, emu, got)

	// The decoded emulator must predict identically to the original.
	params := spectrum.ParameterVector{0.2, 0.5, 0.9}
	want, err := emu.Predict(params)
	require.NoError(t, err)
	have, err := got.Predict(params)
	require.NoError(t, err)
	require.Equal(t, want, have)
}

func TestEmulatorMetricsPersisted(t *testing.T) {
	emu := trainedEmulator(t, 1, 4)
	require.Positive(t, emu.Fit.Samples)
	emu.Test = emulator.Metrics{
		RMSE:               0.013,
		MaxAbsErr:          0.21,
		FracVarUnexplained: 0.0042,
		Samples:            500,
	}

	data, err := EncodeEmulator(emu)
	require.NoError(t, err)

	got, err := DecodeEmulator(data)
	require.NoError(t, err)
	require.Equal(t, emu.Fit, got.Fit)
	require.Equal(t, emu.Test, got.Test)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	data, err := EncodeBasis(trainedBasis(t, 1, 2))
	require.NoError(t, err)

	data[1] ^= 0xFF
	_, err = DecodeBasis(data)
	require.ErrorIs(t, err, errs.ErrInvalidMagicNumber)
}

func TestDecodeRejectsWrongVersion(t *testing.T) {
	data, err := EncodeBasis(trainedBasis(t, 1, 2))
	require.NoError(t, err)

	// Flip the version bits inside the options field.
	data[0] ^= 0x04
	_, err = DecodeBasis(data)
	require.ErrorIs(t, err, errs.ErrUnsupportedVersion)
}

func TestDecodeRejectsUnknownCompression(t *testing.T) {
	data, err := EncodeBasis(trainedBasis(t, 1, 2))
	require.NoError(t, err)

	data[3] = 0x9
	_, err = DecodeBasis(data)
	require.ErrorIs(t, err, errs.ErrInvalidCompressionType)
}

func TestDecodeRejectsKindMismatch(t *testing.T) {
	data, err := EncodeBasis(trainedBasis(t, 1, 2))
	require.NoError(t, err)

	_, err = DecodeEmulator(data)
	require.ErrorIs(t, err, errs.ErrInvalidMagicNumber)
}

func TestDecodeRejectsCorruptedPayload(t *testing.T) {
	data, err := EncodeBasis(trainedBasis(t, 1, 2), WithCompression(compress.TypeNone))
	require.NoError(t, err)

	data[HeaderSize+5] ^= 0xFF
	_, err = DecodeBasis(data)
	require.ErrorIs(t, err, errs.ErrChecksumMismatch)
}

func TestDecodeRejectsTruncatedData(t *testing.T) {
	data, err := EncodeBasis(trainedBasis(t, 1, 2))
	require.NoError(t, err)

	_, err = DecodeBasis(data[:HeaderSize-4])
	require.ErrorIs(t, err, errs.ErrInvalidHeaderSize)

	_, err = DecodeBasis(data[:len(data)-1])
	require.ErrorIs(t, err, errs.ErrInvalidHeaderSize)
}

func TestFlagDefaults(t *testing.T) {
	flag := NewFlag(KindBasis)
	require.NoError(t, flag.Validate())
	require.True(t, flag.IsLittleEndian())
	require.Equal(t, FormatVersion, flag.Version())
	require.Equal(t, compress.TypeZstd, flag.CompressionType)

	flag.WithBigEndian()
	require.False(t, flag.IsLittleEndian())
	flag.WithLittleEndian()
	require.True(t, flag.IsLittleEndian())
}
