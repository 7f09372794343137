package generator

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sedlab/sedemu/errs"
	"github.com/sedlab/sedemu/spectrum"
)

func TestSyntheticDeterministic(t *testing.T) {
	grid := spectrum.LinearGrid(1000, 60000, 512)
	gen := NewSynthetic(grid)
	params := spectrum.ParameterVector{0.3, 0.7, 0.1, 0.9}

	a, err := gen.Generate(context.Background(), params, 42)
	require.NoError(t, err)
	b, err := gen.Generate(context.Background(), params, 42)
	require.NoError(t, err)

	require.Equal(t, a.Wave, b.Wave)
	require.Equal(t, a.LogFlux, b.LogFlux)
	require.NoError(t, a.Validate())
}

func TestSyntheticSeedSensitivity(t *testing.T) {
	grid := spectrum.LinearGrid(1000, 60000, 128)
	gen := NewSynthetic(grid)
	params := spectrum.ParameterVector{0.5, 0.5}

	a, err := gen.Generate(context.Background(), params, 1)
	require.NoError(t, err)
	b, err := gen.Generate(context.Background(), params, 2)
	require.NoError(t, err)
	require.NotEqual(t, a.LogFlux, b.LogFlux)
}

func TestSyntheticParameterSensitivity(t *testing.T) {
	grid := spectrum.LinearGrid(1000, 60000, 128)
	gen := NewSynthetic(grid)

	a, err := gen.Generate(context.Background(), spectrum.ParameterVector{0.1, 0.2}, 7)
	require.NoError(t, err)
	b, err := gen.Generate(context.Background(), spectrum.ParameterVector{0.9, 0.2}, 7)
	require.NoError(t, err)
	require.NotEqual(t, a.LogFlux, b.LogFlux)
}

func TestSyntheticRejectsBadParams(t *testing.T) {
	gen := NewSynthetic(spectrum.LinearGrid(1000, 60000, 32))

	_, err := gen.Generate(context.Background(), nil, 0)
	require.ErrorIs(t, err, errs.ErrGenerationFailed)

	_, err = gen.Generate(context.Background(), spectrum.ParameterVector{math.NaN()}, 0)
	require.ErrorIs(t, err, errs.ErrGenerationFailed)
}

func TestSyntheticContextCancelled(t *testing.T) {
	gen := NewSynthetic(spectrum.LinearGrid(1000, 60000, 32))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gen.Generate(ctx, spectrum.ParameterVector{0.5}, 0)
	require.ErrorIs(t, err, context.Canceled)
}

func TestPriorSample(t *testing.T) {
	prior := DefaultPrior()
	require.NoError(t, prior.Validate())
	require.Equal(t, 10, prior.Dim())

	pv := prior.SampleAt("train", 3, 99, 0)
	require.Len(t, pv, prior.Dim())
	for i, v := range pv {
		require.GreaterOrEqual(t, v, prior.Lo[i])
		require.LessOrEqual(t, v, prior.Hi[i])
	}
}

func TestPriorSampleAtDeterministic(t *testing.T) {
	prior := DefaultPrior()

	a := prior.SampleAt("train", 5, 1234, 7)
	b := prior.SampleAt("train", 5, 1234, 7)
	require.Equal(t, a, b)

	c := prior.SampleAt("train", 5, 1235, 7)
	require.NotEqual(t, a, c)

	d := prior.SampleAt("test", 5, 1234, 7)
	require.NotEqual(t, a, d)
}

func TestPriorValidate(t *testing.T) {
	bad := Prior{Lo: []float64{0, 1}, Hi: []float64{1}}
	require.Error(t, bad.Validate())

	inverted := Prior{Lo: []float64{2}, Hi: []float64{1}}
	require.Error(t, inverted.Validate())
}
