package pca

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/sedlab/sedemu/errs"
)

// syntheticRows builds sample flux rows from a small number of latent
// factors plus noise, so the data has a known low-rank structure.
func syntheticRows(rng *rand.Rand, n, d, factors int, noise float64) [][]float64 {
	loadings := make([][]float64, factors)
	for f := range loadings {
		loadings[f] = make([]float64, d)
		for j := range loadings[f] {
			loadings[f][j] = math.Sin(float64(f+1)*float64(j)/float64(d)*6.28) / float64(f+1)
		}
	}

	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, d)
		for f := 0; f < factors; f++ {
			w := rng.NormFloat64()
			for j := 0; j < d; j++ {
				rows[i][j] += w * loadings[f][j]
			}
		}
		for j := 0; j < d; j++ {
			rows[i][j] += -18.0 + noise*rng.NormFloat64()
		}
	}

	return rows
}

func TestTrainBasisShape(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	rows := syntheticRows(rng, 200, 64, 5, 0.01)

	basis, err := Train(0, rows, 10)
	require.NoError(t, err)
	require.Equal(t, 10, basis.K())
	require.Equal(t, 64, basis.Dim())
	require.Len(t, basis.Mean, 64)
	require.Len(t, basis.SingularValues, 10)
	require.Equal(t, 200, basis.SampleCount)
}

func TestTrainOrthonormalComponents(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	rows := syntheticRows(rng, 100, 32, 4, 0.05)

	basis, err := Train(1, rows, 8)
	require.NoError(t, err)

	for a := 0; a < basis.K(); a++ {
		for b := 0; b < basis.K(); b++ {
			dot := 0.0
			for j := 0; j < basis.Dim(); j++ {
				dot += basis.Components.At(a, j) * basis.Components.At(b, j)
			}
			if a == b {
				require.InDelta(t, 1.0, dot, 1e-10)
			} else {
				require.InDelta(t, 0.0, dot, 1e-10)
			}
		}
	}
}

func TestSingularValuesDescending(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	rows := syntheticRows(rng, 150, 40, 6, 0.02)

	basis, err := Train(0, rows, 12)
	require.NoError(t, err)

	for i := 1; i < len(basis.SingularValues); i++ {
		require.LessOrEqual(t, basis.SingularValues[i], basis.SingularValues[i-1])
	}
	for _, ev := range basis.ExplainedVariance {
		require.GreaterOrEqual(t, ev, 0.0)
		require.LessOrEqual(t, ev, 1.0)
	}
}

func TestReconstructionErrorNonIncreasingInK(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	rows := syntheticRows(rng, 120, 48, 8, 0.1)
	target := rows[17]

	prev := math.Inf(1)
	for _, k := range []int{2, 4, 8, 16, 32} {
		basis, err := Train(0, rows, k)
		require.NoError(t, err)

		rmse, err := basis.ReconstructionError(target)
		require.NoError(t, err)
		require.LessOrEqual(t, rmse, prev+1e-12, "k=%d", k)
		prev = rmse
	}
}

func TestFullRankReconstructionIsExact(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	d := 16
	rows := syntheticRows(rng, 200, d, d, 0.5)

	basis, err := Train(0, rows, d)
	require.NoError(t, err)

	rmse, err := basis.ReconstructionError(rows[3])
	require.NoError(t, err)
	require.InDelta(t, 0.0, rmse, 1e-9)
}

func TestTrainDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	rows := syntheticRows(rng, 80, 24, 4, 0.05)

	a, err := Train(2, rows, 6)
	require.NoError(t, err)
	b, err := Train(2, rows, 6)
	require.NoError(t, err)

	require.Equal(t, a.Mean, b.Mean)
	require.Equal(t, a.SingularValues, b.SingularValues)
	require.True(t, mat.Equal(a.Components, b.Components))
}

func TestTrainComponentCountTooLarge(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	rows := syntheticRows(rng, 10, 64, 2, 0.01)

	// k=50 from only 10 samples must fail before any compute.
	_, err := Train(0, rows, 50)
	require.ErrorIs(t, err, errs.ErrInvalidComponentCount)

	// k larger than the bin width must fail too.
	_, err = Train(0, syntheticRows(rng, 100, 8, 2, 0.01), 9)
	require.ErrorIs(t, err, errs.ErrInvalidComponentCount)
}

func TestTrainEmptyAndRagged(t *testing.T) {
	_, err := Train(0, nil, 5)
	require.ErrorIs(t, err, errs.ErrEmptyTrainingSet)

	rows := [][]float64{{1, 2, 3}, {1, 2}}
	_, err = Train(0, rows, 1)
	require.ErrorIs(t, err, errs.ErrDimensionMismatch)
}

func TestProjectDimensionMismatch(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	rows := syntheticRows(rng, 50, 20, 3, 0.01)

	basis, err := Train(0, rows, 5)
	require.NoError(t, err)

	_, err = basis.Project(make([]float64, 19))
	require.ErrorIs(t, err, errs.ErrDimensionMismatch)

	_, err = basis.Reconstruct(make([]float64, 4))
	require.ErrorIs(t, err, errs.ErrDimensionMismatch)
}

func TestProjectAllShape(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	rows := syntheticRows(rng, 60, 30, 4, 0.02)

	basis, err := Train(0, rows, 7)
	require.NoError(t, err)

	coeffs, err := basis.ProjectAll(rows)
	require.NoError(t, err)

	n, k := coeffs.Dims()
	require.Equal(t, 60, n)
	require.Equal(t, 7, k)
}
