// Package pca trains the per-bin orthonormal bases that compress flux
// sub-vectors into short coefficient vectors.
//
// Training centers the per-bin flux matrix by its column mean and takes the
// top-k right singular vectors of the centered matrix, ordered by descending
// explained variance. The algorithm is deterministic: identical input
// matrices yield identical bases.
package pca

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/sedlab/sedemu/errs"
)

// rankFloor is the relative singular value threshold below which a
// direction is considered numerically rank deficient. Components past the
// effective rank are still valid orthonormal directions; the rank is kept
// for diagnostics only.
const rankFloor = 1e-12

// Basis is a trained PCA basis for one wavelength bin: the corpus mean flux
// vector used for centering plus k orthonormal components.
//
// A Basis is created once from the training corpus and read-only
// thereafter. It is consumed by the emulator trainer (as regression
// targets, via Project) and by reconstruction consumers (via Reconstruct).
type Basis struct {
	// BinIndex is the wavelength bin this basis belongs to.
	BinIndex int
	// Mean is the column-wise mean of the training flux matrix.
	Mean []float64
	// Components holds the orthonormal basis vectors, one per row (k x d).
	Components *mat.Dense
	// SingularValues are the singular values of the kept components, in
	// descending order.
	SingularValues []float64
	// ExplainedVariance is the fraction of total training variance captured
	// by each kept component.
	ExplainedVariance []float64
	// EffectiveRank counts kept components whose singular value is above the
	// numerical floor relative to the largest.
	EffectiveRank int
	// SampleCount is the number of training rows the basis was fitted on.
	SampleCount int
}

// K returns the number of basis components.
func (b *Basis) K() int {
	k, _ := b.Components.Dims()

	return k
}

// Dim returns the wavelength sample count of the bin.
func (b *Basis) Dim() int {
	_, d := b.Components.Dims()

	return d
}

// Train fits a PCA basis for one wavelength bin.
//
// Parameters:
//   - binIndex: wavelength bin the flux rows were sliced from
//   - rows: training flux sub-vectors, one sample per row, equal lengths
//   - k: number of components to keep
//
// Returns errs.ErrInvalidComponentCount when k exceeds the sample count or
// the bin width, and errs.ErrEmptyTrainingSet for an empty matrix. These
// are surfaced before any decomposition compute is spent.
func Train(binIndex int, rows [][]float64, k int) (*Basis, error) {
	n := len(rows)
	if n == 0 {
		return nil, fmt.Errorf("bin %d: %w", binIndex, errs.ErrEmptyTrainingSet)
	}
	d := len(rows[0])
	if d == 0 {
		return nil, fmt.Errorf("bin %d: %w", binIndex, errs.ErrEmptyTrainingSet)
	}
	if k <= 0 || k > n || k > d {
		return nil, fmt.Errorf("bin %d: %w: k=%d with %d samples and %d wavelengths",
			binIndex, errs.ErrInvalidComponentCount, k, n, d)
	}

	mean := make([]float64, d)
	for i, row := range rows {
		if len(row) != d {
			return nil, fmt.Errorf("bin %d row %d: %w: got %d wavelengths, want %d",
				binIndex, i, errs.ErrDimensionMismatch, len(row), d)
		}
		for j, v := range row {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= float64(n)
	}

	centered := mat.NewDense(n, d, nil)
	for i, row := range rows {
		for j, v := range row {
			centered.Set(i, j, v-mean[j])
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(centered, mat.SVDThin); !ok {
		return nil, fmt.Errorf("bin %d: %w: SVD did not converge", binIndex, errs.ErrSingularSystem)
	}

	var vt mat.Dense
	svd.VTo(&vt)
	sigma := svd.Values(nil)

	// Rows of V^T are the principal directions, already ordered by
	// descending singular value.
	components := mat.NewDense(k, d, nil)
	for i := 0; i < k; i++ {
		for j := 0; j < d; j++ {
			components.Set(i, j, vt.At(j, i))
		}
	}

	totalVar := 0.0
	for _, s := range sigma {
		totalVar += s * s
	}

	singular := make([]float64, k)
	explained := make([]float64, k)
	rank := 0
	for i := 0; i < k; i++ {
		singular[i] = sigma[i]
		if totalVar > 0 {
			explained[i] = sigma[i] * sigma[i] / totalVar
		}
		if sigma[i] > rankFloor*sigma[0] {
			rank++
		}
	}

	return &Basis{
		BinIndex:          binIndex,
		Mean:              mean,
		Components:        components,
		SingularValues:    singular,
		ExplainedVariance: explained,
		EffectiveRank:     rank,
		SampleCount:       n,
	}, nil
}

// Project maps a flux sub-vector onto the basis, returning its length-k
// coefficient vector: coeffs = C (flux - mean).
func (b *Basis) Project(flux []float64) ([]float64, error) {
	if len(flux) != b.Dim() {
		return nil, fmt.Errorf("bin %d: %w: got %d wavelengths, want %d",
			b.BinIndex, errs.ErrDimensionMismatch, len(flux), b.Dim())
	}

	centered := make([]float64, len(flux))
	for j, v := range flux {
		centered[j] = v - b.Mean[j]
	}

	coeffs := mat.NewVecDense(b.K(), nil)
	coeffs.MulVec(b.Components, mat.NewVecDense(len(centered), centered))

	out := make([]float64, b.K())
	copy(out, coeffs.RawVector().Data)

	return out, nil
}

// ProjectAll projects every row of the training matrix, returning an
// n x k coefficient matrix for the emulator trainer.
func (b *Basis) ProjectAll(rows [][]float64) (*mat.Dense, error) {
	coeffs := mat.NewDense(len(rows), b.K(), nil)
	for i, row := range rows {
		c, err := b.Project(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		coeffs.SetRow(i, c)
	}

	return coeffs, nil
}

// Reconstruct maps a coefficient vector back to flux space:
// flux = C^T coeffs + mean.
func (b *Basis) Reconstruct(coeffs []float64) ([]float64, error) {
	if len(coeffs) != b.K() {
		return nil, fmt.Errorf("bin %d: %w: got %d coefficients, want %d",
			b.BinIndex, errs.ErrDimensionMismatch, len(coeffs), b.K())
	}

	flux := mat.NewVecDense(b.Dim(), nil)
	flux.MulVec(b.Components.T(), mat.NewVecDense(len(coeffs), coeffs))

	out := make([]float64, b.Dim())
	for j := 0; j < b.Dim(); j++ {
		out[j] = flux.AtVec(j) + b.Mean[j]
	}

	return out, nil
}

// ReconstructionError projects then reconstructs a flux sub-vector and
// returns the root-mean-square error against the input. For a fixed
// training matrix this is non-increasing in k.
func (b *Basis) ReconstructionError(flux []float64) (float64, error) {
	coeffs, err := b.Project(flux)
	if err != nil {
		return 0, err
	}
	approx, err := b.Reconstruct(coeffs)
	if err != nil {
		return 0, err
	}

	sumSq := 0.0
	for j := range flux {
		diff := flux[j] - approx[j]
		sumSq += diff * diff
	}

	return math.Sqrt(sumSq / float64(len(flux))), nil
}
