// Package emulator trains and evaluates the per-bin regression surrogates
// that replace the template generator at inference time.
//
// Each emulator maps a physical parameter vector to the PCA coefficients of
// one wavelength bin. The model family is ridge-regularized least squares on
// standardized polynomial parameter features: deterministic to train, cheap
// to evaluate, and stored compactly in the emulator artifact. Inputs and
// targets are both standardized (shift/scale) before fitting; the
// standardization vectors are part of the trained model.
package emulator

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/sedlab/sedemu/errs"
	"github.com/sedlab/sedemu/pca"
	"github.com/sedlab/sedemu/spectrum"
)

// Config controls emulator training.
type Config struct {
	// Degree is the polynomial feature degree: 1 (linear) or 2 (quadratic
	// with cross terms).
	Degree int
	// Ridge is the L2 regularization strength applied to the normal
	// equations.
	Ridge float64
	// ValidationFraction is the trailing fraction of the training set held
	// out for the fit-quality report (0.1 reproduces the reference split).
	ValidationFraction float64
}

// DefaultConfig returns the training configuration used by the reference
// pipeline: quadratic features, light ridge damping, 90/10 split.
func DefaultConfig() Config {
	return Config{
		Degree:             2,
		Ridge:              1e-8,
		ValidationFraction: 0.1,
	}
}

// Emulator is a trained per-bin surrogate mapping parameter vectors to PCA
// coefficient vectors. The model itself is immutable after training; only
// the Test metrics are stamped in once validation has run.
type Emulator struct {
	// BinIndex is the wavelength bin this emulator belongs to.
	BinIndex int
	// Degree is the polynomial feature degree the model was trained with.
	Degree int
	// ParamShift and ParamScale standardize incoming parameter vectors.
	ParamShift []float64
	ParamScale []float64
	// CoeffShift and CoeffScale de-standardize predicted coefficients.
	CoeffShift []float64
	CoeffScale []float64
	// Weights is the fitted feature-to-coefficient matrix (nFeatures x k).
	Weights *mat.Dense
	// Fit reports coefficient-space accuracy on the held-out training
	// split, recorded by Train.
	Fit Metrics
	// Test reports flux-space accuracy on the test corpus. Zero until the
	// emulator has been validated.
	Test Metrics
}

// Metrics summarizes emulator accuracy over an evaluation set.
type Metrics struct {
	// RMSE is the root-mean-square error over all evaluated values.
	RMSE float64
	// MaxAbsErr is the largest absolute error observed.
	MaxAbsErr float64
	// FracVarUnexplained is the residual variance divided by the target
	// variance (lower is better; 0 is a perfect fit).
	FracVarUnexplained float64
	// Samples is the number of evaluated samples.
	Samples int
}

func (m Metrics) String() string {
	return fmt.Sprintf("Metrics{RMSE: %.4g, MaxAbs: %.4g, FVU: %.4g, N: %d}",
		m.RMSE, m.MaxAbsErr, m.FracVarUnexplained, m.Samples)
}

// NumParams returns the parameter dimensionality the emulator expects.
func (e *Emulator) NumParams() int {
	return len(e.ParamShift)
}

// K returns the coefficient dimensionality the emulator predicts.
func (e *Emulator) K() int {
	return len(e.CoeffShift)
}

// FeatureCount returns the feature vector length for p parameters at the
// given degree: intercept + linear terms, plus upper-triangular quadratic
// terms for degree 2.
func FeatureCount(p, degree int) int {
	n := 1 + p
	if degree >= 2 {
		n += p * (p + 1) / 2
	}

	return n
}

// featureVector expands a standardized parameter vector into polynomial
// features. The expansion order is fixed (intercept, linear, then the upper
// triangle row-by-row) so weights stored in artifacts stay valid.
func featureVector(z []float64, degree int) []float64 {
	f := make([]float64, 0, FeatureCount(len(z), degree))
	f = append(f, 1)
	f = append(f, z...)
	if degree >= 2 {
		for i := 0; i < len(z); i++ {
			for j := i; j < len(z); j++ {
				f = append(f, z[i]*z[j])
			}
		}
	}

	return f
}

// standardize computes per-column mean and standard deviation, guarding
// zero-variance columns with a unit scale.
func standardize(rows [][]float64, dim int) (shift, scale []float64) {
	shift = make([]float64, dim)
	scale = make([]float64, dim)

	col := make([]float64, len(rows))
	for j := 0; j < dim; j++ {
		for i, row := range rows {
			col[i] = row[j]
		}
		mean, std := stat.MeanStdDev(col, nil)
		shift[j] = mean
		scale[j] = std
		if scale[j] == 0 || math.IsNaN(scale[j]) {
			scale[j] = 1
		}
	}

	return shift, scale
}

// Train fits an emulator for one wavelength bin.
//
// Parameters:
//   - binIndex: wavelength bin the coefficients were projected in
//   - params: training parameter vectors, one per corpus entry
//   - coeffs: matching PCA coefficient matrix (len(params) x k)
//   - cfg: training configuration
//
// The trailing cfg.ValidationFraction of the input is held out and the
// returned Metrics report coefficient-space accuracy on that held-out
// split. Acceptance against the test corpus is a separate step (Validate).
func Train(binIndex int, params []spectrum.ParameterVector, coeffs *mat.Dense, cfg Config) (*Emulator, Metrics, error) {
	n := len(params)
	if n == 0 {
		return nil, Metrics{}, fmt.Errorf("bin %d: %w", binIndex, errs.ErrEmptyTrainingSet)
	}
	cn, k := coeffs.Dims()
	if cn != n {
		return nil, Metrics{}, fmt.Errorf("bin %d: %w: %d parameter vectors vs %d coefficient rows",
			binIndex, errs.ErrDimensionMismatch, n, cn)
	}
	p := len(params[0])
	if p == 0 {
		return nil, Metrics{}, fmt.Errorf("bin %d: %w: empty parameter vectors", binIndex, errs.ErrEmptyTrainingSet)
	}
	if cfg.Degree < 1 {
		cfg.Degree = 1
	}

	paramRows := make([][]float64, n)
	for i, pv := range params {
		if len(pv) != p {
			return nil, Metrics{}, fmt.Errorf("bin %d sample %d: %w: got %d parameters, want %d",
				binIndex, i, errs.ErrDimensionMismatch, len(pv), p)
		}
		paramRows[i] = pv
	}
	coeffRows := make([][]float64, n)
	for i := range coeffRows {
		coeffRows[i] = coeffs.RawRowView(i)
	}

	paramShift, paramScale := standardize(paramRows, p)
	coeffShift, coeffScale := standardize(coeffRows, k)

	nTrain := n
	if cfg.ValidationFraction > 0 && cfg.ValidationFraction < 1 {
		nTrain = n - int(float64(n)*cfg.ValidationFraction)
		if nTrain < 1 {
			nTrain = n
		}
	}

	nFeat := FeatureCount(p, cfg.Degree)
	if nTrain < nFeat {
		return nil, Metrics{}, fmt.Errorf("bin %d: %w: %d training samples for %d features",
			binIndex, errs.ErrInvalidComponentCount, nTrain, nFeat)
	}

	features := mat.NewDense(nTrain, nFeat, nil)
	targets := mat.NewDense(nTrain, k, nil)
	z := make([]float64, p)
	for i := 0; i < nTrain; i++ {
		for j := 0; j < p; j++ {
			z[j] = (paramRows[i][j] - paramShift[j]) / paramScale[j]
		}
		features.SetRow(i, featureVector(z, cfg.Degree))
		for j := 0; j < k; j++ {
			targets.Set(i, j, (coeffRows[i][j]-coeffShift[j])/coeffScale[j])
		}
	}

	// Normal equations with ridge damping: (A^T A + lambda I) W = A^T Y.
	var ata mat.Dense
	ata.Mul(features.T(), features)
	for i := 0; i < nFeat; i++ {
		ata.Set(i, i, ata.At(i, i)+cfg.Ridge)
	}
	var aty mat.Dense
	aty.Mul(features.T(), targets)

	var weights mat.Dense
	if err := weights.Solve(&ata, &aty); err != nil {
		return nil, Metrics{}, fmt.Errorf("bin %d: %w: %v", binIndex, errs.ErrSingularSystem, err)
	}

	em := &Emulator{
		BinIndex:   binIndex,
		Degree:     cfg.Degree,
		ParamShift: paramShift,
		ParamScale: paramScale,
		CoeffShift: coeffShift,
		CoeffScale: coeffScale,
		Weights:    &weights,
	}

	valMetrics := em.coeffMetrics(paramRows[nTrain:], coeffRows[nTrain:])
	if nTrain == n {
		// No held-out split; report training-set accuracy instead.
		valMetrics = em.coeffMetrics(paramRows, coeffRows)
	}
	em.Fit = valMetrics

	return em, valMetrics, nil
}

// Predict maps a parameter vector to a length-k PCA coefficient vector.
func (e *Emulator) Predict(params spectrum.ParameterVector) ([]float64, error) {
	p := e.NumParams()
	if len(params) != p {
		return nil, fmt.Errorf("bin %d: %w: got %d parameters, want %d",
			e.BinIndex, errs.ErrDimensionMismatch, len(params), p)
	}

	z := make([]float64, p)
	for j, v := range params {
		z[j] = (v - e.ParamShift[j]) / e.ParamScale[j]
	}
	f := featureVector(z, e.Degree)

	pred := mat.NewVecDense(e.K(), nil)
	pred.MulVec(e.Weights.T(), mat.NewVecDense(len(f), f))

	coeffs := make([]float64, e.K())
	for j := range coeffs {
		coeffs[j] = pred.AtVec(j)*e.CoeffScale[j] + e.CoeffShift[j]
	}

	return coeffs, nil
}

// coeffMetrics evaluates coefficient-space accuracy over the given rows.
func (e *Emulator) coeffMetrics(paramRows, coeffRows [][]float64) Metrics {
	if len(paramRows) == 0 {
		return Metrics{}
	}

	var sumSq, maxAbs float64
	var sumTargets, sumTargetsSq float64
	count := 0
	for i, row := range paramRows {
		pred, err := e.Predict(row)
		if err != nil {
			continue
		}
		for j, want := range coeffRows[i] {
			diff := pred[j] - want
			sumSq += diff * diff
			if a := math.Abs(diff); a > maxAbs {
				maxAbs = a
			}
			sumTargets += want
			sumTargetsSq += want * want
			count++
		}
	}
	if count == 0 {
		return Metrics{}
	}

	meanTarget := sumTargets / float64(count)
	targetVar := sumTargetsSq/float64(count) - meanTarget*meanTarget
	fvu := 0.0
	if targetVar > 0 {
		fvu = (sumSq / float64(count)) / targetVar
	}

	return Metrics{
		RMSE:               math.Sqrt(sumSq / float64(count)),
		MaxAbsErr:          maxAbs,
		FracVarUnexplained: fvu,
		Samples:            len(paramRows),
	}
}

// Validate evaluates an emulator against held-out flux sub-vectors.
//
// For each test entry the emulator predicts PCA coefficients, the basis
// reconstructs flux, and the error against the true flux sub-vector is
// accumulated. Returns errs.ErrNotConverged (wrapping the metrics in the
// message) when the flux-space RMSE exceeds threshold; the metrics are
// valid either way.
func Validate(e *Emulator, basis *pca.Basis, params []spectrum.ParameterVector, fluxRows [][]float64, threshold float64) (Metrics, error) {
	if len(params) != len(fluxRows) {
		return Metrics{}, fmt.Errorf("bin %d: %w: %d parameter vectors vs %d flux rows",
			e.BinIndex, errs.ErrDimensionMismatch, len(params), len(fluxRows))
	}
	if len(params) == 0 {
		return Metrics{}, fmt.Errorf("bin %d: %w", e.BinIndex, errs.ErrEmptyTrainingSet)
	}

	var sumSq, maxAbs float64
	var sumFlux, sumFluxSq float64
	count := 0
	for i, pv := range params {
		coeffs, err := e.Predict(pv)
		if err != nil {
			return Metrics{}, err
		}
		approx, err := basis.Reconstruct(coeffs)
		if err != nil {
			return Metrics{}, err
		}
		if len(fluxRows[i]) != len(approx) {
			return Metrics{}, fmt.Errorf("bin %d sample %d: %w: got %d wavelengths, want %d",
				e.BinIndex, i, errs.ErrDimensionMismatch, len(fluxRows[i]), len(approx))
		}
		for j, want := range fluxRows[i] {
			diff := approx[j] - want
			sumSq += diff * diff
			if a := math.Abs(diff); a > maxAbs {
				maxAbs = a
			}
			sumFlux += want
			sumFluxSq += want * want
			count++
		}
	}

	meanFlux := sumFlux / float64(count)
	fluxVar := sumFluxSq/float64(count) - meanFlux*meanFlux
	fvu := 0.0
	if fluxVar > 0 {
		fvu = (sumSq / float64(count)) / fluxVar
	}

	m := Metrics{
		RMSE:               math.Sqrt(sumSq / float64(count)),
		MaxAbsErr:          maxAbs,
		FracVarUnexplained: fvu,
		Samples:            len(params),
	}

	if threshold > 0 && m.RMSE > threshold {
		return m, fmt.Errorf("bin %d: %w: RMSE %.4g exceeds threshold %.4g",
			e.BinIndex, errs.ErrNotConverged, m.RMSE, threshold)
	}

	return m, nil
}
