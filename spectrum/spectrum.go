// Package spectrum defines the core data types of the emulator pipeline:
// parameter vectors and spectral energy distributions (SEDs).
//
// An SED pairs a strictly increasing wavelength grid with a flux vector of
// the same length. The pipeline stores and trains on the natural log of the
// flux; reconstruction consumers exponentiate back to linear flux.
package spectrum

import (
	"fmt"
	"math"
	"slices"

	"github.com/sedlab/sedemu/errs"
)

// ParameterVector is an ordered, fixed-length sequence of physical model
// parameters (redshift, star-formation-history coefficients, metallicity,
// dust attenuation). It identifies one SED and is immutable once generated.
type ParameterVector []float64

// Clone returns an independent copy of the parameter vector.
func (p ParameterVector) Clone() ParameterVector {
	return slices.Clone(p)
}

// Finite reports whether every parameter is a finite number.
func (p ParameterVector) Finite() bool {
	for _, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}

	return true
}

// SED is a spectral energy distribution: flux sampled on a wavelength grid.
//
// Wave and LogFlux always have equal length; Wave is strictly increasing.
// Both slices are treated as immutable after creation.
type SED struct {
	// Wave is the wavelength grid in Angstroms.
	Wave []float64
	// LogFlux is the natural log of the flux at each grid point.
	LogFlux []float64
}

// Validate checks the structural invariants of the SED.
//
// Returns:
//   - errs.ErrGridFluxMismatch if grid and flux lengths differ
//   - errs.ErrGridNotAscending if the grid is not strictly increasing
func (s SED) Validate() error {
	if len(s.Wave) != len(s.LogFlux) {
		return fmt.Errorf("%w: %d wavelengths vs %d flux values",
			errs.ErrGridFluxMismatch, len(s.Wave), len(s.LogFlux))
	}
	for i := 1; i < len(s.Wave); i++ {
		if s.Wave[i] <= s.Wave[i-1] {
			return fmt.Errorf("%w: wave[%d]=%g <= wave[%d]=%g",
				errs.ErrGridNotAscending, i, s.Wave[i], i-1, s.Wave[i-1])
		}
	}

	return nil
}

// Len returns the number of grid samples.
func (s SED) Len() int {
	return len(s.Wave)
}

// Flux returns the linear flux vector, exponentiating the stored log flux.
func (s SED) Flux() []float64 {
	flux := make([]float64, len(s.LogFlux))
	for i, v := range s.LogFlux {
		flux[i] = math.Exp(v)
	}

	return flux
}

// Clone returns an SED with independent copies of both slices.
func (s SED) Clone() SED {
	return SED{
		Wave:    slices.Clone(s.Wave),
		LogFlux: slices.Clone(s.LogFlux),
	}
}

// LinearGrid builds a wavelength grid of n points evenly spaced on [lo, hi].
// Intended for tests and synthetic generators; real template libraries carry
// their own grids.
func LinearGrid(lo, hi float64, n int) []float64 {
	if n <= 1 || hi <= lo {
		return nil
	}
	grid := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range grid {
		grid[i] = lo + float64(i)*step
	}
	// Guard against accumulated rounding on the closed upper end.
	grid[n-1] = hi

	return grid
}
