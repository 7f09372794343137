// Package binning splits the wavelength axis into the fixed, contiguous
// training bins of the emulator pipeline.
//
// Each bin is trained and emulated independently; the table of bins forms a
// gapless, non-overlapping partition of the full wavelength range. Bins are
// lower-inclusive and upper-exclusive, except the last bin which is closed
// on its upper end.
package binning

import (
	"fmt"
	"sort"

	"github.com/sedlab/sedemu/errs"
	"github.com/sedlab/sedemu/spectrum"
)

// Bin is one fixed wavelength range with its configured PCA component count.
type Bin struct {
	// Index is the bin's position in the table (0-based).
	Index int
	// Lo is the lower bound in Angstroms (inclusive).
	Lo float64
	// Hi is the upper bound in Angstroms (exclusive, except the last bin).
	Hi float64
	// Components is the number of PCA basis vectors trained for this bin.
	Components int
}

// Label returns the bin's artifact-name fragment, e.g. "w1000_2000".
func (b Bin) Label() string {
	return fmt.Sprintf("w%d_%d", int(b.Lo), int(b.Hi))
}

// Table is an ordered set of bins partitioning the wavelength axis.
type Table []Bin

// Default returns the reference five-bin table with its per-bin component
// counts: [1000,2000) k=50, [2000,3600) k=50, [3600,5500) k=50,
// [5500,7410) k=50, [7410,60000] k=30.
func Default() Table {
	return Table{
		{Index: 0, Lo: 1000, Hi: 2000, Components: 50},
		{Index: 1, Lo: 2000, Hi: 3600, Components: 50},
		{Index: 2, Lo: 3600, Hi: 5500, Components: 50},
		{Index: 3, Lo: 5500, Hi: 7410, Components: 50},
		{Index: 4, Lo: 7410, Hi: 60000, Components: 30},
	}
}

// Validate checks that the table is a gapless, non-overlapping partition
// with positive component counts and correctly numbered bins.
func (t Table) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("%w: empty table", errs.ErrInvalidBinTable)
	}
	for i, b := range t {
		if b.Index != i {
			return fmt.Errorf("%w: bin %d has index %d", errs.ErrInvalidBinTable, i, b.Index)
		}
		if b.Hi <= b.Lo {
			return fmt.Errorf("%w: bin %d bounds [%g, %g)", errs.ErrInvalidBinTable, i, b.Lo, b.Hi)
		}
		if b.Components <= 0 {
			return fmt.Errorf("%w: bin %d component count %d", errs.ErrInvalidBinTable, i, b.Components)
		}
		if i > 0 && b.Lo != t[i-1].Hi {
			return fmt.Errorf("%w: gap or overlap between bin %d (hi=%g) and bin %d (lo=%g)",
				errs.ErrInvalidBinTable, i-1, t[i-1].Hi, i, b.Lo)
		}
	}

	return nil
}

// Lo returns the lower bound of the full partitioned range.
func (t Table) Lo() float64 {
	return t[0].Lo
}

// Hi returns the upper bound of the full partitioned range.
func (t Table) Hi() float64 {
	return t[len(t)-1].Hi
}

// Range is a half-open index range [Start, End) into a wavelength grid.
type Range struct {
	Start int
	End   int
}

// Len returns the number of grid samples in the range.
func (r Range) Len() int {
	return r.End - r.Start
}

// Ranges computes each bin's index range in the given wavelength grid.
//
// The grid must fully cover the table: its first sample at or below the
// table's lower bound and its last sample at or above the upper bound.
// A truncated or malformed template yields errs.ErrGridNotCovered.
func (t Table) Ranges(grid []float64) ([]Range, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if len(grid) == 0 {
		return nil, fmt.Errorf("%w: empty grid", errs.ErrGridNotCovered)
	}
	if grid[0] > t.Lo() || grid[len(grid)-1] < t.Hi() {
		return nil, fmt.Errorf("%w: grid spans [%g, %g], bins span [%g, %g]",
			errs.ErrGridNotCovered, grid[0], grid[len(grid)-1], t.Lo(), t.Hi())
	}

	ranges := make([]Range, len(t))
	for i, b := range t {
		start := sort.SearchFloat64s(grid, b.Lo)
		var end int
		if i == len(t)-1 {
			// Last bin is closed on the upper end.
			end = sort.Search(len(grid), func(j int) bool { return grid[j] > b.Hi })
		} else {
			end = sort.SearchFloat64s(grid, b.Hi)
		}
		if end <= start {
			return nil, fmt.Errorf("%w: bin %d (%s)", errs.ErrEmptyBin, i, b.Label())
		}
		ranges[i] = Range{Start: start, End: end}
	}

	return ranges, nil
}

// Partition slices an SED's log-flux vector into per-bin sub-vectors.
//
// The function is pure: the returned slices are views into the SED's flux
// vector, indexed by bin. It fails with errs.ErrGridNotCovered if the grid
// does not span every bin.
func (t Table) Partition(sed spectrum.SED) ([][]float64, error) {
	if err := sed.Validate(); err != nil {
		return nil, err
	}
	ranges, err := t.Ranges(sed.Wave)
	if err != nil {
		return nil, err
	}

	parts := make([][]float64, len(t))
	for i, r := range ranges {
		parts[i] = sed.LogFlux[r.Start:r.End]
	}

	return parts, nil
}
