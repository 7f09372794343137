// Package errs defines the sentinel errors shared across the sedemu module.
//
// Errors fall into four families that map onto the pipeline's failure
// policy:
//
//   - Generation errors: the external template generator failed for a
//     parameter vector. Recovered by bounded resample-and-retry; fatal for
//     the batch only once the retry budget is exhausted.
//   - Range errors: a template's wavelength grid does not cover the
//     configured bin boundaries. Fatal for that sample only.
//   - Dimension errors: a requested PCA component count is incompatible
//     with the training data. Surfaced before any training compute is spent.
//   - Convergence errors: an emulator missed its accuracy threshold.
//     Reported per bin, never aborts other bins.
//
// Callers compare with errors.Is; wrapped messages carry the bin, batch and
// sample context.
package errs

import "errors"

// Generation and sampling errors.
var (
	// ErrGenerationFailed indicates the external template generator reported
	// failure for a parameter vector.
	ErrGenerationFailed = errors.New("template generation failed")

	// ErrRetryBudgetExhausted indicates resample-and-retry ran out of
	// attempts for a single sample slot.
	ErrRetryBudgetExhausted = errors.New("generation retry budget exhausted")
)

// Wavelength grid and bin errors.
var (
	// ErrGridNotCovered indicates an SED's wavelength grid does not span all
	// configured wavelength bins.
	ErrGridNotCovered = errors.New("wavelength grid does not cover bin range")

	// ErrGridNotAscending indicates a wavelength grid is not strictly
	// increasing.
	ErrGridNotAscending = errors.New("wavelength grid not strictly increasing")

	// ErrGridFluxMismatch indicates the wavelength grid and flux vector of an
	// SED have different lengths.
	ErrGridFluxMismatch = errors.New("wavelength grid and flux length mismatch")

	// ErrInvalidBinTable indicates the configured wavelength bins do not form
	// a gapless, non-overlapping partition.
	ErrInvalidBinTable = errors.New("invalid wavelength bin table")

	// ErrEmptyBin indicates a wavelength bin contains no grid samples.
	ErrEmptyBin = errors.New("wavelength bin contains no samples")
)

// PCA and emulator training errors.
var (
	// ErrInvalidComponentCount indicates the requested number of PCA
	// components exceeds the training sample count or the bin width.
	ErrInvalidComponentCount = errors.New("invalid PCA component count")

	// ErrEmptyTrainingSet indicates a trainer received no samples.
	ErrEmptyTrainingSet = errors.New("empty training set")

	// ErrDimensionMismatch indicates a vector or matrix does not match the
	// dimensions the model was trained with.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrNotConverged indicates emulator validation missed the configured
	// accuracy threshold.
	ErrNotConverged = errors.New("emulator accuracy below threshold")

	// ErrSingularSystem indicates the least-squares system could not be
	// solved (degenerate training inputs).
	ErrSingularSystem = errors.New("singular least-squares system")
)

// Corpus store errors.
var (
	// ErrBatchIncomplete indicates a reader requested a batch that has not
	// been marked complete.
	ErrBatchIncomplete = errors.New("corpus batch not complete")

	// ErrBatchNotFound indicates a requested batch does not exist in the
	// store.
	ErrBatchNotFound = errors.New("corpus batch not found")

	// ErrCorpusSizeMismatch indicates the stored corpus does not match the
	// configured role size.
	ErrCorpusSizeMismatch = errors.New("corpus size mismatch")
)

// Artifact encode/decode errors.
var (
	// ErrInvalidMagicNumber indicates an artifact payload does not begin with
	// the expected magic bytes.
	ErrInvalidMagicNumber = errors.New("invalid artifact magic number")

	// ErrInvalidHeaderSize indicates an artifact header is truncated.
	ErrInvalidHeaderSize = errors.New("invalid artifact header size")

	// ErrUnsupportedVersion indicates an artifact was written by an
	// incompatible format version.
	ErrUnsupportedVersion = errors.New("unsupported artifact version")

	// ErrInvalidCompressionType indicates an artifact header names a codec
	// this build does not know.
	ErrInvalidCompressionType = errors.New("invalid compression type")

	// ErrChecksumMismatch indicates an artifact payload failed its integrity
	// check.
	ErrChecksumMismatch = errors.New("artifact checksum mismatch")

	// ErrArtifactNotFound indicates no artifact exists for the requested
	// run name and bin.
	ErrArtifactNotFound = errors.New("artifact not found")
)
