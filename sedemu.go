// Package sedemu trains and serves fast emulators for galaxy spectral
// energy distributions (SEDs).
//
// The expensive part of SED fitting is the stellar population synthesis
// model that maps physical parameters to a spectrum. sedemu replaces it
// with a two-stage surrogate: per wavelength bin, a PCA basis compresses
// log-flux spectra to a short coefficient vector, and a polynomial
// regression maps parameters directly to those coefficients. Training needs
// the generator; inference needs only the persisted artifacts.
//
// # Core Features
//
//   - Batched corpus building with a durable SQLite store, deterministic
//     seeding and idempotent re-runs
//   - Five fixed wavelength bins trained independently and in parallel
//   - Mean-centered thin-SVD PCA per bin with configurable component counts
//   - Ridge-regularized polynomial emulators validated against a held-out
//     test corpus
//   - Compact artifact files (compressed, checksummed) addressable by run
//     name and bin
//
// # Basic Usage
//
// Training a run (requires a generator):
//
//	store, _ := corpus.Open("corpus.db")
//	gen := generator.NewSynthetic(spectrum.LinearGrid(1000, 60000, 5000))
//	builder, _ := corpus.NewBuilder(store, gen, generator.DefaultPrior(), corpus.BuilderConfig{
//	    Role: corpus.RoleTrain, StartBatch: 0, EndBatch: 99, TargetSize: 1_000_000,
//	}, nil)
//	_ = builder.Run(ctx)
//
//	artifacts, _ := artifact.NewStore("artifacts")
//	results, _ := sedemu.Train(ctx, pipeline.DefaultConfig("fiducial"), store, artifacts, nil)
//
// Inference from artifacts alone (no generator dependency):
//
//	model, _ := sedemu.LoadModel(artifacts, "fiducial", binning.Default()...)
//	flux, _ := model.Flux(params)
//
// # Package Structure
//
// This package provides the artifact-only inference model and thin wrappers
// around the pipeline package. For fine-grained control over corpus
// building, training and artifact handling, use the corpus, pipeline and
// artifact packages directly.
package sedemu

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/sedlab/sedemu/artifact"
	"github.com/sedlab/sedemu/binning"
	"github.com/sedlab/sedemu/corpus"
	"github.com/sedlab/sedemu/emulator"
	"github.com/sedlab/sedemu/pca"
	"github.com/sedlab/sedemu/pipeline"
	"github.com/sedlab/sedemu/spectrum"
)

// DefaultBins returns the reference five-bin wavelength table.
func DefaultBins() binning.Table {
	return binning.Default()
}

// Train runs the basis -> emulator -> validate pipeline for every bin in
// cfg. It is a thin wrapper around pipeline.NewTrainer and Run.
func Train(ctx context.Context, cfg pipeline.Config, store *corpus.Store, artifacts *artifact.Store, logger *logrus.Logger) ([]pipeline.BinResult, error) {
	trainer, err := pipeline.NewTrainer(cfg, store, artifacts, logger)
	if err != nil {
		return nil, err
	}

	return trainer.Run(ctx)
}

// modelBin pairs one wavelength bin's basis and emulator.
type modelBin struct {
	bin   binning.Bin
	basis *pca.Basis
	emu   *emulator.Emulator
}

// Model evaluates a trained run from its persisted artifacts. It holds any
// subset of a run's bins; output covers exactly the loaded bins in
// wavelength order. A Model has no generator dependency and is safe for
// concurrent use.
type Model struct {
	run  string
	bins []modelBin
}

// LoadModel loads the basis and emulator artifacts for the given bins.
//
// Parameters:
//   - store: Artifact store to read from
//   - run: Run label the artifacts were trained under
//   - bins: Bins to load; must not be empty (pass binning.Default()... for
//     a full model)
//
// Returns:
//   - *Model: Ready-to-evaluate model over the loaded bins
//   - error: errs.ErrArtifactNotFound if a requested bin was never trained,
//     or artifact decode errors
func LoadModel(store *artifact.Store, run string, bins ...binning.Bin) (*Model, error) {
	if len(bins) == 0 {
		return nil, fmt.Errorf("load model %q: no bins requested", run)
	}

	m := &Model{run: run, bins: make([]modelBin, 0, len(bins))}
	for _, bin := range bins {
		basis, err := store.LoadBasis(run, bin)
		if err != nil {
			return nil, fmt.Errorf("load model %q bin %d: %w", run, bin.Index, err)
		}
		emu, err := store.LoadEmulator(run, bin)
		if err != nil {
			return nil, fmt.Errorf("load model %q bin %d: %w", run, bin.Index, err)
		}
		m.bins = append(m.bins, modelBin{bin: bin, basis: basis, emu: emu})
	}
	sort.Slice(m.bins, func(i, j int) bool { return m.bins[i].bin.Lo < m.bins[j].bin.Lo })

	return m, nil
}

// Run returns the run label the model was loaded from.
func (m *Model) Run() string {
	return m.run
}

// Bins returns the loaded bins in wavelength order.
func (m *Model) Bins() []binning.Bin {
	bins := make([]binning.Bin, len(m.bins))
	for i, mb := range m.bins {
		bins[i] = mb.bin
	}

	return bins
}

// Len returns the total number of wavelength samples the model emits.
func (m *Model) Len() int {
	n := 0
	for _, mb := range m.bins {
		n += mb.basis.Dim()
	}

	return n
}

// LogFlux predicts the log-flux spectrum for one parameter vector,
// concatenated over the loaded bins in wavelength order.
func (m *Model) LogFlux(params spectrum.ParameterVector) ([]float64, error) {
	out := make([]float64, 0, m.Len())
	for _, mb := range m.bins {
		coeffs, err := mb.emu.Predict(params)
		if err != nil {
			return nil, fmt.Errorf("model bin %d: %w", mb.bin.Index, err)
		}
		logFlux, err := mb.basis.Reconstruct(coeffs)
		if err != nil {
			return nil, fmt.Errorf("model bin %d: %w", mb.bin.Index, err)
		}
		out = append(out, logFlux...)
	}

	return out, nil
}

// Flux predicts the linear-flux spectrum for one parameter vector.
func (m *Model) Flux(params spectrum.ParameterVector) ([]float64, error) {
	logFlux, err := m.LogFlux(params)
	if err != nil {
		return nil, err
	}
	for i, v := range logFlux {
		logFlux[i] = math.Exp(v)
	}

	return logFlux, nil
}
