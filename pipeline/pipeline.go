package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sedlab/sedemu/artifact"
	"github.com/sedlab/sedemu/binning"
	"github.com/sedlab/sedemu/corpus"
	"github.com/sedlab/sedemu/emulator"
	"github.com/sedlab/sedemu/errs"
	"github.com/sedlab/sedemu/pca"
	"github.com/sedlab/sedemu/spectrum"
)

const trainerLogAction = "bin_training"

// Config is the immutable description of one training run. Construct it,
// validate it, and hand it to NewTrainer; nothing mutates it afterwards.
type Config struct {
	// Run is the free-form label artifacts are filed under.
	Run string
	// Bins is the wavelength bin table, including per-bin component counts.
	Bins binning.Table
	// Selected lists the bin indices to process. Empty means every bin.
	Selected []int
	// TrainStartBatch and TrainEndBatch bound the training batches
	// (inclusive).
	TrainStartBatch int
	TrainEndBatch   int
	// TestStartBatch and TestEndBatch bound the test batches used for
	// validation (inclusive).
	TestStartBatch int
	TestEndBatch   int
	// ExpectedTrainSamples and ExpectedTestSamples, when positive, are
	// checked against the corpus before any training compute is spent.
	ExpectedTrainSamples int
	ExpectedTestSamples  int
	// Emulator configures the per-bin regression fit.
	Emulator emulator.Config
	// RMSEThreshold is the flux-space acceptance threshold a bin must meet
	// on the test corpus to reach Validated.
	RMSEThreshold float64
	// Workers bounds how many bins train concurrently. Defaults to the
	// number of selected bins.
	Workers int
}

// DefaultConfig returns a run configuration with the reference bin table,
// batches 0-99 for training, batch 0 for test, and the default emulator fit.
func DefaultConfig(run string) Config {
	return Config{
		Run:             run,
		Bins:            binning.Default(),
		TrainStartBatch: 0,
		TrainEndBatch:   99,
		TestStartBatch:  0,
		TestEndBatch:    9,
		Emulator:        emulator.DefaultConfig(),
		RMSEThreshold:   0.1,
	}
}

// Validate checks the configuration. Configuration errors abort a run
// before any corpus data is read.
func (c *Config) Validate() error {
	if c.Run == "" {
		return fmt.Errorf("pipeline config: empty run name")
	}
	if err := c.Bins.Validate(); err != nil {
		return err
	}
	for _, idx := range c.Selected {
		if idx < 0 || idx >= len(c.Bins) {
			return fmt.Errorf("pipeline config: bin index %d out of range [0, %d]", idx, len(c.Bins)-1)
		}
	}
	if c.TrainStartBatch < 0 || c.TrainEndBatch < c.TrainStartBatch {
		return fmt.Errorf("pipeline config: invalid training batch range [%d, %d]",
			c.TrainStartBatch, c.TrainEndBatch)
	}
	if c.TestStartBatch < 0 || c.TestEndBatch < c.TestStartBatch {
		return fmt.Errorf("pipeline config: invalid test batch range [%d, %d]",
			c.TestStartBatch, c.TestEndBatch)
	}
	if c.RMSEThreshold <= 0 {
		return fmt.Errorf("pipeline config: accuracy threshold must be positive, got %g", c.RMSEThreshold)
	}

	return nil
}

// selected resolves the bin subset to process, in table order.
func (c *Config) selected() []binning.Bin {
	if len(c.Selected) == 0 {
		return c.Bins
	}
	bins := make([]binning.Bin, 0, len(c.Selected))
	for _, idx := range c.Selected {
		bins = append(bins, c.Bins[idx])
	}

	return bins
}

// BinResult reports the outcome of one bin's training.
type BinResult struct {
	// Bin is the wavelength bin that was processed.
	Bin binning.Bin
	// State is the furthest state the bin reached.
	State State
	// BasisPath and EmulatorPath locate the persisted artifacts for the
	// states that were reached.
	BasisPath    string
	EmulatorPath string
	// FitMetrics report coefficient-space accuracy on the held-out split
	// of the training corpus.
	FitMetrics emulator.Metrics
	// TestMetrics report flux-space reconstruction accuracy on the test
	// corpus. Valid whenever State >= EmulatorTrained and Err is nil or a
	// convergence miss.
	TestMetrics emulator.Metrics
	// Err is the error that stopped the bin short of Validated, if any.
	// A convergence miss (errs.ErrNotConverged) leaves valid artifacts
	// and TestMetrics behind.
	Err error
}

// Trainer drives the basis -> emulator -> validate sequence for every
// selected wavelength bin.
type Trainer struct {
	cfg       Config
	corpus    *corpus.Store
	artifacts *artifact.Store
	logger    *logrus.Entry
}

// NewTrainer validates the configuration and creates a Trainer.
//
// Parameters:
//   - cfg: Immutable run configuration
//   - store: Corpus store holding complete train and test batches
//   - artifacts: Artifact store run outputs are persisted to
//   - logger: Structured logger; nil falls back to the standard logger
func NewTrainer(cfg Config, store *corpus.Store, artifacts *artifact.Store, logger *logrus.Logger) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = len(cfg.selected())
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Trainer{
		cfg:       cfg,
		corpus:    store,
		artifacts: artifacts,
		logger: logger.WithFields(logrus.Fields{
			"action": trainerLogAction,
			"run":    cfg.Run,
		}),
	}, nil
}

// binData is the per-bin training or test slice of a corpus: one parameter
// vector and one flux sub-vector per sample.
type binData struct {
	params []spectrum.ParameterVector
	flux   [][]float64
}

// Run trains every selected bin, in parallel up to cfg.Workers.
//
// Bin-level failures are isolated: each bin's outcome (including its
// error, if any) lands in its BinResult and never aborts sibling bins.
// The returned error is non-nil only for run-level failures: invalid
// corpus state, a size mismatch, or context cancellation.
//
// Returns:
//   - []BinResult: One result per selected bin, in selection order
//   - error: Run-level failure, or nil
func (t *Trainer) Run(ctx context.Context) ([]BinResult, error) {
	start := time.Now()

	if err := t.checkCorpusSize(); err != nil {
		return nil, err
	}

	trainRanges, err := t.gridRanges(corpus.RoleTrain)
	if err != nil {
		return nil, err
	}
	testRanges, err := t.gridRanges(corpus.RoleTest)
	if err != nil {
		return nil, err
	}

	bins := t.cfg.selected()
	results := make([]BinResult, len(bins))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.Workers)
	for i, bin := range bins {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = t.trainBin(bin, trainRanges[bin.Index], testRanges[bin.Index])

			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	validated := 0
	for _, r := range results {
		if r.State == Validated {
			validated++
		}
	}
	t.logger.WithFields(logrus.Fields{
		"bins":      len(results),
		"validated": validated,
		"took":      time.Since(start).Round(time.Millisecond).String(),
	}).Info("training run complete")

	return results, nil
}

// RunBases trains and persists only the PCA bases for the selected bins,
// leaving every successful bin in BasisTrained. Bin failures are isolated
// exactly as in Run.
func (t *Trainer) RunBases(ctx context.Context) ([]BinResult, error) {
	if err := t.checkCorpusSize(); err != nil {
		return nil, err
	}
	trainRanges, err := t.gridRanges(corpus.RoleTrain)
	if err != nil {
		return nil, err
	}

	bins := t.cfg.selected()
	results := make([]BinResult, len(bins))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.Workers)
	for i, bin := range bins {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i], _, _ = t.trainBasis(bin, trainRanges[bin.Index])

			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// trainBasis runs the first leg of the state machine: load the bin's
// training slice, fit the basis and persist it. The returned data feeds the
// emulator stage so the corpus is read once per bin.
func (t *Trainer) trainBasis(bin binning.Bin, trainRange binning.Range) (BinResult, *pca.Basis, binData) {
	log := t.logger.WithField("bin", bin.Label())
	result := BinResult{Bin: bin, State: Untrained}

	train, err := t.loadBinData(corpus.RoleTrain, t.cfg.TrainStartBatch, t.cfg.TrainEndBatch, trainRange)
	if err != nil {
		result.Err = fmt.Errorf("bin %d: load training data: %w", bin.Index, err)

		return result, nil, binData{}
	}

	basis, err := pca.Train(bin.Index, train.flux, bin.Components)
	if err != nil {
		result.Err = err

		return result, nil, binData{}
	}
	result.BasisPath, err = t.artifacts.SaveBasis(t.cfg.Run, bin, basis)
	if err != nil {
		result.Err = fmt.Errorf("bin %d: persist basis: %w", bin.Index, err)

		return result, nil, binData{}
	}
	result.State = BasisTrained
	log.WithFields(logrus.Fields{
		"state":          result.State.String(),
		"components":     basis.K(),
		"effective_rank": basis.EffectiveRank,
		"samples":        basis.SampleCount,
	}).Info("basis trained")

	return result, basis, train
}

// trainBin walks one bin through the full state machine. All failures are
// captured in the result.
func (t *Trainer) trainBin(bin binning.Bin, trainRange, testRange binning.Range) BinResult {
	log := t.logger.WithField("bin", bin.Label())

	result, basis, train := t.trainBasis(bin, trainRange)
	if result.Err != nil {
		return result
	}

	coeffs, err := basis.ProjectAll(train.flux)
	if err != nil {
		result.Err = err

		return result
	}
	emu, fitMetrics, err := emulator.Train(bin.Index, train.params, coeffs, t.cfg.Emulator)
	if err != nil {
		result.Err = err

		return result
	}
	result.FitMetrics = fitMetrics
	result.EmulatorPath, err = t.artifacts.SaveEmulator(t.cfg.Run, bin, emu)
	if err != nil {
		result.Err = fmt.Errorf("bin %d: persist emulator: %w", bin.Index, err)

		return result
	}
	result.State = EmulatorTrained
	log.WithFields(logrus.Fields{
		"state":    result.State.String(),
		"fit_rmse": fitMetrics.RMSE,
	}).Info("emulator trained")

	test, err := t.loadBinData(corpus.RoleTest, t.cfg.TestStartBatch, t.cfg.TestEndBatch, testRange)
	if err != nil {
		result.Err = fmt.Errorf("bin %d: load test data: %w", bin.Index, err)

		return result
	}
	metrics, err := emulator.Validate(emu, basis, test.params, test.flux, t.cfg.RMSEThreshold)
	result.TestMetrics = metrics
	if err != nil && !errors.Is(err, errs.ErrNotConverged) {
		result.Err = err

		return result
	}

	// The metrics are valid even on a convergence miss; rewrite the
	// artifact so it carries them.
	emu.Test = metrics
	path, serr := t.artifacts.SaveEmulator(t.cfg.Run, bin, emu)
	if serr != nil {
		result.Err = fmt.Errorf("bin %d: persist emulator: %w", bin.Index, serr)

		return result
	}
	result.EmulatorPath = path

	if err != nil {
		result.Err = err
		log.WithFields(logrus.Fields{
			"state":       result.State.String(),
			"test_rmse":   metrics.RMSE,
			"max_abs_err": metrics.MaxAbsErr,
			"threshold":   t.cfg.RMSEThreshold,
		}).Warn("emulator accuracy below threshold")

		return result
	}
	result.State = Validated
	log.WithFields(logrus.Fields{
		"state":       result.State.String(),
		"test_rmse":   metrics.RMSE,
		"max_abs_err": metrics.MaxAbsErr,
	}).Info("bin validated")

	return result
}

// gridRanges resolves the per-bin grid index ranges for one corpus role.
func (t *Trainer) gridRanges(role string) ([]binning.Range, error) {
	grid, err := t.corpus.Grid(role)
	if err != nil {
		return nil, fmt.Errorf("load %s grid: %w", role, err)
	}

	return t.cfg.Bins.Ranges(grid)
}

// loadBinData reads one bin's slice of a corpus role into memory.
func (t *Trainer) loadBinData(role string, startBatch, endBatch int, r binning.Range) (binData, error) {
	var data binData
	err := t.corpus.ForEachSample(role, startBatch, endBatch, func(s corpus.Sample) error {
		if r.End > len(s.LogFlux) {
			return fmt.Errorf("%s batch %d sample %d: %w: flux has %d samples, bin needs %d",
				role, s.Batch, s.Index, errs.ErrGridFluxMismatch, len(s.LogFlux), r.End)
		}
		data.params = append(data.params, s.Params)
		data.flux = append(data.flux, s.LogFlux[r.Start:r.End])

		return nil
	})
	if err != nil {
		return binData{}, err
	}

	return data, nil
}

// checkCorpusSize verifies the stored corpus against the configured sizes.
func (t *Trainer) checkCorpusSize() error {
	checks := []struct {
		role       string
		start, end int
		want       int
	}{
		{corpus.RoleTrain, t.cfg.TrainStartBatch, t.cfg.TrainEndBatch, t.cfg.ExpectedTrainSamples},
		{corpus.RoleTest, t.cfg.TestStartBatch, t.cfg.TestEndBatch, t.cfg.ExpectedTestSamples},
	}
	for _, c := range checks {
		if c.want <= 0 {
			continue
		}
		got, err := t.corpus.CountSamples(c.role, c.start, c.end)
		if err != nil {
			return err
		}
		if got != c.want {
			return fmt.Errorf("%w: %s corpus has %d samples, want %d",
				errs.ErrCorpusSizeMismatch, c.role, got, c.want)
		}
	}

	return nil
}
