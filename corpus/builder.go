package corpus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sedlab/sedemu/errs"
	"github.com/sedlab/sedemu/generator"
	"github.com/sedlab/sedemu/internal/hash"
	"github.com/sedlab/sedemu/spectrum"
)

const builderLogAction = "corpus_build"

// resampleSeedStride separates the seed streams of successive retry
// attempts for the same sample slot, keeping every attempt deterministic.
const resampleSeedStride = 0x9e3779b97f4a7c15

// BuilderConfig configures one corpus build run. Immutable once the builder
// is constructed.
type BuilderConfig struct {
	// Role is the corpus role being built (RoleTrain or RoleTest).
	Role string
	// StartBatch and EndBatch bound the inclusive batch range.
	StartBatch int
	EndBatch   int
	// TargetSize is the total sample count for the role, spread across the
	// batch range (1,000,000 train / 100,000 test in the reference run).
	TargetSize int
	// BaseSeed feeds the deterministic per-slot seed derivation.
	BaseSeed uint64
	// MaxRetries bounds resample-and-retry attempts per sample slot.
	MaxRetries uint64
	// Workers is the number of batches built concurrently.
	Workers int
}

// Validate checks the configuration before any generation work starts.
func (c BuilderConfig) Validate() error {
	if c.Role == "" {
		return fmt.Errorf("builder config: empty role")
	}
	if c.EndBatch < c.StartBatch {
		return fmt.Errorf("builder config: batch range [%d, %d] inverted", c.StartBatch, c.EndBatch)
	}
	n := c.EndBatch - c.StartBatch + 1
	if c.TargetSize < n {
		return fmt.Errorf("builder config: target size %d smaller than batch count %d", c.TargetSize, n)
	}

	return nil
}

// batchShare returns the sample count assigned to a batch. The remainder of
// TargetSize / batches lands on the leading batches so shares differ by at
// most one.
func (c BuilderConfig) batchShare(batch int) int {
	n := c.EndBatch - c.StartBatch + 1
	share := c.TargetSize / n
	if (batch - c.StartBatch) < c.TargetSize%n {
		share++
	}

	return share
}

// Builder generates corpus batches through a Generator and persists them.
//
// Batches are independent: the builder skips batches already marked
// complete, so interrupted runs resume where they stopped and concurrent
// builders on disjoint ranges never conflict.
type Builder struct {
	store  *Store
	gen    generator.Generator
	prior  generator.Prior
	cfg    BuilderConfig
	logger *logrus.Entry
}

// NewBuilder creates a corpus builder.
func NewBuilder(store *Store, gen generator.Generator, prior generator.Prior, cfg BuilderConfig, logger *logrus.Logger) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := prior.Validate(); err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 8
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Builder{
		store: store,
		gen:   gen,
		prior: prior,
		cfg:   cfg,
		logger: logger.WithFields(logrus.Fields{
			"action": builderLogAction,
			"role":   cfg.Role,
		}),
	}, nil
}

// Run builds every batch in the configured range, in parallel up to the
// worker limit. Already-complete batches are skipped. The build is recorded
// in the store's provenance table on success.
func (b *Builder) Run(ctx context.Context) error {
	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Workers)

	for batch := b.cfg.StartBatch; batch <= b.cfg.EndBatch; batch++ {
		g.Go(func() error {
			return b.buildBatch(ctx, batch)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	id, err := b.store.RecordBuild(b.cfg.Role, b.cfg.StartBatch, b.cfg.EndBatch, b.cfg.BaseSeed)
	if err != nil {
		return err
	}

	b.logger.WithFields(logrus.Fields{
		"build_id": id,
		"batches":  b.cfg.EndBatch - b.cfg.StartBatch + 1,
		"took":     time.Since(start).Round(time.Millisecond).String(),
	}).Info("corpus build complete")

	return nil
}

// buildBatch generates and writes one batch.
func (b *Builder) buildBatch(ctx context.Context, batch int) error {
	log := b.logger.WithField("batch", batch)

	complete, err := b.store.BatchComplete(b.cfg.Role, batch)
	if err != nil {
		return err
	}
	if complete {
		log.Debug("batch already complete, skipping")

		return nil
	}

	share := b.cfg.batchShare(batch)
	samples := make([]Sample, 0, share)
	var grid []float64
	for idx := 0; idx < share; idx++ {
		sample, wave, err := b.generateSample(ctx, batch, idx)
		if err != nil {
			return fmt.Errorf("batch %d sample %d: %w", batch, idx, err)
		}
		if grid == nil {
			grid = wave
		} else if len(wave) != len(grid) {
			return fmt.Errorf("batch %d sample %d: grid length %d differs from batch grid %d",
				batch, idx, len(wave), len(grid))
		}
		samples = append(samples, sample)
	}

	// The grid is shared per role; the first completed batch pins it and
	// every later batch must match.
	if grid != nil {
		if err := b.store.PutGrid(b.cfg.Role, grid); err != nil {
			return err
		}
	}

	if err := b.store.WriteBatch(b.cfg.Role, batch, samples); err != nil {
		return err
	}
	log.WithField("samples", len(samples)).Info("batch written")

	return nil
}

// generateSample fills one sample slot, resampling a replacement parameter
// vector on each generator failure up to the retry budget.
func (b *Builder) generateSample(ctx context.Context, batch, idx int) (Sample, []float64, error) {
	var sed spectrum.SED
	var params spectrum.ParameterVector
	attempt := uint64(0)

	op := func() error {
		seed := hash.SampleKey(b.cfg.Role, batch, idx) ^ (b.cfg.BaseSeed + attempt*resampleSeedStride)
		params = b.prior.SampleAt(b.cfg.Role, batch, idx, b.cfg.BaseSeed+attempt*resampleSeedStride)
		attempt++

		got, err := b.gen.Generate(ctx, params, seed)
		if err != nil {
			if errors.Is(err, errs.ErrGenerationFailed) {
				// Resample and retry with the next attempt's seed stream.
				return err
			}

			return backoff.Permanent(err)
		}
		if err := got.Validate(); err != nil {
			// A malformed SED is a per-slot failure: resample with the
			// next attempt's seed stream like any generation failure.
			return fmt.Errorf("%w: %w", errs.ErrGenerationFailed, err)
		}
		sed = got

		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(time.Millisecond),
			backoff.WithMaxInterval(50*time.Millisecond),
		), b.cfg.MaxRetries),
		ctx,
	)

	if err := backoff.Retry(op, bo); err != nil {
		if errors.Is(err, errs.ErrGenerationFailed) {
			return Sample{}, nil, fmt.Errorf("%w after %d attempts: %w",
				errs.ErrRetryBudgetExhausted, attempt, err)
		}

		return Sample{}, nil, err
	}

	return Sample{
		Batch:   batch,
		Index:   idx,
		Params:  params,
		LogFlux: sed.LogFlux,
	}, sed.Wave, nil
}
