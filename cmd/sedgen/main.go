// Command sedgen builds corpus batches with the synthetic generator.
//
// Usage:
//
//	sedgen -db corpus.db -role train -start 0 -end 99 -size 1000000
//
// Batches already marked complete are skipped, so interrupted builds can be
// resumed by re-running the same command.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/sedlab/sedemu/corpus"
	"github.com/sedlab/sedemu/generator"
	"github.com/sedlab/sedemu/spectrum"
)

func main() {
	os.Exit(run())
}

func run() int {
	dbPath := flag.String("db", "corpus.db", "path to the corpus database")
	role := flag.String("role", corpus.RoleTrain, "corpus role to build (train or test)")
	start := flag.Int("start", 0, "first batch index (inclusive)")
	end := flag.Int("end", 99, "last batch index (inclusive)")
	size := flag.Int("size", 1_000_000, "total sample count for the role")
	seed := flag.Uint64("seed", 0, "base seed for deterministic parameter sampling")
	workers := flag.Int("workers", 4, "batches built concurrently")
	retries := flag.Uint64("retries", 8, "generation retry budget per sample")
	gridLo := flag.Float64("grid-lo", 1000, "wavelength grid lower bound in Angstroms")
	gridHi := flag.Float64("grid-hi", 60000, "wavelength grid upper bound in Angstroms")
	gridN := flag.Int("grid-n", 5000, "wavelength grid sample count")
	flag.Parse()

	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	if *role != corpus.RoleTrain && *role != corpus.RoleTest {
		fmt.Fprintf(os.Stderr, "sedgen: unknown role %q, want %q or %q\n", *role, corpus.RoleTrain, corpus.RoleTest)

		return 2
	}

	grid := spectrum.LinearGrid(*gridLo, *gridHi, *gridN)
	if grid == nil {
		fmt.Fprintf(os.Stderr, "sedgen: invalid wavelength grid [%g, %g] with %d samples\n", *gridLo, *gridHi, *gridN)

		return 2
	}

	store, err := corpus.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sedgen: %v\n", err)

		return 1
	}
	defer store.Close()

	builder, err := corpus.NewBuilder(store, generator.NewSynthetic(grid), generator.DefaultPrior(), corpus.BuilderConfig{
		Role:       *role,
		StartBatch: *start,
		EndBatch:   *end,
		TargetSize: *size,
		BaseSeed:   *seed,
		MaxRetries: *retries,
		Workers:    *workers,
	}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sedgen: %v\n", err)

		return 2
	}

	if err := builder.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "sedgen: %v\n", err)

		return 1
	}

	return 0
}
