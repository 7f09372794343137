// Command trainbasis trains and persists PCA bases for selected wavelength
// bins of a run.
//
// Usage:
//
//	trainbasis [flags] <name> <start_batch> <end_batch> <k0,k1,k2,k3,k4> <bin> [<bin> ...]
//
// For example, training bins 0 and 2 of run "fiducial" on batches 0-99:
//
//	trainbasis -db corpus.db -artifacts artifacts fiducial 0 99 50,50,50,50,30 0 2
//
// The exit code is non-zero if basis training fails for any requested bin;
// bins are otherwise independent and a failure in one does not stop the
// others.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/sedlab/sedemu/artifact"
	"github.com/sedlab/sedemu/binning"
	"github.com/sedlab/sedemu/corpus"
	"github.com/sedlab/sedemu/internal/cli"
	"github.com/sedlab/sedemu/pipeline"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: trainbasis [flags] <name> <start_batch> <end_batch> <k0,k1,k2,k3,k4> <bin> [<bin> ...]")
	flag.PrintDefaults()
}

func main() {
	os.Exit(run())
}

func run() int {
	dbPath := flag.String("db", "corpus.db", "path to the corpus database")
	artifactDir := flag.String("artifacts", "artifacts", "directory artifacts are written to")
	workers := flag.Int("workers", 0, "bins trained concurrently (0 = all requested bins)")
	flag.Usage = usage
	flag.Parse()

	bins := binning.Default()
	args, err := cli.ParseRunArgs(flag.Args(), len(bins))
	if err != nil {
		fmt.Fprintf(os.Stderr, "trainbasis: %v\n", err)
		usage()

		return 2
	}
	for i, k := range args.Components {
		bins[i].Components = k
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	store, err := corpus.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "trainbasis: %v\n", err)

		return 1
	}
	defer store.Close()

	artifacts, err := artifact.NewStore(*artifactDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "trainbasis: %v\n", err)

		return 1
	}

	cfg := pipeline.DefaultConfig(args.Name)
	cfg.Bins = bins
	cfg.Selected = args.Bins
	cfg.TrainStartBatch = args.StartBatch
	cfg.TrainEndBatch = args.EndBatch
	cfg.Workers = *workers

	trainer, err := pipeline.NewTrainer(cfg, store, artifacts, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "trainbasis: %v\n", err)

		return 2
	}

	results, err := trainer.RunBases(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "trainbasis: %v\n", err)

		return 1
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "trainbasis: bin %d: %v\n", r.Bin.Index, r.Err)

			continue
		}
		fmt.Printf("bin %d: %s -> %s\n", r.Bin.Index, r.State, r.BasisPath)
	}
	if failed > 0 {
		return 1
	}

	return 0
}
