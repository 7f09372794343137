// Package cli parses the positional argument convention shared by the
// training commands: run name, inclusive batch range, per-bin component
// counts and the wavelength bins to process.
package cli

import (
	"fmt"
	"strconv"
	"strings"
)

// RunArgs is the parsed positional argument set of a training command.
type RunArgs struct {
	// Name is the free-form run label.
	Name string
	// StartBatch and EndBatch bound the inclusive training batch range.
	StartBatch int
	EndBatch   int
	// Components holds one PCA component count per wavelength bin.
	Components []int
	// Bins lists the bin indices to process, in argument order.
	Bins []int
}

// ParseRunArgs parses positional arguments of the form:
//
//	<name> <start_batch> <end_batch> <k0,k1,...> <bin> [<bin> ...]
//
// binCount is the size of the configured bin table; the component list must
// have exactly that many entries and every bin index must be in range.
func ParseRunArgs(args []string, binCount int) (RunArgs, error) {
	if len(args) < 5 {
		return RunArgs{}, fmt.Errorf("expected at least 5 arguments, got %d", len(args))
	}

	parsed := RunArgs{Name: args[0]}
	if parsed.Name == "" {
		return RunArgs{}, fmt.Errorf("empty run name")
	}

	var err error
	parsed.StartBatch, err = strconv.Atoi(args[1])
	if err != nil {
		return RunArgs{}, fmt.Errorf("start batch %q: %w", args[1], err)
	}
	parsed.EndBatch, err = strconv.Atoi(args[2])
	if err != nil {
		return RunArgs{}, fmt.Errorf("end batch %q: %w", args[2], err)
	}
	if parsed.StartBatch < 0 || parsed.EndBatch < parsed.StartBatch {
		return RunArgs{}, fmt.Errorf("invalid batch range [%d, %d]", parsed.StartBatch, parsed.EndBatch)
	}

	counts := strings.Split(args[3], ",")
	if len(counts) != binCount {
		return RunArgs{}, fmt.Errorf("component counts %q: want %d comma-separated values", args[3], binCount)
	}
	parsed.Components = make([]int, binCount)
	for i, c := range counts {
		k, err := strconv.Atoi(strings.TrimSpace(c))
		if err != nil {
			return RunArgs{}, fmt.Errorf("component count %q: %w", c, err)
		}
		if k <= 0 {
			return RunArgs{}, fmt.Errorf("component count for bin %d must be positive, got %d", i, k)
		}
		parsed.Components[i] = k
	}

	seen := make(map[int]bool, len(args)-4)
	for _, a := range args[4:] {
		idx, err := strconv.Atoi(a)
		if err != nil {
			return RunArgs{}, fmt.Errorf("bin index %q: %w", a, err)
		}
		if idx < 0 || idx >= binCount {
			return RunArgs{}, fmt.Errorf("bin index %d out of range [0, %d]", idx, binCount-1)
		}
		if seen[idx] {
			return RunArgs{}, fmt.Errorf("bin index %d given twice", idx)
		}
		seen[idx] = true
		parsed.Bins = append(parsed.Bins, idx)
	}

	return parsed, nil
}
