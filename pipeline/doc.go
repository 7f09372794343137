// Package pipeline orchestrates per-bin training runs: it reads complete
// corpus batches, trains a PCA basis and an emulator for each requested
// wavelength bin, validates against the test corpus and persists artifacts.
//
// Each bin walks a fixed state machine:
//
//	Untrained -> BasisTrained -> EmulatorTrained -> Validated
//
// Bins are independent and trained in parallel. A bin that misses its
// validation threshold stays in EmulatorTrained and reports the miss, but
// never blocks other bins. Basis or fit failures are likewise confined to
// their bin; only configuration errors abort a run before work starts.
package pipeline
