package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sedlab/sedemu/binning"
	"github.com/sedlab/sedemu/compress"
	"github.com/sedlab/sedemu/errs"
)

func TestStoreBasisRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	bins := binning.Default()
	basis := trainedBasis(t, 2, 4)

	path, err := store.SaveBasis("fiducial", bins[2], basis)
	require.NoError(t, err)
	require.Equal(t, "fiducial.w3600_5500.pca4.basis", filepath.Base(path))

	got, err := store.LoadBasis("fiducial", bins[2])
	require.NoError(t, err)
	requireBasisEqual(t, basis, got)
}

func TestStoreEmulatorRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir(), WithCompression(compress.TypeLZ4))
	require.NoError(t, err)

	bins := binning.Default()
	emu := trainedEmulator(t, 4, 5)

	path, err := store.SaveEmulator("fiducial", bins[4], emu)
	require.NoError(t, err)
	require.Equal(t, "fiducial.w7410_60000.pca5.emu", filepath.Base(path))

	got, err := store.LoadEmulator("fiducial", bins[4])
	require.NoError(t, err)
	requireEmulatorEqual(t, emu, got)
}

func TestStoreMissingArtifact(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	bins := binning.Default()
	_, err = store.LoadBasis("nope", bins[0])
	require.ErrorIs(t, err, errs.ErrArtifactNotFound)

	_, err = store.LoadEmulator("nope", bins[0])
	require.ErrorIs(t, err, errs.ErrArtifactNotFound)
}

func TestStoreRunsAreIsolated(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	bins := binning.Default()
	a := trainedBasis(t, 0, 3)
	b := trainedBasis(t, 0, 2)

	_, err = store.SaveBasis("run-a", bins[0], a)
	require.NoError(t, err)
	_, err = store.SaveBasis("run-b", bins[0], b)
	require.NoError(t, err)

	gotA, err := store.LoadBasis("run-a", bins[0])
	require.NoError(t, err)
	requireBasisEqual(t, a, gotA)

	gotB, err := store.LoadBasis("run-b", bins[0])
	require.NoError(t, err)
	requireBasisEqual(t, b, gotB)
}

func TestStoreOverwriteReplaces(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	bins := binning.Default()
	first := trainedBasis(t, 1, 3)
	second := trainedBasis(t, 1, 3)
	second.SampleCount++

	_, err = store.SaveBasis("fiducial", bins[1], first)
	require.NoError(t, err)
	_, err = store.SaveBasis("fiducial", bins[1], second)
	require.NoError(t, err)

	got, err := store.LoadBasis("fiducial", bins[1])
	require.NoError(t, err)
	require.Equal(t, second.SampleCount, got.SampleCount)

	// No temp files left behind.
	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
