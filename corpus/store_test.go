package corpus

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/sedlab/sedemu/compress"
	"github.com/sedlab/sedemu/errs"
	"github.com/sedlab/sedemu/spectrum"
)

func openTestStore(t *testing.T, opts ...StoreOption) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "corpus.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func testSamples(batch, n, dim int) []Sample {
	samples := make([]Sample, n)
	for i := range samples {
		params := make(spectrum.ParameterVector, 3)
		flux := make([]float64, dim)
		for j := range params {
			params[j] = float64(batch*1000+i) + float64(j)*0.25
		}
		for j := range flux {
			flux[j] = -18.0 - float64(j)*0.001 - float64(i)*0.01
		}
		samples[i] = Sample{Batch: batch, Index: i, Params: params, LogFlux: flux}
	}

	return samples
}

func TestWriteReadBatchRoundTrip(t *testing.T) {
	for _, ct := range []compress.Type{compress.TypeNone, compress.TypeZstd, compress.TypeS2, compress.TypeLZ4} {
		t.Run(ct.String(), func(t *testing.T) {
			store := openTestStore(t, WithCompression(ct))
			written := testSamples(0, 25, 128)

			require.NoError(t, store.WriteBatch(RoleTrain, 0, written))

			read, err := store.ReadBatch(RoleTrain, 0)
			require.NoError(t, err)
			require.Equal(t, written, read)
		})
	}
}

func TestReadBatchNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.ReadBatch(RoleTrain, 7)
	require.ErrorIs(t, err, errs.ErrBatchNotFound)
}

func TestBatchCompleteMarker(t *testing.T) {
	store := openTestStore(t)

	complete, err := store.BatchComplete(RoleTrain, 0)
	require.NoError(t, err)
	require.False(t, complete)

	require.NoError(t, store.WriteBatch(RoleTrain, 0, testSamples(0, 5, 16)))

	complete, err = store.BatchComplete(RoleTrain, 0)
	require.NoError(t, err)
	require.True(t, complete)

	count, err := store.BatchCount(RoleTrain, 0)
	require.NoError(t, err)
	require.Equal(t, 5, count)
}

func TestWriteBatchAtomicReplace(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.WriteBatch(RoleTrain, 3, testSamples(3, 10, 16)))
	replacement := testSamples(3, 4, 16)
	require.NoError(t, store.WriteBatch(RoleTrain, 3, replacement))

	read, err := store.ReadBatch(RoleTrain, 3)
	require.NoError(t, err)
	require.Equal(t, replacement, read)
}

func TestRolesAndBatchesAreDisjoint(t *testing.T) {
	store := openTestStore(t)

	trainSamples := testSamples(0, 5, 8)
	testRole := testSamples(0, 3, 8)
	require.NoError(t, store.WriteBatch(RoleTrain, 0, trainSamples))
	require.NoError(t, store.WriteBatch(RoleTest, 0, testRole))
	require.NoError(t, store.WriteBatch(RoleTrain, 1, testSamples(1, 7, 8)))

	got, err := store.ReadBatch(RoleTrain, 0)
	require.NoError(t, err)
	require.Len(t, got, 5)

	got, err = store.ReadBatch(RoleTest, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)

	total, err := store.CountSamples(RoleTrain, 0, 1)
	require.NoError(t, err)
	require.Equal(t, 12, total)
}

func TestForEachSampleOrder(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.WriteBatch(RoleTrain, 0, testSamples(0, 3, 8)))
	require.NoError(t, store.WriteBatch(RoleTrain, 1, testSamples(1, 3, 8)))

	var keys [][2]int
	err := store.ForEachSample(RoleTrain, 0, 1, func(s Sample) error {
		keys = append(keys, [2]int{s.Batch, s.Index})

		return nil
	})
	require.NoError(t, err)
	require.Equal(t, [][2]int{{0, 0}, {0, 1}, {0, 2}, {1, 0}, {1, 1}, {1, 2}}, keys)
}

func TestForEachSampleMissingBatch(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.WriteBatch(RoleTrain, 0, testSamples(0, 2, 8)))

	err := store.ForEachSample(RoleTrain, 0, 1, func(Sample) error { return nil })
	require.ErrorIs(t, err, errs.ErrBatchNotFound)
}

func TestGridPutStoreOnce(t *testing.T) {
	store := openTestStore(t)
	grid := spectrum.LinearGrid(1000, 60000, 256)

	require.NoError(t, store.PutGrid(RoleTrain, grid))

	got, err := store.Grid(RoleTrain)
	require.NoError(t, err)
	require.Equal(t, grid, got)

	// Re-putting the identical grid is a no-op.
	require.NoError(t, store.PutGrid(RoleTrain, grid))

	// A conflicting grid is rejected.
	other := spectrum.LinearGrid(1000, 60000, 128)
	require.Error(t, store.PutGrid(RoleTrain, other))
}

func TestGridPutConcurrentStores(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.db")
	first, err := Open(path)
	require.NoError(t, err)
	defer first.Close()
	second, err := Open(path)
	require.NoError(t, err)
	defer second.Close()

	// Two independent handles on one file race on the identical grid, as
	// builder processes on disjoint batch ranges do.
	grid := spectrum.LinearGrid(1000, 60000, 256)
	var g errgroup.Group
	for _, store := range []*Store{first, second} {
		for i := 0; i < 4; i++ {
			g.Go(func() error {
				return store.PutGrid(RoleTrain, grid)
			})
		}
	}
	require.NoError(t, g.Wait())

	got, err := first.Grid(RoleTrain)
	require.NoError(t, err)
	require.Equal(t, grid, got)

	// A conflicting grid from the other handle is still rejected.
	other := spectrum.LinearGrid(1000, 60000, 128)
	require.Error(t, second.PutGrid(RoleTrain, other))
}

func TestOpenBadPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "corpus.db"))
	require.Error(t, err)
}

func TestRecordBuild(t *testing.T) {
	store := openTestStore(t)

	id, err := store.RecordBuild(RoleTrain, 0, 9, 42)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	other, err := store.RecordBuild(RoleTrain, 10, 19, 42)
	require.NoError(t, err)
	require.NotEqual(t, id, other)
}
