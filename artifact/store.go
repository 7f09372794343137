package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sedlab/sedemu/binning"
	"github.com/sedlab/sedemu/emulator"
	"github.com/sedlab/sedemu/errs"
	"github.com/sedlab/sedemu/pca"
)

const (
	// ExtBasis is the file extension for PCA basis artifacts.
	ExtBasis = ".basis"
	// ExtEmulator is the file extension for emulator artifacts.
	ExtEmulator = ".emu"
)

// BasisFileName returns the canonical file name for a basis artifact,
// e.g. "fiducial.w3600_5500.pca50.basis".
func BasisFileName(run string, bin binning.Bin, k int) string {
	return fmt.Sprintf("%s.%s.pca%d%s", run, bin.Label(), k, ExtBasis)
}

// EmulatorFileName returns the canonical file name for an emulator artifact.
func EmulatorFileName(run string, bin binning.Bin, k int) string {
	return fmt.Sprintf("%s.%s.pca%d%s", run, bin.Label(), k, ExtEmulator)
}

// Store persists artifacts in a flat directory, addressed by run name and
// wavelength bin. Run names become file name prefixes and must not contain
// path separators.
type Store struct {
	dir  string
	opts []EncodeOption
}

// NewStore creates the directory if needed and returns a Store. The encode
// options apply to every artifact the store writes.
func NewStore(dir string, opts ...EncodeOption) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}

	return &Store{dir: dir, opts: opts}, nil
}

// Dir returns the directory the store writes into.
func (s *Store) Dir() string {
	return s.dir
}

// SaveBasis writes a basis artifact and returns its path. An existing
// artifact for the same run, bin and component count is replaced atomically.
func (s *Store) SaveBasis(run string, bin binning.Bin, b *pca.Basis) (string, error) {
	data, err := EncodeBasis(b, s.opts...)
	if err != nil {
		return "", err
	}

	return s.write(BasisFileName(run, bin, b.K()), data)
}

// SaveEmulator writes an emulator artifact and returns its path.
func (s *Store) SaveEmulator(run string, bin binning.Bin, e *emulator.Emulator) (string, error) {
	data, err := EncodeEmulator(e, s.opts...)
	if err != nil {
		return "", err
	}

	return s.write(EmulatorFileName(run, bin, e.K()), data)
}

// LoadBasis reads the basis artifact for the given run and bin. The
// component count is resolved from the stored file name, so callers do not
// need to know what k the basis was trained with.
//
// Returns:
//   - *pca.Basis: Decoded basis
//   - error: ErrArtifactNotFound if no artifact exists, or decode errors
func (s *Store) LoadBasis(run string, bin binning.Bin) (*pca.Basis, error) {
	data, err := s.read(run, bin, ExtBasis)
	if err != nil {
		return nil, err
	}

	return DecodeBasis(data)
}

// LoadEmulator reads the emulator artifact for the given run and bin.
func (s *Store) LoadEmulator(run string, bin binning.Bin) (*emulator.Emulator, error) {
	data, err := s.read(run, bin, ExtEmulator)
	if err != nil {
		return nil, err
	}

	return DecodeEmulator(data)
}

func (s *Store) write(name string, data []byte) (string, error) {
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)

		return "", fmt.Errorf("write artifact: %w", err)
	}

	return path, nil
}

func (s *Store) read(run string, bin binning.Bin, ext string) ([]byte, error) {
	pattern := filepath.Join(s.dir, fmt.Sprintf("%s.%s.pca*%s", run, bin.Label(), ext))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("scan artifacts: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: run %q bin %d", errs.ErrArtifactNotFound, run, bin.Index)
	}
	// Deterministic pick when several component counts exist for one bin.
	sort.Strings(matches)

	data, err := os.ReadFile(matches[len(matches)-1])
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}

	return data, nil
}
