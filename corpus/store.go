// Package corpus implements the durable store and batch builder for the
// training and testing corpora.
//
// The store keys every (ParameterVector, SED) pair by (role, batch index,
// sample index), so batch builds across processes have disjoint write sets
// and need no locking for correctness. A batch becomes visible to readers
// only once its completion marker is set; WriteBatch replaces a batch
// atomically, which makes re-runs idempotent.
package corpus

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/sedlab/sedemu/compress"
	"github.com/sedlab/sedemu/endian"
	"github.com/sedlab/sedemu/errs"
	"github.com/sedlab/sedemu/internal/hash"
	"github.com/sedlab/sedemu/internal/options"
	"github.com/sedlab/sedemu/spectrum"
)

const (
	// RoleTrain labels the training corpus (1,000,000 entries in the
	// reference run).
	RoleTrain = "train"
	// RoleTest labels the held-out testing corpus (100,000 entries).
	RoleTest = "test"
)

const schema = `
CREATE TABLE IF NOT EXISTS samples (
	role      TEXT    NOT NULL,
	batch     INTEGER NOT NULL,
	idx       INTEGER NOT NULL,
	key_hash  INTEGER NOT NULL,
	params    BLOB    NOT NULL,
	log_flux  BLOB    NOT NULL,
	PRIMARY KEY (role, batch, idx)
);

CREATE TABLE IF NOT EXISTS batches (
	role         TEXT    NOT NULL,
	batch        INTEGER NOT NULL,
	sample_count INTEGER NOT NULL,
	complete     INTEGER NOT NULL DEFAULT 0,
	created_at   TEXT    NOT NULL,
	PRIMARY KEY (role, batch)
);

CREATE TABLE IF NOT EXISTS grids (
	role TEXT PRIMARY KEY,
	wave BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS builds (
	build_id    TEXT    PRIMARY KEY,
	role        TEXT    NOT NULL,
	start_batch INTEGER NOT NULL,
	end_batch   INTEGER NOT NULL,
	base_seed   INTEGER NOT NULL,
	created_at  TEXT    NOT NULL
);
`

// Sample is one stored corpus entry.
type Sample struct {
	Batch   int
	Index   int
	Params  spectrum.ParameterVector
	LogFlux []float64
}

// Store manages the corpus in SQLite.
type Store struct {
	db          *sql.DB
	engine      endian.EndianEngine
	codec       compress.Codec
	compression compress.Type
}

// StoreOption configures a Store.
type StoreOption = options.Option[*Store]

// WithCompression selects the codec used for newly written vectors.
// Existing blobs remain readable: each blob records its own codec.
func WithCompression(ct compress.Type) StoreOption {
	return options.New(func(s *Store) error {
		codec, err := compress.CreateCodec(ct, "corpus")
		if err != nil {
			return err
		}
		s.codec = codec
		s.compression = ct

		return nil
	})
}

// Open opens (creating if necessary) a corpus database and runs migrations.
func Open(path string, opts ...StoreOption) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open corpus db: %w", err)
	}
	// Single connection: concurrent batch writers within this process
	// serialize here instead of hitting SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	// The busy timeout covers writers in other processes sharing the file.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()

			return nil, fmt.Errorf("pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()

		return nil, fmt.Errorf("migrate: %w", err)
	}

	s := &Store{
		db:          db,
		engine:      endian.GetLittleEndianEngine(),
		codec:       compress.NewZstdCompressor(),
		compression: compress.TypeZstd,
	}
	if err := options.Apply(s, opts...); err != nil {
		db.Close()

		return nil, err
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutGrid stores the shared wavelength grid for a role. The first writer
// wins; every later call (from any process) must present an identical grid.
func (s *Store) PutGrid(role string, wave []float64) error {
	blob, err := encodeFloats(s.engine, s.codec, s.compression, wave)
	if err != nil {
		return err
	}
	// Racing writers all insert-or-ignore, then verify against whichever
	// row landed first.
	_, err = s.db.Exec(`INSERT OR IGNORE INTO grids (role, wave) VALUES (?, ?)`, role, blob)
	if err != nil {
		return fmt.Errorf("insert grid: %w", err)
	}

	existing, err := s.Grid(role)
	if err != nil {
		return err
	}
	if len(existing) != len(wave) {
		return fmt.Errorf("grid for role %q already stored with %d samples, got %d",
			role, len(existing), len(wave))
	}
	for i := range wave {
		if existing[i] != wave[i] {
			return fmt.Errorf("grid for role %q already stored with different wavelengths", role)
		}
	}

	return nil
}

// Grid reads the shared wavelength grid for a role.
func (s *Store) Grid(role string) ([]float64, error) {
	var blob []byte
	err := s.db.QueryRow(`SELECT wave FROM grids WHERE role = ?`, role).Scan(&blob)
	if err != nil {
		return nil, err
	}

	return decodeFloats(s.engine, blob)
}

// WriteBatch atomically replaces the contents of one batch and marks it
// complete. Existing rows for the (role, batch) key are dropped in the same
// transaction, so a partially written earlier attempt can never leak into
// readers.
func (s *Store) WriteBatch(role string, batch int, samples []Sample) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM samples WHERE role = ? AND batch = ?`, role, batch); err != nil {
		return fmt.Errorf("clear batch: %w", err)
	}

	insert, err := tx.Prepare(
		`INSERT INTO samples (role, batch, idx, key_hash, params, log_flux) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer insert.Close()

	for _, sample := range samples {
		paramBlob, err := encodeFloats(s.engine, s.codec, s.compression, sample.Params)
		if err != nil {
			return err
		}
		fluxBlob, err := encodeFloats(s.engine, s.codec, s.compression, sample.LogFlux)
		if err != nil {
			return err
		}
		key := int64(hash.SampleKey(role, batch, sample.Index))
		if _, err := insert.Exec(role, batch, sample.Index, key, paramBlob, fluxBlob); err != nil {
			return fmt.Errorf("insert sample (%s, %d, %d): %w", role, batch, sample.Index, err)
		}
	}

	_, err = tx.Exec(
		`INSERT INTO batches (role, batch, sample_count, complete, created_at) VALUES (?, ?, ?, 1, ?)
		 ON CONFLICT(role, batch) DO UPDATE SET sample_count = excluded.sample_count,
		 complete = 1, created_at = excluded.created_at`,
		role, batch, len(samples), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("mark batch complete: %w", err)
	}

	return tx.Commit()
}

// BatchComplete reports whether a batch exists and carries its completion
// marker.
func (s *Store) BatchComplete(role string, batch int) (bool, error) {
	var complete int
	err := s.db.QueryRow(
		`SELECT complete FROM batches WHERE role = ? AND batch = ?`, role, batch,
	).Scan(&complete)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check batch (%s, %d): %w", role, batch, err)
	}

	return complete == 1, nil
}

// BatchCount returns the stored sample count of a complete batch.
func (s *Store) BatchCount(role string, batch int) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT sample_count FROM batches WHERE role = ? AND batch = ?`, role, batch,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("batch (%s, %d): %w", role, batch, errs.ErrBatchNotFound)
	}
	if err != nil {
		return 0, err
	}

	return count, nil
}

// ReadBatch reads every sample of one complete batch in index order.
// Returns errs.ErrBatchIncomplete for a batch still being written and
// errs.ErrBatchNotFound for an absent one.
func (s *Store) ReadBatch(role string, batch int) ([]Sample, error) {
	complete, err := s.BatchComplete(role, batch)
	if err != nil {
		return nil, err
	}
	if !complete {
		exists := false
		row := s.db.QueryRow(`SELECT COUNT(*) FROM batches WHERE role = ? AND batch = ?`, role, batch)
		var n int
		if err := row.Scan(&n); err == nil && n > 0 {
			exists = true
		}
		if exists {
			return nil, fmt.Errorf("batch (%s, %d): %w", role, batch, errs.ErrBatchIncomplete)
		}

		return nil, fmt.Errorf("batch (%s, %d): %w", role, batch, errs.ErrBatchNotFound)
	}

	rows, err := s.db.Query(
		`SELECT idx, params, log_flux FROM samples WHERE role = ? AND batch = ? ORDER BY idx`,
		role, batch,
	)
	if err != nil {
		return nil, fmt.Errorf("read batch (%s, %d): %w", role, batch, err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var idx int
		var paramBlob, fluxBlob []byte
		if err := rows.Scan(&idx, &paramBlob, &fluxBlob); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		params, err := decodeFloats(s.engine, paramBlob)
		if err != nil {
			return nil, err
		}
		flux, err := decodeFloats(s.engine, fluxBlob)
		if err != nil {
			return nil, err
		}
		samples = append(samples, Sample{
			Batch:   batch,
			Index:   idx,
			Params:  params,
			LogFlux: flux,
		})
	}

	return samples, rows.Err()
}

// ForEachSample streams every sample of the complete batches in
// [startBatch, endBatch] in (batch, index) order. Incomplete batches in the
// range are an error: a trainer must never consume a half-written batch.
func (s *Store) ForEachSample(role string, startBatch, endBatch int, fn func(Sample) error) error {
	for batch := startBatch; batch <= endBatch; batch++ {
		samples, err := s.ReadBatch(role, batch)
		if err != nil {
			return err
		}
		for _, sample := range samples {
			if err := fn(sample); err != nil {
				return err
			}
		}
	}

	return nil
}

// CountSamples counts stored samples across complete batches in the range.
func (s *Store) CountSamples(role string, startBatch, endBatch int) (int, error) {
	total := 0
	for batch := startBatch; batch <= endBatch; batch++ {
		n, err := s.BatchCount(role, batch)
		if err != nil {
			return 0, err
		}
		total += n
	}

	return total, nil
}

// RecordBuild logs one builder run for provenance.
func (s *Store) RecordBuild(role string, startBatch, endBatch int, baseSeed uint64) (string, error) {
	id := uuid.New().String()
	_, err := s.db.Exec(
		`INSERT INTO builds (build_id, role, start_batch, end_batch, base_seed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, role, startBatch, endBatch, int64(baseSeed), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("record build: %w", err)
	}

	return id, nil
}
