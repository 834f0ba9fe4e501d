package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/atlasbot/internal/entity"
)

const (
	tableCatalog     = "catalog_snapshots"
	tableFingerprint = "dataset_fingerprints"
)

const ddlSnapshot = `
CREATE TABLE IF NOT EXISTS catalog_snapshots (
    region       TEXT         PRIMARY KEY,
    fingerprint  TEXT         NOT NULL DEFAULT '',
    records      JSONB        NOT NULL,
    updated_at   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS dataset_fingerprints (
    region       TEXT         PRIMARY KEY,
    info         JSONB        NOT NULL,
    updated_at   TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// PostgresStore keeps the snapshot in PostgreSQL, one row per region in each
// of two tables. Safe for concurrent use.
type PostgresStore struct {
	pool   *pgxpool.Pool
	region string
}

// NewPostgresStore connects to dsn, verifies the connection and runs
// [MigratePostgres].
func NewPostgresStore(ctx context.Context, dsn, region string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("snapshot postgres: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("snapshot postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("snapshot postgres: ping: %w", err)
	}
	if err := MigratePostgres(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("snapshot postgres: migrate: %w", err)
	}
	return &PostgresStore{pool: pool, region: region}, nil
}

// MigratePostgres creates the snapshot tables if they do not exist. It is
// idempotent.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlSnapshot); err != nil {
		return fmt.Errorf("snapshot postgres migrate: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() { s.pool.Close() }

// Ping reports whether the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Load implements [Store].
func (s *PostgresStore) Load(ctx context.Context) (*entity.Catalog, error) {
	const q = `SELECT fingerprint, records FROM catalog_snapshots WHERE region = $1`

	var (
		fingerprint string
		raw         []byte
	)
	err := s.pool.QueryRow(ctx, q, s.region).Scan(&fingerprint, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "load", Location: tableCatalog, Err: err}
	}
	var records []entity.Entity
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, &StorageError{Op: "load", Location: tableCatalog, Err: err}
	}
	return entity.NewCatalog(fingerprint, records), nil
}

// Save implements [Store].
func (s *PostgresStore) Save(ctx context.Context, c *entity.Catalog) error {
	const q = `
		INSERT INTO catalog_snapshots (region, fingerprint, records, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (region) DO UPDATE
		SET fingerprint = EXCLUDED.fingerprint,
		    records     = EXCLUDED.records,
		    updated_at  = now()`

	records := c.Entities()
	if records == nil {
		records = []entity.Entity{}
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return &StorageError{Op: "save", Location: tableCatalog, Err: err}
	}
	if _, err := s.pool.Exec(ctx, q, s.region, c.Fingerprint(), raw); err != nil {
		return &StorageError{Op: "save", Location: tableCatalog, Err: err}
	}
	return nil
}

// LoadFingerprint implements [Store].
func (s *PostgresStore) LoadFingerprint(ctx context.Context) (entity.Fingerprint, error) {
	const q = `SELECT info FROM dataset_fingerprints WHERE region = $1`

	var raw []byte
	err := s.pool.QueryRow(ctx, q, s.region).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "load fingerprint", Location: tableFingerprint, Err: err}
	}
	var fp entity.Fingerprint
	if err := json.Unmarshal(raw, &fp); err != nil {
		return nil, &StorageError{Op: "load fingerprint", Location: tableFingerprint, Err: err}
	}
	return fp, nil
}

// SaveFingerprint implements [Store].
func (s *PostgresStore) SaveFingerprint(ctx context.Context, fp entity.Fingerprint) error {
	const q = `
		INSERT INTO dataset_fingerprints (region, info, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (region) DO UPDATE
		SET info = EXCLUDED.info, updated_at = now()`

	raw, err := json.Marshal(fp)
	if err != nil {
		return &StorageError{Op: "save fingerprint", Location: tableFingerprint, Err: err}
	}
	if _, err := s.pool.Exec(ctx, q, s.region, raw); err != nil {
		return &StorageError{Op: "save fingerprint", Location: tableFingerprint, Err: err}
	}
	return nil
}
