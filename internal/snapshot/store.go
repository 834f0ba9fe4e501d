// Package snapshot persists the servant catalog and the dataset fingerprint
// that produced it, so a restart can skip the bulk download when the remote
// dataset has not changed.
//
// Three backends implement [Store]: [FileStore] keeps two flat JSON files in
// a directory, [BadgerStore] keeps two keys per region in an embedded
// BadgerDB and [PostgresStore] keeps one row per region in PostgreSQL.
package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/atlasbot/internal/entity"
)

// ErrNotFound is returned when nothing has been persisted yet.
var ErrNotFound = errors.New("snapshot: not found")

// Store persists one catalog and one fingerprint. Each Save replaces the
// previous value in full.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Load returns the persisted catalog, or [ErrNotFound].
	Load(ctx context.Context) (*entity.Catalog, error)

	// Save overwrites the persisted catalog.
	Save(ctx context.Context, c *entity.Catalog) error

	// LoadFingerprint returns the persisted fingerprint, or [ErrNotFound].
	LoadFingerprint(ctx context.Context) (entity.Fingerprint, error)

	// SaveFingerprint overwrites the persisted fingerprint.
	SaveFingerprint(ctx context.Context, fp entity.Fingerprint) error
}

// StorageError reports a failed read or write of persisted state.
type StorageError struct {
	// Op is the failing operation (load, save, load fingerprint, ...).
	Op string

	// Location is the file path or table name involved.
	Location string

	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("snapshot: %s %s: %v", e.Op, e.Location, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
