package snapshot

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/MrWong99/atlasbot/internal/entity"
)

const (
	// CatalogFile holds the servant records as a JSON array in remote order.
	CatalogFile = "nice_servants.json"

	// FingerprintFile holds the remote version info verbatim.
	FingerprintFile = "api-info.json"
)

// Compile-time interface check.
var _ Store = (*FileStore)(nil)

// FileStore keeps the snapshot as two JSON files in one directory. Writes go
// to a temporary file that is renamed over the target, so a crash never
// leaves a half-written file behind.
type FileStore struct {
	dir    string
	region string

	// mu serialises writers; readers rely on rename atomicity.
	mu sync.Mutex
}

// NewFileStore returns a FileStore rooted at dir, creating the directory if
// needed. region selects which fingerprint hash is attached to loaded
// catalogs.
func NewFileStore(dir, region string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &StorageError{Op: "create dir", Location: dir, Err: err}
	}
	return &FileStore{dir: dir, region: region}, nil
}

// Dir returns the directory the store writes to.
func (s *FileStore) Dir() string { return s.dir }

// Load implements [Store]. The returned catalog carries the region hash from
// the fingerprint file when one exists.
func (s *FileStore) Load(_ context.Context) (*entity.Catalog, error) {
	var records []entity.Entity
	if err := s.readJSON("load", CatalogFile, &records); err != nil {
		return nil, err
	}
	var fp entity.Fingerprint
	if err := s.readJSON("load fingerprint", FingerprintFile, &fp); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return entity.NewCatalog(fp.Hash(s.region), records), nil
}

// Save implements [Store].
func (s *FileStore) Save(_ context.Context, c *entity.Catalog) error {
	records := c.Entities()
	if records == nil {
		records = []entity.Entity{}
	}
	return s.writeJSON("save", CatalogFile, records)
}

// LoadFingerprint implements [Store].
func (s *FileStore) LoadFingerprint(_ context.Context) (entity.Fingerprint, error) {
	var fp entity.Fingerprint
	if err := s.readJSON("load fingerprint", FingerprintFile, &fp); err != nil {
		return nil, err
	}
	return fp, nil
}

// SaveFingerprint implements [Store].
func (s *FileStore) SaveFingerprint(_ context.Context, fp entity.Fingerprint) error {
	return s.writeJSON("save fingerprint", FingerprintFile, fp)
}

func (s *FileStore) readJSON(op, name string, v any) error {
	path := filepath.Join(s.dir, name)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return &StorageError{Op: op, Location: path, Err: err}
	}
	defer f.Close()

	if err := json.NewDecoder(bufio.NewReader(f)).Decode(v); err != nil {
		return &StorageError{Op: op, Location: path, Err: err}
	}
	return nil
}

func (s *FileStore) writeJSON(op, name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, "."+name+".*.tmp")
	if err != nil {
		return &StorageError{Op: op, Location: path, Err: err}
	}
	tmpName := tmp.Name()
	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &StorageError{Op: op, Location: path, Err: err}
	}

	w := bufio.NewWriter(tmp)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return fail(err)
	}
	if err := w.Flush(); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return &StorageError{Op: op, Location: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return &StorageError{Op: op, Location: path, Err: err}
	}
	return nil
}
