package snapshot

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/MrWong99/atlasbot/internal/entity"
)

// Key schema:
//
//	atlas:{region}:catalog     → gzip(JSON([]entity.Entity))
//	atlas:{region}:fingerprint → JSON(entity.Fingerprint)
const (
	keyPrefix         = "atlas:"
	keySuffixCatalog  = ":catalog"
	keySuffixFinger   = ":fingerprint"
	badgerLocationMem = "badger:memory"
)

// BadgerStore keeps the snapshot in an embedded BadgerDB. The catalog is
// stored gzip-compressed.
type BadgerStore struct {
	db       *badger.DB
	region   string
	location string
}

// NewBadgerStore opens (or creates) a BadgerDB in dir. An empty dir opens an
// in-memory database.
func NewBadgerStore(dir, region string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	location := dir
	if dir == "" {
		opts = opts.WithInMemory(true)
		location = badgerLocationMem
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, &StorageError{Op: "open", Location: location, Err: err}
	}
	return &BadgerStore{db: db, region: region, location: location}, nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("snapshot: close badger: %w", err)
	}
	return nil
}

func (s *BadgerStore) catalogKey() []byte { return []byte(keyPrefix + s.region + keySuffixCatalog) }
func (s *BadgerStore) fingerKey() []byte  { return []byte(keyPrefix + s.region + keySuffixFinger) }

// Load implements [Store].
func (s *BadgerStore) Load(_ context.Context) (*entity.Catalog, error) {
	var records []entity.Entity
	var fp entity.Fingerprint
	err := s.db.View(func(txn *badger.Txn) error {
		if err := getValue(txn, s.catalogKey(), func(val []byte) error {
			zr, err := gzip.NewReader(bytes.NewReader(val))
			if err != nil {
				return err
			}
			defer zr.Close()
			return json.NewDecoder(zr).Decode(&records)
		}); err != nil {
			return err
		}
		err := getValue(txn, s.fingerKey(), func(val []byte) error {
			return json.Unmarshal(val, &fp)
		})
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "load", Location: s.location, Err: err}
	}
	return entity.NewCatalog(fp.Hash(s.region), records), nil
}

// Save implements [Store].
func (s *BadgerStore) Save(_ context.Context, c *entity.Catalog) error {
	records := c.Entities()
	if records == nil {
		records = []entity.Entity{}
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(records); err != nil {
		return &StorageError{Op: "save", Location: s.location, Err: err}
	}
	if err := zw.Close(); err != nil {
		return &StorageError{Op: "save", Location: s.location, Err: err}
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.catalogKey(), buf.Bytes())
	})
	if err != nil {
		return &StorageError{Op: "save", Location: s.location, Err: err}
	}
	return nil
}

// LoadFingerprint implements [Store].
func (s *BadgerStore) LoadFingerprint(_ context.Context) (entity.Fingerprint, error) {
	var fp entity.Fingerprint
	err := s.db.View(func(txn *badger.Txn) error {
		return getValue(txn, s.fingerKey(), func(val []byte) error {
			return json.Unmarshal(val, &fp)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "load fingerprint", Location: s.location, Err: err}
	}
	return fp, nil
}

// SaveFingerprint implements [Store].
func (s *BadgerStore) SaveFingerprint(_ context.Context, fp entity.Fingerprint) error {
	data, err := json.Marshal(fp)
	if err != nil {
		return &StorageError{Op: "save fingerprint", Location: s.location, Err: err}
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.fingerKey(), data)
	})
	if err != nil {
		return &StorageError{Op: "save fingerprint", Location: s.location, Err: err}
	}
	return nil
}

func getValue(txn *badger.Txn, key []byte, fn func(val []byte) error) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(fn)
}
