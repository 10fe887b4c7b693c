// Package store persists dcb sessions in an embedded bbolt database: the
// branch table, the commit log and the snapshots of open branches survive
// between CLI invocations in one file next to the configuration.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketSession = []byte("session")
	bucketKV      = []byte("kv")
)

// ErrNotInitialized is returned when a bucket is missing because Initialize was never run.
var ErrNotInitialized = errors.New("session store not initialized")

// Store is a bbolt-backed session store.
type Store struct {
	db *bolt.DB
}

// New opens or creates the session database at dbPath, creating parent
// directories as needed. It waits up to a second for another process
// holding the file lock.
func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create session directory: %w", err)
		}
	}
	return open(dbPath, &bolt.Options{Timeout: time.Second})
}

// OpenReadOnly opens an existing session database with a shared lock.
func OpenReadOnly(dbPath string) (*Store, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return open(dbPath, &bolt.Options{ReadOnly: true, Timeout: 200 * time.Millisecond})
}

func open(dbPath string, opts *bolt.Options) (*Store, error) {
	db, err := bolt.Open(dbPath, 0o600, opts)
	if err != nil {
		return nil, fmt.Errorf("open session store %s: %w", dbPath, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Initialize creates the buckets. It is idempotent.
func (s *Store) Initialize() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketSession, bucketKV} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// bucket returns the named bucket, or ErrNotInitialized.
func bucket(tx *bolt.Tx, name []byte) (*bolt.Bucket, error) {
	b := tx.Bucket(name)
	if b == nil {
		return nil, fmt.Errorf("%w: missing bucket %s", ErrNotInitialized, name)
	}
	return b, nil
}

// GetValue returns a metadata value, or "" if unset.
func (s *Store) GetValue(key string) (string, error) {
	var val string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKV)
		if b == nil {
			return nil
		}
		val = string(b.Get([]byte(key)))
		return nil
	})
	return val, err
}

// SetValue stores a metadata value.
func (s *Store) SetValue(key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, bucketKV)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), []byte(value))
	})
}

// SavedAt returns when the session was last saved, or the zero time.
func (s *Store) SavedAt() (time.Time, error) {
	v, err := s.GetValue(savedAtKey)
	if err != nil || v == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s: %w", savedAtKey, err)
	}
	return t, nil
}
