// Package state persists the monitor's last-active instant so a
// restart does not reset the inactivity clock.
package state

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketMonitor = []byte("monitor")
	keyLastActive = []byte("last_active")
)

// Store is a bbolt-backed checkpoint store.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open state db %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketMonitor)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create monitor bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// LastActive returns the checkpointed last-active instant, if any.
func (s *Store) LastActive() (time.Time, bool, error) {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketMonitor).Get(keyLastActive); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read last-active: %w", err)
	}
	if raw == nil {
		return time.Time{}, false, nil
	}

	t, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse last-active %q: %w", raw, err)
	}
	return t, true, nil
}

// SetLastActive records the last-active instant.
func (s *Store) SetLastActive(t time.Time) error {
	value := []byte(t.UTC().Format(time.RFC3339Nano))
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMonitor).Put(keyLastActive, value)
	})
	if err != nil {
		return fmt.Errorf("write last-active: %w", err)
	}
	return nil
}
