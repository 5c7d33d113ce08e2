// Package presets persists named snapshots of the shared parameter tree in
// a local bbolt database. Presets live on the control side only; loading one
// applies it to the live scene and the sync layer propagates it from there.
package presets

import (
	"encoding/json"
	"errors"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/lumen-foundry/stagelink/internal/scene"
)

var bucketPresets = []byte("presets")

// ErrNotFound is returned when no preset exists under the requested name.
var ErrNotFound = errors.New("preset not found")

// Store is a bbolt-backed preset library.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the preset database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketPresets)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Save stores p under name, overwriting any existing preset.
func (s *Store) Save(name string, p scene.Params) error {
	if name == "" {
		return errors.New("preset name must not be empty")
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPresets).Put([]byte(name), raw)
	})
}

// Load returns the preset stored under name.
func (s *Store) Load(name string) (scene.Params, error) {
	var p scene.Params
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketPresets).Get([]byte(name))
		if raw == nil {
			return ErrNotFound
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("preset %q is corrupt: %w", name, err)
		}
		return nil
	})
	return p, err
}

// List returns all preset names in key order.
func (s *Store) List() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPresets).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, err
}

// Delete removes the preset under name. Deleting a missing preset is a no-op.
func (s *Store) Delete(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPresets).Delete([]byte(name))
	})
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
