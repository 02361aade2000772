// Package storage provides a namespaced key-value store for the state an
// authentication flow carries across a full-page redirect: transient
// flow parameters, decoded user state and cached access tokens.
//
// A Store is a JSON-blob view over one named area of a Backend.  When a
// sub-key is given, operations address a single property of the area's
// blob; with an empty key they address the whole blob.  There is no
// cross-process locking: the last writer wins, which matches the
// single-writer browser-session model this package was designed for.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrStorage is returned when the underlying backend fails a read,
	// write or delete (quota exceeded, serialization failure, etc).
	ErrStorage = errors.New("storage failure")

	// ErrInvalidParameter is returned for invalid constructor parameters.
	ErrInvalidParameter = errors.New("invalid parameter")
)

// Backend is the raw blob store a Store is layered over.  Implementations
// must be safe for concurrent use within one process.
type Backend interface {
	// Get returns the raw blob for the named area.  ok is false when the
	// area has never been written (or was deleted).
	Get(name string) (value string, ok bool, err error)

	// Set writes the raw blob for the named area.
	Set(name string, value string) error

	// Delete removes the named area.  Deleting an absent area is not an
	// error.
	Delete(name string) error
}

// Store is a JSON-object view over one named area of a Backend.
type Store struct {
	name    string
	backend Backend
}

// NewStore creates a Store for the named area on the given backend.
func NewStore(name string, backend Backend) (*Store, error) {
	const op = "storage.NewStore"
	if name == "" {
		return nil, fmt.Errorf("%s: missing area name: %w", op, ErrInvalidParameter)
	}
	if backend == nil {
		return nil, fmt.Errorf("%s: missing backend: %w", op, ErrInvalidParameter)
	}
	return &Store{name: name, backend: backend}, nil
}

// Name returns the storage-area name the store addresses.
func (s *Store) Name() string { return s.name }

// Get returns the raw JSON for the area's blob, or for a single property
// of the blob when key is not empty.  It returns (nil, nil) when the area
// or the property is absent.
func (s *Store) Get(key string) (json.RawMessage, error) {
	const op = "storage.Store.Get"
	raw, ok, err := s.backend.Get(s.name)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to read area %q (%s): %w", op, s.name, err, ErrStorage)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	if key == "" {
		return json.RawMessage(raw), nil
	}
	m, err := s.blob(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	v, ok := m[key]
	if !ok {
		return nil, nil
	}
	return v, nil
}

// GetInto unmarshals the area's blob (or one property of the blob) into
// out.  It returns false without touching out when the value is absent.
func (s *Store) GetInto(key string, out interface{}) (bool, error) {
	const op = "storage.Store.GetInto"
	raw, err := s.Get(key)
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("%s: malformed value in area %q (%s): %w", op, s.name, err, ErrStorage)
	}
	return true, nil
}

// Set writes the whole blob when key is empty (value must serialize to a
// JSON object), otherwise it upserts one property of the blob.
func (s *Store) Set(key string, value interface{}) error {
	const op = "storage.Store.Set"
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%s: unable to serialize value for area %q (%s): %w", op, s.name, err, ErrStorage)
	}
	if key == "" {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(encoded, &m); err != nil {
			return fmt.Errorf("%s: value for area %q is not an object: %w", op, s.name, ErrInvalidParameter)
		}
		return s.write(op, string(encoded))
	}
	m := map[string]json.RawMessage{}
	if raw, ok, err := s.backend.Get(s.name); err != nil {
		return fmt.Errorf("%s: unable to read area %q (%s): %w", op, s.name, err, ErrStorage)
	} else if ok && raw != "" {
		if m, err = s.blob(raw); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	m[key] = encoded
	merged, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("%s: unable to serialize area %q (%s): %w", op, s.name, err, ErrStorage)
	}
	return s.write(op, string(merged))
}

// Delete removes the whole area when key is empty, otherwise it removes
// one property of the blob.  Deleting an absent area or property is not
// an error.
func (s *Store) Delete(key string) error {
	const op = "storage.Store.Delete"
	if key == "" {
		if err := s.backend.Delete(s.name); err != nil {
			return fmt.Errorf("%s: unable to delete area %q (%s): %w", op, s.name, err, ErrStorage)
		}
		return nil
	}
	raw, ok, err := s.backend.Get(s.name)
	if err != nil {
		return fmt.Errorf("%s: unable to read area %q (%s): %w", op, s.name, err, ErrStorage)
	}
	if !ok || raw == "" {
		return nil
	}
	m, err := s.blob(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, ok := m[key]; !ok {
		return nil
	}
	delete(m, key)
	merged, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("%s: unable to serialize area %q (%s): %w", op, s.name, err, ErrStorage)
	}
	return s.write(op, string(merged))
}

// Clear removes the whole area.
func (s *Store) Clear() error {
	return s.Delete("")
}

func (s *Store) blob(raw string) (map[string]json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("malformed blob in area %q (%s): %w", s.name, err, ErrStorage)
	}
	return m, nil
}

func (s *Store) write(op, raw string) error {
	if err := s.backend.Set(s.name, raw); err != nil {
		return fmt.Errorf("%s: unable to write area %q (%s): %w", op, s.name, err, ErrStorage)
	}
	return nil
}
