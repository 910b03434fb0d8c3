package store

import "errors"

// ErrNotFound is returned when a requested record does not exist in the store.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface.
type Store interface {
	// Config entries
	SaveEntry(e *Entry) error
	GetEntry(id string) (*Entry, error)
	DeleteEntry(id string) error
	ListEntries() ([]*Entry, error)

	// UpdateEntry atomically reads, modifies, and saves an entry in a single
	// transaction. Returns ErrNotFound if the entry does not exist.
	UpdateEntry(id string, fn func(e *Entry) error) error

	// Restore state of light entities
	SaveState(st *LightState) error
	GetState(entityID string) (*LightState, error)
	DeleteState(entityID string) error

	// Close the store
	Close() error
}
