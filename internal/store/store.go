// Package store holds the current station snapshot.
package store

import (
	"sync/atomic"

	"github.com/fgeck/gostation-homelab/internal/models"
)

// Store publishes the current snapshot to concurrent readers.
// It has a single writer, the poller.
type Store struct {
	current atomic.Pointer[models.Snapshot]
}

// New creates a store holding an empty snapshot.
func New() *Store {
	s := &Store{}
	s.current.Store(models.EmptySnapshot())
	return s
}

// Current returns the current snapshot. It is never nil.
func (s *Store) Current() *models.Snapshot {
	return s.current.Load()
}

// Swap installs next and returns the snapshot it replaced.
func (s *Store) Swap(next *models.Snapshot) *models.Snapshot {
	if next == nil {
		next = models.EmptySnapshot()
	}
	return s.current.Swap(next)
}
