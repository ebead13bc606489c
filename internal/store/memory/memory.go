// Package memory implements store.Store with an in-process copy. Used
// for testing and development. Not suitable for production (no
// persistence across restarts).
package memory

import (
	"context"
	"encoding/json"
	"sync"

	"papertradingv1/internal/model"
)

// Store keeps the latest snapshot as marshalled JSON so Load exercises
// the same schema round-trip as the durable backends.
type Store struct {
	mu   sync.Mutex
	data []byte

	// SaveErr, when set, is returned by every Save. Lets tests exercise
	// the fire-and-forget persistence failure path.
	SaveErr error

	// Saves counts successful Save calls.
	Saves int
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{}
}

func (s *Store) Load(_ context.Context) (*model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		return nil, nil
	}
	var snap model.Snapshot
	if err := json.Unmarshal(s.data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *Store) Save(_ context.Context, snap *model.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.SaveErr != nil {
		return s.SaveErr
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	s.data = data
	s.Saves++
	return nil
}

func (s *Store) Close() error { return nil }
