// Package memstore keeps session markers in process memory
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	consoleerrors "github.com/jrsteele09/device-console/internal/errors"
	"github.com/jrsteele09/device-console/sessions"
)

// Store is an in-memory implementation of sessions.Store
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*sessions.Marker // sessionID -> marker
	events   *sessions.Broadcaster
	now      func() time.Time
}

var _ sessions.Store = (*Store)(nil)

// New creates a new in-memory session store
func New() *Store {
	return &Store{
		sessions: make(map[string]*sessions.Marker),
		events:   sessions.NewBroadcaster(),
		now:      time.Now,
	}
}

// Put creates or updates a session marker
func (s *Store) Put(_ context.Context, m *sessions.Marker) error {
	if m == nil || m.ID == "" {
		return fmt.Errorf("sessionID is required")
	}

	s.mu.Lock()
	// Store a copy so callers cannot modify it
	s.sessions[m.ID] = m.Clone()
	s.mu.Unlock()

	s.events.Publish(sessions.Event{Kind: sessions.EventPut, SessionID: m.ID})
	return nil
}

// Get retrieves a session marker. Expired markers are removed on read.
func (s *Store) Get(_ context.Context, id string) (*sessions.Marker, error) {
	if id == "" {
		return nil, consoleerrors.Wrapf(consoleerrors.ErrSessionNotFound, "empty session id")
	}

	s.mu.RLock()
	m, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, consoleerrors.ErrSessionNotFound
	}

	if !s.now().Before(m.ExpiresAt) {
		s.remove(id)
		return nil, consoleerrors.ErrSessionNotFound
	}
	return m.Clone(), nil
}

// Delete removes a session marker
func (s *Store) Delete(_ context.Context, id string) error {
	if id == "" {
		return nil
	}
	s.remove(id)
	return nil
}

func (s *Store) Subscribe(ctx context.Context) (<-chan sessions.Event, error) {
	return s.events.Subscribe(ctx)
}

func (s *Store) Close() error {
	s.events.Close()
	return nil
}

// Len returns the number of stored markers, expired or not
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Store) remove(id string) {
	s.mu.Lock()
	_, existed := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if existed {
		s.events.Publish(sessions.Event{Kind: sessions.EventDelete, SessionID: id})
	}
}
