package orchestrator

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// SessionStore tracks live sessions by id.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	order    []string
}

// NewSessionStore creates an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*Session)}
}

// Create registers a new session for objective under a fresh id.
func (st *SessionStore) Create(objective string) *Session {
	s := NewSession(uuid.NewString(), objective)

	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[s.ID] = s
	st.order = append(st.order, s.ID)
	return s
}

// Get returns the session with the given id.
func (st *SessionStore) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	return s, nil
}

// List returns every session in creation order.
func (st *SessionStore) List() []*Session {
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := make([]*Session, 0, len(st.order))
	for _, id := range st.order {
		out = append(out, st.sessions[id])
	}
	return out
}

// Dispose cancels and forgets a session.
func (st *SessionStore) Dispose(id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	s.Cancel()
	delete(st.sessions, id)
	for i, sid := range st.order {
		if sid == id {
			st.order = append(st.order[:i], st.order[i+1:]...)
			break
		}
	}
	return nil
}

// Status snapshots the session with the given id.
func (st *SessionStore) Status(id string) (Status, error) {
	s, err := st.Get(id)
	if err != nil {
		return Status{}, err
	}
	return s.Status(), nil
}
