package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// Manager owns the in-process cache of session states and the per-user
// locks that serialize turns for the same user. States are created on
// first contact or explicit reset and live until process termination;
// they are never evicted.
type Manager struct {
	store       Store
	defaultMood string

	mu       sync.Mutex
	sessions map[string]*State
	locks    map[string]*sync.Mutex
}

// NewManager creates a manager backed by the given store. Fresh
// sessions start with defaultMood.
func NewManager(store Store, defaultMood string) *Manager {
	return &Manager{
		store:       store,
		defaultMood: defaultMood,
		sessions:    make(map[string]*State),
		locks:       make(map[string]*sync.Mutex),
	}
}

// Lock acquires the per-user mutex and returns the unlock function.
// All reads and writes of a user's State must happen under this lock.
func (m *Manager) Lock(userID string) func() {
	m.mu.Lock()
	l, ok := m.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[userID] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Get returns the state for userID, loading it from the store on first
// access or creating (and immediately persisting) a fresh one when no
// usable record exists. The second result reports whether the state
// was newly created. Store failures are logged and degrade to a fresh
// in-memory state; they never surface to the caller.
// Callers must hold the user's lock.
func (m *Manager) Get(ctx context.Context, userID string) (*State, bool) {
	m.mu.Lock()
	if st, ok := m.sessions[userID]; ok {
		m.mu.Unlock()
		return st, false
	}
	m.mu.Unlock()

	st, err := m.store.Load(ctx, userID)
	created := false
	switch {
	case err == nil:
		// Loaded records can predate mood validation; the orchestrator
		// normalizes the mood before use.
	case errors.Is(err, ErrNotFound):
		st = NewState(m.defaultMood)
		created = true
	default:
		log.Printf("[SessionManager] load failed for user %s, starting fresh: %v", userID, err)
		st = NewState(m.defaultMood)
		created = true
	}

	m.mu.Lock()
	m.sessions[userID] = st
	m.mu.Unlock()

	if created {
		if err := m.store.Save(ctx, userID, st); err != nil {
			log.Printf("[SessionManager] initial save failed for user %s: %v", userID, err)
		}
	}

	return st, created
}

// Save persists the cached state for userID. It is a no-op for users
// that were never loaded. Callers must hold the user's lock.
func (m *Manager) Save(ctx context.Context, userID string) error {
	m.mu.Lock()
	st, ok := m.sessions[userID]
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return m.store.Save(ctx, userID, st)
}

// Reset replaces the user's state with a fresh one (default mood, zero
// counters, empty transcript, empty memories) and persists it
// immediately. Callers must hold the user's lock.
func (m *Manager) Reset(ctx context.Context, userID string) *State {
	st := NewState(m.defaultMood)
	st.LastInteractionTime = time.Now().Unix()

	m.mu.Lock()
	m.sessions[userID] = st
	m.mu.Unlock()

	if err := m.store.Save(ctx, userID, st); err != nil {
		log.Printf("[SessionManager] reset save failed for user %s: %v", userID, err)
	}
	return st
}

// SaveAll persists every loaded session, taking each user's lock in
// turn. Used by the periodic autosave sweep and at shutdown. Returns
// the number of failed saves; failures are logged per user.
func (m *Manager) SaveAll(ctx context.Context) int {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	failed := 0
	for _, id := range ids {
		unlock := m.Lock(id)
		err := m.Save(ctx, id)
		unlock()
		if err != nil {
			failed++
			log.Printf("[SessionManager] autosave failed for user %s: %v", id, err)
		}
	}
	return failed
}

// Loaded returns the number of sessions currently in memory.
func (m *Manager) Loaded() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close closes the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}
