package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/wricardo/mcp-training/guardpatrol/puzzle/engine"
	"github.com/wricardo/mcp-training/guardpatrol/puzzle/service"
)

var (
	ErrSessionNotFound      = service.ErrSessionNotFound
	ErrSessionAlreadyExists = errors.New("session already exists")
	ErrInvalidSessionID     = errors.New("invalid session ID")
)

const (
	// maxIDAttempts bounds how many short IDs Create tries before widening
	maxIDAttempts = 16
	maxIDLength   = 64
)

// Manager owns the live patrol sessions. Sessions are keyed by lower-cased
// ID, so "Alpha" and "alpha" name the same patrol. When a persistence layer
// is attached every mutation is written through to it, and sessions missing
// from memory are loaded from it lazily.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*service.Session
	persistence SessionPersistence
}

// NewManager returns a memory-only manager
func NewManager() *Manager {
	return NewManagerWithPersistence(nil)
}

// NewManagerWithPersistence returns a manager that writes sessions through
// to persistence. A nil persistence keeps everything in memory.
func NewManagerWithPersistence(persistence SessionPersistence) *Manager {
	return &Manager{
		sessions:    make(map[string]*service.Session),
		persistence: persistence,
	}
}

func key(id string) string {
	return strings.ToLower(id)
}

// lookup finds an in-memory session. Callers hold m.mu.
func (m *Manager) lookup(id string) (*service.Session, bool) {
	sess, ok := m.sessions[key(id)]
	return sess, ok
}

// persist writes sess through when persistence is attached. Failures are
// logged, never returned: the in-memory patrol stays authoritative.
func (m *Manager) persist(sess *service.Session, after string) {
	if m.persistence == nil {
		return
	}
	if err := m.persistence.Save(sess); err != nil {
		log.Printf("Warning: Failed to persist session %s after %s: %v", sess.ID, after, err)
	}
}

// Create starts a patrol over config. An empty id gets a generated one.
func (m *Manager) Create(id string, config *engine.PuzzleConfig) (*service.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case id == "":
		id = m.uniqueSessionID()
	case !validSessionID(id):
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}

	if _, taken := m.lookup(id); taken {
		return nil, ErrSessionAlreadyExists
	}

	patrol, err := engine.NewPatrol(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create patrol: %w", err)
	}

	now := time.Now()
	sess := &service.Session{
		ID:             id,
		Patrol:         patrol,
		Config:         config,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	m.sessions[key(id)] = sess
	m.persist(sess, "create")

	return sess, nil
}

// Get returns the session for id, falling back to persistence when the
// session is not in memory.
func (m *Manager) Get(id string) (*service.Session, error) {
	m.mu.RLock()
	sess, ok := m.lookup(id)
	m.mu.RUnlock()
	if ok {
		return sess, nil
	}

	if m.persistence == nil || !m.persistence.Exists(id) {
		return nil, ErrSessionNotFound
	}

	loaded, err := m.persistence.Load(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load persisted session: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another caller may have loaded it while we were reading the file
	if sess, ok := m.lookup(id); ok {
		return sess, nil
	}
	m.sessions[key(id)] = loaded
	return loaded, nil
}

// List returns a snapshot of the in-memory sessions
func (m *Manager) List() []*service.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*service.Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		result = append(result, sess)
	}
	return result
}

// Count returns how many sessions are held in memory
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Delete removes a session from memory and from persistence
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, inMemory := m.lookup(id)
	delete(m.sessions, key(id))

	if m.persistence != nil && m.persistence.Exists(id) {
		if err := m.persistence.Delete(id); err != nil {
			return fmt.Errorf("failed to delete persisted session: %w", err)
		}
		return nil
	}
	if !inMemory {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteFromMemory drops a session from memory and leaves its file alone
func (m *Manager) DeleteFromMemory(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.lookup(id); !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, key(id))
	return nil
}

// UpdateLastAccessed marks the session as touched now
func (m *Manager) UpdateLastAccessed(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.lookup(id)
	if !ok {
		return ErrSessionNotFound
	}
	sess.LastAccessedAt = time.Now()
	m.persist(sess, "access update")
	return nil
}

// Save writes one session to persistence
func (m *Manager) Save(id string) error {
	if m.persistence == nil {
		return nil
	}

	m.mu.RLock()
	sess, ok := m.lookup(id)
	m.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}
	return m.persistence.Save(sess)
}

// CleanupExpiredSessions drops sessions idle for longer than maxAge from
// memory. Their files stay, so Get can still bring them back.
func (m *Manager) CleanupExpiredSessions(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for k, sess := range m.sessions {
		if sess.LastAccessedAt.Before(cutoff) {
			delete(m.sessions, k)
			removed++
		}
	}
	return removed
}

// LoadPersistedSessions pulls every stored session not already in memory
// and returns how many were loaded. Unreadable files are skipped.
func (m *Manager) LoadPersistedSessions() (int, error) {
	if m.persistence == nil {
		return 0, nil
	}

	ids, err := m.persistence.ListAll()
	if err != nil {
		return 0, fmt.Errorf("failed to list persisted sessions: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	loaded := 0
	for _, id := range ids {
		if _, ok := m.lookup(id); ok {
			continue
		}
		sess, err := m.persistence.Load(id)
		if err != nil {
			log.Printf("Warning: Failed to load persisted session %s: %v", id, err)
			continue
		}
		m.sessions[key(id)] = sess
		loaded++
	}
	return loaded, nil
}

// SaveAllSessions writes every in-memory session to persistence. It keeps
// going past failures and returns them joined.
func (m *Manager) SaveAllSessions() error {
	if m.persistence == nil {
		return nil
	}

	var errs []error
	for _, sess := range m.List() {
		if err := m.persistence.Save(sess); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", sess.ID, err))
		}
	}
	return errors.Join(errs...)
}

// uniqueSessionID draws 4-character IDs until one is free in memory and on
// disk, then widens to 8 characters. Callers hold m.mu.
func (m *Manager) uniqueSessionID() string {
	for i := 0; i < maxIDAttempts; i++ {
		id := randomID(2)
		if _, taken := m.lookup(id); taken {
			continue
		}
		if m.persistence != nil && m.persistence.Exists(id) {
			continue
		}
		return id
	}
	return randomID(4)
}

func randomID(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// validSessionID reports whether id is safe to use as a file name
func validSessionID(id string) bool {
	if len(id) > maxIDLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
