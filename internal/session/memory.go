package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Skufu/cardioscore/internal/report"
)

type memorySession struct {
	history  []report.Entry
	patients map[string]Patient
}

// MemoryStore keeps sessions in process memory. History per session is
// capped at limit entries, dropping the oldest.
type MemoryStore struct {
	mu       sync.RWMutex
	limit    int
	sessions map[string]*memorySession
}

func NewMemoryStore(limit int) *MemoryStore {
	if limit <= 0 {
		limit = 100
	}
	return &MemoryStore{limit: limit, sessions: make(map[string]*memorySession)}
}

func (m *MemoryStore) session(id string) *memorySession {
	s, ok := m.sessions[id]
	if !ok {
		s = &memorySession{patients: make(map[string]Patient)}
		m.sessions[id] = s
	}
	return s
}

func (m *MemoryStore) Append(_ context.Context, sessionID string, entry report.Entry) error {
	if !ValidID(sessionID) {
		return fmt.Errorf("append %q: %w", sessionID, ErrInvalidSessionID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.session(sessionID)
	s.history = append(s.history, entry)
	if over := len(s.history) - m.limit; over > 0 {
		s.history = append([]report.Entry(nil), s.history[over:]...)
	}
	return nil
}

func (m *MemoryStore) History(_ context.Context, sessionID string) ([]report.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return []report.Entry{}, nil
	}
	out := make([]report.Entry, len(s.history))
	copy(out, s.history)
	return out, nil
}

func (m *MemoryStore) SavePatient(_ context.Context, sessionID string, p Patient) error {
	if !ValidID(sessionID) {
		return fmt.Errorf("save patient %q: %w", sessionID, ErrInvalidSessionID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session(sessionID).patients[p.Name] = p
	return nil
}

func (m *MemoryStore) Patient(_ context.Context, sessionID, name string) (Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if s, ok := m.sessions[sessionID]; ok {
		if p, ok := s.patients[name]; ok {
			return p, nil
		}
	}
	return Patient{}, fmt.Errorf("patient %q: %w", name, ErrNotFound)
}

func (m *MemoryStore) Patients(_ context.Context, sessionID string) ([]Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []Patient{}
	if s, ok := m.sessions[sessionID]; ok {
		for _, p := range s.patients {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
