package attendance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. Each session carries its own mutex so
// appends to one session never contend with another.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memSession
	order    []string
}

type memSession struct {
	mu sync.Mutex
	s  Session
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*memSession)}
}

func (m *MemoryStore) Create(_ context.Context, s *Session) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if s.Present == nil {
		s.Present = []string{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = &memSession{s: s.clone()}
	m.order = append(m.order, s.ID)
	return nil
}

func (m *MemoryStore) FindByCode(_ context.Context, code string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found *Session
	for _, id := range m.order {
		e := m.sessions[id]
		e.mu.Lock()
		if e.s.Code == code && (found == nil || !e.s.OpensAt.Before(found.OpensAt)) {
			c := e.s.clone()
			found = &c
		}
		e.mu.Unlock()
	}
	return found, nil
}

func (m *MemoryStore) CodeActive(_ context.Context, code string, at time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.sessions {
		if e.s.Code == code && !at.After(e.s.ExpiresAt) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) AppendPresent(_ context.Context, sessionID, studentID string) (bool, error) {
	m.mu.RLock()
	e, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return false, ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.s.IsPresent(studentID) {
		return false, nil
	}
	e.s.Present = append(e.s.Present, studentID)
	return true, nil
}

func (m *MemoryStore) ListBySubject(_ context.Context, subjectID string) ([]Session, error) {
	return m.filter(func(s Session) bool { return s.SubjectID == subjectID }), nil
}

func (m *MemoryStore) ListBySubjectAndSection(_ context.Context, subjectID, section string) ([]Session, error) {
	return m.filter(func(s Session) bool { return s.SubjectID == subjectID && s.Section == section }), nil
}

func (m *MemoryStore) ListBySection(_ context.Context, section string) ([]Session, error) {
	return m.filter(func(s Session) bool { return s.Section == section }), nil
}

func (m *MemoryStore) filter(keep func(Session) bool) []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Session
	for _, id := range m.order {
		e := m.sessions[id]
		e.mu.Lock()
		if keep(e.s) {
			out = append(out, e.s.clone())
		}
		e.mu.Unlock()
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OpensAt.Before(out[j].OpensAt) })
	return out
}
