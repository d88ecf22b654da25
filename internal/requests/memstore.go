package requests

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps requests in process.
type MemoryStore struct {
	mu   sync.Mutex
	byID map[string]Request
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: map[string]Request{}}
}

func (m *MemoryStore) Create(_ context.Context, r *Request) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = StatusPending
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[r.ID] = *r
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *MemoryStore) ListByStudent(_ context.Context, studentID string, kind Kind) ([]Request, error) {
	return m.filter(func(r Request) bool {
		return r.StudentID == studentID && (kind == "" || r.Kind == kind)
	}), nil
}

func (m *MemoryStore) ListBySubjects(_ context.Context, subjectIDs []string, kind Kind, status Status) ([]Request, error) {
	want := make(map[string]bool, len(subjectIDs))
	for _, id := range subjectIDs {
		want[id] = true
	}
	return m.filter(func(r Request) bool {
		return want[r.SubjectID] && (kind == "" || r.Kind == kind) && (status == "" || r.Status == status)
	}), nil
}

func (m *MemoryStore) Decide(_ context.Context, id string, d Decision) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok || r.Status != StatusPending {
		return false, nil
	}
	r.apply(d)
	m.byID[id] = r
	return true, nil
}

func (m *MemoryStore) Reopen(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok {
		return nil
	}
	r.Status, r.TeacherNote, r.DecidedBy, r.DecidedAt = StatusPending, "", "", nil
	m.byID[id] = r
	return nil
}

// filter returns matches newest first.
func (m *MemoryStore) filter(keep func(Request) bool) []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Request{}
	for _, r := range m.byID {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
