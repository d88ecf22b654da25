package roster

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process roster, timetable and subject catalogue.
type Memory struct {
	mu       sync.RWMutex
	students map[string]Student
	subjects map[string]Subject
	slots    []Slot
}

// NewMemory returns an empty catalogue.
func NewMemory() *Memory {
	return &Memory{students: map[string]Student{}, subjects: map[string]Subject{}}
}

func (m *Memory) AddStudent(s Student) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[s.ID] = s
}

func (m *Memory) AddSubject(s Subject) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects[s.ID] = s
}

func (m *Memory) AddSlot(s Slot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub, ok := m.subjects[s.SubjectID]; ok {
		s.SubjectName, s.SubjectCode = sub.Name, sub.Code
	}
	m.slots = append(m.slots, s)
}

func (m *Memory) StudentsInSection(_ context.Context, section string) ([]Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Student
	for _, s := range m.students {
		if s.Section == section {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) StudentByID(_ context.Context, id string) (*Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *Memory) ListSubjects(_ context.Context) ([]Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Subject, 0, len(m.subjects))
	for _, s := range m.subjects {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *Memory) SubjectByID(_ context.Context, id string) (*Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subjects[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *Memory) SubjectsByTeacher(ctx context.Context, teacherID string) ([]Subject, error) {
	all, _ := m.ListSubjects(ctx)
	var out []Subject
	for _, s := range all {
		if s.TeacherID == teacherID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Memory) SlotsForDay(_ context.Context, day time.Weekday) ([]Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Slot
	for _, s := range m.slots {
		if s.Day == day {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}
