package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classsync/internal/attendance"
	"classsync/internal/roster"
)

var day0 = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

func session(subject, section string, dayOffset int, present ...string) attendance.Session {
	at := day0.AddDate(0, 0, dayOffset)
	if present == nil {
		present = []string{}
	}
	return attendance.Session{
		ID:        subject + section + at.Format("0102"),
		SubjectID: subject,
		Section:   section,
		Date:      at,
		OpensAt:   at,
		ExpiresAt: at.Add(15 * time.Minute),
		Present:   present,
		CreatedAt: at,
	}
}

func TestClassesNeeded(t *testing.T) {
	cases := []struct {
		name          string
		present, held int
		target        float64
		want          int
	}{
		{"five of eight", 5, 8, 75, 4},
		{"already above", 9, 10, 75, 0},
		{"exactly on target", 3, 4, 75, 0},
		{"nothing held", 0, 0, 75, 0},
		{"none attended", 0, 4, 75, 12},
		{"unreachable target", 1, 2, 100, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassesNeeded(tc.present, tc.held, tc.target))
		})
	}
}

func TestClassesNeededIsMonotonic(t *testing.T) {
	for held := 1; held <= 30; held++ {
		prev := ClassesNeeded(0, held, 75)
		for present := 1; present <= held; present++ {
			got := ClassesNeeded(present, held, 75)
			assert.LessOrEqual(t, got, prev, "present=%d held=%d", present, held)
			prev = got
		}
	}
}

func TestClassesNeededReachesTarget(t *testing.T) {
	for held := 1; held <= 20; held++ {
		for present := 0; present <= held; present++ {
			n := ClassesNeeded(present, held, 75)
			assert.GreaterOrEqual(t, Percentage(present+n, held+n), 75.0)
			if n > 0 {
				assert.Less(t, Percentage(present+n-1, held+n-1), 75.0)
			}
		}
	}
}

func TestStreak(t *testing.T) {
	sessions := []attendance.Session{
		session("s1", "3A", 0, "stu"),
		session("s1", "3A", 1),
		session("s1", "3A", 2, "stu"),
		session("s1", "3A", 3, "stu"),
	}
	assert.Equal(t, 2, Streak(sessions, "stu"))
	assert.Equal(t, 0, Streak(sessions, "other"))

	undated := session("s1", "3A", 4)
	undated.Date = time.Time{}
	assert.Equal(t, 2, Streak(append(sessions, undated), "stu"))
}

func TestPercentageForms(t *testing.T) {
	st := Stat{Held: 3, Present: 2, Percent: Percentage(2, 3)}
	assert.InDelta(t, 66.666, st.Percent, 0.001)
	assert.Equal(t, 67, st.RoundedPercent())
	assert.Equal(t, 66.7, st.DisplayPercent())
	assert.Equal(t, 0.0, Percentage(0, 0))
}

func TestComputeGroup(t *testing.T) {
	now := day0.AddDate(0, 0, 10)
	g := Group{SubjectID: "s1", Section: "3A", Sessions: []attendance.Session{
		session("s1", "3A", 0, "a", "b"),
		session("s1", "3A", 1, "a"),
		session("s1", "3A", 2, "a"),
		session("s1", "3A", 3, "b"),
	}}
	students := []roster.Student{
		{ID: "a", Name: "Asha", Section: "3A"},
		{ID: "b", Name: "Bala", Section: "3A"},
		{ID: "c", Name: "Chen", Section: "3A"},
		{ID: "x", Name: "Elsewhere", Section: "4B"},
	}

	stats := Compute(g, students, 75, now)
	require.Len(t, stats, 3)

	a, b, c := stats[0], stats[1], stats[2]
	assert.Equal(t, 4, a.Held)
	assert.Equal(t, 3, a.Present)
	assert.Equal(t, 0, a.Streak)
	assert.False(t, a.AtRisk)
	require.NotNil(t, a.LastAttended)
	assert.Equal(t, day0.AddDate(0, 0, 2), *a.LastAttended)

	assert.Equal(t, 2, b.Present)
	assert.Equal(t, 1, b.Streak)
	assert.True(t, b.AtRisk)
	assert.Equal(t, 4, b.ClassesNeeded)

	assert.Equal(t, 0, c.Present)
	assert.Nil(t, c.LastAttended)
	assert.Equal(t, 4, c.MonthHeld)

	for _, s := range stats {
		assert.GreaterOrEqual(t, s.Percent, 0.0)
		assert.LessOrEqual(t, s.Percent, 100.0)
		assert.LessOrEqual(t, s.Present, s.Held)
	}
}

func TestNoSessionsMeansNotAtRisk(t *testing.T) {
	stats := Compute(Group{SubjectID: "s1", Section: "3A"}, []roster.Student{{ID: "a", Section: "3A"}}, 75, day0)
	require.Len(t, stats, 1)
	assert.Equal(t, 0.0, stats[0].Percent)
	assert.Equal(t, 0, stats[0].ClassesNeeded)
	assert.False(t, stats[0].AtRisk)
	assert.Empty(t, AtRisk(stats, 75))
}

func TestGroupSessionsSkipsUnkeyed(t *testing.T) {
	groups := GroupSessions([]attendance.Session{
		session("s2", "3A", 0),
		session("s1", "3B", 0),
		session("s1", "3A", 0),
		session("s1", "3A", 1),
		session("", "3A", 2),
		session("s1", "", 2),
	})
	require.Len(t, groups, 3)
	assert.Equal(t, "s1", groups[0].SubjectID)
	assert.Equal(t, "3A", groups[0].Section)
	assert.Len(t, groups[0].Sessions, 2)
	assert.Equal(t, "3B", groups[1].Section)
	assert.Equal(t, "s2", groups[2].SubjectID)
}

func TestMaxMissableHours(t *testing.T) {
	assert.Equal(t, 0, MaxMissableHours(0, 40, 75))
	assert.Equal(t, 0, MaxMissableHours(20, 40, 75))
	assert.Equal(t, 2, MaxMissableHours(30, 38, 75))
}
