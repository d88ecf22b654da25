package attendance

import (
	"context"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classsync/internal/geo"
)

var (
	campus = geo.Point{Lat: 12.9716, Lng: 77.5946}
	nearby = geo.Point{Lat: 12.9716, Lng: 77.5950}
	base   = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
)

type fixture struct {
	store  *MemoryStore
	ledger *Ledger
	now    time.Time
}

func newFixture(t *testing.T, policy Policy) *fixture {
	t.Helper()
	f := &fixture{store: NewMemoryStore(), now: base}
	f.ledger = NewLedger(f.store, policy, nil)
	f.ledger.SetClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) open(t *testing.T) Session {
	t.Helper()
	anchor := campus
	s, err := f.ledger.Open(context.Background(), OpenRequest{
		SubjectID: "subj-1",
		Section:   "3A",
		Room:      "R101",
		Anchor:    &anchor,
	})
	require.NoError(t, err)
	return s
}

func pt(p geo.Point) *geo.Point { return &p }

func TestOpenRequiresFiniteAnchor(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	ctx := context.Background()

	_, err := f.ledger.Open(ctx, OpenRequest{SubjectID: "subj-1", Section: "3A"})
	assert.ErrorIs(t, err, ErrInvalidLocation)

	_, err = f.ledger.Open(ctx, OpenRequest{SubjectID: "subj-1", Section: "3A", Anchor: &geo.Point{Lat: math.NaN(), Lng: 1}})
	assert.ErrorIs(t, err, ErrInvalidLocation)
}

func TestOpenSetsWindowAndCode(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	s := f.open(t)

	assert.True(t, strings.HasPrefix(s.Code, "CS-"))
	assert.Len(t, s.Code, len("CS-")+6)
	assert.Equal(t, base, s.OpensAt)
	assert.Equal(t, base.Add(15*time.Minute), s.ExpiresAt)
	assert.True(t, s.ExpiresAt.After(s.OpensAt))
	assert.Equal(t, 1.0, s.DurationHours)
	assert.Empty(t, s.Present)
}

func TestOpenRetriesOnActiveCodeCollision(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	codes := []string{"aaaaaa", "aaaaaa", "bbbbbb"}
	f.ledger.newCode = func() string {
		c := codes[0]
		codes = codes[1:]
		return c
	}

	first := f.open(t)
	second := f.open(t)

	assert.Equal(t, "CS-aaaaaa", first.Code)
	assert.Equal(t, "CS-bbbbbb", second.Code)
}

func TestOpenReusesCodeOfExpiredSession(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	f.ledger.newCode = func() string { return "cccccc" }

	first := f.open(t)
	f.now = first.ExpiresAt.Add(time.Second)
	second := f.open(t)
	require.Equal(t, first.Code, second.Code)

	s, _, err := f.ledger.Lookup(context.Background(), second.Code)
	require.NoError(t, err)
	assert.Equal(t, second.ID, s.ID)
}

func TestCheckInTimeWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultPolicy())

	future := Session{
		SubjectID: "subj-1", Section: "3A", Code: "CS-future",
		OpensAt: base.Add(time.Hour), ExpiresAt: base.Add(time.Hour + 15*time.Minute),
		Anchor: pt(campus),
	}
	require.NoError(t, f.store.Create(ctx, &future))
	_, err := f.ledger.CheckIn(ctx, Attempt{StudentID: "stu-1", Code: "CS-future", Location: pt(nearby)})
	assert.ErrorIs(t, err, ErrNotStarted)

	s := f.open(t)

	f.now = s.ExpiresAt
	_, err = f.ledger.CheckIn(ctx, Attempt{StudentID: "stu-1", Code: s.Code, Location: pt(nearby)})
	assert.NoError(t, err)

	f.now = s.ExpiresAt.Add(time.Nanosecond)
	_, err = f.ledger.CheckIn(ctx, Attempt{StudentID: "stu-2", Code: s.Code, Location: pt(nearby)})
	assert.ErrorIs(t, err, ErrExpired)
}

func TestCheckInNearbyScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultPolicy())
	s := f.open(t)

	out, err := f.ledger.CheckIn(ctx, Attempt{StudentID: "stu-1", Code: s.Code, Location: pt(nearby)})
	require.NoError(t, err)
	assert.InDelta(t, 43.4, out.Distance, 1.0)
	assert.Equal(t, []string{"stu-1"}, out.Session.Present)
}

func TestCheckInValidationOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultPolicy())
	s := f.open(t)

	legacy := Session{
		SubjectID: "subj-1", Section: "3A", Code: "CS-noloc",
		OpensAt: base, ExpiresAt: base.Add(15 * time.Minute),
	}
	require.NoError(t, f.store.Create(ctx, &legacy))

	far := geo.Point{Lat: 13.5, Lng: 77.5946}
	cases := []struct {
		name    string
		attempt Attempt
		want    error
	}{
		{"unknown code", Attempt{StudentID: "stu-1", Code: "CS-nope", Location: pt(nearby)}, ErrSessionNotFound},
		{"no anchor with location", Attempt{StudentID: "stu-1", Code: "CS-noloc", Location: pt(nearby)}, ErrLocationNotConfigured},
		{"no anchor without location", Attempt{StudentID: "stu-1", Code: "CS-noloc"}, ErrLocationNotConfigured},
		{"no anchor far away", Attempt{StudentID: "stu-1", Code: "CS-noloc", Location: pt(far)}, ErrLocationNotConfigured},
		{"missing location", Attempt{StudentID: "stu-1", Code: s.Code}, ErrLocationRequired},
		{"nan location", Attempt{StudentID: "stu-1", Code: s.Code, Location: &geo.Point{Lat: math.NaN(), Lng: 1}}, ErrLocationRequired},
		{"too far", Attempt{StudentID: "stu-1", Code: s.Code, Location: pt(far)}, ErrOutOfRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.ledger.CheckIn(ctx, tc.attempt)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCheckInFenceBoundary(t *testing.T) {
	ctx := context.Background()
	candidate := geo.Point{Lat: 12.97214, Lng: 77.5946}
	d := geo.Distance(campus, candidate)

	exact := newFixture(t, Policy{FenceRadiusMeters: d})
	s := exact.open(t)
	_, err := exact.ledger.CheckIn(ctx, Attempt{StudentID: "stu-1", Code: s.Code, Location: &candidate})
	assert.NoError(t, err)

	tight := newFixture(t, Policy{FenceRadiusMeters: d - 0.0001})
	s = tight.open(t)
	_, err = tight.ledger.CheckIn(ctx, Attempt{StudentID: "stu-1", Code: s.Code, Location: &candidate})
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestCheckInTwiceYieldsAlreadyMarked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultPolicy())
	s := f.open(t)

	_, err := f.ledger.CheckIn(ctx, Attempt{StudentID: "stu-1", Code: s.Code, Location: pt(nearby)})
	require.NoError(t, err)
	_, err = f.ledger.CheckIn(ctx, Attempt{StudentID: "stu-1", Code: s.Code, Location: pt(nearby)})
	assert.ErrorIs(t, err, ErrAlreadyMarked)

	got, _, err := f.ledger.Lookup(ctx, s.Code)
	require.NoError(t, err)
	assert.Equal(t, []string{"stu-1"}, got.Present)
}

func TestConcurrentIdenticalCheckIns(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultPolicy())
	s := f.open(t)

	const attempts = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		already int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.CheckIn(ctx, Attempt{StudentID: "stu-1", Code: s.Code, Location: pt(nearby)})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case assert.ErrorIs(t, err, ErrAlreadyMarked):
				already++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, attempts-1, already)

	got, _, err := f.ledger.Lookup(ctx, s.Code)
	require.NoError(t, err)
	assert.Equal(t, []string{"stu-1"}, got.Present)
}

func TestLookupDerivesState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultPolicy())
	s := f.open(t)

	_, state, err := f.ledger.Lookup(ctx, s.Code)
	require.NoError(t, err)
	assert.Equal(t, StateOpen, state)

	f.now = s.ExpiresAt.Add(time.Millisecond)
	_, state, err = f.ledger.Lookup(ctx, s.Code)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, state)

	assert.Equal(t, StatePending, s.StateAt(s.OpensAt.Add(-time.Second)))

	_, _, err = f.ledger.Lookup(ctx, "CS-none")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCreditSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultPolicy())
	day := time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC)

	s, err := f.ledger.Credit(ctx, CreditRequest{SubjectID: "subj-1", StudentID: "stu-9", Section: "3A", Date: day})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(s.Code, "SELF-"))
	assert.Equal(t, 0.0, s.DurationHours)
	assert.Equal(t, s.OpensAt, s.ExpiresAt)
	assert.Equal(t, day, s.Date)
	assert.Equal(t, []string{"stu-9"}, s.Present)
	assert.Nil(t, s.Anchor)

	listed, err := f.store.ListBySubjectAndSection(ctx, "subj-1", "3A")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.True(t, listed[0].IsPresent("stu-9"))

	for _, req := range []CreditRequest{
		{SubjectID: "subj-1"},
		{SubjectID: "subj-1", StudentID: "stu-9"},
		{StudentID: "stu-9", Section: "3A"},
	} {
		_, err = f.ledger.Credit(ctx, req)
		assert.ErrorIs(t, err, ErrIncompleteCredit)
	}
	listed, err = f.store.ListBySubject(ctx, "subj-1")
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestCheckInRequiresStudent(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	s := f.open(t)

	_, err := f.ledger.CheckIn(context.Background(), Attempt{StudentID: " ", Code: s.Code, Location: pt(nearby)})
	assert.ErrorIs(t, err, ErrStudentRequired)

	got, _, err := f.ledger.Lookup(context.Background(), s.Code)
	require.NoError(t, err)
	assert.Empty(t, got.Present)
}

func TestReason(t *testing.T) {
	assert.Equal(t, "ok", Reason(nil))
	assert.Equal(t, "out_of_range", Reason(ErrOutOfRange))
	assert.Equal(t, "internal", Reason(assert.AnError))
	assert.True(t, IsClientError(ErrAlreadyMarked))
	assert.False(t, IsClientError(assert.AnError))
}
