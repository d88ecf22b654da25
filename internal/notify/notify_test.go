package notify

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classsync/internal/queue"
)

func TestFanout(t *testing.T) {
	tmpl := Notification{Role: RoleStudent, Category: CategoryClassReminder, Title: "Class starting soon"}
	ns := Fanout(tmpl, []string{"a", "b"})
	require.Len(t, ns, 2)
	assert.Equal(t, "a", ns[0].RecipientID)
	assert.Equal(t, "b", ns[1].RecipientID)
	assert.Equal(t, "Class starting soon", ns[1].Title)
}

func TestCategoryValid(t *testing.T) {
	assert.True(t, CategorySelfStudyDecision.Valid())
	assert.False(t, Category("spam").Valid())
}

func TestQueueSinkPublishes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := queue.NewInMemory(4)
	sink := NewQueueSink(q)

	require.NoError(t, sink.Emit(ctx, Notification{
		RecipientID: "stu-1",
		Role:        RoleStudent,
		Category:    CategoryLowAttendance,
		Payload:     map[string]any{"classes_needed": 4},
	}))

	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	msg := <-ch
	assert.Equal(t, MessageType, msg.Type)

	var n Notification
	require.NoError(t, msg.Decode(&n))
	assert.NotEmpty(t, n.ID)
	assert.False(t, n.CreatedAt.IsZero())
	assert.Equal(t, "stu-1", n.RecipientID)
	assert.Equal(t, float64(4), n.Payload["classes_needed"])
}

func TestMemorySinkInbox(t *testing.T) {
	ctx := context.Background()
	sink := NewMemorySink()
	require.NoError(t, sink.EmitBulk(ctx, []Notification{
		{ID: "1", RecipientID: "a", Role: RoleStudent, Title: "first"},
		{ID: "2", RecipientID: "a", Role: RoleStudent, Title: "second"},
		{ID: "3", RecipientID: "b", Role: RoleStudent, Title: "other"},
	}))

	got, err := sink.ListForRecipient(ctx, "a", RoleStudent, InboxLimit)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "second", got[0].Title)
	assert.Equal(t, CategoryGeneral, got[0].Category)

	n, err := sink.MarkRead(ctx, "a", []string{"1", "3"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemoryCooldown(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	c := NewMemoryCooldown(time.Hour)
	c.now = func() time.Time { return now }
	key := CooldownKey("stu-1", CategoryLowAttendance, "math")

	ok, _ := c.Allow(ctx, key)
	assert.True(t, ok)
	ok, _ = c.Allow(ctx, key)
	assert.False(t, ok)
	ok, _ = c.Allow(ctx, CooldownKey("stu-2", CategoryLowAttendance, "math"))
	assert.True(t, ok)

	require.NoError(t, c.Release(ctx, key))
	ok, _ = c.Allow(ctx, key)
	assert.True(t, ok, "released key is sendable again")

	now = now.Add(time.Hour)
	ok, _ = c.Allow(ctx, key)
	assert.True(t, ok)
}

func TestRedisCooldown(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	c := NewRedisCooldown(client, time.Hour)
	key := CooldownKey("stu-1", CategoryLowAttendance, "math")

	ok, err := c.Allow(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Release(ctx, key))
	assert.False(t, mr.Exists(key))
	ok, err = c.Allow(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(time.Hour + time.Second)
	ok, err = c.Allow(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNoCooldown(t *testing.T) {
	for i := 0; i < 3; i++ {
		ok, err := NoCooldown{}.Allow(context.Background(), "k")
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestRepositoryInsertMany(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO notifications").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO notifications").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := NewRepository(db)
	err = repo.EmitBulk(context.Background(), Fanout(Notification{Role: RoleStudent, Category: CategoryClassReminder}, []string{"a", "b"}))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryListForRecipient(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "recipient_id", "role", "category", "title", "message", "payload", "is_read", "created_at"}).
		AddRow("n1", "stu-1", "student", "low_attendance", "Low attendance warning", "msg", []byte(`{"percentage":62.5}`), false, at)
	mock.ExpectQuery("SELECT id, recipient_id").
		WithArgs("stu-1", "student", InboxLimit).
		WillReturnRows(rows)

	repo := NewRepository(db)
	got, err := repo.ListForRecipient(context.Background(), "stu-1", RoleStudent, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, CategoryLowAttendance, got[0].Category)
	assert.Equal(t, 62.5, got[0].Payload["percentage"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
