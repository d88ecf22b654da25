package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"classsync/internal/queue"
)

type recordingStore struct {
	saved []Notification
	fail  string
}

func (r *recordingStore) Insert(_ context.Context, n Notification) error {
	if n.RecipientID == r.fail {
		return errors.New("constraint violation")
	}
	r.saved = append(r.saved, n)
	return nil
}

func TestConsumePersistsNotifications(t *testing.T) {
	ch := make(chan queue.Message, 4)
	for _, id := range []string{"a", "bad", "b"} {
		msg, err := queue.NewMessage(MessageType, Notification{RecipientID: id, Category: CategoryGeneral})
		assert.NoError(t, err)
		ch <- msg
	}
	ch <- queue.Message{Type: "other", Body: []byte(`{}`)}
	close(ch)

	store := &recordingStore{fail: "bad"}
	saved := Consume(context.Background(), ch, store, zap.NewNop())

	assert.Equal(t, 2, saved)
	assert.Equal(t, "a", store.saved[0].RecipientID)
	assert.Equal(t, "b", store.saved[1].RecipientID)
}

type signallingStore struct {
	saved chan Notification
}

func (s signallingStore) Insert(_ context.Context, n Notification) error {
	s.saved <- n
	return nil
}

func TestInProcessQueueDrainsIntoStore(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mem := queue.NewInMemory(8)
	ch, err := mem.Consume(ctx)
	require.NoError(t, err)
	store := signallingStore{saved: make(chan Notification, 2)}
	go Consume(ctx, ch, store, zap.NewNop())

	sink := NewQueueSink(mem)
	tmpl := Notification{Role: RoleStudent, Category: CategoryClassReminder, Title: "Class starting soon"}
	require.NoError(t, sink.EmitBulk(ctx, Fanout(tmpl, []string{"a", "b"})))

	var got []string
	for i := 0; i < 2; i++ {
		select {
		case n := <-store.saved:
			assert.NotEmpty(t, n.ID)
			assert.Equal(t, CategoryClassReminder, n.Category)
			got = append(got, n.RecipientID)
		case <-time.After(2 * time.Second):
			t.Fatal("notification was not persisted")
		}
	}
	assert.Equal(t, []string{"a", "b"}, got)
}
