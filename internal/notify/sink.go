package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"classsync/internal/metrics"
	"classsync/internal/queue"
)

// MessageType tags notification messages on the queue.
const MessageType = "notification"

func stamp(n *Notification, now time.Time) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now.UTC()
	}
	if n.Category == "" {
		n.Category = CategoryGeneral
	}
}

// QueueSink hands notifications to a queue for the worker to persist.
type QueueSink struct {
	q queue.Queue
}

// NewQueueSink builds a sink publishing onto q.
func NewQueueSink(q queue.Queue) *QueueSink {
	return &QueueSink{q: q}
}

func (s *QueueSink) Emit(ctx context.Context, n Notification) error {
	stamp(&n, time.Now())
	msg, err := queue.NewMessage(MessageType, n)
	if err != nil {
		return err
	}
	if err := s.q.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	metrics.NotificationsEmitted.WithLabelValues(string(n.Category)).Inc()
	return nil
}

func (s *QueueSink) EmitBulk(ctx context.Context, ns []Notification) error {
	for _, n := range ns {
		if err := s.Emit(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

// MemorySink keeps everything it receives. Used by tests and dev mode.
type MemorySink struct {
	mu    sync.Mutex
	items []Notification
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (s *MemorySink) Emit(_ context.Context, n Notification) error {
	stamp(&n, time.Now())
	s.mu.Lock()
	s.items = append(s.items, n)
	s.mu.Unlock()
	metrics.NotificationsEmitted.WithLabelValues(string(n.Category)).Inc()
	return nil
}

func (s *MemorySink) EmitBulk(ctx context.Context, ns []Notification) error {
	for _, n := range ns {
		_ = s.Emit(ctx, n)
	}
	return nil
}

// All returns a copy of every notification received.
func (s *MemorySink) All() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.items...)
}

// ListForRecipient returns the newest notifications first, at most limit.
func (s *MemorySink) ListForRecipient(_ context.Context, recipientID string, role Role, limit int) ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Notification{}
	for i := len(s.items) - 1; i >= 0 && len(out) < limit; i-- {
		n := s.items[i]
		if n.RecipientID == recipientID && n.Role == role {
			out = append(out, n)
		}
	}
	return out, nil
}

// MarkRead flags the given notifications of recipientID as read.
func (s *MemorySink) MarkRead(_ context.Context, recipientID string, ids []string) (int64, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.items {
		it := &s.items[i]
		if it.RecipientID == recipientID && want[it.ID] && !it.Read {
			it.Read = true
			n++
		}
	}
	return n, nil
}
