package notify

import (
	"context"

	"go.uber.org/zap"

	"classsync/internal/queue"
)

// Store is where consumed notifications end up.
type Store interface {
	Insert(ctx context.Context, n Notification) error
}

// Consume drains notification messages from ch into store until ch closes.
// A message that fails to decode or persist is logged and dropped.
func Consume(ctx context.Context, ch <-chan queue.Message, store Store, logger *zap.Logger) int {
	saved := 0
	for msg := range ch {
		if msg.Type != MessageType {
			logger.Debug("ignoring message", zap.String("type", msg.Type))
			continue
		}
		var n Notification
		if err := msg.Decode(&n); err != nil {
			logger.Warn("malformed notification", zap.Error(err))
			continue
		}
		if err := store.Insert(ctx, n); err != nil {
			logger.Error("persist notification failed",
				zap.String("notification_id", n.ID),
				zap.String("recipient_id", n.RecipientID),
				zap.Error(err))
			continue
		}
		saved++
	}
	return saved
}
