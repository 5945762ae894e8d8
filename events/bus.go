package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Dosada05/bracket-progression/models"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// TopicMatchesChanged carries models.ChangeEvent payloads.
const TopicMatchesChanged = "matches.changed"

// ChangeBufferSize is how many decoded events a subscriber may lag behind before the bus
// stops acking. The watcher drains the backlog and folds it per tournament.
const ChangeBufferSize = 64

// Bus is the in-process change-notification channel.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 256},
		watermill.NewSlogLogger(logger),
	)
	return &Bus{pubsub: pubsub, logger: logger}
}

// NotifyMatchesChanged publishes a change event. It satisfies repositories.ChangeNotifier.
func (b *Bus) NotifyMatchesChanged(_ context.Context, event models.ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode change event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("tournament_id", fmt.Sprint(event.TournamentID))
	if err := b.pubsub.Publish(TopicMatchesChanged, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", TopicMatchesChanged, err)
	}
	return nil
}

// SubscribeChanges returns decoded change events until ctx is cancelled or the bus is closed.
// The channel is buffered with ChangeBufferSize. Messages that cannot be decoded are logged and dropped.
func (b *Bus) SubscribeChanges(ctx context.Context) (<-chan models.ChangeEvent, error) {
	messages, err := b.pubsub.Subscribe(ctx, TopicMatchesChanged)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", TopicMatchesChanged, err)
	}

	out := make(chan models.ChangeEvent, ChangeBufferSize)
	go func() {
		defer close(out)
		for msg := range messages {
			var event models.ChangeEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				b.logger.Warn("dropping malformed change event",
					slog.String("message_uuid", msg.UUID), slog.Any("error", err))
				msg.Ack()
				continue
			}
			select {
			case out <- event:
				msg.Ack()
			case <-ctx.Done():
				msg.Nack()
				return
			}
		}
	}()
	return out, nil
}

func (b *Bus) Close() error {
	return b.pubsub.Close()
}
