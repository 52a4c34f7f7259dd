package events

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Bus fans events out to subscribers keyed by task id. Publishing to a
// task nobody watches is a no-op; subscribers only see events published
// after they subscribed.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter
}

type BusOption func(*Bus)

func WithBusLogger(logger watermill.LoggerAdapter) BusOption {
	return func(b *Bus) {
		b.logger = logger
	}
}

func NewBus(options ...BusOption) *Bus {
	b := &Bus{
		logger: watermill.NopLogger{},
	}
	for _, o := range options {
		o(b)
	}
	b.pubsub = gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer: 256,
		},
		b.logger,
	)
	return b
}

// TopicForTask is the watermill topic carrying one task's events.
func TopicForTask(taskID string) string {
	return "task." + taskID
}

// Sink returns a sink that publishes onto the task's topic.
func (b *Bus) Sink(taskID string) *WatermillSink {
	return NewWatermillSink(b.pubsub, TopicForTask(taskID))
}

// Subscribe returns a channel of decoded events for the task. The
// channel closes when ctx is cancelled or the bus shuts down. Messages
// that fail to decode are acked and dropped with a warning.
func (b *Bus) Subscribe(ctx context.Context, taskID string) (<-chan Event, error) {
	messages, err := b.pubsub.Subscribe(ctx, TopicForTask(taskID))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to subscribe to task %s", taskID)
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		for msg := range messages {
			e, err := NewEventFromJson(msg.Payload)
			msg.Ack()
			if err != nil {
				log.Warn().Err(err).Str("task_id", taskID).Msg("dropping undecodable event")
				continue
			}
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close shuts the underlying pubsub down, closing all subscriptions.
func (b *Bus) Close() error {
	err := b.pubsub.Close()
	if err != nil {
		return errors.Wrap(err, "failed to close pubsub")
	}
	return nil
}
