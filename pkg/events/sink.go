package events

import (
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
)

// Sink receives events from loops, dispatchers and adapters.
// Implementations must be safe for concurrent use.
type Sink interface {
	PublishEvent(Event) error
}

// NullSink drops everything.
type NullSink struct{}

func (NullSink) PublishEvent(Event) error { return nil }

var _ Sink = NullSink{}

// WatermillSink publishes events as JSON messages on a fixed topic.
type WatermillSink struct {
	publisher message.Publisher
	topic     string
}

func NewWatermillSink(publisher message.Publisher, topic string) *WatermillSink {
	return &WatermillSink{
		publisher: publisher,
		topic:     topic,
	}
}

func (s *WatermillSink) PublishEvent(e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}
	msg := message.NewMessage(watermill.NewUUID(), b)
	return s.publisher.Publish(s.topic, msg)
}

var _ Sink = &WatermillSink{}
