package events

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"mentorsync/internal/model"
	"mentorsync/pkg/kafka"
)

// Publisher sends sync events to Kafka keyed by mentor id. Delivery is best
// effort: failures are logged and never reach the sync path.
type Publisher struct {
	l        *zap.Logger
	producer kafka.Producer
	topic    string
}

func NewPublisher(l *zap.Logger, producer kafka.Producer, topic string) *Publisher {
	return &Publisher{
		l:        l,
		producer: producer,
		topic:    topic,
	}
}

func (p *Publisher) Publish(ctx context.Context, event model.SyncEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.l.Error("Failed to marshal sync event", zap.Error(err))
		return
	}

	key, err := event.MentorID.MarshalBinary()
	if err != nil {
		p.l.Error("Failed to marshal event key", zap.Error(err))
		return
	}

	partition, offset, err := p.producer.PushMessage(ctx, key, payload, p.topic)
	if err != nil {
		p.l.Warn("Failed to publish sync event",
			zap.String("type", string(event.Type)),
			zap.String("mentor_id", event.MentorID.String()),
			zap.Error(err),
		)

		return
	}

	p.l.Debug("Sync event published",
		zap.String("type", string(event.Type)),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
}

// Nop drops every event. Used when Kafka is disabled.
type Nop struct{}

func (Nop) Publish(context.Context, model.SyncEvent) {}
