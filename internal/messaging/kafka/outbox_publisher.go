package kafka

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/camisetas/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения в заданный Kafka topic.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
}

// NewOutboxPublisher создаёт Kafka-паблишер для событий заказов.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{producer: producer, topic: topic}
}

// Topic возвращает топик, в который пишет паблишер.
func (p *OutboxTopicPublisher) Topic() string {
	return p.topic
}

func (p *OutboxTopicPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	envelope := NewEnvelope(event)
	return p.producer.Send(ctx, p.topic, envelope.Key(), envelope, map[string]string{
		HeaderEventType:   envelope.EventType,
		HeaderAggregateID: envelope.AggregateID,
	})
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
