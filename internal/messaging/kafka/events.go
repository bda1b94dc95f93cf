package kafka

import (
	"encoding/json"
	"time"

	"github.com/vladislavdragonenkov/camisetas/internal/domain"
)

// Topics для Kafka.
const (
	TopicOrderEvents     = "camisetas.pedidos.events"
	TopicDeadLetterQueue = "camisetas.pedidos.dlq"
)

// Kafka headers, которые несут метаданные события.
const (
	HeaderEventType   = "x-event-type"
	HeaderAggregateID = "x-aggregate-id"
)

// Envelope: формат сообщения о заказе в топике.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurred_at"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope упаковывает outbox-сообщение для публикации.
func NewEnvelope(msg domain.OutboxMessage) Envelope {
	payload := json.RawMessage(msg.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		OccurredAt:    msg.CreatedAt,
		PublishedAt:   time.Now().UTC(),
	}
}

// Key возвращает ключ партиционирования: события одного заказа попадают в одну партицию.
func (e Envelope) Key() string {
	if e.AggregateID != "" {
		return e.AggregateID
	}
	return e.ID
}
