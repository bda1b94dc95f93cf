package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vladislavdragonenkov/camisetas/internal/domain"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
	outboxStatusFailed  = "failed"

	defaultOutboxPullLimit = 100
)

type outboxDocument struct {
	ID            string    `bson:"_id"`
	AggregateType string    `bson:"aggregate_type"`
	AggregateID   string    `bson:"aggregate_id"`
	EventType     string    `bson:"event_type"`
	Payload       []byte    `bson:"payload"`
	Status        string    `bson:"status"`
	AttemptCount  int       `bson:"attempt_count"`
	CreatedAt     time.Time `bson:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

type outboxRepository struct {
	coll *mongo.Collection
}

// NewOutboxRepository создаёт MongoDB-реализацию OutboxRepository.
func NewOutboxRepository(store *Store) domain.OutboxRepository {
	return &outboxRepository{coll: store.db.Collection(outboxCollection)}
}

func (r *outboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := r.coll.InsertOne(ctx, outboxDocument{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       msg.Payload,
		Status:        outboxStatusPending,
		CreatedAt:     msg.CreatedAt,
		UpdatedAt:     msg.CreatedAt,
	}); err != nil {
		return domain.OutboxMessage{}, persistenceErr("enqueue outbox message", err)
	}
	return msg, nil
}

func (r *outboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = defaultOutboxPullLimit
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	cursor, err := r.coll.Find(ctx,
		bson.M{"status": outboxStatusPending},
		options.Find().
			SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
			SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, persistenceErr("pull pending outbox messages", err)
	}
	defer cursor.Close(ctx)

	var docs []outboxDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, persistenceErr("decode outbox messages", err)
	}

	result := make([]domain.OutboxMessage, 0, len(docs))
	for _, doc := range docs {
		result = append(result, domain.OutboxMessage{
			ID:            doc.ID,
			AggregateType: doc.AggregateType,
			AggregateID:   doc.AggregateID,
			EventType:     doc.EventType,
			Payload:       doc.Payload,
			CreatedAt:     doc.CreatedAt.UTC(),
		})
	}
	return result, nil
}

func (r *outboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	filter := bson.M{"status": outboxStatusPending}
	count, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return domain.OutboxStats{}, persistenceErr("count pending outbox messages", err)
	}

	stats := domain.OutboxStats{PendingCount: int(count)}
	if count == 0 {
		return stats, nil
	}

	var oldest outboxDocument
	if err := r.coll.FindOne(ctx, filter,
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}}),
	).Decode(&oldest); err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return domain.OutboxStats{}, persistenceErr("find oldest outbox message", err)
	}
	stats.OldestPendingAt = oldest.CreatedAt.UTC()
	return stats, nil
}

func (r *outboxRepository) MarkSent(ctx context.Context, id string) error {
	return r.markStatus(ctx, id, outboxStatusSent)
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string) error {
	return r.markStatus(ctx, id, outboxStatusFailed)
}

func (r *outboxRepository) markStatus(ctx context.Context, id, status string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$set": bson.M{"status": status, "updated_at": time.Now().UTC()},
			"$inc": bson.M{"attempt_count": 1},
		},
	)
	if err != nil {
		return persistenceErr("mark outbox message as "+status, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: outbox message %s not found", domain.ErrOutboxPublish, id)
	}
	return nil
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
