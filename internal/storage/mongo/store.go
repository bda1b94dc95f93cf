// Package mongo хранит заказы, каталог и outbox в MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/vladislavdragonenkov/camisetas/internal/domain"
)

const (
	ordersCollection    = "pedidos"
	productsCollection  = "camisetas"
	couponsCollection   = "cupons"
	outboxCollection    = "outbox_messages"
	sequencesCollection = "sequences"

	// orderSequenceID: документ в sequences с максимальным номером удалённого заказа.
	orderSequenceID = "pedidos"

	defaultConnTimeout = 10 * time.Second
	opTimeout          = 5 * time.Second
)

// Store держит клиента MongoDB и выбранную базу.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect подключается к MongoDB и проверяет доступность primary.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	if database == "" {
		return nil, errors.New("mongo database name is required")
	}

	connectCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(defaultConnTimeout))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Store{client: client, db: client.Database(database)}, nil
}

// Database возвращает базу, когда нужен низкоуровневый доступ.
func (s *Store) Database() *mongo.Database {
	return s.db
}

// Ping проверяет доступность кластера.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return errors.New("mongo store is not initialized")
	}

	pingCtx, cancel := withTimeout(ctx)
	defer cancel()
	return s.client.Ping(pingCtx, readpref.Primary())
}

// Close отключает клиента.
func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// EnsureIndexes создаёт индексы, на которых держатся уникальность номера заказа и кода купона.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("mongo store is not initialized")
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := s.db.Collection(ordersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("pedidos_id_unique"),
		},
		{
			Keys:    bson.D{{Key: "telefone_contato", Value: 1}, {Key: "data_pedido", Value: -1}},
			Options: options.Index().SetName("pedidos_telefone_data"),
		},
		{
			Keys:    bson.D{{Key: "data_pedido", Value: -1}, {Key: "id", Value: -1}},
			Options: options.Index().SetName("pedidos_data"),
		},
	}); err != nil {
		return fmt.Errorf("create order indexes: %w", err)
	}

	if _, err := s.db.Collection(couponsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "codigo", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("cupons_codigo_unique"),
	}); err != nil {
		return fmt.Errorf("create coupon indexes: %w", err)
	}

	if _, err := s.db.Collection(outboxCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}},
		Options: options.Index().SetName("outbox_status_created"),
	}); err != nil {
		return fmt.Errorf("create outbox indexes: %w", err)
	}
	return nil
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, opTimeout)
}

func persistenceErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrPersistence, err)
}

// parseObjectID трактует невалидный hex как отсутствующую запись.
func parseObjectID(id string, notFound error) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, notFound
	}
	return oid, nil
}
