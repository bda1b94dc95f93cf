package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vladislavdragonenkov/camisetas/internal/domain"
)

// orderDocument: представление заказа в коллекции pedidos. Поле id несёт
// последовательный номер и закрыто уникальным индексом.
type orderDocument struct {
	ObjectID       primitive.ObjectID `bson:"_id"`
	Number         int64              `bson:"id"`
	CreatedAt      time.Time          `bson:"data_pedido"`
	UpdatedAt      time.Time          `bson:"updatedAt"`
	RecipientName  string             `bson:"nome_destinario"`
	ContactPhone   string             `bson:"telefone_contato"`
	Address        domain.Address     `bson:",inline"`
	PaymentMethod  string             `bson:"forma_pagamento"`
	TotalValue     float64            `bson:"valor_total"`
	Items          []domain.LineItem  `bson:"itens"`
	DeliveryStatus *string            `bson:"statusEntrega,omitempty"`
	OrderStatus    *string            `bson:"statusPedido,omitempty"`
}

func newOrderDocument(o domain.Order, oid primitive.ObjectID) orderDocument {
	return orderDocument{
		ObjectID:       oid,
		Number:         o.Number,
		CreatedAt:      o.CreatedAt.UTC(),
		UpdatedAt:      o.UpdatedAt.UTC(),
		RecipientName:  o.RecipientName,
		ContactPhone:   o.ContactPhone,
		Address:        o.Address,
		PaymentMethod:  string(o.PaymentMethod),
		TotalValue:     o.TotalValue,
		Items:          o.Items,
		DeliveryStatus: o.DeliveryStatus,
		OrderStatus:    o.OrderStatus,
	}
}

func (d orderDocument) toDomain() domain.Order {
	return domain.Order{
		ID:             d.ObjectID.Hex(),
		Number:         d.Number,
		CreatedAt:      d.CreatedAt.UTC(),
		UpdatedAt:      d.UpdatedAt.UTC(),
		RecipientName:  d.RecipientName,
		ContactPhone:   d.ContactPhone,
		Address:        d.Address,
		PaymentMethod:  domain.PaymentMethod(d.PaymentMethod),
		TotalValue:     d.TotalValue,
		Items:          d.Items,
		DeliveryStatus: d.DeliveryStatus,
		OrderStatus:    d.OrderStatus,
	}
}

type sequenceDocument struct {
	ID          string `bson:"_id"`
	LastDeleted int64  `bson:"last_deleted"`
}

type orderRepository struct {
	orders    *mongo.Collection
	sequences *mongo.Collection
}

// NewOrderRepository создаёт MongoDB-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{
		orders:    store.db.Collection(ordersCollection),
		sequences: store.db.Collection(sequencesCollection),
	}
}

// Create вставляет документ. Дубликат по уникальному индексу id или номер не выше
// floor удалённых дают ErrDuplicateSequence.
func (r *orderRepository) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	if err := order.ValidateInvariants(); err != nil {
		return domain.Order{}, err
	}
	if order.Number <= 0 {
		return domain.Order{}, domain.NewValidationError("id", "sequence number must be positive")
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	floor, err := r.floor(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Number <= floor {
		return domain.Order{}, domain.ErrDuplicateSequence
	}

	oid := primitive.NewObjectID()
	if order.ID != "" {
		if parsed, err := primitive.ObjectIDFromHex(order.ID); err == nil {
			oid = parsed
		}
	}
	doc := newOrderDocument(order, oid)
	if _, err := r.orders.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.Order{}, domain.ErrDuplicateSequence
		}
		return domain.Order{}, persistenceErr("insert order", err)
	}

	// Удаление могло поднять floor между чтением и вставкой: такой номер уже выдавался.
	floor, err = r.floor(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Number <= floor {
		return domain.Order{}, rollbackBelowFloor(ctx, r.orders, oid)
	}
	return doc.toDomain(), nil
}

// documentDeleter: часть *mongo.Collection, нужная для отката вставки.
type documentDeleter interface {
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
}

// rollbackBelowFloor удаляет заказ, вставленный с уже выданным номером.
// ErrDuplicateSequence (повод для повтора) возвращается только при подтверждённом удалении.
func rollbackBelowFloor(ctx context.Context, orders documentDeleter, oid primitive.ObjectID) error {
	ctx, cancel := withTimeout(context.WithoutCancel(ctx))
	defer cancel()

	res, err := orders.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return persistenceErr("rollback order below floor", err)
	}
	if res == nil || res.DeletedCount != 1 {
		return persistenceErr("rollback order below floor", errors.New("inserted order not found"))
	}
	return domain.ErrDuplicateSequence
}

func (r *orderRepository) GetByID(ctx context.Context, id string) (domain.Order, error) {
	oid, err := parseObjectID(id, domain.ErrOrderNotFound)
	if err != nil {
		return domain.Order{}, err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *orderRepository) GetByNumber(ctx context.Context, number int64) (domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return r.findOne(ctx, bson.M{"id": number})
}

func (r *orderRepository) findOne(ctx context.Context, filter bson.M) (domain.Order, error) {
	var doc orderDocument
	if err := r.orders.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, persistenceErr("find order", err)
	}
	return doc.toDomain(), nil
}

func (r *orderRepository) ListByPhone(ctx context.Context, phone string) ([]domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	opts := options.Find().SetSort(newestFirst())
	return r.find(ctx, bson.M{"telefone_contato": phone}, opts)
}

func (r *orderRepository) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := bson.M{}
	if filter.Status != "" {
		query["statusPedido"] = filter.Status
	}

	total, err := r.orders.CountDocuments(ctx, query)
	if err != nil {
		return domain.ListResult{}, persistenceErr("count orders", err)
	}

	opts := options.Find().
		SetSort(newestFirst()).
		SetSkip(int64(filter.Skip())).
		SetLimit(int64(filter.Limit))
	orders, err := r.find(ctx, query, opts)
	if err != nil {
		return domain.ListResult{}, err
	}
	return domain.ListResult{Orders: orders, Total: total}, nil
}

func (r *orderRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.Order, error) {
	cursor, err := r.orders.Find(ctx, filter, opts)
	if err != nil {
		return nil, persistenceErr("find orders", err)
	}
	defer cursor.Close(ctx)

	var docs []orderDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, persistenceErr("decode orders", err)
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.toDomain())
	}
	return orders, nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, number int64, patch domain.StatusPatch) (domain.Order, error) {
	if patch.Empty() {
		return domain.Order{}, domain.ErrNoFieldsProvided
	}

	set := bson.M{"updatedAt": time.Now().UTC()}
	if patch.DeliveryStatus != nil {
		set["statusEntrega"] = *patch.DeliveryStatus
	}
	if patch.OrderStatus != nil {
		set["statusPedido"] = *patch.OrderStatus
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var doc orderDocument
	err := r.orders.FindOneAndUpdate(ctx,
		bson.M{"id": number},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, persistenceErr("update order status", err)
	}
	return doc.toDomain(), nil
}

// Delete сначала поднимает floor до номера заказа, затем удаляет документ.
// Если удаление не прошло, floor остаётся выше: номер просто пропускается.
func (r *orderRepository) Delete(ctx context.Context, id string) error {
	oid, err := parseObjectID(id, domain.ErrOrderNotFound)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	order, err := r.findOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}

	if _, err := r.sequences.UpdateOne(ctx,
		bson.M{"_id": orderSequenceID},
		bson.M{"$max": bson.M{"last_deleted": order.Number}},
		options.Update().SetUpsert(true),
	); err != nil {
		return persistenceErr("raise sequence floor", err)
	}

	res, err := r.orders.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return persistenceErr("delete order", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *orderRepository) Stats(ctx context.Context) (domain.Stats, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	stats := domain.Stats{ByPaymentMethod: []domain.PaymentMethodCount{}}

	cursor, err := r.orders.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: "$valor_total"}}},
		}}},
	})
	if err != nil {
		return domain.Stats{}, persistenceErr("aggregate order totals", err)
	}
	var totals []struct {
		Count int64   `bson:"count"`
		Total float64 `bson:"total"`
	}
	if err := cursor.All(ctx, &totals); err != nil {
		return domain.Stats{}, persistenceErr("decode order totals", err)
	}
	if len(totals) > 0 {
		stats.TotalOrders = totals[0].Count
		stats.TotalValue = decimal.NewFromFloat(totals[0].Total).Round(2).InexactFloat64()
	}

	cursor, err = r.orders.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$forma_pagamento"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	})
	if err != nil {
		return domain.Stats{}, persistenceErr("aggregate payment methods", err)
	}
	var groups []struct {
		Method string `bson:"_id"`
		Count  int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &groups); err != nil {
		return domain.Stats{}, persistenceErr("decode payment methods", err)
	}
	for _, g := range groups {
		stats.ByPaymentMethod = append(stats.ByPaymentMethod, domain.PaymentMethodCount{
			PaymentMethod: domain.PaymentMethod(g.Method),
			Count:         g.Count,
		})
	}
	return stats, nil
}

func (r *orderRepository) LastNumber(ctx context.Context) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var last int64
	var doc orderDocument
	err := r.orders.FindOne(ctx, bson.M{},
		options.FindOne().SetSort(bson.D{{Key: "id", Value: -1}}).SetProjection(bson.M{"id": 1}),
	).Decode(&doc)
	switch {
	case err == nil:
		last = doc.Number
	case errors.Is(err, mongo.ErrNoDocuments):
	default:
		return 0, persistenceErr("read last order number", err)
	}

	floor, err := r.floor(ctx)
	if err != nil {
		return 0, err
	}
	return max(last, floor), nil
}

func (r *orderRepository) floor(ctx context.Context) (int64, error) {
	var seq sequenceDocument
	err := r.sequences.FindOne(ctx, bson.M{"_id": orderSequenceID}).Decode(&seq)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, persistenceErr("read sequence floor", err)
	}
	return seq.LastDeleted, nil
}

func newestFirst() bson.D {
	return bson.D{{Key: "data_pedido", Value: -1}, {Key: "id", Value: -1}}
}

var _ domain.OrderRepository = (*orderRepository)(nil)
