package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vladislavdragonenkov/camisetas/internal/domain"
)

func TestOrderDocument_SequenceAndAddressNumberDoNotCollide(t *testing.T) {
	t.Parallel()

	order := domain.Order{
		Number:        42,
		CreatedAt:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		RecipientName: "Ana",
		ContactPhone:  "11999",
		Address:       domain.Address{PostalCode: "01001-000", Street: "Rua A", Number: 7, Neighborhood: "Centro"},
		PaymentMethod: domain.PaymentMethodCash,
		TotalValue:    50,
		Items:         []domain.LineItem{{ProductID: "c1", Size: domain.SizeP, ProductType: domain.ProductTypeOversized, Price: 40}},
	}
	oid := primitive.NewObjectID()

	raw, err := bson.Marshal(newOrderDocument(order, oid))
	require.NoError(t, err)

	var flat bson.M
	require.NoError(t, bson.Unmarshal(raw, &flat))
	require.EqualValues(t, 42, flat["id"])
	require.EqualValues(t, 7, flat["numero"])
	require.Equal(t, "01001-000", flat["cep"])
	require.NotContains(t, flat, "statusPedido")

	var doc orderDocument
	require.NoError(t, bson.Unmarshal(raw, &doc))
	got := doc.toDomain()
	require.Equal(t, oid.Hex(), got.ID)
	require.Equal(t, int64(42), got.Number)
	require.Equal(t, order.Address, got.Address)
	require.Equal(t, order.Items, got.Items)
}

func TestParseObjectID_InvalidIsNotFound(t *testing.T) {
	t.Parallel()

	_, err := parseObjectID("not-an-object-id", domain.ErrOrderNotFound)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)

	oid := primitive.NewObjectID()
	parsed, err := parseObjectID(oid.Hex(), domain.ErrOrderNotFound)
	require.NoError(t, err)
	require.Equal(t, oid, parsed)
}

type stubDeleter struct {
	res    *mongo.DeleteResult
	err    error
	filter interface{}
}

func (d *stubDeleter) DeleteOne(_ context.Context, filter interface{}, _ ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	d.filter = filter
	return d.res, d.err
}

func TestRollbackBelowFloor(t *testing.T) {
	t.Parallel()

	oid := primitive.NewObjectID()

	t.Run("deleted", func(t *testing.T) {
		t.Parallel()
		deleter := &stubDeleter{res: &mongo.DeleteResult{DeletedCount: 1}}
		err := rollbackBelowFloor(context.Background(), deleter, oid)
		require.ErrorIs(t, err, domain.ErrDuplicateSequence)
		require.Equal(t, bson.M{"_id": oid}, deleter.filter)
	})

	t.Run("delete failed", func(t *testing.T) {
		t.Parallel()
		err := rollbackBelowFloor(context.Background(), &stubDeleter{err: context.DeadlineExceeded}, oid)
		require.ErrorIs(t, err, domain.ErrPersistence)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.False(t, domain.IsDuplicateSequence(err))
	})

	t.Run("nothing deleted", func(t *testing.T) {
		t.Parallel()
		err := rollbackBelowFloor(context.Background(), &stubDeleter{res: &mongo.DeleteResult{}}, oid)
		require.ErrorIs(t, err, domain.ErrPersistence)
		require.False(t, domain.IsDuplicateSequence(err))
	})

	t.Run("caller context already done", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		deleter := &stubDeleter{res: &mongo.DeleteResult{DeletedCount: 1}}
		require.ErrorIs(t, rollbackBelowFloor(ctx, deleter, oid), domain.ErrDuplicateSequence)
	})
}
