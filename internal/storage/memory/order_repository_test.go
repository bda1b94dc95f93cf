package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/camisetas/internal/domain"
	"github.com/vladislavdragonenkov/camisetas/internal/storage/memory"
)

func newOrder(number int64, createdAt time.Time) domain.Order {
	return domain.Order{
		Number:        number,
		CreatedAt:     createdAt,
		RecipientName: "João",
		ContactPhone:  "11988887777",
		Address: domain.Address{
			PostalCode:   "20040-020",
			Street:       "Av. Rio Branco",
			Number:       156,
			Neighborhood: "Centro",
		},
		PaymentMethod: domain.PaymentMethodCard,
		TotalValue:    59.9,
		Items: []domain.LineItem{
			{ProductID: "camiseta-1", Size: domain.SizeG, ProductType: domain.ProductTypeOversized, Price: 49.9},
		},
	}
}

func TestOrderRepository_CreateGet(t *testing.T) {
	repo := memory.NewOrderRepository()
	ctx := context.Background()

	created, err := repo.Create(ctx, newOrder(1, time.Now().UTC()))
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	byID, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), byID.Number)

	byNumber, err := repo.GetByNumber(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, created.ID, byNumber.ID)

	_, err = repo.GetByID(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
	_, err = repo.GetByNumber(ctx, 42)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestOrderRepository_CreateRejectsDuplicateNumber(t *testing.T) {
	repo := memory.NewOrderRepository()
	ctx := context.Background()

	_, err := repo.Create(ctx, newOrder(7, time.Now().UTC()))
	require.NoError(t, err)

	_, err = repo.Create(ctx, newOrder(7, time.Now().UTC()))
	require.True(t, domain.IsDuplicateSequence(err), "expected duplicate sequence, got %v", err)
}

func TestOrderRepository_CreateValidates(t *testing.T) {
	repo := memory.NewOrderRepository()
	order := newOrder(1, time.Now().UTC())
	order.Items = nil

	_, err := repo.Create(context.Background(), order)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestOrderRepository_ListByPhoneNewestFirst(t *testing.T) {
	repo := memory.NewOrderRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := repo.Create(ctx, newOrder(1, now.Add(-time.Hour)))
	require.NoError(t, err)
	_, err = repo.Create(ctx, newOrder(2, now))
	require.NoError(t, err)
	other := newOrder(3, now)
	other.ContactPhone = "000"
	_, err = repo.Create(ctx, other)
	require.NoError(t, err)

	orders, err := repo.ListByPhone(ctx, "11988887777")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	require.Equal(t, int64(2), orders[0].Number)
	require.Equal(t, int64(1), orders[1].Number)
}

func TestOrderRepository_ListPagination(t *testing.T) {
	repo := memory.NewOrderRepository()
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for i := int64(1); i <= 25; i++ {
		_, err := repo.Create(ctx, newOrder(i, base.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
	}

	res, err := repo.List(ctx, domain.ListFilter{Page: 2, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, int64(25), res.Total)
	require.Equal(t, int64(3), res.TotalPages(10))
	require.Len(t, res.Orders, 10)
	// Новые первыми: вторая страница содержит 11-й..20-й по убыванию даты, т.е. номера 15..6.
	require.Equal(t, int64(15), res.Orders[0].Number)
	require.Equal(t, int64(6), res.Orders[9].Number)

	last, err := repo.List(ctx, domain.ListFilter{Page: 3, Limit: 10})
	require.NoError(t, err)
	require.Len(t, last.Orders, 5)

	beyond, err := repo.List(ctx, domain.ListFilter{Page: 9, Limit: 10})
	require.NoError(t, err)
	require.Empty(t, beyond.Orders)
}

func TestOrderRepository_ListStatusFilter(t *testing.T) {
	repo := memory.NewOrderRepository()
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		_, err := repo.Create(ctx, newOrder(i, time.Now().UTC()))
		require.NoError(t, err)
	}
	shipped := "enviado"
	_, err := repo.UpdateStatus(ctx, 2, domain.StatusPatch{OrderStatus: &shipped})
	require.NoError(t, err)

	res, err := repo.List(ctx, domain.ListFilter{Page: 1, Limit: 10, Status: "enviado"})
	require.NoError(t, err)
	require.Equal(t, int64(1), res.Total)
	require.Equal(t, int64(2), res.Orders[0].Number)
}

func TestOrderRepository_UpdateStatus(t *testing.T) {
	repo := memory.NewOrderRepository()
	ctx := context.Background()

	created, err := repo.Create(ctx, newOrder(1, time.Now().UTC()))
	require.NoError(t, err)

	_, err = repo.UpdateStatus(ctx, 1, domain.StatusPatch{})
	require.ErrorIs(t, err, domain.ErrNoFieldsProvided)

	unchanged, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.Nil(t, unchanged.DeliveryStatus)
	require.Nil(t, unchanged.OrderStatus)

	delivered := "entregue"
	updated, err := repo.UpdateStatus(ctx, 1, domain.StatusPatch{DeliveryStatus: &delivered})
	require.NoError(t, err)
	require.Equal(t, "entregue", *updated.DeliveryStatus)
	require.Equal(t, created.Number, updated.Number)

	_, err = repo.UpdateStatus(ctx, 99, domain.StatusPatch{DeliveryStatus: &delivered})
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestOrderRepository_DeleteKeepsNumberReserved(t *testing.T) {
	repo := memory.NewOrderRepository()
	ctx := context.Background()

	_, err := repo.Create(ctx, newOrder(1, time.Now().UTC()))
	require.NoError(t, err)
	second, err := repo.Create(ctx, newOrder(2, time.Now().UTC()))
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, second.ID))
	if err := repo.Delete(ctx, second.ID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound on second delete, got %v", err)
	}

	last, err := repo.LastNumber(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), last)

	_, err = repo.Create(ctx, newOrder(2, time.Now().UTC()))
	require.True(t, domain.IsDuplicateSequence(err), "deleted number must not be reused")
}

func TestOrderRepository_Stats(t *testing.T) {
	repo := memory.NewOrderRepository()
	ctx := context.Background()

	first := newOrder(1, time.Now().UTC())
	first.TotalValue = 40
	second := newOrder(2, time.Now().UTC())
	second.TotalValue = 60
	second.PaymentMethod = domain.PaymentMethodPIX
	third := newOrder(3, time.Now().UTC())
	third.TotalValue = 10
	third.PaymentMethod = domain.PaymentMethodPIX

	for _, o := range []domain.Order{first, second, third} {
		_, err := repo.Create(ctx, o)
		require.NoError(t, err)
	}

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), stats.TotalOrders)
	require.InDelta(t, 110.0, stats.TotalValue, 1e-9)
	require.ElementsMatch(t, []domain.PaymentMethodCount{
		{PaymentMethod: domain.PaymentMethodCard, Count: 1},
		{PaymentMethod: domain.PaymentMethodPIX, Count: 2},
	}, stats.ByPaymentMethod)
}

func TestOrderRepository_LastNumberEmpty(t *testing.T) {
	repo := memory.NewOrderRepository()
	last, err := repo.LastNumber(context.Background())
	require.NoError(t, err)
	require.Zero(t, last)
}
