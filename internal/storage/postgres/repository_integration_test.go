package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/camisetas/internal/domain"
)

func sampleOrder(number int64, phone string, createdAt time.Time) domain.Order {
	return domain.Order{
		Number:        number,
		CreatedAt:     createdAt,
		RecipientName: "Ana",
		ContactPhone:  phone,
		Address: domain.Address{
			PostalCode:   "01001-000",
			Street:       "Rua A",
			Number:       10,
			Neighborhood: "Centro",
		},
		PaymentMethod: domain.PaymentMethodPIX,
		TotalValue:    49.9,
		Items: []domain.LineItem{
			{ProductID: "cam-1", Size: domain.SizeM, ProductType: domain.ProductTypeRegular, Price: 39.9},
		},
	}
}

func TestOrderRepository_PostgresLifecycle(t *testing.T) {
	store := openStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	first, err := repo.Create(ctx, sampleOrder(1, "11999", now.Add(-time.Minute)))
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	second, err := repo.Create(ctx, sampleOrder(2, "11999", now))
	require.NoError(t, err)

	_, err = repo.Create(ctx, sampleOrder(2, "11888", now))
	require.ErrorIs(t, err, domain.ErrDuplicateSequence)

	got, err := repo.GetByNumber(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, first.ID, got.ID)
	require.Equal(t, 49.9, got.TotalValue)
	require.Equal(t, first.Items, got.Items)
	require.Equal(t, first.Address, got.Address)

	byPhone, err := repo.ListByPhone(ctx, "11999")
	require.NoError(t, err)
	require.Len(t, byPhone, 2)
	require.Equal(t, second.ID, byPhone[0].ID)

	status := "Enviado"
	updated, err := repo.UpdateStatus(ctx, 2, domain.StatusPatch{DeliveryStatus: &status})
	require.NoError(t, err)
	require.Equal(t, &status, updated.DeliveryStatus)
	require.Nil(t, updated.OrderStatus)

	_, err = repo.UpdateStatus(ctx, 99, domain.StatusPatch{DeliveryStatus: &status})
	require.ErrorIs(t, err, domain.ErrOrderNotFound)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.TotalOrders)
	require.InDelta(t, 99.8, stats.TotalValue, 0.001)
	require.Equal(t, []domain.PaymentMethodCount{{PaymentMethod: domain.PaymentMethodPIX, Count: 2}}, stats.ByPaymentMethod)
}

func TestOrderRepository_PostgresDeleteKeepsNumberReserved(t *testing.T) {
	store := openStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	now := time.Now().UTC()
	_, err := repo.Create(ctx, sampleOrder(1, "1", now))
	require.NoError(t, err)
	second, err := repo.Create(ctx, sampleOrder(2, "1", now))
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, second.ID))
	require.ErrorIs(t, repo.Delete(ctx, second.ID), domain.ErrOrderNotFound)

	last, err := repo.LastNumber(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), last)

	_, err = repo.Create(ctx, sampleOrder(2, "1", now))
	require.ErrorIs(t, err, domain.ErrDuplicateSequence)
	_, err = repo.Create(ctx, sampleOrder(3, "1", now))
	require.NoError(t, err)
}

func TestOrderRepository_PostgresListPaginationAndFilter(t *testing.T) {
	store := openStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	paid := "Pago"
	for n := int64(1); n <= 25; n++ {
		order := sampleOrder(n, "1", base.Add(time.Duration(n)*time.Second))
		if n%5 == 0 {
			order.OrderStatus = &paid
		}
		_, err := repo.Create(ctx, order)
		require.NoError(t, err)
	}

	page, err := repo.List(ctx, domain.ListFilter{Page: 2, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, int64(25), page.Total)
	require.Equal(t, int64(3), page.TotalPages(10))
	require.Len(t, page.Orders, 10)
	require.Equal(t, int64(15), page.Orders[0].Number)
	require.Equal(t, int64(6), page.Orders[9].Number)

	filtered, err := repo.List(ctx, domain.ListFilter{Page: 1, Limit: 10, Status: paid})
	require.NoError(t, err)
	require.Equal(t, int64(5), filtered.Total)
	require.Equal(t, int64(25), filtered.Orders[0].Number)
}

func TestCatalogRepositories_Postgres(t *testing.T) {
	store := openStoreForIntegrationTest(t)
	products := NewProductRepository(store)
	coupons := NewCouponRepository(store)
	ctx := context.Background()

	product, err := products.Create(ctx, domain.Product{Name: "Básica", Size: "M", Type: domain.ProductTypeRegular, Price: 59.9})
	require.NoError(t, err)
	product.Price = 49.9
	updated, err := products.Update(ctx, product)
	require.NoError(t, err)
	require.Equal(t, 49.9, updated.Price)
	list, err := products.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NoError(t, products.Delete(ctx, product.ID))
	_, err = products.Get(ctx, product.ID)
	require.ErrorIs(t, err, domain.ErrProductNotFound)

	coupon, err := coupons.Create(ctx, domain.Coupon{Code: "PROMO10", Discount: 10, Active: true})
	require.NoError(t, err)
	_, err = coupons.Create(ctx, domain.Coupon{Code: "PROMO10", Discount: 5})
	require.ErrorIs(t, err, domain.ErrCouponCodeTaken)
	_, err = coupons.Create(ctx, domain.Coupon{Code: "promo10", Discount: 5})
	require.NoError(t, err)

	got, err := coupons.Get(ctx, coupon.ID)
	require.NoError(t, err)
	require.Equal(t, 10.0, got.Discount)
	require.ErrorIs(t, coupons.Delete(ctx, "missing"), domain.ErrCouponNotFound)
}

func TestOutboxRepository_Postgres(t *testing.T) {
	store := openStoreForIntegrationTest(t)
	repo := NewOutboxRepository(store)
	ctx := context.Background()

	now := time.Now().UTC()
	first, err := repo.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateOrder, AggregateID: "1", EventType: domain.EventOrderCreated,
		Payload: []byte(`{"id":1}`), CreatedAt: now.Add(-time.Second),
	})
	require.NoError(t, err)
	_, err = repo.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateOrder, AggregateID: "2", EventType: domain.EventOrderCreated,
		Payload: []byte(`{"id":2}`), CreatedAt: now,
	})
	require.NoError(t, err)

	pending, err := repo.PullPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, first.ID, pending[0].ID)
	require.JSONEq(t, `{"id":1}`, string(pending[0].Payload))

	require.NoError(t, repo.MarkSent(ctx, first.ID))
	require.ErrorIs(t, repo.MarkFailed(ctx, "missing"), domain.ErrOutboxPublish)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.PendingCount)
}
