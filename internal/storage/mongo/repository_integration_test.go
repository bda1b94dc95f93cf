package mongo

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/camisetas/internal/domain"
)

const defaultLocalMongoURI = "mongodb://localhost:27017"

// RepositorySuite прогоняет репозитории на реальном MongoDB. Без сервера suite пропускается.
type RepositorySuite struct {
	suite.Suite
	store *Store
	ctx   context.Context
}

func TestRepositorySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("mongo integration tests are skipped in -short mode")
	}
	suite.Run(t, new(RepositorySuite))
}

func (s *RepositorySuite) SetupSuite() {
	uri := strings.TrimSpace(os.Getenv("SHOP_MONGO_TEST_URI"))
	if uri == "" {
		uri = defaultLocalMongoURI
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	database := fmt.Sprintf("camisetas_test_%d", time.Now().UnixNano())
	store, err := Connect(ctx, uri, database)
	if err != nil {
		s.T().Skipf("mongo is not available for integration tests: %v", err)
	}
	s.store = store
	s.ctx = context.Background()
	s.Require().NoError(store.EnsureIndexes(s.ctx))
}

func (s *RepositorySuite) TearDownSuite() {
	if s.store == nil {
		return
	}
	_ = s.store.Database().Drop(context.Background())
	_ = s.store.Close(context.Background())
}

func (s *RepositorySuite) SetupTest() {
	s.Require().NoError(s.store.Database().Drop(s.ctx))
	s.Require().NoError(s.store.EnsureIndexes(s.ctx))
}

func (s *RepositorySuite) order(number int64, createdAt time.Time) domain.Order {
	return domain.Order{
		Number:        number,
		CreatedAt:     createdAt,
		RecipientName: "Ana",
		ContactPhone:  "11999",
		Address:       domain.Address{PostalCode: "01001-000", Street: "Rua A", Number: 10, Neighborhood: "Centro"},
		PaymentMethod: domain.PaymentMethodCard,
		TotalValue:    35.5,
		Items:         []domain.LineItem{{ProductID: "c1", Size: domain.SizeG, ProductType: domain.ProductTypeRegular, Price: 25.5}},
	}
}

func (s *RepositorySuite) TestOrderUniqueNumberAndFloor() {
	repo := NewOrderRepository(s.store)
	now := time.Now().UTC().Truncate(time.Millisecond)

	first, err := repo.Create(s.ctx, s.order(1, now))
	s.Require().NoError(err)
	second, err := repo.Create(s.ctx, s.order(2, now.Add(time.Second)))
	s.Require().NoError(err)

	_, err = repo.Create(s.ctx, s.order(2, now))
	s.Require().ErrorIs(err, domain.ErrDuplicateSequence)

	s.Require().NoError(repo.Delete(s.ctx, second.ID))
	last, err := repo.LastNumber(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(2), last)

	_, err = repo.Create(s.ctx, s.order(2, now))
	s.Require().ErrorIs(err, domain.ErrDuplicateSequence)

	got, err := repo.GetByNumber(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal(first.ID, got.ID)

	_, err = repo.GetByID(s.ctx, "zzz")
	s.ErrorIs(err, domain.ErrOrderNotFound)
}

func (s *RepositorySuite) TestOrderListStatsAndStatus() {
	repo := NewOrderRepository(s.store)
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
	for n := int64(1); n <= 12; n++ {
		_, err := repo.Create(s.ctx, s.order(n, base.Add(time.Duration(n)*time.Second)))
		s.Require().NoError(err)
	}

	page, err := repo.List(s.ctx, domain.ListFilter{Page: 2, Limit: 5})
	s.Require().NoError(err)
	s.Equal(int64(12), page.Total)
	s.Require().Len(page.Orders, 5)
	s.Equal(int64(7), page.Orders[0].Number)

	done := "Concluído"
	updated, err := repo.UpdateStatus(s.ctx, 3, domain.StatusPatch{OrderStatus: &done})
	s.Require().NoError(err)
	s.Equal(&done, updated.OrderStatus)

	filtered, err := repo.List(s.ctx, domain.ListFilter{Page: 1, Limit: 5, Status: done})
	s.Require().NoError(err)
	s.Equal(int64(1), filtered.Total)

	stats, err := repo.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(12), stats.TotalOrders)
	s.InDelta(426.0, stats.TotalValue, 0.001)
	s.Equal([]domain.PaymentMethodCount{{PaymentMethod: domain.PaymentMethodCard, Count: 12}}, stats.ByPaymentMethod)
}

func (s *RepositorySuite) TestCouponCodeUnique() {
	repo := NewCouponRepository(s.store)

	_, err := repo.Create(s.ctx, domain.Coupon{Code: "BEMVINDO", Discount: 15, Active: true})
	s.Require().NoError(err)
	_, err = repo.Create(s.ctx, domain.Coupon{Code: "BEMVINDO", Discount: 5})
	s.ErrorIs(err, domain.ErrCouponCodeTaken)
}

func (s *RepositorySuite) TestProductCRUD() {
	repo := NewProductRepository(s.store)

	product, err := repo.Create(s.ctx, domain.Product{Name: "Oversized preta", Size: "G", Type: domain.ProductTypeOversized, Price: 89.9})
	s.Require().NoError(err)

	product.Name = "Oversized branca"
	updated, err := repo.Update(s.ctx, product)
	s.Require().NoError(err)
	s.Equal("Oversized branca", updated.Name)

	s.Require().NoError(repo.Delete(s.ctx, product.ID))
	s.ErrorIs(repo.Delete(s.ctx, product.ID), domain.ErrProductNotFound)
}

func (s *RepositorySuite) TestOutboxLifecycle() {
	repo := NewOutboxRepository(s.store)

	msg, err := repo.Enqueue(s.ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateOrder,
		AggregateID:   "1",
		EventType:     domain.EventOrderCreated,
		Payload:       []byte(`{"id":1}`),
	})
	s.Require().NoError(err)

	pending, err := repo.PullPending(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.JSONEq(`{"id":1}`, string(pending[0].Payload))

	stats, err := repo.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, stats.PendingCount)

	s.Require().NoError(repo.MarkSent(s.ctx, msg.ID))
	s.ErrorIs(repo.MarkSent(s.ctx, "missing"), domain.ErrOutboxPublish)
}
