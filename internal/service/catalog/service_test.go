package catalog

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/camisetas/internal/domain"
	"github.com/vladislavdragonenkov/camisetas/internal/storage/memory"
)

func newTestService() *Service {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return NewService(memory.NewProductRepository(), memory.NewCouponRepository(), logger.WithField("test", "catalog"))
}

func TestProductLifecycle(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	created, err := svc.CreateProduct(ctx, ProductInput{Name: "Básica Preta", Size: "M", Type: domain.ProductTypeRegular, Price: 59.9})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := svc.GetProduct(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Básica Preta", got.Name)

	oversized := domain.ProductTypeOversized
	updated, err := svc.UpdateProduct(ctx, created.ID, ProductPatch{Size: ptr("G"), Type: &oversized, Price: ptr(69.9)})
	require.NoError(t, err)
	require.Equal(t, "G", updated.Size)
	require.Equal(t, "Básica Preta", updated.Name)
	require.Equal(t, created.CreatedAt, updated.CreatedAt)

	list, err := svc.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, svc.DeleteProduct(ctx, created.ID))
	_, err = svc.GetProduct(ctx, created.ID)
	require.ErrorIs(t, err, domain.ErrProductNotFound)
	require.ErrorIs(t, svc.DeleteProduct(ctx, created.ID), domain.ErrProductNotFound)
}

func TestCreateProduct_Validation(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateProduct(context.Background(), ProductInput{Type: "Slim", Price: -1})
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Len(t, vErr.Fields, 4)
}

func TestCouponDefaultsAndUniqueness(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	coupon, err := svc.CreateCoupon(ctx, CouponInput{Code: "PRIMEIRA10", Discount: 10})
	require.NoError(t, err)
	require.True(t, coupon.Active)

	_, err = svc.CreateCoupon(ctx, CouponInput{Code: "PRIMEIRA10", Discount: 5})
	require.ErrorIs(t, err, domain.ErrCouponCodeTaken)

	updated, err := svc.UpdateCoupon(ctx, coupon.ID, CouponPatch{Discount: ptr(15.0), Active: ptr(false)})
	require.NoError(t, err)
	require.False(t, updated.Active)
	require.Equal(t, 15.0, updated.Discount)

	other, err := svc.CreateCoupon(ctx, CouponInput{Code: "primeira10", Discount: 5})
	require.NoError(t, err, "codes are case-sensitive")

	_, err = svc.UpdateCoupon(ctx, other.ID, CouponPatch{Code: ptr("PRIMEIRA10")})
	require.ErrorIs(t, err, domain.ErrCouponCodeTaken)

	list, err := svc.ListCoupons(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	require.NoError(t, svc.DeleteCoupon(ctx, coupon.ID))
	_, err = svc.GetCoupon(ctx, coupon.ID)
	require.ErrorIs(t, err, domain.ErrCouponNotFound)
}

func TestCreateCoupon_DiscountRange(t *testing.T) {
	svc := newTestService()
	_, err := svc.CreateCoupon(context.Background(), CouponInput{Code: "X", Discount: 150})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestUpdateProduct_PartialKeepsOtherFields(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	created, err := svc.CreateProduct(ctx, ProductInput{Name: "Tee", Size: "P", Type: domain.ProductTypeRegular, Price: 39.9, Image: "tee.png"})
	require.NoError(t, err)

	updated, err := svc.UpdateProduct(ctx, created.ID, ProductPatch{Name: ptr("Tee 2")})
	require.NoError(t, err)
	require.Equal(t, "Tee 2", updated.Name)
	require.Equal(t, "P", updated.Size)
	require.Equal(t, domain.ProductTypeRegular, updated.Type)
	require.Equal(t, 39.9, updated.Price)
	require.Equal(t, "tee.png", updated.Image)

	_, err = svc.UpdateProduct(ctx, created.ID, ProductPatch{Name: ptr(" ")})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.UpdateProduct(ctx, "missing", ProductPatch{Name: ptr("X")})
	require.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestUpdateCoupon_DiscountOnlyKeepsInactive(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	coupon, err := svc.CreateCoupon(ctx, CouponInput{Code: "INVERNO", Discount: 10, Active: ptr(false)})
	require.NoError(t, err)
	require.False(t, coupon.Active)

	updated, err := svc.UpdateCoupon(ctx, coupon.ID, CouponPatch{Discount: ptr(20.0)})
	require.NoError(t, err)
	require.Equal(t, 20.0, updated.Discount)
	require.Equal(t, "INVERNO", updated.Code)
	require.False(t, updated.Active)

	_, err = svc.UpdateCoupon(ctx, "missing", CouponPatch{Discount: ptr(5.0)})
	require.ErrorIs(t, err, domain.ErrCouponNotFound)
}

func ptr[T any](v T) *T { return &v }
