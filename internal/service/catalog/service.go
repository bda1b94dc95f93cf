package catalog

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/camisetas/internal/domain"
)

// ProductInput: данные футболки из запроса.
type ProductInput struct {
	Name  string             `json:"nome"`
	Size  string             `json:"tamanho"`
	Type  domain.ProductType `json:"tipo"`
	Price float64            `json:"preco"`
	Image string             `json:"imagem,omitempty"`
}

// CouponInput: данные купона из запроса. Active по умолчанию true.
type CouponInput struct {
	Code     string  `json:"codigo"`
	Discount float64 `json:"desconto"`
	Active   *bool   `json:"ativo,omitempty"`
}

// ProductPatch: частичное обновление футболки. nil-поля не меняются.
type ProductPatch struct {
	Name  *string             `json:"nome"`
	Size  *string             `json:"tamanho"`
	Type  *domain.ProductType `json:"tipo"`
	Price *float64            `json:"preco"`
	Image *string             `json:"imagem"`
}

// CouponPatch: частичное обновление купона. nil-поля не меняются.
type CouponPatch struct {
	Code     *string  `json:"codigo"`
	Discount *float64 `json:"desconto"`
	Active   *bool    `json:"ativo"`
}

// Service: CRUD каталога футболок и купонов.
type Service struct {
	products domain.ProductRepository
	coupons  domain.CouponRepository
	logger   *log.Entry
}

// NewService создаёт сервис каталога.
func NewService(products domain.ProductRepository, coupons domain.CouponRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "catalog-service")
	}
	return &Service{products: products, coupons: coupons, logger: logger}
}

func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (domain.Product, error) {
	product, err := s.products.Create(ctx, in.product(""))
	if err != nil {
		return domain.Product{}, err
	}
	s.logger.WithField("product_id", product.ID).Info("product created")
	return product, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	return s.products.Get(ctx, id)
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.products.List(ctx)
}

// UpdateProduct накладывает переданные поля на текущую футболку.
func (s *Service) UpdateProduct(ctx context.Context, id string, patch ProductPatch) (domain.Product, error) {
	current, err := s.products.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	patch.apply(&current)
	return s.products.Update(ctx, current)
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := s.products.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.WithField("product_id", id).Info("product deleted")
	return nil
}

func (s *Service) CreateCoupon(ctx context.Context, in CouponInput) (domain.Coupon, error) {
	coupon, err := s.coupons.Create(ctx, in.coupon(""))
	if err != nil {
		return domain.Coupon{}, err
	}
	s.logger.WithField("coupon_code", coupon.Code).Info("coupon created")
	return coupon, nil
}

func (s *Service) GetCoupon(ctx context.Context, id string) (domain.Coupon, error) {
	return s.coupons.Get(ctx, id)
}

func (s *Service) ListCoupons(ctx context.Context) ([]domain.Coupon, error) {
	return s.coupons.List(ctx)
}

// UpdateCoupon накладывает переданные поля на текущий купон. Без ativo статус не меняется.
func (s *Service) UpdateCoupon(ctx context.Context, id string, patch CouponPatch) (domain.Coupon, error) {
	current, err := s.coupons.Get(ctx, id)
	if err != nil {
		return domain.Coupon{}, err
	}
	patch.apply(&current)
	return s.coupons.Update(ctx, current)
}

func (s *Service) DeleteCoupon(ctx context.Context, id string) error {
	if err := s.coupons.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.WithField("coupon_id", id).Info("coupon deleted")
	return nil
}

func (in ProductInput) product(id string) domain.Product {
	return domain.Product{
		ID:    id,
		Name:  in.Name,
		Size:  in.Size,
		Type:  in.Type,
		Price: in.Price,
		Image: in.Image,
	}
}

func (in CouponInput) coupon(id string) domain.Coupon {
	active := true
	if in.Active != nil {
		active = *in.Active
	}
	return domain.Coupon{
		ID:       id,
		Code:     in.Code,
		Discount: in.Discount,
		Active:   active,
	}
}

func (p ProductPatch) apply(dst *domain.Product) {
	if p.Name != nil {
		dst.Name = *p.Name
	}
	if p.Size != nil {
		dst.Size = *p.Size
	}
	if p.Type != nil {
		dst.Type = *p.Type
	}
	if p.Price != nil {
		dst.Price = *p.Price
	}
	if p.Image != nil {
		dst.Image = *p.Image
	}
}

func (p CouponPatch) apply(dst *domain.Coupon) {
	if p.Code != nil {
		dst.Code = *p.Code
	}
	if p.Discount != nil {
		dst.Discount = *p.Discount
	}
	if p.Active != nil {
		dst.Active = *p.Active
	}
}
