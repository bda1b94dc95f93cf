package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/camisetas/internal/domain"
)

type productRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Product
}

// NewProductRepository возвращает in-memory каталог футболок.
func NewProductRepository() domain.ProductRepository {
	return &productRepositoryInMemory{items: make(map[string]domain.Product)}
}

func (r *productRepositoryInMemory) Create(_ context.Context, product domain.Product) (domain.Product, error) {
	if err := product.Validate(); err != nil {
		return domain.Product{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	product.ID = uuid.NewString()
	product.CreatedAt = now
	product.UpdatedAt = now
	r.items[product.ID] = product
	return product, nil
}

func (r *productRepositoryInMemory) Get(_ context.Context, id string) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.items[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

func (r *productRepositoryInMemory) List(_ context.Context) ([]domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Product, 0, len(r.items))
	for _, p := range r.items {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (r *productRepositoryInMemory) Update(_ context.Context, product domain.Product) (domain.Product, error) {
	if err := product.Validate(); err != nil {
		return domain.Product{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[product.ID]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	product.CreatedAt = current.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	r.items[product.ID] = product
	return product, nil
}

func (r *productRepositoryInMemory) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return domain.ErrProductNotFound
	}
	delete(r.items, id)
	return nil
}

type couponRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Coupon
}

// NewCouponRepository возвращает in-memory хранилище купонов.
func NewCouponRepository() domain.CouponRepository {
	return &couponRepositoryInMemory{items: make(map[string]domain.Coupon)}
}

func (r *couponRepositoryInMemory) Create(_ context.Context, coupon domain.Coupon) (domain.Coupon, error) {
	if err := coupon.Validate(); err != nil {
		return domain.Coupon{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.codeTakenLocked(coupon.Code, "") {
		return domain.Coupon{}, domain.ErrCouponCodeTaken
	}
	now := time.Now().UTC()
	coupon.ID = uuid.NewString()
	coupon.CreatedAt = now
	coupon.UpdatedAt = now
	r.items[coupon.ID] = coupon
	return coupon, nil
}

func (r *couponRepositoryInMemory) Get(_ context.Context, id string) (domain.Coupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	coupon, ok := r.items[id]
	if !ok {
		return domain.Coupon{}, domain.ErrCouponNotFound
	}
	return coupon, nil
}

func (r *couponRepositoryInMemory) List(_ context.Context) ([]domain.Coupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Coupon, 0, len(r.items))
	for _, c := range r.items {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (r *couponRepositoryInMemory) Update(_ context.Context, coupon domain.Coupon) (domain.Coupon, error) {
	if err := coupon.Validate(); err != nil {
		return domain.Coupon{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[coupon.ID]
	if !ok {
		return domain.Coupon{}, domain.ErrCouponNotFound
	}
	if r.codeTakenLocked(coupon.Code, coupon.ID) {
		return domain.Coupon{}, domain.ErrCouponCodeTaken
	}
	coupon.CreatedAt = current.CreatedAt
	coupon.UpdatedAt = time.Now().UTC()
	r.items[coupon.ID] = coupon
	return coupon, nil
}

func (r *couponRepositoryInMemory) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return domain.ErrCouponNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *couponRepositoryInMemory) codeTakenLocked(code, exceptID string) bool {
	for id, c := range r.items {
		if id != exceptID && c.Code == code {
			return true
		}
	}
	return false
}

var (
	_ domain.ProductRepository = (*productRepositoryInMemory)(nil)
	_ domain.CouponRepository  = (*couponRepositoryInMemory)(nil)
)
