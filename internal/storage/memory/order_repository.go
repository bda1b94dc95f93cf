package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/camisetas/internal/domain"
)

// orderRepositoryInMemory: простая in-memory реализация OrderRepository.
type orderRepositoryInMemory struct {
	mu       sync.RWMutex
	items    map[string]domain.Order
	byNumber map[int64]string
	// floor: максимальный номер среди удалённых заказов, чтобы номер не выдавался повторно.
	floor int64
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		items:    make(map[string]domain.Order),
		byNumber: make(map[int64]string),
	}
}

// Create сохраняет новый заказ, если номер ещё не занят.
func (r *orderRepositoryInMemory) Create(_ context.Context, order domain.Order) (domain.Order, error) {
	if err := order.ValidateInvariants(); err != nil {
		return domain.Order{}, err
	}
	if order.Number <= 0 {
		return domain.Order{}, domain.NewValidationError("id", "sequence number must be positive")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byNumber[order.Number]; taken || order.Number <= r.floor {
		return domain.Order{}, domain.ErrDuplicateSequence
	}
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}
	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	stored := cloneOrder(order)
	r.items[stored.ID] = stored
	r.byNumber[stored.Number] = stored.ID
	return cloneOrder(stored), nil
}

// GetByID возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) GetByID(_ context.Context, id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

func (r *orderRepositoryInMemory) GetByNumber(_ context.Context, number int64) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byNumber[number]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(r.items[id]), nil
}

// ListByPhone возвращает все заказы по телефону, новые первыми.
func (r *orderRepositoryInMemory) ListByPhone(_ context.Context, phone string) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0)
	for _, order := range r.items {
		if order.ContactPhone != phone {
			continue
		}
		result = append(result, cloneOrder(order))
	}
	sortNewestFirst(result)
	return result, nil
}

// List возвращает страницу заказов с учётом фильтра по statusPedido.
func (r *orderRepositoryInMemory) List(_ context.Context, filter domain.ListFilter) (domain.ListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]domain.Order, 0, len(r.items))
	for _, order := range r.items {
		if filter.Status != "" && (order.OrderStatus == nil || *order.OrderStatus != filter.Status) {
			continue
		}
		matched = append(matched, order)
	}
	sortNewestFirst(matched)

	total := int64(len(matched))
	skip := filter.Skip()
	if skip > len(matched) {
		skip = len(matched)
	}
	end := len(matched)
	if filter.Limit > 0 && skip+filter.Limit < end {
		end = skip + filter.Limit
	}

	page := make([]domain.Order, 0, end-skip)
	for _, order := range matched[skip:end] {
		page = append(page, cloneOrder(order))
	}
	return domain.ListResult{Orders: page, Total: total}, nil
}

// UpdateStatus применяет патч статусов. Номер и остальные поля не меняются.
func (r *orderRepositoryInMemory) UpdateStatus(_ context.Context, number int64, patch domain.StatusPatch) (domain.Order, error) {
	if patch.Empty() {
		return domain.Order{}, domain.ErrNoFieldsProvided
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byNumber[number]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	order := r.items[id]
	patch.Apply(&order)
	order.UpdatedAt = time.Now().UTC()
	r.items[id] = order
	return cloneOrder(order), nil
}

// Delete удаляет заказ и поднимает floor до его номера.
func (r *orderRepositoryInMemory) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.items[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	delete(r.items, id)
	delete(r.byNumber, order.Number)
	if order.Number > r.floor {
		r.floor = order.Number
	}
	return nil
}

func (r *orderRepositoryInMemory) Stats(_ context.Context) (domain.Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := domain.Stats{ByPaymentMethod: make([]domain.PaymentMethodCount, 0)}
	counts := make(map[domain.PaymentMethod]int64)
	for _, order := range r.items {
		stats.TotalOrders++
		stats.TotalValue += order.TotalValue
		counts[order.PaymentMethod]++
	}
	for method, count := range counts {
		stats.ByPaymentMethod = append(stats.ByPaymentMethod, domain.PaymentMethodCount{
			PaymentMethod: method,
			Count:         count,
		})
	}
	sort.Slice(stats.ByPaymentMethod, func(i, j int) bool {
		return stats.ByPaymentMethod[i].PaymentMethod < stats.ByPaymentMethod[j].PaymentMethod
	})
	return stats, nil
}

// LastNumber возвращает максимум среди живых заказов и floor удалённых.
func (r *orderRepositoryInMemory) LastNumber(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	last := r.floor
	for number := range r.byNumber {
		if number > last {
			last = number
		}
	}
	return last, nil
}

func sortNewestFirst(orders []domain.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].Number > orders[j].Number
	})
}

func cloneOrder(order domain.Order) domain.Order {
	out := order
	out.Items = append([]domain.LineItem(nil), order.Items...)
	if order.DeliveryStatus != nil {
		v := *order.DeliveryStatus
		out.DeliveryStatus = &v
	}
	if order.OrderStatus != nil {
		v := *order.OrderStatus
		out.OrderStatus = &v
	}
	return out
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
