package domain

import "context"

// ListFilter задаёт offset-пагинацию списка заказов.
type ListFilter struct {
	// Page: номер страницы, начиная с 1.
	Page int
	// Limit: размер страницы.
	Limit int
	// Status фильтрует по statusPedido; пустая строка: без фильтра.
	Status string
}

// Skip возвращает количество пропускаемых записей: (page-1)*limit.
func (f ListFilter) Skip() int {
	if f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// ListResult: страница заказов и общее количество подходящих записей.
type ListResult struct {
	Orders []Order
	Total  int64
}

// TotalPages возвращает ceil(total/limit).
func (r ListResult) TotalPages(limit int) int64 {
	if limit <= 0 {
		return 0
	}
	l := int64(limit)
	return (r.Total + l - 1) / l
}

// PaymentMethodCount: количество заказов с данным способом оплаты.
type PaymentMethodCount struct {
	PaymentMethod PaymentMethod `json:"_id"`
	Count         int64         `json:"count"`
}

// Stats: агрегированная статистика по заказам.
type Stats struct {
	TotalOrders     int64                `json:"totalPedidos"`
	TotalValue      float64              `json:"valorTotal"`
	ByPaymentMethod []PaymentMethodCount `json:"pedidosPorFormaPagamento"`
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Если ID пуст, хранилище присваивает его само.
	// Возвращает ErrDuplicateSequence, если номер заказа уже занят.
	Create(ctx context.Context, order Order) (Order, error)
	// GetByID ищет заказ по внутреннему идентификатору хранилища.
	GetByID(ctx context.Context, id string) (Order, error)
	// GetByNumber ищет заказ по последовательному номеру.
	GetByNumber(ctx context.Context, number int64) (Order, error)
	// ListByPhone возвращает заказы по телефону, новые первыми.
	ListByPhone(ctx context.Context, phone string) ([]Order, error)
	// List возвращает страницу заказов, новые первыми.
	List(ctx context.Context, filter ListFilter) (ListResult, error)
	// UpdateStatus применяет патч к заказу с указанным номером.
	UpdateStatus(ctx context.Context, number int64, patch StatusPatch) (Order, error)
	// Delete удаляет заказ. Номер удалённого заказа повторно не выдаётся.
	Delete(ctx context.Context, id string) error
	// Stats агрегирует количество, сумму и разбивку по способам оплаты.
	Stats(ctx context.Context) (Stats, error)
	// LastNumber возвращает последний выданный номер (0, если заказов не было).
	LastNumber(ctx context.Context) (int64, error)
}

// ProductRepository: CRUD каталога футболок.
type ProductRepository interface {
	Create(ctx context.Context, product Product) (Product, error)
	Get(ctx context.Context, id string) (Product, error)
	List(ctx context.Context) ([]Product, error)
	Update(ctx context.Context, product Product) (Product, error)
	Delete(ctx context.Context, id string) error
}

// CouponRepository: CRUD купонов. Код купона уникален.
type CouponRepository interface {
	Create(ctx context.Context, coupon Coupon) (Coupon, error)
	Get(ctx context.Context, id string) (Coupon, error)
	List(ctx context.Context) ([]Coupon, error)
	Update(ctx context.Context, coupon Coupon) (Coupon, error)
	Delete(ctx context.Context, id string) error
}
